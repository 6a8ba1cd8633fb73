package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"shiyin/internal/orchestrator"
	"shiyin/internal/poetry"
)

// ErrInvalidIntent wraps intent validation failures.
var ErrInvalidIntent = errors.New("invalid intent")

const (
	IntentCompleteSplash = "complete_splash"
	IntentSetLanguage    = "set_language"
	IntentSetMood        = "set_mood"
	IntentSearch         = "search"
	IntentRandom         = "random"
	IntentOpenCards      = "open_cards"
	IntentCloseCards     = "close_cards"
	IntentOpenLetter     = "open_letter"
	IntentTogglePoem     = "toggle_poem"
	IntentToggleCard     = "toggle_card"
	IntentToggleLetter   = "toggle_letter"
	IntentOpenCollection = "open_collection"
	IntentSelectTab      = "select_tab"
	IntentViewItem       = "view_item"
	IntentGoHome         = "go_home"
	IntentBack           = "back"
	IntentDismissToast   = "dismiss_toast"
	IntentClearAlert     = "clear_alert"
)

// Intent is one user action as it arrives over HTTP or the WebSocket.
type Intent struct {
	Type     string `json:"type" validate:"required,oneof=complete_splash set_language set_mood search random open_cards close_cards open_letter toggle_poem toggle_card toggle_letter open_collection select_tab view_item go_home back dismiss_toast clear_alert"`
	Language string `json:"language,omitempty" validate:"required_if=Type set_language"`
	Mood     string `json:"mood,omitempty" validate:"max=500"`
	Term     string `json:"term,omitempty" validate:"required_if=Type toggle_card"`
	Tab      string `json:"tab,omitempty" validate:"required_if=Type select_tab"`
	ID       string `json:"id,omitempty" validate:"required_if=Type view_item"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the intent shape without touching any session.
func (in Intent) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}
	return nil
}

// Dispatch runs one intent against the session's orchestrator. A request
// superseded by a later intent is not an error: the caller gets the state
// as the later intent left it.
func (s *Session) Dispatch(ctx context.Context, in Intent) (orchestrator.State, error) {
	if err := in.Validate(); err != nil {
		return orchestrator.State{}, err
	}
	st, err := s.dispatch(ctx, in)
	if errors.Is(err, orchestrator.ErrSuperseded) {
		return s.orch.Snapshot(), nil
	}
	return st, err
}

func (s *Session) dispatch(ctx context.Context, in Intent) (orchestrator.State, error) {
	o := s.orch
	switch in.Type {
	case IntentCompleteSplash:
		lang := s.Language
		if strings.TrimSpace(in.Language) != "" {
			l, err := parseLanguage(in.Language)
			if err != nil {
				return orchestrator.State{}, err
			}
			lang = l
		}
		return o.CompleteSplash(lang)
	case IntentSetLanguage:
		lang, err := parseLanguage(in.Language)
		if err != nil {
			return orchestrator.State{}, err
		}
		return o.SetLanguage(lang)
	case IntentSetMood:
		return o.SetMood(in.Mood)
	case IntentSearch:
		return o.Search(ctx, in.Mood)
	case IntentRandom:
		return o.RandomPoem(ctx)
	case IntentOpenCards:
		return o.OpenCardExplorer(ctx)
	case IntentCloseCards:
		return o.CloseCardExplorer()
	case IntentOpenLetter:
		return o.OpenLetter(ctx)
	case IntentTogglePoem:
		st, _, err := o.ToggleCurrentPoem()
		return st, err
	case IntentToggleCard:
		st, _, err := o.ToggleCard(in.Term)
		return st, err
	case IntentToggleLetter:
		st, _, err := o.ToggleCurrentLetter()
		return st, err
	case IntentOpenCollection:
		return o.OpenCollection()
	case IntentSelectTab:
		tab, err := poetry.ParseKind(in.Tab)
		if err != nil {
			return orchestrator.State{}, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
		}
		return o.SelectCollectionTab(tab)
	case IntentViewItem:
		return o.ViewCollectionItem(in.ID)
	case IntentGoHome:
		return o.GoHome()
	case IntentBack:
		return o.Back()
	case IntentDismissToast:
		return o.DismissToast()
	case IntentClearAlert:
		return o.ClearAlert()
	default:
		return orchestrator.State{}, fmt.Errorf("%w: unknown type %q", ErrInvalidIntent, in.Type)
	}
}

func parseLanguage(raw string) (poetry.Language, error) {
	lang, err := poetry.ParseLanguage(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}
	return lang, nil
}
