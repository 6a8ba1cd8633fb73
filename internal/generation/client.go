// Package generation turns a mood or a poem into the three generated
// artifacts. Provider and parse failures are absorbed here and replaced by
// locale fallbacks; only caller cancellation is returned as an error.
package generation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"shiyin/internal/llm"
	llmclient "shiyin/internal/llmClient"
	"shiyin/internal/poetry"
	"shiyin/internal/util/jsonutil"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Phases tag requests for logging, metrics and hooks.
const (
	PhasePoem    = "poem"
	PhaseCards   = "keyword_cards"
	PhaseLetter  = "poet_letter"
	MaxCards     = 5
	ShiWeight    = 0.7
	poemTemp     = float32(1.0)
	formShi      = "shi"
	formCi       = "ci"
	letterMaxLen = 200
)

// Generator is the capability the orchestrator depends on.
type Generator interface {
	RecommendPoem(ctx context.Context, mood string, lang poetry.Language) (poetry.Poem, error)
	AnalyzePoemKeywords(ctx context.Context, poem poetry.Poem, lang poetry.Language) ([]poetry.KeywordCard, error)
	GeneratePoetLetter(ctx context.Context, poem poetry.Poem, contextText string, lang poetry.Language) (poetry.PoetLetter, error)
}

// Client implements Generator over an LLMClient.
type Client struct {
	llm      llmclient.LLMClient
	log      *zap.Logger
	validate *validator.Validate
	rand     func() float64
	recorder *llm.PromptRecorder
}

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRand replaces the source used for the verse-form coin flip.
func WithRand(f func() float64) Option {
	return func(c *Client) {
		if f != nil {
			c.rand = f
		}
	}
}

// WithPromptRecorder records every prompt and reply through r.
func WithPromptRecorder(r *llm.PromptRecorder) Option {
	return func(c *Client) { c.recorder = r }
}

func New(cli llmclient.LLMClient, opts ...Option) *Client {
	c := &Client{
		llm:      cli,
		log:      zap.NewNop(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		rand:     rand.Float64,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ Generator = (*Client)(nil)

var poemPrompt = applyPresets(promptSpec{
	Purpose:    "Recommend a single classical Chinese poem that resonates with the reader's mood.",
	Background: "The reader described how they feel. Pick a Tang or Song dynasty work in the requested form: shi is regulated verse, ci is lyric verse set to a tune.",
	OutputFields: []promptField{
		{Name: "title", Type: "string"},
		{Name: "author", Type: "string"},
		{Name: "dynasty", Type: "string"},
		{Name: "content", Type: "[]string", Description: "Poem lines in order."},
		{Name: "analysis", Type: "string", Description: "Why this poem matches the feeling."},
		{Name: "context", Type: "string", Description: "Brief historical context."},
	},
	Constraints: []string{
		"When the language is Chinese keep the original characters of the poem.",
		"When the language is English give a faithful English rendering of every line.",
	},
	OutputFormat: "JSON object only.",
}, presetStrictJSON(), presetNoInvent())

var cardsPrompt = applyPresets(promptSpec{
	Purpose:    "Extract 3-5 key terms from the poem and annotate each one.",
	Background: "You are an expert in the geography, phenology and local customs found in classical Chinese poetry.",
	OutputFields: []promptField{
		{Name: "cards", Type: "[]Card", Description: "Card is {term, category, description, culturalSignificance}."},
	},
	Constraints: []string{
		"category must be exactly one of the allowed categories in the input.",
		"Ignore general emotions or people unless they stand for a specific custom.",
	},
	OutputFormat: "JSON object with a single cards array.",
}, presetStrictJSON())

var letterPrompt = applyPresets(promptSpec{
	Purpose:    "Write a personal letter to the reader in the voice of the poem's author.",
	Background: "The reader came to the poet with a feeling, and the poet once wrote the given poem about something similar.",
	OutputFields: []promptField{
		{Name: "content", Type: "string", Description: "The letter body."},
		{Name: "poet", Type: "string"},
		{Name: "replyTo", Type: "string"},
	},
	Rules: []string{
		"Adopt the poet's historical persona fully and draw on their own life.",
		"Write intimately, like a letter to an old friend across time.",
		"Do not use modern salutations.",
		fmt.Sprintf("Keep it under %d characters.", letterMaxLen),
	},
	OutputFormat: "JSON object only.",
}, presetStrictJSON())

func languageName(lang poetry.Language) string {
	if lang == poetry.LanguageEN {
		return "English"
	}
	return "Chinese"
}

// RecommendPoem never fails on provider errors: the locale fallback poem is
// returned instead. The error is non-nil only when ctx was canceled.
func (c *Client) RecommendPoem(ctx context.Context, mood string, lang poetry.Language) (poetry.Poem, error) {
	lang = lang.Normalize()
	loc := poetry.LocaleFor(lang)
	form := formCi
	if c.rand() < ShiWeight {
		form = formShi
	}
	input := map[string]any{
		"mood":     strings.TrimSpace(mood),
		"form":     form,
		"language": string(lang),
	}
	temp := poemTemp
	var payload poemPayload
	err := c.generate(ctx, PhasePoem, poemPrompt, input, lang, llmclient.ResponseSpec{
		Name:        llmclient.SpecPoem,
		Schema:      poemSchema(),
		Temperature: &temp,
	}, func(raw []byte) error {
		if err := jsonutil.UnmarshalFlex(raw, &payload); err != nil {
			return err
		}
		payload = payload.trimmed()
		return c.validate.Struct(payload)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return poetry.Poem{}, ctxErr
		}
		c.log.Warn("poem recommendation fell back", zap.String("language", string(lang)), zap.Error(err))
		return loc.FallbackPoem, nil
	}
	return payload.toPoem(lang), nil
}

// AnalyzePoemKeywords returns at most MaxCards cards whose category belongs
// to the locale taxonomy. Failure yields an empty, non-nil slice.
func (c *Client) AnalyzePoemKeywords(ctx context.Context, poem poetry.Poem, lang poetry.Language) ([]poetry.KeywordCard, error) {
	lang = lang.Normalize()
	loc := poetry.LocaleFor(lang)
	input := map[string]any{
		"title":      poem.Title,
		"author":     poem.Author,
		"content":    poem.Content,
		"categories": loc.Categories,
		"language":   string(lang),
	}
	var payload []cardPayload
	err := c.generate(ctx, PhaseCards, cardsPrompt, input, lang, llmclient.ResponseSpec{
		Name:   llmclient.SpecCards,
		Schema: cardsSchema(loc),
	}, func(raw []byte) error {
		return jsonutil.UnmarshalList(raw, "cards", &payload)
	})
	cards := []poetry.KeywordCard{}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return cards, ctxErr
		}
		c.log.Warn("keyword analysis fell back to empty", zap.String("title", poem.Title), zap.Error(err))
		return cards, nil
	}
	seen := make(map[string]struct{}, len(payload))
	for _, p := range payload {
		if len(cards) == MaxCards {
			break
		}
		p = p.trimmed()
		if c.validate.Struct(p) != nil || !loc.HasCategory(p.Category) {
			continue
		}
		card := poetry.KeywordCard{
			Term:                 p.Term,
			Category:             canonicalCategory(loc, p.Category),
			Description:          p.Description,
			CulturalSignificance: p.CulturalSignificance,
		}
		if _, dup := seen[card.IdentityKey()]; dup {
			continue
		}
		seen[card.IdentityKey()] = struct{}{}
		cards = append(cards, card)
	}
	return cards, nil
}

// GeneratePoetLetter attributes the letter to poem.Author and replies to
// contextText whatever the model returns. Failure yields the canned letter.
func (c *Client) GeneratePoetLetter(ctx context.Context, poem poetry.Poem, contextText string, lang poetry.Language) (poetry.PoetLetter, error) {
	lang = lang.Normalize()
	loc := poetry.LocaleFor(lang)
	letter := poetry.PoetLetter{
		Content: loc.FallbackLetterBody,
		Poet:    strings.TrimSpace(poem.Author),
		ReplyTo: contextText,
	}
	input := map[string]any{
		"author":  poem.Author,
		"dynasty": poem.Dynasty,
		"title":   poem.Title,
		"feeling": contextText,
	}
	var payload letterPayload
	err := c.generate(ctx, PhaseLetter, letterPrompt, input, lang, llmclient.ResponseSpec{
		Name:   llmclient.SpecLetter,
		Schema: letterSchema(),
	}, func(raw []byte) error {
		if err := jsonutil.UnmarshalFlex(raw, &payload); err != nil {
			return err
		}
		payload = payload.trimmed()
		return c.validate.Struct(payload)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return letter, ctxErr
		}
		c.log.Warn("poet letter fell back", zap.String("poet", poem.Author), zap.Error(err))
		return letter, nil
	}
	letter.Content = payload.Content
	if letter.Poet == "" {
		letter.Poet = payload.Poet
	}
	return letter, nil
}

// generate renders the prompt, calls the model under phase and spec, and
// hands the raw reply to decode.
func (c *Client) generate(ctx context.Context, phase string, spec promptSpec, input map[string]any, lang poetry.Language, rs llmclient.ResponseSpec, decode func([]byte) error) error {
	if c.llm == nil {
		return errors.New("generation: no llm client configured")
	}
	prompt, err := spec.render(input, languageName(lang))
	if err != nil {
		return err
	}
	ctx = llm.WithPhase(ctx, phase)
	if c.recorder != nil {
		ctx = c.recorder.Attach(ctx)
	}
	ctx = llmclient.WithResponseSpec(ctx, rs)
	raw, err := c.llm.GenerateJSON(ctx, prompt, input)
	if err != nil {
		return err
	}
	if err := decode(raw); err != nil {
		return fmt.Errorf("%s: %w: %v", phase, llmclient.ErrInvalidJSON, err)
	}
	return nil
}

func canonicalCategory(loc poetry.Locale, category string) string {
	category = strings.TrimSpace(category)
	for _, c := range loc.Categories {
		if strings.EqualFold(c, category) {
			return c
		}
	}
	return category
}
