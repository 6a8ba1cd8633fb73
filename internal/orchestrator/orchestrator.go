// Package orchestrator turns user intents into navigation transitions,
// generation requests and collection toggles for one session.
//
// All state lives in a single State value mutated only by named actions
// under one mutex. Every generation request carries the epoch that was
// current when it started; a result whose epoch is no longer current is
// dropped, and the request context is canceled as soon as that happens.
package orchestrator

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"shiyin/internal/collection"
	"shiyin/internal/generation"
	"shiyin/internal/navigation"
	"shiyin/internal/poetry"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrBusy         = errors.New("orchestrator: a request is already in flight")
	ErrClosed       = errors.New("orchestrator: closed")
	ErrNoPoem       = errors.New("orchestrator: no current poem")
	ErrNoLetter     = errors.New("orchestrator: no current letter")
	ErrCardNotFound = errors.New("orchestrator: card not found")
	ErrItemNotFound = errors.New("orchestrator: collection item not found")
	// ErrSuperseded is returned when a newer request or a navigation
	// abandoned the one the caller was waiting for.
	ErrSuperseded = errors.New("orchestrator: request superseded")
)

const (
	DefaultPacingDelay   = 2500 * time.Millisecond
	DefaultToastDuration = 2 * time.Second
	DefaultStampDuration = 600 * time.Millisecond
)

type Config struct {
	Language poetry.Language
	// StartAt is the initial screen. Defaults to Splash.
	StartAt navigation.Screen
	// PacingDelay floors the random-poem flow.
	PacingDelay   time.Duration
	ToastDuration time.Duration
	StampDuration time.Duration
	// PickMood returns an index in [0, n). Defaults to math/rand.
	PickMood func(n int) int
	Logger   *zap.Logger
}

func (c Config) withDefaults() Config {
	c.Language = c.Language.Normalize()
	if c.StartAt == "" {
		c.StartAt = navigation.Splash
	}
	if c.PacingDelay < 0 {
		c.PacingDelay = 0
	} else if c.PacingDelay == 0 {
		c.PacingDelay = DefaultPacingDelay
	}
	if c.ToastDuration <= 0 {
		c.ToastDuration = DefaultToastDuration
	}
	if c.StampDuration <= 0 {
		c.StampDuration = DefaultStampDuration
	}
	if c.PickMood == nil {
		c.PickMood = rand.IntN
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

type Orchestrator struct {
	gen   generation.Generator
	store *collection.Store
	cfg   Config
	log   *zap.Logger

	mu         sync.Mutex
	state      State
	nav        *navigation.Controller
	changed    chan struct{}
	inflight   context.CancelFunc
	toastTimer *time.Timer
	stampTimer *time.Timer
	closed     bool
}

// New builds an orchestrator over gen. A nil store gets a fresh in-memory one.
func New(gen generation.Generator, store *collection.Store, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	if store == nil {
		store = collection.New()
	}
	nav := navigation.New(cfg.StartAt)
	return &Orchestrator{
		gen:   gen,
		store: store,
		cfg:   cfg,
		log:   cfg.Logger,
		nav:   nav,
		state: State{
			Screen:        nav.Current(),
			Language:      cfg.Language,
			CollectionTab: poetry.KindPoem,
			Cards:         []poetry.KeywordCard{},
		},
		changed: make(chan struct{}),
	}
}

// Collection exposes the session's collection store.
func (o *Orchestrator) Collection() *collection.Store { return o.store }

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() State {
	s := o.state.clone()
	if s.Poem != nil {
		s.PoemCollected = o.store.IsCollected(*s.Poem)
	}
	if s.Card != nil {
		s.CardCollected = o.store.IsCollected(*s.Card)
	}
	if s.Letter != nil {
		s.LetterCollected = o.store.IsCollected(*s.Letter)
	}
	for _, c := range s.Cards {
		if o.store.IsCollected(c) {
			s.CollectedTerms = append(s.CollectedTerms, c.Term)
		}
	}
	return s
}

// dispatchLocked applies a and wakes subscribers when it changed something.
func (o *Orchestrator) dispatchLocked(a Action) bool {
	if !a.apply(&o.state, o.nav) {
		o.log.Debug("action ignored", zap.String("action", a.Name()))
		return false
	}
	o.state.Screen = o.nav.Current()
	o.state.History = o.nav.History()
	o.log.Debug("action",
		zap.String("action", a.Name()),
		zap.String("screen", string(o.state.Screen)),
		zap.Uint64("epoch", o.state.Epoch))
	o.notifyLocked()
	return true
}

func (o *Orchestrator) dispatch(a Action) (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, ErrClosed
	}
	o.dispatchLocked(a)
	return o.snapshotLocked(), nil
}

func (o *Orchestrator) notifyLocked() {
	close(o.changed)
	o.changed = make(chan struct{})
}

// beginLocked starts a generation request and returns its context and epoch.
func (o *Orchestrator) beginLocked(ctx context.Context, kind LoadingKind, mood string) (context.Context, uint64) {
	o.dispatchLocked(requestStarted{kind: kind, mood: mood})
	reqCtx, cancel := context.WithCancel(ctx)
	o.inflight = cancel
	return reqCtx, o.state.Epoch
}

// abandonLocked cancels the in-flight request, if any.
func (o *Orchestrator) abandonLocked() {
	if !o.state.Loading {
		return
	}
	if o.inflight != nil {
		o.inflight()
		o.inflight = nil
	}
	o.dispatchLocked(requestAbandoned{})
}

// finish applies the result action of the request started at epoch.
func (o *Orchestrator) finish(epoch uint64, result Action) (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, ErrClosed
	}
	if epoch != o.state.Epoch {
		return o.snapshotLocked(), ErrSuperseded
	}
	if o.inflight != nil {
		o.inflight()
		o.inflight = nil
	}
	o.dispatchLocked(result)
	return o.snapshotLocked(), nil
}

func (o *Orchestrator) guardLocked() error {
	if o.closed {
		return ErrClosed
	}
	if o.state.Loading {
		return ErrBusy
	}
	return nil
}

// CompleteSplash leaves the splash screen for Home without recording it in
// the history.
func (o *Orchestrator) CompleteSplash(lang poetry.Language) (State, error) {
	return o.dispatch(splashCompleted{lang: lang.Normalize()})
}

func (o *Orchestrator) SetLanguage(lang poetry.Language) (State, error) {
	return o.dispatch(languageSet{lang: lang.Normalize()})
}

// SetMood records the mood text as typed, before any search.
func (o *Orchestrator) SetMood(mood string) (State, error) {
	return o.dispatch(moodSet{mood: mood})
}

// Search recommends a poem for mood and shows it. Blank mood is a no-op.
// A generator error raises an alert and leaves the screen unchanged.
func (o *Orchestrator) Search(ctx context.Context, mood string) (State, error) {
	mood = strings.TrimSpace(mood)
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return State{}, ErrClosed
	}
	if mood == "" {
		s := o.snapshotLocked()
		o.mu.Unlock()
		return s, nil
	}
	if err := o.guardLocked(); err != nil {
		o.mu.Unlock()
		return State{}, err
	}
	reqCtx, epoch := o.beginLocked(ctx, LoadingSearch, mood)
	lang := o.state.Language
	o.mu.Unlock()

	poem, err := o.gen.RecommendPoem(reqCtx, mood, lang)
	if err != nil {
		alert := ""
		if ctx.Err() == nil && reqCtx.Err() == nil {
			alert = poetry.LocaleFor(lang).SearchFailed
		}
		o.log.Warn("search failed", zap.String("mood", mood), zap.Error(err))
		s, ferr := o.finish(epoch, requestFailed{epoch: epoch, alert: alert})
		if ferr != nil {
			return s, ferr
		}
		return s, err
	}
	return o.finish(epoch, poemLoaded{epoch: epoch, poem: poem, source: SourceSearch, mood: mood})
}

// RandomPoem recommends a poem for a random locale mood. The transition
// happens no earlier than the pacing delay after the request started.
func (o *Orchestrator) RandomPoem(ctx context.Context) (State, error) {
	o.mu.Lock()
	if err := o.guardLocked(); err != nil {
		o.mu.Unlock()
		return State{}, err
	}
	reqCtx, epoch := o.beginLocked(ctx, LoadingRandom, "")
	lang := o.state.Language
	o.mu.Unlock()

	moods := poetry.LocaleFor(lang).Moods
	mood := moods[o.cfg.PickMood(len(moods))]

	var poem poetry.Poem
	g, gctx := errgroup.WithContext(reqCtx)
	g.Go(func() error {
		p, err := o.gen.RecommendPoem(gctx, mood, lang)
		poem = p
		return err
	})
	g.Go(func() error {
		t := time.NewTimer(o.cfg.PacingDelay)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	if err := g.Wait(); err != nil {
		o.log.Warn("random poem failed", zap.String("mood", mood), zap.Error(err))
		s, ferr := o.finish(epoch, requestFailed{epoch: epoch})
		if ferr != nil {
			return s, ferr
		}
		return s, err
	}
	return o.finish(epoch, poemLoaded{epoch: epoch, poem: poem, source: SourceRandom})
}

// OpenCardExplorer replaces the current screen with the card explorer and
// fetches cards only when none are cached for the current poem.
func (o *Orchestrator) OpenCardExplorer(ctx context.Context) (State, error) {
	o.mu.Lock()
	if err := o.guardLocked(); err != nil {
		o.mu.Unlock()
		return State{}, err
	}
	if o.state.Poem == nil {
		o.mu.Unlock()
		return State{}, ErrNoPoem
	}
	o.dispatchLocked(cardExplorerOpened{})
	if len(o.state.Cards) > 0 {
		s := o.snapshotLocked()
		o.mu.Unlock()
		return s, nil
	}
	reqCtx, epoch := o.beginLocked(ctx, LoadingAnalysis, "")
	poem, lang := o.state.Poem.Clone(), o.state.Language
	o.mu.Unlock()

	cards, err := o.gen.AnalyzePoemKeywords(reqCtx, poem, lang)
	if err != nil {
		s, ferr := o.finish(epoch, requestFailed{epoch: epoch})
		if ferr != nil {
			return s, ferr
		}
		return s, err
	}
	return o.finish(epoch, cardsLoaded{epoch: epoch, cards: cards})
}

// CloseCardExplorer returns to the poem directly rather than via history.
func (o *Orchestrator) CloseCardExplorer() (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, ErrClosed
	}
	o.abandonLocked()
	o.dispatchLocked(cardExplorerClosed{})
	return o.snapshotLocked(), nil
}

// OpenLetter shows the letter screen. A letter is generated only when none
// is held or the held one is from a different poet than the current poem.
func (o *Orchestrator) OpenLetter(ctx context.Context) (State, error) {
	o.mu.Lock()
	if err := o.guardLocked(); err != nil {
		o.mu.Unlock()
		return State{}, err
	}
	if o.state.Poem == nil {
		o.mu.Unlock()
		return State{}, ErrNoPoem
	}
	o.dispatchLocked(letterOpened{})
	poem, lang := o.state.Poem.Clone(), o.state.Language
	if o.state.Letter != nil && o.state.Letter.Poet == poem.Author {
		s := o.snapshotLocked()
		o.mu.Unlock()
		return s, nil
	}
	contextText := poetry.LocaleFor(lang).DefaultLetterContext
	if o.state.Source == SourceSearch && o.state.SearchedMood != "" {
		contextText = o.state.SearchedMood
	}
	reqCtx, epoch := o.beginLocked(ctx, LoadingLetter, "")
	o.mu.Unlock()

	letter, err := o.gen.GeneratePoetLetter(reqCtx, poem, contextText, lang)
	if err != nil {
		s, ferr := o.finish(epoch, requestFailed{epoch: epoch})
		if ferr != nil {
			return s, ferr
		}
		return s, err
	}
	return o.finish(epoch, letterLoaded{epoch: epoch, letter: letter})
}

// ToggleCurrentPoem collects or removes the displayed poem. A searched
// poem remembers its mood as the source prompt.
func (o *Orchestrator) ToggleCurrentPoem() (State, collection.ToggleResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, collection.ToggleResult{}, ErrClosed
	}
	if o.state.Poem == nil {
		return State{}, collection.ToggleResult{}, ErrNoPoem
	}
	prompt := ""
	if o.state.Source == SourceSearch {
		prompt = o.state.SearchedMood
	}
	return o.toggleLocked(*o.state.Poem, prompt)
}

// ToggleCard collects or removes the card with term, looked up among the
// current poem's cards and then the single card on display.
func (o *Orchestrator) ToggleCard(term string) (State, collection.ToggleResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, collection.ToggleResult{}, ErrClosed
	}
	key := strings.TrimSpace(term)
	for _, c := range o.state.Cards {
		if c.IdentityKey() == key {
			return o.toggleLocked(c, "")
		}
	}
	if o.state.Card != nil && o.state.Card.IdentityKey() == key {
		return o.toggleLocked(*o.state.Card, "")
	}
	return State{}, collection.ToggleResult{}, ErrCardNotFound
}

// ToggleCurrentLetter collects or removes the held letter.
func (o *Orchestrator) ToggleCurrentLetter() (State, collection.ToggleResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, collection.ToggleResult{}, ErrClosed
	}
	if o.state.Letter == nil {
		return State{}, collection.ToggleResult{}, ErrNoLetter
	}
	return o.toggleLocked(*o.state.Letter, "")
}

func (o *Orchestrator) toggleLocked(a poetry.Artifact, sourcePrompt string) (State, collection.ToggleResult, error) {
	res, err := o.store.Toggle(a, sourcePrompt, o.state.Language)
	if err != nil {
		return State{}, res, err
	}
	loc := poetry.LocaleFor(o.state.Language)
	msg := loc.ToastRemoved
	if res.Action == collection.ActionAdded {
		msg = loc.ToastCollected
	}
	o.dispatchLocked(toggled{action: res.Action, message: msg})

	toastSeq := o.state.ToastSeq
	o.toastTimer = o.rearmLocked(o.toastTimer, o.cfg.ToastDuration, toastCleared{seq: toastSeq})
	if res.Action == collection.ActionAdded {
		stampSeq := o.state.StampSeq
		o.stampTimer = o.rearmLocked(o.stampTimer, o.cfg.StampDuration, stampCleared{seq: stampSeq})
	}
	return o.snapshotLocked(), res, nil
}

// rearmLocked stops t and schedules a to be dispatched after d.
func (o *Orchestrator) rearmLocked(t *time.Timer, d time.Duration, a Action) *time.Timer {
	if t != nil {
		t.Stop()
	}
	return time.AfterFunc(d, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.closed {
			return
		}
		o.dispatchLocked(a)
	})
}

// OpenCollection navigates to the collection, abandoning any request.
func (o *Orchestrator) OpenCollection() (State, error) {
	return o.navigate(collectionOpened{})
}

func (o *Orchestrator) SelectCollectionTab(tab poetry.Kind) (State, error) {
	return o.dispatch(tabSelected{tab: tab})
}

// ViewCollectionItem opens the collected item with id on its screen.
func (o *Orchestrator) ViewCollectionItem(id string) (State, error) {
	it, ok := o.store.Get(id)
	if !ok {
		return State{}, ErrItemNotFound
	}
	return o.navigate(itemViewed{item: it})
}

func (o *Orchestrator) GoHome() (State, error) {
	return o.navigate(wentHome{})
}

// Back pops the history, abandoning any request.
func (o *Orchestrator) Back() (State, error) {
	return o.navigate(wentBack{})
}

func (o *Orchestrator) navigate(a Action) (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return State{}, ErrClosed
	}
	o.abandonLocked()
	o.dispatchLocked(a)
	return o.snapshotLocked(), nil
}

func (o *Orchestrator) DismissToast() (State, error) {
	return o.dispatch(toastCleared{})
}

func (o *Orchestrator) ClearAlert() (State, error) {
	return o.dispatch(alertCleared{})
}

// Subscribe streams snapshots, starting with the current one, until ctx is
// done or the orchestrator closes. Slow readers only miss intermediate
// snapshots.
func (o *Orchestrator) Subscribe(ctx context.Context) <-chan State {
	out := make(chan State, 4)
	go func() {
		defer close(out)
		for {
			o.mu.Lock()
			s := o.snapshotLocked()
			ch := o.changed
			closed := o.closed
			o.mu.Unlock()

			pushState(out, s)
			if closed {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ch:
			}
		}
	}()
	return out
}

// pushState drops the oldest queued snapshot when out is full.
func pushState(out chan State, s State) {
	select {
	case out <- s:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	select {
	case out <- s:
	default:
	}
}

// Close cancels any in-flight request, stops timers and ends subscriptions.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	if o.inflight != nil {
		o.inflight()
		o.inflight = nil
	}
	for _, t := range []*time.Timer{o.toastTimer, o.stampTimer} {
		if t != nil {
			t.Stop()
		}
	}
	o.notifyLocked()
	return nil
}
