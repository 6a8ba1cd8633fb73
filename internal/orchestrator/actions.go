package orchestrator

import (
	"shiyin/internal/collection"
	"shiyin/internal/navigation"
	"shiyin/internal/poetry"
)

// Action is a named state transition. apply reports whether it changed
// anything; epoch-tagged results from an older request report false.
type Action interface {
	Name() string
	apply(s *State, nav *navigation.Controller) bool
}

type splashCompleted struct{ lang poetry.Language }

func (splashCompleted) Name() string { return "splash_completed" }
func (a splashCompleted) apply(s *State, nav *navigation.Controller) bool {
	s.Language = a.lang
	nav.Replace(navigation.Home)
	return true
}

type languageSet struct{ lang poetry.Language }

func (languageSet) Name() string { return "language_set" }
func (a languageSet) apply(s *State, _ *navigation.Controller) bool {
	if s.Language == a.lang {
		return false
	}
	s.Language = a.lang
	return true
}

type moodSet struct{ mood string }

func (moodSet) Name() string { return "mood_set" }
func (a moodSet) apply(s *State, _ *navigation.Controller) bool {
	s.Mood = a.mood
	return true
}

type requestStarted struct {
	kind LoadingKind
	mood string
}

func (requestStarted) Name() string { return "request_started" }
func (a requestStarted) apply(s *State, _ *navigation.Controller) bool {
	s.Epoch++
	s.Loading = true
	s.LoadingKind = a.kind
	s.Alert = ""
	if a.kind == LoadingSearch {
		s.Mood = a.mood
	}
	return true
}

// requestAbandoned invalidates the in-flight request.
type requestAbandoned struct{}

func (requestAbandoned) Name() string { return "request_abandoned" }
func (requestAbandoned) apply(s *State, _ *navigation.Controller) bool {
	s.Epoch++
	s.Loading = false
	s.LoadingKind = LoadingNone
	return true
}

type requestFailed struct {
	epoch uint64
	alert string
}

func (requestFailed) Name() string { return "request_failed" }
func (a requestFailed) apply(s *State, _ *navigation.Controller) bool {
	if a.epoch != s.Epoch {
		return false
	}
	s.Loading = false
	s.LoadingKind = LoadingNone
	s.Alert = a.alert
	return true
}

// poemLoaded installs a generated poem and resets the card cache.
type poemLoaded struct {
	epoch  uint64
	poem   poetry.Poem
	source Source
	mood   string
}

func (poemLoaded) Name() string { return "poem_loaded" }
func (a poemLoaded) apply(s *State, nav *navigation.Controller) bool {
	if a.epoch != s.Epoch {
		return false
	}
	p := a.poem.Clone()
	s.Poem = &p
	s.Cards = []poetry.KeywordCard{}
	s.Card = nil
	s.Source = a.source
	if a.source == SourceSearch {
		s.SearchedMood = a.mood
	} else {
		s.SearchedMood = ""
	}
	s.Loading = false
	s.LoadingKind = LoadingNone
	// The explorer belongs to the previous poem; it never stays on the stack.
	if nav.Current() == navigation.CardExplorer {
		nav.Replace(navigation.PoemDisplay)
	}
	nav.NavigateTo(navigation.PoemDisplay)
	return true
}

type cardExplorerOpened struct{}

func (cardExplorerOpened) Name() string { return "card_explorer_opened" }
func (cardExplorerOpened) apply(_ *State, nav *navigation.Controller) bool {
	nav.Replace(navigation.CardExplorer)
	return true
}

type cardExplorerClosed struct{}

func (cardExplorerClosed) Name() string { return "card_explorer_closed" }
func (cardExplorerClosed) apply(_ *State, nav *navigation.Controller) bool {
	nav.Replace(navigation.PoemDisplay)
	return true
}

type cardsLoaded struct {
	epoch uint64
	cards []poetry.KeywordCard
}

func (cardsLoaded) Name() string { return "cards_loaded" }
func (a cardsLoaded) apply(s *State, _ *navigation.Controller) bool {
	if a.epoch != s.Epoch {
		return false
	}
	s.Cards = append([]poetry.KeywordCard{}, a.cards...)
	s.Loading = false
	s.LoadingKind = LoadingNone
	return true
}

type letterOpened struct{}

func (letterOpened) Name() string { return "letter_opened" }
func (letterOpened) apply(_ *State, nav *navigation.Controller) bool {
	nav.NavigateTo(navigation.Letter)
	return true
}

type letterLoaded struct {
	epoch  uint64
	letter poetry.PoetLetter
}

func (letterLoaded) Name() string { return "letter_loaded" }
func (a letterLoaded) apply(s *State, _ *navigation.Controller) bool {
	if a.epoch != s.Epoch {
		return false
	}
	l := a.letter
	s.Letter = &l
	s.Loading = false
	s.LoadingKind = LoadingNone
	return true
}

// toggled shows the toast and, on add, starts the stamp animation.
type toggled struct {
	action  collection.Action
	message string
}

func (toggled) Name() string { return "toggled" }
func (a toggled) apply(s *State, _ *navigation.Controller) bool {
	s.Toast = a.message
	s.ToastSeq++
	if a.action == collection.ActionAdded {
		s.Stamp = true
		s.StampSeq++
	}
	return true
}

type toastCleared struct{ seq uint64 }

func (toastCleared) Name() string { return "toast_cleared" }
func (a toastCleared) apply(s *State, _ *navigation.Controller) bool {
	if s.Toast == "" || (a.seq != 0 && a.seq != s.ToastSeq) {
		return false
	}
	s.Toast = ""
	return true
}

type stampCleared struct{ seq uint64 }

func (stampCleared) Name() string { return "stamp_cleared" }
func (a stampCleared) apply(s *State, _ *navigation.Controller) bool {
	if !s.Stamp || a.seq != s.StampSeq {
		return false
	}
	s.Stamp = false
	return true
}

type collectionOpened struct{}

func (collectionOpened) Name() string { return "collection_opened" }
func (collectionOpened) apply(_ *State, nav *navigation.Controller) bool {
	nav.NavigateTo(navigation.Collection)
	return true
}

type tabSelected struct{ tab poetry.Kind }

func (tabSelected) Name() string { return "tab_selected" }
func (a tabSelected) apply(s *State, _ *navigation.Controller) bool {
	if s.CollectionTab == a.tab {
		return false
	}
	s.CollectionTab = a.tab
	return true
}

// itemViewed opens a collected artifact on its screen. A poem with a
// source prompt is treated as a search result for that prompt.
type itemViewed struct{ item collection.Item }

func (itemViewed) Name() string { return "item_viewed" }
func (a itemViewed) apply(s *State, nav *navigation.Controller) bool {
	switch v := a.item.Data.(type) {
	case poetry.Poem:
		p := v.Clone()
		s.Poem = &p
		s.Cards = []poetry.KeywordCard{}
		if a.item.SourcePrompt != "" {
			s.Mood = a.item.SourcePrompt
			s.SearchedMood = a.item.SourcePrompt
			s.Source = SourceSearch
		} else {
			s.SearchedMood = ""
			s.Source = SourceCollection
		}
		nav.NavigateTo(navigation.PoemDisplay)
	case poetry.KeywordCard:
		c := v
		s.Card = &c
		nav.NavigateTo(navigation.SingleCardDetail)
	case poetry.PoetLetter:
		l := v
		s.Letter = &l
		nav.NavigateTo(navigation.Letter)
	default:
		return false
	}
	return true
}

type wentHome struct{}

func (wentHome) Name() string { return "went_home" }
func (wentHome) apply(_ *State, nav *navigation.Controller) bool {
	nav.NavigateTo(navigation.Home)
	return true
}

type wentBack struct{}

func (wentBack) Name() string { return "went_back" }
func (wentBack) apply(_ *State, nav *navigation.Controller) bool {
	nav.GoBack()
	return true
}

type alertCleared struct{}

func (alertCleared) Name() string { return "alert_cleared" }
func (alertCleared) apply(s *State, _ *navigation.Controller) bool {
	if s.Alert == "" {
		return false
	}
	s.Alert = ""
	return true
}
