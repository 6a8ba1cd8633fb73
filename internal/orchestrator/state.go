package orchestrator

import (
	"shiyin/internal/navigation"
	"shiyin/internal/poetry"
)

// Source records how the current poem was reached.
type Source string

const (
	SourceSearch     Source = "search"
	SourceRandom     Source = "random"
	SourceCollection Source = "collection"
)

// LoadingKind names the in-flight generation request, if any.
type LoadingKind string

const (
	LoadingNone     LoadingKind = ""
	LoadingSearch   LoadingKind = "search"
	LoadingRandom   LoadingKind = "random"
	LoadingAnalysis LoadingKind = "analysis"
	LoadingLetter   LoadingKind = "letter"
)

// State is an immutable snapshot handed to callers and subscribers.
type State struct {
	Screen   navigation.Screen   `json:"screen"`
	History  []navigation.Screen `json:"history"`
	Language poetry.Language     `json:"language"`

	Loading     bool        `json:"loading"`
	LoadingKind LoadingKind `json:"loadingKind,omitempty"`
	// Epoch increments whenever a generation request starts or is abandoned.
	Epoch uint64 `json:"epoch"`

	Source        Source      `json:"source,omitempty"`
	CollectionTab poetry.Kind `json:"collectionTab"`
	Mood          string      `json:"mood"`
	SearchedMood  string      `json:"searchedMood,omitempty"`

	Poem   *poetry.Poem         `json:"poem,omitempty"`
	Cards  []poetry.KeywordCard `json:"cards"`
	Card   *poetry.KeywordCard  `json:"card,omitempty"`
	Letter *poetry.PoetLetter   `json:"letter,omitempty"`

	Toast    string `json:"toast,omitempty"`
	ToastSeq uint64 `json:"toastSeq"`
	Stamp    bool   `json:"stamp"`
	StampSeq uint64 `json:"stampSeq"`
	Alert    string `json:"alert,omitempty"`

	PoemCollected   bool     `json:"poemCollected"`
	CardCollected   bool     `json:"cardCollected"`
	LetterCollected bool     `json:"letterCollected"`
	CollectedTerms  []string `json:"collectedTerms"`
}

// LoadingMessage is the locale text shown while a request is in flight.
func (s State) LoadingMessage() string {
	if !s.Loading {
		return ""
	}
	loc := poetry.LocaleFor(s.Language)
	switch s.LoadingKind {
	case LoadingLetter:
		return loc.LoadingLetter
	case LoadingRandom:
		return loc.LoadingRandom
	case LoadingAnalysis:
		return loc.LoadingAnalysis
	default:
		return loc.LoadingSearch
	}
}

func (s State) clone() State {
	s.History = append([]navigation.Screen(nil), s.History...)
	s.Cards = append([]poetry.KeywordCard{}, s.Cards...)
	s.CollectedTerms = append([]string{}, s.CollectedTerms...)
	if s.Poem != nil {
		p := s.Poem.Clone()
		s.Poem = &p
	}
	if s.Card != nil {
		c := *s.Card
		s.Card = &c
	}
	if s.Letter != nil {
		l := *s.Letter
		s.Letter = &l
	}
	return s
}
