package poetry

import (
	"fmt"
	"strings"
)

// Kind tags the three artifact variants a session can fetch and collect.
type Kind string

const (
	KindPoem   Kind = "poem"
	KindCard   Kind = "card"
	KindLetter Kind = "letter"
)

// Kinds lists every artifact kind in collection-tab order.
var Kinds = []Kind{KindPoem, KindCard, KindLetter}

func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindPoem, KindCard, KindLetter:
		return k, nil
	default:
		return "", fmt.Errorf("poetry: unknown artifact kind %q", raw)
	}
}

// LetterKeyPrefix is the number of leading runes of a letter body that take
// part in its identity key.
const LetterKeyPrefix = 10

// Artifact is implemented by Poem, KeywordCard and PoetLetter only.
type Artifact interface {
	Kind() Kind
	// IdentityKey identifies "the same artifact" for deduplication within a kind.
	IdentityKey() string
	sealed()
}

// Poem is a fetched poem. Content holds one entry per line.
type Poem struct {
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Dynasty  string   `json:"dynasty"`
	Content  []string `json:"content"`
	Analysis string   `json:"analysis"`
	Context  string   `json:"context"`
	Language Language `json:"language,omitempty"`
}

func (Poem) Kind() Kind { return KindPoem }
func (p Poem) IdentityKey() string {
	return strings.TrimSpace(p.Title)
}
func (Poem) sealed() {}

// Clone returns a copy that shares no slices with p.
func (p Poem) Clone() Poem {
	p.Content = append([]string(nil), p.Content...)
	return p
}

// KeywordCard annotates one notable term of a poem.
type KeywordCard struct {
	Term                 string `json:"term"`
	Category             string `json:"category"`
	Description          string `json:"description"`
	CulturalSignificance string `json:"culturalSignificance"`
}

func (KeywordCard) Kind() Kind { return KindCard }
func (c KeywordCard) IdentityKey() string {
	return strings.TrimSpace(c.Term)
}
func (KeywordCard) sealed() {}

// PoetLetter is a short letter written in the voice of the poem's author.
type PoetLetter struct {
	Content string `json:"content"`
	Poet    string `json:"poet"`
	ReplyTo string `json:"replyTo"`
}

func (PoetLetter) Kind() Kind { return KindLetter }

// IdentityKey joins the poet with the first LetterKeyPrefix runes of the body.
func (l PoetLetter) IdentityKey() string {
	body := []rune(strings.TrimSpace(l.Content))
	if len(body) > LetterKeyPrefix {
		body = body[:LetterKeyPrefix]
	}
	return strings.TrimSpace(l.Poet) + "\x00" + string(body)
}
func (PoetLetter) sealed() {}

// CloneArtifact returns a deep copy of a, or nil for an unknown variant.
func CloneArtifact(a Artifact) Artifact {
	switch v := a.(type) {
	case Poem:
		return v.Clone()
	case *Poem:
		if v == nil {
			return nil
		}
		return v.Clone()
	case KeywordCard:
		return v
	case *KeywordCard:
		if v == nil {
			return nil
		}
		return *v
	case PoetLetter:
		return v
	case *PoetLetter:
		if v == nil {
			return nil
		}
		return *v
	default:
		return nil
	}
}
