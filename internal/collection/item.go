package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shiyin/internal/poetry"
)

// ErrUnknownKind is returned when an item carries no recognised artifact.
var ErrUnknownKind = errors.New("collection: unknown artifact kind")

// Item is one collected artifact. Items are never mutated in place.
type Item struct {
	ID           string          `json:"id"`
	Kind         poetry.Kind     `json:"type"`
	Data         poetry.Artifact `json:"data"`
	CreatedAt    time.Time       `json:"createdAt"`
	SourcePrompt string          `json:"sourcePrompt,omitempty"`
	Language     poetry.Language `json:"language"`
}

func (it Item) clone() Item {
	it.Data = poetry.CloneArtifact(it.Data)
	return it
}

type itemJSON struct {
	ID           string          `json:"id"`
	Kind         poetry.Kind     `json:"type"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"createdAt"`
	SourcePrompt string          `json:"sourcePrompt,omitempty"`
	Language     poetry.Language `json:"language"`
}

func (it *Item) UnmarshalJSON(b []byte) error {
	var raw itemJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	data, err := decodeArtifact(raw.Kind, raw.Data)
	if err != nil {
		return err
	}
	*it = Item{
		ID:           raw.ID,
		Kind:         raw.Kind,
		Data:         data,
		CreatedAt:    raw.CreatedAt,
		SourcePrompt: raw.SourcePrompt,
		Language:     raw.Language,
	}
	return nil
}

func decodeArtifact(kind poetry.Kind, data json.RawMessage) (poetry.Artifact, error) {
	switch kind {
	case poetry.KindPoem:
		var p poetry.Poem
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode poem: %w", err)
		}
		return p, nil
	case poetry.KindCard:
		var c poetry.KeywordCard
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decode card: %w", err)
		}
		return c, nil
	case poetry.KindLetter:
		var l poetry.PoetLetter
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("decode letter: %w", err)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
