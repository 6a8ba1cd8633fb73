// Package collection keeps the session scrapbook: a deduplicated, ordered
// set of collected poems, cards and letters. Toggle is the only mutation.
package collection

import (
	"fmt"
	"sync"
	"time"

	"shiyin/internal/poetry"

	"github.com/google/uuid"
)

type Action string

const (
	ActionAdded   Action = "added"
	ActionRemoved Action = "removed"
)

// ToggleResult reports what Toggle did. Item is the added or removed item.
type ToggleResult struct {
	Action Action `json:"action"`
	Item   Item   `json:"item"`
}

// Store is safe for concurrent use. Items are kept in insertion order.
type Store struct {
	mu       sync.RWMutex
	notifyMu sync.Mutex // keeps onChange calls in mutation order
	items    []Item
	now      func() time.Time
	newID    func() string
	onChange func([]Item)
}

type Option func(*Store)

// WithClock overrides time.Now for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs overrides the item id generator.
func WithIDs(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithOnChange registers fn to receive the full item list after every
// toggle. fn runs outside the store lock.
func WithOnChange(fn func([]Item)) Option {
	return func(s *Store) { s.onChange = fn }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:   time.Now,
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Toggle removes the item matching a's identity within its kind, or adds a
// new one when none matches.
func (s *Store) Toggle(a poetry.Artifact, sourcePrompt string, lang poetry.Language) (ToggleResult, error) {
	a = poetry.CloneArtifact(a)
	if a == nil {
		return ToggleResult{}, ErrUnknownKind
	}

	s.mu.Lock()
	var res ToggleResult
	if i := s.indexLocked(a); i >= 0 {
		res = ToggleResult{Action: ActionRemoved, Item: s.items[i]}
		s.items = append(s.items[:i:i], s.items[i+1:]...)
	} else {
		it := Item{
			ID:           s.newID(),
			Kind:         a.Kind(),
			Data:         a,
			CreatedAt:    s.now(),
			SourcePrompt: sourcePrompt,
			Language:     lang.Normalize(),
		}
		s.items = append(s.items, it)
		res = ToggleResult{Action: ActionAdded, Item: it}
	}
	snapshot := s.exportLocked()
	fn := s.onChange
	s.notifyMu.Lock()
	s.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
	s.notifyMu.Unlock()
	res.Item = res.Item.clone()
	return res, nil
}

// IsCollected reports whether an item with a's identity exists for its kind.
func (s *Store) IsCollected(a poetry.Artifact) bool {
	if a = poetry.CloneArtifact(a); a == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(a) >= 0
}

func (s *Store) indexLocked(a poetry.Artifact) int {
	kind, key := a.Kind(), a.IdentityKey()
	for i, it := range s.items {
		if it.Kind == kind && it.Data.IdentityKey() == key {
			return i
		}
	}
	return -1
}

// List returns matching items, most recent first. Empty filters match all.
func (s *Store) List(kind poetry.Kind, lang poetry.Language) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, 0, len(s.items))
	for i := len(s.items) - 1; i >= 0; i-- {
		it := s.items[i]
		if kind != "" && it.Kind != kind {
			continue
		}
		if lang != "" && it.Language != lang {
			continue
		}
		out = append(out, it.clone())
	}
	return out
}

// Get looks an item up by id.
func (s *Store) Get(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.ID == id {
			return it.clone(), true
		}
	}
	return Item{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Export returns every item in insertion order.
func (s *Store) Export() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exportLocked()
}

func (s *Store) exportLocked() []Item {
	out := make([]Item, len(s.items))
	for i, it := range s.items {
		out[i] = it.clone()
	}
	return out
}

// Import replaces the contents with items, e.g. when hydrating a session
// from durable storage. Later duplicates of an identity are dropped. The
// change hook is not called.
func (s *Store) Import(items []Item) error {
	next := make([]Item, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, it := range items {
		it.Data = poetry.CloneArtifact(it.Data)
		if it.Data == nil || it.Data.Kind() != it.Kind {
			return fmt.Errorf("import item %d (%s): %w", i, it.ID, ErrUnknownKind)
		}
		key := string(it.Kind) + "\x00" + it.Data.IdentityKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if it.ID == "" {
			it.ID = s.newID()
		}
		it.Language = it.Language.Normalize()
		next = append(next, it)
	}
	s.mu.Lock()
	s.items = next
	s.mu.Unlock()
	return nil
}
