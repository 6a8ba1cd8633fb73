// Package session owns one orchestrator per client session, hydrates its
// collection from the configured repository and writes it back on change.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"shiyin/internal/collection"
	collectionrepo "shiyin/internal/gateway/repository/collection"
	"shiyin/internal/generation"
	"shiyin/internal/orchestrator"
	"shiyin/internal/poetry"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrClosed   = errors.New("session manager closed")
)

const (
	DefaultMaxSessions = 1024
	DefaultSaveTimeout = 10 * time.Second
)

type Config struct {
	MaxSessions int
	SaveTimeout time.Duration
	// Orchestrator is the template for every session; Language is
	// overridden per session.
	Orchestrator orchestrator.Config
	Logger       *zap.Logger
}

type Manager struct {
	gen  generation.Generator
	repo collectionrepo.Store
	cfg  Config
	log  *zap.Logger

	mu       sync.Mutex
	sessions *lru.Cache[string, *Session]
	closed   bool
	wg       sync.WaitGroup
}

func NewManager(gen generation.Generator, repo collectionrepo.Store, cfg Config) (*Manager, error) {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = DefaultSaveTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if repo == nil {
		repo = collectionrepo.NewMemoryStore()
	}
	m := &Manager{gen: gen, repo: repo, cfg: cfg, log: cfg.Logger}
	cache, err := lru.NewWithEvict[string, *Session](cfg.MaxSessions, func(id string, s *Session) {
		m.log.Info("session closed", zap.String("session_id", id), zap.String("owner", s.Owner))
		s.close()
	})
	if err != nil {
		return nil, fmt.Errorf("session table: %w", err)
	}
	m.sessions = cache
	return m, nil
}

// Create starts a session for owner, loading the owner's saved collection.
// A blank owner gets a fresh anonymous id.
func (m *Manager) Create(ctx context.Context, owner string, lang poetry.Language) (*Session, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		owner = uuid.NewString()
	}
	items, err := m.repo.Load(ctx, owner)
	if err != nil && !errors.Is(err, collectionrepo.ErrNotFound) {
		return nil, fmt.Errorf("load collection for %s: %w", owner, err)
	}

	s := &Session{
		ID:        uuid.NewString(),
		Owner:     owner,
		Language:  lang.Normalize(),
		CreatedAt: time.Now(),
		dirty:     make(chan struct{}, 1),
		done:      make(chan struct{}),
		repo:      m.repo,
		timeout:   m.cfg.SaveTimeout,
		log:       m.log.With(zap.String("owner", owner)),
	}
	store := collection.New(collection.WithOnChange(s.markDirty))
	if err := store.Import(items); err != nil {
		return nil, fmt.Errorf("import collection for %s: %w", owner, err)
	}
	ocfg := m.cfg.Orchestrator
	ocfg.Language = s.Language
	ocfg.Logger = s.log.With(zap.String("session_id", s.ID))
	s.orch = orchestrator.New(m.gen, store, ocfg)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		_ = s.orch.Close()
		return nil, ErrClosed
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.persistLoop()
	}()
	m.sessions.Add(s.ID, s)
	m.log.Info("session created",
		zap.String("session_id", s.ID),
		zap.String("owner", owner),
		zap.String("language", string(s.Language)),
		zap.Int("items", len(items)))
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.sessions.Get(strings.TrimSpace(id))
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete ends a session; its last collection snapshot is still saved.
func (m *Manager) Delete(id string) error {
	if !m.sessions.Remove(strings.TrimSpace(id)) {
		return ErrNotFound
	}
	return nil
}

func (m *Manager) Len() int { return m.sessions.Len() }

// Close ends every session and waits for pending saves.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	m.sessions.Purge()
	m.wg.Wait()
	return nil
}
