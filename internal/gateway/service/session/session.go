package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"shiyin/internal/collection"
	collectionrepo "shiyin/internal/gateway/repository/collection"
	"shiyin/internal/orchestrator"
	"shiyin/internal/poetry"
)

// Session binds one orchestrator to the owner whose collection it edits.
type Session struct {
	ID        string
	Owner     string
	Language  poetry.Language
	CreatedAt time.Time

	orch *orchestrator.Orchestrator

	// dirty is signalled when the collection changed since the last save.
	dirty     chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	repo    collectionrepo.Store
	timeout time.Duration
	log     *zap.Logger
}

func (s *Session) Snapshot() orchestrator.State { return s.orch.Snapshot() }

func (s *Session) Subscribe(ctx context.Context) <-chan orchestrator.State {
	return s.orch.Subscribe(ctx)
}

// List returns collected items, newest first. Empty kind or language means
// no filter.
func (s *Session) List(kind poetry.Kind, lang poetry.Language) []collection.Item {
	return s.orch.Collection().List(kind, lang)
}

func (s *Session) Export() []collection.Item {
	return s.orch.Collection().Export()
}

// Import replaces the collection with items and schedules a save.
func (s *Session) Import(items []collection.Item) (orchestrator.State, error) {
	store := s.orch.Collection()
	if err := store.Import(items); err != nil {
		return orchestrator.State{}, err
	}
	s.markDirty(nil)
	return s.orch.Snapshot(), nil
}

// markDirty schedules a save of the whole collection. It never blocks: it
// runs inside the collection's change hook, under the orchestrator lock.
func (s *Session) markDirty([]collection.Item) {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// persistLoop saves the current collection whenever it is marked dirty, and
// once more on close if a change is still pending.
func (s *Session) persistLoop() {
	for {
		select {
		case <-s.dirty:
			s.save()
		case <-s.done:
			select {
			case <-s.dirty:
				s.save()
			default:
			}
			return
		}
	}
}

func (s *Session) save() {
	items := s.orch.Collection().Export()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	start := time.Now()
	if err := s.repo.Save(ctx, s.Owner, items); err != nil {
		s.log.Error("save collection failed", zap.Int("items", len(items)), zap.Error(err))
		return
	}
	s.log.Debug("collection saved", zap.Int("items", len(items)), zap.Duration("latency", time.Since(start)))
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		_ = s.orch.Close()
		close(s.done)
	})
}
