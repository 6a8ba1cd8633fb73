package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"shiyin/internal/collection"
	collectionrepo "shiyin/internal/gateway/repository/collection"
	"shiyin/internal/generation"
	llmclient "shiyin/internal/llmClient"
	"shiyin/internal/navigation"
	"shiyin/internal/orchestrator"
	"shiyin/internal/poetry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingRepo wraps a memory store and records saves.
type countingRepo struct {
	*collectionrepo.MemoryStore
	mu      sync.Mutex
	saves   int
	loadErr error
}

func (r *countingRepo) Load(ctx context.Context, owner string) ([]collection.Item, error) {
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return r.MemoryStore.Load(ctx, owner)
}

func (r *countingRepo) Save(ctx context.Context, owner string, items []collection.Item) error {
	r.mu.Lock()
	r.saves++
	r.mu.Unlock()
	return r.MemoryStore.Save(ctx, owner, items)
}

func (r *countingRepo) saved(t *testing.T, owner string) []collection.Item {
	t.Helper()
	items, err := r.MemoryStore.Load(context.Background(), owner)
	if errors.Is(err, collectionrepo.ErrNotFound) {
		return nil
	}
	require.NoError(t, err)
	return items
}

func newTestManager(t *testing.T, max int) (*Manager, *countingRepo) {
	t.Helper()
	repo := &countingRepo{MemoryStore: collectionrepo.NewMemoryStore()}
	m, err := NewManager(generation.New(llmclient.NewFakeClient()), repo, Config{
		MaxSessions: max,
		Orchestrator: orchestrator.Config{
			StartAt:     navigation.Home,
			PacingDelay: -1,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, repo
}

func TestCreateHydratesSavedCollection(t *testing.T) {
	m, repo := newTestManager(t, 4)
	saved := []collection.Item{{
		ID:        "old-1",
		Kind:      poetry.KindCard,
		Data:      poetry.KeywordCard{Term: "明月", Category: "物候"},
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Language:  poetry.LanguageZH,
	}}
	require.NoError(t, repo.MemoryStore.Save(context.Background(), "reader-1", saved))

	s, err := m.Create(context.Background(), "reader-1", poetry.LanguageZH)
	require.NoError(t, err)
	items := s.List("", "")
	require.Len(t, items, 1)
	assert.Equal(t, "old-1", items[0].ID)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestCreateAnonymousOwner(t *testing.T) {
	m, _ := newTestManager(t, 4)
	s, err := m.Create(context.Background(), "  ", "fr")
	require.NoError(t, err)
	assert.NotEmpty(t, s.Owner)
	assert.NotEqual(t, s.ID, s.Owner)
	assert.Equal(t, poetry.DefaultLanguage, s.Language)
}

func TestCreateSurfacesRepositoryErrors(t *testing.T) {
	m, repo := newTestManager(t, 4)
	repo.loadErr = errors.New("disk on fire")
	_, err := m.Create(context.Background(), "reader-1", poetry.LanguageZH)
	require.Error(t, err)
	assert.Zero(t, m.Len())

	repo.loadErr = nil
	_, err = m.Create(context.Background(), "../escape", poetry.LanguageZH)
	assert.ErrorIs(t, err, collectionrepo.ErrInvalidOwner)
}

func TestToggleIsPersisted(t *testing.T) {
	m, repo := newTestManager(t, 4)
	ctx := context.Background()
	s, err := m.Create(ctx, "reader-1", poetry.LanguageZH)
	require.NoError(t, err)

	st, err := s.Dispatch(ctx, Intent{Type: IntentSearch, Mood: "思乡"})
	require.NoError(t, err)
	require.NotNil(t, st.Poem)
	assert.Equal(t, navigation.PoemDisplay, st.Screen)

	st, err = s.Dispatch(ctx, Intent{Type: IntentTogglePoem})
	require.NoError(t, err)
	assert.True(t, st.PoemCollected)

	require.Eventually(t, func() bool { return len(repo.saved(t, "reader-1")) == 1 },
		time.Second, 5*time.Millisecond)
	item := repo.saved(t, "reader-1")[0]
	assert.Equal(t, poetry.KindPoem, item.Kind)
	assert.Equal(t, "思乡", item.SourcePrompt)
}

func TestCloseFlushesPendingSave(t *testing.T) {
	m, repo := newTestManager(t, 4)
	ctx := context.Background()
	s, err := m.Create(ctx, "reader-1", poetry.LanguageZH)
	require.NoError(t, err)
	_, err = s.Dispatch(ctx, Intent{Type: IntentRandom})
	require.NoError(t, err)
	_, err = s.Dispatch(ctx, Intent{Type: IntentOpenCards})
	require.NoError(t, err)
	_, err = s.Dispatch(ctx, Intent{Type: IntentToggleCard, Term: "明月"})
	require.NoError(t, err)

	require.NoError(t, m.Close())
	items := repo.saved(t, "reader-1")
	require.Len(t, items, 1)
	assert.Equal(t, poetry.KindCard, items[0].Kind)

	_, err = m.Create(ctx, "reader-2", poetry.LanguageZH)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEvictionClosesOrchestrator(t *testing.T) {
	m, _ := newTestManager(t, 1)
	ctx := context.Background()
	first, err := m.Create(ctx, "reader-1", poetry.LanguageZH)
	require.NoError(t, err)
	second, err := m.Create(ctx, "reader-2", poetry.LanguageEN)
	require.NoError(t, err)

	_, err = m.Get(first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = first.Dispatch(ctx, Intent{Type: IntentGoHome})
	assert.ErrorIs(t, err, orchestrator.ErrClosed)

	_, err = second.Dispatch(ctx, Intent{Type: IntentGoHome})
	assert.NoError(t, err)
	assert.Equal(t, 1, m.Len())
}

func TestDelete(t *testing.T) {
	m, _ := newTestManager(t, 4)
	s, err := m.Create(context.Background(), "reader-1", poetry.LanguageZH)
	require.NoError(t, err)
	require.NoError(t, m.Delete(s.ID))
	assert.ErrorIs(t, m.Delete(s.ID), ErrNotFound)
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImportSchedulesSave(t *testing.T) {
	m, repo := newTestManager(t, 4)
	s, err := m.Create(context.Background(), "reader-1", poetry.LanguageZH)
	require.NoError(t, err)

	_, err = s.Import([]collection.Item{
		{Kind: poetry.KindLetter, Data: poetry.PoetLetter{Content: "见字如面", Poet: "李白"}},
		{Kind: poetry.KindLetter, Data: poetry.PoetLetter{Content: "见字如面", Poet: "李白"}},
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(repo.saved(t, "reader-1")) == 1 },
		time.Second, 5*time.Millisecond)
	assert.NotEmpty(t, repo.saved(t, "reader-1")[0].ID)
}

func TestIntentValidation(t *testing.T) {
	m, _ := newTestManager(t, 4)
	s, err := m.Create(context.Background(), "reader-1", poetry.LanguageZH)
	require.NoError(t, err)

	bad := []Intent{
		{},
		{Type: "dance"},
		{Type: IntentSetLanguage},
		{Type: IntentSetLanguage, Language: "fr"},
		{Type: IntentToggleCard},
		{Type: IntentSelectTab},
		{Type: IntentSelectTab, Tab: "scrolls"},
		{Type: IntentViewItem},
	}
	for _, in := range bad {
		_, err := s.Dispatch(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidIntent, in.Type)
	}
}

func TestDispatchNavigationAndLanguage(t *testing.T) {
	m, _ := newTestManager(t, 4)
	ctx := context.Background()
	s, err := m.Create(ctx, "reader-1", poetry.LanguageZH)
	require.NoError(t, err)

	st, err := s.Dispatch(ctx, Intent{Type: IntentSetLanguage, Language: "EN"})
	require.NoError(t, err)
	assert.Equal(t, poetry.LanguageEN, st.Language)

	st, err = s.Dispatch(ctx, Intent{Type: IntentOpenCollection})
	require.NoError(t, err)
	assert.Equal(t, navigation.Collection, st.Screen)

	st, err = s.Dispatch(ctx, Intent{Type: IntentSelectTab, Tab: "letter"})
	require.NoError(t, err)
	assert.Equal(t, poetry.KindLetter, st.CollectionTab)

	st, err = s.Dispatch(ctx, Intent{Type: IntentBack})
	require.NoError(t, err)
	assert.Equal(t, navigation.Home, st.Screen)

	_, err = s.Dispatch(ctx, Intent{Type: IntentViewItem, ID: "missing"})
	assert.ErrorIs(t, err, orchestrator.ErrItemNotFound)
}
