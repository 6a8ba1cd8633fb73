package collection

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"shiyin/internal/poetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(opts ...Option) *Store {
	n := 0
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	return New(append([]Option{
		WithIDs(func() string { n++; return fmt.Sprintf("item-%d", n) }),
		WithClock(func() time.Time { return base.Add(time.Duration(n) * time.Minute) }),
	}, opts...)...)
}

var (
	quietNight = poetry.Poem{Title: "静夜思", Author: "李白", Dynasty: "唐", Content: []string{"床前明月光"}}
	moonCard   = poetry.KeywordCard{Term: "明月", Category: "物候"}
	liBaiNote  = poetry.PoetLetter{Content: "见字如面，我亦曾独酌月下。", Poet: "李白", ReplyTo: "独酌"}
)

func TestToggleIsAnInvolution(t *testing.T) {
	for _, a := range []poetry.Artifact{quietNight, moonCard, liBaiNote} {
		t.Run(string(a.Kind()), func(t *testing.T) {
			s := newTestStore()
			before := s.Len()
			require.False(t, s.IsCollected(a))

			res, err := s.Toggle(a, "", poetry.LanguageZH)
			require.NoError(t, err)
			assert.Equal(t, ActionAdded, res.Action)
			assert.Equal(t, a.Kind(), res.Item.Kind)
			assert.True(t, s.IsCollected(a))

			res, err = s.Toggle(a, "", poetry.LanguageZH)
			require.NoError(t, err)
			assert.Equal(t, ActionRemoved, res.Action)
			assert.False(t, s.IsCollected(a))
			assert.Equal(t, before, s.Len())
		})
	}
}

func TestNoDuplicateIdentities(t *testing.T) {
	s := newTestStore()
	count := func(a poetry.Artifact) int {
		n := 0
		for _, it := range s.List(a.Kind(), "") {
			if it.Data.IdentityKey() == a.IdentityKey() {
				n++
			}
		}
		return n
	}
	// Same identity, different non-key fields.
	variant := quietNight
	variant.Analysis = "another reading"

	for i := 1; i <= 5; i++ {
		a := poetry.Artifact(quietNight)
		if i%2 == 0 {
			a = variant
		}
		_, err := s.Toggle(a, "", poetry.LanguageZH)
		require.NoError(t, err)
		assert.Equal(t, i%2, count(quietNight), "after %d toggles", i)
	}
}

func TestIdentityIsScopedByKind(t *testing.T) {
	s := newTestStore()
	_, err := s.Toggle(poetry.Poem{Title: "明月"}, "", poetry.LanguageZH)
	require.NoError(t, err)
	assert.False(t, s.IsCollected(poetry.KeywordCard{Term: "明月"}))
}

func TestLetterPrefixIdentity(t *testing.T) {
	s := newTestStore()
	_, err := s.Toggle(liBaiNote, "", poetry.LanguageZH)
	require.NoError(t, err)

	samePrefix := liBaiNote
	samePrefix.Content = "见字如面，我亦曾独酌月下。其后种种，不复赘言。"
	assert.True(t, s.IsCollected(samePrefix))

	otherPoet := liBaiNote
	otherPoet.Poet = "杜甫"
	assert.False(t, s.IsCollected(otherPoet))
}

func TestListNewestFirstWithFilters(t *testing.T) {
	s := newTestStore()
	_, _ = s.Toggle(quietNight, "思乡", poetry.LanguageZH)
	_, _ = s.Toggle(moonCard, "", poetry.LanguageZH)
	_, _ = s.Toggle(poetry.Poem{Title: "Spring View", Content: []string{"x"}}, "", poetry.LanguageEN)

	ids := func(items []Item) []string {
		out := make([]string, 0, len(items))
		for _, it := range items {
			out = append(out, it.ID)
		}
		return out
	}
	assert.Equal(t, []string{"item-3", "item-2", "item-1"}, ids(s.List("", "")))
	assert.Equal(t, []string{"item-3", "item-1"}, ids(s.List(poetry.KindPoem, "")))
	assert.Equal(t, []string{"item-1"}, ids(s.List(poetry.KindPoem, poetry.LanguageZH)))
	assert.Empty(t, s.List(poetry.KindLetter, ""))

	it, ok := s.Get("item-1")
	require.True(t, ok)
	assert.Equal(t, "思乡", it.SourcePrompt)
	p, ok := it.Data.(poetry.Poem)
	require.True(t, ok)
	assert.Equal(t, "静夜思", p.Title)
}

func TestListReturnsDetachedCopies(t *testing.T) {
	s := newTestStore()
	_, _ = s.Toggle(quietNight, "", poetry.LanguageZH)

	items := s.List(poetry.KindPoem, "")
	p, _ := items[0].Data.(poetry.Poem)
	p.Content[0] = "mutated"

	again, _ := s.List(poetry.KindPoem, "")[0].Data.(poetry.Poem)
	assert.Equal(t, "床前明月光", again.Content[0])
}

func TestExportImportRoundTripThroughJSON(t *testing.T) {
	s := newTestStore()
	_, _ = s.Toggle(quietNight, "思乡", poetry.LanguageZH)
	_, _ = s.Toggle(moonCard, "", poetry.LanguageZH)
	_, _ = s.Toggle(liBaiNote, "", poetry.LanguageZH)

	b, err := json.Marshal(s.Export())
	require.NoError(t, err)
	assert.Contains(t, string(b), `"type":"letter"`)

	var decoded []Item
	require.NoError(t, json.Unmarshal(b, &decoded))

	restored := New()
	require.NoError(t, restored.Import(decoded))
	if diff := cmp.Diff(s.Export(), restored.Export()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, restored.IsCollected(liBaiNote))
}

func TestImportRejectsMismatchedKindAndDropsDuplicates(t *testing.T) {
	s := newTestStore()
	err := s.Import([]Item{{ID: "x", Kind: poetry.KindCard, Data: quietNight}})
	assert.ErrorIs(t, err, ErrUnknownKind)

	require.NoError(t, s.Import([]Item{
		{ID: "a", Kind: poetry.KindPoem, Data: quietNight},
		{ID: "b", Kind: poetry.KindPoem, Data: quietNight},
		{Kind: poetry.KindCard, Data: &moonCard},
	}))
	assert.Equal(t, 2, s.Len())
	_, ok := s.Get("b")
	assert.False(t, ok)
	card := s.List(poetry.KindCard, "")[0]
	assert.NotEmpty(t, card.ID)
	assert.Equal(t, poetry.DefaultLanguage, card.Language)
}

func TestUnmarshalUnknownType(t *testing.T) {
	var it Item
	err := json.Unmarshal([]byte(`{"id":"1","type":"haiku","data":{}}`), &it)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestOnChangeSeesEveryToggle(t *testing.T) {
	var seen [][]Item
	s := newTestStore(WithOnChange(func(items []Item) { seen = append(seen, items) }))
	_, _ = s.Toggle(quietNight, "", poetry.LanguageZH)
	_, _ = s.Toggle(quietNight, "", poetry.LanguageZH)
	require.Len(t, seen, 2)
	assert.Len(t, seen[0], 1)
	assert.Empty(t, seen[1])

	require.NoError(t, s.Import(nil))
	assert.Len(t, seen, 2)
}

func TestToggleRejectsNil(t *testing.T) {
	_, err := New().Toggle(nil, "", poetry.LanguageZH)
	assert.ErrorIs(t, err, ErrUnknownKind)
	var nilPoem *poetry.Poem
	assert.False(t, New().IsCollected(nilPoem))
}
