package generation

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"shiyin/internal/llm"
	llmclient "shiyin/internal/llmClient"
	"shiyin/internal/poetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	phase  string
	spec   llmclient.ResponseSpec
	prompt string
	input  map[string]any
}

// fakeLLM replies with raw (or err) and records every call.
type fakeLLM struct {
	mu    sync.Mutex
	raw   string
	err   error
	calls []call
}

func (f *fakeLLM) Name() string { return "fake" }
func (f *fakeLLM) Close() error { return nil }
func (f *fakeLLM) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	spec, _ := llmclient.ResponseSpecFrom(ctx)
	in, _ := input.(map[string]any)
	f.mu.Lock()
	f.calls = append(f.calls, call{phase: llm.PhaseFrom(ctx), spec: spec, prompt: prompt, input: in})
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.raw), nil
}

func (f *fakeLLM) last(t *testing.T) call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func TestFailureYieldsWellFormedFallbacks(t *testing.T) {
	for _, lang := range []poetry.Language{poetry.LanguageZH, poetry.LanguageEN} {
		t.Run(string(lang), func(t *testing.T) {
			c := New(&fakeLLM{err: errors.New("unreachable")})
			ctx := context.Background()

			poem, err := c.RecommendPoem(ctx, "rain", lang)
			require.NoError(t, err)
			assert.NotEmpty(t, poem.Title)
			assert.NotEmpty(t, poem.Author)
			assert.NotEmpty(t, poem.Dynasty)
			assert.NotEmpty(t, poem.Content)
			assert.NotEmpty(t, poem.Analysis)
			assert.NotEmpty(t, poem.Context)

			cards, err := c.AnalyzePoemKeywords(ctx, poem, lang)
			require.NoError(t, err)
			assert.NotNil(t, cards)
			assert.Empty(t, cards)

			src := poetry.Poem{Title: "春望", Author: "杜甫"}
			letter, err := c.GeneratePoetLetter(ctx, src, "思乡", lang)
			require.NoError(t, err)
			assert.Equal(t, "杜甫", letter.Poet)
			assert.Equal(t, "思乡", letter.ReplyTo)
			assert.NotEmpty(t, letter.Content)
		})
	}
}

func TestMalformedRepliesAreAbsorbed(t *testing.T) {
	c := New(&fakeLLM{raw: `{"title":"only a title"}`})
	poem, err := c.RecommendPoem(context.Background(), "rain", poetry.LanguageZH)
	require.NoError(t, err)
	assert.Equal(t, poetry.LocaleFor(poetry.LanguageZH).FallbackPoem, poem)

	c = New(&fakeLLM{raw: `not json`})
	cards, err := c.AnalyzePoemKeywords(context.Background(), poem, poetry.LanguageZH)
	require.NoError(t, err)
	assert.Equal(t, []poetry.KeywordCard{}, cards)
}

func TestRecommendPoemUsesSpecAndCoinFlip(t *testing.T) {
	f := &fakeLLM{raw: "```json\n" + `{"title":" 春晓 ","author":"孟浩然","dynasty":"唐","content":["春眠不觉晓"," ","处处闻啼鸟"],"analysis":"a","context":"c"}` + "\n```"}

	c := New(f, WithRand(func() float64 { return 0.1 }))
	poem, err := c.RecommendPoem(context.Background(), " 春日 ", poetry.LanguageZH)
	require.NoError(t, err)
	assert.Equal(t, "春晓", poem.Title)
	assert.Equal(t, []string{"春眠不觉晓", "处处闻啼鸟"}, poem.Content)
	assert.Equal(t, poetry.LanguageZH, poem.Language)

	got := f.last(t)
	assert.Equal(t, PhasePoem, got.phase)
	assert.Equal(t, llmclient.SpecPoem, got.spec.Name)
	require.NotNil(t, got.spec.Temperature)
	assert.Equal(t, float32(1.0), *got.spec.Temperature)
	assert.Equal(t, "shi", got.input["form"])
	assert.Equal(t, "春日", got.input["mood"])
	assert.Contains(t, got.prompt, "[LANGUAGE]\nChinese")

	c = New(f, WithRand(func() float64 { return 0.9 }))
	_, err = c.RecommendPoem(context.Background(), "spring", poetry.LanguageEN)
	require.NoError(t, err)
	assert.Equal(t, "ci", f.last(t).input["form"])
	assert.Contains(t, f.last(t).prompt, "[LANGUAGE]\nEnglish")
}

func TestAnalyzeFiltersCategoriesAndCaps(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"cards":[`)
	b.WriteString(`{"term":"明月","category":"物候","description":"d","culturalSignificance":"s"},`)
	b.WriteString(`{"term":"离愁","category":"情感","description":"d","culturalSignificance":"s"},`)
	b.WriteString(`{"term":"明月","category":"物候","description":"dup","culturalSignificance":"s"},`)
	b.WriteString(`{"term":"","category":"地理","description":"d","culturalSignificance":"s"},`)
	for _, term := range []string{"长安", "黄河", "重阳", "江南", "塞北"} {
		b.WriteString(`{"term":"` + term + `","category":"地理","description":"d","culturalSignificance":"s"},`)
	}
	raw := strings.TrimSuffix(b.String(), ",") + `]}`

	f := &fakeLLM{raw: raw}
	cards, err := New(f).AnalyzePoemKeywords(context.Background(), poetry.Poem{Title: "t"}, poetry.LanguageZH)
	require.NoError(t, err)
	require.Len(t, cards, MaxCards)
	terms := make([]string, 0, len(cards))
	for _, c := range cards {
		terms = append(terms, c.Term)
		assert.True(t, poetry.LocaleFor(poetry.LanguageZH).HasCategory(c.Category))
	}
	assert.Equal(t, []string{"明月", "长安", "黄河", "重阳", "江南"}, terms)

	enum := f.last(t).spec.Schema["properties"].(map[string]any)["cards"].(map[string]any)["items"].(map[string]any)["properties"].(map[string]any)["category"].(map[string]any)["enum"]
	assert.Equal(t, []any{"地理", "物候", "风土"}, enum)
}

func TestAnalyzeAcceptsBareArrayAndCanonicalizesCase(t *testing.T) {
	f := &fakeLLM{raw: `[{"term":"Moon","category":"phenology","description":"d","culturalSignificance":"s"}]`}
	cards, err := New(f).AnalyzePoemKeywords(context.Background(), poetry.Poem{Title: "t"}, poetry.LanguageEN)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "Phenology", cards[0].Category)
}

func TestLetterIsAttributedToPoemAuthor(t *testing.T) {
	f := &fakeLLM{raw: `{"content":"见字如面","poet":"someone else","replyTo":"x"}`}
	letter, err := New(f).GeneratePoetLetter(context.Background(), poetry.Poem{Author: "李白"}, "独酌", poetry.LanguageZH)
	require.NoError(t, err)
	assert.Equal(t, poetry.PoetLetter{Content: "见字如面", Poet: "李白", ReplyTo: "独酌"}, letter)
	assert.Equal(t, PhaseLetter, f.last(t).phase)
}

func TestBlankFieldsFailShapeCheck(t *testing.T) {
	zh := poetry.LocaleFor(poetry.LanguageZH)

	c := New(&fakeLLM{raw: `{"title":"   ","author":" ","dynasty":"唐","content":["床前明月光"],"analysis":"a","context":"c"}`})
	poem, err := c.RecommendPoem(context.Background(), "rain", poetry.LanguageZH)
	require.NoError(t, err)
	assert.Equal(t, zh.FallbackPoem, poem)

	c = New(&fakeLLM{raw: `{"title":"静夜思","author":"李白","dynasty":"唐","content":["  ","\t"],"analysis":"a","context":"c"}`})
	poem, err = c.RecommendPoem(context.Background(), "rain", poetry.LanguageZH)
	require.NoError(t, err)
	assert.Equal(t, zh.FallbackPoem, poem)

	c = New(&fakeLLM{raw: `{"content":"   ","poet":"李白","replyTo":"x"}`})
	letter, err := c.GeneratePoetLetter(context.Background(), poetry.Poem{Author: "李白"}, "独酌", poetry.LanguageZH)
	require.NoError(t, err)
	assert.Equal(t, zh.FallbackLetterBody, letter.Content)
	assert.Equal(t, "李白", letter.Poet)

	c = New(&fakeLLM{raw: `{"cards":[{"term":"  ","category":"地理","description":"d","culturalSignificance":"c"},{"term":"长安","category":"地理","description":" ","culturalSignificance":"c"},{"term":" 明月 ","category":" 物候 ","description":"d","culturalSignificance":"c"}]}`})
	cards, err := c.AnalyzePoemKeywords(context.Background(), poetry.Poem{Title: "t"}, poetry.LanguageZH)
	require.NoError(t, err)
	assert.Equal(t, []poetry.KeywordCard{{Term: "明月", Category: "物候", Description: "d", CulturalSignificance: "c"}}, cards)
}

func TestLetterFallsBackToModelPoetWhenAuthorBlank(t *testing.T) {
	f := &fakeLLM{raw: `{"content":"见字如面","poet":" 杜甫 ","replyTo":"x"}`}
	letter, err := New(f).GeneratePoetLetter(context.Background(), poetry.Poem{Author: "  "}, "独酌", poetry.LanguageZH)
	require.NoError(t, err)
	assert.Equal(t, "杜甫", letter.Poet)
}

func TestPromptRecorderSeesEveryPhase(t *testing.T) {
	dir := t.TempDir()
	rec, err := llm.NewPromptRecorder(dir, nil)
	require.NoError(t, err)
	c := New(llm.Wrap(llmclient.NewFakeClient(), llm.WithHooks()), WithPromptRecorder(rec))
	ctx := context.Background()

	poem, err := c.RecommendPoem(ctx, "登高", poetry.LanguageZH)
	require.NoError(t, err)
	_, err = c.AnalyzePoemKeywords(ctx, poem, poetry.LanguageZH)
	require.NoError(t, err)
	_, err = c.GeneratePoetLetter(ctx, poem, "登高", poetry.LanguageZH)
	require.NoError(t, err)

	for _, phase := range []string{PhasePoem, PhaseCards, PhaseLetter} {
		b, err := os.ReadFile(filepath.Join(dir, phase+".log"))
		require.NoError(t, err, phase)
		assert.Contains(t, string(b), "request ====", phase)
		assert.Contains(t, string(b), "response ====", phase)
	}
}

func TestCanceledContextIsReturned(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(&fakeLLM{err: context.Canceled})

	_, err := c.RecommendPoem(ctx, "rain", poetry.LanguageZH)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = c.AnalyzePoemKeywords(ctx, poetry.Poem{}, poetry.LanguageZH)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = c.GeneratePoetLetter(ctx, poetry.Poem{Author: "李白"}, "", poetry.LanguageZH)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithFakeProvider(t *testing.T) {
	c := New(llmclient.NewFakeClient())
	ctx := context.Background()

	poem, err := c.RecommendPoem(ctx, "登高", poetry.LanguageZH)
	require.NoError(t, err)
	assert.NotEmpty(t, poem.Content)

	cards, err := c.AnalyzePoemKeywords(ctx, poem, poetry.LanguageEN)
	require.NoError(t, err)
	assert.Len(t, cards, 3)

	letter, err := c.GeneratePoetLetter(ctx, poem, "", poetry.LanguageZH)
	require.NoError(t, err)
	assert.Equal(t, poem.Author, letter.Poet)
}

func TestPromptRequiresPurposeAndFields(t *testing.T) {
	_, err := promptSpec{}.render(nil, "Chinese")
	assert.Error(t, err)
	_, err = promptSpec{Purpose: "p"}.render(nil, "Chinese")
	assert.Error(t, err)

	out, err := poemPrompt.render(map[string]any{"mood": "雨"}, "Chinese")
	require.NoError(t, err)
	for _, sec := range []string{"[PURPOSE]", "[INPUT]", "[OUTPUT]", "[CONSTRAINTS]", "[RULES]", "[OUTPUT_FORMAT]"} {
		assert.Contains(t, out, sec)
	}
	assert.Contains(t, out, "Return strict JSON only.")
}
