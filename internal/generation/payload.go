package generation

import (
	"strings"

	llmclient "shiyin/internal/llmClient"
	"shiyin/internal/poetry"
)

// Response payloads as the model is asked to produce them. The validate
// tags are the shape guarantee handed to callers; they are checked on the
// trimmed payload, so whitespace never satisfies required.

type poemPayload struct {
	Title    string   `json:"title" jsonschema:"required" validate:"required"`
	Author   string   `json:"author" jsonschema:"required" validate:"required"`
	Dynasty  string   `json:"dynasty" jsonschema:"required" validate:"required"`
	Content  []string `json:"content" jsonschema:"required" jsonschema_description:"The poem lines in order. One entry per line." validate:"min=1,dive,required"`
	Analysis string   `json:"analysis" jsonschema:"required" jsonschema_description:"Why this poem matches the reader's feeling." validate:"required"`
	Context  string   `json:"context" jsonschema:"required" jsonschema_description:"Brief historical context of the poem." validate:"required"`
}

// trimmed drops surrounding whitespace and blank lines.
func (p poemPayload) trimmed() poemPayload {
	lines := make([]string, 0, len(p.Content))
	for _, l := range p.Content {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return poemPayload{
		Title:    strings.TrimSpace(p.Title),
		Author:   strings.TrimSpace(p.Author),
		Dynasty:  strings.TrimSpace(p.Dynasty),
		Content:  lines,
		Analysis: strings.TrimSpace(p.Analysis),
		Context:  strings.TrimSpace(p.Context),
	}
}

func (p poemPayload) toPoem(lang poetry.Language) poetry.Poem {
	return poetry.Poem{
		Title:    p.Title,
		Author:   p.Author,
		Dynasty:  p.Dynasty,
		Content:  p.Content,
		Analysis: p.Analysis,
		Context:  p.Context,
		Language: lang,
	}
}

type cardPayload struct {
	Term                 string `json:"term" jsonschema:"required" jsonschema_description:"A keyword quoted from the poem." validate:"required"`
	Category             string `json:"category" jsonschema:"required" validate:"required"`
	Description          string `json:"description" jsonschema:"required" jsonschema_description:"Literal meaning in the context of the poem." validate:"required"`
	CulturalSignificance string `json:"culturalSignificance" jsonschema:"required" jsonschema_description:"Symbolic meaning in the culture." validate:"required"`
}

func (p cardPayload) trimmed() cardPayload {
	return cardPayload{
		Term:                 strings.TrimSpace(p.Term),
		Category:             strings.TrimSpace(p.Category),
		Description:          strings.TrimSpace(p.Description),
		CulturalSignificance: strings.TrimSpace(p.CulturalSignificance),
	}
}

type cardsPayload struct {
	Cards []cardPayload `json:"cards" jsonschema:"required"`
}

type letterPayload struct {
	Content string `json:"content" jsonschema:"required" jsonschema_description:"The body of the letter from the poet." validate:"required"`
	Poet    string `json:"poet" jsonschema:"required"`
	ReplyTo string `json:"replyTo" jsonschema:"required"`
}

func (p letterPayload) trimmed() letterPayload {
	return letterPayload{
		Content: strings.TrimSpace(p.Content),
		Poet:    strings.TrimSpace(p.Poet),
		ReplyTo: strings.TrimSpace(p.ReplyTo),
	}
}

func poemSchema() map[string]any { return llmclient.GenerateSchema[poemPayload]() }

func letterSchema() map[string]any { return llmclient.GenerateSchema[letterPayload]() }

// cardsSchema pins the category enum to the locale taxonomy.
func cardsSchema(loc poetry.Locale) map[string]any {
	schema := llmclient.GenerateSchema[cardsPayload]()
	props, _ := schema["properties"].(map[string]any)
	cards, _ := props["cards"].(map[string]any)
	items, _ := cards["items"].(map[string]any)
	itemProps, _ := items["properties"].(map[string]any)
	if category, ok := itemProps["category"].(map[string]any); ok {
		enum := make([]any, 0, len(loc.Categories))
		for _, c := range loc.Categories {
			enum = append(enum, c)
		}
		category["enum"] = enum
	}
	return schema
}
