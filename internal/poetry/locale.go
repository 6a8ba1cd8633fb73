package poetry

import (
	"fmt"
	"strings"
)

type Language string

const (
	LanguageZH Language = "zh"
	LanguageEN Language = "en"
)

// DefaultLanguage is used whenever a caller does not name a supported one.
const DefaultLanguage = LanguageZH

func ParseLanguage(raw string) (Language, error) {
	switch l := Language(strings.ToLower(strings.TrimSpace(raw))); l {
	case LanguageZH, LanguageEN:
		return l, nil
	case "":
		return DefaultLanguage, nil
	default:
		return "", fmt.Errorf("poetry: unsupported language %q", raw)
	}
}

// Normalize maps unknown values to DefaultLanguage.
func (l Language) Normalize() Language {
	if _, ok := locales[l]; ok {
		return l
	}
	return DefaultLanguage
}

// Locale is the per-language content table used by generation and the
// orchestrator. Nothing outside this table branches on the language.
type Locale struct {
	Language Language

	// Moods seeds the randomized poem flow.
	Moods []string
	// Categories is the closed keyword-card taxonomy for this language.
	Categories []string

	DefaultLetterContext string
	FallbackPoem         Poem
	FallbackLetterBody   string

	ToastCollected string
	ToastRemoved   string
	SearchFailed   string

	LoadingSearch   string
	LoadingRandom   string
	LoadingLetter   string
	LoadingAnalysis string
}

// LocaleFor returns the table for l, falling back to DefaultLanguage.
func LocaleFor(l Language) Locale {
	loc := locales[l.Normalize()]
	loc.Moods = append([]string(nil), loc.Moods...)
	loc.Categories = append([]string(nil), loc.Categories...)
	loc.FallbackPoem = loc.FallbackPoem.Clone()
	return loc
}

// HasCategory reports whether category belongs to the locale taxonomy.
func (l Locale) HasCategory(category string) bool {
	category = strings.TrimSpace(category)
	for _, c := range l.Categories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

var locales = map[Language]Locale{
	LanguageZH: {
		Language: LanguageZH,
		Moods: []string{
			"看着窗外的雨，心中有些许宁静",
			"登高望远，思念远方的故人",
			"春日迟迟，由于花开而感到喜悦",
			"月色如水，独自酌酒的豪情",
			"感叹时光流逝，往事如烟",
			"山林隐居，与世无争的闲适",
			"大漠孤烟，苍凉壮阔的感慨",
			"江南烟雨，温柔婉约的情思",
			"听闻古寺钟声，顿悟禅意",
			"雪夜围炉，与友畅谈的温暖",
			"落叶纷飞，对季节更替的感伤",
			"长河落日，天地辽阔的震撼",
		},
		Categories:           []string{"地理", "物候", "风土"},
		DefaultLetterContext: "我读到这首诗，心中若有所感",
		FallbackPoem: Poem{
			Title:    "静夜思",
			Author:   "李白",
			Dynasty:  "唐",
			Content:  []string{"床前明月光", "疑是地上霜", "举头望明月", "低头思故乡"},
			Analysis: "AI暂时无法连接，请稍后再试。",
			Context:  "游子思乡之作。",
			Language: LanguageZH,
		},
		FallbackLetterBody: "酒逢知己千杯少，话不投机半句多。今日微醺，暂且搁笔。",
		ToastCollected:     "已收藏至我的诗笺",
		ToastRemoved:       "已移出诗笺",
		SearchFailed:       "寻诗未果，请稍后再试。",
		LoadingSearch:      "寻访中...",
		LoadingRandom:      "神游太虚",
		LoadingLetter:      "鸿雁传书",
		LoadingAnalysis:    "正在描绘风月...",
	},
	LanguageEN: {
		Language: LanguageEN,
		Moods: []string{
			"Watching the rain, feeling a quiet peace",
			"Looking at the moon, missing someone far away",
			"Walking in the woods, feeling solitary but free",
			"Thinking about the passage of time and lost youth",
			"Feeling the overwhelming beauty of spring flowers",
			"A sense of melancholy as autumn leaves fall",
			"Standing by the ocean, feeling small against the vastness",
			"Remembering a lost love with a bittersweet smile",
			"Finding joy in a simple, quiet moment at home",
			"The determination to face a difficult journey",
			"A sudden burst of hope after a long winter",
			"Contemplating the mysteries of the universe under the stars",
		},
		Categories:           []string{"Geography", "Phenology", "Customs"},
		DefaultLetterContext: "I read this poem and something in me stirred",
		FallbackPoem: Poem{
			Title:   "Quiet Night Thought",
			Author:  "Li Bai",
			Dynasty: "Tang",
			Content: []string{
				"Before my bed, the bright moonlight",
				"I wonder if it is frost upon the ground",
				"I raise my head to gaze at the bright moon",
				"I lower it and think of home",
			},
			Analysis: "The muse cannot be reached right now. Please try again later.",
			Context:  "Written by a wanderer longing for home.",
			Language: LanguageEN,
		},
		FallbackLetterBody: "With a true friend a thousand cups are too few; tonight the wine has gone to my head, so I set down my brush for now.",
		ToastCollected:     "Saved to Collection",
		ToastRemoved:       "Removed from Collection",
		SearchFailed:       "Failed to find a poem. Please try again.",
		LoadingSearch:      "Seeking Muse...",
		LoadingRandom:      "Wandering Thoughts",
		LoadingLetter:      "The Poet Writes...",
		LoadingAnalysis:    "Analyzing Imagery...",
	},
}
