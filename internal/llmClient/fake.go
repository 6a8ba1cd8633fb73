package llmclient

import (
	"context"
	"encoding/json"
	"hash/fnv"
)

// Response spec names understood by FakeClient.
const (
	SpecPoem   = "poem"
	SpecCards  = "keyword_cards"
	SpecLetter = "poet_letter"
)

// FakeClient returns deterministic payloads per response spec for offline
// runs and tests. The poem is picked by hashing the prompt.
type FakeClient struct{}

func NewFakeClient() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

type fakePoem struct {
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Dynasty  string   `json:"dynasty"`
	Content  []string `json:"content"`
	Analysis string   `json:"analysis"`
	Context  string   `json:"context"`
}

var fakePoems = []fakePoem{
	{
		Title:    "登鹳雀楼",
		Author:   "王之涣",
		Dynasty:  "唐",
		Content:  []string{"白日依山尽", "黄河入海流", "欲穷千里目", "更上一层楼"},
		Analysis: "登高望远，心胸随山河一同开阔。",
		Context:  "诗人登鹳雀楼远眺所作。",
	},
	{
		Title:    "水调歌头·明月几时有",
		Author:   "苏轼",
		Dynasty:  "宋",
		Content:  []string{"明月几时有", "把酒问青天", "不知天上宫阙", "今夕是何年"},
		Analysis: "对月怀人，旷达之中自有温情。",
		Context:  "丙辰中秋，欢饮达旦，大醉，作此篇，兼怀子由。",
	},
	{
		Title:    "春望",
		Author:   "杜甫",
		Dynasty:  "唐",
		Content:  []string{"国破山河在", "城春草木深", "感时花溅泪", "恨别鸟惊心"},
		Analysis: "山河依旧而人事全非，哀而不伤。",
		Context:  "安史之乱中诗人困居长安所作。",
	},
}

func (f *FakeClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	spec, _ := ResponseSpecFrom(ctx)
	var obj any
	switch spec.Name {
	case SpecPoem:
		h := fnv.New32a()
		_, _ = h.Write([]byte(composePrompt(prompt, input)))
		obj = fakePoems[int(h.Sum32()%uint32(len(fakePoems)))]
	case SpecCards:
		cards := fakeCardsZH
		if inputField(input, "language") == "en" {
			cards = fakeCardsEN
		}
		obj = map[string]any{"cards": cards}
	case SpecLetter:
		obj = map[string]string{
			"content": "见字如面。你所言之心事，我亦曾有之。且饮一杯，静看山月。",
			"poet":    inputField(input, "author"),
			"replyTo": "",
		}
	default:
		obj = map[string]any{}
	}
	b, _ := json.Marshal(obj)
	return json.RawMessage(b), nil
}

var fakeCardsZH = []map[string]string{
	{"term": "明月", "category": "物候", "description": "夜空中的圆月。", "culturalSignificance": "象征团圆与思念。"},
	{"term": "黄河", "category": "地理", "description": "中国北方的大河。", "culturalSignificance": "中华文明的摇篮。"},
	{"term": "登高", "category": "风土", "description": "登上高处远望。", "culturalSignificance": "重阳习俗，寄托怀远之情。"},
}

var fakeCardsEN = []map[string]string{
	{"term": "Bright moon", "category": "Phenology", "description": "The full moon in the night sky.", "culturalSignificance": "A symbol of reunion and longing."},
	{"term": "Yellow River", "category": "Geography", "description": "The great river of northern China.", "culturalSignificance": "Cradle of Chinese civilization."},
	{"term": "Climbing high", "category": "Customs", "description": "Ascending a height to look afar.", "culturalSignificance": "A Double Ninth custom of remembering those far away."},
}

// inputField reads a top-level string field from the request input.
func inputField(input any, key string) string {
	b, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	var m map[string]any
	if json.Unmarshal(b, &m) != nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
