// Package provider 把 OpenAI 兼容模型接成情绪分类器。
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"arbiter/internal/agent/sentiment"
)

const moodSystemPrompt = `You classify crowd psychology from financial news headlines.
Answer with a single JSON object: {"mood": "FOMO"|"FEAR"|"MIXED"|"NEUTRAL", "confidence": number between 0 and 1, "reasoning": short string}.`

const moodSchema = `{
  "type": "object",
  "required": ["mood", "confidence"],
  "properties": {
    "mood": {"enum": ["FOMO", "FEAR", "MIXED", "NEUTRAL"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string"}
  }
}`

// Chatter 是 MoodClassifier 依赖的最小聊天能力。
type Chatter interface {
	Call(ctx context.Context, payload ChatPayload) (string, error)
}

// MoodClassifier 调模型判断情绪，输出先过 JSON Schema 再解码。
type MoodClassifier struct {
	chat   Chatter
	schema *jsonschema.Schema
}

var _ sentiment.MoodClassifier = (*MoodClassifier)(nil)

func NewMoodClassifier(chat Chatter) (*MoodClassifier, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("mood.json", strings.NewReader(moodSchema)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("mood.json")
	if err != nil {
		return nil, err
	}
	return &MoodClassifier{chat: chat, schema: schema}, nil
}

func (m *MoodClassifier) Classify(ctx context.Context, headlines []string) (sentiment.Mood, error) {
	if len(headlines) == 0 {
		return sentiment.Mood{Label: sentiment.PsychNeutral, Confidence: 0.5, Reasoning: "no headlines"}, nil
	}
	var b strings.Builder
	b.WriteString("Headlines:\n")
	for _, h := range headlines {
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(h))
		b.WriteString("\n")
	}
	raw, err := m.chat.Call(ctx, ChatPayload{System: moodSystemPrompt, User: b.String(), ExpectJSON: true, MaxTokens: 200})
	if err != nil {
		return sentiment.Mood{}, fmt.Errorf("mood model: %w", err)
	}
	return m.parse(raw)
}

func (m *MoodClassifier) parse(raw string) (sentiment.Mood, error) {
	obj := extractObject(raw)
	if obj == "" || !gjson.Valid(obj) {
		return sentiment.Mood{}, fmt.Errorf("mood output is not json: %q", truncate(raw, 120))
	}
	var doc any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return sentiment.Mood{}, err
	}
	if err := m.schema.Validate(doc); err != nil {
		return sentiment.Mood{}, fmt.Errorf("mood output rejected: %w", err)
	}
	parsed := gjson.Parse(obj)
	return sentiment.Mood{
		Label:      sentiment.Psychology(parsed.Get("mood").String()),
		Confidence: parsed.Get("confidence").Float(),
		Reasoning:  parsed.Get("reasoning").String(),
	}, nil
}

// extractObject 截取第一个 { 到最后一个 } 之间的内容，兼容 ```json 包裹。
func extractObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// MoodConfig 选择情绪分类器的实现。
type MoodConfig struct {
	Provider string
	APIURL   string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// BuildMoodClassifier 对 provider=openai 构造模型分类器，其余情况用关键词分类。
func BuildMoodClassifier(cfg MoodConfig) (sentiment.MoodClassifier, error) {
	if !strings.EqualFold(strings.TrimSpace(cfg.Provider), "openai") {
		return sentiment.KeywordClassifier{}, nil
	}
	return NewMoodClassifier(NewOpenAIChatClient(cfg.APIURL, cfg.APIKey, cfg.Model, cfg.Timeout))
}
