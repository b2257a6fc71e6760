package agent

import (
	"fmt"
	"math"
)

// 评估器写入 Metrics 的键。
const (
	MetricExitRisk        = "exitRisk"
	MetricMomentum5       = "mom5"
	MetricMomentum20      = "mom20"
	MetricZScore          = "z"
	MetricMood            = "mood"
	MetricVolumeIntensity = "volumeIntensity"
	MetricError           = "error"
)

// Result 是一次评估的输出，产生后不再修改。
type Result struct {
	AgentID       Role           `json:"agent_id"`
	Symbol        string         `json:"symbol"`
	PrimaryAction Action         `json:"primary_action"`
	Decisions     []Action       `json:"decisions"`
	Confidence    float64        `json:"confidence"`
	Metrics       map[string]any `json:"metrics,omitempty"`
	Notes         []string       `json:"notes,omitempty"`
}

// Fallback 是评估失败时的占位结果：HOLD，置信度 0。
func Fallback(role Role, symbol string, err error) Result {
	note := "evaluator produced no decisions"
	if err != nil {
		note = err.Error()
	}
	return Result{
		AgentID:       role,
		Symbol:        symbol,
		PrimaryAction: ActionHold,
		Decisions:     []Action{ActionHold},
		Confidence:    0,
		Metrics:       map[string]any{},
		Notes:         []string{"fallback: " + note},
	}
}

// Normalize 补齐缺省字段并把置信度限制在 [0,1]。返回 false 表示结果不可用。
func (r Result) Normalize(role Role, symbol string) (Result, bool) {
	if len(r.Decisions) == 0 {
		return r, false
	}
	if r.AgentID == "" {
		r.AgentID = role
	}
	if r.Symbol == "" {
		r.Symbol = symbol
	}
	if len(r.Decisions) > 2 {
		r.Decisions = r.Decisions[:2]
	}
	if r.PrimaryAction == "" {
		r.PrimaryAction = r.Decisions[0]
	}
	if math.IsNaN(r.Confidence) {
		r.Confidence = 0
	}
	r.Confidence = math.Max(0, math.Min(1, r.Confidence))
	if r.Metrics == nil {
		r.Metrics = map[string]any{}
	}
	return r, true
}

// MetricString 读取字符串指标，缺失时返回空串。
func (r Result) MetricString(key string) string {
	v, ok := r.Metrics[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// MetricFloat 读取数值指标，兼容 JSON 解码后的各种数值类型。
func (r Result) MetricFloat(key string) (float64, bool) {
	v, ok := r.Metrics[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
