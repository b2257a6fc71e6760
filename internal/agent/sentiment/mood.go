package sentiment

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Psychology 是对标题的人群情绪判断。
type Psychology string

const (
	PsychFOMO    Psychology = "FOMO"
	PsychFear    Psychology = "FEAR"
	PsychMixed   Psychology = "MIXED"
	PsychNeutral Psychology = "NEUTRAL"
)

type Mood struct {
	Label      Psychology `json:"mood"`
	Confidence float64    `json:"confidence"`
	Reasoning  string     `json:"reasoning"`
}

// MoodClassifier 从最新的若干条标题判断人群情绪。
type MoodClassifier interface {
	Classify(ctx context.Context, headlines []string) (Mood, error)
}

var (
	fomoKeywords = []string{"surge", "soar", "record", "breakout", "frenzy", "buy", "skyrocket", "jump", "rally", "bull run"}
	fearKeywords = []string{"crash", "plummet", "panic", "sell-off", "plunge", "crisis", "collapse", "bear", "warning", "risk"}
)

// KeywordClassifier 统计关键词命中，不依赖外部服务。
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, headlines []string) (Mood, error) {
	text := strings.ToLower(strings.Join(headlines, " "))
	fomo, fear := 0, 0
	for _, w := range fomoKeywords {
		if strings.Contains(text, w) {
			fomo++
		}
	}
	for _, w := range fearKeywords {
		if strings.Contains(text, w) {
			fear++
		}
	}
	label := PsychNeutral
	switch {
	case fomo > fear:
		label = PsychFOMO
	case fear > fomo:
		label = PsychFear
	case fomo > 0 && fear > 0:
		label = PsychMixed
	}
	return Mood{
		Label:      label,
		Confidence: 0.6 + math.Min(float64(fomo+fear), 5)*0.05,
		Reasoning:  fmt.Sprintf("%d FOMO and %d FEAR signals in headlines", fomo, fear),
	}, nil
}
