// Package sentiment 结合新闻情绪分与人群心理给出动作。
package sentiment

import (
	"context"
	"fmt"
	"math"
	"sort"

	"arbiter/internal/agent"
	"arbiter/internal/logger"
	"arbiter/internal/market"
)

const (
	newsLimit     = 10
	headlineLimit = 5
)

// 综合情绪状态。
const (
	MoodHype     = "HYPE/FOMO"
	MoodFearful  = "FEARFUL"
	MoodBullish  = "BULLISH"
	MoodBearish  = "BEARISH"
	MoodMixed    = "MIXED"
	IntensityHi  = "HIGH"
	IntensityMid = "NORMAL"
	IntensityLo  = "LOW"
)

type Evaluator struct {
	news       market.NewsSource
	classifier MoodClassifier
	limit      int
}

func New(news market.NewsSource, classifier MoodClassifier) *Evaluator {
	if classifier == nil {
		classifier = KeywordClassifier{}
	}
	return &Evaluator{news: news, classifier: classifier, limit: newsLimit}
}

// WithNewsLimit 调整每次拉取的新闻条数，非正数保持默认。
func (e *Evaluator) WithNewsLimit(n int) *Evaluator {
	if n > 0 {
		e.limit = n
	}
	return e
}

func (e *Evaluator) ID() agent.Role { return agent.RoleSentiment }

func (e *Evaluator) Evaluate(ctx context.Context, symbol string, _ *agent.PortfolioContext) (agent.Result, error) {
	items, err := e.news.News(ctx, symbol, e.limit)
	if err != nil {
		return agent.Result{}, fmt.Errorf("news %s: %w", symbol, err)
	}
	if len(items) == 0 {
		return agent.Result{
			AgentID:       agent.RoleSentiment,
			Symbol:        symbol,
			PrimaryAction: agent.ActionHold,
			Decisions:     []agent.Action{agent.ActionHold, agent.ActionHold},
			Confidence:    0.3,
			Metrics:       map[string]any{"newsCount": 0},
			Notes:         []string{"no news available"},
		}, nil
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
	headlines := make([]string, 0, headlineLimit)
	for i := 0; i < len(items) && i < headlineLimit; i++ {
		headlines = append(headlines, items[i].Title)
	}
	mood, err := e.classifier.Classify(ctx, headlines)
	if err != nil {
		logger.Warnf("mood classifier failed for %s, using keywords: %v", symbol, err)
		mood, _ = KeywordClassifier{}.Classify(ctx, headlines)
	}
	return Analyze(symbol, items, mood), nil
}

// WeightedSentiment 按相关度加权平均，最新一条权重翻倍。items 需按时间倒序。
func WeightedSentiment(items []market.NewsItem) float64 {
	var sum, total float64
	for i, it := range items {
		rel := it.Relevance
		if rel <= 0 {
			rel = 0.5
		}
		if i == 0 && len(items) > 1 {
			rel *= 2
		}
		sum += it.SentimentScore * rel
		total += rel
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

func Intensity(count int) string {
	switch {
	case count >= 5:
		return IntensityHi
	case count < 3:
		return IntensityLo
	default:
		return IntensityMid
	}
}

func OverallMood(psych Psychology, avg float64) string {
	switch {
	case psych == PsychFOMO && avg > 0.2:
		return MoodHype
	case psych == PsychFear && avg < -0.2:
		return MoodFearful
	case avg > 0.35:
		return MoodBullish
	case avg < -0.35:
		return MoodBearish
	default:
		return MoodMixed
	}
}

func Analyze(symbol string, items []market.NewsItem, psych Mood) agent.Result {
	avg := WeightedSentiment(items)
	intensity := Intensity(len(items))
	overall := OverallMood(psych.Label, avg)

	first, second := agent.ActionHold, agent.ActionHold
	conf := 0.5
	notes := []string{fmt.Sprintf("%d articles, weighted %.3f, crowd %s, mood %s", len(items), avg, psych.Label, overall)}
	switch overall {
	case MoodHype:
		switch {
		case intensity == IntensityHi && avg > 0.6:
			first, second = agent.ActionHold, agent.ActionReduce
			conf += 0.2
			notes = append(notes, "extreme FOMO, contrarian")
		case intensity == IntensityHi:
			first, second = agent.ActionBuyMore, agent.ActionHold
			conf += 0.3
		default:
			first, second = agent.ActionHold, agent.ActionBuyMore
			conf += 0.1
		}
	case MoodFearful:
		if intensity == IntensityHi {
			first, second = agent.ActionExit, agent.ActionReduce
			conf += 0.3
		} else {
			first, second = agent.ActionReduce, agent.ActionHold
			conf += 0.1
		}
	case MoodBullish:
		first, second = agent.ActionBuyMore, agent.ActionHold
		conf += 0.2
	case MoodBearish:
		first, second = agent.ActionReduce, agent.ActionExit
		conf += 0.2
	default:
		first, second = agent.ActionHold, agent.ActionReallocate
		conf -= 0.1
	}
	switch intensity {
	case IntensityLo:
		conf -= 0.1
	case IntensityHi:
		conf += 0.1
	}
	return agent.Result{
		AgentID:       agent.RoleSentiment,
		Symbol:        symbol,
		PrimaryAction: first,
		Decisions:     []agent.Action{first, second},
		Confidence:    math.Max(0.3, math.Min(0.9, conf)),
		Metrics: map[string]any{
			"newsCount":                 len(items),
			"avgSentiment":              avg,
			agent.MetricMood:            overall,
			agent.MetricVolumeIntensity: intensity,
			"psychology":                string(psych.Label),
		},
		Notes: notes,
	}
}
