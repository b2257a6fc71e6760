package decision

import (
	"fmt"

	"arbiter/internal/agent"
)

// Policy 汇总裁决器的全部查表参数。
// 从零值构造时，零值字段在 Normalize 时回落到默认；基于 DefaultPolicy 修改的策略里零值是显式取值。
type Policy struct {
	Weights       map[agent.Role]float64   `yaml:"weights" json:"weights"`
	DefaultWeight float64                  `yaml:"default_weight" json:"default_weight"`
	Intent        map[agent.Action]float64 `yaml:"intent" json:"intent"`
	MaxTop        int                      `yaml:"max_top" json:"max_top"`
	PerSourceCap  int                      `yaml:"per_source_cap" json:"per_source_cap"`
	Quality       QualityPolicy            `yaml:"quality" json:"quality"`
	Overlay       OverlayPolicy            `yaml:"overlay" json:"overlay"`

	complete bool
}

// QualityPolicy 描述各评估器的质量乘数。
type QualityPolicy struct {
	Min             float64 `yaml:"min" json:"min"`
	Max             float64 `yaml:"max" json:"max"`
	QuantMom5       float64 `yaml:"quant_mom5" json:"quant_mom5"`
	QuantMom20      float64 `yaml:"quant_mom20" json:"quant_mom20"`
	QuantTrendBoost float64 `yaml:"quant_trend_boost" json:"quant_trend_boost"`
	QuantZLimit     float64 `yaml:"quant_z_limit" json:"quant_z_limit"`
	QuantZPenalty   float64 `yaml:"quant_z_penalty" json:"quant_z_penalty"`
	RiskLowBoost    float64 `yaml:"risk_low_boost" json:"risk_low_boost"`
	RiskHighPenalty float64 `yaml:"risk_high_penalty" json:"risk_high_penalty"`
	SentimentBoost  float64 `yaml:"sentiment_boost" json:"sentiment_boost"`
}

// OverlayPolicy 描述持仓收益覆盖规则，收益阈值单位为百分比。
type OverlayPolicy struct {
	ProfitBias        float64 `yaml:"profit_bias" json:"profit_bias"`
	ProfitBiasPenalty float64 `yaml:"profit_bias_penalty" json:"profit_bias_penalty"`
	StrongProfitBias  float64 `yaml:"strong_profit_bias" json:"strong_profit_bias"`
	StrongProfitExtra float64 `yaml:"strong_profit_extra" json:"strong_profit_extra"`
	TakeProfit        float64 `yaml:"take_profit" json:"take_profit"`
	LossBias          float64 `yaml:"loss_bias" json:"loss_bias"`
	LossBiasPenalty   float64 `yaml:"loss_bias_penalty" json:"loss_bias_penalty"`
	StopLoss          float64 `yaml:"stop_loss" json:"stop_loss"`
	RiskOverrideConf  float64 `yaml:"risk_override_confidence" json:"risk_override_confidence"`
	BuyThreshold      float64 `yaml:"buy_threshold" json:"buy_threshold"`
	SellThreshold     float64 `yaml:"sell_threshold" json:"sell_threshold"`
	TerminalScore     float64 `yaml:"terminal_score" json:"terminal_score"`
}

// DefaultPolicy 返回内置的权重与阈值。
func DefaultPolicy() Policy {
	return Policy{
		Weights: map[agent.Role]float64{
			agent.RoleRisk:      1.00,
			agent.RoleTechnical: 0.85,
			agent.RoleQuant:     0.75,
			agent.RoleSentiment: 0.60,
		},
		DefaultWeight: 0.50,
		Intent: map[agent.Action]float64{
			agent.ActionBuyMore:    2,
			agent.ActionBuy:        2,
			agent.ActionHold:       0,
			agent.ActionReallocate: 0,
			agent.ActionReduce:     -1,
			agent.ActionExit:       -2,
			agent.ActionSell:       -2,
		},
		MaxTop:       4,
		PerSourceCap: 2,
		Quality: QualityPolicy{
			Min:             0.5,
			Max:             1.5,
			QuantMom5:       0.02,
			QuantMom20:      0.05,
			QuantTrendBoost: 1.2,
			QuantZLimit:     2,
			QuantZPenalty:   0.9,
			RiskLowBoost:    1.2,
			RiskHighPenalty: 0.8,
			SentimentBoost:  1.1,
		},
		Overlay: OverlayPolicy{
			ProfitBias:        5,
			ProfitBiasPenalty: 0.5,
			StrongProfitBias:  10,
			StrongProfitExtra: 1.0,
			TakeProfit:        15,
			LossBias:          -5,
			LossBiasPenalty:   0.5,
			StopLoss:          -8,
			RiskOverrideConf:  0.8,
			BuyThreshold:      0.3,
			SellThreshold:     -0.25,
			TerminalScore:     -100,
		},
		complete: true,
	}
}

// Normalize 用默认值补齐缺失项，文件里只需写要覆盖的字段。
// 权重与意图表总是与默认表合并；标量只在策略不是基于 DefaultPolicy 时补齐。
func (p Policy) Normalize() Policy {
	def := DefaultPolicy()
	weights := make(map[agent.Role]float64, len(def.Weights))
	for k, v := range def.Weights {
		weights[k] = v
	}
	for k, v := range p.Weights {
		weights[k] = v
	}
	p.Weights = weights
	intent := make(map[agent.Action]float64, len(def.Intent))
	for k, v := range def.Intent {
		intent[k] = v
	}
	for k, v := range p.Intent {
		intent[agent.ParseAction(string(k))] = v
	}
	p.Intent = intent
	if p.complete {
		return p
	}
	setFloat(&p.DefaultWeight, def.DefaultWeight)
	setInt(&p.MaxTop, def.MaxTop)
	setInt(&p.PerSourceCap, def.PerSourceCap)

	q, dq := &p.Quality, def.Quality
	setFloat(&q.Min, dq.Min)
	setFloat(&q.Max, dq.Max)
	setFloat(&q.QuantMom5, dq.QuantMom5)
	setFloat(&q.QuantMom20, dq.QuantMom20)
	setFloat(&q.QuantTrendBoost, dq.QuantTrendBoost)
	setFloat(&q.QuantZLimit, dq.QuantZLimit)
	setFloat(&q.QuantZPenalty, dq.QuantZPenalty)
	setFloat(&q.RiskLowBoost, dq.RiskLowBoost)
	setFloat(&q.RiskHighPenalty, dq.RiskHighPenalty)
	setFloat(&q.SentimentBoost, dq.SentimentBoost)

	o, do := &p.Overlay, def.Overlay
	setFloat(&o.ProfitBias, do.ProfitBias)
	setFloat(&o.ProfitBiasPenalty, do.ProfitBiasPenalty)
	setFloat(&o.StrongProfitBias, do.StrongProfitBias)
	setFloat(&o.StrongProfitExtra, do.StrongProfitExtra)
	setFloat(&o.TakeProfit, do.TakeProfit)
	setFloat(&o.LossBias, do.LossBias)
	setFloat(&o.LossBiasPenalty, do.LossBiasPenalty)
	setFloat(&o.StopLoss, do.StopLoss)
	setFloat(&o.RiskOverrideConf, do.RiskOverrideConf)
	setFloat(&o.BuyThreshold, do.BuyThreshold)
	setFloat(&o.SellThreshold, do.SellThreshold)
	setFloat(&o.TerminalScore, do.TerminalScore)
	p.complete = true
	return p
}

// PolicyOverrides 返回以 DefaultPolicy 为底、权重与意图表置空的策略，
// 供解码器在其上覆盖，文件中显式写出的零值得以保留。
func PolicyOverrides() Policy {
	p := DefaultPolicy()
	p.Weights = nil
	p.Intent = nil
	return p
}

// Validate 检查表项是否自洽。
func (p Policy) Validate() error {
	if p.Quality.Min <= 0 || p.Quality.Min > p.Quality.Max {
		return fmt.Errorf("quality bounds invalid: [%v,%v]", p.Quality.Min, p.Quality.Max)
	}
	if p.MaxTop < 1 || p.PerSourceCap < 1 {
		return fmt.Errorf("max_top and per_source_cap must be positive")
	}
	for role, w := range p.Weights {
		if w < 0 {
			return fmt.Errorf("weight for %s must be >= 0", role)
		}
	}
	o := p.Overlay
	if o.SellThreshold >= o.BuyThreshold {
		return fmt.Errorf("sell_threshold %.2f must be below buy_threshold %.2f", o.SellThreshold, o.BuyThreshold)
	}
	if !(o.ProfitBias <= o.StrongProfitBias && o.StrongProfitBias <= o.TakeProfit) {
		return fmt.Errorf("profit thresholds must be ascending")
	}
	if o.StopLoss > o.LossBias {
		return fmt.Errorf("stop_loss %.2f must not exceed loss_bias %.2f", o.StopLoss, o.LossBias)
	}
	return nil
}

func (p Policy) weight(role agent.Role) float64 {
	if w, ok := p.Weights[role]; ok {
		return w
	}
	return p.DefaultWeight
}

func (p Policy) intent(a agent.Action) float64 {
	return p.Intent[a]
}

func setFloat(dst *float64, def float64) {
	if *dst == 0 {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}
