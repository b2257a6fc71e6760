// Package indicator 计算评估器使用的日线统计量，输入序列一律按时间升序。
package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

const TradingDaysPerYear = 252

// SMA 返回最近 period 根收盘价的简单均线，数据不足时 ok 为 false。
func SMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}
	if period == 1 {
		return closes[len(closes)-1], true
	}
	return lastValid(talib.Sma(closes, period)), true
}

// RSI 使用 Wilder 平滑；数据不足时返回中性值 50。
func RSI(closes []float64, period int) float64 {
	if period <= 0 {
		period = 14
	}
	if len(closes) <= period {
		return 50
	}
	v := lastValid(talib.Rsi(closes, period))
	if v <= 0 || v > 100 {
		return 50
	}
	return v
}

// LogReturns 返回最近 n 个对数收益率。
func LogReturns(closes []float64, n int) []float64 {
	start := len(closes) - n - 1
	if start < 0 {
		start = 0
	}
	out := make([]float64, 0, n)
	for i := start + 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev <= 0 || closes[i] <= 0 {
			continue
		}
		out = append(out, math.Log(closes[i]/prev))
	}
	return out
}

// DailyVolatility 是最近 period 个对数收益率的总体标准差。
func DailyVolatility(closes []float64, period int) float64 {
	rets := LogReturns(closes, period)
	if len(rets) == 0 {
		return 0
	}
	_, variance := stat.PopMeanVariance(rets, nil)
	return math.Sqrt(variance)
}

func AnnualizedVolatility(closes []float64, period int) float64 {
	return DailyVolatility(closes, period) * math.Sqrt(TradingDaysPerYear)
}

// Slope 是最近 period 根收盘价对序号做最小二乘回归的斜率。
func Slope(closes []float64, period int) float64 {
	if period < 2 || len(closes) < period {
		return 0
	}
	y := closes[len(closes)-period:]
	x := make([]float64, period)
	for i := range x {
		x[i] = float64(i)
	}
	_, beta := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(beta) {
		return 0
	}
	return beta
}

// Momentum 是最新收盘价相对 lag 天前的涨跌幅。
func Momentum(closes []float64, lag int) float64 {
	if lag <= 0 || len(closes) <= lag {
		return 0
	}
	old := closes[len(closes)-1-lag]
	if old == 0 {
		return 0
	}
	return (closes[len(closes)-1] - old) / old
}

// ZScore 衡量最新收盘价偏离最近 period 根均值的标准差倍数。
func ZScore(closes []float64, period int) float64 {
	if period <= 1 || len(closes) < period {
		return 0
	}
	window := closes[len(closes)-period:]
	mean, variance := stat.PopMeanVariance(window, nil)
	sd := math.Sqrt(variance)
	if sd == 0 {
		return 0
	}
	return (closes[len(closes)-1] - mean) / sd
}

// PriorHigh 返回最新一根之前 period 根的最高收盘价。
func PriorHigh(closes []float64, period int) float64 {
	if len(closes) < 2 {
		return 0
	}
	end := len(closes) - 1
	start := end - period
	if start < 0 {
		start = 0
	}
	high := math.Inf(-1)
	for _, v := range closes[start:end] {
		high = math.Max(high, v)
	}
	return high
}

// CoefficientOfVariation 是最近 period 个值的 σ/μ。
func CoefficientOfVariation(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	window := values
	if len(values) > period && period > 0 {
		window = values[len(values)-period:]
	}
	mean, variance := stat.PopMeanVariance(window, nil)
	if mean <= 0 {
		return 0
	}
	return math.Sqrt(variance) / mean
}

// Amihud 是 |收益率| / 成交额 的均值，放大 1e6 便于阅读。
func Amihud(closes, volumes []float64, period int) float64 {
	n := len(closes)
	if n < 2 || len(volumes) != n {
		return 0
	}
	start := n - period
	if start < 1 {
		start = 1
	}
	vals := make([]float64, 0, n-start)
	for i := start; i < n; i++ {
		prev := closes[i-1]
		if prev <= 0 {
			continue
		}
		ret := math.Abs((closes[i] - prev) / prev)
		dollar := closes[i] * volumes[i]
		if dollar <= 0 {
			vals = append(vals, 0)
			continue
		}
		vals = append(vals, ret/dollar)
	}
	if len(vals) == 0 {
		return 0
	}
	return stat.Mean(vals, nil) * 1e6
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}
