package binance

import (
	"strings"
	"time"

	"arbiter/internal/pkg/circuit"
)

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
	// QuoteAsset 补在裸币种后面，例如 BTC -> BTCUSDT。
	QuoteAsset string
	Breaker    *circuit.Breaker

	ProxyEnabled bool
	RESTProxyURL string
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://fapi.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.QuoteAsset = strings.ToUpper(strings.TrimSpace(out.QuoteAsset))
	if out.QuoteAsset == "" {
		out.QuoteAsset = "USDT"
	}
	if out.Breaker == nil {
		out.Breaker = circuit.New("binance", 3, time.Minute)
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	return out
}
