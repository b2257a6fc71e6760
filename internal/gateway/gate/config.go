package gate

import (
	"strings"
	"time"

	"arbiter/internal/pkg/circuit"
)

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
	// Settle 是合约结算币种，小写，例如 usdt。
	Settle     string
	QuoteAsset string
	Breaker    *circuit.Breaker

	ProxyEnabled bool
	RESTProxyURL string
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = defaultGateREST
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.Settle = strings.ToLower(strings.TrimSpace(out.Settle))
	if out.Settle == "" {
		out.Settle = "usdt"
	}
	out.QuoteAsset = strings.ToUpper(strings.TrimSpace(out.QuoteAsset))
	if out.QuoteAsset == "" {
		out.QuoteAsset = "USDT"
	}
	if out.Breaker == nil {
		out.Breaker = circuit.New("gate", 3, time.Minute)
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	return out
}
