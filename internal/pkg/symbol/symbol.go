// Package symbol 在加密货币交易对的几种写法之间转换。
package symbol

import (
	"strings"
)

// Symbol 是拆开后的交易对，例如 BTC/USDT。
type Symbol struct {
	Base  string
	Quote string
}

func (s Symbol) Internal() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

// Binance 形如 BTCUSDT。
func (s Symbol) Binance() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

// Gate 形如 BTC_USDT。
func (s Symbol) Gate() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "_" + s.Quote
}

var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "TUSD", "BTC", "ETH", "BNB"}

// Parse 识别 BTC/USDT、BTC-USDT、BTC_USDT、BTCUSDT 与 BTC/USDT:USDT，识别不了返回零值。
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	for _, sep := range []string{"/", "-", "_"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			return Symbol{
				Base:  strings.TrimSpace(parts[0]),
				Quote: strings.TrimSpace(parts[1]),
			}
		}
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			}
		}
	}
	return Symbol{}
}

// WithQuote 解析 s，裸币种（如 BTC）补上 quote。
func WithQuote(s, quote string) Symbol {
	if sym := Parse(s); sym.Base != "" {
		return sym
	}
	base := strings.ToUpper(strings.TrimSpace(s))
	if base == "" {
		return Symbol{}
	}
	return Symbol{Base: base, Quote: strings.ToUpper(strings.TrimSpace(quote))}
}

func Normalize(s string) string {
	return Parse(s).Internal()
}
