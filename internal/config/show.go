package config

import (
	"strings"

	"gopkg.in/yaml.v3"
)

const redacted = "******"

// Redacted 返回隐藏凭据后的副本，用于打印。
func (c Config) Redacted() Config {
	out := c
	out.Market.Sources = append([]MarketSource(nil), c.Market.Sources...)
	for i := range out.Market.Sources {
		out.Market.Sources[i].APIKey = mask(out.Market.Sources[i].APIKey)
	}
	out.Mood.APIKey = mask(c.Mood.APIKey)
	out.Notify.Telegram.BotToken = mask(c.Notify.Telegram.BotToken)
	return out
}

func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}

func mask(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return redacted
}
