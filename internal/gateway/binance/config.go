package binance

import (
	"strings"
	"time"

	"goldsweep/internal/config"
)

type Config struct {
	Symbol          string
	RESTBaseURL     string
	HTTPTimeout     time.Duration
	RateLimitPerMin int
	// CloseGrace 是判定 K 线收盘的宽限时间，用于丢弃尚未收盘的最后一根。
	CloseGrace time.Duration
}

// FromMarket 从行情配置构造数据源配置。
func FromMarket(m config.MarketConfig) Config {
	return Config{
		Symbol:          m.Symbol,
		RESTBaseURL:     m.RESTBaseURL,
		HTTPTimeout:     m.HTTPTimeout(),
		RateLimitPerMin: m.RateLimitPerMin,
	}
}

func (c *Config) withDefaults() Config {
	out := *c
	out.Symbol = strings.ToUpper(strings.TrimSpace(out.Symbol))
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://fapi.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	if out.RateLimitPerMin <= 0 {
		out.RateLimitPerMin = 600
	}
	if out.CloseGrace < 0 {
		out.CloseGrace = 0
	}
	return out
}
