package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"goldsweep/internal/logger"
	"goldsweep/internal/market"
)

// maxHistoryLimit 是 /fapi/v1/klines 单次请求上限。
const maxHistoryLimit = 1500

// Source 基于 go-binance SDK 的 USDT 合约 K 线实现 market.Source。
// 一个 Source 只服务一个 symbol。
type Source struct {
	cfg     Config
	client  *futures.Client
	limiter *rate.Limiter
	now     func() time.Time
	log     logger.Entry
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	if final.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	perSec := rate.Limit(float64(final.RateLimitPerMin) / 60.0)
	return &Source{
		cfg:     final,
		client:  client,
		limiter: rate.NewLimiter(perSec, 4),
		now:     time.Now,
		log:     logger.With("binance"),
	}, nil
}

func (s *Source) Name() string { return "binance" }

// Fetch 返回最近 count 根已收盘 K 线（升序）。超过单次上限时按 endTime 向前翻页。
func (s *Source) Fetch(ctx context.Context, timeframe string, count int) ([]market.Candle, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be > 0")
	}
	tf, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	// 多取一根，抵消被丢弃的未收盘 K 线
	want := count + 1
	var (
		out     []market.Candle
		endTime int64
	)
	for len(out) < want {
		limit := want - len(out)
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
		page, err := s.page(ctx, tf.SourceInterval, limit, endTime)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		out = append(page, out...)
		if len(page) < limit {
			break
		}
		endTime = page[0].OpenTime - 1
	}
	out = dropUnclosed(out, tf.Duration, s.now().UTC(), s.cfg.CloseGrace)
	if len(out) > count {
		out = out[len(out)-count:]
	}
	if err := market.ValidateCandles(out); err != nil {
		return nil, fmt.Errorf("binance %s %s: %w", s.cfg.Symbol, timeframe, err)
	}
	s.log.Debugf("%s %s 拉取 %d 根", s.cfg.Symbol, timeframe, len(out))
	return out, nil
}

func (s *Source) page(ctx context.Context, interval string, limit int, endTime int64) ([]market.Candle, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	svc := s.client.NewKlinesService().Symbol(s.cfg.Symbol).Interval(interval).Limit(limit)
	if endTime > 0 {
		svc = svc.EndTime(endTime)
	}
	kls, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		c, err := toCandle(kl)
		if err != nil {
			return nil, fmt.Errorf("kline @%d: %w", kl.OpenTime, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func toCandle(kl *futures.Kline) (market.Candle, error) {
	c := market.Candle{OpenTime: kl.OpenTime, CloseTime: kl.CloseTime, Trades: kl.TradeNum}
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", kl.Open, &c.Open},
		{"high", kl.High, &c.High},
		{"low", kl.Low, &c.Low},
		{"close", kl.Close, &c.Close},
		{"volume", kl.Volume, &c.Volume},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f.raw), 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("parse %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = v
	}
	return c, nil
}

// dropUnclosed 丢弃 now 时刻仍未收盘（含宽限）的最后一根 K 线。
func dropUnclosed(klines []market.Candle, interval time.Duration, now time.Time, grace time.Duration) []market.Candle {
	if len(klines) == 0 || interval <= 0 {
		return klines
	}
	last := klines[len(klines)-1]
	if last.OpenTime <= 0 {
		return klines
	}
	cutoff := last.OpenTime + interval.Milliseconds() + grace.Milliseconds()
	if now.UnixMilli() < cutoff {
		return klines[:len(klines)-1]
	}
	return klines
}
