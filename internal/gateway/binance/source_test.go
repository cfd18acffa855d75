package binance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goldsweep/internal/market"
)

var t0 = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

// klineServer 模拟 /fapi/v1/klines：按 endTime 截断后返回最后 limit 根 4h K 线。
func klineServer(t *testing.T, total int, calls *int32) *httptest.Server {
	t.Helper()
	step := (4 * time.Hour).Milliseconds()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		assert.Equal(t, "PAXGUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "4h", r.URL.Query().Get("interval"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		endTime, _ := strconv.ParseInt(r.URL.Query().Get("endTime"), 10, 64)
		hi := total
		if endTime > 0 {
			hi = int((endTime-t0.UnixMilli())/step) + 1
			if hi > total {
				hi = total
			}
		}
		lo := hi - limit
		if lo < 0 {
			lo = 0
		}
		rows := make([][]any, 0, hi-lo)
		for i := lo; i < hi; i++ {
			open := t0.UnixMilli() + int64(i)*step
			rows = append(rows, []any{
				open, "2000.00", "2010.00", "1990.00", "2005.00", "12.5",
				open + step - 1, "25000", 42, "6", "12000", "0",
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	}))
}

func newTestSource(t *testing.T, url string, total int) *Source {
	t.Helper()
	src, err := New(Config{Symbol: "paxgusdt", RESTBaseURL: url, RateLimitPerMin: 6000})
	require.NoError(t, err)
	// 最后一根 K 线开盘 1 小时，尚未收盘
	src.now = func() time.Time { return t0.Add(time.Duration(total-1)*4*time.Hour + time.Hour) }
	return src
}

func TestFetchPaginatesBackwards(t *testing.T) {
	const total = 3500
	var calls int32
	srv := klineServer(t, total, &calls)
	defer srv.Close()
	src := newTestSource(t, srv.URL, total)

	candles, err := src.Fetch(context.Background(), "H4", 2000)
	require.NoError(t, err)
	require.Len(t, candles, 2000)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, t0.Add(1499*4*time.Hour).UnixMilli(), candles[0].OpenTime)
	assert.Equal(t, t0.Add(3498*4*time.Hour).UnixMilli(), candles[len(candles)-1].OpenTime)
	assert.NoError(t, market.ValidateCandles(candles))

	c := candles[0]
	assert.Equal(t, 2000.0, c.Open)
	assert.Equal(t, 2010.0, c.High)
	assert.Equal(t, 1990.0, c.Low)
	assert.Equal(t, 2005.0, c.Close)
	assert.Equal(t, 12.5, c.Volume)
	assert.Equal(t, int64(42), c.Trades)
}

func TestFetchShortHistory(t *testing.T) {
	var calls int32
	srv := klineServer(t, 5, &calls)
	defer srv.Close()
	src := newTestSource(t, srv.URL, 5)

	candles, err := src.Fetch(context.Background(), "4h", 10)
	require.NoError(t, err)
	assert.Len(t, candles, 4, "unclosed bar dropped")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":-1000,"msg":"boom"}`))
	}))
	defer srv.Close()
	src := newTestSource(t, srv.URL, 1)

	_, err := src.Fetch(context.Background(), "4h", 10)
	assert.Error(t, err)
	_, err = src.Fetch(context.Background(), "7m", 10)
	assert.Error(t, err)
	_, err = src.Fetch(context.Background(), "4h", 0)
	assert.Error(t, err)

	_, err = New(Config{})
	assert.Error(t, err)
}

func TestFetchRejectsMalformedKline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		open := t0.UnixMilli()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([][]any{{
			open, "2000.00", "2010.00", "1990.00", "2005.00", "n/a",
			open + (4 * time.Hour).Milliseconds() - 1, "25000", 42, "6", "12000", "0",
		}})
	}))
	defer srv.Close()
	src := newTestSource(t, srv.URL, 3)

	_, err := src.Fetch(context.Background(), "4h", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "volume")
}

func TestToCandle(t *testing.T) {
	kl := &futures.Kline{OpenTime: 1, CloseTime: 2, Open: "1.5", High: "2", Low: "1", Close: "1.75", Volume: " 3 ", TradeNum: 7}
	c, err := toCandle(kl)
	require.NoError(t, err)
	assert.Equal(t, market.Candle{OpenTime: 1, CloseTime: 2, Open: 1.5, High: 2, Low: 1, Close: 1.75, Volume: 3, Trades: 7}, c)

	kl.High = ""
	_, err = toCandle(kl)
	assert.ErrorContains(t, err, "high")
}

func TestDropUnclosed(t *testing.T) {
	bars := []market.Candle{{OpenTime: t0.UnixMilli()}, {OpenTime: t0.Add(15 * time.Minute).UnixMilli()}}
	at := t0.Add(29 * time.Minute)
	assert.Len(t, dropUnclosed(bars, 15*time.Minute, at, 0), 1)
	assert.Len(t, dropUnclosed(bars, 15*time.Minute, t0.Add(30*time.Minute), 0), 2)
	assert.Len(t, dropUnclosed(bars, 15*time.Minute, t0.Add(30*time.Minute), time.Second), 1)
	assert.Empty(t, dropUnclosed(nil, 15*time.Minute, at, 0))
}
