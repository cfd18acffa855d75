package scanner

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goldsweep/internal/config"
	"goldsweep/internal/market"
	"goldsweep/internal/strategy/risk"
	"goldsweep/internal/strategy/signal"
)

// 周三 10:00 UTC，伦敦盘内
var scanTime = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(_ context.Context, timeframe string, count int) ([]market.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[timeframe]++
	if f.err != nil {
		return nil, f.err
	}
	tf, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	return wave(scanTime, tf.Duration, count), nil
}

func (f *fakeSource) count(tf string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[tf]
}

// wave 生成在 2000 附近正弦摆动、最后一根在 end 之前收盘的 K 线。
func wave(end time.Time, step time.Duration, n int) []market.Candle {
	out := make([]market.Candle, n)
	start := end.Add(-time.Duration(n) * step)
	for i := range out {
		open := start.Add(time.Duration(i) * step)
		mid := 2000 + 15*math.Sin(float64(i)/6)
		out[i] = market.Candle{
			OpenTime: open.UnixMilli(), CloseTime: open.Add(step).UnixMilli() - 1,
			Open: mid - 0.5, High: mid + 2, Low: mid - 2, Close: mid + 0.5, Volume: 100 + float64(i%7),
		}
	}
	return out
}

type recordSink struct {
	mu      sync.Mutex
	reports []Report
}

func (r *recordSink) Publish(_ context.Context, rep Report) {
	r.mu.Lock()
	r.reports = append(r.reports, rep)
	r.mu.Unlock()
}

func (r *recordSink) all() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.reports...)
}

func newScanner(t *testing.T, src *fakeSource, sink Sink, at time.Time) *Scanner {
	t.Helper()
	s, err := New(Options{Config: config.Default(), Source: src, Sink: sink})
	require.NoError(t, err)
	s.now = func() time.Time { return at }
	return s
}

func TestScanOnceSkipsFetchOutsideSession(t *testing.T) {
	src := &fakeSource{}
	sink := &recordSink{}
	saturday := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	s := newScanner(t, src, sink, saturday)

	rep, err := s.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, signal.GateSession, rep.Decision.Rejected)
	assert.False(t, rep.Fetched)
	assert.Zero(t, src.count("4h"))
	assert.Zero(t, src.count("15m"))
	require.Len(t, sink.all(), 1)

	s.now = func() time.Time { return time.Date(2024, 3, 6, 3, 0, 0, 0, time.UTC) }
	rep, err = s.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Asian (Pre-London)", rep.Session)
	assert.Zero(t, src.count("4h"))
}

func TestScanOnceFetchesBothTimeframes(t *testing.T) {
	src := &fakeSource{}
	sink := &recordSink{}
	s := newScanner(t, src, sink, scanTime)

	rep, err := s.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Fetched)
	assert.Equal(t, "PAXGUSDT", rep.Symbol)
	assert.Equal(t, "London", rep.Session)
	assert.NotEqual(t, signal.GateSession, rep.Decision.Rejected)
	assert.Equal(t, 1, src.count("4h"))
	assert.Equal(t, 1, src.count("15m"))
	require.Len(t, sink.all(), 1)
}

func TestScanOnceReturnsFetchError(t *testing.T) {
	src := &fakeSource{err: errors.New("upstream down")}
	sink := &recordSink{}
	s := newScanner(t, src, sink, scanTime)

	_, err := s.ScanOnce(context.Background())
	assert.ErrorContains(t, err, "upstream down")
	assert.Empty(t, sink.all())
}

func TestReloadRebuildsPipeline(t *testing.T) {
	src := &fakeSource{}
	s := newScanner(t, src, &recordSink{}, scanTime)

	cfg := config.Default()
	cfg.Strategy.Session.Windows = []config.SessionWindow{{Name: "New York", Open: 13, Close: 21}}
	s.Reload(cfg)

	rep, err := s.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, signal.GateSession, rep.Decision.Rejected)
	assert.Equal(t, "Asian (Pre-New York)", rep.Session)
	assert.Zero(t, src.count("4h"))
}

func TestReloadKeepsOldConfigOnFilterError(t *testing.T) {
	s, err := New(Options{
		Config: config.Default(),
		Source: &fakeSource{},
		NewFilter: func(config.Config) (signal.Filter, error) {
			return nil, errors.New("no endpoint")
		},
	})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.MLFilter.Enabled = true
	cfg.Market.Symbol = "XAUUSD"
	s.Reload(cfg)
	got, _, _ := s.snapshot()
	assert.Equal(t, "PAXGUSDT", got.Market.Symbol)

	_, err = New(Options{Config: cfg, Source: &fakeSource{}, NewFilter: func(config.Config) (signal.Filter, error) {
		return nil, errors.New("no endpoint")
	}})
	assert.Error(t, err)
	_, err = New(Options{Config: config.Default()})
	assert.Error(t, err)
}

func TestRunScansImmediatelyAndStops(t *testing.T) {
	src := &fakeSource{}
	sink := &recordSink{}
	s := newScanner(t, src, sink, scanTime)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scanner did not stop")
	}
}

func TestLatestKeepsLastSignal(t *testing.T) {
	l := NewLatest()
	_, ok := l.Signal()
	assert.False(t, ok)

	sig := &signal.Signal{Direction: risk.Long, Entry: 2000.5}
	ctx := context.Background()
	l.Publish(ctx, Report{At: scanTime, Decision: signal.Decision{Signal: sig}})
	l.Publish(ctx, Report{At: scanTime.Add(15 * time.Minute), Decision: signal.Decision{Rejected: signal.GateSweep}})

	got, ok := l.Signal()
	require.True(t, ok)
	assert.Equal(t, scanTime, got.At)
	assert.Equal(t, 2000.5, got.Decision.Signal.Entry)

	scan, ok := l.Scan()
	require.True(t, ok)
	assert.Equal(t, signal.GateSweep, scan.Decision.Rejected)

	// MultiSink 同时写入多个 Sink
	rec := &recordSink{}
	MultiSink{rec, nil, NewLogSink()}.Publish(ctx, Report{Decision: signal.Decision{Signal: sig}})
	assert.Len(t, rec.all(), 1)
}

func TestAlignedScheduleNext(t *testing.T) {
	s := alignedSchedule{interval: 15 * time.Minute, offset: scanOffset}
	nextClose, wake := s.next(time.Date(2024, 3, 6, 10, 7, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 6, 10, 15, 0, 0, time.UTC), nextClose)
	assert.Equal(t, nextClose.Add(scanOffset), wake)
}
