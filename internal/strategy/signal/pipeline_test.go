package signal

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"goldsweep/internal/config"
	"goldsweep/internal/market"
	"goldsweep/internal/strategy/regime"
	"goldsweep/internal/strategy/risk"
)

// Wednesday, London session.
var evalTS = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

// contextSeries 生成 H4 序列：价格在 2030~2038 区间，整数关口 2000 是离 2000 附近最近的关键位。
func contextSeries(adx float64) market.Series {
	const n = 30
	candles := make([]market.Candle, n)
	frame := market.Frame{
		market.ColADX:     make([]float64, n),
		market.ColEMAFast: make([]float64, n),
		market.ColEMASlow: make([]float64, n),
		market.ColBBWidth: make([]float64, n),
	}
	for i := range candles {
		ts := evalTS.Add(-time.Duration(n-1-i) * 4 * time.Hour).UnixMilli()
		candles[i] = market.Candle{OpenTime: ts, Open: 2034, High: 2038, Low: 2030, Close: 2035, Volume: 100}
		frame[market.ColADX][i] = adx
		frame[market.ColEMAFast][i] = 2000
		frame[market.ColEMASlow][i] = 2001
		frame[market.ColBBWidth][i] = 0.01
	}
	return market.NewSeries("4h", candles, frame)
}

// entrySeries 生成 M15 序列，倒数第三根在 2000 处扫单后收回，最后一根收盘 2000.5（多）/ 1999.5（空）。
func entrySeries(dir risk.Direction) market.Series {
	const n = 20
	candles := make([]market.Candle, n)
	frame := market.Frame{
		market.ColRSI:         make([]float64, n),
		market.ColStochK:      make([]float64, n),
		market.ColStochD:      make([]float64, n),
		market.ColMACD:        make([]float64, n),
		market.ColVolumeRatio: make([]float64, n),
	}
	for i := range candles {
		ts := evalTS.Add(-time.Duration(n-1-i) * 15 * time.Minute).UnixMilli()
		frame[market.ColStochK][i] = 50
		frame[market.ColStochD][i] = 50
		frame[market.ColVolumeRatio][i] = 1
		if dir == risk.Long {
			candles[i] = market.Candle{OpenTime: ts, Open: 2002, High: 2004, Low: 2001, Close: 2002, Volume: 100}
			frame[market.ColRSI][i] = 40
		} else {
			candles[i] = market.Candle{OpenTime: ts, Open: 1998, High: 1999, Low: 1996, Close: 1998, Volume: 100}
			frame[market.ColRSI][i] = 60
		}
	}
	last := n - 1
	frame[market.ColVolumeRatio][last] = 1.5
	if dir == risk.Long {
		candles[n-3].Low, candles[n-3].Close = 1998.5, 2001
		candles[last] = market.Candle{OpenTime: candles[last].OpenTime, Open: 2001, High: 2001, Low: 2000.2, Close: 2000.5, Volume: 150}
		frame[market.ColRSI][last] = 30
		frame[market.ColStochK][last] = 25
		frame[market.ColStochD][last] = 20
	} else {
		candles[n-3].High, candles[n-3].Close = 2001.5, 1999
		candles[last] = market.Candle{OpenTime: candles[last].OpenTime, Open: 1999, High: 1999.8, Low: 1999, Close: 1999.5, Volume: 150}
		frame[market.ColRSI][last] = 70
		frame[market.ColStochK][last] = 75
		frame[market.ColStochD][last] = 80
	}
	return market.NewSeries("15m", candles, frame)
}

func setup(dir risk.Direction) Input {
	return Input{Context: contextSeries(15), Entry: entrySeries(dir)}
}

type mockFilter struct {
	mock.Mock
}

func (m *mockFilter) Evaluate(ctx context.Context, in Input, candidate Signal) (bool, float64) {
	args := m.Called(ctx, in, candidate)
	return args.Bool(0), args.Get(1).(float64)
}

func TestEvaluateEmitsLong(t *testing.T) {
	p := New(config.Default().Strategy)
	d := p.Evaluate(context.Background(), setup(risk.Long), evalTS)
	require.True(t, d.Emitted(), "rejected at %s: %s", d.Rejected, d.Detail)

	s := d.Signal
	assert.Equal(t, risk.Long, s.Direction)
	assert.Equal(t, 2000.5, s.Entry)
	assert.Equal(t, 1999.0, s.StopLoss)
	assert.Equal(t, [3]TakeProfit{{Price: 2002.75, Weight: 45}, {Price: 2004.25, Weight: 30}, {Price: 2006.5, Weight: 25}}, s.TakeProfits)
	assert.Equal(t, 0.1, s.PositionSize)
	// 50 + range 10 + tight stop 10 + volume 5
	assert.Equal(t, 75, s.Confidence)
	assert.Equal(t, regime.Range, s.Regime)
	assert.Equal(t, 15.0, s.ADX)
	assert.Equal(t, "Round $2000", s.LevelName)
	assert.Equal(t, 2000.0, s.LevelPrice)
	assert.Equal(t, 1998.5, s.Sweep.Price)
	assert.Equal(t, "London", s.Session)
	assert.Equal(t, evalTS, s.GeneratedAt)
	assert.Equal(t, 15.0, s.Risk.PipRisk)
	assert.Equal(t, 1.5, s.Risk.RewardRisk)
	assert.Nil(t, s.MLConfidence)
}

func TestEvaluateEmitsShort(t *testing.T) {
	p := New(config.Default().Strategy)
	d := p.Evaluate(context.Background(), setup(risk.Short), evalTS)
	require.True(t, d.Emitted(), "rejected at %s: %s", d.Rejected, d.Detail)
	s := d.Signal
	assert.Equal(t, risk.Short, s.Direction)
	assert.Equal(t, 1999.5, s.Entry)
	assert.Equal(t, 2001.0, s.StopLoss)
	assert.Equal(t, 1997.25, s.TP1())
	assert.Equal(t, 1993.5, s.TakeProfits[2].Price)
	assert.Equal(t, 2001.5, s.Sweep.Price)
	assert.Equal(t, 75, s.Confidence)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	p := New(config.Default().Strategy)
	a := p.Evaluate(context.Background(), setup(risk.Long), evalTS)
	b := p.Evaluate(context.Background(), setup(risk.Long), evalTS)
	assert.Equal(t, a, b)
}

func TestEvaluateGateRejections(t *testing.T) {
	ctx := context.Background()
	base := config.Default().Strategy

	cases := []struct {
		name   string
		cfg    func(*config.StrategyConfig)
		input  func() Input
		ts     time.Time
		expect Gate
	}{
		{name: "weekend", ts: time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC), expect: GateSession},
		{name: "after hours", ts: evalTS.Add(12 * time.Hour), expect: GateSession},
		{name: "unknown regime", input: func() Input {
			in := setup(risk.Long)
			in.Context = contextSeries(math.NaN())
			return in
		}, expect: GateRegime},
		{name: "empty entry series", input: func() Input {
			in := setup(risk.Long)
			in.Entry = market.NewSeries("15m", nil, nil)
			return in
		}, expect: GateData},
		{name: "no nearby level", input: func() Input {
			in := setup(risk.Long)
			in.Entry.Candles[len(in.Entry.Candles)-1].Close = 2015
			return in
		}, expect: GateProximity},
		{name: "no sweep", input: func() Input {
			in := setup(risk.Long)
			in.Entry.Candles[len(in.Entry.Candles)-3].Low = 2001
			return in
		}, expect: GateSweep},
		{name: "empty context series", input: func() Input {
			in := setup(risk.Long)
			in.Context = market.NewSeries("4h", nil, nil)
			return in
		}, expect: GateRegime},
		{name: "rsi neither oversold nor diverging", input: func() Input {
			in := setup(risk.Long)
			// 38 低于窗口首值 40：没有背离，也未进入超卖
			in.Entry.Frame[market.ColRSI][len(in.Entry.Candles)-1] = 38
			return in
		}, expect: GateConfirmation},
		{name: "stoch not crossed", input: func() Input {
			in := setup(risk.Long)
			in.Entry.Frame[market.ColStochK][len(in.Entry.Candles)-1] = 15
			return in
		}, expect: GateConfirmation},
		{name: "stop too wide", cfg: func(c *config.StrategyConfig) { c.Risk.MaxStopPips = 12 }, expect: GateStopDistance},
		{name: "reward risk", cfg: func(c *config.StrategyConfig) { c.Risk.MinRiskReward = 2 }, expect: GateRiskReward},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			if tc.cfg != nil {
				tc.cfg(&cfg)
			}
			in := setup(risk.Long)
			if tc.input != nil {
				in = tc.input()
			}
			ts := evalTS
			if !tc.ts.IsZero() {
				ts = tc.ts
			}
			d := New(cfg).Evaluate(ctx, in, ts)
			assert.False(t, d.Emitted())
			assert.Equal(t, tc.expect, d.Rejected, d.Detail)
		})
	}
}

func TestEvaluateConfidenceScoring(t *testing.T) {
	last := func(in Input) int { return len(in.Entry.Candles) - 1 }
	cases := []struct {
		name   string
		adx    float64
		cfg    func(*config.StrategyConfig)
		entry  func(Input)
		expect int
	}{
		{name: "base bonuses", adx: 15, expect: 75},
		{name: "rsi divergence", adx: 15, entry: func(in Input) {
			in.Entry.Frame[market.ColRSI][last(in)] = 45
		}, expect: 90},
		{name: "macd divergence", adx: 15, entry: func(in Input) {
			in.Entry.Frame[market.ColMACD][last(in)] = 1
		}, expect: 85},
		{name: "trending regime earns no regime bonus", adx: 30, expect: 65},
		{name: "breakout pending counts as range", adx: 22, expect: 75},
		{name: "no tight stop no volume", adx: 15, cfg: func(c *config.StrategyConfig) {
			c.Confidence.TightStopPips = 10
		}, entry: func(in Input) {
			in.Entry.Frame[market.ColVolumeRatio][last(in)] = 1
		}, expect: 60},
		{name: "all bonuses reach max", adx: 15, entry: func(in Input) {
			in.Entry.Frame[market.ColRSI][last(in)] = 45
			in.Entry.Frame[market.ColMACD][last(in)] = 1
		}, expect: 100},
		{name: "capped below max", adx: 15, cfg: func(c *config.StrategyConfig) {
			c.Confidence.Max = 95
		}, entry: func(in Input) {
			in.Entry.Frame[market.ColRSI][last(in)] = 45
			in.Entry.Frame[market.ColMACD][last(in)] = 1
		}, expect: 95},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default().Strategy
			if tc.cfg != nil {
				tc.cfg(&cfg)
			}
			in := Input{Context: contextSeries(tc.adx), Entry: entrySeries(risk.Long)}
			if tc.entry != nil {
				tc.entry(in)
			}
			d := New(cfg).Evaluate(context.Background(), in, evalTS)
			require.True(t, d.Emitted(), "rejected at %s: %s", d.Rejected, d.Detail)
			assert.Equal(t, tc.expect, d.Signal.Confidence)
		})
	}
}

func TestEvaluateBalanceSource(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default().Strategy

	rich := New(cfg, WithBalance(BalanceFunc(func(context.Context) (float64, error) { return 100000, nil })))
	d := rich.Evaluate(ctx, setup(risk.Long), evalTS)
	require.True(t, d.Emitted())
	assert.Equal(t, 1.0, d.Signal.PositionSize)

	broken := New(cfg, WithBalance(BalanceFunc(func(context.Context) (float64, error) { return 0, errors.New("broker offline") })))
	d = broken.Evaluate(ctx, setup(risk.Long), evalTS)
	require.True(t, d.Emitted())
	assert.Equal(t, 0.1, d.Signal.PositionSize, "falls back to default balance")

	empty := New(cfg, WithBalance(BalanceFunc(func(context.Context) (float64, error) { return 0, nil })))
	d = empty.Evaluate(ctx, setup(risk.Long), evalTS)
	assert.Equal(t, GateSizing, d.Rejected)
}

func TestEvaluateMLFilter(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default().Strategy

	veto := new(mockFilter)
	veto.On("Evaluate", mock.Anything, mock.Anything, mock.Anything).Return(false, 0.3).Once()
	d := New(cfg, WithFilter(veto)).Evaluate(ctx, setup(risk.Long), evalTS)
	assert.False(t, d.Emitted())
	assert.Equal(t, GateMLFilter, d.Rejected)
	require.NotNil(t, d.Candidate)
	require.NotNil(t, d.Candidate.MLConfidence)
	assert.Equal(t, 0.3, *d.Candidate.MLConfidence)
	assert.Equal(t, 75, d.Candidate.Confidence)
	veto.AssertExpectations(t)

	pass := new(mockFilter)
	pass.On("Evaluate", mock.Anything, mock.Anything, mock.MatchedBy(func(s Signal) bool {
		return s.Direction == risk.Long && s.Confidence == 75
	})).Return(true, 0.8).Once()
	d = New(cfg, WithFilter(pass)).Evaluate(ctx, setup(risk.Long), evalTS)
	require.True(t, d.Emitted())
	assert.Equal(t, 0.8, *d.Signal.MLConfidence)
	pass.AssertExpectations(t)
}
