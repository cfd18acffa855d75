package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"goldsweep/internal/config"
	"goldsweep/internal/logger"
	"goldsweep/internal/market"
	"goldsweep/internal/strategy/risk"
	"goldsweep/internal/strategy/signal"
)

// ErrInsufficientData 表示上下文序列不足以覆盖预热区与尾部缓冲。
var ErrInsufficientData = errors.New("backtest: insufficient data")

// Evaluator 是单点评估能力，*signal.Pipeline 实现了它。
type Evaluator interface {
	Evaluate(ctx context.Context, in signal.Input, ts time.Time) signal.Decision
}

// EvaluatorFactory 为每次运行构造评估器；balance 返回该次运行的实时资金。
type EvaluatorFactory func(balance signal.BalanceSource) Evaluator

type Option func(*Simulator)

// WithFilter 让默认管线挂上 ML 过滤器。
func WithFilter(f signal.Filter) Option {
	return func(s *Simulator) { s.filter = f }
}

// WithEvaluatorFactory 替换默认的信号管线。
func WithEvaluatorFactory(fn EvaluatorFactory) Option {
	return func(s *Simulator) { s.newEvaluator = fn }
}

// Simulator 在历史数据上逐根推进上下文周期，每个时点只看得到不晚于该时点的数据。
// Simulator 自身不保存运行状态，同一实例可以并发执行多次 Run。
type Simulator struct {
	cfg          config.BacktestConfig
	strategy     config.StrategyConfig
	filter       signal.Filter
	newEvaluator EvaluatorFactory
	log          logger.Entry
}

func NewSimulator(cfg config.BacktestConfig, strategy config.StrategyConfig, opts ...Option) *Simulator {
	s := &Simulator{
		cfg:      cfg,
		strategy: strategy,
		log:      logger.With("backtest"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.newEvaluator == nil {
		s.newEvaluator = s.defaultEvaluator
	}
	return s
}

func (s *Simulator) defaultEvaluator(balance signal.BalanceSource) Evaluator {
	opts := []signal.Option{signal.WithBalance(balance)}
	if s.filter != nil {
		opts = append(opts, signal.WithFilter(s.filter))
	}
	return signal.New(s.strategy, opts...)
}

// runState 只属于一次 Run，资金按交易结算顺序更新。
type runState struct {
	capital float64
}

func (st *runState) CurrentBalance(context.Context) (float64, error) {
	return st.capital, nil
}

// Run 遍历上下文序列 [warmup, len-tail_buffer)。context 与 entry 都应已附带指标列。
// 返回的错误只有三类：输入损坏（market.ErrCorruptSeries）、数据不足（ErrInsufficientData）和 ctx 取消。
func (s *Simulator) Run(ctx context.Context, contextSeries, entry market.Series) (Result, error) {
	if err := market.ValidateCandles(contextSeries.Candles); err != nil {
		return Result{}, fmt.Errorf("context series: %w", err)
	}
	if err := market.ValidateCandles(entry.Candles); err != nil {
		return Result{}, fmt.Errorf("entry series: %w", err)
	}
	start := s.cfg.WarmupBars
	end := contextSeries.Len() - s.cfg.TailBuffer
	if end <= start {
		return Result{}, fmt.Errorf("%w: %d context bars, need more than %d (warmup %d + tail %d)",
			ErrInsufficientData, contextSeries.Len(), start+s.cfg.TailBuffer, start, s.cfg.TailBuffer)
	}

	st := &runState{capital: s.cfg.InitialCapital}
	eval := s.newEvaluator(st)
	res := Result{
		EquityCurve: []EquityPoint{{Time: contextSeries.Candles[start].Time(), Equity: st.capital}},
		GateStats:   make(map[signal.Gate]int),
	}

	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		ts := contextSeries.Candles[i].Time()
		entryView := entry.Until(ts)
		if entryView.Len() < s.cfg.MinEntryBars {
			res.Skipped++
			continue
		}
		res.Evaluated++
		d := eval.Evaluate(ctx, signal.Input{Context: contextSeries.Head(i + 1), Entry: entryView}, ts)
		if !d.Emitted() {
			res.GateStats[d.Rejected]++
			continue
		}
		res.Signals++
		trade, ok := s.resolve(*d.Signal, entry.After(ts, s.cfg.ForwardWindow))
		if !ok {
			res.Abandoned++
			s.log.Debugf("%s @ %.2f abandoned after %d bars", d.Signal.Direction, d.Signal.Entry, s.cfg.MaxHoldingBars)
			continue
		}
		st.capital = decimal.NewFromFloat(st.capital).Add(decimal.NewFromFloat(trade.PnL)).Round(2).InexactFloat64()
		trade.Balance = st.capital
		res.Trades = append(res.Trades, trade)
		res.EquityCurve = append(res.EquityCurve, EquityPoint{Time: trade.ClosedAt, Equity: st.capital})
		s.log.Infof("trade #%d %s %s pnl %.2f balance %.2f", len(res.Trades), trade.Direction, trade.Outcome, trade.PnL, st.capital)
	}

	res.Metrics = ComputeMetrics(s.cfg.InitialCapital, res.Trades, res.Equity())
	return res, nil
}

// resolve 逐根检查前向 K 线：同一根内先判止损再判 TP1；超过 max_holding_bars 未触发则放弃。
func (s *Simulator) resolve(sig signal.Signal, forward []market.Candle) (Trade, bool) {
	if sig.PositionSize <= 0 {
		return Trade{}, false
	}
	tp := sig.TP1()
	for j, bar := range forward {
		if j >= s.cfg.MaxHoldingBars {
			break
		}
		var (
			exit    float64
			outcome Outcome
		)
		switch sig.Direction {
		case risk.Long:
			if bar.Low <= sig.StopLoss {
				exit, outcome = sig.StopLoss, OutcomeLoss
			} else if bar.High >= tp {
				exit, outcome = tp, OutcomeWin
			}
		case risk.Short:
			if bar.High >= sig.StopLoss {
				exit, outcome = sig.StopLoss, OutcomeLoss
			} else if bar.Low <= tp {
				exit, outcome = tp, OutcomeWin
			}
		}
		if outcome == "" {
			continue
		}
		return s.settle(sig, exit, outcome, j+1, bar), true
	}
	return Trade{}, false
}

// settle 计算盈亏：方向化价差 × 手数 × 合约单位。
func (s *Simulator) settle(sig signal.Signal, exit float64, outcome Outcome, bars int, bar market.Candle) Trade {
	diff := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(sig.Entry)).Mul(decimal.NewFromFloat(sig.Direction.Sign()))
	pnl := diff.Mul(decimal.NewFromFloat(sig.PositionSize)).
		Mul(decimal.NewFromFloat(s.strategy.Instrument.ContractSize)).
		Round(2)
	pips := decimal.Zero
	if s.strategy.Instrument.PipSize > 0 {
		pips = diff.Div(decimal.NewFromFloat(s.strategy.Instrument.PipSize)).Round(1)
	}
	return Trade{
		Direction:    sig.Direction,
		Entry:        sig.Entry,
		Exit:         exit,
		StopLoss:     sig.StopLoss,
		TakeProfit:   sig.TP1(),
		Outcome:      outcome,
		PnL:          pnl.InexactFloat64(),
		Pips:         pips.InexactFloat64(),
		BarsHeld:     bars,
		OpenedAt:     sig.GeneratedAt,
		ClosedAt:     bar.Time(),
		PositionSize: sig.PositionSize,
		Confidence:   sig.Confidence,
		LevelName:    sig.LevelName,
		Session:      sig.Session,
	}
}
