package signal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"goldsweep/internal/config"
	"goldsweep/internal/logger"
	"goldsweep/internal/market"
	"goldsweep/internal/strategy/levels"
	"goldsweep/internal/strategy/momentum"
	"goldsweep/internal/strategy/regime"
	"goldsweep/internal/strategy/risk"
	"goldsweep/internal/strategy/session"
)

// Pipeline 按固定顺序执行各关卡，每次评估至多产出一个信号。
// 组件本身无状态，同一个 Pipeline 可被多个回测实例复用。
type Pipeline struct {
	cfg        config.StrategyConfig
	session    *session.Gate
	classifier *regime.Classifier
	locator    *levels.Locator
	confirmer  *momentum.Confirmer
	calibrator *risk.Calibrator
	balance    BalanceSource
	filter     Filter
	log        logger.Entry
}

type Option func(*Pipeline)

func WithBalance(src BalanceSource) Option {
	return func(p *Pipeline) { p.balance = src }
}

func WithFilter(f Filter) Option {
	return func(p *Pipeline) { p.filter = f }
}

func New(cfg config.StrategyConfig, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		session:    session.New(cfg.Session),
		classifier: regime.NewClassifier(cfg.Regime),
		locator:    levels.NewLocator(cfg.Levels, cfg.Instrument),
		confirmer:  momentum.NewConfirmer(cfg.Momentum),
		calibrator: risk.NewCalibrator(cfg.Risk, cfg.Instrument),
		log:        logger.With("pipeline"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Evaluate 在 ts 时点评估一次。输入序列必须已截断到 ts（不含未来 K 线）。
func (p *Pipeline) Evaluate(ctx context.Context, in Input, ts time.Time) Decision {
	if p.cfg.Session.SkipWeekends && p.session.IsWeekend(ts) {
		return p.reject(GateSession, "weekend")
	}
	if !p.session.Active(ts) {
		return p.reject(GateSession, "outside trading sessions (%s)", p.session.Name(ts))
	}

	rg := p.classifier.Classify(in.Context)
	if !regime.IsFavorable(rg.Regime) {
		return p.reject(GateRegime, "unfavorable regime: %s", rg.Regime)
	}

	// 上下文为空时 regime 已先以 unknown 拒绝，这里只做兜底。
	cat := p.locator.Catalog(in.Context, in.Daily)
	if cat.Empty() {
		return p.reject(GateCatalog, "no structural levels")
	}

	last, ok := in.Entry.Last()
	if !ok {
		return p.reject(GateData, "entry series empty")
	}
	price := last.Close
	lvl, ok := p.locator.Nearest(price, cat)
	if !ok {
		return p.reject(GateProximity, "no level within %.0f pips of %.2f", p.cfg.Levels.MaxDistancePips, price)
	}

	sweep := p.locator.DetectSweep(in.Entry, lvl.Price)
	if !sweep.Detected {
		return p.reject(GateSweep, "no sweep at %s %.2f", lvl.Name, lvl.Price)
	}

	dir := risk.Long
	if sweep.Direction == levels.SweepAbove {
		dir = risk.Short
	}
	check := p.confirmer.Confirm(in.Entry, dir, price, lvl.Price)
	if !check.Confirmed() {
		return p.reject(GateConfirmation, "%s not confirmed: rsi=%.1f(%t) stoch=%.1f/%.1f(%t) price(%t)",
			dir, check.RSI, check.RSIOK, check.StochK, check.StochD, check.StochOK, check.PriceOK)
	}

	stop := p.calibrator.StopLoss(lvl.Price, dir)
	if p.calibrator.StopTooWide(price, stop) {
		return p.reject(GateStopDistance, "stop too wide: %.1f pips", p.calibrator.Pips(price, stop))
	}
	targets, err := p.calibrator.Targets(price, stop, dir)
	if err != nil {
		return p.reject(GateRiskReward, "targets: %v", err)
	}
	if !p.calibrator.ValidateRiskReward(price, stop, targets.TP1) {
		return p.reject(GateRiskReward, "reward/risk below %.2f", p.cfg.Risk.MinRiskReward)
	}
	balance := p.currentBalance(ctx)
	size, err := p.calibrator.PositionSize(balance, price, stop)
	if err != nil {
		return p.reject(GateSizing, "%v", err)
	}
	metrics := p.calibrator.Metrics(price, stop, targets, balance)

	sig := &Signal{
		Direction:    dir,
		Entry:        p.round(price),
		StopLoss:     p.round(stop),
		PositionSize: size,
		Confidence:   p.confidence(in.Entry, rg.Regime, check, p.calibrator.Pips(price, stop)),
		Regime:       rg.Regime,
		RegimeLabel:  rg.Regime.Description(),
		ADX:          rg.ADX,
		LevelName:    lvl.Name,
		LevelPrice:   p.round(lvl.Price),
		Sweep:        sweep,
		Session:      p.session.Name(ts),
		GeneratedAt:  ts.UTC(),
		Risk:         metrics,
	}
	for i, tp := range targets.All() {
		sig.TakeProfits[i] = TakeProfit{Price: p.round(tp), Weight: p.cfg.Risk.TPWeights[i]}
	}

	if p.filter != nil {
		accept, conf := p.filter.Evaluate(ctx, in, *sig)
		sig.MLConfidence = &conf
		if !accept {
			p.log.Infof("%s candidate vetoed by ml filter (p=%.3f, confidence=%d)", sig.Direction, conf, sig.Confidence)
			return Decision{Candidate: sig, Rejected: GateMLFilter, Detail: fmt.Sprintf("ml probability %.3f", conf)}
		}
	}

	p.log.Infof("SIGNAL %s @ %.2f SL %.2f TP1 %.2f lot %.2f conf %d level %s session %s",
		sig.Direction, sig.Entry, sig.StopLoss, sig.TP1(), sig.PositionSize, sig.Confidence, sig.LevelName, sig.Session)
	return Decision{Signal: sig}
}

func (p *Pipeline) reject(gate Gate, format string, args ...any) Decision {
	detail := fmt.Sprintf(format, args...)
	p.log.Debugf("rejected at %s: %s", gate, detail)
	return Decision{Rejected: gate, Detail: detail}
}

func (p *Pipeline) currentBalance(ctx context.Context) float64 {
	if p.balance == nil {
		return p.cfg.Risk.DefaultBalance
	}
	bal, err := p.balance.CurrentBalance(ctx)
	if err != nil {
		p.log.Warnf("balance unavailable, using default %.2f: %v", p.cfg.Risk.DefaultBalance, err)
		return p.cfg.Risk.DefaultBalance
	}
	return bal
}

// confidence 基础分 + 背离/区间/紧止损/放量加分，封顶 max。
func (p *Pipeline) confidence(entry market.Series, rg regime.Regime, check momentum.Check, pipRisk float64) int {
	cf := p.cfg.Confidence
	score := cf.Base
	if check.Divergence != momentum.NoDivergence {
		score += cf.Divergence
	}
	if p.confirmer.MACDDivergence(entry) != momentum.NoDivergence {
		score += cf.MACDDivergence
	}
	if rg == regime.Range || rg == regime.BreakoutPending {
		score += cf.Regime
	}
	if pipRisk < cf.TightStopPips {
		score += cf.TightStop
	}
	if vr, ok := entry.Latest(market.ColVolumeRatio); ok && vr > cf.VolumeRatio {
		score += cf.Volume
	}
	return int(math.Round(math.Min(score, cf.Max)))
}

func (p *Pipeline) round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(p.cfg.Instrument.PricePrecision).InexactFloat64()
}
