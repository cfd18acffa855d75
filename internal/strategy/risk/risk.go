package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"goldsweep/internal/config"
)

var (
	ErrZeroRisk         = errors.New("risk: zero stop distance")
	ErrStopTooWide      = errors.New("risk: stop distance exceeds max")
	ErrInvalidBalance   = errors.New("risk: balance must be positive")
	ErrInvalidDirection = errors.New("risk: invalid direction")
)

// Direction 是交易方向。
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

func (d Direction) Valid() bool { return d == Long || d == Short }

// Sign 多头为 +1，空头为 -1。
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Targets 是三个分批止盈价。
type Targets struct {
	TP1 float64 `json:"tp1"`
	TP2 float64 `json:"tp2"`
	TP3 float64 `json:"tp3"`
}

func (t Targets) All() [3]float64 { return [3]float64{t.TP1, t.TP2, t.TP3} }

// Metrics 是随信号附带的风险指标。
type Metrics struct {
	PipRisk        float64 `json:"pips_risk"`
	PipTP1         float64 `json:"pips_tp1"`
	PipTP2         float64 `json:"pips_tp2"`
	PipTP3         float64 `json:"pips_tp3"`
	RiskAmount     float64 `json:"risk_dollars"`
	ExpectedReward float64 `json:"expected_reward"`
	RewardRisk     float64 `json:"rr_ratio"`
}

// Calibrator 负责仓位、止损止盈与盈亏比计算；全部为纯函数。
type Calibrator struct {
	cfg  config.RiskConfig
	inst config.InstrumentConfig
}

func NewCalibrator(cfg config.RiskConfig, inst config.InstrumentConfig) *Calibrator {
	return &Calibrator{cfg: cfg, inst: inst}
}

// Pips 返回两价之间的 pip 距离（十进制计算，避免 2.5/0.1 之类的浮点误差）。
func (c *Calibrator) Pips(a, b float64) float64 {
	return c.pips(a, b).InexactFloat64()
}

func (c *Calibrator) pips(a, b float64) decimal.Decimal {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs().
		Div(decimal.NewFromFloat(c.inst.PipSize))
}

// StopLoss 把止损放在关键位之外 stop_buffer_pips。
func (c *Calibrator) StopLoss(level float64, dir Direction) float64 {
	buffer := decimal.NewFromFloat(c.cfg.StopBufferPips).Mul(decimal.NewFromFloat(c.inst.PipSize))
	lv := decimal.NewFromFloat(level)
	if dir == Short {
		return lv.Add(buffer).InexactFloat64()
	}
	return lv.Sub(buffer).InexactFloat64()
}

// StopTooWide 判断止损距离是否超过上限。
func (c *Calibrator) StopTooWide(entry, stop float64) bool {
	return c.pips(entry, stop).GreaterThan(decimal.NewFromFloat(c.cfg.MaxStopPips))
}

// PositionSize = balance × risk_percent/1000 ÷ (pips × pip_value)，保留 lot_precision 位，不低于 min_lot。
// 出错时手数为 0。
func (c *Calibrator) PositionSize(balance, entry, stop float64) (float64, error) {
	if balance <= 0 || math.IsNaN(balance) || math.IsInf(balance, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidBalance, balance)
	}
	pips := c.pips(entry, stop)
	if pips.IsZero() {
		return 0, ErrZeroRisk
	}
	if pips.GreaterThan(decimal.NewFromFloat(c.cfg.MaxStopPips)) {
		return 0, fmt.Errorf("%w: %s pips > %.1f", ErrStopTooWide, pips.StringFixed(1), c.cfg.MaxStopPips)
	}
	size := c.riskAmount(balance).
		Div(pips.Mul(decimal.NewFromFloat(c.inst.PipValue))).
		Round(c.cfg.LotPrecision)
	if minLot := decimal.NewFromFloat(c.cfg.MinLot); size.LessThan(minLot) {
		size = minLot
	}
	return size.InexactFloat64(), nil
}

func (c *Calibrator) riskAmount(balance float64) decimal.Decimal {
	return decimal.NewFromFloat(balance).
		Mul(decimal.NewFromFloat(c.cfg.RiskPercent)).
		Div(decimal.NewFromInt(1000))
}

// Targets 按 tp_ratios 倍止损距离计算三个方向性止盈。
func (c *Calibrator) Targets(entry, stop float64, dir Direction) (Targets, error) {
	if !dir.Valid() {
		return Targets{}, fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}
	e := decimal.NewFromFloat(entry)
	r := e.Sub(decimal.NewFromFloat(stop)).Abs()
	if r.IsZero() {
		return Targets{}, ErrZeroRisk
	}
	var out [3]float64
	for i, ratio := range c.cfg.TPRatios[:3] {
		move := r.Mul(decimal.NewFromFloat(ratio))
		if dir == Long {
			out[i] = e.Add(move).InexactFloat64()
		} else {
			out[i] = e.Sub(move).InexactFloat64()
		}
	}
	return Targets{TP1: out[0], TP2: out[1], TP3: out[2]}, nil
}

// RewardRisk 返回 |tp-entry| / |entry-stop|；止损距离为 0 时返回 ErrZeroRisk。
func (c *Calibrator) RewardRisk(entry, stop, tp float64) (float64, error) {
	e := decimal.NewFromFloat(entry)
	r := e.Sub(decimal.NewFromFloat(stop)).Abs()
	if r.IsZero() {
		return 0, ErrZeroRisk
	}
	reward := decimal.NewFromFloat(tp).Sub(e).Abs()
	return reward.DivRound(r, 8).InexactFloat64(), nil
}

// ValidateRiskReward 判断盈亏比是否达到 min_risk_reward。
func (c *Calibrator) ValidateRiskReward(entry, stop, tp float64) bool {
	rr, err := c.RewardRisk(entry, stop, tp)
	if err != nil {
		return false
	}
	return decimal.NewFromFloat(rr).GreaterThanOrEqual(decimal.NewFromFloat(c.cfg.MinRiskReward))
}

// Metrics 计算止损/止盈 pip 数、风险金额、按 tp_weights 加权的预期收益与盈亏比。
func (c *Calibrator) Metrics(entry, stop float64, t Targets, balance float64) Metrics {
	pipRisk := c.pips(entry, stop)
	tps := t.All()
	var pipTP [3]decimal.Decimal
	for i, tp := range tps {
		pipTP[i] = c.pips(tp, entry)
	}
	riskAmount := c.riskAmount(balance)
	m := Metrics{
		PipRisk:    pipRisk.Round(1).InexactFloat64(),
		PipTP1:     pipTP[0].Round(1).InexactFloat64(),
		PipTP2:     pipTP[1].Round(1).InexactFloat64(),
		PipTP3:     pipTP[2].Round(1).InexactFloat64(),
		RiskAmount: riskAmount.Round(2).InexactFloat64(),
	}
	if pipRisk.IsZero() {
		return m
	}
	expected := decimal.Zero
	for i, w := range c.cfg.TPWeights[:3] {
		expected = expected.Add(decimal.NewFromFloat(w).Div(decimal.NewFromInt(100)).Mul(pipTP[i]))
	}
	m.ExpectedReward = riskAmount.Mul(expected).Div(pipRisk).Round(2).InexactFloat64()
	m.RewardRisk = pipTP[0].Div(pipRisk).Round(2).InexactFloat64()
	return m
}
