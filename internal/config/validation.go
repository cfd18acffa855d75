package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Strategy.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.MLFilter.validate(); err != nil {
		return err
	}
	if c.Scanner.IntervalMinutes <= 0 {
		return fmt.Errorf("scanner.interval_minutes must be > 0")
	}
	return nil
}

// Validate 供外部（如参数扫描覆盖后）重新校验。
func (c Config) Validate() error {
	return validate(&c)
}

func (m *MarketConfig) validate() error {
	if m.Symbol == "" {
		return fmt.Errorf("market.symbol 不能为空")
	}
	if strings.TrimSpace(m.ContextTimeframe) == "" || strings.TrimSpace(m.EntryTimeframe) == "" {
		return fmt.Errorf("market.context_timeframe / entry_timeframe 不能为空")
	}
	if m.ContextBars <= 0 || m.EntryBars <= 0 {
		return fmt.Errorf("market.context_bars / entry_bars must be > 0")
	}
	return nil
}

func (s *StrategyConfig) validate() error {
	in := s.Instrument
	if in.PipSize <= 0 || in.PipValue <= 0 || in.ContractSize <= 0 {
		return fmt.Errorf("strategy.instrument pip_size/pip_value/contract_size must be > 0")
	}
	if s.Regime.ADXRanging > s.Regime.ADXTrending {
		return fmt.Errorf("strategy.regime.adx_ranging (%.2f) must be <= adx_trending (%.2f)",
			s.Regime.ADXRanging, s.Regime.ADXTrending)
	}
	if s.Momentum.RSIOversold >= s.Momentum.RSIOverbought {
		return fmt.Errorf("strategy.momentum.rsi_oversold must be < rsi_overbought")
	}
	if s.Momentum.DivergenceLookback < 2 {
		return fmt.Errorf("strategy.momentum.divergence_lookback must be >= 2")
	}
	lv := s.Levels
	if lv.SweepLookback < 3 {
		return fmt.Errorf("strategy.levels.sweep_lookback must be >= 3")
	}
	if lv.MaxDistancePips <= 0 || lv.RoundStep <= 0 {
		return fmt.Errorf("strategy.levels max_distance_pips/round_step must be > 0")
	}
	if lv.AsianStartHour < 0 || lv.AsianEndHour > 24 || lv.AsianStartHour >= lv.AsianEndHour {
		return fmt.Errorf("strategy.levels asian window invalid: %d-%d", lv.AsianStartHour, lv.AsianEndHour)
	}
	if err := s.Risk.validate(); err != nil {
		return err
	}
	return s.Session.validate()
}

func (r *RiskConfig) validate() error {
	if r.RiskPercent <= 0 {
		return fmt.Errorf("strategy.risk.risk_percent must be > 0")
	}
	if r.MaxStopPips <= 0 || r.StopBufferPips <= 0 {
		return fmt.Errorf("strategy.risk max_stop_pips/stop_buffer_pips must be > 0")
	}
	if len(r.TPRatios) != 3 {
		return fmt.Errorf("strategy.risk.tp_ratios requires exactly 3 values, got %d", len(r.TPRatios))
	}
	for i := 1; i < len(r.TPRatios); i++ {
		if r.TPRatios[i] <= r.TPRatios[i-1] || r.TPRatios[i-1] <= 0 {
			return fmt.Errorf("strategy.risk.tp_ratios must be positive and ascending")
		}
	}
	if len(r.TPWeights) != 3 {
		return fmt.Errorf("strategy.risk.tp_weights requires exactly 3 values, got %d", len(r.TPWeights))
	}
	sum := 0.0
	for _, w := range r.TPWeights {
		sum += w
	}
	if math.Abs(sum-100) > 1e-9 {
		return fmt.Errorf("strategy.risk.tp_weights must sum to 100, got %.2f", sum)
	}
	if r.MinRiskReward <= 0 || r.MinLot <= 0 {
		return fmt.Errorf("strategy.risk min_risk_reward/min_lot must be > 0")
	}
	if r.DefaultBalance <= 0 {
		return fmt.Errorf("strategy.risk.default_balance must be > 0")
	}
	return nil
}

func (s *SessionConfig) validate() error {
	if tz := strings.TrimSpace(s.Timezone); tz != "" && !strings.EqualFold(tz, "utc") {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("strategy.session.timezone invalid: %w", err)
		}
	}
	if len(s.Windows) == 0 {
		return fmt.Errorf("strategy.session.windows 不能为空")
	}
	for _, w := range s.Windows {
		if strings.TrimSpace(w.Name) == "" {
			return fmt.Errorf("strategy.session.windows contains entry without name")
		}
		if w.Open < 0 || w.Close > 24 || w.Open >= w.Close {
			return fmt.Errorf("strategy.session.windows.%s hours invalid: %d-%d", w.Name, w.Open, w.Close)
		}
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be > 0")
	}
	if b.WarmupBars < 1 || b.TailBuffer < 0 {
		return fmt.Errorf("backtest.warmup_bars must be >= 1 and tail_buffer >= 0")
	}
	if b.MaxHoldingBars <= 0 {
		return fmt.Errorf("backtest.max_holding_bars must be > 0")
	}
	if b.ForwardWindow < b.MaxHoldingBars {
		return fmt.Errorf("backtest.forward_window (%d) must be >= max_holding_bars (%d)", b.ForwardWindow, b.MaxHoldingBars)
	}
	if b.MaxConcurrent <= 0 {
		return fmt.Errorf("backtest.max_concurrent must be > 0")
	}
	return nil
}

func (m *MLFilterConfig) validate() error {
	if m.Threshold < 0 || m.Threshold > 1 {
		return fmt.Errorf("ml_filter.threshold must be within [0,1]")
	}
	if m.Enabled && m.Endpoint == "" {
		return fmt.Errorf("ml_filter.endpoint 不能为空 when enabled")
	}
	return nil
}
