package config

import "strings"

// 默认值常量
const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppHTTPAddr  = ":9991"
	defaultMarketSymbol = "PAXGUSDT"
	defaultMarketREST   = "https://fapi.binance.com"
	defaultMarketHTTP   = 15
	defaultMarketRate   = 600
	defaultContextTF    = "4h"
	defaultEntryTF      = "15m"
	defaultContextBars  = 200
	defaultEntryBars    = 500
	defaultMLThreshold  = 0.65
	defaultMLTimeout    = 5
	defaultCandleDir    = "data/candles"
	defaultRunDB        = "data/runs.db"
	defaultScanInterval = 15
)

var (
	defaultTPRatios  = []float64{1.5, 2.5, 4.0}
	defaultTPWeights = []float64{45, 30, 25}
)

// Default 返回全部默认值组成的配置（等价于加载一个空文件）。
func Default() Config {
	var c Config
	c.applyDefaults(keySet{})
	return c
}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.MLFilter.applyDefaults(keys)
	c.Storage.applyDefaults(keys)
	c.Scanner.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("market.symbol", &m.Symbol, defaultMarketSymbol),
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		intFieldDefault("market.http_timeout_seconds", &m.HTTPTimeoutSeconds, defaultMarketHTTP),
		stringFieldDefault("market.context_timeframe", &m.ContextTimeframe, defaultContextTF),
		stringFieldDefault("market.entry_timeframe", &m.EntryTimeframe, defaultEntryTF),
		intFieldDefault("market.context_bars", &m.ContextBars, defaultContextBars),
		intFieldDefault("market.entry_bars", &m.EntryBars, defaultEntryBars),
		intFieldDefault("market.rate_limit_per_min", &m.RateLimitPerMin, defaultMarketRate),
	)
	m.Symbol = strings.ToUpper(strings.TrimSpace(m.Symbol))
}

func (s *StrategyConfig) applyDefaults(keys keySet) {
	in := &s.Instrument
	applyFieldDefaults(keys,
		floatFieldDefault("strategy.instrument.pip_size", &in.PipSize, 0.10),
		floatFieldDefault("strategy.instrument.pip_value", &in.PipValue, 10),
		floatFieldDefault("strategy.instrument.contract_size", &in.ContractSize, 100),
		fieldDefault{
			key:   "strategy.instrument.price_precision",
			need:  func() bool { return in.PricePrecision <= 0 },
			apply: func() { in.PricePrecision = 2 },
		},
	)

	ind := &s.Indicators
	applyFieldDefaults(keys,
		intFieldDefault("strategy.indicators.ema_fast", &ind.EMAFast, 20),
		intFieldDefault("strategy.indicators.ema_slow", &ind.EMASlow, 50),
		intFieldDefault("strategy.indicators.adx_period", &ind.ADXPeriod, 14),
		intFieldDefault("strategy.indicators.bb_period", &ind.BBPeriod, 20),
		floatFieldDefault("strategy.indicators.bb_dev", &ind.BBDev, 2),
		intFieldDefault("strategy.indicators.rsi_period", &ind.RSIPeriod, 14),
		intFieldDefault("strategy.indicators.stoch_k", &ind.StochK, 5),
		intFieldDefault("strategy.indicators.stoch_d", &ind.StochD, 3),
		intFieldDefault("strategy.indicators.macd_fast", &ind.MACDFast, 12),
		intFieldDefault("strategy.indicators.macd_slow", &ind.MACDSlow, 26),
		intFieldDefault("strategy.indicators.macd_signal", &ind.MACDSignal, 9),
		intFieldDefault("strategy.indicators.atr_period", &ind.ATRPeriod, 14),
		intFieldDefault("strategy.indicators.volume_ma", &ind.VolumeMA, 20),
	)

	rg := &s.Regime
	applyFieldDefaults(keys,
		floatFieldDefault("strategy.regime.adx_trending", &rg.ADXTrending, 25),
		floatFieldDefault("strategy.regime.adx_ranging", &rg.ADXRanging, 20),
		floatFieldDefault("strategy.regime.bb_width_max", &rg.BBWidthMax, 0.02),
	)

	lv := &s.Levels
	applyFieldDefaults(keys,
		intFieldDefault("strategy.levels.catalog_lookback", &lv.CatalogLookback, 200),
		intFieldDefault("strategy.levels.swing_lookback", &lv.SwingLookback, 50),
		intFieldDefault("strategy.levels.fib_lookback", &lv.FibLookback, 100),
		floatFieldDefault("strategy.levels.round_step", &lv.RoundStep, 50),
		intFieldDefault("strategy.levels.asian_end_hour", &lv.AsianEndHour, 8),
		floatFieldDefault("strategy.levels.max_distance_pips", &lv.MaxDistancePips, 20),
		intFieldDefault("strategy.levels.sweep_lookback", &lv.SweepLookback, 10),
	)

	mo := &s.Momentum
	applyFieldDefaults(keys,
		floatFieldDefault("strategy.momentum.rsi_oversold", &mo.RSIOversold, 35),
		floatFieldDefault("strategy.momentum.rsi_overbought", &mo.RSIOverbought, 65),
		floatFieldDefault("strategy.momentum.stoch_long_max", &mo.StochLongMax, 30),
		floatFieldDefault("strategy.momentum.stoch_short_min", &mo.StochShortMin, 70),
		intFieldDefault("strategy.momentum.divergence_lookback", &mo.DivergenceLookback, 14),
	)

	rk := &s.Risk
	applyFieldDefaults(keys,
		floatFieldDefault("strategy.risk.risk_percent", &rk.RiskPercent, 1.5),
		floatFieldDefault("strategy.risk.max_stop_pips", &rk.MaxStopPips, 30),
		floatFieldDefault("strategy.risk.stop_buffer_pips", &rk.StopBufferPips, 10),
		floatSliceFieldDefault("strategy.risk.tp_ratios", &rk.TPRatios, defaultTPRatios),
		floatSliceFieldDefault("strategy.risk.tp_weights", &rk.TPWeights, defaultTPWeights),
		floatFieldDefault("strategy.risk.min_risk_reward", &rk.MinRiskReward, 1.5),
		floatFieldDefault("strategy.risk.min_lot", &rk.MinLot, 0.01),
		fieldDefault{
			key:   "strategy.risk.lot_precision",
			need:  func() bool { return rk.LotPrecision <= 0 },
			apply: func() { rk.LotPrecision = 2 },
		},
		floatFieldDefault("strategy.risk.default_balance", &rk.DefaultBalance, 10000),
	)

	ss := &s.Session
	applyFieldDefaults(keys,
		stringFieldDefault("strategy.session.timezone", &ss.Timezone, "UTC"),
		boolFieldDefault("strategy.session.skip_weekends", &ss.SkipWeekends, true),
		fieldDefault{
			key:  "strategy.session.windows",
			need: func() bool { return len(ss.Windows) == 0 },
			apply: func() {
				ss.Windows = []SessionWindow{
					{Name: "London", Open: 8, Close: 16},
					{Name: "New York", Open: 13, Close: 21},
				}
			},
		},
	)

	cf := &s.Confidence
	applyFieldDefaults(keys,
		floatFieldDefault("strategy.confidence.base", &cf.Base, 50),
		floatFieldDefault("strategy.confidence.divergence", &cf.Divergence, 15),
		floatFieldDefault("strategy.confidence.macd_divergence", &cf.MACDDivergence, 10),
		floatFieldDefault("strategy.confidence.regime", &cf.Regime, 10),
		floatFieldDefault("strategy.confidence.tight_stop", &cf.TightStop, 10),
		floatFieldDefault("strategy.confidence.tight_stop_pips", &cf.TightStopPips, 20),
		floatFieldDefault("strategy.confidence.volume", &cf.Volume, 5),
		floatFieldDefault("strategy.confidence.volume_ratio", &cf.VolumeRatio, 1.2),
		floatFieldDefault("strategy.confidence.max", &cf.Max, 100),
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("backtest.initial_capital", &b.InitialCapital, 10000),
		intFieldDefault("backtest.warmup_bars", &b.WarmupBars, 100),
		intFieldDefault("backtest.tail_buffer", &b.TailBuffer, 50),
		intFieldDefault("backtest.min_entry_bars", &b.MinEntryBars, 100),
		intFieldDefault("backtest.forward_window", &b.ForwardWindow, 500),
		intFieldDefault("backtest.max_holding_bars", &b.MaxHoldingBars, 100),
		intFieldDefault("backtest.context_bars", &b.ContextBars, 5000),
		intFieldDefault("backtest.entry_bars", &b.EntryBars, 10000),
		intFieldDefault("backtest.max_concurrent", &b.MaxConcurrent, 2),
	)
}

func (m *MLFilterConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("ml_filter.threshold", &m.Threshold, defaultMLThreshold),
		intFieldDefault("ml_filter.timeout_seconds", &m.TimeoutSeconds, defaultMLTimeout),
	)
	m.Endpoint = strings.TrimSpace(m.Endpoint)
}

func (s *StorageConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("storage.candle_dir", &s.CandleDir, defaultCandleDir),
		stringFieldDefault("storage.run_db", &s.RunDB, defaultRunDB),
	)
}

func (s *ScannerConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("scanner.interval_minutes", &s.IntervalMinutes, defaultScanInterval),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target == 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target == 0 },
		apply: func() { *target = def },
	}
}

func floatSliceFieldDefault(key string, target *[]float64, def []float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return len(*target) == 0 },
		apply: func() { *target = append([]float64(nil), def...) },
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:   key,
		apply: func() { *target = def },
	}
}
