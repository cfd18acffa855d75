package config

import (
	"strings"
	"time"
	_ "time/tzdata"
)

// Config 是 goldsweep 的主配置载体，加载后只读，按值注入各组件。
type Config struct {
	App      AppConfig      `toml:"app"`
	Market   MarketConfig   `toml:"market"`
	Strategy StrategyConfig `toml:"strategy"`
	Backtest BacktestConfig `toml:"backtest"`
	MLFilter MLFilterConfig `toml:"ml_filter"`
	Storage  StorageConfig  `toml:"storage"`
	Scanner  ScannerConfig  `toml:"scanner"`
}

type AppConfig struct {
	Env         string `toml:"env"`
	LogLevel    string `toml:"log_level"`
	LogPath     string `toml:"log_path"`
	JournalPath string `toml:"journal_path"`
	HTTPAddr    string `toml:"http_addr"`
}

// MarketConfig 描述行情来源与拉取窗口。
type MarketConfig struct {
	Symbol             string `toml:"symbol"`
	RESTBaseURL        string `toml:"rest_base_url"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
	ContextTimeframe   string `toml:"context_timeframe"`
	EntryTimeframe     string `toml:"entry_timeframe"`
	ContextBars        int    `toml:"context_bars"`
	EntryBars          int    `toml:"entry_bars"`
	RateLimitPerMin    int    `toml:"rate_limit_per_min"`
}

func (m MarketConfig) HTTPTimeout() time.Duration {
	return time.Duration(m.HTTPTimeoutSeconds) * time.Second
}

// StrategyConfig 汇总信号管线全部阈值。
type StrategyConfig struct {
	Instrument InstrumentConfig `toml:"instrument"`
	Indicators IndicatorConfig  `toml:"indicators"`
	Regime     RegimeConfig     `toml:"regime"`
	Levels     LevelsConfig     `toml:"levels"`
	Momentum   MomentumConfig   `toml:"momentum"`
	Risk       RiskConfig       `toml:"risk"`
	Session    SessionConfig    `toml:"session"`
	Confidence ConfidenceConfig `toml:"confidence"`
}

// InstrumentConfig 描述品种的最小价格单位（pip）与合约规格。
type InstrumentConfig struct {
	PipSize        float64 `toml:"pip_size"`
	PipValue       float64 `toml:"pip_value"`
	ContractSize   float64 `toml:"contract_size"`
	PricePrecision int32   `toml:"price_precision"`
}

// Pips 把价格距离换算为 pip 数。
func (i InstrumentConfig) Pips(distance float64) float64 {
	if i.PipSize == 0 {
		return 0
	}
	return distance / i.PipSize
}

type IndicatorConfig struct {
	EMAFast    int     `toml:"ema_fast"`
	EMASlow    int     `toml:"ema_slow"`
	ADXPeriod  int     `toml:"adx_period"`
	BBPeriod   int     `toml:"bb_period"`
	BBDev      float64 `toml:"bb_dev"`
	RSIPeriod  int     `toml:"rsi_period"`
	StochK     int     `toml:"stoch_k"`
	StochD     int     `toml:"stoch_d"`
	MACDFast   int     `toml:"macd_fast"`
	MACDSlow   int     `toml:"macd_slow"`
	MACDSignal int     `toml:"macd_signal"`
	ATRPeriod  int     `toml:"atr_period"`
	VolumeMA   int     `toml:"volume_ma"`
}

type RegimeConfig struct {
	ADXTrending float64 `toml:"adx_trending"`
	ADXRanging  float64 `toml:"adx_ranging"`
	BBWidthMax  float64 `toml:"bb_width_max"`
}

type LevelsConfig struct {
	CatalogLookback int     `toml:"catalog_lookback"`
	SwingLookback   int     `toml:"swing_lookback"`
	FibLookback     int     `toml:"fib_lookback"`
	RoundStep       float64 `toml:"round_step"`
	AsianStartHour  int     `toml:"asian_start_hour"`
	AsianEndHour    int     `toml:"asian_end_hour"`
	MaxDistancePips float64 `toml:"max_distance_pips"`
	SweepLookback   int     `toml:"sweep_lookback"`
}

type MomentumConfig struct {
	RSIOversold        float64 `toml:"rsi_oversold"`
	RSIOverbought      float64 `toml:"rsi_overbought"`
	StochLongMax       float64 `toml:"stoch_long_max"`
	StochShortMin      float64 `toml:"stoch_short_min"`
	DivergenceLookback int     `toml:"divergence_lookback"`
}

// RiskConfig 控制仓位计算与止盈止损结构。
// RiskPercent 按 /1000 折算为风险比例（1.5 → 0.15%）。
type RiskConfig struct {
	RiskPercent    float64   `toml:"risk_percent"`
	MaxStopPips    float64   `toml:"max_stop_pips"`
	StopBufferPips float64   `toml:"stop_buffer_pips"`
	TPRatios       []float64 `toml:"tp_ratios"`
	TPWeights      []float64 `toml:"tp_weights"`
	MinRiskReward  float64   `toml:"min_risk_reward"`
	MinLot         float64   `toml:"min_lot"`
	LotPrecision   int32     `toml:"lot_precision"`
	DefaultBalance float64   `toml:"default_balance"`
}

// SessionWindow 是 [Open, Close) 小时区间。
type SessionWindow struct {
	Name  string `toml:"name"`
	Open  int    `toml:"open"`
	Close int    `toml:"close"`
}

type SessionConfig struct {
	Timezone     string          `toml:"timezone"`
	SkipWeekends bool            `toml:"skip_weekends"`
	Windows      []SessionWindow `toml:"windows"`
}

// Location 解析时区，非法值回退 UTC（validate 已拦截）。
func (s SessionConfig) Location() *time.Location {
	name := strings.TrimSpace(s.Timezone)
	if name == "" || strings.EqualFold(name, "utc") {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

type ConfidenceConfig struct {
	Base           float64 `toml:"base"`
	Divergence     float64 `toml:"divergence"`
	MACDDivergence float64 `toml:"macd_divergence"`
	Regime         float64 `toml:"regime"`
	TightStop      float64 `toml:"tight_stop"`
	TightStopPips  float64 `toml:"tight_stop_pips"`
	Volume         float64 `toml:"volume"`
	VolumeRatio    float64 `toml:"volume_ratio"`
	Max            float64 `toml:"max"`
}

// BacktestConfig 控制回测遍历窗口与资金。
type BacktestConfig struct {
	InitialCapital float64 `toml:"initial_capital"`
	WarmupBars     int     `toml:"warmup_bars"`
	TailBuffer     int     `toml:"tail_buffer"`
	MinEntryBars   int     `toml:"min_entry_bars"`
	ForwardWindow  int     `toml:"forward_window"`
	MaxHoldingBars int     `toml:"max_holding_bars"`
	ContextBars    int     `toml:"context_bars"`
	EntryBars      int     `toml:"entry_bars"`
	MaxConcurrent  int     `toml:"max_concurrent"`
	SweepFile      string  `toml:"sweep_file"`
}

type MLFilterConfig struct {
	Enabled        bool    `toml:"enabled"`
	Endpoint       string  `toml:"endpoint"`
	Threshold      float64 `toml:"threshold"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

func (m MLFilterConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

type StorageConfig struct {
	CandleDir string `toml:"candle_dir"`
	RunDB     string `toml:"run_db"`
}

type ScannerConfig struct {
	IntervalMinutes int `toml:"interval_minutes"`
}

func (s ScannerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
