package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaultMatchesReference(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	s := cfg.Strategy
	assert.Equal(t, 25.0, s.Regime.ADXTrending)
	assert.Equal(t, 20.0, s.Regime.ADXRanging)
	assert.Equal(t, 0.02, s.Regime.BBWidthMax)
	assert.Equal(t, 35.0, s.Momentum.RSIOversold)
	assert.Equal(t, 65.0, s.Momentum.RSIOverbought)
	assert.Equal(t, []float64{1.5, 2.5, 4.0}, s.Risk.TPRatios)
	assert.Equal(t, []float64{45, 30, 25}, s.Risk.TPWeights)
	assert.Equal(t, 1.5, s.Risk.RiskPercent)
	assert.Equal(t, 0.10, s.Instrument.PipSize)
	assert.Equal(t, 0, s.Levels.AsianStartHour)
	assert.Equal(t, 8, s.Levels.AsianEndHour)
	assert.True(t, s.Session.SkipWeekends)
	require.Len(t, s.Session.Windows, 2)
	assert.Equal(t, SessionWindow{Name: "New York", Open: 13, Close: 21}, s.Session.Windows[1])
	assert.Equal(t, 100, cfg.Backtest.WarmupBars)
	assert.Equal(t, 500, cfg.Backtest.ForwardWindow)
	assert.Equal(t, 0.65, cfg.MLFilter.Threshold)
	assert.Equal(t, "PAXGUSDT", cfg.Market.Symbol)
	assert.Equal(t, 15*time.Minute, cfg.Scanner.Interval())
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
market:
  symbol: xauusd
strategy:
  session:
    skip_weekends: false
    windows:
      - {name: Tokyo, open: 0, close: 9}
  regime:
    adx_trending: 30
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "XAUUSD", cfg.Market.Symbol)
	assert.False(t, cfg.Strategy.Session.SkipWeekends)
	assert.Equal(t, []SessionWindow{{Name: "Tokyo", Open: 0, Close: 9}}, cfg.Strategy.Session.Windows)
	assert.Equal(t, 30.0, cfg.Strategy.Regime.ADXTrending)
	assert.Equal(t, 20.0, cfg.Strategy.Regime.ADXRanging)
}

func TestLoadMergesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
backtest:
  initial_capital: 5000
  warmup_bars: 120
`)
	path := writeFile(t, dir, "config.yaml", `
include:
  - base.yaml
backtest:
  warmup_bars: 150
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, cfg.Backtest.InitialCapital)
	assert.Equal(t, 150, cfg.Backtest.WarmupBars)
}

func TestLoadRejectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestValidationFailures(t *testing.T) {
	cases := map[string]func(*Config){
		"ranging above trending": func(c *Config) { c.Strategy.Regime.ADXRanging = 30 },
		"rsi thresholds":         func(c *Config) { c.Strategy.Momentum.RSIOversold = 70 },
		"tp ratios count":        func(c *Config) { c.Strategy.Risk.TPRatios = []float64{1.5, 2.5} },
		"tp ratios order":        func(c *Config) { c.Strategy.Risk.TPRatios = []float64{2.5, 1.5, 4} },
		"tp weights sum":         func(c *Config) { c.Strategy.Risk.TPWeights = []float64{50, 30, 25} },
		"session hours":          func(c *Config) { c.Strategy.Session.Windows[0].Close = 25 },
		"forward window":         func(c *Config) { c.Backtest.ForwardWindow = 50 },
		"ml endpoint":            func(c *Config) { c.MLFilter.Enabled = true },
		"ml threshold":           func(c *Config) { c.MLFilter.Threshold = 1.2 },
		"timezone":               func(c *Config) { c.Strategy.Session.Timezone = "Mars/Olympus" },
		"pip size":               func(c *Config) { c.Strategy.Instrument.PipSize = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Strategy.Session.Windows = append([]SessionWindow(nil), cfg.Strategy.Session.Windows...)
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/goldsweep.yaml")
	assert.Equal(t, "cli.yaml", ResolvePath("cli.yaml", "configs/config.yaml"))
	assert.Equal(t, "/etc/goldsweep.yaml", ResolvePath("", "configs/config.yaml"))
	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, "configs/config.yaml", ResolvePath(" ", "configs/config.yaml"))
}

func TestWatcherReloadNotifies(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "backtest:\n  initial_capital: 1000\n")
	w := &Watcher{path: path}
	require.NoError(t, w.reload())
	assert.Equal(t, 1, w.Snapshot().Version)
	assert.Equal(t, 1000.0, w.Current().Backtest.InitialCapital)

	var wg sync.WaitGroup
	wg.Add(1)
	var got Config
	w.Subscribe(func(c Config) {
		got = c
		wg.Done()
	})

	writeFile(t, dir, "config.yaml", "backtest:\n  initial_capital: 2000\n")
	require.NoError(t, w.reload())
	w.notify()
	wg.Wait()
	assert.Equal(t, 2000.0, got.Backtest.InitialCapital)
	assert.Equal(t, 2, w.Snapshot().Version)

	writeFile(t, dir, "config.yaml", "backtest:\n  initial_capital: -1\n")
	assert.Error(t, w.reload())
	assert.Equal(t, 2000.0, w.Current().Backtest.InitialCapital, "invalid file keeps previous config")
}

func TestStrategyOverrides(t *testing.T) {
	base := Default().Strategy
	patched, err := base.WithOverrides(map[string]any{
		"momentum": map[string]any{"rsi_oversold": 40, "rsi_overbought": "60"},
		"levels":   map[string]any{"max_distance_pips": 30},
		"risk":     map[string]any{"tp_ratios": []any{1.2, 2.0, 3.0}},
	})
	require.NoError(t, err)
	assert.Equal(t, 40.0, patched.Momentum.RSIOversold)
	assert.Equal(t, 60.0, patched.Momentum.RSIOverbought)
	assert.Equal(t, 30.0, patched.Levels.MaxDistancePips)
	assert.Equal(t, []float64{1.2, 2.0, 3.0}, patched.Risk.TPRatios)
	assert.Equal(t, base.Regime, patched.Regime)

	// 原配置不受影响
	assert.Equal(t, 35.0, base.Momentum.RSIOversold)
	assert.Equal(t, []float64{1.5, 2.5, 4.0}, base.Risk.TPRatios)

	_, err = base.WithOverrides(map[string]any{"momentum": map[string]any{"rsi_oversld": 40}})
	assert.Error(t, err)

	_, err = base.WithOverrides(map[string]any{"momentum": map[string]any{"rsi_oversold": 80}})
	assert.Error(t, err)
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "PAXGUSDT", cfg.Market.Symbol)
	assert.Equal(t, 600, cfg.Market.RateLimitPerMin)
	assert.Equal(t, "data/logs/signals.log", cfg.App.JournalPath)
	assert.Equal(t, []float64{1.5, 2.5, 4.0}, cfg.Strategy.Risk.TPRatios)
	require.Len(t, cfg.Strategy.Session.Windows, 2)
	assert.Equal(t, "New York", cfg.Strategy.Session.Windows[1].Name)
	assert.Equal(t, Default().Strategy.Indicators, cfg.Strategy.Indicators)
}
