package backtest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"goldsweep/internal/config"
	"goldsweep/internal/logger"
)

// Variant 是参数网格中的一组策略覆盖项，键与配置文件 strategy 段一致。
type Variant struct {
	Name     string         `yaml:"name"`
	Strategy map[string]any `yaml:"strategy"`
}

// Grid 是参数扫描文件的内容。
type Grid struct {
	Variants []Variant `yaml:"variants"`
}

// SweepResult 是单个变体的回测结果；Err 非空时 Result 无意义。
type SweepResult struct {
	Variant string `json:"variant"`
	Result  Result `json:"result"`
	Err     error  `json:"-"`
}

// LoadGrid 严格解析 YAML 网格文件（未知字段报错）。
func LoadGrid(path string) (Grid, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Grid{}, fmt.Errorf("read sweep grid failed: %w", err)
	}
	return ParseGrid(raw)
}

func ParseGrid(raw []byte) (Grid, error) {
	var g Grid
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil {
		return Grid{}, fmt.Errorf("parse sweep grid failed: %w", err)
	}
	if len(g.Variants) == 0 {
		return Grid{}, fmt.Errorf("sweep grid has no variants")
	}
	seen := make(map[string]bool, len(g.Variants))
	for i, v := range g.Variants {
		name := strings.TrimSpace(v.Name)
		if name == "" {
			return Grid{}, fmt.Errorf("sweep variant #%d has no name", i+1)
		}
		if seen[name] {
			return Grid{}, fmt.Errorf("duplicate sweep variant %q", name)
		}
		seen[name] = true
		g.Variants[i].Name = name
	}
	return g, nil
}

// Sweep 对每个变体构造独立的 Simulator 并发回测，并发度由 backtest.max_concurrent 限制。
// 单个变体失败只记录在对应结果里；只有 ctx 取消会中断整个扫描。结果顺序与网格一致。
func Sweep(ctx context.Context, cfg config.BacktestConfig, base config.StrategyConfig, grid Grid, data Dataset, opts ...Option) ([]SweepResult, error) {
	log := logger.With("sweep")
	results := make([]SweepResult, len(grid.Variants))
	group, gctx := errgroup.WithContext(ctx)
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}
	group.SetLimit(limit)
	for i, variant := range grid.Variants {
		i, variant := i, variant
		group.Go(func() error {
			results[i].Variant = variant.Name
			strategy, err := base.WithOverrides(variant.Strategy)
			if err != nil {
				results[i].Err = err
				log.Warnf("variant %s invalid: %v", variant.Name, err)
				return nil
			}
			res, err := NewSimulator(cfg, strategy, opts...).RunDataset(gctx, data)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				results[i].Err = err
				log.Warnf("variant %s failed: %v", variant.Name, err)
				return nil
			}
			results[i].Result = res
			log.Infof("variant %s: %d trades, %d signals", variant.Name, len(res.Trades), res.Signals)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// SweepSummary 以表格形式汇总各变体。
func SweepSummary(results []SweepResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %7s %9s %8s %10s %8s\n", "variant", "trades", "win_rate", "pf", "pnl", "max_dd")
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(&b, "%-20s error: %v\n", r.Variant, r.Err)
		case r.Result.Metrics == nil:
			fmt.Fprintf(&b, "%-20s %7d %9s %8s %10s %8s\n", r.Variant, 0, "-", "-", "-", "-")
		default:
			m := r.Result.Metrics
			fmt.Fprintf(&b, "%-20s %7d %8.2f%% %8.2f %10.2f %7.2f%%\n",
				r.Variant, m.TotalTrades, m.WinRate*100, m.ProfitFactor, m.TotalPnL, m.MaxDrawdownPct)
		}
	}
	return b.String()
}
