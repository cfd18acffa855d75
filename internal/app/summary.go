package app

import (
	"fmt"
	"strings"

	"goldsweep/internal/config"
)

// StartupSummary 在启动时打印一次，方便核对生效的配置。
type StartupSummary struct {
	Symbol     string
	Source     string
	Timeframes []string
	Sessions   []string
	Weekend    bool
	Scanner    string
	MLFilter   string
	HTTPAddr   string
	Storage    StorageSummary
}

type StorageSummary struct {
	CandleDir string
	RunDB     string
}

func newStartupSummary(cfg config.Config, source string) *StartupSummary {
	s := &StartupSummary{
		Symbol:     cfg.Market.Symbol,
		Source:     source,
		Timeframes: []string{cfg.Market.ContextTimeframe, cfg.Market.EntryTimeframe},
		Weekend:    cfg.Strategy.Session.SkipWeekends,
		HTTPAddr:   cfg.App.HTTPAddr,
		Storage: StorageSummary{
			CandleDir: cfg.Storage.CandleDir,
			RunDB:     cfg.Storage.RunDB,
		},
	}
	for _, w := range cfg.Strategy.Session.Windows {
		s.Sessions = append(s.Sessions, fmt.Sprintf("%s %02d:00-%02d:00", w.Name, w.Open, w.Close))
	}
	if iv := cfg.Scanner.Interval(); iv > 0 {
		s.Scanner = "every " + iv.String()
	}
	if cfg.MLFilter.Enabled {
		s.MLFilter = fmt.Sprintf("%s (threshold %.2f)", cfg.MLFilter.Endpoint, cfg.MLFilter.Threshold)
	}
	return s
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[行情 (MARKET)]")
	fmt.Printf("  - 品种: %s\n", s.Symbol)
	fmt.Printf("  - 数据源: %s\n", orDash(s.Source))
	fmt.Printf("  - 周期: %s\n", formatList(s.Timeframes))
	fmt.Println()

	fmt.Println("[交易时段 (SESSIONS)]")
	if len(s.Sessions) == 0 {
		fmt.Println("  (无)")
	} else {
		for _, w := range s.Sessions {
			fmt.Printf("  - %s\n", w)
		}
	}
	fmt.Printf("  - 跳过周末: %t\n", s.Weekend)
	fmt.Println()

	fmt.Println("[服务 (SERVICES)]")
	fmt.Printf("  - 扫描器: %s\n", orDash(s.Scanner))
	fmt.Printf("  - ML 过滤: %s\n", orDash(s.MLFilter))
	fmt.Printf("  - HTTP: %s\n", orDash(s.HTTPAddr))
	fmt.Printf("  - K 线缓存: %s\n", orDash(s.Storage.CandleDir))
	fmt.Printf("  - 回测库: %s\n", orDash(s.Storage.RunDB))
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
