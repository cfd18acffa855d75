package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"goldsweep/internal/app"
	"goldsweep/internal/backtest"
	"goldsweep/internal/config"
	"goldsweep/internal/logger"
)

const defaultConfigPath = "configs/config.yaml"

const usage = `用法: goldsweep <command> [flags]

commands:
  backtest   运行一次回测并打印报告
  sweep      按参数网格批量回测
  scan       周期扫描实时信号（-once 只扫一次）
  serve      启动 HTTP API 与实时扫描器
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "backtest":
		err = runBacktest(ctx, args)
	case "sweep":
		err = runSweep(ctx, args)
	case "scan":
		err = runScan(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "未知命令 %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s 失败: %v", cmd, err)
	}
}

// bootstrap 加载配置、初始化日志并装配应用。
func bootstrap(path string) (*app.App, *config.Config, func(), error) {
	cfgPath := config.ResolvePath(path, defaultConfigPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("读取配置失败: %w", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("初始化日志文件失败: %w", err)
	}
	journalFile, err := setupJournalOutput(cfg.App.JournalPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("初始化 journal 失败: %w", err)
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，品种=%s，文件=%s）", cfg.App.Env, cfg.Market.Symbol, cfgPath)

	closeFiles := func() {
		for _, f := range []*os.File{journalFile, logFile} {
			if f != nil {
				f.Close()
			}
		}
	}
	a, err := app.NewApp(cfg)
	if err != nil {
		closeFiles()
		return nil, nil, nil, fmt.Errorf("初始化应用失败: %w", err)
	}
	closer := func() {
		a.Close()
		closeFiles()
	}
	return a, cfg, closer, nil
}

func runBacktest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	cfgPath := fs.String("config", "", "配置文件路径（默认读取 $"+config.EnvConfigPath+"）")
	start := fs.String("start", "", "起始时间（RFC3339 或 2006-01-02）")
	end := fs.String("end", "", "结束时间（RFC3339 或 2006-01-02）")
	capital := fs.Float64("capital", 0, "初始资金，0 使用配置值")
	notes := fs.String("notes", "", "备注")
	asJSON := fs.Bool("json", false, "以 JSON 输出结果")
	_ = fs.Parse(args)

	req := backtest.RunRequest{InitialCapital: *capital, Notes: *notes}
	var err error
	if req.Start, err = parseTime(*start); err != nil {
		return fmt.Errorf("-start: %w", err)
	}
	if req.End, err = parseTime(*end); err != nil {
		return fmt.Errorf("-end: %w", err)
	}

	a, _, closer, err := bootstrap(*cfgPath)
	if err != nil {
		return err
	}
	defer closer()

	run, res, err := a.Backtest().RunSync(ctx, req)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"run": run, "result": res})
	}
	logger.InfoBlock(res.Summary())
	logger.Infof("run %s 已保存（trades=%d）", run.ID, len(res.Trades))
	return nil
}

func runSweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	cfgPath := fs.String("config", "", "配置文件路径（默认读取 $"+config.EnvConfigPath+"）")
	gridPath := fs.String("grid", "", "参数网格文件（默认使用 backtest.sweep_file）")
	_ = fs.Parse(args)

	a, cfg, closer, err := bootstrap(*cfgPath)
	if err != nil {
		return err
	}
	defer closer()

	path := strings.TrimSpace(*gridPath)
	if path == "" {
		path = cfg.Backtest.SweepFile
	}
	if path == "" {
		return fmt.Errorf("未指定参数网格（-grid 或 backtest.sweep_file）")
	}
	grid, err := backtest.LoadGrid(path)
	if err != nil {
		return err
	}
	results, err := a.Backtest().Sweep(ctx, grid)
	if err != nil {
		return err
	}
	logger.InfoBlock(backtest.SweepSummary(results))
	return nil
}

func runScan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	cfgPath := fs.String("config", "", "配置文件路径（默认读取 $"+config.EnvConfigPath+"）")
	once := fs.Bool("once", false, "只扫描一次")
	watch := fs.Bool("watch", true, "监听配置文件并热加载")
	_ = fs.Parse(args)

	a, _, closer, err := bootstrap(*cfgPath)
	if err != nil {
		return err
	}
	defer closer()

	if *once {
		rep, err := a.Scanner().ScanOnce(ctx)
		if err != nil {
			return err
		}
		if !rep.Decision.Emitted() {
			logger.Infof("no signal: %s %s", rep.Decision.Rejected, rep.Decision.Detail)
		}
		return nil
	}
	if *watch {
		if err := a.Watch(config.ResolvePath(*cfgPath, defaultConfigPath)); err != nil {
			logger.Warnf("config watch disabled: %v", err)
		}
	}
	return a.Scan(ctx)
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "", "配置文件路径（默认读取 $"+config.EnvConfigPath+"）")
	watch := fs.Bool("watch", true, "监听配置文件并热加载")
	_ = fs.Parse(args)

	a, _, closer, err := bootstrap(*cfgPath)
	if err != nil {
		return err
	}
	defer closer()

	if *watch {
		if err := a.Watch(config.ResolvePath(*cfgPath, defaultConfigPath)); err != nil {
			logger.Warnf("config watch disabled: %v", err)
		}
	}
	return a.Serve(ctx)
}

// parseTime 把命令行时间转换为 Unix ms，空串返回 0（不限制）。
func parseTime(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("无法解析时间 %q", v)
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

func setupJournalOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logger.SetJournalWriter(f)
	return f, nil
}
