package app

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"goldsweep/internal/backtest"
	"goldsweep/internal/config"
	"goldsweep/internal/logger"
	"goldsweep/internal/scanner"
	backtesthttp "goldsweep/internal/transport/http/backtest"
)

// App 负责应用级编排：装配依赖，按子命令启动扫描器、回测或 HTTP 服务。
type App struct {
	cfg      config.Config
	backtest *backtest.Service
	scanner  *scanner.Scanner
	latest   *scanner.Latest
	http     *backtesthttp.Server
	Summary  *StartupSummary

	closeOnce sync.Once
	cleanup   func()
	watcher   *config.Watcher
}

// NewApp 根据配置构建应用对象（不启动）。调用方负责 Close。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	app, cleanup, err := buildAppWithWire(*cfg)
	if err != nil {
		return nil, err
	}
	app.cleanup = cleanup
	return app, nil
}

// Backtest 返回回测服务。
func (a *App) Backtest() *backtest.Service { return a.backtest }

// Scanner 返回实时扫描器。
func (a *App) Scanner() *scanner.Scanner { return a.scanner }

// Latest 返回最近一次扫描结果的缓存。
func (a *App) Latest() *scanner.Latest { return a.latest }

// Watch 监听配置文件，变更后热加载扫描管线。
func (a *App) Watch(path string) error {
	w, err := config.NewWatcher(path)
	if err != nil {
		return err
	}
	w.Subscribe(a.scanner.Reload)
	a.watcher = w
	logger.Infof("watching config %s", path)
	return nil
}

// Serve 同时运行 HTTP 服务与扫描器，阻塞直到 ctx 取消或任一组件出错。
// scanner.interval_minutes 为 0 时只启动 HTTP。
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.http == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	a.backtest.SetContext(ctx)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("http listening on %s", a.http.Addr())
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	if a.cfg.Scanner.Interval() > 0 {
		group.Go(func() error {
			return a.scanner.Run(ctx)
		})
	} else {
		logger.Infof("scanner disabled (scanner.interval_minutes=0)")
	}
	return group.Wait()
}

// Scan 只运行扫描器。
func (a *App) Scan(ctx context.Context) error {
	if a == nil || a.scanner == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	return a.scanner.Run(ctx)
}

// Close 释放存储句柄，可重复调用。
func (a *App) Close() {
	if a == nil {
		return
	}
	a.closeOnce.Do(func() {
		if a.cleanup != nil {
			a.cleanup()
		}
	})
}
