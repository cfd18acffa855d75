package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"goldsweep/internal/backtest"
	"goldsweep/internal/config"
	"goldsweep/internal/gateway/binance"
	"goldsweep/internal/logger"
	"goldsweep/internal/market"
	"goldsweep/internal/mlfilter"
	"goldsweep/internal/scanner"
	"goldsweep/internal/strategy/signal"
	backtesthttp "goldsweep/internal/transport/http/backtest"
	livehttp "goldsweep/internal/transport/http/live"
)

func provideSource(cfg config.Config) (market.Source, error) {
	src, err := binance.New(binance.FromMarket(cfg.Market))
	if err != nil {
		return nil, err
	}
	return src, nil
}

// provideCandleStore 在未配置 candle_dir 时返回 nil，回测将不使用本地缓存。
func provideCandleStore(cfg config.Config) (*backtest.CandleStore, func(), error) {
	if cfg.Storage.CandleDir == "" {
		return nil, func() {}, nil
	}
	store, err := backtest.NewCandleStore(cfg.Storage.CandleDir)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warnf("close candle store: %v", err)
		}
	}, nil
}

func provideRunStore(cfg config.Config) (*backtest.RunStore, func(), error) {
	if cfg.Storage.RunDB == "" {
		return nil, func() {}, nil
	}
	store, err := backtest.NewRunStore(cfg.Storage.RunDB)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warnf("close run store: %v", err)
		}
	}, nil
}

// newMLFilter 同时作为扫描器热加载时的过滤器工厂。
func newMLFilter(cfg config.Config) (signal.Filter, error) {
	if !cfg.MLFilter.Enabled {
		return nil, nil
	}
	client, err := mlfilter.New(cfg.MLFilter, cfg.Market.Symbol)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func provideFilter(cfg config.Config) (signal.Filter, error) {
	return newMLFilter(cfg)
}

func provideBacktestService(cfg config.Config, src market.Source, candles *backtest.CandleStore, runs *backtest.RunStore, filter signal.Filter) (*backtest.Service, error) {
	return backtest.NewService(backtest.ServiceConfig{
		Config:  cfg,
		Source:  src,
		Candles: candles,
		Runs:    runs,
		Filter:  filter,
	})
}

func provideLatest() *scanner.Latest {
	return scanner.NewLatest()
}

// provideRegistry 每个 App 一个独立 registry，/metrics 只暴露本进程注册的指标。
func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideScanner(cfg config.Config, src market.Source, latest *scanner.Latest, reg *prometheus.Registry) (*scanner.Scanner, error) {
	return scanner.New(scanner.Options{
		Config:    cfg,
		Source:    src,
		Sink:      scanner.MultiSink{scanner.NewLogSink(), latest, scanner.NewMetricsSink(reg)},
		NewFilter: newMLFilter,
	})
}

func provideLiveRouter(cfg config.Config, latest *scanner.Latest) *livehttp.Router {
	return livehttp.NewRouter(latest, cfg.App.LogPath)
}

func provideMetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func provideHTTPServer(cfg config.Config, svc *backtest.Service, live *livehttp.Router, metrics http.Handler) (*backtesthttp.Server, error) {
	return backtesthttp.NewServer(backtesthttp.Config{
		Addr:    cfg.App.HTTPAddr,
		Svc:     svc,
		Live:    live,
		Metrics: metrics,
	})
}

func provideApp(cfg config.Config, src market.Source, svc *backtest.Service, sc *scanner.Scanner, latest *scanner.Latest, srv *backtesthttp.Server) *App {
	return &App{
		cfg:      cfg,
		backtest: svc,
		scanner:  sc,
		latest:   latest,
		http:     srv,
		Summary:  newStartupSummary(cfg, src.Name()),
	}
}
