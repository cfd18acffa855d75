package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"goldsweep/internal/analysis/indicator"
	"goldsweep/internal/config"
	"goldsweep/internal/logger"
	"goldsweep/internal/market"
	"goldsweep/internal/strategy/session"
	"goldsweep/internal/strategy/signal"
)

var log = logger.With("scanner")

// scanOffset 让扫描落在 K 线收盘之后，保证最后一根已收盘。
const scanOffset = 5 * time.Second

// FilterFactory 按配置构造 ML 过滤器；返回 nil 表示不过滤。
type FilterFactory func(cfg config.Config) (signal.Filter, error)

type Options struct {
	Config    config.Config
	Source    market.Source
	Sink      Sink
	Balance   signal.BalanceSource
	NewFilter FilterFactory
}

// Scanner 按 scanner.interval_minutes 周期拉取行情并评估信号管线。
type Scanner struct {
	source    market.Source
	sink      Sink
	balance   signal.BalanceSource
	newFilter FilterFactory
	now       func() time.Time

	mu       sync.RWMutex
	cfg      config.Config
	pipeline *signal.Pipeline
	session  *session.Gate
}

func New(opts Options) (*Scanner, error) {
	if opts.Source == nil {
		return nil, errors.New("market source 不能为空")
	}
	s := &Scanner{
		source:    opts.Source,
		sink:      opts.Sink,
		balance:   opts.Balance,
		newFilter: opts.NewFilter,
		now:       time.Now,
	}
	if s.sink == nil {
		s.sink = NewLogSink()
	}
	if err := s.apply(opts.Config); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload 用新配置重建管线；可直接注册为 config.Watcher 的监听器。
func (s *Scanner) Reload(cfg config.Config) {
	if err := s.apply(cfg); err != nil {
		log.Errorf("reload 失败，继续使用旧配置: %v", err)
		return
	}
	log.Infof("pipeline rebuilt from new config")
}

func (s *Scanner) apply(cfg config.Config) error {
	opts := []signal.Option{}
	if s.balance != nil {
		opts = append(opts, signal.WithBalance(s.balance))
	}
	if s.newFilter != nil && cfg.MLFilter.Enabled {
		f, err := s.newFilter(cfg)
		if err != nil {
			return fmt.Errorf("ml filter: %w", err)
		}
		if f != nil {
			opts = append(opts, signal.WithFilter(f))
		}
	}
	p := signal.New(cfg.Strategy, opts...)
	g := session.New(cfg.Strategy.Session)
	s.mu.Lock()
	s.cfg, s.pipeline, s.session = cfg, p, g
	s.mu.Unlock()
	return nil
}

func (s *Scanner) snapshot() (config.Config, *signal.Pipeline, *session.Gate) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.pipeline, s.session
}

// ScanOnce 执行一次扫描：时段预检、并发拉取两个周期、计算指标、评估管线并发布结果。
func (s *Scanner) ScanOnce(ctx context.Context) (Report, error) {
	cfg, pipeline, gate := s.snapshot()
	now := s.now().UTC()
	report := Report{Symbol: cfg.Market.Symbol, At: now, Session: gate.Name(now)}

	if !gate.Active(now) {
		report.Decision = signal.Decision{Rejected: signal.GateSession, Detail: "outside trading sessions (" + report.Session + ")"}
		s.sink.Publish(ctx, report)
		return report, nil
	}

	mk := cfg.Market
	var ctxCandles, entryCandles []market.Candle
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		ctxCandles, err = s.source.Fetch(gctx, mk.ContextTimeframe, mk.ContextBars)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", mk.ContextTimeframe, err)
		}
		return nil
	})
	group.Go(func() error {
		var err error
		entryCandles, err = s.source.Fetch(gctx, mk.EntryTimeframe, mk.EntryBars)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", mk.EntryTimeframe, err)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return Report{}, err
	}

	in := signal.Input{
		Context: indicator.Attach(mk.ContextTimeframe, ctxCandles, cfg.Strategy.Indicators).Until(now),
		Entry:   indicator.Attach(mk.EntryTimeframe, entryCandles, cfg.Strategy.Indicators).Until(now),
	}
	report.Fetched = true
	report.Decision = pipeline.Evaluate(ctx, in, now)
	s.sink.Publish(ctx, report)
	return report, nil
}

// Run 启动周期扫描，阻塞直到 ctx 取消。启动时立即扫描一次；周期在启动时确定，热加载不改变周期。
func (s *Scanner) Run(ctx context.Context) error {
	cfg, _, _ := s.snapshot()
	interval := cfg.Scanner.Interval()
	if interval <= 0 {
		return fmt.Errorf("scanner.interval_minutes must be > 0")
	}
	log.Infof("scanning %s every %s", cfg.Market.Symbol, interval)
	sched := alignedSchedule{interval: interval, offset: scanOffset, runImmediately: true, now: s.now}
	sched.run(ctx, func() {
		if _, err := s.ScanOnce(ctx); err != nil && ctx.Err() == nil {
			log.Warnf("scan failed: %v", err)
		}
	})
	log.Infof("scanner stopped")
	return nil
}
