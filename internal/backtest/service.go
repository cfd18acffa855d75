package backtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"goldsweep/internal/config"
	"goldsweep/internal/logger"
	"goldsweep/internal/market"
	"goldsweep/internal/strategy/signal"
)

// ServiceConfig 配置回测服务。Candles/Runs 可为空：为空时不缓存 K 线、不持久化任务。
type ServiceConfig struct {
	Config  config.Config
	Source  market.Source
	Candles *CandleStore
	Runs    *RunStore
	Filter  signal.Filter
}

// Service 负责拉取数据、调度回测任务与保存结果。
type Service struct {
	cfg     config.Config
	source  market.Source
	candles *CandleStore
	runs    *RunStore
	filter  signal.Filter
	log     logger.Entry

	sem     chan struct{}
	baseCtx context.Context
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("market source 不能为空")
	}
	maxConcurrent := cfg.Config.Backtest.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Service{
		cfg:     cfg.Config,
		source:  cfg.Source,
		candles: cfg.Candles,
		runs:    cfg.Runs,
		filter:  cfg.Filter,
		log:     logger.With("backtest"),
		sem:     make(chan struct{}, maxConcurrent),
		baseCtx: context.Background(),
	}, nil
}

// SetContext 注入宿主 ctx，用于异步任务取消。
func (s *Service) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Service) ctx() context.Context {
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

// LoadDataset 并发拉取上下文与入场周期 K 线；拉取失败时回退到本地缓存。
func (s *Service) LoadDataset(ctx context.Context) (Dataset, error) {
	mk := s.cfg.Market
	ds := Dataset{ContextTimeframe: mk.ContextTimeframe, EntryTimeframe: mk.EntryTimeframe}
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		ds.Context, err = s.fetch(gctx, mk.ContextTimeframe, s.cfg.Backtest.ContextBars)
		return err
	})
	group.Go(func() error {
		var err error
		ds.Entry, err = s.fetch(gctx, mk.EntryTimeframe, s.cfg.Backtest.EntryBars)
		return err
	})
	if err := group.Wait(); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

func (s *Service) fetch(ctx context.Context, timeframe string, count int) ([]market.Candle, error) {
	symbol := s.cfg.Market.Symbol
	candles, err := s.source.Fetch(ctx, timeframe, count)
	if err != nil {
		if s.candles == nil || ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s fetch failed: %w", s.source.Name(), timeframe, err)
		}
		cached, cacheErr := s.candles.LatestCandles(ctx, symbol, timeframe, count)
		if cacheErr != nil || len(cached) == 0 {
			return nil, fmt.Errorf("%s %s fetch failed and no cache: %w", s.source.Name(), timeframe, err)
		}
		s.log.Warnf("%s %s 拉取失败，使用缓存 %d 根: %v", symbol, timeframe, len(cached), err)
		return cached, nil
	}
	if s.candles != nil {
		if _, err := s.candles.InsertCandles(ctx, symbol, timeframe, candles); err != nil {
			s.log.Warnf("%s %s 写入缓存失败: %v", symbol, timeframe, err)
		}
	}
	s.log.Infof("%s %s 拉取 %d 根", symbol, timeframe, len(candles))
	return candles, nil
}

// prepare 合并请求与配置，生成可重放的参数快照。
func (s *Service) prepare(req RunRequest) (RunConfig, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		symbol = s.cfg.Market.Symbol
	}
	if !strings.EqualFold(symbol, s.cfg.Market.Symbol) {
		return RunConfig{}, fmt.Errorf("symbol %s 不受支持（当前数据源: %s）", symbol, s.cfg.Market.Symbol)
	}
	if req.Start > 0 && req.End > 0 && req.End <= req.Start {
		return RunConfig{}, fmt.Errorf("end_ts 必须晚于 start_ts")
	}
	bt := s.cfg.Backtest
	if req.InitialCapital < 0 {
		return RunConfig{}, fmt.Errorf("initial_capital 不能为负")
	}
	if req.InitialCapital > 0 {
		bt.InitialCapital = req.InitialCapital
	}
	strategy, err := s.cfg.Strategy.WithOverrides(req.Strategy)
	if err != nil {
		return RunConfig{}, err
	}
	return RunConfig{
		Symbol:           symbol,
		ContextTimeframe: s.cfg.Market.ContextTimeframe,
		EntryTimeframe:   s.cfg.Market.EntryTimeframe,
		Start:            req.Start,
		End:              req.End,
		Backtest:         bt,
		Strategy:         strategy,
		Notes:            req.Notes,
	}, nil
}

// StartRun 校验参数、登记任务并在后台执行，立即返回 pending 状态的 Run。
func (s *Service) StartRun(req RunRequest) (Run, error) {
	if s.runs == nil {
		return Run{}, errors.New("run store 未配置")
	}
	rc, err := s.prepare(req)
	if err != nil {
		return Run{}, err
	}
	run := Run{
		ID:        uuid.NewString(),
		Symbol:    rc.Symbol,
		Status:    RunStatusPending,
		Message:   "等待执行",
		Config:    rc,
		CreatedAt: time.Now(),
	}
	if err := s.runs.InsertRun(s.ctx(), run); err != nil {
		return Run{}, err
	}
	s.log.Infof("run %s 提交：%s [%d,%d]", run.ID, rc.Symbol, rc.Start, rc.End)
	go s.runLoop(run.ID, rc)
	return run, nil
}

func (s *Service) runLoop(runID string, rc RunConfig) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("run %s panic: %v", runID, r)
			_ = s.runs.UpdateRunStatus(context.Background(), runID, RunStatusFailed, fmt.Sprintf("panic: %v", r))
		}
	}()
	ctx := s.ctx()
	select {
	case s.sem <- struct{}{}:
	default:
		s.log.Warnf("run %s 等待可用 worker", runID)
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			_ = s.runs.UpdateRunStatus(context.Background(), runID, RunStatusFailed, "服务已关闭")
			return
		}
	}
	defer func() { <-s.sem }()

	_ = s.runs.UpdateRunStatus(ctx, runID, RunStatusRunning, "拉取数据…")
	res, err := s.execute(ctx, rc)
	if err != nil {
		s.log.Warnf("run %s 失败: %v", runID, err)
		_ = s.runs.UpdateRunStatus(context.Background(), runID, RunStatusFailed, err.Error())
		return
	}
	if err := s.runs.SaveResult(ctx, runID, res); err != nil {
		s.log.Errorf("run %s 保存结果失败: %v", runID, err)
		_ = s.runs.UpdateRunStatus(context.Background(), runID, RunStatusFailed, err.Error())
		return
	}
	s.log.Infof("run %s 完成：%d trades", runID, len(res.Trades))
}

// RunSync 同步执行一次回测（CLI 使用）；配置了 RunStore 时同样落库。
func (s *Service) RunSync(ctx context.Context, req RunRequest) (Run, Result, error) {
	rc, err := s.prepare(req)
	if err != nil {
		return Run{}, Result{}, err
	}
	run := Run{
		ID:        uuid.NewString(),
		Symbol:    rc.Symbol,
		Status:    RunStatusRunning,
		Config:    rc,
		CreatedAt: time.Now(),
	}
	if s.runs != nil {
		if err := s.runs.InsertRun(ctx, run); err != nil {
			return Run{}, Result{}, err
		}
	}
	res, err := s.execute(ctx, rc)
	if err != nil {
		run.Status, run.Message = RunStatusFailed, err.Error()
		if s.runs != nil {
			_ = s.runs.UpdateRunStatus(context.Background(), run.ID, RunStatusFailed, err.Error())
		}
		return run, Result{}, err
	}
	if s.runs != nil {
		if err := s.runs.SaveResult(ctx, run.ID, res); err != nil {
			return run, res, err
		}
	}
	run.Status = RunStatusDone
	run.Metrics = res.Metrics
	run.GateStats = res.GateStats
	run.Evaluated, run.Signals, run.Abandoned, run.Trades = res.Evaluated, res.Signals, res.Abandoned, len(res.Trades)
	run.CompletedAt = time.Now()
	return run, res, nil
}

func (s *Service) execute(ctx context.Context, rc RunConfig) (Result, error) {
	ds, err := s.LoadDataset(ctx)
	if err != nil {
		return Result{}, err
	}
	ds.Start, ds.End = rc.Start, rc.End
	return NewSimulator(rc.Backtest, rc.Strategy, s.options()...).RunDataset(ctx, ds)
}

func (s *Service) options() []Option {
	if s.filter == nil {
		return nil
	}
	return []Option{WithFilter(s.filter)}
}

// Sweep 拉取一次数据后对网格中每个变体并发回测。
func (s *Service) Sweep(ctx context.Context, grid Grid) ([]SweepResult, error) {
	ds, err := s.LoadDataset(ctx)
	if err != nil {
		return nil, err
	}
	return Sweep(ctx, s.cfg.Backtest, s.cfg.Strategy, grid, ds, s.options()...)
}

func (s *Service) GetRun(ctx context.Context, id string) (Run, error) {
	if s.runs == nil {
		return Run{}, ErrRunNotFound
	}
	return s.runs.GetRun(ctx, id)
}

func (s *Service) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.ListRuns(ctx, limit)
}

func (s *Service) ListTrades(ctx context.Context, id string) ([]Trade, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return s.runs.ListTrades(ctx, id)
}

func (s *Service) ListEquity(ctx context.Context, id string) ([]EquityPoint, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return s.runs.ListEquity(ctx, id)
}

// ErrNoCandleStore 表示未配置本地 K 线缓存。
var ErrNoCandleStore = errors.New("candle store 未配置")

// Manifest 返回本地缓存的统计信息。
func (s *Service) Manifest(ctx context.Context, timeframe string) (Manifest, error) {
	if s.candles == nil {
		return Manifest{}, ErrNoCandleStore
	}
	return s.candles.Manifest(ctx, s.cfg.Market.Symbol, timeframe)
}

// QueryCandles 查询本地缓存：给出 start/end 时按区间返回，否则返回最近 limit 根。
func (s *Service) QueryCandles(ctx context.Context, timeframe string, start, end int64, limit int) ([]market.Candle, error) {
	if s.candles == nil {
		return nil, ErrNoCandleStore
	}
	if start > 0 && end > 0 {
		return s.candles.RangeCandles(ctx, s.cfg.Market.Symbol, timeframe, start, end)
	}
	if limit <= 0 {
		limit = 200
	}
	return s.candles.LatestCandles(ctx, s.cfg.Market.Symbol, timeframe, limit)
}
