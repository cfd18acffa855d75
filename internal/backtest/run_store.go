package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"goldsweep/internal/strategy/risk"
)

// ErrRunNotFound 表示 run id 不存在。
var ErrRunNotFound = errors.New("backtest run not found")

type runModel struct {
	ID              string         `gorm:"column:id;primaryKey"`
	Symbol          string         `gorm:"column:symbol;index"`
	Status          string         `gorm:"column:status"`
	Message         string         `gorm:"column:message"`
	ConfigJSON      datatypes.JSON `gorm:"column:config_json;type:TEXT"`
	MetricsJSON     datatypes.JSON `gorm:"column:metrics_json;type:TEXT"`
	GateStatsJSON   datatypes.JSON `gorm:"column:gate_stats_json;type:TEXT"`
	Evaluated       int            `gorm:"column:evaluated"`
	Signals         int            `gorm:"column:signals"`
	Abandoned       int            `gorm:"column:abandoned"`
	Trades          int            `gorm:"column:trades"`
	CreatedAtUnix   int64          `gorm:"column:created_at;index"`
	UpdatedAtUnix   int64          `gorm:"column:updated_at"`
	CompletedAtUnix int64          `gorm:"column:completed_at"`
}

func (runModel) TableName() string { return "backtest_runs" }

type tradeModel struct {
	ID           int64   `gorm:"column:id;primaryKey;autoIncrement"`
	RunID        string  `gorm:"column:run_id;index:idx_trade_run,priority:1"`
	Seq          int     `gorm:"column:seq;index:idx_trade_run,priority:2"`
	Direction    string  `gorm:"column:direction"`
	Entry        float64 `gorm:"column:entry"`
	Exit         float64 `gorm:"column:exit"`
	StopLoss     float64 `gorm:"column:stop_loss"`
	TakeProfit   float64 `gorm:"column:take_profit"`
	Outcome      string  `gorm:"column:outcome"`
	PnL          float64 `gorm:"column:pnl"`
	Pips         float64 `gorm:"column:pips"`
	BarsHeld     int     `gorm:"column:bars_held"`
	OpenedAt     int64   `gorm:"column:opened_at"`
	ClosedAt     int64   `gorm:"column:closed_at"`
	PositionSize float64 `gorm:"column:lot_size"`
	Confidence   int     `gorm:"column:confidence"`
	LevelName    string  `gorm:"column:level_name"`
	Session      string  `gorm:"column:session"`
	Balance      float64 `gorm:"column:balance"`
}

func (tradeModel) TableName() string { return "backtest_trades" }

type equityModel struct {
	ID     int64   `gorm:"column:id;primaryKey;autoIncrement"`
	RunID  string  `gorm:"column:run_id;index:idx_equity_run,priority:1"`
	Seq    int     `gorm:"column:seq;index:idx_equity_run,priority:2"`
	TS     int64   `gorm:"column:ts"`
	Equity float64 `gorm:"column:equity"`
}

func (equityModel) TableName() string { return "backtest_equity" }

// RunStore 用 gorm + sqlite 持久化回测任务、交易明细与资金曲线。
type RunStore struct {
	db *gorm.DB
}

func NewRunStore(path string) (*RunStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("run store: 路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}, &tradeModel{}, &equityModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: 允许 HTTP 读与回测写少量并行。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &RunStore{db: db}, nil
}

func (s *RunStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *RunStore) InsertRun(ctx context.Context, run Run) error {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	m := runModel{
		ID:            run.ID,
		Symbol:        run.Symbol,
		Status:        run.Status,
		Message:       run.Message,
		ConfigJSON:    datatypes.JSON(cfgJSON),
		CreatedAtUnix: now,
		UpdatedAtUnix: now,
	}
	if !run.CreatedAt.IsZero() {
		m.CreatedAtUnix = run.CreatedAt.UnixMilli()
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *RunStore) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	updates := map[string]any{
		"status":     status,
		"message":    message,
		"updated_at": time.Now().UnixMilli(),
	}
	if status == RunStatusDone || status == RunStatusFailed {
		updates["completed_at"] = time.Now().UnixMilli()
	}
	res := s.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// SaveResult 在一个事务内写入交易、资金曲线与汇总，并把任务置为 done。
func (s *RunStore) SaveResult(ctx context.Context, id string, res Result) error {
	metricsJSON, err := json.Marshal(res.Metrics)
	if err != nil {
		return err
	}
	gateJSON, err := json.Marshal(res.GateStats)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&tradeModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", id).Delete(&equityModel{}).Error; err != nil {
			return err
		}
		if len(res.Trades) > 0 {
			trades := make([]tradeModel, len(res.Trades))
			for i, t := range res.Trades {
				trades[i] = toTradeModel(id, i, t)
			}
			if err := tx.CreateInBatches(trades, 200).Error; err != nil {
				return err
			}
		}
		if len(res.EquityCurve) > 0 {
			points := make([]equityModel, len(res.EquityCurve))
			for i, p := range res.EquityCurve {
				points[i] = equityModel{RunID: id, Seq: i, TS: p.Time.UnixMilli(), Equity: p.Equity}
			}
			if err := tx.CreateInBatches(points, 500).Error; err != nil {
				return err
			}
		}
		message := "完成"
		if res.Empty() {
			message = "no trades generated"
		}
		now := time.Now().UnixMilli()
		upd := tx.Model(&runModel{}).Where("id = ?", id).Updates(map[string]any{
			"status":          RunStatusDone,
			"message":         message,
			"metrics_json":    datatypes.JSON(metricsJSON),
			"gate_stats_json": datatypes.JSON(gateJSON),
			"evaluated":       res.Evaluated,
			"signals":         res.Signals,
			"abandoned":       res.Abandoned,
			"trades":          len(res.Trades),
			"updated_at":      now,
			"completed_at":    now,
		})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return ErrRunNotFound
		}
		return nil
	})
}

func (s *RunStore) GetRun(ctx context.Context, id string) (Run, error) {
	var m runModel
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, err
	}
	return m.toRun()
}

// ListRuns 按创建时间倒序返回最近 limit 个任务。
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var models []runModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(models))
	for _, m := range models {
		run, err := m.toRun()
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (s *RunStore) ListTrades(ctx context.Context, runID string) ([]Trade, error) {
	var models []tradeModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("seq ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Trade, len(models))
	for i, m := range models {
		out[i] = m.toTrade()
	}
	return out, nil
}

func (s *RunStore) ListEquity(ctx context.Context, runID string) ([]EquityPoint, error) {
	var models []equityModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("seq ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]EquityPoint, len(models))
	for i, m := range models {
		out[i] = EquityPoint{Time: time.UnixMilli(m.TS).UTC(), Equity: m.Equity}
	}
	return out, nil
}

func (m runModel) toRun() (Run, error) {
	run := Run{
		ID:        m.ID,
		Symbol:    m.Symbol,
		Status:    m.Status,
		Message:   m.Message,
		Evaluated: m.Evaluated,
		Signals:   m.Signals,
		Abandoned: m.Abandoned,
		Trades:    m.Trades,
		CreatedAt: time.UnixMilli(m.CreatedAtUnix).UTC(),
		UpdatedAt: time.UnixMilli(m.UpdatedAtUnix).UTC(),
	}
	if m.CompletedAtUnix > 0 {
		run.CompletedAt = time.UnixMilli(m.CompletedAtUnix).UTC()
	}
	if len(m.ConfigJSON) > 0 {
		if err := json.Unmarshal(m.ConfigJSON, &run.Config); err != nil {
			return Run{}, fmt.Errorf("decode run config %s: %w", m.ID, err)
		}
	}
	if len(m.MetricsJSON) > 0 && string(m.MetricsJSON) != "null" {
		run.Metrics = &Metrics{}
		if err := json.Unmarshal(m.MetricsJSON, run.Metrics); err != nil {
			return Run{}, fmt.Errorf("decode run metrics %s: %w", m.ID, err)
		}
	}
	if len(m.GateStatsJSON) > 0 {
		if err := json.Unmarshal(m.GateStatsJSON, &run.GateStats); err != nil {
			return Run{}, fmt.Errorf("decode gate stats %s: %w", m.ID, err)
		}
	}
	return run, nil
}

func toTradeModel(runID string, seq int, t Trade) tradeModel {
	return tradeModel{
		RunID:        runID,
		Seq:          seq,
		Direction:    string(t.Direction),
		Entry:        t.Entry,
		Exit:         t.Exit,
		StopLoss:     t.StopLoss,
		TakeProfit:   t.TakeProfit,
		Outcome:      string(t.Outcome),
		PnL:          t.PnL,
		Pips:         t.Pips,
		BarsHeld:     t.BarsHeld,
		OpenedAt:     t.OpenedAt.UnixMilli(),
		ClosedAt:     t.ClosedAt.UnixMilli(),
		PositionSize: t.PositionSize,
		Confidence:   t.Confidence,
		LevelName:    t.LevelName,
		Session:      t.Session,
		Balance:      t.Balance,
	}
}

func (m tradeModel) toTrade() Trade {
	return Trade{
		Direction:    risk.Direction(m.Direction),
		Entry:        m.Entry,
		Exit:         m.Exit,
		StopLoss:     m.StopLoss,
		TakeProfit:   m.TakeProfit,
		Outcome:      Outcome(m.Outcome),
		PnL:          m.PnL,
		Pips:         m.Pips,
		BarsHeld:     m.BarsHeld,
		OpenedAt:     time.UnixMilli(m.OpenedAt).UTC(),
		ClosedAt:     time.UnixMilli(m.ClosedAt).UTC(),
		PositionSize: m.PositionSize,
		Confidence:   m.Confidence,
		LevelName:    m.LevelName,
		Session:      m.Session,
		Balance:      m.Balance,
	}
}
