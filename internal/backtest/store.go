package backtest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"goldsweep/internal/market"
)

// Manifest 汇总某个 symbol@timeframe 在缓存中的覆盖范围。
type Manifest struct {
	Symbol     string `json:"symbol"`
	Timeframe  string `json:"timeframe"`
	MinTime    int64  `json:"min_time"`
	MaxTime    int64  `json:"max_time"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
	// Gaps 为 MinTime~MaxTime 之间缺失的根数（周末休市也会计入）。
	Gaps       int64  `json:"gaps"`
	Path       string `json:"path"`
}

// CandleStore 缓存拉取过的 K 线，每个品种一个 sqlite 文件，周期作为主键的一部分。
// 数据源不可用时回测从这里读取最近的数据。
type CandleStore struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

const candleSchema = `
CREATE TABLE IF NOT EXISTS candles (
	timeframe  TEXT    NOT NULL,
	open_time  INTEGER NOT NULL,
	close_time INTEGER NOT NULL,
	open       REAL    NOT NULL,
	high       REAL    NOT NULL,
	low        REAL    NOT NULL,
	close      REAL    NOT NULL,
	volume     REAL    NOT NULL,
	trades     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (timeframe, open_time)
);
CREATE TABLE IF NOT EXISTS sync_log (
	timeframe    TEXT PRIMARY KEY,
	last_sync_at INTEGER NOT NULL,
	last_batch   INTEGER NOT NULL
);`

const candleColumns = `open_time, close_time, open, high, low, close, volume, trades`

func NewCandleStore(root string) (*CandleStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("candle dir 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &CandleStore{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *CandleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for symbol, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, symbol)
	}
	return firstErr
}

// storeKey 统一品种大小写并把周期别名（H4/M15）折叠为标准 key。
func storeKey(symbol, timeframe string) (string, string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", "", fmt.Errorf("symbol 不能为空")
	}
	tf, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return "", "", err
	}
	return symbol, tf.Key, nil
}

func (s *CandleStore) path(symbol string) string {
	return filepath.Join(s.root, symbol+".db")
}

func (s *CandleStore) open(symbol string) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[symbol]; ok {
		return db, nil
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", s.path(symbol))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(candleSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init candle schema: %w", err)
	}
	s.dbs[symbol] = db
	return db, nil
}

// InsertCandles 校验后批量写入；相同 open_time 覆盖旧值（未收盘 K 线后续会被修正）。
func (s *CandleStore) InsertCandles(ctx context.Context, symbol, timeframe string, candles []market.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	if err := market.ValidateCandles(candles); err != nil {
		return 0, err
	}
	symbol, tf, err := storeKey(symbol, timeframe)
	if err != nil {
		return 0, err
	}
	db, err := s.open(symbol)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO candles (timeframe, `+candleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, tf, c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume, c.Trades); err != nil {
			return 0, fmt.Errorf("insert %s %s @%d: %w", symbol, tf, c.OpenTime, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO sync_log (timeframe, last_sync_at, last_batch) VALUES (?, ?, ?)`,
		tf, time.Now().UnixMilli(), len(candles)); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(candles), nil
}

// Manifest 实时统计缓存覆盖范围；从未同步过的周期返回 Rows=0。
func (s *CandleStore) Manifest(ctx context.Context, symbol, timeframe string) (Manifest, error) {
	symbol, tf, err := storeKey(symbol, timeframe)
	if err != nil {
		return Manifest{}, err
	}
	db, err := s.open(symbol)
	if err != nil {
		return Manifest{}, err
	}
	m := Manifest{Symbol: symbol, Timeframe: tf, Path: s.path(symbol)}
	period, _ := market.ParseTimeframe(tf)
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(1), COALESCE(MIN(open_time), 0), COALESCE(MAX(open_time), 0),
		       COALESCE((SELECT last_sync_at FROM sync_log WHERE timeframe = ?), 0)
		FROM candles WHERE timeframe = ?`, tf, tf).
		Scan(&m.Rows, &m.MinTime, &m.MaxTime, &m.LastSyncAt)
	if err != nil {
		return Manifest{}, err
	}
	if m.Rows > 0 {
		m.Gaps = period.ExpectedCandles(m.MinTime, m.MaxTime) - m.Rows
	}
	return m, nil
}

// LatestCandles 返回最近 limit 根 K 线（按 open_time 升序）。
func (s *CandleStore) LatestCandles(ctx context.Context, symbol, timeframe string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit 需 > 0")
	}
	return s.query(ctx, symbol, timeframe, `
		SELECT `+candleColumns+` FROM (
			SELECT * FROM candles WHERE timeframe = ? ORDER BY open_time DESC LIMIT ?
		) ORDER BY open_time ASC`, limit)
}

// RangeCandles 返回开盘时间落在 [start, end] 内的 K 线。
func (s *CandleStore) RangeCandles(ctx context.Context, symbol, timeframe string, start, end int64) ([]market.Candle, error) {
	if start <= 0 || end <= 0 {
		return nil, fmt.Errorf("start/end 需 > 0")
	}
	if end < start {
		start, end = end, start
	}
	return s.query(ctx, symbol, timeframe, `
		SELECT `+candleColumns+` FROM candles
		WHERE timeframe = ? AND open_time BETWEEN ? AND ?
		ORDER BY open_time ASC`, start, end)
}

func (s *CandleStore) query(ctx context.Context, symbol, timeframe, q string, args ...any) ([]market.Candle, error) {
	symbol, tf, err := storeKey(symbol, timeframe)
	if err != nil {
		return nil, err
	}
	db, err := s.open(symbol)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, q, append([]any{tf}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Trades); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
