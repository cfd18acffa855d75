package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"goldsweep/internal/logger"
	"goldsweep/internal/strategy/signal"
)

// Report 是一次扫描的结果。
type Report struct {
	Symbol   string          `json:"symbol"`
	At       time.Time       `json:"at"`
	Session  string          `json:"session"`
	Decision signal.Decision `json:"decision"`
	// Fetched 为 false 表示在时段预检阶段即被拒绝，没有拉取行情。
	Fetched bool `json:"fetched"`
}

// Sink 接收扫描结果。
type Sink interface {
	Publish(ctx context.Context, r Report)
}

// MultiSink 依次转发给多个 Sink。
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, r Report) {
	for _, s := range m {
		if s != nil {
			s.Publish(ctx, r)
		}
	}
}

// LogSink 把信号写入运行日志与 journal，拒绝原因只记 debug。
type LogSink struct {
	log logger.Entry
}

func NewLogSink() *LogSink {
	return &LogSink{log: logger.With("scanner")}
}

func (s *LogSink) Publish(_ context.Context, r Report) {
	d := r.Decision
	if !d.Emitted() {
		s.log.Debugf("%s %s no signal: %s %s", r.Symbol, r.At.Format(time.RFC3339), d.Rejected, d.Detail)
		return
	}
	sig := d.Signal
	s.log.Infof("%s %s @ %.2f SL %.2f TP %.2f/%.2f/%.2f lot %.2f conf %d",
		r.Symbol, sig.Direction, sig.Entry, sig.StopLoss,
		sig.TakeProfits[0].Price, sig.TakeProfits[1].Price, sig.TakeProfits[2].Price,
		sig.PositionSize, sig.Confidence)
	if !logger.JournalEnabled() {
		return
	}
	body, err := json.MarshalIndent(sig, "", "  ")
	if err != nil {
		body = []byte(err.Error())
	}
	logger.Journal("signal", r.Symbol,
		logger.JournalSection{Title: "summary", Body: fmt.Sprintf("%s %s level=%s session=%s regime=%s",
			r.At.Format(time.RFC3339), sig.Direction, sig.LevelName, sig.Session, sig.RegimeLabel)},
		logger.JournalSection{Title: "signal", Body: string(body)},
	)
}

// Latest 在内存中保留最近一次扫描与最近一个信号，供 HTTP 查询。
type Latest struct {
	mu     sync.RWMutex
	scan   *Report
	signal *Report
}

func NewLatest() *Latest { return &Latest{} }

func (l *Latest) Publish(_ context.Context, r Report) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scan = &r
	if r.Decision.Emitted() {
		l.signal = &r
	}
}

// Signal 返回最近一次产出信号的扫描。
func (l *Latest) Signal() (Report, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.signal == nil {
		return Report{}, false
	}
	return *l.signal, true
}

// Scan 返回最近一次扫描（无论是否产出信号）。
func (l *Latest) Scan() (Report, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.scan == nil {
		return Report{}, false
	}
	return *l.scan, true
}
