package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	levelVar slog.LevelVar
	current  atomic.Pointer[slog.Logger]
)

func init() {
	SetOutput(nil)
}

// SetOutput 替换日志输出目标（如 stdout + 文件）；nil 恢复为 stdout。
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	current.Store(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar})))
}

// SetLevel 按名称设置日志级别，未知名称回退到 info。
func SetLevel(level string) {
	levelVar.Set(ParseLevel(level))
}

// ParseLevel 将 debug/info/warn/error 映射为 slog.Level。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func logf(level slog.Level, format string, v ...any) {
	if level < levelVar.Level() {
		return
	}
	current.Load().Log(context.Background(), level, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any) { logf(slog.LevelDebug, format, v...) }
func Infof(format string, v ...any)  { logf(slog.LevelInfo, format, v...) }
func Warnf(format string, v ...any)  { logf(slog.LevelWarn, format, v...) }
func Errorf(format string, v ...any) { logf(slog.LevelError, format, v...) }

// Entry 给一组日志统一加上 [component] 前缀。
type Entry struct {
	prefix string
}

// With 返回带组件前缀的 Entry，例如 With("backtest") 输出 "[backtest] ..."。
func With(component string) Entry {
	component = strings.TrimSpace(component)
	if component == "" {
		return Entry{}
	}
	return Entry{prefix: "[" + component + "] "}
}

func (e Entry) Debugf(format string, v ...any) { Debugf(e.prefix+format, v...) }
func (e Entry) Infof(format string, v ...any)  { Infof(e.prefix+format, v...) }
func (e Entry) Warnf(format string, v ...any)  { Warnf(e.prefix+format, v...) }
func (e Entry) Errorf(format string, v ...any) { Errorf(e.prefix+format, v...) }

// InfoBlock 逐行输出多行文本（如回测汇总）。
func InfoBlock(block string) {
	block = strings.TrimSpace(block)
	if block == "" {
		return
	}
	for _, line := range strings.Split(block, "\n") {
		logf(slog.LevelInfo, "%s", line)
	}
}
