package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe 是一个 K 线周期：Key 为内部标准写法，SourceInterval 是交易所 REST 的 interval 参数。
type Timeframe struct {
	Key            string
	Duration       time.Duration
	SourceInterval string
}

// 按周期从短到长排列；MT5 写法（M15/H4/D1）作为别名。
var timeframeTable = []struct {
	key   string
	alias string
	dur   time.Duration
}{
	{"1m", "m1", time.Minute},
	{"5m", "m5", 5 * time.Minute},
	{"15m", "m15", 15 * time.Minute},
	{"30m", "m30", 30 * time.Minute},
	{"1h", "h1", time.Hour},
	{"4h", "h4", 4 * time.Hour},
	{"1d", "d1", 24 * time.Hour},
	{"1w", "w1", 7 * 24 * time.Hour},
}

var timeframeIndex = func() map[string]Timeframe {
	idx := make(map[string]Timeframe, 2*len(timeframeTable))
	for _, row := range timeframeTable {
		tf := Timeframe{Key: row.key, Duration: row.dur, SourceInterval: row.key}
		idx[row.key] = tf
		idx[row.alias] = tf
	}
	return idx
}()

// ParseTimeframe 大小写不敏感，H4 与 4h 等价。
func ParseTimeframe(input string) (Timeframe, error) {
	tf, ok := timeframeIndex[strings.ToLower(strings.TrimSpace(input))]
	if !ok {
		return Timeframe{}, fmt.Errorf("不支持的周期: %q", input)
	}
	return tf, nil
}

// SupportedTimeframes 按周期长度升序返回标准 key。
func SupportedTimeframes() []string {
	out := make([]string, len(timeframeTable))
	for i, row := range timeframeTable {
		out[i] = row.key
	}
	return out
}

func (tf Timeframe) Millis() int64 { return tf.Duration.Milliseconds() }

// ExpectedCandles 是 [start, end] 两端开盘时间之间按周期连续时应有的根数。
func (tf Timeframe) ExpectedCandles(start, end int64) int64 {
	step := tf.Millis()
	if step <= 0 || end < start {
		return 0
	}
	return (end-start)/step + 1
}
