package session

import (
	"fmt"
	"strings"
	"time"

	"goldsweep/internal/config"
)

// Gate 判断时间戳是否落在交易时段内，并给出时段名称。
type Gate struct {
	cfg config.SessionConfig
	loc *time.Location
}

func New(cfg config.SessionConfig) *Gate {
	return &Gate{cfg: cfg, loc: cfg.Location()}
}

// IsWeekend 按配置时区判断周六/周日。
func (g *Gate) IsWeekend(ts time.Time) bool {
	wd := ts.In(g.loc).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Active 返回 ts 是否处于任一交易时段（周末按配置拒绝）。
func (g *Gate) Active(ts time.Time) bool {
	if g.cfg.SkipWeekends && g.IsWeekend(ts) {
		return false
	}
	return len(g.activeWindows(ts)) > 0
}

// Name 返回时段名称，如 "London"、"London + New York"；
// 不在任何时段时返回 "Asian (Pre-London)"、"Between Sessions" 或 "After Hours"。
func (g *Gate) Name(ts time.Time) string {
	if names := g.activeWindows(ts); len(names) > 0 {
		return strings.Join(names, " + ")
	}
	if len(g.cfg.Windows) == 0 {
		return "Closed"
	}
	hour := ts.In(g.loc).Hour()
	first, lastClose := g.cfg.Windows[0], 0
	for _, w := range g.cfg.Windows {
		if w.Open < first.Open {
			first = w
		}
		if w.Close > lastClose {
			lastClose = w.Close
		}
	}
	switch {
	case hour < first.Open:
		return fmt.Sprintf("Asian (Pre-%s)", first.Name)
	case hour >= lastClose:
		return "After Hours"
	default:
		return "Between Sessions"
	}
}

func (g *Gate) activeWindows(ts time.Time) []string {
	hour := ts.In(g.loc).Hour()
	var names []string
	for _, w := range g.cfg.Windows {
		if hour >= w.Open && hour < w.Close {
			names = append(names, w.Name)
		}
	}
	return names
}
