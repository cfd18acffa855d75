package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"goldsweep/internal/config"
)

// 2024-03-06 is a Wednesday.
func at(day, hour int) time.Time {
	return time.Date(2024, 3, day, hour, 30, 0, 0, time.UTC)
}

func TestActiveWindows(t *testing.T) {
	g := New(config.Default().Strategy.Session)
	assert.False(t, g.Active(at(6, 7)))
	assert.True(t, g.Active(at(6, 8)))
	assert.True(t, g.Active(at(6, 15)))
	assert.True(t, g.Active(at(6, 20)))
	assert.False(t, g.Active(at(6, 21)), "close hour is exclusive")
	assert.False(t, g.Active(at(9, 10)), "saturday")
	assert.False(t, g.Active(at(10, 10)), "sunday")
}

func TestWeekendAllowedWhenConfigured(t *testing.T) {
	cfg := config.Default().Strategy.Session
	cfg.SkipWeekends = false
	assert.True(t, New(cfg).Active(at(9, 10)))
}

func TestName(t *testing.T) {
	g := New(config.Default().Strategy.Session)
	assert.Equal(t, "London", g.Name(at(6, 9)))
	assert.Equal(t, "London + New York", g.Name(at(6, 14)))
	assert.Equal(t, "New York", g.Name(at(6, 18)))
	assert.Equal(t, "Asian (Pre-London)", g.Name(at(6, 3)))
	assert.Equal(t, "After Hours", g.Name(at(6, 22)))
}

func TestNameBetweenSessions(t *testing.T) {
	cfg := config.Default().Strategy.Session
	cfg.Windows = []config.SessionWindow{{Name: "London", Open: 8, Close: 12}, {Name: "New York", Open: 14, Close: 20}}
	assert.Equal(t, "Between Sessions", New(cfg).Name(at(6, 13)))
}

func TestTimezone(t *testing.T) {
	cfg := config.Default().Strategy.Session
	cfg.Timezone = "Asia/Shanghai"
	g := New(cfg)
	// 02:30 UTC is 10:30 in Shanghai
	assert.True(t, g.Active(time.Date(2024, 3, 6, 2, 30, 0, 0, time.UTC)))
}
