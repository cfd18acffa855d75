package levels

import (
	"fmt"
	"math"
)

// Name 是标量关键位的名称。
type Name string

const (
	PDH        Name = "PDH"
	PDL        Name = "PDL"
	PDC        Name = "PDC"
	AsianHigh  Name = "ASIAN_HIGH"
	AsianLow   Name = "ASIAN_LOW"
	WeeklyOpen Name = "WEEKLY_OPEN"
	SwingHigh  Name = "SWING_HIGH"
	SwingLow   Name = "SWING_LOW"
)

// namedOrder 固定了最近关键位搜索的遍历顺序（并列时先到先得）。
var namedOrder = []Name{PDH, PDL, PDC, AsianHigh, AsianLow, WeeklyOpen, SwingHigh, SwingLow}

var fibRatios = []struct {
	label string
	ratio float64
}{
	{"0.0", 0},
	{"23.6", 0.236},
	{"38.2", 0.382},
	{"50.0", 0.5},
	{"61.8", 0.618},
	{"78.6", 0.786},
	{"100.0", 1},
}

// FibLevel 是一条斐波那契回撤位。
type FibLevel struct {
	Label string  `json:"label"`
	Price float64 `json:"price"`
}

// Catalog 是某个评估时点的关键位集合；缺失的子项直接省略。
type Catalog struct {
	Named        map[Name]float64 `json:"named"`
	Fibonacci    []FibLevel       `json:"fibonacci,omitempty"`
	RoundNumbers []float64        `json:"round_numbers,omitempty"`
}

func newCatalog() Catalog {
	return Catalog{Named: make(map[Name]float64)}
}

func (c Catalog) set(name Name, price float64) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	c.Named[name] = price
}

// Get 返回标量关键位。
func (c Catalog) Get(name Name) (float64, bool) {
	v, ok := c.Named[name]
	return v, ok
}

// Empty 表示没有任何可用关键位。
func (c Catalog) Empty() bool {
	return len(c.Named) == 0 && len(c.Fibonacci) == 0 && len(c.RoundNumbers) == 0
}

// Level 是一个具体候选位及其与当前价的距离（pip）。
type Level struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Distance float64 `json:"distance_pips"`
}

// Candidates 按固定顺序展开：标量位（声明顺序）→ 斐波那契（升序）→ 整数关口（升序）。
func (c Catalog) Candidates() []Level {
	out := make([]Level, 0, len(namedOrder)+len(c.Fibonacci)+len(c.RoundNumbers))
	for _, name := range namedOrder {
		if v, ok := c.Named[name]; ok {
			out = append(out, Level{Name: string(name), Price: v})
		}
	}
	for _, f := range c.Fibonacci {
		out = append(out, Level{Name: "Fib " + f.Label, Price: f.Price})
	}
	for _, r := range c.RoundNumbers {
		out = append(out, Level{Name: fmt.Sprintf("Round $%d", int64(r)), Price: r})
	}
	return out
}
