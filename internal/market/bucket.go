package market

import "time"

const dayMillis = int64(24 * time.Hour / time.Millisecond)

// DailyBuckets 把 K 线按 UTC 自然日聚合为日线。
func DailyBuckets(candles []Candle) []Candle {
	return bucket(candles, func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}, dayMillis)
}

// WeeklyBuckets 把 K 线按周一 00:00 UTC 起始的自然周聚合。
func WeeklyBuckets(candles []Candle) []Candle {
	return bucket(candles, WeekStart, 7*dayMillis)
}

// WeekStart 返回 t 所在周的周一 00:00 UTC。
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}

func bucket(candles []Candle, anchor func(time.Time) time.Time, span int64) []Candle {
	var out []Candle
	var current *Candle
	for _, c := range candles {
		start := anchor(c.Time()).UnixMilli()
		if current == nil || current.OpenTime != start {
			out = append(out, Candle{
				OpenTime:  start,
				CloseTime: start + span - 1,
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
			})
			current = &out[len(out)-1]
		}
		if c.High > current.High {
			current.High = c.High
		}
		if c.Low < current.Low {
			current.Low = c.Low
		}
		current.Close = c.Close
		current.Volume += c.Volume
		current.Trades += c.Trades
	}
	return out
}
