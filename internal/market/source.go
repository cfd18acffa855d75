package market

import "context"

// Source 是行情数据协作方：按周期拉取最近 count 根 K 线，必须按时间升序返回。
type Source interface {
	Fetch(ctx context.Context, timeframe string, count int) ([]Candle, error)
	Name() string
}
