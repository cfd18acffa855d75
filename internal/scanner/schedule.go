package scanner

import (
	"context"
	"time"
)

// alignedSchedule 在每根 K 线收盘后 offset 执行任务。
type alignedSchedule struct {
	interval       time.Duration
	offset         time.Duration
	runImmediately bool
	now            func() time.Time
}

func (s alignedSchedule) run(ctx context.Context, task func()) {
	if s.now == nil {
		s.now = time.Now
	}
	if s.runImmediately {
		task()
	}
	for {
		now := s.now().UTC()
		nextClose, wakeAt := s.next(now)
		log.Debugf("距离K线收盘=%s (收盘=%s) 下一次执行=%s",
			nextClose.Sub(now).Truncate(time.Second), nextClose.Format(time.RFC3339), wakeAt.Format(time.RFC3339))
		timer := time.NewTimer(wakeAt.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		task()
	}
}

func (s alignedSchedule) next(now time.Time) (nextClose, wakeAt time.Time) {
	now = now.UTC()
	nextClose = now.Truncate(s.interval).Add(s.interval)
	return nextClose, nextClose.Add(s.offset)
}
