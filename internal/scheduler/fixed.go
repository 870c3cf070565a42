package scheduler

import (
	"context"
	"time"

	"tickflow/internal/logger"
)

// FixedScheduler 按固定周期执行任务，不做边界对齐。强制收盘
// 巡检用它：行情静默时照样触发，不依赖 tick 到达。
type FixedScheduler struct {
	Interval       time.Duration
	RunImmediately bool

	ctx context.Context
}

func NewFixedScheduler(ctx context.Context, interval time.Duration) *FixedScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &FixedScheduler{Interval: interval, ctx: ctx}
}

func (s *FixedScheduler) Start(task func()) {
	if s == nil || task == nil {
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("FixedScheduler: invalid interval=%s, exit", s.Interval)
		return
	}
	if s.RunImmediately {
		task()
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			logger.Infof("FixedScheduler: ctx done, exit")
			return
		case <-ticker.C:
			task()
		}
	}
}
