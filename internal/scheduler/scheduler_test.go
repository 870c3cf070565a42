package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedSchedulerRunsAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	s := NewFixedScheduler(ctx, 10*time.Millisecond)
	done := make(chan struct{})
	go func() {
		s.Start(func() { runs.Add(1) })
		close(done)
	}()
	time.Sleep(60 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler 未随 ctx 退出")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestFixedSchedulerRunImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var runs atomic.Int32
	s := NewFixedScheduler(ctx, time.Hour)
	s.RunImmediately = true
	go s.Start(func() {
		runs.Add(1)
		cancel()
	})
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestFixedSchedulerInvalidInterval(t *testing.T) {
	s := NewFixedScheduler(context.Background(), 0)
	done := make(chan struct{})
	go func() {
		s.Start(func() { t.Error("不该执行") })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("无效周期应立即退出")
	}
}

func TestAlignedSchedulerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewAlignedScheduler(ctx, time.Hour, 0)
	done := make(chan struct{})
	go func() {
		s.Start(func() {})
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler 未随 ctx 退出")
	}
}
