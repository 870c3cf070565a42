package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tickflow/internal/config"
	"tickflow/internal/execution"
	"tickflow/internal/gateway"
	"tickflow/internal/gateway/notifier"
	"tickflow/internal/instrument"
	"tickflow/internal/logger"
	"tickflow/internal/market"
	"tickflow/internal/scheduler"
	"tickflow/internal/store"
	storemodel "tickflow/internal/store/model"
	"tickflow/internal/strategy"

	"gorm.io/datatypes"
)

const tickBuffer = 1024

// LiveWorker 是一个交易身份的工作进程：tick 摄入、强制收盘巡检、
// 策略评估与下单都在这里汇流。收盘柱的评估严格串行——每个品种
// 只有一个聚合器和一个评估器实例，天然无竞态。
type LiveWorker struct {
	cfg      *config.Config
	symbols  []string
	catalog  *instrument.Catalog
	book     *market.Book
	registry *strategy.Registry
	machine  *execution.Machine
	broker   gateway.Broker
	source   market.TickSource
	db       store.Store
	notify   notifier.TextNotifier
}

func (w *LiveWorker) Run(ctx context.Context) error {
	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := w.broker.Connect(connCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("券商连接失败: %w", err)
	}
	authCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err = w.broker.Authorize(authCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("券商授权失败: %w", err)
	}
	w.broker.StartKeepAlive(ctx)
	defer w.broker.StopKeepAlive()

	// 恢复对账没跑完之前不开始消费行情，避免在旧仓位状态未知时下新单
	if err := w.machine.ResumeWithRetry(ctx, 5*time.Second); err != nil {
		return fmt.Errorf("恢复对账失败: %w", err)
	}

	ticks := make(chan market.Tick, tickBuffer)
	err = w.source.SubscribeTicks(ctx, w.symbols, func(tick market.Tick) {
		select {
		case ticks <- tick:
		default:
			logger.Warnf("live: tick 队列已满，丢弃 %s", tick.Instrument)
		}
	})
	if err != nil {
		return fmt.Errorf("订阅行情失败: %w", err)
	}

	// 强制收盘巡检独立于 tick 到达：行情静默时聚合中的柱也要按时收盘。
	// 巡检对齐到间隔的墙钟边界，紧跟在每个可能的桶关闭时刻之后触发。
	forceCh := make(chan time.Time, 1)
	go scheduler.NewAlignedScheduler(ctx, time.Duration(w.cfg.Bars.ForceCloseIntervalSeconds)*time.Second, 0).
		Start(func() {
			select {
			case forceCh <- time.Now():
			default:
			}
		})

	// 行情来源健康度按固定周期落日志，断流与丢弃量不靠人工查接口发现
	go scheduler.NewFixedScheduler(ctx, time.Minute).Start(func() {
		st := w.source.Stats()
		logger.Infof("live: source 健康度 connected=%v ticks=%d drops=%d reconnects=%d",
			st.Connected, st.TickCount, st.DropCount, st.Reconnects)
	})

	logger.Infof("live: worker 启动 symbols=%v bar=%ds", w.symbols, w.cfg.Bars.DurationSeconds)
	staleMaxAge := time.Duration(w.cfg.Bars.StaleTickMaxAgeSeconds) * time.Second
	for {
		select {
		case <-ctx.Done():
			logger.Infof("live: ctx done, worker 退出")
			return ctx.Err()
		case tick := <-ticks:
			w.handleTick(ctx, tick, staleMaxAge)
		case now := <-forceCh:
			for _, bar := range w.book.ForceCloseAll(now) {
				w.publishClosedBar(ctx, bar, true)
				w.evaluateClosedBar(ctx, bar)
			}
		}
	}
}

func (w *LiveWorker) handleTick(ctx context.Context, tick market.Tick, staleMaxAge time.Duration) {
	now := time.Now()
	tick = tick.Normalized()
	if tick.Stale(now, staleMaxAge) {
		logger.Debugf("live: 丢弃过期 tick %s venue_ts=%s", tick.Instrument, tick.VenueTime.Format(time.RFC3339))
		return
	}
	if _, ok := tick.Price(); !ok {
		return
	}
	if bar, closed := w.book.Ingest(tick, now); closed {
		w.publishClosedBar(ctx, bar, false)
		w.evaluateClosedBar(ctx, bar)
	}
}

// publishClosedBar 把收盘柱旁路发布出去：事件日志逐柱落一行，
// 强制收盘额外推送通知。两条路都是 best-effort，失败只告警，
// 绝不阻断后续的策略评估。
func (w *LiveWorker) publishClosedBar(ctx context.Context, bar market.Bar, forced bool) {
	details, _ := json.Marshal(bar)
	msg := fmt.Sprintf("%s %ds bar closed o=%.4g c=%.4g ticks=%d", bar.Instrument, bar.Duration, bar.Open, bar.Close, bar.TickCount)
	if forced {
		msg += " (forced)"
	}
	ev := &storemodel.EventLogModel{
		UserID:  w.cfg.App.UserID,
		Type:    "bar_closed",
		Level:   "info",
		Message: msg,
		Details: datatypes.JSON(details),
	}
	if err := w.db.Events().Append(ctx, ev); err != nil {
		logger.Warnf("live: 收盘事件写入失败 instrument=%s err=%v", bar.Instrument, err)
	}
	if !forced || w.notify == nil {
		return
	}
	note := notifier.BarNote{
		Instrument:  bar.Instrument,
		BucketStart: bar.BucketStart,
		Duration:    bar.Duration,
		Open:        bar.Open,
		High:        bar.High,
		Low:         bar.Low,
		Close:       bar.Close,
		TickCount:   bar.TickCount,
	}
	go func() {
		if err := w.notify.SendText(note.Render()); err != nil {
			logger.Warnf("live: 收盘通知发送失败 instrument=%s err=%v", bar.Instrument, err)
		}
	}()
}

func (w *LiveWorker) evaluateClosedBar(ctx context.Context, bar market.Bar) {
	ev := w.registry.Evaluate(bar)
	switch ev.Kind {
	case strategy.KindNoop:
		return
	case strategy.KindBlocked:
		logger.Infof("live: 信号被拦截 instrument=%s bucket=%d reason=%s", bar.Instrument, bar.BucketStart, ev.Reason)
		return
	case strategy.KindIntent:
	}
	intent := *ev.Intent
	spec, _ := w.catalog.Lookup(intent.Instrument)
	key, created, err := w.machine.SubmitIntent(ctx, intent, spec.TickSize)
	switch {
	case err != nil:
		logger.Errorf("live: 下单失败 instrument=%s key=%.12s err=%v", intent.Instrument, key, err)
	case !created:
		logger.Infof("live: 重复意图 instrument=%s key=%.12s", intent.Instrument, key)
	default:
		logger.Infof("live: 已提交 instrument=%s side=%s contracts=%d key=%.12s",
			intent.Instrument, intent.Side, intent.Contracts, key)
	}
}

// Close 释放工作进程持有的外部资源。
func (w *LiveWorker) Close() {
	if w == nil {
		return
	}
	if w.source != nil {
		if err := w.source.Close(); err != nil {
			logger.Warnf("live: 行情来源关闭失败: %v", err)
		}
	}
	if w.broker != nil {
		if err := w.broker.Disconnect(); err != nil {
			logger.Warnf("live: 券商断开失败: %v", err)
		}
	}
	if w.db != nil {
		if err := w.db.Close(); err != nil {
			logger.Warnf("live: 存储关闭失败: %v", err)
		}
	}
}
