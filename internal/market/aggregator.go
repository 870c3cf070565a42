package market

import (
	"sync"
	"time"
)

// Bar 是固定周期的 OHLC 聚合。BucketStart 始终对齐到周期整数倍。
// 只有当前未关闭的 bar 可变；一旦被后继 bar 取代即不可变，且恰好对外发布一次。
type Bar struct {
	Instrument  string `json:"instrument"`
	BucketStart int64  `json:"bucket_start"` // Unix 秒，duration 的整数倍
	Duration    int64  `json:"duration"`     // 秒

	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	TickCount int64   `json:"tick_count"`
}

// Aggregator 把乱序、可能断流的 tick 流折叠成单个合约的 OHLC bar。
// 分桶以本地到达时间为准（场馆时间戳可选且可能偏斜），只向前推进，不回填。
type Aggregator struct {
	instrument string
	duration   time.Duration

	current *Bar
}

func NewAggregator(instrument string, duration time.Duration) *Aggregator {
	return &Aggregator{instrument: instrument, duration: duration}
}

// Ingest 处理一个已被调用方接受的 tick。
// 返回的 bool 为 true 时，Bar 是刚刚关闭的上一根 bar。
func (a *Aggregator) Ingest(tick Tick, arrival time.Time) (Bar, bool) {
	price, ok := tick.Price()
	if !ok {
		return Bar{}, false
	}
	bucket := a.bucketFor(arrival)
	if a.current == nil {
		a.current = a.openBar(bucket, price)
		return Bar{}, false
	}
	if bucket <= a.current.BucketStart {
		// 同一桶内更新；更早的桶不回填（到达时间单调性由上游保证）。
		a.current.Close = price
		if price > a.current.High {
			a.current.High = price
		}
		if price < a.current.Low {
			a.current.Low = price
		}
		a.current.TickCount++
		return Bar{}, false
	}
	closed := *a.current
	a.current = a.openBar(bucket, price)
	return closed, true
}

// ForceClose 在固定轮询间隔被调用：当前桶超龄且期间无新 tick 时，
// 原样关闭（OHLC 与 tickCount 不变），保证静默期也按墙钟节奏出 bar。
func (a *Aggregator) ForceClose(now time.Time) (Bar, bool) {
	if a.current == nil {
		return Bar{}, false
	}
	if a.bucketFor(now) <= a.current.BucketStart {
		return Bar{}, false
	}
	closed := *a.current
	a.current = nil
	return closed, true
}

// Current 返回进行中 bar 的副本，仅用于观测。
func (a *Aggregator) Current() (Bar, bool) {
	if a.current == nil {
		return Bar{}, false
	}
	return *a.current, true
}

func (a *Aggregator) bucketFor(t time.Time) int64 {
	secs := int64(a.duration / time.Second)
	return t.Unix() / secs * secs
}

func (a *Aggregator) openBar(bucket int64, price float64) *Bar {
	return &Bar{
		Instrument:  a.instrument,
		BucketStart: bucket,
		Duration:    int64(a.duration / time.Second),
		Open:        price,
		High:        price,
		Low:         price,
		Close:       price,
		TickCount:   1,
	}
}

// Book 持有每个合约各自的聚合器实例（显式 keyed map，绝不共享单例）。
// 单个合约的摄入与强平严格串行，由 Book 的锁保证。
type Book struct {
	mu       sync.Mutex
	duration time.Duration
	aggs     map[string]*Aggregator
}

func NewBook(duration time.Duration) *Book {
	return &Book{
		duration: duration,
		aggs:     make(map[string]*Aggregator),
	}
}

func (b *Book) Ingest(tick Tick, arrival time.Time) (Bar, bool) {
	tick = tick.Normalized()
	if tick.Instrument == "" {
		return Bar{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	agg, ok := b.aggs[tick.Instrument]
	if !ok {
		agg = NewAggregator(tick.Instrument, b.duration)
		b.aggs[tick.Instrument] = agg
	}
	return agg.Ingest(tick, arrival)
}

// ForceCloseAll 轮询所有合约，返回被强制关闭的 bar 列表。
func (b *Book) ForceCloseAll(now time.Time) []Bar {
	b.mu.Lock()
	defer b.mu.Unlock()
	var closed []Bar
	for _, agg := range b.aggs {
		if bar, ok := agg.ForceClose(now); ok {
			closed = append(closed, bar)
		}
	}
	return closed
}
