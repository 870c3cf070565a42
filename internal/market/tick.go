package market

import (
	"math"
	"strings"
	"time"
)

// Tick 是单个合约的一次报价更新。所有价格字段都可能缺失（0 表示缺失），
// 场馆时间戳同样可选且可能偏斜，只用于新鲜度判断，不参与分桶。
type Tick struct {
	Instrument string
	Bid        float64
	Ask        float64
	Last       float64
	VenueTime  time.Time
}

// Price 按 last → mid(bid,ask) → bid → ask 的优先级推导可用价格。
// 返回 false 表示无法推导，调用方应直接丢弃该 tick。
func (t Tick) Price() (float64, bool) {
	if valid(t.Last) {
		return t.Last, true
	}
	if valid(t.Bid) && valid(t.Ask) {
		return (t.Bid + t.Ask) / 2, true
	}
	if valid(t.Bid) {
		return t.Bid, true
	}
	if valid(t.Ask) {
		return t.Ask, true
	}
	return 0, false
}

// Stale 判断场馆时间戳是否过旧。没有场馆时间戳的 tick 视为新鲜。
func (t Tick) Stale(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 || t.VenueTime.IsZero() {
		return false
	}
	return now.Sub(t.VenueTime) > maxAge
}

func (t Tick) Normalized() Tick {
	t.Instrument = strings.ToUpper(strings.TrimSpace(t.Instrument))
	return t
}

func valid(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
