package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(sec int) time.Time {
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	return base.Add(time.Duration(sec) * time.Second)
}

func TestAggregatorFirstTickOpensBar(t *testing.T) {
	agg := NewAggregator("MES", time.Minute)

	closed, ok := agg.Ingest(Tick{Instrument: "MES", Last: 5000}, at(0))
	assert.False(t, ok)
	assert.Zero(t, closed)

	cur, live := agg.Current()
	require.True(t, live)
	assert.Equal(t, 5000.0, cur.Open)
	assert.Equal(t, int64(1), cur.TickCount)
	assert.Zero(t, cur.BucketStart%60, "bucketStart must align to duration")
}

func TestAggregatorSameBucketMutatesInPlace(t *testing.T) {
	agg := NewAggregator("MES", time.Minute)
	agg.Ingest(Tick{Last: 5000}, at(0))
	agg.Ingest(Tick{Last: 5004}, at(10))
	agg.Ingest(Tick{Last: 4997}, at(20))
	_, ok := agg.Ingest(Tick{Last: 5001}, at(59))
	assert.False(t, ok, "no bar closes inside the same bucket")

	cur, _ := agg.Current()
	assert.Equal(t, 5000.0, cur.Open)
	assert.Equal(t, 5004.0, cur.High)
	assert.Equal(t, 4997.0, cur.Low)
	assert.Equal(t, 5001.0, cur.Close)
	assert.Equal(t, int64(4), cur.TickCount)
}

func TestAggregatorBucketCrossingEmitsExactlyOnce(t *testing.T) {
	agg := NewAggregator("MES", time.Minute)
	agg.Ingest(Tick{Last: 5000}, at(0))
	agg.Ingest(Tick{Last: 5002}, at(30))

	closed, ok := agg.Ingest(Tick{Last: 5005}, at(61))
	require.True(t, ok)
	assert.Equal(t, 5000.0, closed.Open)
	assert.Equal(t, 5002.0, closed.Close)
	assert.Equal(t, int64(2), closed.TickCount)

	// 触发 tick 成为新 bar 的种子
	cur, live := agg.Current()
	require.True(t, live)
	assert.Equal(t, 5005.0, cur.Open)
	assert.Equal(t, int64(1), cur.TickCount)
	assert.Greater(t, cur.BucketStart, closed.BucketStart)
}

// 对单调到达序列，每跨一次桶边界恰好产出一根 bar，
// 且 high/low 是桶内真实的运行极值。
func TestAggregatorOneBarPerBoundary(t *testing.T) {
	agg := NewAggregator("MNQ", time.Minute)
	prices := []float64{100, 103, 99, 101, 105, 98, 102, 104, 97, 106}
	emitted := 0
	for i, p := range prices {
		// 每个 tick 推进 45 秒：0,45,90,...,405，覆盖 7 个分钟桶
		arrival := at(i * 45)
		if _, ok := agg.Ingest(Tick{Last: p}, arrival); ok {
			emitted++
		}
	}
	// 到达时刻 0,45,90,...405 覆盖到分钟桶 0..6，共 7 桶 → 6 次关闭
	assert.Equal(t, 6, emitted)
}

func TestAggregatorHighLowInvariant(t *testing.T) {
	agg := NewAggregator("MES", time.Minute)
	prices := []float64{5000, 5010, 4990, 5005, 4985, 5020}
	for i, p := range prices {
		agg.Ingest(Tick{Last: p}, at(i))
	}
	cur, _ := agg.Current()
	assert.Equal(t, 5020.0, cur.High)
	assert.Equal(t, 4985.0, cur.Low)
	assert.GreaterOrEqual(t, cur.High, cur.Open)
	assert.GreaterOrEqual(t, cur.High, cur.Close)
	assert.LessOrEqual(t, cur.Low, cur.Open)
	assert.LessOrEqual(t, cur.Low, cur.Close)
}

func TestForceCloseIdleInstrument(t *testing.T) {
	agg := NewAggregator("MES", time.Minute)
	agg.Ingest(Tick{Last: 5000}, at(0))
	agg.Ingest(Tick{Last: 5003}, at(20))

	// 桶尚未超龄：不关闭
	_, ok := agg.ForceClose(at(59))
	assert.False(t, ok)

	// 静默越过边界：按原样关闭，OHLC 与 tickCount 不变
	closed, ok := agg.ForceClose(at(75))
	require.True(t, ok)
	assert.Equal(t, 5000.0, closed.Open)
	assert.Equal(t, 5003.0, closed.Close)
	assert.Equal(t, int64(2), closed.TickCount)

	// 已关闭后不再重复发布
	_, ok = agg.ForceClose(at(200))
	assert.False(t, ok)
	_, live := agg.Current()
	assert.False(t, live)
}

func TestForceCloseThenNextTickOpensFreshBar(t *testing.T) {
	agg := NewAggregator("MES", time.Minute)
	agg.Ingest(Tick{Last: 5000}, at(0))
	_, ok := agg.ForceClose(at(90))
	require.True(t, ok)

	_, ok = agg.Ingest(Tick{Last: 5010}, at(130))
	assert.False(t, ok, "first tick after silence opens a bar, closes nothing")
	cur, live := agg.Current()
	require.True(t, live)
	assert.Equal(t, 5010.0, cur.Open)
}

func TestAggregatorDiscardsUnpricedTicks(t *testing.T) {
	agg := NewAggregator("MES", time.Minute)
	_, ok := agg.Ingest(Tick{}, at(0))
	assert.False(t, ok)
	_, live := agg.Current()
	assert.False(t, live, "unpriced tick must not open a bar")
}

func TestBookKeepsOneAggregatorPerInstrument(t *testing.T) {
	book := NewBook(time.Minute)
	book.Ingest(Tick{Instrument: "MES", Last: 5000}, at(0))
	book.Ingest(Tick{Instrument: "MNQ", Last: 18000}, at(0))
	book.Ingest(Tick{Instrument: "mes", Last: 5001}, at(10))

	closedBars := book.ForceCloseAll(at(120))
	require.Len(t, closedBars, 2)
	byInstrument := map[string]Bar{}
	for _, bar := range closedBars {
		byInstrument[bar.Instrument] = bar
	}
	assert.Equal(t, int64(2), byInstrument["MES"].TickCount, "case-folded symbol shares the aggregator")
	assert.Equal(t, int64(1), byInstrument["MNQ"].TickCount)
}
