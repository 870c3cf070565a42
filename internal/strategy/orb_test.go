package strategy

import (
	"testing"
	"time"

	"tickflow/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testORBConfig() ORBConfig {
	return ORBConfig{
		StrategyID:         "orb-test",
		OpeningRangeBars:   3,
		EMAPeriod:          5,
		ATRPeriod:          3,
		StopATRMultiple:    1,
		CooldownSeconds:    300,
		SessionStartMinute: 13*60 + 30,
		SessionEndMinute:   20 * 60,
		RiskUSD:            200,
		RiskReward:         2,
		MaxContracts:       10,
		TickSize:           0.25,
		TickValue:          1.25,
	}
}

func sessionBar(minuteOffset int, open, high, low, close float64) market.Bar {
	start := time.Date(2025, 6, 2, 13, 30, 0, 0, time.UTC).Add(time.Duration(minuteOffset) * time.Minute)
	return market.Bar{
		Instrument:  "MES",
		BucketStart: start.Unix(),
		Duration:    60,
		Open:        open,
		High:        high,
		Low:         low,
		Close:       close,
		TickCount:   10,
	}
}

// 区间 3 根 + 预热后首次收盘突破 → 恰好一笔多头意图。
func breakoutSequence() []market.Bar {
	return []market.Bar{
		sessionBar(0, 5000, 5010, 4990, 5005),
		sessionBar(1, 5005, 5008, 4995, 5002),
		sessionBar(2, 5002, 5009, 4996, 5006),
		sessionBar(3, 5006, 5009, 5003, 5008),
		sessionBar(4, 5008, 5009.5, 5005, 5009),
		sessionBar(5, 5009, 5014, 5008, 5012), // close 突破区间高点 5010
		sessionBar(6, 5012, 5016, 5010, 5015),
	}
}

func TestORBEmitsLongBreakoutIntent(t *testing.T) {
	orb := NewORB("MES", testORBConfig())

	var intents []*Intent
	for _, bar := range breakoutSequence() {
		ev := orb.EvaluateClosedBar(bar)
		if ev.Kind == KindIntent {
			intents = append(intents, ev.Intent)
		}
	}
	require.Len(t, intents, 1, "one breakout fires exactly once per session")

	intent := intents[0]
	assert.Equal(t, "MES", intent.Instrument)
	assert.Equal(t, SideBuy, intent.Side)
	assert.GreaterOrEqual(t, intent.Contracts, 1, "a sized intent always carries at least one contract")
	assert.Greater(t, intent.StopTicks, 0)
	assert.Greater(t, intent.TakeProfitTicks, 0)
	assert.Equal(t, 5012.0, intent.EntryPrice)
	assert.Less(t, intent.StopPrice, intent.EntryPrice)
	assert.Greater(t, intent.TakeProfitPrice, intent.EntryPrice)
	assert.Equal(t, "orb-test", intent.StrategyID)
	assert.LessOrEqual(t, intent.RiskUSDPlanned, testORBConfig().RiskUSD,
		"sizing floors toward safety, planned risk never exceeds the budget")
}

// 同一 bar 序列喂给两个全新实例，逐个评估结果完全一致（可重放）。
func TestORBDeterministicReplay(t *testing.T) {
	first := NewORB("MES", testORBConfig())
	second := NewORB("MES", testORBConfig())

	bars := breakoutSequence()
	var a, b []Evaluation
	for _, bar := range bars {
		a = append(a, first.EvaluateClosedBar(bar))
	}
	for _, bar := range bars {
		b = append(b, second.EvaluateClosedBar(bar))
	}
	assert.Equal(t, a, b)
}

func TestORBOutsideSessionIsNoop(t *testing.T) {
	orb := NewORB("MES", testORBConfig())
	night := sessionBar(0, 5000, 5010, 4990, 5005)
	night.BucketStart = time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC).Unix()
	ev := orb.EvaluateClosedBar(night)
	assert.Equal(t, KindNoop, ev.Kind)
}

// 风险预算不足一张时，意图以 blocked 呈现而不是发出零张意图。
func TestORBZeroSizeSurfacesAsBlocked(t *testing.T) {
	cfg := testORBConfig()
	cfg.RiskUSD = 1
	orb := NewORB("MES", cfg)

	var blocked []Evaluation
	for _, bar := range breakoutSequence() {
		ev := orb.EvaluateClosedBar(bar)
		require.NotEqual(t, KindIntent, ev.Kind, "zero-size intent must never be emitted")
		if ev.Kind == KindBlocked {
			blocked = append(blocked, ev)
		}
	}
	require.NotEmpty(t, blocked)
	assert.Contains(t, blocked[0].Reason, "risk budget")
}

func TestORBCooldownBlocksSecondSignal(t *testing.T) {
	cfg := testORBConfig()
	cfg.CooldownSeconds = 3600
	orb := NewORB("MES", cfg)
	for _, bar := range breakoutSequence() {
		orb.EvaluateClosedBar(bar)
	}
	// 在冷却期内制造对侧突破
	ev := orb.EvaluateClosedBar(sessionBar(7, 5015, 5016, 4980, 4985))
	assert.Equal(t, KindBlocked, ev.Kind)
	assert.Contains(t, ev.Reason, "cooldown")
}

func TestRegistryRoutesPerInstrument(t *testing.T) {
	created := map[string]int{}
	reg := NewRegistry(func(instrument string) Strategy {
		created[instrument]++
		return NewORB(instrument, testORBConfig())
	})

	reg.Evaluate(sessionBar(0, 5000, 5010, 4990, 5005))
	reg.Evaluate(sessionBar(1, 5005, 5008, 4995, 5002))
	bar := sessionBar(0, 100, 101, 99, 100)
	bar.Instrument = "MNQ"
	reg.Evaluate(bar)

	assert.Equal(t, map[string]int{"MES": 1, "MNQ": 1}, created, "one evaluator per instrument")
}
