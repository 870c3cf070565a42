package binance

import (
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertAggTradeEvent(t *testing.T) {
	tick, ok := convertAggTradeEvent(&futures.WsAggTradeEvent{
		Symbol:    "btcusdt",
		Price:     "64250.10",
		TradeTime: 1750000000123,
	})
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", tick.Instrument)
	p, ok := tick.Price()
	require.True(t, ok)
	assert.Equal(t, 64250.10, p)
	assert.Equal(t, time.UnixMilli(1750000000123), tick.VenueTime)
}

func TestConvertAggTradeEventRejectsBadFrames(t *testing.T) {
	_, ok := convertAggTradeEvent(nil)
	assert.False(t, ok)
	_, ok = convertAggTradeEvent(&futures.WsAggTradeEvent{Symbol: "BTCUSDT", Price: "0"})
	assert.False(t, ok)
	_, ok = convertAggTradeEvent(&futures.WsAggTradeEvent{Symbol: "", Price: "100"})
	assert.False(t, ok)
}
