// Package factory selects the venue adapter at startup based on config.
// It lives outside package gateway because the adapters themselves import
// gateway for the shared order types.
package factory

import (
	"fmt"
	"strings"
	"time"

	"tickflow/internal/config"
	"tickflow/internal/gateway"
	"tickflow/internal/gateway/binance"
	"tickflow/internal/gateway/ninjatrader"
	"tickflow/internal/gateway/noop"
	"tickflow/internal/gateway/rithmic"
	"tickflow/internal/gateway/tradovate"
	"tickflow/internal/market"
)

// NewBroker 按配置挑选场馆适配器。keep-alive 周期统一来自 Broker 段。
func NewBroker(cfg *config.Config) (gateway.Broker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	every := time.Duration(cfg.Broker.KeepAliveSeconds) * time.Second
	switch strings.ToLower(strings.TrimSpace(cfg.Broker.Venue)) {
	case "", "noop":
		return noop.New(), nil
	case "tradovate":
		return tradovate.New(cfg.Broker.Tradovate, every)
	case "rithmic":
		return rithmic.New(cfg.Broker.Rithmic, every), nil
	case "ninjatrader":
		return ninjatrader.New(cfg.Broker.NinjaTrader, every), nil
	default:
		return nil, fmt.Errorf("unsupported broker venue: %s", cfg.Broker.Venue)
	}
}

// NewTickSource 选择行情来源。source=broker 时要求所选券商本身
// 能推送行情（目前只有 rithmic 的流式连接满足）。
func NewTickSource(cfg *config.Config, broker gateway.Broker) (market.TickSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Market.Source)) {
	case "", "broker":
		src, ok := broker.(market.TickSource)
		if !ok {
			return nil, fmt.Errorf("broker venue %s cannot stream ticks, set market.source=binance", broker.Name())
		}
		return src, nil
	case "binance":
		return binance.New(cfg.Market.Binance)
	default:
		return nil, fmt.Errorf("unsupported market source: %s", cfg.Market.Source)
	}
}
