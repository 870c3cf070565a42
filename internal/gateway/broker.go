// Package gateway defines a capability-aware abstraction over heterogeneous
// broker venues. Callers describe a bracket order once, venue-agnostically;
// each adapter decides from its own static capabilities how to satisfy it
// (atomic entry+brackets in one call, or entry first then attach legs).
package gateway

import (
	"context"
	"fmt"
)

// Capabilities 是每个适配器的静态能力描述，启动时由工厂选定，
// 调用方不需要任何场馆特定知识。
type Capabilities struct {
	SupportsBracketInSingleCall      bool
	SupportsAttachBracketsAfterEntry bool
	RequiresSignedBracketTicks       bool
}

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// BracketPlan 以场馆无关的形式描述一笔入场单加两条保护腿，
// 止损/止盈同时携带价格与跳数两种表达，适配器取其所需。
type BracketPlan struct {
	ClientKey  string // 幂等键，透传给场馆作为客户端订单标识
	Instrument string
	Side       Side
	Contracts  int

	EntryPrice      float64 // 0 表示市价入场
	StopPrice       float64
	TakeProfitPrice float64
	StopTicks       int // 恒为正，方向由 Side 决定
	TakeProfitTicks int
	TickSize        float64
}

// BracketResult 汇总一次成功提交后的三条订单引用。
type BracketResult struct {
	EntryOrderID      string
	StopOrderID       string
	TakeProfitOrderID string
	Raw               map[string]any
}

// Position 是场馆侧实时仓位，只供恢复协议对账使用。
type Position struct {
	Instrument string
	Size       int // 带符号：多头为正，空头为负，0 为平
}

// Broker 是所有场馆适配器统一实现的生命周期加下单契约。
type Broker interface {
	Name() string
	Capabilities() Capabilities

	Connect(ctx context.Context) error
	Authorize(ctx context.Context) error
	Disconnect() error

	StartKeepAlive(ctx context.Context)
	StopKeepAlive()

	PlaceBracketOrder(ctx context.Context, plan BracketPlan) (*BracketResult, error)
}

// PositionReader 可选实现：恢复协议用它查询场馆侧实时仓位。
type PositionReader interface {
	GetPosition(ctx context.Context, instrument string) (Position, error)
}

// SignedTicks 为要求带符号跳数的场馆做方向归一化：
// 止损在入场的反方向，止盈在正方向。
func SignedTicks(side Side, stopTicks, tpTicks int) (stop, tp int) {
	if side == SideSell {
		return stopTicks, -tpTicks
	}
	return -stopTicks, tpTicks
}

// Validate 是提交前的形状检查，违反不变量的计划绝不触达场馆边界。
func (p BracketPlan) Validate() error {
	if p.Instrument == "" {
		return fmt.Errorf("bracket plan missing instrument")
	}
	if p.Side != SideBuy && p.Side != SideSell {
		return fmt.Errorf("bracket plan has invalid side %q", p.Side)
	}
	if p.Contracts < 1 {
		return fmt.Errorf("bracket plan requires at least 1 contract, got %d", p.Contracts)
	}
	if p.StopTicks <= 0 || p.TakeProfitTicks <= 0 {
		return fmt.Errorf("bracket plan requires positive stop/tp ticks (stop=%d tp=%d)", p.StopTicks, p.TakeProfitTicks)
	}
	return nil
}
