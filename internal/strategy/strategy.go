// Package strategy maps streams of closed bars to trade intents. Evaluators
// are stateful per instrument and deterministic for a given ordered bar
// sequence, so historical replay reproduces identical intents. They own no
// broker or persistence knowledge.
package strategy

import (
	"strings"
	"sync"
	"time"

	"tickflow/internal/market"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Intent 是策略产出的开仓意图。Contracts 恒 >= 1：
// 计算张数为 0 的情况必须以 Blocked 形式呈现，绝不发出零张意图。
type Intent struct {
	Instrument      string    `json:"instrument"`
	Side            Side      `json:"side"`
	Contracts       int       `json:"contracts"`
	EntryPrice      float64   `json:"entry_price"`
	StopPrice       float64   `json:"stop_price"`
	TakeProfitPrice float64   `json:"take_profit_price"`
	StopTicks       int       `json:"stop_ticks"`
	TakeProfitTicks int       `json:"take_profit_ticks"`
	RiskToReward    float64   `json:"risk_to_reward"`
	RiskUSDPlanned  float64   `json:"risk_usd_planned"`
	StrategyID      string    `json:"strategy_id"`
	SignalTimestamp time.Time `json:"signal_timestamp"`
	EntryTimestamp  time.Time `json:"entry_timestamp"`
}

type EvaluationKind string

const (
	KindIntent  EvaluationKind = "intent"
	KindBlocked EvaluationKind = "blocked"
	KindNoop    EvaluationKind = "noop"
)

// Evaluation 是 EvaluateClosedBar 的三态结果。
type Evaluation struct {
	Kind   EvaluationKind
	Intent *Intent
	Reason string
}

func Noop() Evaluation { return Evaluation{Kind: KindNoop} }

func Blocked(reason string) Evaluation {
	return Evaluation{Kind: KindBlocked, Reason: reason}
}

func Emit(intent Intent) Evaluation {
	return Evaluation{Kind: KindIntent, Intent: &intent}
}

// Strategy 是可插拔的评估器：给定一根已关闭的 bar，产出意图/受阻/无操作。
type Strategy interface {
	ID() string
	EvaluateClosedBar(bar market.Bar) Evaluation
}

// Factory 为某个合约构造一个全新的评估器实例。
type Factory func(instrument string) Strategy

// Registry 按合约持有各自的评估器实例（每合约恰好一个，严格串行调用）。
type Registry struct {
	mu      sync.Mutex
	factory Factory
	entries map[string]Strategy
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		entries: make(map[string]Strategy),
	}
}

// Evaluate 路由到合约自己的评估器，不存在时先创建。
func (r *Registry) Evaluate(bar market.Bar) Evaluation {
	instrument := strings.ToUpper(strings.TrimSpace(bar.Instrument))
	if instrument == "" {
		return Noop()
	}
	r.mu.Lock()
	strat, ok := r.entries[instrument]
	if !ok {
		strat = r.factory(instrument)
		r.entries[instrument] = strat
	}
	r.mu.Unlock()
	if strat == nil {
		return Noop()
	}
	return strat.EvaluateClosedBar(bar)
}
