package tradovate

import (
	"context"
	"net/http"
	"strings"

	"tickflow/internal/gateway"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

type bracketLeg struct {
	Action    string   `json:"action"`
	OrderType string   `json:"orderType"`
	Price     *float64 `json:"price,omitempty"`
	StopPrice *float64 `json:"stopPrice,omitempty"`
}

type placeOSORequest struct {
	AccountSpec string     `json:"accountSpec,omitempty"`
	AccountID   int64      `json:"accountId"`
	Action      string     `json:"action"`
	Symbol      string     `json:"symbol"`
	OrderQty    int        `json:"orderQty"`
	OrderType   string     `json:"orderType"`
	Price       *float64   `json:"price,omitempty"`
	IsAutomated bool       `json:"isAutomated"`
	ClOrdID     string     `json:"clOrdId,omitempty"`
	Bracket1    bracketLeg `json:"bracket1"`
	Bracket2    bracketLeg `json:"bracket2"`
}

// PlaceBracketOrder 以单次原子 placeOSO 调用提交入场加两条保护腿。
// 场馆保证要么整体接受要么整体拒绝，不存在半挂载状态。
func (a *Adapter) PlaceBracketOrder(ctx context.Context, plan gateway.BracketPlan) (*gateway.BracketResult, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	action, exitAction := "Buy", "Sell"
	if plan.Side == gateway.SideSell {
		action, exitAction = "Sell", "Buy"
	}

	stopPrice := roundToTick(plan.StopPrice, plan.TickSize)
	tpPrice := roundToTick(plan.TakeProfitPrice, plan.TickSize)
	payload := placeOSORequest{
		AccountID:   a.cfg.AccountID,
		Action:      action,
		Symbol:      strings.ToUpper(plan.Instrument),
		OrderQty:    plan.Contracts,
		OrderType:   "Market",
		IsAutomated: true,
		ClOrdID:     plan.ClientKey,
		Bracket1:    bracketLeg{Action: exitAction, OrderType: "Stop", StopPrice: &stopPrice},
		Bracket2:    bracketLeg{Action: exitAction, OrderType: "Limit", Price: &tpPrice},
	}
	if plan.EntryPrice > 0 {
		entry := roundToTick(plan.EntryPrice, plan.TickSize)
		payload.OrderType = "Limit"
		payload.Price = &entry
	}

	raw, err := a.doRequest(ctx, http.MethodPost, "/order/placeoso", payload, true)
	if err != nil {
		return nil, err
	}
	parsed := gjson.ParseBytes(raw)
	if reason := parsed.Get("failureText").String(); reason != "" {
		return nil, &gateway.RejectionError{Venue: venueName, Reason: reason}
	}
	if reason := parsed.Get("failureReason").String(); reason != "" {
		return nil, &gateway.RejectionError{Venue: venueName, Reason: reason}
	}
	entryID := parsed.Get("orderId").String()
	if entryID == "" {
		return nil, &gateway.RejectionError{Venue: venueName, Reason: "响应缺少 orderId"}
	}
	result := &gateway.BracketResult{
		EntryOrderID:      entryID,
		StopOrderID:       parsed.Get("oso1Id").String(),
		TakeProfitOrderID: parsed.Get("oso2Id").String(),
		Raw:               map[string]any{"body": string(raw)},
	}
	return result, nil
}

// roundToTick 用十进制运算把价格对齐到最小报价单位，避免浮点残差
// 触发场馆的价格校验拒单。
func roundToTick(price, tickSize float64) float64 {
	if tickSize <= 0 || price <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	tick := decimal.NewFromFloat(tickSize)
	steps := p.Div(tick).Round(0)
	out, _ := steps.Mul(tick).Float64()
	return out
}
