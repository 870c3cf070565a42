package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	storemodel "tickflow/internal/store/model"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type storeExecution = storemodel.ExecutionModel

// manualOrderSchema 把手动下单的形状约束前置到 HTTP 边界：
// 形状不合法的请求根本到不了状态机。
const manualOrderSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["instrument", "side", "contracts", "stop_price", "take_profit_price", "stop_ticks", "take_profit_ticks"],
  "additionalProperties": false,
  "properties": {
    "instrument":        {"type": "string", "minLength": 1},
    "side":              {"type": "string", "enum": ["buy", "sell"]},
    "contracts":         {"type": "integer", "minimum": 1},
    "stop_price":        {"type": "number", "exclusiveMinimum": 0},
    "take_profit_price": {"type": "number", "exclusiveMinimum": 0},
    "stop_ticks":        {"type": "integer", "minimum": 1},
    "take_profit_ticks": {"type": "integer", "minimum": 1},
    "risk_usd":          {"type": "number", "minimum": 0},
    "signal_at":         {"type": "integer", "minimum": 0}
  }
}`

var manualSchema = jsonschema.MustCompileString("manual_order.json", manualOrderSchema)

type manualOrderRequest struct {
	Instrument      string  `json:"instrument"`
	Side            string  `json:"side"`
	Contracts       int     `json:"contracts"`
	StopPrice       float64 `json:"stop_price"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	StopTicks       int     `json:"stop_ticks"`
	TakeProfitTicks int     `json:"take_profit_ticks"`
	RiskUSD         float64 `json:"risk_usd"`
	SignalAt        int64   `json:"signal_at"`
}

func decodeManualOrder(body io.Reader, out *manualOrderRequest) error {
	raw, err := io.ReadAll(io.LimitReader(body, 1<<16))
	if err != nil {
		return fmt.Errorf("读取请求失败: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("请求不是合法 JSON: %w", err)
	}
	if err := manualSchema.Validate(generic); err != nil {
		return fmt.Errorf("请求形状不合法: %s", compactSchemaError(err))
	}
	return json.Unmarshal(raw, out)
}

func compactSchemaError(err error) string {
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		loc := strings.TrimPrefix(leaf.InstanceLocation, "/")
		if loc == "" {
			return leaf.Message
		}
		return loc + ": " + leaf.Message
	}
	return err.Error()
}
