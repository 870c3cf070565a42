package model

import (
	"gorm.io/datatypes"
)

// ExecutionStatus 是执行状态机的持久化编码。只允许向前推进，
// FAILED 可从任意非终态进入；POSITION_CLOSED 与 FAILED 为终态。
type ExecutionStatus int

const (
	StatusUnknown          ExecutionStatus = 0
	StatusIntentCreated    ExecutionStatus = 1
	StatusOrderSubmitted   ExecutionStatus = 2
	StatusOrderAccepted    ExecutionStatus = 3
	StatusOrderFilled      ExecutionStatus = 4
	StatusBracketSubmitted ExecutionStatus = 5
	StatusBracketActive    ExecutionStatus = 6
	StatusPositionOpen     ExecutionStatus = 7
	StatusPositionClosed   ExecutionStatus = 8
	StatusFailed           ExecutionStatus = 9
)

var statusNames = map[ExecutionStatus]string{
	StatusUnknown:          "UNKNOWN",
	StatusIntentCreated:    "INTENT_CREATED",
	StatusOrderSubmitted:   "ORDER_SUBMITTED",
	StatusOrderAccepted:    "ORDER_ACCEPTED",
	StatusOrderFilled:      "ORDER_FILLED",
	StatusBracketSubmitted: "BRACKET_SUBMITTED",
	StatusBracketActive:    "BRACKET_ACTIVE",
	StatusPositionOpen:     "POSITION_OPEN",
	StatusPositionClosed:   "POSITION_CLOSED",
	StatusFailed:           "FAILED",
}

func (s ExecutionStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Terminal 报告该状态是否不可再迁移。
func (s ExecutionStatus) Terminal() bool {
	return s == StatusPositionClosed || s == StatusFailed
}

// ExecutionModel maps to 'executions' table. 除 status、券商单号与
// error 外，其余字段创建后不再变更，作为审计底账长期保留。
type ExecutionModel struct {
	ID                int64           `gorm:"column:id;primaryKey"`
	ExecutionKey      string          `gorm:"column:execution_key;uniqueIndex"`
	UserID            string          `gorm:"column:user_id;index"`
	Instrument        string          `gorm:"column:instrument;index"`
	Side              string          `gorm:"column:side"`
	Contracts         int             `gorm:"column:contracts"`
	EntryPrice        float64         `gorm:"column:entry_price"`
	StopPrice         float64         `gorm:"column:stop_price"`
	TakeProfitPrice   float64         `gorm:"column:take_profit_price"`
	StopTicks         int             `gorm:"column:stop_ticks"`
	TakeProfitTicks   int             `gorm:"column:take_profit_ticks"`
	RiskUSDPlanned    float64         `gorm:"column:risk_usd_planned"`
	StrategyID        string          `gorm:"column:strategy_id"`
	Status            ExecutionStatus `gorm:"column:status;index"`
	EntryOrderID      string          `gorm:"column:entry_order_id"`
	StopOrderID       string          `gorm:"column:stop_order_id"`
	TakeProfitOrderID string          `gorm:"column:take_profit_order_id"`
	Error             string          `gorm:"column:error"`
	SignalUnix        int64           `gorm:"column:signal_at"`
	CreatedAtUnix     int64           `gorm:"column:created_at"`
	UpdatedAtUnix     int64           `gorm:"column:updated_at"`
}

func (ExecutionModel) TableName() string { return "executions" }

// EventLogModel maps to 'event_log' table（仅追加）。
type EventLogModel struct {
	ID           int64          `gorm:"column:id;primaryKey"`
	ExecutionKey string         `gorm:"column:execution_key;index"`
	UserID       string         `gorm:"column:user_id"`
	Type         string         `gorm:"column:type"`
	Level        string         `gorm:"column:level"`
	Message      string         `gorm:"column:message"`
	Details      datatypes.JSON `gorm:"column:details;type:TEXT"`
	Timestamp    int64          `gorm:"column:timestamp"`
}

func (EventLogModel) TableName() string { return "event_log" }
