// Package execution owns the durable order lifecycle: it is the only
// writer of execution records, serialized per execution key.
package execution

import (
	storemodel "tickflow/internal/store/model"
)

// statusOrder 定义前向链的序号。迁移只许向前；FAILED 可从任意
// 非终态进入；重放落后事件一律吸收为 no-op。
var statusOrder = map[storemodel.ExecutionStatus]int{
	storemodel.StatusIntentCreated:    1,
	storemodel.StatusOrderSubmitted:   2,
	storemodel.StatusOrderAccepted:    3,
	storemodel.StatusOrderFilled:      4,
	storemodel.StatusBracketSubmitted: 5,
	storemodel.StatusBracketActive:    6,
	storemodel.StatusPositionOpen:     7,
	storemodel.StatusPositionClosed:   8,
}

// transitionKind 区分一次迁移请求的三种结局。
type transitionKind int

const (
	transitionApply transitionKind = iota
	transitionNoop
	transitionInvalid
)

func classifyTransition(from, to storemodel.ExecutionStatus) transitionKind {
	if from.Terminal() {
		if from == to {
			return transitionNoop
		}
		return transitionInvalid
	}
	if to == storemodel.StatusFailed {
		return transitionApply
	}
	toOrder, ok := statusOrder[to]
	if !ok {
		return transitionInvalid
	}
	fromOrder := statusOrder[from]
	if toOrder <= fromOrder {
		// 迟到或重复的事件：目标状态早已越过
		return transitionNoop
	}
	return transitionApply
}
