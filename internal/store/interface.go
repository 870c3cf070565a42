package store

import (
	"context"

	"tickflow/internal/store/model"
)

// Store is the entry point for database access.
type Store interface {
	Executions() ExecutionRepository
	Events() EventRepository
	// Close closes the store connection.
	Close() error
}

// ExecutionRepository handles execution record persistence, keyed by
// execution_key.
type ExecutionRepository interface {
	// Create 幂等插入：同 execution_key 已存在时返回 (false, nil)。
	Create(ctx context.Context, rec *model.ExecutionModel) (created bool, err error)
	FindByKey(ctx context.Context, executionKey string) (*model.ExecutionModel, error)
	// UpdateStatus 推进状态并合并非空的券商单号/错误字段。
	UpdateStatus(ctx context.Context, executionKey string, status model.ExecutionStatus, patch StatusPatch) error
	ListNonTerminal(ctx context.Context) ([]model.ExecutionModel, error)
	ListRecent(ctx context.Context, limit int) ([]model.ExecutionModel, error)
}

// StatusPatch 携带状态迁移时一并落库的可变字段，空串表示不动。
type StatusPatch struct {
	EntryOrderID      string
	StopOrderID       string
	TakeProfitOrderID string
	Error             string
}

// EventRepository handles the append-only transition log.
type EventRepository interface {
	Append(ctx context.Context, ev *model.EventLogModel) error
	ListByKey(ctx context.Context, executionKey string, limit int) ([]model.EventLogModel, error)
}
