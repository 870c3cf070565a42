package gormstore

import (
	"context"
	"path/filepath"
	"testing"

	"tickflow/internal/store"
	storemodel "tickflow/internal/store/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore(filepath.Join(t.TempDir(), "tickflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleExecution(key string) *storemodel.ExecutionModel {
	return &storemodel.ExecutionModel{
		ExecutionKey:    key,
		UserID:          "u1",
		Instrument:      "MES",
		Side:            "buy",
		Contracts:       2,
		StopPrice:       4995,
		TakeProfitPrice: 5015,
		StopTicks:       20,
		TakeProfitTicks: 60,
		RiskUSDPlanned:  50,
		StrategyID:      "orb-v1",
		Status:          storemodel.StatusIntentCreated,
		SignalUnix:      1750000000,
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Executions().Create(ctx, sampleExecution("k1"))
	require.NoError(t, err)
	assert.True(t, created)

	// 同键第二次插入是 no-op，而不是错误
	created, err = s.Executions().Create(ctx, sampleExecution("k1"))
	require.NoError(t, err)
	assert.False(t, created)

	rec, err := s.Executions().FindByKey(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, storemodel.StatusIntentCreated, rec.Status)
	assert.Equal(t, 2, rec.Contracts)
}

func TestFindByKeyMissing(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Executions().FindByKey(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestUpdateStatusMergesPatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Executions().Create(ctx, sampleExecution("k2"))
	require.NoError(t, err)

	err = s.Executions().UpdateStatus(ctx, "k2", storemodel.StatusOrderFilled, store.StatusPatch{
		EntryOrderID: "E1",
	})
	require.NoError(t, err)
	err = s.Executions().UpdateStatus(ctx, "k2", storemodel.StatusBracketActive, store.StatusPatch{
		StopOrderID:       "S1",
		TakeProfitOrderID: "T1",
	})
	require.NoError(t, err)

	rec, err := s.Executions().FindByKey(ctx, "k2")
	require.NoError(t, err)
	assert.Equal(t, storemodel.StatusBracketActive, rec.Status)
	// 先前写入的入场单号不被后续迁移抹掉
	assert.Equal(t, "E1", rec.EntryOrderID)
	assert.Equal(t, "S1", rec.StopOrderID)
	assert.Equal(t, "T1", rec.TakeProfitOrderID)
}

func TestUpdateStatusUnknownKey(t *testing.T) {
	s := newTestStore(t)
	err := s.Executions().UpdateStatus(context.Background(), "ghost", storemodel.StatusFailed, store.StatusPatch{})
	assert.Error(t, err)
}

func TestListNonTerminalSkipsTerminalStates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"a", "b", "c", "d"} {
		_, err := s.Executions().Create(ctx, sampleExecution(key))
		require.NoError(t, err)
	}
	require.NoError(t, s.Executions().UpdateStatus(ctx, "a", storemodel.StatusPositionClosed, store.StatusPatch{}))
	require.NoError(t, s.Executions().UpdateStatus(ctx, "b", storemodel.StatusFailed, store.StatusPatch{Error: "rejected"}))
	require.NoError(t, s.Executions().UpdateStatus(ctx, "c", storemodel.StatusOrderFilled, store.StatusPatch{}))

	open, err := s.Executions().ListNonTerminal(ctx)
	require.NoError(t, err)
	keys := make([]string, 0, len(open))
	for _, m := range open {
		keys = append(keys, m.ExecutionKey)
	}
	assert.ElementsMatch(t, []string{"c", "d"}, keys)
}

func TestEventLogAppendAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, msg := range []string{"created", "submitted", "filled"} {
		err := s.Events().Append(ctx, &storemodel.EventLogModel{
			ExecutionKey: "k3",
			UserID:       "u1",
			Type:         "transition",
			Level:        "info",
			Message:      msg,
			Details:      datatypes.JSON([]byte(`{"instrument":"MES"}`)),
		})
		require.NoError(t, err)
	}
	err := s.Events().Append(ctx, &storemodel.EventLogModel{ExecutionKey: "other", Message: "noise"})
	require.NoError(t, err)

	evs, err := s.Events().ListByKey(ctx, "k3", 10)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	// 追加顺序即读取顺序
	assert.Equal(t, "created", evs[0].Message)
	assert.Equal(t, "filled", evs[2].Message)
	assert.Greater(t, evs[0].Timestamp, int64(0))
}

func TestStatusStringAndTerminal(t *testing.T) {
	assert.Equal(t, "POSITION_CLOSED", storemodel.StatusPositionClosed.String())
	assert.Equal(t, "UNKNOWN", storemodel.ExecutionStatus(42).String())
	assert.True(t, storemodel.StatusFailed.Terminal())
	assert.False(t, storemodel.StatusOrderFilled.Terminal())
}
