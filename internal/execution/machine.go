package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"tickflow/internal/gateway"
	"tickflow/internal/gateway/notifier"
	"tickflow/internal/logger"
	"tickflow/internal/store"
	storemodel "tickflow/internal/store/model"
	"tickflow/internal/strategy"

	"gorm.io/datatypes"
)

// ErrInvalidTransition 表示目标状态无法从当前状态到达
//（终态之后的任何迁移，或未知状态）。迟到/重复事件不会触发它。
var ErrInvalidTransition = errors.New("invalid execution transition")

// Machine 是执行记录的唯一写入者。所有 mutation 按 executionKey
// 串行化，两个并发的券商回调不可能互相越过。
type Machine struct {
	db       store.Store
	broker   gateway.Broker
	notify   notifier.TextNotifier
	userID   string
	venueTTL time.Duration

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewMachine(db store.Store, broker gateway.Broker, notify notifier.TextNotifier, userID string, venueTimeout time.Duration) *Machine {
	if notify == nil {
		notify = notifier.Nop{}
	}
	if venueTimeout <= 0 {
		venueTimeout = 10 * time.Second
	}
	return &Machine{
		db:       db,
		broker:   broker,
		notify:   notify,
		userID:   userID,
		venueTTL: venueTimeout,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *Machine) keyLock(key string) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	mu, ok := m.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[key] = mu
	}
	return mu
}

// SubmitIntent 把一条开仓意图推进到券商边界。返回执行键以及
// 本次调用是否真正新建了执行（重复意图为 no-op）。
func (m *Machine) SubmitIntent(ctx context.Context, intent strategy.Intent, tickSize float64) (string, bool, error) {
	key := ExecutionKey(intent)
	mu := m.keyLock(key)
	mu.Lock()
	defer mu.Unlock()

	rec := &storemodel.ExecutionModel{
		ExecutionKey:    key,
		UserID:          m.userID,
		Instrument:      intent.Instrument,
		Side:            string(intent.Side),
		Contracts:       intent.Contracts,
		EntryPrice:      intent.EntryPrice,
		StopPrice:       intent.StopPrice,
		TakeProfitPrice: intent.TakeProfitPrice,
		StopTicks:       intent.StopTicks,
		TakeProfitTicks: intent.TakeProfitTicks,
		RiskUSDPlanned:  intent.RiskUSDPlanned,
		StrategyID:      intent.StrategyID,
		Status:          storemodel.StatusIntentCreated,
		SignalUnix:      intent.SignalTimestamp.UTC().Unix(),
	}
	created, err := m.db.Executions().Create(ctx, rec)
	if err != nil {
		return key, false, fmt.Errorf("持久化执行记录失败: %w", err)
	}
	if !created {
		logger.Infof("execution: 重复意图被吸收 key=%s instrument=%s", shortKey(key), intent.Instrument)
		return key, false, nil
	}
	m.appendEvent(ctx, key, "transition", "info", "INTENT_CREATED", rec)

	plan := gateway.BracketPlan{
		ClientKey:       key,
		Instrument:      intent.Instrument,
		Side:            gateway.Side(intent.Side),
		Contracts:       intent.Contracts,
		EntryPrice:      intent.EntryPrice,
		StopPrice:       intent.StopPrice,
		TakeProfitPrice: intent.TakeProfitPrice,
		StopTicks:       intent.StopTicks,
		TakeProfitTicks: intent.TakeProfitTicks,
		TickSize:        tickSize,
	}
	// 违反不变量的计划在本地终结，绝不触达场馆
	if err := plan.Validate(); err != nil {
		m.applyLocked(ctx, rec, storemodel.StatusFailed, store.StatusPatch{Error: err.Error()}, err.Error())
		return key, true, err
	}

	if err := m.applyLocked(ctx, rec, storemodel.StatusOrderSubmitted, store.StatusPatch{}, ""); err != nil {
		return key, true, err
	}

	venueCtx, cancel := context.WithTimeout(ctx, m.venueTTL)
	result, placeErr := m.broker.PlaceBracketOrder(venueCtx, plan)
	cancel()
	if placeErr != nil {
		return key, true, m.handlePlacementFailure(ctx, rec, placeErr)
	}

	patch := store.StatusPatch{
		EntryOrderID:      result.EntryOrderID,
		StopOrderID:       result.StopOrderID,
		TakeProfitOrderID: result.TakeProfitOrderID,
	}
	if err := m.applyLocked(ctx, rec, storemodel.StatusOrderAccepted, patch, ""); err != nil {
		return key, true, err
	}
	// 入场恒为市价单：场馆接受即视作成交。之后真正的成交回报
	// 到达时已落后于当前状态，按重复事件吸收。
	if err := m.applyLocked(ctx, rec, storemodel.StatusOrderFilled, store.StatusPatch{}, ""); err != nil {
		return key, true, err
	}
	// 原子括号场馆在同一次调用里同时挂上了两条保护腿
	if m.broker.Capabilities().SupportsBracketInSingleCall || result.StopOrderID != "" {
		if err := m.applyLocked(ctx, rec, storemodel.StatusBracketSubmitted, store.StatusPatch{}, ""); err != nil {
			return key, true, err
		}
	}
	return key, true, nil
}

// handlePlacementFailure 按错误类别收尾：拒单原样落库；部分括号
// 必须显式暴露并人工/对冲补救，绝不能当成新意图重下入场。
func (m *Machine) handlePlacementFailure(ctx context.Context, rec *storemodel.ExecutionModel, placeErr error) error {
	var rej *gateway.RejectionError
	var partial *gateway.PartialBracketError
	switch {
	case errors.As(placeErr, &partial):
		m.appendEvent(ctx, rec.ExecutionKey, "partial_bracket", "error",
			fmt.Sprintf("入场已成（%s）但 %s 腿失败：%s，仓位裸露，需先平仓再考虑重试", partial.EntryOrderID, partial.FailedLeg, partial.Reason), rec)
		patch := store.StatusPatch{EntryOrderID: partial.EntryOrderID, Error: placeErr.Error()}
		m.applyLocked(ctx, rec, storemodel.StatusFailed, patch, placeErr.Error())
	case errors.As(placeErr, &rej):
		// 场馆拒单原因逐字保留
		m.applyLocked(ctx, rec, storemodel.StatusFailed, store.StatusPatch{Error: rej.Reason}, rej.Reason)
	default:
		m.applyLocked(ctx, rec, storemodel.StatusFailed, store.StatusPatch{Error: placeErr.Error()}, placeErr.Error())
	}
	return placeErr
}

// Advance 是券商事件回调与恢复协议共用的幂等迁移入口。
// 目标状态落后于当前状态时静默吸收；倒退（终态之外）报错。
func (m *Machine) Advance(ctx context.Context, executionKey string, to storemodel.ExecutionStatus, patch store.StatusPatch, reason string) error {
	mu := m.keyLock(executionKey)
	mu.Lock()
	defer mu.Unlock()

	rec, err := m.db.Executions().FindByKey(ctx, executionKey)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("execution %s 不存在", executionKey)
	}
	return m.applyLocked(ctx, rec, to, patch, reason)
}

// applyLocked 在已持有 key 锁的前提下执行一次迁移写。
func (m *Machine) applyLocked(ctx context.Context, rec *storemodel.ExecutionModel, to storemodel.ExecutionStatus, patch store.StatusPatch, reason string) error {
	switch classifyTransition(rec.Status, to) {
	case transitionNoop:
		logger.Debugf("execution: 吸收迟到事件 key=%s %s→%s", shortKey(rec.ExecutionKey), rec.Status, to)
		return nil
	case transitionInvalid:
		return fmt.Errorf("%w: %s→%s (key=%s)", ErrInvalidTransition, rec.Status, to, shortKey(rec.ExecutionKey))
	}
	from := rec.Status
	if err := m.db.Executions().UpdateStatus(ctx, rec.ExecutionKey, to, patch); err != nil {
		return err
	}
	rec.Status = to
	if patch.EntryOrderID != "" {
		rec.EntryOrderID = patch.EntryOrderID
	}
	if patch.StopOrderID != "" {
		rec.StopOrderID = patch.StopOrderID
	}
	if patch.TakeProfitOrderID != "" {
		rec.TakeProfitOrderID = patch.TakeProfitOrderID
	}

	level := "info"
	if to == storemodel.StatusFailed {
		level = "error"
	}
	msg := fmt.Sprintf("%s→%s", from, to)
	if reason != "" {
		msg += ": " + reason
	}
	m.appendEvent(ctx, rec.ExecutionKey, "transition", level, msg, rec)
	logger.Infof("execution: %s key=%s instrument=%s", msg, shortKey(rec.ExecutionKey), rec.Instrument)
	m.maybeNotify(rec, from, to, reason)
	return nil
}

func (m *Machine) appendEvent(ctx context.Context, key, typ, level, msg string, rec *storemodel.ExecutionModel) {
	details, _ := json.Marshal(map[string]any{
		"instrument": rec.Instrument,
		"side":       rec.Side,
		"contracts":  rec.Contracts,
		"status":     rec.Status.String(),
	})
	ev := &storemodel.EventLogModel{
		ExecutionKey: key,
		UserID:       m.userID,
		Type:         typ,
		Level:        level,
		Message:      msg,
		Details:      datatypes.JSON(details),
	}
	if err := m.db.Events().Append(ctx, ev); err != nil {
		// 事件日志是旁路账，写失败不阻断状态机
		logger.Warnf("execution: 事件日志写入失败 key=%s err=%v", shortKey(key), err)
	}
}

var notifyStates = map[storemodel.ExecutionStatus]bool{
	storemodel.StatusOrderFilled:    true,
	storemodel.StatusPositionOpen:   true,
	storemodel.StatusPositionClosed: true,
	storemodel.StatusFailed:         true,
}

func (m *Machine) maybeNotify(rec *storemodel.ExecutionModel, from, to storemodel.ExecutionStatus, reason string) {
	if !notifyStates[to] {
		return
	}
	note := notifier.TransitionNote{
		ExecutionKey: rec.ExecutionKey,
		Instrument:   rec.Instrument,
		Side:         rec.Side,
		Contracts:    rec.Contracts,
		From:         from.String(),
		To:           to.String(),
		Reason:       reason,
		At:           time.Now(),
	}
	go func() {
		if err := m.notify.SendText(note.Render()); err != nil {
			logger.Warnf("execution: 通知发送失败 key=%s err=%v", shortKey(rec.ExecutionKey), err)
		}
	}()
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
