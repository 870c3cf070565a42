package execution

import (
	"context"
	"fmt"
	"time"

	"tickflow/internal/gateway"
	"tickflow/internal/logger"
	"tickflow/internal/store"
	storemodel "tickflow/internal/store/model"
)

// Resume 是崩溃恢复的对账入口：进程启动时（以及任何重连后）
// 扫描所有非终态执行，向场馆查询该品种的实时仓位，以场馆事实
// 改写本地状态——平了就直接收尾，没平就回到在场跟踪。
func (m *Machine) Resume(ctx context.Context) error {
	reader, ok := m.broker.(gateway.PositionReader)
	if !ok {
		return fmt.Errorf("broker venue %s 不支持仓位查询，无法执行恢复对账", m.broker.Name())
	}
	open, err := m.db.Executions().ListNonTerminal(ctx)
	if err != nil {
		return fmt.Errorf("扫描非终态执行失败: %w", err)
	}
	if len(open) == 0 {
		logger.Infof("execution: 恢复对账完成，无在途执行")
		return nil
	}
	logger.Infof("execution: 恢复对账开始，在途执行 %d 条", len(open))
	var firstErr error
	for _, rec := range open {
		if err := m.reconcileOne(ctx, rec, reader); err != nil {
			logger.Warnf("execution: 对账失败 key=%s err=%v", shortKey(rec.ExecutionKey), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Machine) reconcileOne(ctx context.Context, rec storemodel.ExecutionModel, reader gateway.PositionReader) error {
	posCtx, cancel := context.WithTimeout(ctx, m.venueTTL)
	pos, err := reader.GetPosition(posCtx, rec.Instrument)
	cancel()
	if err != nil {
		return err
	}
	if pos.Size == 0 {
		// 仓位在进程下线期间被平掉，平仓事件丢了：直接收尾
		return m.Advance(ctx, rec.ExecutionKey, storemodel.StatusPositionClosed, store.StatusPatch{},
			"恢复对账：场馆侧已平仓")
	}
	return m.Advance(ctx, rec.ExecutionKey, storemodel.StatusPositionOpen, store.StatusPatch{},
		fmt.Sprintf("恢复对账：场馆侧持仓 %+d，恢复在场跟踪", pos.Size))
}

// ResumeWithRetry 在启动路径上用：对账失败按固定间隔重试，
// 直到成功或 ctx 取消。恢复没跑完之前不该开始下新单。
func (m *Machine) ResumeWithRetry(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	for {
		err := m.Resume(ctx)
		if err == nil {
			return nil
		}
		logger.Warnf("execution: 恢复对账将重试 err=%v", err)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
