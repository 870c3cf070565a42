package market

import "context"

// TickSource 是行情来源抽象：券商流（rithmic）或辅助加密行情（binance）
// 都实现它，把原始报价规范化成 Tick 后推给回调。
type TickSource interface {
	// SubscribeTicks 订阅一组合约的报价，回调在来源自己的 goroutine 内触发。
	SubscribeTicks(ctx context.Context, instruments []string, fn func(Tick)) error

	// Close 停止订阅并释放连接。
	Close() error

	Stats() SourceStats
}

// SourceStats 记录来源健康度，供启动摘要与控制接口展示。
type SourceStats struct {
	Connected  bool  `json:"connected"`
	TickCount  int64 `json:"tick_count"`
	DropCount  int64 `json:"drop_count"` // 无法推导价格而被丢弃的数量
	Reconnects int64 `json:"reconnects"`
}
