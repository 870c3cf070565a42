package execution

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"tickflow/internal/strategy"
)

// ExecutionKey 由意图的身份字段确定性导出：同一根收盘柱被重复
// 评估两次，得到的是同一把键，而不是两笔在途执行。张数与止损/
// 止盈距离也参与散列——同一秒内两笔参数不同的手工单是两笔交易，
// 不能折叠成一笔。
func ExecutionKey(intent strategy.Intent) string {
	raw := fmt.Sprintf("%s|%s|%s|%d|%d|%d|%d",
		strings.TrimSpace(intent.StrategyID),
		strings.ToUpper(strings.TrimSpace(intent.Instrument)),
		intent.Side,
		intent.SignalTimestamp.UTC().Unix(),
		intent.Contracts,
		intent.StopTicks,
		intent.TakeProfitTicks,
	)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
