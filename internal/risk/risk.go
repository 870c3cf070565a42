// Package risk holds the pure sizing math between price distances and
// discrete order-book ticks. All rounding floors toward safety: position
// size never rounds up past the risk budget, and tick counts handed to a
// broker adapter are always positive integers.
package risk

import "math"

// PriceToTicks 把价格距离换算成跳数（四舍五入）。
// tickSize 非法或距离非有限时返回 0。
func PriceToTicks(distance, tickSize float64) int {
	if !finitePositive(tickSize) || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return 0
	}
	return int(math.Round(math.Abs(distance) / tickSize))
}

// ContractsForRisk 根据风险预算与止损距离计算张数，向下取整并钳制到 >= 0。
// 任一输入非有限或非正、或单张风险已超预算时返回 0。
func ContractsForRisk(riskUSD float64, stopTicks int, tickValue float64) int {
	if !finitePositive(riskUSD) || !finitePositive(tickValue) || stopTicks <= 0 {
		return 0
	}
	perContract := float64(stopTicks) * tickValue
	if perContract <= 0 || perContract > riskUSD {
		return 0
	}
	return int(math.Floor(riskUSD / perContract))
}

// TakeProfitTicks 由止损跳数与盈亏比推导止盈跳数（向下取整）。
func TakeProfitTicks(stopTicks int, riskToReward float64) int {
	if stopTicks <= 0 || !finitePositive(riskToReward) {
		return 0
	}
	return int(math.Floor(float64(stopTicks) * riskToReward))
}

// TicksToPrice 把跳数还原成价格距离，是 PriceToTicks 的逆向边界换算。
func TicksToPrice(ticks int, tickSize float64) float64 {
	if ticks <= 0 || !finitePositive(tickSize) {
		return 0
	}
	return float64(ticks) * tickSize
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
