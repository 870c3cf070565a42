package strategy

import (
	"fmt"
	"time"

	"tickflow/internal/market"
	"tickflow/internal/risk"

	"github.com/markcheno/go-talib"
)

const maxHistoryBars = 600

// ORBConfig 汇集开盘区间突破评估器需要的全部参数。
// 评估器本身不读配置文件，也不感知券商与持久化。
type ORBConfig struct {
	StrategyID         string
	OpeningRangeBars   int
	EMAPeriod          int
	ATRPeriod          int
	StopATRMultiple    float64
	CooldownSeconds    int
	SessionStartMinute int // UTC 当日分钟数
	SessionEndMinute   int

	RiskUSD      float64
	RiskReward   float64
	MaxContracts int

	TickSize  float64
	TickValue float64
}

// ORB 是开盘区间突破评估器：交易日内前 N 根 bar 确立区间，
// 之后首次收盘突破且通过 EMA 趋势过滤时产出意图。止损距离取 ATR 倍数。
// 状态只依赖喂入的 bar 序列，重放同一序列得到逐字节相同的意图。
type ORB struct {
	cfg        ORBConfig
	instrument string

	closes []float64
	highs  []float64
	lows   []float64

	sessionDay    string
	rangeBars     int
	rangeHigh     float64
	rangeLow      float64
	longFired     bool
	shortFired    bool
	lastSignalPer time.Time
}

func NewORB(instrument string, cfg ORBConfig) *ORB {
	return &ORB{cfg: cfg, instrument: instrument}
}

func (s *ORB) ID() string { return s.cfg.StrategyID }

func (s *ORB) EvaluateClosedBar(bar market.Bar) Evaluation {
	s.push(bar)

	closeTime := time.Unix(bar.BucketStart+bar.Duration, 0).UTC()
	minute := closeTime.Hour()*60 + closeTime.Minute()
	if minute < s.cfg.SessionStartMinute || minute >= s.cfg.SessionEndMinute {
		return Noop()
	}

	day := closeTime.Format("2006-01-02")
	if day != s.sessionDay {
		s.resetSession(day)
	}

	// 开盘区间累积阶段
	if s.rangeBars < s.cfg.OpeningRangeBars {
		s.rangeBars++
		if bar.High > s.rangeHigh || s.rangeBars == 1 {
			s.rangeHigh = bar.High
		}
		if bar.Low < s.rangeLow || s.rangeBars == 1 {
			s.rangeLow = bar.Low
		}
		return Noop()
	}

	warmup := s.cfg.EMAPeriod
	if s.cfg.ATRPeriod+1 > warmup {
		warmup = s.cfg.ATRPeriod + 1
	}
	if len(s.closes) < warmup {
		return Noop()
	}

	var side Side
	switch {
	case bar.Close > s.rangeHigh && !s.longFired:
		side = SideBuy
	case bar.Close < s.rangeLow && !s.shortFired:
		side = SideSell
	default:
		return Noop()
	}

	ema := last(talib.Ema(s.closes, s.cfg.EMAPeriod))
	if side == SideBuy && bar.Close < ema {
		s.longFired = true
		return Blocked(fmt.Sprintf("long breakout below ema%d (%.2f < %.2f)", s.cfg.EMAPeriod, bar.Close, ema))
	}
	if side == SideSell && bar.Close > ema {
		s.shortFired = true
		return Blocked(fmt.Sprintf("short breakout above ema%d (%.2f > %.2f)", s.cfg.EMAPeriod, bar.Close, ema))
	}

	if !s.lastSignalPer.IsZero() && closeTime.Sub(s.lastSignalPer) < time.Duration(s.cfg.CooldownSeconds)*time.Second {
		return Blocked("cooldown active")
	}

	atr := last(talib.Atr(s.highs, s.lows, s.closes, s.cfg.ATRPeriod))
	stopDistance := atr * s.cfg.StopATRMultiple
	stopTicks := risk.PriceToTicks(stopDistance, s.cfg.TickSize)
	if stopTicks <= 0 {
		return Blocked("stop distance collapses to zero ticks")
	}
	contracts := risk.ContractsForRisk(s.cfg.RiskUSD, stopTicks, s.cfg.TickValue)
	if contracts <= 0 {
		return Blocked(fmt.Sprintf("risk budget %.2f too small for %d-tick stop", s.cfg.RiskUSD, stopTicks))
	}
	if s.cfg.MaxContracts > 0 && contracts > s.cfg.MaxContracts {
		contracts = s.cfg.MaxContracts
	}
	tpTicks := risk.TakeProfitTicks(stopTicks, s.cfg.RiskReward)
	if tpTicks <= 0 {
		return Blocked("take-profit distance collapses to zero ticks")
	}

	entry := bar.Close
	stopOffset := risk.TicksToPrice(stopTicks, s.cfg.TickSize)
	tpOffset := risk.TicksToPrice(tpTicks, s.cfg.TickSize)
	stopPrice := entry - stopOffset
	tpPrice := entry + tpOffset
	if side == SideSell {
		stopPrice = entry + stopOffset
		tpPrice = entry - tpOffset
	}

	if side == SideBuy {
		s.longFired = true
	} else {
		s.shortFired = true
	}
	s.lastSignalPer = closeTime

	return Emit(Intent{
		Instrument:      s.instrument,
		Side:            side,
		Contracts:       contracts,
		EntryPrice:      entry,
		StopPrice:       stopPrice,
		TakeProfitPrice: tpPrice,
		StopTicks:       stopTicks,
		TakeProfitTicks: tpTicks,
		RiskToReward:    s.cfg.RiskReward,
		RiskUSDPlanned:  float64(contracts) * float64(stopTicks) * s.cfg.TickValue,
		StrategyID:      s.cfg.StrategyID,
		SignalTimestamp: closeTime,
		EntryTimestamp:  closeTime,
	})
}

func (s *ORB) push(bar market.Bar) {
	s.closes = append(s.closes, bar.Close)
	s.highs = append(s.highs, bar.High)
	s.lows = append(s.lows, bar.Low)
	if len(s.closes) > maxHistoryBars {
		s.closes = s.closes[1:]
		s.highs = s.highs[1:]
		s.lows = s.lows[1:]
	}
}

func (s *ORB) resetSession(day string) {
	s.sessionDay = day
	s.rangeBars = 0
	s.rangeHigh = 0
	s.rangeLow = 0
	s.longFired = false
	s.shortFired = false
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
