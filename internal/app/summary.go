package app

import (
	"fmt"
	"strings"

	"tickflow/internal/config"
	"tickflow/internal/gateway"
)

// StartupSummary 在启动时打印一次关键配置，方便运维核对。
type StartupSummary struct {
	Venue        string
	Caps         gateway.Capabilities
	MarketSource string
	Symbols      []string
	BarSeconds   int
	ForceSeconds int
	StrategyID   string
	RiskUSD      float64
	RiskReward   float64
	MaxContracts int
	StorePath    string
	HTTPAddr     string
}

func buildSummary(cfg *config.Config, broker gateway.Broker, symbols []string) *StartupSummary {
	return &StartupSummary{
		Venue:        broker.Name(),
		Caps:         broker.Capabilities(),
		MarketSource: cfg.Market.Source,
		Symbols:      symbols,
		BarSeconds:   cfg.Bars.DurationSeconds,
		ForceSeconds: cfg.Bars.ForceCloseIntervalSeconds,
		StrategyID:   cfg.Strategy.ID,
		RiskUSD:      cfg.Risk.RiskUSD,
		RiskReward:   cfg.Risk.RiskReward,
		MaxContracts: cfg.Risk.MaxContracts,
		StorePath:    cfg.Store.Path,
		HTTPAddr:     cfg.App.HTTPAddr,
	}
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[行情 (MARKET)]")
	fmt.Printf("  来源: %s\n", orDash(s.MarketSource))
	fmt.Printf("  品种: %s\n", formatList(s.Symbols))
	fmt.Printf("  柱周期: %ds  强制收盘巡检: %ds\n", s.BarSeconds, s.ForceSeconds)
	fmt.Println()

	fmt.Println("[券商 (BROKER)]")
	fmt.Printf("  场馆: %s\n", s.Venue)
	fmt.Printf("  能力: 原子括号=%v 后挂保护腿=%v 有向跳数=%v\n",
		s.Caps.SupportsBracketInSingleCall,
		s.Caps.SupportsAttachBracketsAfterEntry,
		s.Caps.RequiresSignedBracketTicks)
	fmt.Println()

	fmt.Println("[策略与风控 (STRATEGY / RISK)]")
	fmt.Printf("  策略: %s\n", orDash(s.StrategyID))
	fmt.Printf("  单笔风险: $%.0f  盈亏比: %.1f  最大手数: %d\n", s.RiskUSD, s.RiskReward, s.MaxContracts)
	fmt.Println()

	fmt.Println("[其他 (MISC)]")
	fmt.Printf("  存储: %s\n", s.StorePath)
	fmt.Printf("  控制面: %s\n", orDash(s.HTTPAddr))
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
