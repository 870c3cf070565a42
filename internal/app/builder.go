package app

import (
	"fmt"
	"strings"
	"time"

	"tickflow/internal/config"
	"tickflow/internal/execution"
	"tickflow/internal/gateway/factory"
	"tickflow/internal/gateway/notifier"
	"tickflow/internal/instrument"
	"tickflow/internal/logger"
	"tickflow/internal/market"
	"tickflow/internal/store/gormstore"
	"tickflow/internal/strategy"
	control "tickflow/internal/transport/http/control"
)

// NewApp 根据配置构建应用对象（不启动）。所有依赖在这里手工
// 装配，失败立即返回，绝不让半初始化的组件进入运行期。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	catalog, err := instrument.LoadCatalog(cfg.Instruments.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("加载合约目录失败: %w", err)
	}
	symbols := make([]string, 0, len(cfg.Market.Symbols))
	for _, sym := range cfg.Market.Symbols {
		upper := strings.ToUpper(strings.TrimSpace(sym))
		if upper == "" {
			continue
		}
		if _, ok := catalog.Lookup(upper); !ok {
			return nil, fmt.Errorf("品种 %s 不在合约目录中（tick 尺寸未知，拒绝启动）", upper)
		}
		symbols = append(symbols, upper)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("market.symbols 为空")
	}

	db, err := gormstore.NewGormStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}

	broker, err := factory.NewBroker(cfg)
	if err != nil {
		return nil, err
	}
	source, err := factory.NewTickSource(cfg, broker)
	if err != nil {
		return nil, err
	}

	var notify notifier.TextNotifier = notifier.Nop{}
	if cfg.Notify.Telegram.Enabled {
		notify = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}

	venueTimeout := 10 * time.Second
	machine := execution.NewMachine(db, broker, notify, cfg.App.UserID, venueTimeout)

	barDuration := time.Duration(cfg.Bars.DurationSeconds) * time.Second
	registry := strategy.NewRegistry(orbFactory(cfg, catalog))

	worker := &LiveWorker{
		cfg:      cfg,
		symbols:  symbols,
		catalog:  catalog,
		book:     market.NewBook(barDuration),
		registry: registry,
		machine:  machine,
		broker:   broker,
		source:   source,
		db:       db,
		notify:   notify,
	}

	httpSrv, err := control.NewServer(control.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Machine: machine,
		Store:   db,
		Catalog: catalog,
		Stats:   source.Stats,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化控制面失败: %w", err)
	}

	return &App{
		cfg:     cfg,
		worker:  worker,
		httpSrv: httpSrv,
		Summary: buildSummary(cfg, broker, symbols),
	}, nil
}

// orbFactory 为每个品种生成一个独立的评估器实例，tick 尺寸与
// 跳值从合约目录取。
func orbFactory(cfg *config.Config, catalog *instrument.Catalog) strategy.Factory {
	return func(inst string) strategy.Strategy {
		spec, _ := catalog.Lookup(inst)
		return strategy.NewORB(inst, strategy.ORBConfig{
			StrategyID:         cfg.Strategy.ID,
			OpeningRangeBars:   cfg.Strategy.OpeningRangeBars,
			EMAPeriod:          cfg.Strategy.EMAPeriod,
			ATRPeriod:          cfg.Strategy.ATRPeriod,
			StopATRMultiple:    cfg.Strategy.StopATRMultiple,
			CooldownSeconds:    cfg.Strategy.CooldownSeconds,
			SessionStartMinute: cfg.Strategy.SessionStartMinute,
			SessionEndMinute:   cfg.Strategy.SessionEndMinute,
			RiskUSD:            cfg.Risk.RiskUSD,
			RiskReward:         cfg.Risk.RiskReward,
			MaxContracts:       cfg.Risk.MaxContracts,
			TickSize:           spec.TickSize,
			TickValue:          spec.TickValue,
		})
	}
}
