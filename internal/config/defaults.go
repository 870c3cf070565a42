package config

import "strings"

// 默认值常量
const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultAppHTTPAddr        = ":9982"
	defaultAppUserID          = "local"
	defaultBarDuration        = 60
	defaultForceCloseInterval = 5
	defaultStaleTickMaxAge    = 30
	defaultMarketSource       = "broker"
	defaultBinanceREST        = "https://fapi.binance.com"
	defaultBinanceWS          = "wss://fstream.binance.com"
	defaultBinanceTimeout     = 10
	defaultStrategyID         = "orb-v1"
	defaultOpeningRangeBars   = 15
	defaultEMAPeriod          = 20
	defaultATRPeriod          = 14
	defaultStopATRMultiple    = 1.5
	defaultCooldownSeconds    = 300
	defaultSessionStartMinute = 13*60 + 30 // 13:30 UTC
	defaultSessionEndMinute   = 20 * 60    // 20:00 UTC
	defaultRiskUSD            = 200
	defaultRiskReward         = 2
	defaultMaxContracts       = 10
	defaultBrokerVenue        = "noop"
	defaultKeepAliveSeconds   = 25
	defaultBrokerTimeout      = 10
	defaultStorePath          = "/data/db/tickflow.db"
	defaultCatalogPath        = "configs/instruments.yaml"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Bars.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Broker.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Instruments.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.user_id", &a.UserID, defaultAppUserID),
	)
}

func (b *BarsConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("bars.duration_seconds", &b.DurationSeconds, defaultBarDuration),
		intFieldDefault("bars.force_close_interval_seconds", &b.ForceCloseIntervalSeconds, defaultForceCloseInterval),
		intFieldDefault("bars.stale_tick_max_age_seconds", &b.StaleTickMaxAgeSeconds, defaultStaleTickMaxAge),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.source", &m.Source, defaultMarketSource),
		stringFieldDefault("market.binance.rest_base_url", &m.Binance.RESTBaseURL, defaultBinanceREST),
		stringFieldDefault("market.binance.ws_base_url", &m.Binance.WSBaseURL, defaultBinanceWS),
		intFieldDefault("market.binance.timeout_seconds", &m.Binance.TimeoutSeconds, defaultBinanceTimeout),
	)
}

func (s *StrategyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("strategy.id", &s.ID, defaultStrategyID),
		intFieldDefault("strategy.opening_range_bars", &s.OpeningRangeBars, defaultOpeningRangeBars),
		intFieldDefault("strategy.ema_period", &s.EMAPeriod, defaultEMAPeriod),
		intFieldDefault("strategy.atr_period", &s.ATRPeriod, defaultATRPeriod),
		fieldDefault{
			key:   "strategy.stop_atr_multiple",
			need:  func() bool { return s.StopATRMultiple <= 0 },
			apply: func() { s.StopATRMultiple = defaultStopATRMultiple },
		},
		intFieldDefault("strategy.cooldown_seconds", &s.CooldownSeconds, defaultCooldownSeconds),
		intFieldDefault("strategy.session_start_minute", &s.SessionStartMinute, defaultSessionStartMinute),
		intFieldDefault("strategy.session_end_minute", &s.SessionEndMinute, defaultSessionEndMinute),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.risk_usd",
			need:  func() bool { return r.RiskUSD <= 0 },
			apply: func() { r.RiskUSD = defaultRiskUSD },
		},
		fieldDefault{
			key:   "risk.risk_reward",
			need:  func() bool { return r.RiskReward <= 0 },
			apply: func() { r.RiskReward = defaultRiskReward },
		},
		intFieldDefault("risk.max_contracts", &r.MaxContracts, defaultMaxContracts),
	)
}

func (b *BrokerConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("broker.venue", &b.Venue, defaultBrokerVenue),
		intFieldDefault("broker.keepalive_seconds", &b.KeepAliveSeconds, defaultKeepAliveSeconds),
		intFieldDefault("broker.tradovate.timeout_seconds", &b.Tradovate.TimeoutSeconds, defaultBrokerTimeout),
		intFieldDefault("broker.rithmic.timeout_seconds", &b.Rithmic.TimeoutSeconds, defaultBrokerTimeout),
		intFieldDefault("broker.ninjatrader.timeout_seconds", &b.NinjaTrader.TimeoutSeconds, defaultBrokerTimeout),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

func (i *InstrumentsConfig) applyDefaults(keys keySet) {
	if i == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("instruments.catalog_path", &i.CatalogPath, defaultCatalogPath),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
