package config

import "strings"

type Config struct {
	App         AppConfig         `toml:"app"`
	Bars        BarsConfig        `toml:"bars"`
	Market      MarketConfig      `toml:"market"`
	Strategy    StrategyConfig    `toml:"strategy"`
	Risk        RiskConfig        `toml:"risk"`
	Broker      BrokerConfig      `toml:"broker"`
	Store       StoreConfig       `toml:"store"`
	Notify      NotifyConfig      `toml:"notify"`
	Instruments InstrumentsConfig `toml:"instruments"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	UserID   string `toml:"user_id"` // 交易身份，一个进程一个
}

type BarsConfig struct {
	DurationSeconds           int `toml:"duration_seconds"`
	ForceCloseIntervalSeconds int `toml:"force_close_interval_seconds"`
	StaleTickMaxAgeSeconds    int `toml:"stale_tick_max_age_seconds"`
}

type MarketConfig struct {
	// Source 指定行情来源："broker"（由券商流推送）或 "binance"（辅助加密行情）。
	Source  string              `toml:"source"`
	Symbols []string            `toml:"symbols"`
	Binance BinanceSourceConfig `toml:"binance"`
}

type BinanceSourceConfig struct {
	RESTBaseURL    string `toml:"rest_base_url"`
	WSBaseURL      string `toml:"ws_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ProxyURL       string `toml:"proxy_url"`
}

type StrategyConfig struct {
	ID                 string  `toml:"id"`
	OpeningRangeBars   int     `toml:"opening_range_bars"`
	EMAPeriod          int     `toml:"ema_period"`
	ATRPeriod          int     `toml:"atr_period"`
	StopATRMultiple    float64 `toml:"stop_atr_multiple"`
	CooldownSeconds    int     `toml:"cooldown_seconds"`
	SessionStartMinute int     `toml:"session_start_minute"` // UTC 当日分钟数
	SessionEndMinute   int     `toml:"session_end_minute"`
}

type RiskConfig struct {
	RiskUSD      float64 `toml:"risk_usd"`
	RiskReward   float64 `toml:"risk_reward"`
	MaxContracts int     `toml:"max_contracts"`
}

type BrokerConfig struct {
	// Venue 可选 tradovate / rithmic / ninjatrader / noop，由工厂在启动时选定。
	Venue            string            `toml:"venue"`
	KeepAliveSeconds int               `toml:"keepalive_seconds"`
	Tradovate        TradovateConfig   `toml:"tradovate"`
	Rithmic          RithmicConfig     `toml:"rithmic"`
	NinjaTrader      NinjaTraderConfig `toml:"ninjatrader"`
}

type TradovateConfig struct {
	BaseURL        string `toml:"base_url"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	AppID          string `toml:"app_id"`
	AppVersion     string `toml:"app_version"`
	CID            int    `toml:"cid"`
	Secret         string `toml:"secret"`
	AccountID      int64  `toml:"account_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type RithmicConfig struct {
	WSURL          string `toml:"ws_url"`
	SystemName     string `toml:"system_name"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	AccountID      string `toml:"account_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type NinjaTraderConfig struct {
	Addr           string `toml:"addr"`
	Account        string `toml:"account"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type InstrumentsConfig struct {
	CatalogPath string `toml:"catalog_path"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
