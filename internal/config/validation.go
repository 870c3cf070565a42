package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Bars.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Strategy.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Broker.validate(); err != nil {
		return err
	}
	return nil
}

func (b *BarsConfig) validate() error {
	if b.DurationSeconds < 5 || b.DurationSeconds > 3600 {
		return fmt.Errorf("bars.duration_seconds must be in [5,3600]")
	}
	if b.ForceCloseIntervalSeconds <= 0 {
		return fmt.Errorf("bars.force_close_interval_seconds must be > 0")
	}
	if b.ForceCloseIntervalSeconds >= b.DurationSeconds {
		return fmt.Errorf("bars.force_close_interval_seconds must be smaller than duration_seconds")
	}
	if b.StaleTickMaxAgeSeconds < 0 {
		return fmt.Errorf("bars.stale_tick_max_age_seconds must be >= 0")
	}
	return nil
}

func (m *MarketConfig) validate() error {
	source := strings.ToLower(strings.TrimSpace(m.Source))
	switch source {
	case "broker", "binance":
	default:
		return fmt.Errorf("market.source must be broker or binance, got %q", m.Source)
	}
	if len(m.Symbols) == 0 {
		return fmt.Errorf("market.symbols requires at least one symbol")
	}
	if source == "binance" && strings.TrimSpace(m.Binance.RESTBaseURL) == "" {
		return fmt.Errorf("market.binance.rest_base_url cannot be empty")
	}
	return nil
}

func (s *StrategyConfig) validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("strategy.id cannot be empty")
	}
	if s.OpeningRangeBars <= 0 {
		return fmt.Errorf("strategy.opening_range_bars must be > 0")
	}
	if s.SessionStartMinute < 0 || s.SessionStartMinute >= 24*60 {
		return fmt.Errorf("strategy.session_start_minute must be in [0,1440)")
	}
	if s.SessionEndMinute <= s.SessionStartMinute || s.SessionEndMinute > 24*60 {
		return fmt.Errorf("strategy.session_end_minute must be after session_start_minute")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.RiskUSD <= 0 {
		return fmt.Errorf("risk.risk_usd must be > 0")
	}
	if r.RiskReward <= 0 {
		return fmt.Errorf("risk.risk_reward must be > 0")
	}
	if r.MaxContracts <= 0 {
		return fmt.Errorf("risk.max_contracts must be > 0")
	}
	return nil
}

func (b *BrokerConfig) validate() error {
	venue := strings.ToLower(strings.TrimSpace(b.Venue))
	switch venue {
	case "noop":
		return nil
	case "tradovate":
		if strings.TrimSpace(b.Tradovate.BaseURL) == "" {
			return fmt.Errorf("broker.tradovate.base_url cannot be empty")
		}
		if strings.TrimSpace(b.Tradovate.Username) == "" {
			return fmt.Errorf("broker.tradovate.username cannot be empty")
		}
		if b.Tradovate.AccountID <= 0 {
			return fmt.Errorf("broker.tradovate.account_id must be > 0")
		}
	case "rithmic":
		if strings.TrimSpace(b.Rithmic.WSURL) == "" {
			return fmt.Errorf("broker.rithmic.ws_url cannot be empty")
		}
		if strings.TrimSpace(b.Rithmic.AccountID) == "" {
			return fmt.Errorf("broker.rithmic.account_id cannot be empty")
		}
	case "ninjatrader":
		if strings.TrimSpace(b.NinjaTrader.Addr) == "" {
			return fmt.Errorf("broker.ninjatrader.addr cannot be empty")
		}
		if strings.TrimSpace(b.NinjaTrader.Account) == "" {
			return fmt.Errorf("broker.ninjatrader.account cannot be empty")
		}
	default:
		return fmt.Errorf("broker.venue=%s not supported", b.Venue)
	}
	if b.KeepAliveSeconds <= 0 {
		return fmt.Errorf("broker.keepalive_seconds must be > 0")
	}
	return nil
}
