package factory

import (
	"testing"

	"tickflow/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() *config.Config {
	return &config.Config{
		Broker: config.BrokerConfig{KeepAliveSeconds: 25},
	}
}

func TestNewBrokerDefaultsToNoop(t *testing.T) {
	cfg := baseConfig()
	b, err := NewBroker(cfg)
	require.NoError(t, err)
	assert.Equal(t, "noop", b.Name())
}

func TestNewBrokerSelectsTradovate(t *testing.T) {
	cfg := baseConfig()
	cfg.Broker.Venue = "tradovate"
	cfg.Broker.Tradovate = config.TradovateConfig{
		BaseURL:   "https://demo.example.com/v1",
		Username:  "u",
		AccountID: 1001,
	}
	b, err := NewBroker(cfg)
	require.NoError(t, err)
	assert.Equal(t, "tradovate", b.Name())
	assert.True(t, b.Capabilities().SupportsBracketInSingleCall)
}

func TestNewBrokerTradovateBadBaseURL(t *testing.T) {
	cfg := baseConfig()
	cfg.Broker.Venue = "tradovate"
	cfg.Broker.Tradovate.BaseURL = "  "
	_, err := NewBroker(cfg)
	require.Error(t, err)
}

func TestNewBrokerSelectsRithmic(t *testing.T) {
	cfg := baseConfig()
	cfg.Broker.Venue = "rithmic"
	cfg.Broker.Rithmic = config.RithmicConfig{WSURL: "ws://127.0.0.1:1/ws", AccountID: "A-1"}
	b, err := NewBroker(cfg)
	require.NoError(t, err)
	assert.Equal(t, "rithmic", b.Name())
	assert.True(t, b.Capabilities().SupportsAttachBracketsAfterEntry)
}

func TestNewBrokerUnknownVenue(t *testing.T) {
	cfg := baseConfig()
	cfg.Broker.Venue = "etrade"
	_, err := NewBroker(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etrade")
}

func TestNewTickSourceFromStreamingBroker(t *testing.T) {
	cfg := baseConfig()
	cfg.Broker.Venue = "rithmic"
	cfg.Broker.Rithmic = config.RithmicConfig{WSURL: "ws://127.0.0.1:1/ws", AccountID: "A-1"}
	b, err := NewBroker(cfg)
	require.NoError(t, err)

	src, err := NewTickSource(cfg, b)
	require.NoError(t, err)
	assert.NotNil(t, src)
}

func TestNewTickSourceRejectsNonStreamingBroker(t *testing.T) {
	cfg := baseConfig()
	b, err := NewBroker(cfg)
	require.NoError(t, err)

	_, err = NewTickSource(cfg, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market.source=binance")
}
