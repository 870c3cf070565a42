// Package binance 提供辅助行情来源：在没有真实券商流可用的环境
// （开发、演练）用币安永续的逐笔成交充当 tick 流。
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"tickflow/internal/config"
	"tickflow/internal/logger"
	"tickflow/internal/market"
	"tickflow/internal/pkg/backoff"

	"github.com/adshao/go-binance/v2/futures"
)

// Source 基于 go-binance SDK 实现 market.TickSource。
type Source struct {
	cfg    config.BinanceSourceConfig
	client *futures.Client

	mu     sync.Mutex
	cancel context.CancelFunc

	statsMu sync.Mutex
	stats   market.SourceStats
}

func New(cfg config.BinanceSourceConfig) (*Source, error) {
	client := futures.NewClient("", "")
	if base := strings.TrimSpace(cfg.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	timeout := 10 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
		futures.SetWsProxyUrl(cfg.ProxyURL)
	}
	client.HTTPClient = httpClient
	return &Source{cfg: cfg, client: client}, nil
}

func (s *Source) SubscribeTicks(ctx context.Context, instruments []string, fn func(market.Tick)) error {
	cleanSymbols := make([]string, 0, len(instruments))
	for _, sym := range instruments {
		upper := strings.ToUpper(strings.TrimSpace(sym))
		if upper != "" {
			cleanSymbols = append(cleanSymbols, upper)
		}
	}
	if len(cleanSymbols) == 0 {
		return fmt.Errorf("no valid symbols for tick subscription")
	}
	subCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	go s.runTradeLoop(subCtx, cleanSymbols, fn)
	return nil
}

func (s *Source) runTradeLoop(ctx context.Context, symbols []string, fn func(market.Tick)) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		handler := func(event *futures.WsAggTradeEvent) {
			tick, ok := convertAggTradeEvent(event)
			if !ok {
				s.statsMu.Lock()
				s.stats.DropCount++
				s.statsMu.Unlock()
				return
			}
			s.statsMu.Lock()
			s.stats.TickCount++
			s.statsMu.Unlock()
			fn(tick)
		}
		errHandler := func(err error) {
			if err != nil {
				logger.Warnf("[binance] 流错误: %v", err)
			}
		}
		doneC, stopC, err := futures.WsCombinedAggTradeServe(symbols, handler, errHandler)
		if err != nil {
			logger.Warnf("[binance] 订阅失败，稍后重试: %v", err)
			if !sleepWithContext(ctx, backoff.Delay(attempt)) {
				return
			}
			attempt++
			continue
		}
		attempt = 0
		s.setConnected(true)
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			s.setConnected(false)
			return
		case <-doneC:
		}
		close(stopC)
		s.setConnected(false)
		s.statsMu.Lock()
		s.stats.Reconnects++
		s.statsMu.Unlock()
		if !sleepWithContext(ctx, backoff.Delay(attempt)) {
			return
		}
		attempt++
	}
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

func (s *Source) setConnected(v bool) {
	s.statsMu.Lock()
	s.stats.Connected = v
	s.statsMu.Unlock()
}

// convertAggTradeEvent 把逐笔成交折成只有 last 价的 tick。
func convertAggTradeEvent(ev *futures.WsAggTradeEvent) (market.Tick, bool) {
	if ev == nil {
		return market.Tick{}, false
	}
	price := parseFloat(ev.Price)
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if price <= 0 || symbol == "" {
		return market.Tick{}, false
	}
	tick := market.Tick{Instrument: symbol, Last: price}
	if ev.TradeTime > 0 {
		tick.VenueTime = time.UnixMilli(ev.TradeTime)
	}
	return tick, true
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
