// Package ninjatrader implements the local-socket venue adapter. The desktop
// platform listens on a TCP port and accepts newline-delimited KEY=VALUE
// command frames; a bracket is one frame carrying signed tick distances
// relative to fill (negative = below, positive = above).
package ninjatrader

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"tickflow/internal/config"
	"tickflow/internal/gateway"
	"tickflow/internal/logger"
)

const venueName = "ninjatrader"

type Adapter struct {
	cfg            config.NinjaTraderConfig
	keepAliveEvery time.Duration

	mu       sync.Mutex
	conn     net.Conn
	reader   *bufio.Reader
	kaCancel context.CancelFunc
}

func New(cfg config.NinjaTraderConfig, keepAliveEvery time.Duration) *Adapter {
	return &Adapter{cfg: cfg, keepAliveEvery: keepAliveEvery}
}

func (a *Adapter) Name() string { return venueName }

func (a *Adapter) Capabilities() gateway.Capabilities {
	return gateway.Capabilities{
		SupportsBracketInSingleCall:      true,
		SupportsAttachBracketsAfterEntry: false,
		RequiresSignedBracketTicks:       true,
	}
}

func (a *Adapter) timeout() time.Duration {
	if a.cfg.TimeoutSeconds > 0 {
		return time.Duration(a.cfg.TimeoutSeconds) * time.Second
	}
	return 5 * time.Second
}

func (a *Adapter) Connect(ctx context.Context) error {
	d := net.Dialer{Timeout: a.timeout()}
	conn, err := d.DialContext(ctx, "tcp", a.cfg.Addr)
	if err != nil {
		return fmt.Errorf("连接 ninjatrader 失败 addr=%s: %w", a.cfg.Addr, err)
	}
	a.mu.Lock()
	a.conn = conn
	a.reader = bufio.NewReader(conn)
	a.mu.Unlock()
	logger.Infof("ninjatrader 已连接 addr=%s", a.cfg.Addr)
	return nil
}

// Authorize 本地平台无独立令牌，握手一条 HELLO 帧校验账户即可。
func (a *Adapter) Authorize(ctx context.Context) error {
	resp, err := a.roundTrip(ctx, fmt.Sprintf("CMD=HELLO;ACCOUNT=%s", a.cfg.Account))
	if err != nil {
		return &gateway.AuthError{Venue: venueName, Reason: err.Error()}
	}
	if reason, ok := errReason(resp); ok {
		return &gateway.AuthError{Venue: venueName, Reason: reason}
	}
	return nil
}

func (a *Adapter) Disconnect() error {
	a.StopKeepAlive()
	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	a.reader = nil
	a.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (a *Adapter) StartKeepAlive(ctx context.Context) {
	a.mu.Lock()
	if a.kaCancel != nil {
		a.mu.Unlock()
		return
	}
	kaCtx, cancel := context.WithCancel(ctx)
	a.kaCancel = cancel
	a.mu.Unlock()
	go func() {
		ticker := time.NewTicker(a.keepAliveEvery)
		defer ticker.Stop()
		for {
			select {
			case <-kaCtx.Done():
				return
			case <-ticker.C:
				if _, err := a.roundTrip(kaCtx, "CMD=PING"); err != nil {
					logger.Warnf("ninjatrader: 心跳失败: %v", err)
				}
			}
		}
	}()
}

func (a *Adapter) StopKeepAlive() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.kaCancel != nil {
		a.kaCancel()
		a.kaCancel = nil
	}
}

// GetPosition 通过 QUERYPOS 帧读取净仓位。
func (a *Adapter) GetPosition(ctx context.Context, instrument string) (gateway.Position, error) {
	symbol := strings.ToUpper(strings.TrimSpace(instrument))
	resp, err := a.roundTrip(ctx, fmt.Sprintf("CMD=QUERYPOS;ACCOUNT=%s;SYMBOL=%s", a.cfg.Account, symbol))
	if err != nil {
		return gateway.Position{}, err
	}
	if reason, ok := errReason(resp); ok {
		return gateway.Position{}, fmt.Errorf("ninjatrader 仓位查询失败: %s", reason)
	}
	size := 0
	if _, err := fmt.Sscanf(fields(resp)["POSITION"], "%d", &size); err != nil {
		return gateway.Position{}, fmt.Errorf("ninjatrader 仓位字段无法解析: %q", resp)
	}
	return gateway.Position{Instrument: symbol, Size: size}, nil
}

// PlaceBracketOrder 把整个括号编成一条 PLACEBRACKET 帧。止损/止盈
// 距离按有向 tick 传递：买入止损为负、止盈为正，卖出取反。
func (a *Adapter) PlaceBracketOrder(ctx context.Context, plan gateway.BracketPlan) (*gateway.BracketResult, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	action := "BUY"
	if plan.Side == gateway.SideSell {
		action = "SELL"
	}
	stopTicks, tpTicks := gateway.SignedTicks(plan.Side, plan.StopTicks, plan.TakeProfitTicks)
	cmd := fmt.Sprintf("CMD=PLACEBRACKET;ACCOUNT=%s;SYMBOL=%s;ACTION=%s;QTY=%d;TYPE=MARKET;STOPTICKS=%d;TARGETTICKS=%d;OID=%s",
		a.cfg.Account, strings.ToUpper(plan.Instrument), action, plan.Contracts, stopTicks, tpTicks, plan.ClientKey)
	resp, err := a.roundTrip(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if reason, ok := errReason(resp); ok {
		return nil, &gateway.RejectionError{Venue: venueName, Reason: reason}
	}
	fs := fields(resp)
	return &gateway.BracketResult{
		EntryOrderID:      fs["ENTRYID"],
		StopOrderID:       fs["STOPID"],
		TakeProfitOrderID: fs["TARGETID"],
		Raw:               map[string]any{"line": resp},
	}, nil
}

// roundTrip 写一帧并同步读回一行响应；连接是单路复用的，
// 用互斥锁保证请求与响应一一配对。
func (a *Adapter) roundTrip(ctx context.Context, cmd string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return "", fmt.Errorf("ninjatrader 未连接")
	}
	deadline := time.Now().Add(a.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := a.conn.SetDeadline(deadline); err != nil {
		return "", err
	}
	if _, err := fmt.Fprintf(a.conn, "%s\n", cmd); err != nil {
		return "", fmt.Errorf("ninjatrader 写入失败: %w", err)
	}
	line, err := a.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("ninjatrader 读取响应失败: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func fields(resp string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(resp, ";") {
		if k, v, ok := strings.Cut(part, "="); ok {
			out[k] = v
		}
	}
	return out
}

func errReason(resp string) (string, bool) {
	fs := fields(resp)
	if fs["STATUS"] == "ERR" {
		reason := fs["REASON"]
		if reason == "" {
			reason = resp
		}
		return reason, true
	}
	return "", false
}
