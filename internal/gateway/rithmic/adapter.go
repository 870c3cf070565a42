// Package rithmic implements the streaming venue adapter. The venue speaks a
// framed request/response protocol over a single websocket; responses are
// correlated to requests by id, and market data arrives interleaved on the
// same connection. Brackets cannot be submitted atomically here: the entry
// goes first, protective legs are attached once the entry is acknowledged.
package rithmic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tickflow/internal/config"
	"tickflow/internal/gateway"
	"tickflow/internal/logger"
	"tickflow/internal/market"
	"tickflow/internal/pkg/backoff"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const venueName = "rithmic"

type Adapter struct {
	cfg            config.RithmicConfig
	keepAliveEvery time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	pending  map[string]chan gjson.Result
	tickFn   func(market.Tick)
	symbols  []string
	kaCancel context.CancelFunc

	closed     atomic.Bool
	connected  atomic.Bool
	tickCount  atomic.Int64
	dropCount  atomic.Int64
	reconnects atomic.Int64
}

func New(cfg config.RithmicConfig, keepAliveEvery time.Duration) *Adapter {
	return &Adapter{
		cfg:            cfg,
		keepAliveEvery: keepAliveEvery,
		pending:        make(map[string]chan gjson.Result),
	}
}

func (a *Adapter) Name() string { return venueName }

func (a *Adapter) Capabilities() gateway.Capabilities {
	return gateway.Capabilities{
		SupportsBracketInSingleCall:      false,
		SupportsAttachBracketsAfterEntry: true,
		RequiresSignedBracketTicks:       false,
	}
}

func (a *Adapter) timeout() time.Duration {
	if a.cfg.TimeoutSeconds > 0 {
		return time.Duration(a.cfg.TimeoutSeconds) * time.Second
	}
	return 10 * time.Second
}

func (a *Adapter) Connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, a.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("连接 rithmic 失败: %w", err)
	}
	a.closed.Store(false)
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	a.connected.Store(true)
	go a.readLoop(conn)
	logger.Infof("rithmic 已连接 url=%s", a.cfg.WSURL)
	return nil
}

func (a *Adapter) Authorize(ctx context.Context) error {
	resp, err := a.request(ctx, map[string]any{
		"op":          "login",
		"system_name": a.cfg.SystemName,
		"user":        a.cfg.Username,
		"password":    a.cfg.Password,
	})
	if err != nil {
		return &gateway.AuthError{Venue: venueName, Reason: err.Error()}
	}
	if status := resp.Get("status").String(); status != "ok" {
		reason := resp.Get("reason").String()
		if reason == "" {
			reason = fmt.Sprintf("status=%s", status)
		}
		return &gateway.AuthError{Venue: venueName, Reason: reason}
	}
	logger.Infof("rithmic 授权成功 user=%s", a.cfg.Username)
	return nil
}

func (a *Adapter) Disconnect() error {
	a.StopKeepAlive()
	a.closed.Store(true)
	a.connected.Store(false)
	a.mu.Lock()
	conn := a.conn
	a.conn = nil
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
				if err := a.send(map[string]any{"op": "heartbeat"}); err != nil {
					logger.Warnf("rithmic: 心跳发送失败: %v", err)
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

// SubscribeTicks 让同一条连接同时充当行情来源：场馆把报价帧
// 与订单回报交织推送，这里拆流后回调给聚合侧。
func (a *Adapter) SubscribeTicks(ctx context.Context, instruments []string, fn func(market.Tick)) error {
	a.mu.Lock()
	a.tickFn = fn
	a.symbols = append([]string(nil), instruments...)
	a.mu.Unlock()
	_, err := a.request(ctx, map[string]any{
		"op":      "subscribe",
		"symbols": instruments,
	})
	return err
}

func (a *Adapter) Close() error { return a.Disconnect() }

func (a *Adapter) Stats() market.SourceStats {
	return market.SourceStats{
		Connected:  a.connected.Load(),
		TickCount:  a.tickCount.Load(),
		DropCount:  a.dropCount.Load(),
		Reconnects: a.reconnects.Load(),
	}
}

// GetPosition 查询场馆实时净仓位，恢复协议专用。
func (a *Adapter) GetPosition(ctx context.Context, instrument string) (gateway.Position, error) {
	resp, err := a.request(ctx, map[string]any{
		"op":      "position_snapshot",
		"symbol":  strings.ToUpper(strings.TrimSpace(instrument)),
		"account": a.cfg.AccountID,
	})
	if err != nil {
		return gateway.Position{}, err
	}
	return gateway.Position{
		Instrument: strings.ToUpper(strings.TrimSpace(instrument)),
		Size:       int(resp.Get("net_position").Int()),
	}, nil
}

// PlaceBracketOrder 先提交入场单，确认后逐条挂载保护腿。
// 入场已被接受而某条腿失败时，返回 PartialBracketError，
// 调用方必须走“平掉裸露仓位”的补救路径，绝不能重下入场。
func (a *Adapter) PlaceBracketOrder(ctx context.Context, plan gateway.BracketPlan) (*gateway.BracketResult, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	action, exitAction := "B", "S"
	if plan.Side == gateway.SideSell {
		action, exitAction = "S", "B"
	}
	symbol := strings.ToUpper(plan.Instrument)

	entryResp, err := a.request(ctx, map[string]any{
		"op":        "place_order",
		"account":   a.cfg.AccountID,
		"symbol":    symbol,
		"side":      action,
		"qty":       plan.Contracts,
		"type":      "MKT",
		"client_id": plan.ClientKey,
	})
	if err != nil {
		return nil, err
	}
	if status := entryResp.Get("status").String(); status != "ok" {
		return nil, &gateway.RejectionError{Venue: venueName, Reason: entryResp.Get("reason").String()}
	}
	entryID := entryResp.Get("order_id").String()

	stopResp, err := a.request(ctx, map[string]any{
		"op":         "place_order",
		"account":    a.cfg.AccountID,
		"symbol":     symbol,
		"side":       exitAction,
		"qty":        plan.Contracts,
		"type":       "STP",
		"stop_price": plan.StopPrice,
		"parent_id":  entryID,
	})
	if err != nil {
		return nil, &gateway.PartialBracketError{Venue: venueName, EntryOrderID: entryID, FailedLeg: "stop", Reason: err.Error()}
	}
	if status := stopResp.Get("status").String(); status != "ok" {
		return nil, &gateway.PartialBracketError{Venue: venueName, EntryOrderID: entryID, FailedLeg: "stop", Reason: stopResp.Get("reason").String()}
	}

	tpResp, err := a.request(ctx, map[string]any{
		"op":        "place_order",
		"account":   a.cfg.AccountID,
		"symbol":    symbol,
		"side":      exitAction,
		"qty":       plan.Contracts,
		"type":      "LMT",
		"price":     plan.TakeProfitPrice,
		"parent_id": entryID,
	})
	if err != nil {
		return nil, &gateway.PartialBracketError{Venue: venueName, EntryOrderID: entryID, FailedLeg: "take_profit", Reason: err.Error()}
	}
	if status := tpResp.Get("status").String(); status != "ok" {
		return nil, &gateway.PartialBracketError{Venue: venueName, EntryOrderID: entryID, FailedLeg: "take_profit", Reason: tpResp.Get("reason").String()}
	}

	return &gateway.BracketResult{
		EntryOrderID:      entryID,
		StopOrderID:       stopResp.Get("order_id").String(),
		TakeProfitOrderID: tpResp.Get("order_id").String(),
		Raw:               map[string]any{"entry": entryResp.Raw, "stop": stopResp.Raw, "take_profit": tpResp.Raw},
	}, nil
}

// request 发送一帧并等待同 request_id 的响应帧，受 ctx 超时约束。
func (a *Adapter) request(ctx context.Context, frame map[string]any) (gjson.Result, error) {
	id := uuid.NewString()
	frame["request_id"] = id
	ch := make(chan gjson.Result, 1)
	a.mu.Lock()
	a.pending[id] = ch
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.pending, id)
		a.mu.Unlock()
	}()

	if err := a.send(frame); err != nil {
		return gjson.Result{}, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()
	select {
	case <-waitCtx.Done():
		return gjson.Result{}, fmt.Errorf("rithmic 请求超时 (op=%v): %w", frame["op"], waitCtx.Err())
	case resp := <-ch:
		return resp, nil
	}
}

func (a *Adapter) send(frame map[string]any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return fmt.Errorf("rithmic 未连接")
	}
	return a.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (a *Adapter) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// 只有仍持有活跃连接的 readLoop 负责触发重连；
			// 被替换掉的旧连接安静退出。
			a.mu.Lock()
			active := a.conn == conn
			if active {
				a.conn = nil
			}
			a.mu.Unlock()
			if !active {
				return
			}
			a.connected.Store(false)
			if a.closed.Load() {
				return
			}
			logger.Warnf("rithmic: 连接断开，进入重连: %v", err)
			go a.reconnectLoop()
			return
		}
		frame := gjson.ParseBytes(data)
		if id := frame.Get("request_id").String(); id != "" {
			a.mu.Lock()
			ch := a.pending[id]
			a.mu.Unlock()
			if ch != nil {
				ch <- frame
			}
			continue
		}
		if frame.Get("op").String() == "tick" {
			a.dispatchTick(frame)
		}
	}
}

// reconnectLoop 按指数退避重拨，成功后重新登录并恢复行情订阅。
// 期间的下单请求会超时失败，由上层的状态机按瞬态错误处理。
func (a *Adapter) reconnectLoop() {
	for attempt := 0; ; attempt++ {
		if a.closed.Load() {
			return
		}
		time.Sleep(backoff.Delay(attempt))
		if a.closed.Load() {
			return
		}
		dialCtx, cancel := context.WithTimeout(context.Background(), a.timeout())
		conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, a.cfg.WSURL, nil)
		cancel()
		if err != nil {
			logger.Warnf("rithmic: 第 %d 次重连失败: %v", attempt+1, err)
			continue
		}
		a.mu.Lock()
		a.conn = conn
		symbols := append([]string(nil), a.symbols...)
		a.mu.Unlock()
		a.connected.Store(true)
		a.reconnects.Add(1)
		go a.readLoop(conn)

		if err := a.restoreSession(symbols); err != nil {
			logger.Warnf("rithmic: 重连后恢复会话失败: %v", err)
			a.mu.Lock()
			if a.conn == conn {
				a.conn = nil
			}
			a.mu.Unlock()
			a.connected.Store(false)
			conn.Close()
			continue
		}
		logger.Infof("rithmic 重连成功 url=%s attempt=%d", a.cfg.WSURL, attempt+1)
		return
	}
}

func (a *Adapter) restoreSession(symbols []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout())
	defer cancel()
	if err := a.Authorize(ctx); err != nil {
		return err
	}
	if len(symbols) == 0 {
		return nil
	}
	_, err := a.request(ctx, map[string]any{
		"op":      "subscribe",
		"symbols": symbols,
	})
	return err
}

func (a *Adapter) dispatchTick(frame gjson.Result) {
	a.mu.Lock()
	fn := a.tickFn
	a.mu.Unlock()
	if fn == nil {
		return
	}
	tick := market.Tick{
		Instrument: frame.Get("symbol").String(),
		Bid:        frame.Get("bid").Float(),
		Ask:        frame.Get("ask").Float(),
		Last:       frame.Get("last").Float(),
	}
	if ts := frame.Get("venue_ts").Int(); ts > 0 {
		tick.VenueTime = time.UnixMilli(ts)
	}
	if _, ok := tick.Price(); !ok {
		a.dropCount.Add(1)
		return
	}
	a.tickCount.Add(1)
	fn(tick)
}
