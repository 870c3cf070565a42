package ninjatrader

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"tickflow/internal/config"
	"tickflow/internal/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlatform 模拟桌面端监听器：逐行读命令，按 CMD 回一行。
type fakePlatform struct {
	ln net.Listener

	mu       sync.Mutex
	commands []string
	reject   string // 非空时 PLACEBRACKET 返回该拒绝原因
}

func startPlatform(t *testing.T) (*fakePlatform, *Adapter) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := &fakePlatform{ln: ln}
	go p.serve()
	t.Cleanup(func() { ln.Close() })

	a := New(config.NinjaTraderConfig{
		Addr:           ln.Addr().String(),
		Account:        "Sim101",
		TimeoutSeconds: 2,
	}, 25*time.Second)
	require.NoError(t, a.Connect(context.Background()))
	t.Cleanup(func() { a.Disconnect() })
	return p, a
}

func (p *fakePlatform) serve() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		go p.handle(conn)
	}
}

func (p *fakePlatform) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		p.mu.Lock()
		p.commands = append(p.commands, line)
		reject := p.reject
		p.mu.Unlock()

		fs := fields(line)
		switch fs["CMD"] {
		case "HELLO":
			if fs["ACCOUNT"] != "Sim101" {
				fmt.Fprintln(conn, "STATUS=ERR;REASON=unknown account")
			} else {
				fmt.Fprintln(conn, "STATUS=OK")
			}
		case "PING":
			fmt.Fprintln(conn, "STATUS=OK")
		case "QUERYPOS":
			fmt.Fprintln(conn, "STATUS=OK;POSITION=3")
		case "PLACEBRACKET":
			if reject != "" {
				fmt.Fprintf(conn, "STATUS=ERR;REASON=%s\n", reject)
			} else {
				fmt.Fprintln(conn, "STATUS=OK;ENTRYID=E1;STOPID=S1;TARGETID=T1")
			}
		default:
			fmt.Fprintln(conn, "STATUS=ERR;REASON=bad command")
		}
	}
}

func (p *fakePlatform) lastCommand() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.commands) == 0 {
		return ""
	}
	return p.commands[len(p.commands)-1]
}

func TestAuthorize(t *testing.T) {
	_, a := startPlatform(t)
	assert.NoError(t, a.Authorize(context.Background()))
}

func TestAuthorizeUnknownAccount(t *testing.T) {
	_, a := startPlatform(t)
	a.cfg.Account = "Sim999"
	err := a.Authorize(context.Background())
	var authErr *gateway.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "unknown account", authErr.Reason)
}

func TestPlaceBracketOrderSignedTicks(t *testing.T) {
	p, a := startPlatform(t)
	res, err := a.PlaceBracketOrder(context.Background(), gateway.BracketPlan{
		ClientKey:       "key-1",
		Instrument:      "mes",
		Side:            gateway.SideBuy,
		Contracts:       2,
		StopPrice:       4995,
		TakeProfitPrice: 5015,
		StopTicks:       20,
		TakeProfitTicks: 60,
		TickSize:        0.25,
	})
	require.NoError(t, err)
	assert.Equal(t, "E1", res.EntryOrderID)
	assert.Equal(t, "S1", res.StopOrderID)
	assert.Equal(t, "T1", res.TakeProfitOrderID)
	assert.Equal(t, map[string]any{"line": "STATUS=OK;ENTRYID=E1;STOPID=S1;TARGETID=T1"}, res.Raw)

	fs := fields(p.lastCommand())
	assert.Equal(t, "PLACEBRACKET", fs["CMD"])
	assert.Equal(t, "MES", fs["SYMBOL"])
	assert.Equal(t, "BUY", fs["ACTION"])
	// 买入：止损在下方为负，止盈在上方为正
	assert.Equal(t, "-20", fs["STOPTICKS"])
	assert.Equal(t, "60", fs["TARGETTICKS"])
}

func TestPlaceBracketOrderSellSideFlipsSigns(t *testing.T) {
	p, a := startPlatform(t)
	_, err := a.PlaceBracketOrder(context.Background(), gateway.BracketPlan{
		ClientKey:       "key-2",
		Instrument:      "MES",
		Side:            gateway.SideSell,
		Contracts:       1,
		StopPrice:       5010,
		TakeProfitPrice: 4980,
		StopTicks:       40,
		TakeProfitTicks: 80,
		TickSize:        0.25,
	})
	require.NoError(t, err)
	fs := fields(p.lastCommand())
	assert.Equal(t, "SELL", fs["ACTION"])
	assert.Equal(t, "40", fs["STOPTICKS"])
	assert.Equal(t, "-80", fs["TARGETTICKS"])
}

func TestPlaceBracketOrderRejected(t *testing.T) {
	p, a := startPlatform(t)
	p.mu.Lock()
	p.reject = "margin exceeded"
	p.mu.Unlock()
	_, err := a.PlaceBracketOrder(context.Background(), gateway.BracketPlan{
		ClientKey:       "key-3",
		Instrument:      "MES",
		Side:            gateway.SideBuy,
		Contracts:       1,
		StopPrice:       4995,
		TakeProfitPrice: 5015,
		StopTicks:       20,
		TakeProfitTicks: 60,
		TickSize:        0.25,
	})
	var rej *gateway.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "margin exceeded", rej.Reason)
}

func TestInvalidPlanNeverHitsSocket(t *testing.T) {
	p, a := startPlatform(t)
	p.mu.Lock()
	before := len(p.commands)
	p.mu.Unlock()
	_, err := a.PlaceBracketOrder(context.Background(), gateway.BracketPlan{
		Instrument: "MES",
		Side:       gateway.SideBuy,
		Contracts:  0,
	})
	require.Error(t, err)
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Len(t, p.commands, before)
}

func TestGetPosition(t *testing.T) {
	_, a := startPlatform(t)
	pos, err := a.GetPosition(context.Background(), "mes")
	require.NoError(t, err)
	assert.Equal(t, "MES", pos.Instrument)
	assert.Equal(t, 3, pos.Size)
}
