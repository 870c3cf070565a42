package notifier

import (
	"fmt"
	"strings"
	"time"
)

const maxMessageLen = 3800

// TransitionNote 描述一次执行状态迁移的推送内容。
type TransitionNote struct {
	ExecutionKey string
	Instrument   string
	Side         string
	Contracts    int
	From         string
	To           string
	Reason       string
	At           time.Time
}

var transitionIcons = map[string]string{
	"ORDER_FILLED":    "✅",
	"POSITION_OPEN":   "📈",
	"POSITION_CLOSED": "🏁",
	"FAILED":          "❌",
}

// Render 生成 Markdown 文本，自动裁剪长度。
func (n TransitionNote) Render() string {
	icon := transitionIcons[n.To]
	if icon == "" {
		icon = "🔔"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* %s→%s\n", icon, n.Instrument, n.From, n.To)
	if n.Side != "" {
		fmt.Fprintf(&b, "方向：%s  数量：%d\n", n.Side, n.Contracts)
	}
	if reason := strings.TrimSpace(n.Reason); reason != "" {
		fmt.Fprintf(&b, "原因：%s\n", reason)
	}
	fmt.Fprintf(&b, "执行键：`%s`\n", shortKey(n.ExecutionKey))
	if !n.At.IsZero() {
		b.WriteString("时间：" + n.At.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	body := strings.TrimSpace(b.String())
	if len(body) > maxMessageLen {
		body = body[:maxMessageLen] + "..."
	}
	return body
}

// BarNote 描述一次强制收盘的推送内容：行情静默期的收盘
// 是值得人看一眼的异常信号，正常 tick 驱动的收盘不推送。
type BarNote struct {
	Instrument  string
	BucketStart int64
	Duration    int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	TickCount   int64
}

func (n BarNote) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏱ *%s* %ds 柱强制收盘\n", n.Instrument, n.Duration)
	fmt.Fprintf(&b, "O=%.4g H=%.4g L=%.4g C=%.4g ticks=%d\n", n.Open, n.High, n.Low, n.Close, n.TickCount)
	b.WriteString("时间：" + time.Unix(n.BucketStart, 0).UTC().Format("2006-01-02 15:04:05 MST"))
	body := strings.TrimSpace(b.String())
	if len(body) > maxMessageLen {
		body = body[:maxMessageLen] + "..."
	}
	return body
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
