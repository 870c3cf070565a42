// Package tradovate implements the REST-token venue adapter. Tradovate
// accepts an entire bracket (entry + stop + take-profit) in a single
// atomic placeOSO call, so a mid-bracket partial failure cannot happen here.
package tradovate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"tickflow/internal/config"
	"tickflow/internal/gateway"
	"tickflow/internal/logger"
	"tickflow/internal/pkg/backoff"
	"tickflow/internal/pkg/circuit"

	"github.com/tidwall/gjson"
)

const (
	venueName       = "tradovate"
	maxSendAttempts = 3
)

type Adapter struct {
	cfg        config.TradovateConfig
	baseURL    *url.URL
	httpClient *http.Client
	breaker    *circuit.Breaker

	keepAliveEvery time.Duration

	mu          sync.RWMutex
	accessToken string
	tokenExpiry time.Time

	kaMu     sync.Mutex
	kaCancel context.CancelFunc
}

func New(cfg config.TradovateConfig, keepAliveEvery time.Duration) (*Adapter, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("tradovate.base_url 不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("解析 tradovate.base_url 失败: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		cfg:            cfg,
		baseURL:        parsed,
		httpClient:     &http.Client{Timeout: timeout},
		breaker:        circuit.NewBreaker(venueName, 5, 30*time.Second),
		keepAliveEvery: keepAliveEvery,
	}, nil
}

func (a *Adapter) Name() string { return venueName }

func (a *Adapter) Capabilities() gateway.Capabilities {
	return gateway.Capabilities{
		SupportsBracketInSingleCall:      true,
		SupportsAttachBracketsAfterEntry: true,
		RequiresSignedBracketTicks:       false,
	}
}

// Connect REST 场馆没有长连接要建立，这里只做可达性探测。
func (a *Adapter) Connect(ctx context.Context) error {
	endpoint, err := a.resolveEndpoint("/auth/me")
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tradovate 不可达: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

type accessTokenRequest struct {
	Name       string `json:"name"`
	Password   string `json:"password"`
	AppID      string `json:"appId"`
	AppVersion string `json:"appVersion"`
	CID        int    `json:"cid"`
	Sec        string `json:"sec"`
}

// Authorize 换取 access token。失败对启动流程是致命的。
func (a *Adapter) Authorize(ctx context.Context) error {
	payload := accessTokenRequest{
		Name:       a.cfg.Username,
		Password:   a.cfg.Password,
		AppID:      a.cfg.AppID,
		AppVersion: a.cfg.AppVersion,
		CID:        a.cfg.CID,
		Sec:        a.cfg.Secret,
	}
	raw, err := a.doRequest(ctx, http.MethodPost, "/auth/accesstokenrequest", payload, false)
	if err != nil {
		return &gateway.AuthError{Venue: venueName, Reason: err.Error()}
	}
	parsed := gjson.ParseBytes(raw)
	if errText := parsed.Get("errorText").String(); errText != "" {
		return &gateway.AuthError{Venue: venueName, Reason: errText}
	}
	token := parsed.Get("accessToken").String()
	if token == "" {
		return &gateway.AuthError{Venue: venueName, Reason: "响应缺少 accessToken"}
	}
	a.mu.Lock()
	a.accessToken = token
	if exp := parsed.Get("expirationTime").String(); exp != "" {
		if t, err := time.Parse(time.RFC3339, exp); err == nil {
			a.tokenExpiry = t
		}
	}
	a.mu.Unlock()
	logger.Infof("tradovate 授权成功 user=%s", a.cfg.Username)
	return nil
}

func (a *Adapter) Disconnect() error {
	a.StopKeepAlive()
	a.mu.Lock()
	a.accessToken = ""
	a.tokenExpiry = time.Time{}
	a.mu.Unlock()
	return nil
}

// StartKeepAlive 在自己的固定间隔计时器上续期 token，
// 不受行情洪峰影响。重复调用只会保留一个续期循环。
func (a *Adapter) StartKeepAlive(ctx context.Context) {
	a.kaMu.Lock()
	defer a.kaMu.Unlock()
	if a.kaCancel != nil {
		return
	}
	kaCtx, cancel := context.WithCancel(ctx)
	a.kaCancel = cancel
	go a.keepAliveLoop(kaCtx)
}

func (a *Adapter) StopKeepAlive() {
	a.kaMu.Lock()
	defer a.kaMu.Unlock()
	if a.kaCancel != nil {
		a.kaCancel()
		a.kaCancel = nil
	}
}

func (a *Adapter) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(a.keepAliveEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			renewCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			raw, err := a.doRequest(renewCtx, http.MethodPost, "/auth/renewaccesstoken", nil, true)
			cancel()
			if err != nil {
				logger.Warnf("tradovate: token 续期失败，等待下一轮: %v", err)
				continue
			}
			if token := gjson.GetBytes(raw, "accessToken").String(); token != "" {
				a.mu.Lock()
				a.accessToken = token
				a.mu.Unlock()
			}
		}
	}
}

// GetPosition 查询场馆侧净仓位，只供恢复协议使用。
func (a *Adapter) GetPosition(ctx context.Context, instrument string) (gateway.Position, error) {
	raw, err := a.doRequest(ctx, http.MethodGet, "/position/list", nil, true)
	if err != nil {
		return gateway.Position{}, err
	}
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	pos := gateway.Position{Instrument: instrument}
	gjson.ParseBytes(raw).ForEach(func(_, item gjson.Result) bool {
		if item.Get("accountId").Int() != a.cfg.AccountID {
			return true
		}
		sym := strings.ToUpper(item.Get("contractName").String())
		if sym != instrument && !strings.HasPrefix(sym, instrument) {
			return true
		}
		pos.Size = int(item.Get("netPos").Int())
		return false
	})
	return pos, nil
}

func (a *Adapter) token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.accessToken
}

// doRequest 执行一次 REST 调用；authed 请求自动带 Bearer token。
// 网络错误与 5xx 视为瞬态，退避重试后仍失败才向上抛。
func (a *Adapter) doRequest(ctx context.Context, method, path string, payload any, authed bool) ([]byte, error) {
	endpoint, err := a.resolveEndpoint(path)
	if err != nil {
		return nil, err
	}
	var encoded []byte
	if payload != nil {
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("序列化请求失败: %w", err)
		}
	}

	var raw []byte
	var lastErr error
	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff.Delay(attempt - 1)):
			}
		}
		err := a.breaker.Do(func() error {
			var body io.Reader
			if encoded != nil {
				body = bytes.NewReader(encoded)
			}
			req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
			if err != nil {
				return err
			}
			if encoded != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			if authed {
				if tok := a.token(); tok != "" {
					req.Header.Set("Authorization", "Bearer "+tok)
				}
			}
			resp, err := a.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("调用 tradovate 失败: %w", err)
			}
			defer resp.Body.Close()
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if resp.StatusCode >= 500 {
				return fmt.Errorf("tradovate 服务端错误(%s): %s", resp.Status, strings.TrimSpace(string(data)))
			}
			if resp.StatusCode >= 300 {
				// 4xx 是确定性失败，不重试
				return &terminalHTTPError{status: resp.Status, body: strings.TrimSpace(string(data))}
			}
			raw = data
			return nil
		})
		if err == nil {
			return raw, nil
		}
		lastErr = err
		var terminal *terminalHTTPError
		if errors.As(err, &terminal) {
			return nil, fmt.Errorf("tradovate 返回错误(%s): %s", terminal.status, terminal.body)
		}
	}
	return nil, lastErr
}

type terminalHTTPError struct {
	status string
	body   string
}

func (e *terminalHTTPError) Error() string {
	return fmt.Sprintf("tradovate %s: %s", e.status, e.body)
}

func (a *Adapter) resolveEndpoint(path string) (*url.URL, error) {
	if a.baseURL == nil {
		return nil, fmt.Errorf("tradovate API 地址未设置")
	}
	trimmed := strings.TrimSpace(path)
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	base := *a.baseURL
	base.Path = strings.TrimSuffix(base.Path, "/") + trimmed
	return &base, nil
}
