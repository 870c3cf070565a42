// Package control 提供进程内的控制面 HTTP 服务：执行记录查询、
// 事件日志查询与手动下单入口。看板等外层系统只读取已提交的状态。
package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tickflow/internal/execution"
	"tickflow/internal/instrument"
	"tickflow/internal/logger"
	"tickflow/internal/market"
	"tickflow/internal/store"

	"github.com/gin-gonic/gin"
)

// Server 提供最小化的 /api 控制接口。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述控制面依赖。
type ServerConfig struct {
	Addr    string
	Machine *execution.Machine
	Store   store.Store
	Catalog *instrument.Catalog
	// Stats 可选：返回行情来源健康度
	Stats func() market.SourceStats
}

// NewServer 构建控制面 HTTP server。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("control http server requires a store")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9981"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := NewRouter(cfg.Machine, cfg.Store, cfg.Catalog, cfg.Stats)
	api.Register(router.Group("/api"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler 暴露底层 handler，测试用。
func (s *Server) Handler() http.Handler {
	if s == nil {
		return nil
	}
	return s.router
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Infof("control http: listening on %s", s.addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// requestLogger 记录控制面的人工操作，便于追踪调用。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}
