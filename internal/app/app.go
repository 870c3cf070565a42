// Package app 负责应用级编排：加载配置→初始化依赖→启动实时
// 工作进程与控制面 HTTP 服务。
package app

import (
	"context"
	"fmt"

	"tickflow/internal/config"
	control "tickflow/internal/transport/http/control"

	"golang.org/x/sync/errgroup"
)

// App 持有一个交易身份的全部组件。
type App struct {
	cfg     *config.Config
	worker  *LiveWorker
	httpSrv *control.Server
	Summary *StartupSummary
}

// Run 启动工作进程与控制面，任一失败则整体退出。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	if a.worker == nil {
		return fmt.Errorf("live worker not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	if a.httpSrv != nil {
		group.Go(func() error {
			if err := a.httpSrv.Start(ctx); err != nil {
				return fmt.Errorf("control http server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		defer a.worker.Close()
		return a.worker.Run(ctx)
	})

	return group.Wait()
}

// Worker exposes the underlying live worker (for testing/replay harnesses).
func (a *App) Worker() *LiveWorker {
	if a == nil {
		return nil
	}
	return a.worker
}
