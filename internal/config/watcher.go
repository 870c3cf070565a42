package config

import (
	"fmt"
	"strings"

	"tickflow/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WatchLogLevel 监听主配置文件，app.log_level 变化时热更新日志级别。
// 只处理日志级别：其余配置项需要重启才会生效。
func WatchLogLevel(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config watcher requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config for watch failed: %w", err)
	}
	last := strings.ToLower(strings.TrimSpace(v.GetString("app.log_level")))
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := v.ReadInConfig(); err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		level := strings.ToLower(strings.TrimSpace(v.GetString("app.log_level")))
		if level == "" || level == last {
			return
		}
		last = level
		logger.SetLevel(level)
		logger.Infof("日志级别已热更新为 %s", level)
	})
	v.WatchConfig()
	return nil
}
