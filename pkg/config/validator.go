package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Validate 校验配置合法性
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("配置不能为空")
	}

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return fmt.Errorf("http_port必须在1-65535之间")
	}

	validDBTypes := map[string]bool{
		"sqlite":     true,
		"mysql":      true,
		"postgres":   true,
		"postgresql": true,
	}
	if !validDBTypes[cfg.Database.Type] {
		return fmt.Errorf("database.type必须是sqlite/mysql/postgres之一")
	}
	if cfg.Database.Type != "sqlite" {
		if cfg.Database.Host == "" {
			return fmt.Errorf("database.host不能为空")
		}
		if cfg.Database.DBName == "" {
			return fmt.Errorf("database.dbname不能为空")
		}
	}

	if cfg.Log.Level != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[cfg.Log.Level] {
			return fmt.Errorf("log.level必须是debug/info/warn/error之一")
		}
	}
	if cfg.Log.Format != "" && cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("log.format必须是text或json")
	}

	if cfg.Engine.EscalationCron != "" {
		if _, err := cron.ParseStandard(cfg.Engine.EscalationCron); err != nil {
			return fmt.Errorf("engine.escalation_cron不是合法的cron表达式: %w", err)
		}
	}

	return nil
}
