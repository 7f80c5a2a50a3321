package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load 加载配置文件
// 文件不存在时返回默认配置；环境变量覆盖文件值（.env文件先于进程环境加载）
func Load(path string) (*Config, error) {
	// .env存在则加载，不存在不视为错误
	_ = godotenv.Load()

	cfg := defaults()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{
		Mode:     "dev",
		HTTPPort: 8080,
	}
	cfg.Database.Type = "sqlite"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// applyEnv 环境变量覆盖（APPROVAL_前缀）
func applyEnv(cfg *Config) {
	if v := os.Getenv("APPROVAL_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("APPROVAL_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPort = port
		}
	}
	if v := os.Getenv("APPROVAL_DB_TYPE"); v != "" {
		cfg.Database.Type = v
	}
	if v := os.Getenv("APPROVAL_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("APPROVAL_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("APPROVAL_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("APPROVAL_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("APPROVAL_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("APPROVAL_DB_NAME"); v != "" {
		cfg.Database.DBName = v
	}
	if v := os.Getenv("APPROVAL_ENFORCE_SIGNATURES"); v != "" {
		cfg.Engine.EnforceSignatures = v == "true" || v == "1"
	}
	if v := os.Getenv("APPROVAL_ESCALATION_CRON"); v != "" {
		cfg.Engine.EscalationCron = v
	}
	if v := os.Getenv("APPROVAL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("APPROVAL_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
