package config

import "fmt"

// Config 服务核心配置
type Config struct {
	Mode     string `yaml:"mode"`
	HTTPPort int    `yaml:"http_port"`
	Database struct {
		Type     string `yaml:"type"` // sqlite/mysql/postgres
		Path     string `yaml:"path"` // sqlite文件路径
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"`
	} `yaml:"database"`
	Engine struct {
		EnforceSignatures bool   `yaml:"enforce_signatures"`
		EscalationCron    string `yaml:"escalation_cron"`
	} `yaml:"engine"`
	Log struct {
		Level  string `yaml:"level"`  // debug/info/warn/error
		Format string `yaml:"format"` // text/json
	} `yaml:"log"`
}

// DSN 组装数据库连接串
func (c *Config) DSN() string {
	switch c.Database.Type {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.DBName)
	case "postgres", "postgresql":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.DBName)
	default:
		if c.Database.Path != "" {
			return c.Database.Path
		}
		return "./approval-engine.db"
	}
}
