package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test.yaml")
	configContent := `
mode: "prod"
http_port: 9090
database:
  type: "mysql"
  host: "db.local"
  port: 3306
  user: "approval"
  password: "secret"
  dbname: "approval"
engine:
  enforce_signatures: true
  escalation_cron: "*/5 * * * *"
log:
  level: "debug"
  format: "json"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("创建测试配置文件失败: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Mode != "prod" {
		t.Errorf("期望mode为prod，实际为%s", cfg.Mode)
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("期望http_port为9090，实际为%d", cfg.HTTPPort)
	}
	if cfg.Database.Type != "mysql" {
		t.Errorf("期望database.type为mysql，实际为%s", cfg.Database.Type)
	}
	if !cfg.Engine.EnforceSignatures {
		t.Error("期望enforce_signatures为true")
	}
	if cfg.Engine.EscalationCron != "*/5 * * * *" {
		t.Errorf("期望escalation_cron为*/5 * * * *，实际为%s", cfg.Engine.EscalationCron)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("期望log.format为json，实际为%s", cfg.Log.Format)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	// 文件不存在时返回默认配置
	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Mode != "dev" {
		t.Errorf("期望默认mode为dev，实际为%s", cfg.Mode)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("期望默认http_port为8080，实际为%d", cfg.HTTPPort)
	}
	if cfg.Database.Type != "sqlite" {
		t.Errorf("期望默认database.type为sqlite，实际为%s", cfg.Database.Type)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("APPROVAL_HTTP_PORT", "7070")
	t.Setenv("APPROVAL_DB_TYPE", "postgres")
	t.Setenv("APPROVAL_ENFORCE_SIGNATURES", "true")

	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.HTTPPort != 7070 {
		t.Errorf("期望http_port被环境变量覆盖为7070，实际为%d", cfg.HTTPPort)
	}
	if cfg.Database.Type != "postgres" {
		t.Errorf("期望database.type被环境变量覆盖为postgres，实际为%s", cfg.Database.Type)
	}
	if !cfg.Engine.EnforceSignatures {
		t.Error("期望enforce_signatures被环境变量覆盖为true")
	}
}

func TestDSN(t *testing.T) {
	cfg := defaults()
	if cfg.DSN() != "./approval-engine.db" {
		t.Errorf("期望sqlite默认DSN，实际为%s", cfg.DSN())
	}

	cfg.Database.Type = "mysql"
	cfg.Database.Host = "db.local"
	cfg.Database.Port = 3306
	cfg.Database.User = "u"
	cfg.Database.Password = "p"
	cfg.Database.DBName = "approval"
	want := "u:p@tcp(db.local:3306)/approval?parseTime=true"
	if cfg.DSN() != want {
		t.Errorf("期望mysql DSN为%s，实际为%s", want, cfg.DSN())
	}
}
