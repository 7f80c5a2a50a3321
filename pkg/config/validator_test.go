package config

import "testing"

func TestValidate(t *testing.T) {
	cfg := defaults()
	if err := Validate(cfg); err != nil {
		t.Errorf("默认配置应当合法: %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil配置", nil},
		{"端口越界", func(c *Config) { c.HTTPPort = 70000 }},
		{"未知数据库类型", func(c *Config) { c.Database.Type = "oracle" }},
		{"mysql缺少host", func(c *Config) { c.Database.Type = "mysql"; c.Database.DBName = "x" }},
		{"未知日志级别", func(c *Config) { c.Log.Level = "verbose" }},
		{"未知日志格式", func(c *Config) { c.Log.Format = "xml" }},
		{"非法cron表达式", func(c *Config) { c.Engine.EscalationCron = "not a cron" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.mutate == nil {
				if err := Validate(nil); err == nil {
					t.Error("期望校验失败")
				}
				return
			}
			cfg := defaults()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("期望校验失败")
			}
		})
	}
}
