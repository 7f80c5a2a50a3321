package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/machshop/approval-engine/internal/storage"
	"github.com/machshop/approval-engine/pkg/api"
	"github.com/machshop/approval-engine/pkg/cli/output"
	"github.com/machshop/approval-engine/pkg/config"
	"github.com/machshop/approval-engine/pkg/core/engine"
	"github.com/machshop/approval-engine/pkg/core/events"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	serverPort int
	serverHost string
	configPath string
)

// serverCmd server子命令
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "服务管理命令",
	Long:  `管理Approval Engine HTTP API服务。`,
}

// serverStartCmd 启动服务
var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "启动HTTP API服务",
	Long: `启动Approval Engine HTTP API服务。

示例：
  # 使用默认配置启动
  approval-engine server start

  # 指定端口启动
  approval-engine server start --port 8080

  # 指定配置文件启动
  approval-engine server start --config ./configs/approval.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			output.Error("加载配置失败: %v", err)
			return err
		}
		if serverPort > 0 {
			cfg.HTTPPort = serverPort
		}
		if err := config.Validate(cfg); err != nil {
			output.Error("配置不合法: %v", err)
			return err
		}

		logger := newLogger(cfg)

		// 初始化存储
		repo, err := storage.NewApprovalRepo(cfg.Database.Type, cfg.DSN())
		if err != nil {
			output.Error("初始化存储失败: %v", err)
			return err
		}
		defer repo.Close()

		// 创建引擎
		eng := engine.New(repo,
			engine.WithEventBus(events.NewBus(cfg.Mode == "dev")),
			engine.WithLogger(logger),
			engine.WithConfig(engine.Config{
				EnforceSignatures: cfg.Engine.EnforceSignatures,
				EscalationCron:    cfg.Engine.EscalationCron,
			}),
		)

		ctx := context.Background()
		if err := eng.Start(ctx); err != nil {
			output.Error("启动引擎失败: %v", err)
			return err
		}

		// 创建并启动API服务器
		serverConfig := api.DefaultServerConfig()
		serverConfig.Host = serverHost
		serverConfig.Port = cfg.HTTPPort
		apiServer := api.NewAPIServer(eng, serverConfig, logger, Version)

		go func() {
			if err := apiServer.Start(); err != nil {
				log.Printf("API服务器错误: %v", err)
			}
		}()

		output.Success("Approval Engine Server started on %s:%d", serverHost, cfg.HTTPPort)

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		output.Info("正在关闭服务...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.WriteTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			output.Error("关闭API服务器失败: %v", err)
		}

		eng.Stop()
		output.Success("服务已停止")
		return nil
	},
}

// newLogger 按配置构建logrus日志器
func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

func init() {
	serverStartCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "HTTP服务端口（覆盖配置文件）")
	serverStartCmd.Flags().StringVar(&serverHost, "host", "0.0.0.0", "HTTP服务监听地址")
	serverStartCmd.Flags().StringVarP(&configPath, "config", "c", "./configs/approval.yaml", "配置文件路径")

	serverCmd.AddCommand(serverStartCmd)
}
