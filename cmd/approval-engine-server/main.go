package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/machshop/approval-engine/internal/storage"
	"github.com/machshop/approval-engine/pkg/api"
	"github.com/machshop/approval-engine/pkg/config"
	"github.com/machshop/approval-engine/pkg/core/engine"
	"github.com/machshop/approval-engine/pkg/core/events"
	"github.com/sirupsen/logrus"
)

var (
	Version   = "0.3.1"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	// 命令行参数
	configPath := flag.String("config", "./configs/approval.yaml", "引擎配置文件路径")
	host := flag.String("host", "0.0.0.0", "监听地址")
	port := flag.Int("port", 0, "监听端口（覆盖配置文件）")
	flag.Parse()

	log.Printf("Approval Engine Server v%s", Version)
	log.Printf("配置文件: %s", *configPath)

	// 1. 加载并校验配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *port > 0 {
		cfg.HTTPPort = *port
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("配置不合法: %v", err)
	}

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	// 2. 初始化存储
	repo, err := storage.NewApprovalRepo(cfg.Database.Type, cfg.DSN())
	if err != nil {
		log.Fatalf("初始化存储失败: %v", err)
	}
	defer repo.Close()

	// 3. 创建并启动引擎
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
		log.Fatalf("启动引擎失败: %v", err)
	}

	// 4. 创建API服务器
	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = *host
	serverConfig.Port = cfg.HTTPPort

	apiServer := api.NewAPIServer(eng, serverConfig, logger, Version)

	// 5. 在goroutine中启动API服务器
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("API服务器错误: %v", err)
		}
	}()

	log.Printf("✅ Approval Engine Server started on %s:%d", *host, cfg.HTTPPort)

	// 6. 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 7. 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.WriteTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("关闭API服务器失败: %v", err)
	}

	eng.Stop()
	log.Println("✅ 服务已停止")
}
