package api

import (
	"github.com/gin-gonic/gin"
	"github.com/machshop/approval-engine/pkg/api/handler"
	"github.com/machshop/approval-engine/pkg/api/middleware"
	"github.com/machshop/approval-engine/pkg/core/engine"
	"github.com/sirupsen/logrus"
)

// SetupRouter 设置路由
func SetupRouter(eng *engine.Engine, log *logrus.Logger, version string) *gin.Engine {
	// 设置gin模式
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))
	router.Use(middleware.CORS())

	// 创建handlers
	workflowHandler := handler.NewWorkflowHandler(eng)
	approvalHandler := handler.NewApprovalHandler(eng)
	taskHandler := handler.NewTaskHandler(eng)
	eventsHandler := handler.NewEventsHandler(eng.Bus(), log)
	healthHandler := handler.NewHealthHandler(version)

	// 健康检查路由（不带前缀）
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		// 工作流实例路由
		workflows := v1.Group("/workflows")
		{
			workflows.POST("", workflowHandler.Start)
			workflows.GET("/:id", workflowHandler.Get)
			workflows.GET("/:id/progress", workflowHandler.Progress)
			workflows.GET("/:id/history", workflowHandler.History)
			workflows.GET("/:id/signatures/verify", workflowHandler.VerifySignatures)
			workflows.POST("/:id/complete", workflowHandler.Complete)
			workflows.POST("/:id/cancel", workflowHandler.Cancel)
		}

		// 阶段与审批路由
		v1.POST("/stages/:id/assignments", approvalHandler.AssignUsers)
		assignments := v1.Group("/assignments")
		{
			assignments.POST("/:id/action", approvalHandler.Act)
			assignments.POST("/:id/action-signed", approvalHandler.ActSigned)
			assignments.GET("/:id/signature-required", approvalHandler.SignatureRequired)
		}

		// 待办任务路由
		v1.GET("/tasks", taskHandler.List)

		// 事件推送路由
		v1.GET("/events", eventsHandler.Stream)
	}

	return router
}
