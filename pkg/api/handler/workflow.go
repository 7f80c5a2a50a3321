package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/machshop/approval-engine/pkg/api/dto"
	"github.com/machshop/approval-engine/pkg/core/engine"
)

// WorkflowHandler 工作流实例API处理器
type WorkflowHandler struct {
	engine *engine.Engine
}

// NewWorkflowHandler 创建WorkflowHandler
func NewWorkflowHandler(eng *engine.Engine) *WorkflowHandler {
	return &WorkflowHandler{engine: eng}
}

// Start 启动工作流实例
// POST /api/v1/workflows
func (h *WorkflowHandler) Start(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求参数错误: %v", err)))
		return
	}

	inst, err := h.engine.StartWorkflow(ctx, engine.StartWorkflowInput{
		WorkflowID: req.WorkflowID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Priority:   req.Priority,
	}, requestUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewSuccessResponse(dto.StartWorkflowResponse{
		WorkflowInstanceID: inst.ID,
		Status:             inst.Status,
		CurrentStage:       1,
		Message:            "Workflow started",
	}))
}

// Get 查询实例详情（含阶段、分配与协调组）
// GET /api/v1/workflows/:id
func (h *WorkflowHandler) Get(c *gin.Context) {
	inst, err := h.engine.GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(inst))
}

// Progress 查询实例进度
// GET /api/v1/workflows/:id/progress
func (h *WorkflowHandler) Progress(c *gin.Context) {
	progress, err := h.engine.GetWorkflowProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(progress))
}

// History 查询实例审计历史
// GET /api/v1/workflows/:id/history
func (h *WorkflowHandler) History(c *gin.Context) {
	history, err := h.engine.GetWorkflowHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(history))
}

// VerifySignatures 校验实例下全部电子签名
// GET /api/v1/workflows/:id/signatures/verify
func (h *WorkflowHandler) VerifySignatures(c *gin.Context) {
	result, err := h.engine.VerifyWorkflowSignatures(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.SignatureVerifyResponse{
		IsValid:            result.IsValid,
		SignatureCount:     result.SignatureCount,
		InvalidSignatures:  result.InvalidSignatures,
		VerificationErrors: result.VerificationErrors,
	}))
}

// Complete 完成工作流
// POST /api/v1/workflows/:id/complete
func (h *WorkflowHandler) Complete(c *gin.Context) {
	if err := h.engine.CompleteWorkflow(c.Request.Context(), c.Param("id"), requestUserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{"status": "COMPLETED"}))
}

// Cancel 取消工作流
// POST /api/v1/workflows/:id/cancel
func (h *WorkflowHandler) Cancel(c *gin.Context) {
	var req dto.CancelWorkflowRequest
	_ = c.ShouldBindJSON(&req) // reason可空

	if err := h.engine.CancelWorkflow(c.Request.Context(), c.Param("id"), req.Reason, requestUserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{"status": "CANCELLED"}))
}

// requestUserID 从请求头取操作者身份（认证由外层网关负责）
func requestUserID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}
