package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/machshop/approval-engine/pkg/api/dto"
	"github.com/machshop/approval-engine/pkg/core/engine"
)

// ApprovalHandler 审批动作API处理器
type ApprovalHandler struct {
	engine *engine.Engine
}

// NewApprovalHandler 创建ApprovalHandler
func NewApprovalHandler(eng *engine.Engine) *ApprovalHandler {
	return &ApprovalHandler{engine: eng}
}

// AssignUsers 为阶段批量分配审批人
// POST /api/v1/stages/:id/assignments
func (h *ApprovalHandler) AssignUsers(c *gin.Context) {
	var req dto.AssignUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求参数错误: %v", err)))
		return
	}

	inputs := make([]engine.AssignmentInput, 0, len(req.Assignments))
	for _, a := range req.Assignments {
		inputs = append(inputs, engine.AssignmentInput{
			UserID:         a.UserID,
			RoleID:         a.RoleID,
			AssignmentType: a.AssignmentType,
			ParallelGroup:  a.ParallelGroup,
		})
	}

	if err := h.engine.AssignUsersToStage(c.Request.Context(), c.Param("id"), inputs); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(map[string]int{"assigned": len(inputs)}))
}

// Act 记录审批动作
// POST /api/v1/assignments/:id/action
func (h *ApprovalHandler) Act(c *gin.Context) {
	h.processAction(c, false)
}

// ActSigned 携带电子签名的审批动作
// POST /api/v1/assignments/:id/action-signed
func (h *ApprovalHandler) ActSigned(c *gin.Context) {
	h.processAction(c, true)
}

func (h *ApprovalHandler) processAction(c *gin.Context, signed bool) {
	ctx := c.Request.Context()

	var req dto.ApprovalActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求参数错误: %v", err)))
		return
	}

	input := engine.ApprovalInput{
		AssignmentID: c.Param("id"),
		Action:       req.Action,
		Notes:        req.Notes,
	}

	var err error
	if signed {
		if req.Signature == nil {
			c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, "signature is required"))
			return
		}
		err = h.engine.ProcessApprovalWithSignature(ctx, input, engine.SignatureInput{
			Password:        req.Signature.Password,
			SignatureType:   req.Signature.SignatureType,
			SignatureLevel:  req.Signature.SignatureLevel,
			SignatureReason: req.Signature.SignatureReason,
		}, requestUserID(c))
	} else {
		err = h.engine.ProcessApprovalAction(ctx, input, requestUserID(c))
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{"action": req.Action}))
}

// SignatureRequired 查询分配是否要求电子签名
// GET /api/v1/assignments/:id/signature-required
func (h *ApprovalHandler) SignatureRequired(c *gin.Context) {
	required, err := h.engine.IsSignatureRequired(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]bool{"signature_required": required}))
}
