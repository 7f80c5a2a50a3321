package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/machshop/approval-engine/pkg/api/dto"
	"github.com/machshop/approval-engine/pkg/core/workflow"
)

// writeError 领域错误到HTTP状态码的统一映射
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, workflow.ErrState):
		status = http.StatusConflict
	case errors.Is(err, workflow.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, workflow.ErrPersistence):
		status = http.StatusInternalServerError
	}
	c.JSON(status, dto.NewErrorResponse(status, err.Error()))
}
