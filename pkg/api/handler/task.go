package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/machshop/approval-engine/pkg/api/dto"
	"github.com/machshop/approval-engine/pkg/core/engine"
	"github.com/machshop/approval-engine/pkg/storage"
)

// TaskHandler 待办任务API处理器
type TaskHandler struct {
	engine *engine.Engine
}

// NewTaskHandler 创建TaskHandler
func NewTaskHandler(eng *engine.Engine) *TaskHandler {
	return &TaskHandler{engine: eng}
}

// List 查询用户的待办审批任务
// GET /api/v1/tasks?user_id=&status=&priority=&page=&limit=
func (h *TaskHandler) List(c *gin.Context) {
	var query dto.TaskQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("查询参数错误: %v", err)))
		return
	}

	userID := c.Query("user_id")
	if userID == "" {
		userID = requestUserID(c)
	}

	page, err := h.engine.GetMyTasks(c.Request.Context(), userID, storage.TaskFilter{
		Status:   query.Status,
		Priority: query.Priority,
		Page:     query.Page,
		Limit:    query.Limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	tasks := make([]dto.TaskView, 0, len(page.Tasks))
	for i := range page.Tasks {
		t := &page.Tasks[i]
		tasks = append(tasks, dto.TaskView{
			AssignmentID:   t.Assignment.ID,
			StageInstance:  t.StageInstanceID,
			StageNumber:    t.StageNumber,
			StageName:      t.StageName,
			WorkflowID:     t.WorkflowID,
			WorkflowStatus: t.WorkflowStatus,
			EntityType:     t.EntityType,
			EntityID:       t.EntityID,
			Priority:       t.Priority,
			AssignmentType: t.Assignment.AssignmentType,
			Deadline:       t.Deadline,
			AssignedAt:     t.Assignment.CreateTime,
		})
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.TaskListResponse{
		Tasks: tasks,
		Total: page.Total,
		Page:  page.Page,
		Limit: page.Limit,
	}))
}
