package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/machshop/approval-engine/pkg/core/workflow"
	"github.com/machshop/approval-engine/pkg/storage"
)

// TaskPage 待办任务分页结果
type TaskPage struct {
	Tasks []storage.TaskItem `json:"tasks"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

// WorkflowProgress 实例进度汇总
type WorkflowProgress struct {
	WorkflowInstanceID   string  `json:"workflow_instance_id"`
	Status               string  `json:"status"`
	TotalStages          int     `json:"total_stages"`
	CompletedStages      int     `json:"completed_stages"`
	SkippedStages        int     `json:"skipped_stages"`
	CurrentStageNumber   int     `json:"current_stage_number,omitempty"`
	ProgressPercentage   float64 `json:"progress_percentage"`
	TotalAssignments     int     `json:"total_assignments"`
	CompletedAssignments int     `json:"completed_assignments"`
}

// GetWorkflow 按ID查询工作流实例（含阶段、分配与协调组）
func (e *Engine) GetWorkflow(ctx context.Context, workflowID string) (*workflow.WorkflowInstance, error) {
	inst, err := e.repo.GetInstance(ctx, workflowID)
	if err != nil {
		return nil, workflow.WrapPersistence("Failed to load workflow", err)
	}
	if inst == nil {
		return nil, &workflow.NotFoundError{Entity: "workflow instance", ID: workflowID,
			Msg: fmt.Sprintf("Workflow instance %s not found", workflowID)}
	}
	return inst, nil
}

// GetMyTasks 查询用户的待办审批任务（action为空的分配），分页
func (e *Engine) GetMyTasks(ctx context.Context, userID string, filter storage.TaskFilter) (*TaskPage, error) {
	if userID == "" {
		return nil, &workflow.ValidationError{Field: "user_id", Msg: "user id is required"}
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	tasks, total, err := e.repo.ListOpenTasks(ctx, userID, filter)
	if err != nil {
		return nil, workflow.WrapPersistence("Failed to list tasks", err)
	}
	if tasks == nil {
		tasks = []storage.TaskItem{}
	}
	return &TaskPage{Tasks: tasks, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// GetWorkflowProgress 计算实例当前进度
// 百分比只按COMPLETED阶段占比四舍五入，SKIPPED阶段单独上报不计入完成数
func (e *Engine) GetWorkflowProgress(ctx context.Context, workflowID string) (*WorkflowProgress, error) {
	inst, err := e.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	p := &WorkflowProgress{
		WorkflowInstanceID: inst.ID,
		Status:             inst.Status,
		TotalStages:        len(inst.Stages),
	}
	for i := range inst.Stages {
		s := &inst.Stages[i]
		switch s.Status {
		case workflow.StageStatusCompleted:
			p.CompletedStages++
		case workflow.StageStatusSkipped:
			p.SkippedStages++
		}
		if s.Status == workflow.StageStatusInProgress && p.CurrentStageNumber == 0 {
			p.CurrentStageNumber = s.StageNumber
		}
		for j := range s.Assignments {
			p.TotalAssignments++
			if s.Assignments[j].Action != "" {
				p.CompletedAssignments++
			}
		}
	}
	if p.TotalStages > 0 {
		p.ProgressPercentage = math.Round(float64(p.CompletedStages) / float64(p.TotalStages) * 100)
	}
	return p, nil
}

// GetWorkflowHistory 按时间升序返回实例的审计历史
func (e *Engine) GetWorkflowHistory(ctx context.Context, workflowID string) ([]workflow.HistoryEntry, error) {
	inst, err := e.repo.GetInstance(ctx, workflowID)
	if err != nil {
		return nil, workflow.WrapPersistence("Failed to load workflow", err)
	}
	if inst == nil {
		return nil, &workflow.NotFoundError{Entity: "workflow instance", ID: workflowID,
			Msg: fmt.Sprintf("Workflow instance %s not found", workflowID)}
	}
	history, err := e.repo.ListHistory(ctx, workflowID)
	if err != nil {
		return nil, workflow.WrapPersistence("Failed to list workflow history", err)
	}
	if history == nil {
		history = []workflow.HistoryEntry{}
	}
	return history, nil
}
