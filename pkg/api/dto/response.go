package dto

import (
	"time"

	"github.com/machshop/approval-engine/pkg/core/workflow"
)

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// DefinitionSummary 工作流定义摘要
type DefinitionSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	WorkflowType string    `json:"workflow_type"`
	IsActive     bool      `json:"is_active"`
	StageCount   int       `json:"stage_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewDefinitionSummary 由领域对象构造摘要
func NewDefinitionSummary(def *workflow.WorkflowDefinition) DefinitionSummary {
	return DefinitionSummary{
		ID:           def.ID,
		Name:         def.Name,
		WorkflowType: def.WorkflowType,
		IsActive:     def.IsActive,
		StageCount:   len(def.Stages),
		CreatedAt:    def.CreateTime,
	}
}

// StartWorkflowResponse 启动工作流响应
type StartWorkflowResponse struct {
	WorkflowInstanceID string `json:"workflow_instance_id"`
	Status             string `json:"status"`
	CurrentStage       int    `json:"current_stage"`
	Message            string `json:"message"`
}

// TaskListResponse 待办任务分页响应
type TaskListResponse struct {
	Tasks []TaskView `json:"tasks"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
}

// TaskView 单条待办任务
type TaskView struct {
	AssignmentID   string     `json:"assignment_id"`
	StageInstance  string     `json:"stage_instance_id"`
	StageNumber    int        `json:"stage_number"`
	StageName      string     `json:"stage_name"`
	WorkflowID     string     `json:"workflow_id"`
	WorkflowStatus string     `json:"workflow_status"`
	EntityType     string     `json:"entity_type"`
	EntityID       string     `json:"entity_id"`
	Priority       string     `json:"priority,omitempty"`
	AssignmentType string     `json:"assignment_type"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	AssignedAt     time.Time  `json:"assigned_at"`
}

// SignatureVerifyResponse 工作流验签响应
type SignatureVerifyResponse struct {
	IsValid            bool     `json:"is_valid"`
	SignatureCount     int      `json:"signature_count"`
	InvalidSignatures  []string `json:"invalid_signatures"`
	VerificationErrors []string `json:"verification_errors"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}
