package dto

// StartWorkflowRequest 启动工作流请求
type StartWorkflowRequest struct {
	WorkflowID string `json:"workflow_id" binding:"required"`
	EntityType string `json:"entity_type" binding:"required"`
	EntityID   string `json:"entity_id" binding:"required"`
	Priority   string `json:"priority" binding:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
}

// AssignUsersRequest 阶段分配请求
type AssignUsersRequest struct {
	Assignments []AssignmentRequest `json:"assignments" binding:"required,min=1,dive"`
}

// AssignmentRequest 单条分配
type AssignmentRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	RoleID         string `json:"role_id"`
	AssignmentType string `json:"assignment_type" binding:"omitempty,oneof=REQUIRED OPTIONAL OBSERVER"`
	ParallelGroup  string `json:"parallel_group"`
}

// ApprovalActionRequest 审批动作请求
// 携带signature时先创建电子签名再记录动作
type ApprovalActionRequest struct {
	AssignmentID string            `json:"assignment_id" binding:"required"`
	Action       string            `json:"action" binding:"required,oneof=APPROVED REJECTED CHANGES_REQUESTED DELEGATED"`
	Notes        string            `json:"notes"`
	Signature    *SignatureRequest `json:"signature"`
}

// SignatureRequest 电子签名请求
type SignatureRequest struct {
	Password        string `json:"password" binding:"required"`
	SignatureType   string `json:"signature_type"`
	SignatureLevel  string `json:"signature_level"`
	SignatureReason string `json:"signature_reason"`
}

// CancelWorkflowRequest 取消工作流请求
type CancelWorkflowRequest struct {
	Reason string `json:"reason"`
}

// TaskQueryRequest 待办任务查询请求
type TaskQueryRequest struct {
	Status   string `form:"status" binding:"omitempty"`
	Priority string `form:"priority" binding:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=100"`
}
