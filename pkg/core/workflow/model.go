// Package workflow 定义审批工作流引擎的核心领域模型
package workflow

import (
	"time"

	"github.com/google/uuid"
)

// 工作流实例状态常量
const (
	InstanceStatusPending    = "PENDING"
	InstanceStatusInProgress = "IN_PROGRESS"
	InstanceStatusCompleted  = "COMPLETED"
	InstanceStatusCancelled  = "CANCELLED"
	InstanceStatusRejected   = "REJECTED"
)

// 阶段实例状态常量
const (
	StageStatusPending    = "PENDING"
	StageStatusInProgress = "IN_PROGRESS"
	StageStatusCompleted  = "COMPLETED"
	StageStatusSkipped    = "SKIPPED"
	StageStatusEscalated  = "ESCALATED"
)

// 阶段结论常量
const (
	OutcomeApproved         = "APPROVED"
	OutcomeRejected         = "REJECTED"
	OutcomeChangesRequested = "CHANGES_REQUESTED"
	OutcomeDelegated        = "DELEGATED"
	OutcomeSkipped          = "SKIPPED"
)

// 审批动作常量（与阶段结论共用取值，但语义为单个审批人的操作）
const (
	ActionApproved         = "APPROVED"
	ActionRejected         = "REJECTED"
	ActionChangesRequested = "CHANGES_REQUESTED"
	ActionDelegated        = "DELEGATED"
)

// 分配类型常量
const (
	AssignmentTypeRequired = "REQUIRED"
	AssignmentTypeOptional = "OPTIONAL"
	AssignmentTypeBackup   = "BACKUP"
)

// 协调组类型常量
const (
	GroupTypeRequired         = "REQUIRED"
	GroupTypeParallelRequired = "PARALLEL_REQUIRED"
	GroupTypeOptional         = "OPTIONAL"
)

// DefaultParallelGroup 默认协调组标签
const DefaultParallelGroup = "DEFAULT"

// MetadataKeySignatureID Assignment元数据中电子签名ID的键
const MetadataKeySignatureID = "signatureId"

// MetadataKeyRequireSignature 阶段/工作流元数据中签名必需标志的键
const MetadataKeyRequireSignature = "requireSignature"

// IsTerminalInstanceStatus 判断工作流实例状态是否为终态
func IsTerminalInstanceStatus(status string) bool {
	switch status {
	case InstanceStatusCompleted, InstanceStatusCancelled, InstanceStatusRejected:
		return true
	}
	return false
}

// IsResolvedStageStatus 判断阶段实例是否已解决（不会再回到IN_PROGRESS）
func IsResolvedStageStatus(status string) bool {
	return status == StageStatusCompleted || status == StageStatusSkipped
}

// WorkflowDefinition 工作流定义（对外导出）
// 被运行中实例引用后不可变更，修改需要新的定义版本
type WorkflowDefinition struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	WorkflowType string            `json:"workflow_type"`
	IsActive     bool              `json:"is_active"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
	Stages       []StageDefinition `json:"stages"` // 按StageNumber升序
	CreateTime   time.Time         `json:"create_time"`
}

// StageDefinition 阶段定义（对外导出）
// StageNumber在定义内唯一、从1开始且连续
type StageDefinition struct {
	ID                 string         `json:"id"`
	StageNumber        int            `json:"stage_number"`
	StageName          string         `json:"stage_name"`
	ApprovalType       string         `json:"approval_type"` // UNANIMOUS/MAJORITY/THRESHOLD/MINIMUM/ANY
	MinimumApprovals   int            `json:"minimum_approvals,omitempty"`
	ApprovalThreshold  float64        `json:"approval_threshold,omitempty"` // 百分比
	AssignmentStrategy string         `json:"assignment_strategy,omitempty"`
	RequiredRoles      []string       `json:"required_roles,omitempty"`
	OptionalRoles      []string       `json:"optional_roles,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// WorkflowInstance 工作流实例（对外导出）
type WorkflowInstance struct {
	ID                   string          `json:"id"`
	WorkflowDefinitionID string          `json:"workflow_definition_id"`
	WorkflowType         string          `json:"workflow_type"`
	EntityType           string          `json:"entity_type"`
	EntityID             string          `json:"entity_id"`
	Status               string          `json:"status"`
	Priority             string          `json:"priority,omitempty"`
	ProgressPercentage   int             `json:"progress_percentage"`
	StartedByID          string          `json:"started_by_id,omitempty"`
	CancelledAt          *time.Time      `json:"cancelled_at,omitempty"`
	CancelledByID        string          `json:"cancelled_by_id,omitempty"`
	CancellationReason   string          `json:"cancellation_reason,omitempty"`
	CreateTime           time.Time       `json:"create_time"`
	Stages               []StageInstance `json:"stages,omitempty"`  // 按StageNumber升序
	History              []HistoryEntry  `json:"history,omitempty"` // 按时间升序
}

// StageInstance 阶段实例（对外导出）
type StageInstance struct {
	ID                 string                     `json:"id"`
	WorkflowInstanceID string                     `json:"workflow_instance_id"`
	StageDefinitionID  string                     `json:"stage_definition_id"`
	StageNumber        int                        `json:"stage_number"`
	StageName          string                     `json:"stage_name"`
	Status             string                     `json:"status"`
	Outcome            string                     `json:"outcome,omitempty"` // 空串表示尚无结论
	ApprovalType       string                     `json:"approval_type"`
	MinimumApprovals   int                        `json:"minimum_approvals,omitempty"`
	ApprovalThreshold  float64                    `json:"approval_threshold,omitempty"`
	Deadline           *time.Time                 `json:"deadline,omitempty"`
	Metadata           map[string]any             `json:"metadata,omitempty"`
	CreateTime         time.Time                  `json:"create_time"`
	Assignments        []Assignment               `json:"assignments,omitempty"`
	Groups             []ParallelCoordinationGroup `json:"groups,omitempty"`
}

// Assignment 审批人分配（对外导出）
// Action一旦写入即不可变更
type Assignment struct {
	ID              string         `json:"id"`
	StageInstanceID string         `json:"stage_instance_id"`
	AssignedToID    string         `json:"assigned_to_id"`
	RoleID          string         `json:"role_id,omitempty"`
	AssignmentType  string         `json:"assignment_type"`
	Action          string         `json:"action,omitempty"` // 空串表示尚未操作
	ActionTakenByID string         `json:"action_taken_by_id,omitempty"`
	ActionTakenAt   *time.Time     `json:"action_taken_at,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreateTime      time.Time      `json:"create_time"`
}

// SignatureID 返回Assignment元数据中记录的电子签名ID（无则为空串）
func (a *Assignment) SignatureID() string {
	if a.Metadata == nil {
		return ""
	}
	if v, ok := a.Metadata[MetadataKeySignatureID].(string); ok {
		return v
	}
	return ""
}

// CoordinationMetadata 协调组元数据
type CoordinationMetadata struct {
	AssignmentIDs []string `json:"assignmentIds"`
	GroupType     string   `json:"groupType"` // REQUIRED/PARALLEL_REQUIRED/OPTIONAL
}

// ParallelCoordinationGroup 并行协调组（对外导出）
// TotalAssignments为权威分母，可能大于当前已记录的Assignment数量
type ParallelCoordinationGroup struct {
	ID               string               `json:"id"`
	StageInstanceID  string               `json:"stage_instance_id"`
	ParallelGroup    string               `json:"parallel_group"`
	TotalAssignments int                  `json:"total_assignments"`
	Metadata         CoordinationMetadata `json:"coordination_metadata"`
	CreateTime       time.Time            `json:"create_time"`
}

// HistoryEntry 工作流审计历史条目（对外导出）
// 仅追加，不可修改或删除
type HistoryEntry struct {
	ID                 string    `json:"id"`
	WorkflowInstanceID string    `json:"workflow_instance_id"`
	Action             string    `json:"action"`
	PerformedByID      string    `json:"performed_by_id"`
	Notes              string    `json:"notes,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// 历史动作常量
const (
	HistoryActionStarted        = "STARTED"
	HistoryActionCompleted      = "COMPLETED"
	HistoryActionCancelled      = "CANCELLED"
	HistoryActionRejected       = "REJECTED"
	HistoryActionStageCompleted = "STAGE_COMPLETED"
	HistoryActionStageActivated = "STAGE_ACTIVATED"
	HistoryActionStageSkipped   = "STAGE_SKIPPED"
	HistoryActionStageEscalated = "STAGE_ESCALATED"
	HistoryActionApproval       = "APPROVAL_ACTION"
)

// NewHistoryEntry 创建历史条目
func NewHistoryEntry(instanceID, action, performedBy, notes string) HistoryEntry {
	return HistoryEntry{
		ID:                 uuid.NewString(),
		WorkflowInstanceID: instanceID,
		Action:             action,
		PerformedByID:      performedBy,
		Notes:              notes,
		Timestamp:          time.Now(),
	}
}

// FindStage 按阶段号查找阶段定义
func (d *WorkflowDefinition) FindStage(n int) *StageDefinition {
	for i := range d.Stages {
		if d.Stages[i].StageNumber == n {
			return &d.Stages[i]
		}
	}
	return nil
}

// FindStageByNumber 按阶段号查找阶段实例
func (w *WorkflowInstance) FindStageByNumber(n int) *StageInstance {
	for i := range w.Stages {
		if w.Stages[i].StageNumber == n {
			return &w.Stages[i]
		}
	}
	return nil
}

// HighestCompletedStage 返回最大的已完成阶段号（无则为0）
func (w *WorkflowInstance) HighestCompletedStage() int {
	highest := 0
	for i := range w.Stages {
		if IsResolvedStageStatus(w.Stages[i].Status) && w.Stages[i].StageNumber > highest {
			highest = w.Stages[i].StageNumber
		}
	}
	return highest
}

// RequireSignature 判断阶段或所属定义元数据是否设置了签名必需标志
func RequireSignature(stageMeta, defMeta map[string]any) bool {
	return metaFlag(stageMeta, MetadataKeyRequireSignature) || metaFlag(defMeta, MetadataKeyRequireSignature)
}

func metaFlag(meta map[string]any, key string) bool {
	if meta == nil {
		return false
	}
	switch v := meta[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}
