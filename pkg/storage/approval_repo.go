// Package storage 定义审批工作流引擎的持久化边界
package storage

import (
	"context"
	"time"

	"github.com/machshop/approval-engine/pkg/core/rules"
	"github.com/machshop/approval-engine/pkg/core/workflow"
)

// TaskFilter 待办任务查询过滤条件
type TaskFilter struct {
	Status   string // 工作流实例状态过滤（可空）
	Priority string // 优先级过滤（可空）
	Page     int    // 从1开始
	Limit    int    // 每页条数
}

// TaskItem 待办任务查询结果：Assignment连同所属阶段与实例的摘要
type TaskItem struct {
	Assignment       workflow.Assignment `json:"assignment"`
	StageInstanceID  string              `json:"stage_instance_id"`
	StageNumber      int                 `json:"stage_number"`
	StageName        string              `json:"stage_name"`
	WorkflowID       string              `json:"workflow_id"`
	WorkflowStatus   string              `json:"workflow_status"`
	EntityType       string              `json:"entity_type"`
	EntityID         string              `json:"entity_id"`
	Priority         string              `json:"priority,omitempty"`
	Deadline         *time.Time          `json:"deadline,omitempty"`
}

// StageResolution 一次阶段解决的全部持久化变更，必须原子应用
// 由协调求值器与条件路由引擎共同计算得出
type StageResolution struct {
	StageInstanceID string // 被解决的阶段
	Outcome         string // APPROVED/REJECTED

	SkippedStageIDs  []string // 路由跳过的阶段，置为SKIPPED
	ActivateStageIDs []string // 下一批激活的阶段，置为IN_PROGRESS

	NewAssignments []workflow.Assignment                // 为激活阶段创建的分配
	NewGroups      []workflow.ParallelCoordinationGroup // 为激活阶段创建的协调组

	InstanceID       string // 所属实例
	InstanceStatus   string // 非空时更新实例状态（终态写入带守卫）
	Progress         int    // 实例进度百分比
	CompletedByID    string
	History          []workflow.HistoryEntry
}

// ApprovalAggregateRepository 审批工作流聚合存储接口（对外导出）
// 每个写方法内部是一个完整事务：部分失败整体回滚
type ApprovalAggregateRepository interface {
	// ========== 定义 ==========

	// SaveDefinition 保存工作流定义及其全部阶段定义（事务）
	SaveDefinition(ctx context.Context, def *workflow.WorkflowDefinition) error
	// GetDefinition 按ID查询定义（含阶段，按StageNumber升序）；不存在返回nil
	GetDefinition(ctx context.Context, id string) (*workflow.WorkflowDefinition, error)
	// ListDefinitions 列出全部定义（不含阶段）
	ListDefinitions(ctx context.Context) ([]*workflow.WorkflowDefinition, error)

	// ========== 实例生命周期 ==========

	// CreateInstanceGraph 创建实例、全部阶段实例、首阶段分配与协调组，
	// 激活首阶段并写入历史（事务）
	CreateInstanceGraph(ctx context.Context, inst *workflow.WorkflowInstance,
		firstStageAssignments []workflow.Assignment,
		firstStageGroups []workflow.ParallelCoordinationGroup,
		history workflow.HistoryEntry) error
	// GetInstance 按ID查询实例，完整水合阶段、分配、协调组与历史；不存在返回nil
	GetInstance(ctx context.Context, id string) (*workflow.WorkflowInstance, error)
	// CompleteInstance 置实例为COMPLETED、进度100并写历史（事务，终态守卫）
	// 实例已处于终态时返回false
	CompleteInstance(ctx context.Context, id, byID string) (bool, error)
	// CancelInstance 置实例为CANCELLED并写历史（事务，终态守卫）
	// 实例已处于终态时返回false
	CancelInstance(ctx context.Context, id, reason, byID string, at time.Time) (bool, error)

	// ========== 分配与审批 ==========

	// CreateAssignments 为阶段追加一批分配与协调组（事务）
	// newGroups整体新建；updatedGroups按ID改写已有组的分母与coordination_metadata
	CreateAssignments(ctx context.Context, stageInstanceID string,
		assignments []workflow.Assignment, newGroups, updatedGroups []workflow.ParallelCoordinationGroup) error
	// GetAssignment 按ID查询分配；不存在返回nil
	GetAssignment(ctx context.Context, id string) (*workflow.Assignment, error)
	// RecordAssignmentAction 一次性写入审批动作（行级CAS：action为空才允许写）
	// 返回false表示该分配已有动作，写入被拒绝
	RecordAssignmentAction(ctx context.Context, id, action, byID, notes string, at time.Time) (bool, error)
	// SetAssignmentSignature 将电子签名ID写入分配元数据
	SetAssignmentSignature(ctx context.Context, id, signatureID string) error
	// ListSignedAssignments 列出实例下所有携带签名ID的分配
	ListSignedAssignments(ctx context.Context, workflowInstanceID string) ([]workflow.Assignment, error)

	// ========== 阶段 ==========

	// GetStageInstance 按ID查询阶段实例，水合分配与协调组；不存在返回nil
	GetStageInstance(ctx context.Context, id string) (*workflow.StageInstance, error)
	// ApplyStageResolution 原子应用一次阶段解决的全部变更（事务）
	ApplyStageResolution(ctx context.Context, res *StageResolution) error
	// ListEscalatableStages 列出截止时间早于now的IN_PROGRESS阶段
	ListEscalatableStages(ctx context.Context, now time.Time) ([]workflow.StageInstance, error)
	// MarkStageEscalated 置阶段为ESCALATED并写历史（事务）
	// 阶段已不是IN_PROGRESS时返回false
	MarkStageEscalated(ctx context.Context, stageInstanceID string, history workflow.HistoryEntry) (bool, error)

	// ========== 历史 ==========

	// AppendHistory 追加一条审计历史
	AppendHistory(ctx context.Context, entry workflow.HistoryEntry) error
	// ListHistory 按时间升序列出实例的审计历史
	ListHistory(ctx context.Context, workflowInstanceID string) ([]workflow.HistoryEntry, error)

	// ========== 规则 ==========

	// SaveRule 保存条件路由规则
	SaveRule(ctx context.Context, rule *rules.WorkflowRule) error
	// ListRules 列出workflowType下的启用规则（按Priority升序）
	ListRules(ctx context.Context, workflowType string) ([]rules.WorkflowRule, error)

	// ========== 查询 ==========

	// ListOpenTasks 查询用户的未处理分配（action为空），分页
	ListOpenTasks(ctx context.Context, userID string, filter TaskFilter) ([]TaskItem, int, error)

	// Close 关闭底层连接
	Close() error
}
