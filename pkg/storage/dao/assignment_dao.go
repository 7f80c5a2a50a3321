package dao

import (
	"database/sql"
	"time"
)

// AssignmentDAO assignment表的数据访问对象
type AssignmentDAO struct {
	ID              string         `db:"id"`
	StageInstanceID string         `db:"stage_instance_id"`
	AssignedToID    string         `db:"assigned_to_id"`
	RoleID          sql.NullString `db:"role_id"`
	AssignmentType  string         `db:"assignment_type"`
	Action          sql.NullString `db:"action"` // NULL表示尚未操作
	ActionTakenByID sql.NullString `db:"action_taken_by_id"`
	ActionTakenAt   sql.NullTime   `db:"action_taken_at"`
	Notes           sql.NullString `db:"notes"`
	Metadata        sql.NullString `db:"metadata"` // JSON对象
	CreateTime      time.Time      `db:"create_time"`
}

// CoordinationGroupDAO coordination_group表的数据访问对象
type CoordinationGroupDAO struct {
	ID               string    `db:"id"`
	StageInstanceID  string    `db:"stage_instance_id"`
	ParallelGroup    string    `db:"parallel_group"`
	TotalAssignments int       `db:"total_assignments"`
	Metadata         string    `db:"coordination_metadata"` // JSON对象
	CreateTime       time.Time `db:"create_time"`
}

// HistoryDAO workflow_history表的数据访问对象
type HistoryDAO struct {
	ID                 string         `db:"id"`
	WorkflowInstanceID string         `db:"workflow_instance_id"`
	Action             string         `db:"action"`
	PerformedByID      string         `db:"performed_by_id"`
	Notes              sql.NullString `db:"notes"`
	Timestamp          time.Time      `db:"timestamp"`
}

// WorkflowRuleDAO workflow_rule表的数据访问对象
type WorkflowRuleDAO struct {
	ID           string    `db:"id"`
	WorkflowType string    `db:"workflow_type"`
	Name         string    `db:"name"`
	IsActive     bool      `db:"is_active"`
	Priority     int       `db:"priority"`
	Condition    string    `db:"condition_json"` // JSON条件树
	Action       string    `db:"action_json"`    // JSON路由动作
	CreateTime   time.Time `db:"create_time"`
}

// TaskItemDAO 待办任务联查结果的数据访问对象
type TaskItemDAO struct {
	ID              string         `db:"id"`
	StageInstanceID string         `db:"stage_instance_id"`
	AssignedToID    string         `db:"assigned_to_id"`
	RoleID          sql.NullString `db:"role_id"`
	AssignmentType  string         `db:"assignment_type"`
	Notes           sql.NullString `db:"notes"`
	CreateTime      time.Time      `db:"create_time"`
	StageNumber     int            `db:"stage_number"`
	StageName       string         `db:"stage_name"`
	WorkflowID      string         `db:"workflow_id"`
	WorkflowStatus  string         `db:"workflow_status"`
	EntityType      string         `db:"entity_type"`
	EntityID        string         `db:"entity_id"`
	Priority        sql.NullString `db:"priority"`
	Deadline        sql.NullTime   `db:"deadline"`
}
