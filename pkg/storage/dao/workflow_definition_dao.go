// Package dao 定义各表的数据访问对象（内部使用）
package dao

import (
	"database/sql"
	"time"
)

// WorkflowDefinitionDAO workflow_definition表的数据访问对象
type WorkflowDefinitionDAO struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	WorkflowType string         `db:"workflow_type"`
	IsActive     bool           `db:"is_active"`
	Metadata     sql.NullString `db:"metadata"` // JSON格式存储
	CreateTime   time.Time      `db:"create_time"`
}

// StageDefinitionDAO stage_definition表的数据访问对象
type StageDefinitionDAO struct {
	ID                 string          `db:"id"`
	WorkflowID         string          `db:"workflow_id"`
	StageNumber        int             `db:"stage_number"`
	StageName          string          `db:"stage_name"`
	ApprovalType       string          `db:"approval_type"`
	MinimumApprovals   int             `db:"minimum_approvals"`
	ApprovalThreshold  float64         `db:"approval_threshold"`
	AssignmentStrategy sql.NullString  `db:"assignment_strategy"`
	RequiredRoles      sql.NullString  `db:"required_roles"` // JSON数组
	OptionalRoles      sql.NullString  `db:"optional_roles"` // JSON数组
	Metadata           sql.NullString  `db:"metadata"`       // JSON对象
}
