package dao

import (
	"database/sql"
	"time"
)

// WorkflowInstanceDAO workflow_instance表的数据访问对象
type WorkflowInstanceDAO struct {
	ID                   string         `db:"id"`
	WorkflowDefinitionID string         `db:"workflow_definition_id"`
	WorkflowType         string         `db:"workflow_type"`
	EntityType           string         `db:"entity_type"`
	EntityID             string         `db:"entity_id"`
	Status               string         `db:"status"`
	Priority             sql.NullString `db:"priority"`
	ProgressPercentage   int            `db:"progress_percentage"`
	StartedByID          sql.NullString `db:"started_by_id"`
	CancelledAt          sql.NullTime   `db:"cancelled_at"`
	CancelledByID        sql.NullString `db:"cancelled_by_id"`
	CancellationReason   sql.NullString `db:"cancellation_reason"`
	CreateTime           time.Time      `db:"create_time"`
}

// StageInstanceDAO stage_instance表的数据访问对象
type StageInstanceDAO struct {
	ID                 string         `db:"id"`
	WorkflowInstanceID string         `db:"workflow_instance_id"`
	StageDefinitionID  sql.NullString `db:"stage_definition_id"`
	StageNumber        int            `db:"stage_number"`
	StageName          string         `db:"stage_name"`
	Status             string         `db:"status"`
	Outcome            sql.NullString `db:"outcome"`
	ApprovalType       string         `db:"approval_type"`
	MinimumApprovals   int            `db:"minimum_approvals"`
	ApprovalThreshold  float64        `db:"approval_threshold"`
	Deadline           sql.NullTime   `db:"deadline"`
	Metadata           sql.NullString `db:"metadata"` // JSON对象
	CreateTime         time.Time      `db:"create_time"`
}
