package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/machshop/approval-engine/pkg/core/workflow"
	"github.com/machshop/approval-engine/pkg/storage/dao"
)

// daoToDefinition WorkflowDefinitionDAO转领域模型
func daoToDefinition(d *dao.WorkflowDefinitionDAO) (*workflow.WorkflowDefinition, error) {
	meta, err := unmarshalMeta(d.Metadata)
	if err != nil {
		return nil, err
	}
	return &workflow.WorkflowDefinition{
		ID:           d.ID,
		Name:         d.Name,
		WorkflowType: d.WorkflowType,
		IsActive:     d.IsActive,
		Metadata:     meta,
		CreateTime:   d.CreateTime,
	}, nil
}

// stageDefinitionToDAO 阶段定义转DAO
func stageDefinitionToDAO(workflowID string, sd *workflow.StageDefinition) (*dao.StageDefinitionDAO, error) {
	meta, err := marshalMeta(sd.Metadata)
	if err != nil {
		return nil, fmt.Errorf("序列化阶段元数据失败: %w", err)
	}
	requiredJSON, err := marshalStringList(sd.RequiredRoles)
	if err != nil {
		return nil, fmt.Errorf("序列化必需角色失败: %w", err)
	}
	optionalJSON, err := marshalStringList(sd.OptionalRoles)
	if err != nil {
		return nil, fmt.Errorf("序列化可选角色失败: %w", err)
	}
	return &dao.StageDefinitionDAO{
		ID:                 sd.ID,
		WorkflowID:         workflowID,
		StageNumber:        sd.StageNumber,
		StageName:          sd.StageName,
		ApprovalType:       sd.ApprovalType,
		MinimumApprovals:   sd.MinimumApprovals,
		ApprovalThreshold:  sd.ApprovalThreshold,
		AssignmentStrategy: nullString(sd.AssignmentStrategy),
		RequiredRoles:      requiredJSON,
		OptionalRoles:      optionalJSON,
		Metadata:           meta,
	}, nil
}

// daoToStageDefinition StageDefinitionDAO转领域模型
func daoToStageDefinition(d *dao.StageDefinitionDAO) (*workflow.StageDefinition, error) {
	meta, err := unmarshalMeta(d.Metadata)
	if err != nil {
		return nil, err
	}
	required, err := unmarshalStringList(d.RequiredRoles)
	if err != nil {
		return nil, fmt.Errorf("反序列化必需角色失败: %w", err)
	}
	optional, err := unmarshalStringList(d.OptionalRoles)
	if err != nil {
		return nil, fmt.Errorf("反序列化可选角色失败: %w", err)
	}
	return &workflow.StageDefinition{
		ID:                 d.ID,
		StageNumber:        d.StageNumber,
		StageName:          d.StageName,
		ApprovalType:       d.ApprovalType,
		MinimumApprovals:   d.MinimumApprovals,
		ApprovalThreshold:  d.ApprovalThreshold,
		AssignmentStrategy: d.AssignmentStrategy.String,
		RequiredRoles:      required,
		OptionalRoles:      optional,
		Metadata:           meta,
	}, nil
}

// instanceToDAO 工作流实例转DAO
func instanceToDAO(inst *workflow.WorkflowInstance) *dao.WorkflowInstanceDAO {
	d := &dao.WorkflowInstanceDAO{
		ID:                   inst.ID,
		WorkflowDefinitionID: inst.WorkflowDefinitionID,
		WorkflowType:         inst.WorkflowType,
		EntityType:           inst.EntityType,
		EntityID:             inst.EntityID,
		Status:               inst.Status,
		Priority:             nullString(inst.Priority),
		ProgressPercentage:   inst.ProgressPercentage,
		StartedByID:          nullString(inst.StartedByID),
		CancelledByID:        nullString(inst.CancelledByID),
		CancellationReason:   nullString(inst.CancellationReason),
		CreateTime:           inst.CreateTime,
	}
	if inst.CancelledAt != nil {
		d.CancelledAt = sql.NullTime{Time: *inst.CancelledAt, Valid: true}
	}
	return d
}

// daoToInstance WorkflowInstanceDAO转领域模型
func daoToInstance(d *dao.WorkflowInstanceDAO) *workflow.WorkflowInstance {
	inst := &workflow.WorkflowInstance{
		ID:                   d.ID,
		WorkflowDefinitionID: d.WorkflowDefinitionID,
		WorkflowType:         d.WorkflowType,
		EntityType:           d.EntityType,
		EntityID:             d.EntityID,
		Status:               d.Status,
		Priority:             d.Priority.String,
		ProgressPercentage:   d.ProgressPercentage,
		StartedByID:          d.StartedByID.String,
		CancelledByID:        d.CancelledByID.String,
		CancellationReason:   d.CancellationReason.String,
		CreateTime:           d.CreateTime,
	}
	if d.CancelledAt.Valid {
		t := d.CancelledAt.Time
		inst.CancelledAt = &t
	}
	return inst
}

// stageInstanceToDAO 阶段实例转DAO
func stageInstanceToDAO(st *workflow.StageInstance) (*dao.StageInstanceDAO, error) {
	meta, err := marshalMeta(st.Metadata)
	if err != nil {
		return nil, fmt.Errorf("序列化阶段实例元数据失败: %w", err)
	}
	createTime := st.CreateTime
	if createTime.IsZero() {
		createTime = time.Now()
	}
	d := &dao.StageInstanceDAO{
		ID:                 st.ID,
		WorkflowInstanceID: st.WorkflowInstanceID,
		StageDefinitionID:  nullString(st.StageDefinitionID),
		StageNumber:        st.StageNumber,
		StageName:          st.StageName,
		Status:             st.Status,
		Outcome:            nullString(st.Outcome),
		ApprovalType:       st.ApprovalType,
		MinimumApprovals:   st.MinimumApprovals,
		ApprovalThreshold:  st.ApprovalThreshold,
		Metadata:           meta,
		CreateTime:         createTime,
	}
	if st.Deadline != nil {
		d.Deadline = sql.NullTime{Time: *st.Deadline, Valid: true}
	}
	return d, nil
}

// daoToStageInstance StageInstanceDAO转领域模型
func daoToStageInstance(d *dao.StageInstanceDAO) (*workflow.StageInstance, error) {
	meta, err := unmarshalMeta(d.Metadata)
	if err != nil {
		return nil, err
	}
	st := &workflow.StageInstance{
		ID:                 d.ID,
		WorkflowInstanceID: d.WorkflowInstanceID,
		StageDefinitionID:  d.StageDefinitionID.String,
		StageNumber:        d.StageNumber,
		StageName:          d.StageName,
		Status:             d.Status,
		Outcome:            d.Outcome.String,
		ApprovalType:       d.ApprovalType,
		MinimumApprovals:   d.MinimumApprovals,
		ApprovalThreshold:  d.ApprovalThreshold,
		Metadata:           meta,
		CreateTime:         d.CreateTime,
	}
	if d.Deadline.Valid {
		t := d.Deadline.Time
		st.Deadline = &t
	}
	return st, nil
}

// assignmentToDAO 分配转DAO
func assignmentToDAO(a *workflow.Assignment) (*dao.AssignmentDAO, error) {
	meta, err := marshalMeta(a.Metadata)
	if err != nil {
		return nil, fmt.Errorf("序列化分配元数据失败: %w", err)
	}
	createTime := a.CreateTime
	if createTime.IsZero() {
		createTime = time.Now()
	}
	d := &dao.AssignmentDAO{
		ID:              a.ID,
		StageInstanceID: a.StageInstanceID,
		AssignedToID:    a.AssignedToID,
		RoleID:          nullString(a.RoleID),
		AssignmentType:  a.AssignmentType,
		Action:          nullString(a.Action),
		ActionTakenByID: nullString(a.ActionTakenByID),
		Notes:           nullString(a.Notes),
		Metadata:        meta,
		CreateTime:      createTime,
	}
	if a.ActionTakenAt != nil {
		d.ActionTakenAt = sql.NullTime{Time: *a.ActionTakenAt, Valid: true}
	}
	return d, nil
}

// daoToAssignment AssignmentDAO转领域模型
func daoToAssignment(d *dao.AssignmentDAO) (*workflow.Assignment, error) {
	meta, err := unmarshalMeta(d.Metadata)
	if err != nil {
		return nil, err
	}
	a := &workflow.Assignment{
		ID:              d.ID,
		StageInstanceID: d.StageInstanceID,
		AssignedToID:    d.AssignedToID,
		RoleID:          d.RoleID.String,
		AssignmentType:  d.AssignmentType,
		Action:          d.Action.String,
		ActionTakenByID: d.ActionTakenByID.String,
		Notes:           d.Notes.String,
		Metadata:        meta,
		CreateTime:      d.CreateTime,
	}
	if d.ActionTakenAt.Valid {
		t := d.ActionTakenAt.Time
		a.ActionTakenAt = &t
	}
	return a, nil
}

// daoToGroup CoordinationGroupDAO转领域模型
func daoToGroup(d *dao.CoordinationGroupDAO) (*workflow.ParallelCoordinationGroup, error) {
	var meta workflow.CoordinationMetadata
	if err := json.Unmarshal([]byte(d.Metadata), &meta); err != nil {
		return nil, fmt.Errorf("反序列化协调组元数据失败: %w", err)
	}
	return &workflow.ParallelCoordinationGroup{
		ID:               d.ID,
		StageInstanceID:  d.StageInstanceID,
		ParallelGroup:    d.ParallelGroup,
		TotalAssignments: d.TotalAssignments,
		Metadata:         meta,
		CreateTime:       d.CreateTime,
	}, nil
}

func marshalStringList(list []string) (sql.NullString, error) {
	if len(list) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalStringList(ns sql.NullString) ([]string, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(ns.String), &list); err != nil {
		return nil, err
	}
	return list, nil
}
