package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/machshop/approval-engine/pkg/core/events"
	"github.com/machshop/approval-engine/pkg/core/workflow"
)

// StartWorkflowInput 启动工作流的输入
type StartWorkflowInput struct {
	WorkflowID string `json:"workflow_id"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Priority   string `json:"priority,omitempty"`
}

// StartWorkflow 启动一个工作流实例
//
// 单事务内：创建实例（IN_PROGRESS）、按阶段号顺序创建全部阶段实例（PENDING）、
// 激活阶段1（解析审批人、创建协调组、置IN_PROGRESS）、写入STARTED历史。
// 返回完整水合的实例。
func (e *Engine) StartWorkflow(ctx context.Context, input StartWorkflowInput, requestedBy string) (*workflow.WorkflowInstance, error) {
	if input.WorkflowID == "" {
		return nil, &workflow.ValidationError{Field: "workflowId", Msg: "workflow id is required"}
	}
	if input.EntityType == "" || input.EntityID == "" {
		return nil, &workflow.ValidationError{Field: "entity", Msg: "entity type and id are required"}
	}

	def, err := e.defs.GetDefinition(ctx, input.WorkflowID)
	if err != nil {
		return nil, workflow.WrapPersistence("Failed to start workflow", err)
	}
	if def == nil || !def.IsActive {
		return nil, &workflow.NotFoundError{Entity: "workflow definition", ID: input.WorkflowID,
			Msg: "Workflow definition not found or inactive"}
	}
	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	now := time.Now()
	inst := &workflow.WorkflowInstance{
		ID:                   uuid.NewString(),
		WorkflowDefinitionID: def.ID,
		WorkflowType:         def.WorkflowType,
		EntityType:           input.EntityType,
		EntityID:             input.EntityID,
		Status:               workflow.InstanceStatusInProgress,
		Priority:             input.Priority,
		StartedByID:          requestedBy,
		CreateTime:           now,
	}

	for i := range def.Stages {
		sd := &def.Stages[i]
		inst.Stages = append(inst.Stages, workflow.StageInstance{
			ID:                 uuid.NewString(),
			WorkflowInstanceID: inst.ID,
			StageDefinitionID:  sd.ID,
			StageNumber:        sd.StageNumber,
			StageName:          sd.StageName,
			Status:             workflow.StageStatusPending,
			ApprovalType:       sd.ApprovalType,
			MinimumApprovals:   sd.MinimumApprovals,
			ApprovalThreshold:  sd.ApprovalThreshold,
			Metadata:           sd.Metadata,
			CreateTime:         now,
		})
	}

	// 激活阶段1
	first := &inst.Stages[0]
	first.Status = workflow.StageStatusInProgress

	specs, err := e.resolver.ResolveStage(ctx, def, &def.Stages[0])
	if err != nil {
		return nil, fmt.Errorf("解析首阶段审批人失败: %w", err)
	}
	assignments, groups := buildAssignments(first.ID, specs)

	history := workflow.NewHistoryEntry(inst.ID, workflow.HistoryActionStarted, requestedBy,
		fmt.Sprintf("Workflow started for %s/%s", input.EntityType, input.EntityID))

	if err := e.repo.CreateInstanceGraph(ctx, inst, assignments, groups, history); err != nil {
		return nil, workflow.WrapPersistence("Failed to start workflow", err)
	}

	e.log.WithFields(map[string]interface{}{
		"instance_id": inst.ID,
		"workflow_id": def.ID,
		"entity":      input.EntityType + "/" + input.EntityID,
	}).Info("工作流实例已启动")
	e.publishEvent(ctx, events.WorkflowEvent{
		WorkflowInstanceID: inst.ID,
		Action:             workflow.HistoryActionStarted,
		PerformedByID:      requestedBy,
		StageNumber:        first.StageNumber,
	})

	hydrated, err := e.repo.GetInstance(ctx, inst.ID)
	if err != nil {
		return nil, workflow.WrapPersistence("Failed to load workflow", err)
	}
	return hydrated, nil
}

// CompleteWorkflow 将实例置为COMPLETED并把进度置为100
// 实例不存在返回NotFoundError；已处于终态返回StateError
func (e *Engine) CompleteWorkflow(ctx context.Context, id, by string) error {
	ok, err := e.repo.CompleteInstance(ctx, id, by)
	if err != nil {
		return workflow.WrapPersistence("Failed to complete workflow", err)
	}
	if !ok {
		return e.terminalFailure(ctx, id, "complete")
	}
	e.publishEvent(ctx, events.WorkflowEvent{
		WorkflowInstanceID: id,
		Action:             workflow.HistoryActionCompleted,
		PerformedByID:      by,
	})
	return nil
}

// CancelWorkflow 取消一个运行中的实例
// 已处于终态（COMPLETED/CANCELLED/REJECTED）的实例返回StateError
func (e *Engine) CancelWorkflow(ctx context.Context, id, reason, by string) error {
	ok, err := e.repo.CancelInstance(ctx, id, reason, by, time.Now())
	if err != nil {
		return workflow.WrapPersistence("Failed to cancel workflow", err)
	}
	if !ok {
		return e.terminalFailure(ctx, id, "cancel")
	}
	e.log.WithFields(map[string]interface{}{"instance_id": id, "reason": reason}).Info("工作流实例已取消")
	e.publishEvent(ctx, events.WorkflowEvent{
		WorkflowInstanceID: id,
		Action:             workflow.HistoryActionCancelled,
		PerformedByID:      by,
		Notes:              reason,
	})
	return nil
}

// terminalFailure 区分实例不存在和实例已处于终态两种失败
func (e *Engine) terminalFailure(ctx context.Context, id, op string) error {
	inst, err := e.repo.GetInstance(ctx, id)
	if err != nil {
		return workflow.WrapPersistence("Failed to load workflow", err)
	}
	if inst == nil {
		return &workflow.NotFoundError{Entity: "workflow instance", ID: id,
			Msg: fmt.Sprintf("Workflow instance %s not found", id)}
	}
	return &workflow.StateError{Entity: "workflow instance", ID: id,
		Msg: fmt.Sprintf("Cannot %s workflow instance %s in status %s", op, id, inst.Status)}
}

// validateDefinition 校验定义的阶段号唯一、从1开始且连续
func validateDefinition(def *workflow.WorkflowDefinition) error {
	if len(def.Stages) == 0 {
		return &workflow.ValidationError{Field: "stages", Msg: "workflow definition has no stages"}
	}
	for i := range def.Stages {
		if def.Stages[i].StageNumber != i+1 {
			return &workflow.ValidationError{Field: "stages",
				Msg: fmt.Sprintf("stage numbers must be contiguous starting at 1, found %d at position %d",
					def.Stages[i].StageNumber, i)}
		}
	}
	return nil
}

// buildAssignments 将审批人说明转为Assignment与协调组
// 每个parallelGroup标签一个组；全员OPTIONAL/BACKUP的组记为OPTIONAL组，
// 不参与阶段完成门控；必审组多于一个时组类型为PARALLEL_REQUIRED
func buildAssignments(stageInstanceID string, specs []AssignmentSpec) ([]workflow.Assignment, []workflow.ParallelCoordinationGroup) {
	if len(specs) == 0 {
		return nil, nil
	}
	now := time.Now()
	assignments := make([]workflow.Assignment, 0, len(specs))
	groupIDs := make(map[string][]string)
	groupAllOptional := make(map[string]bool)
	groupOrder := make([]string, 0, 2)

	for _, spec := range specs {
		aType := spec.AssignmentType
		if aType == "" {
			aType = workflow.AssignmentTypeRequired
		}
		groupLabel := spec.ParallelGroup
		if groupLabel == "" {
			groupLabel = workflow.DefaultParallelGroup
		}
		a := workflow.Assignment{
			ID:              uuid.NewString(),
			StageInstanceID: stageInstanceID,
			AssignedToID:    spec.UserID,
			RoleID:          spec.RoleID,
			AssignmentType:  aType,
			CreateTime:      now,
		}
		assignments = append(assignments, a)
		if _, seen := groupIDs[groupLabel]; !seen {
			groupOrder = append(groupOrder, groupLabel)
			groupAllOptional[groupLabel] = true
		}
		groupIDs[groupLabel] = append(groupIDs[groupLabel], a.ID)
		if aType != workflow.AssignmentTypeOptional && aType != workflow.AssignmentTypeBackup {
			groupAllOptional[groupLabel] = false
		}
	}

	requiredGroups := 0
	for _, label := range groupOrder {
		if !groupAllOptional[label] {
			requiredGroups++
		}
	}
	gatingType := workflow.GroupTypeRequired
	if requiredGroups > 1 {
		gatingType = workflow.GroupTypeParallelRequired
	}
	groups := make([]workflow.ParallelCoordinationGroup, 0, len(groupOrder))
	for _, label := range groupOrder {
		ids := groupIDs[label]
		groupType := gatingType
		if groupAllOptional[label] {
			groupType = workflow.GroupTypeOptional
		}
		groups = append(groups, workflow.ParallelCoordinationGroup{
			ID:               uuid.NewString(),
			StageInstanceID:  stageInstanceID,
			ParallelGroup:    label,
			TotalAssignments: len(ids),
			Metadata: workflow.CoordinationMetadata{
				AssignmentIDs: ids,
				GroupType:     groupType,
			},
			CreateTime: now,
		})
	}
	return assignments, groups
}

// mergeAssignments 在已有协调组之上追加审批人说明
// 同标签说明并入已有组（分母与assignmentIds同步扩容），其余标签按buildAssignments建新组
func mergeAssignments(stage *workflow.StageInstance, specs []AssignmentSpec) (
	[]workflow.Assignment, []workflow.ParallelCoordinationGroup, []workflow.ParallelCoordinationGroup) {

	byLabel := make(map[string]*workflow.ParallelCoordinationGroup, len(stage.Groups))
	for i := range stage.Groups {
		byLabel[stage.Groups[i].ParallelGroup] = &stage.Groups[i]
	}

	now := time.Now()
	var assignments []workflow.Assignment
	var fresh []AssignmentSpec
	merged := make(map[string]*workflow.ParallelCoordinationGroup)
	mergedOrder := make([]string, 0, 2)

	for _, spec := range specs {
		groupLabel := spec.ParallelGroup
		if groupLabel == "" {
			groupLabel = workflow.DefaultParallelGroup
		}
		existing, ok := byLabel[groupLabel]
		if !ok {
			fresh = append(fresh, spec)
			continue
		}

		aType := spec.AssignmentType
		if aType == "" {
			aType = workflow.AssignmentTypeRequired
		}
		a := workflow.Assignment{
			ID:              uuid.NewString(),
			StageInstanceID: stage.ID,
			AssignedToID:    spec.UserID,
			RoleID:          spec.RoleID,
			AssignmentType:  aType,
			CreateTime:      now,
		}
		assignments = append(assignments, a)

		g, seen := merged[groupLabel]
		if !seen {
			copied := *existing
			copied.Metadata.AssignmentIDs = append([]string(nil), existing.Metadata.AssignmentIDs...)
			merged[groupLabel] = &copied
			mergedOrder = append(mergedOrder, groupLabel)
			g = &copied
		}
		g.TotalAssignments++
		g.Metadata.AssignmentIDs = append(g.Metadata.AssignmentIDs, a.ID)
	}

	freshAssignments, newGroups := buildAssignments(stage.ID, fresh)
	assignments = append(assignments, freshAssignments...)

	updatedGroups := make([]workflow.ParallelCoordinationGroup, 0, len(mergedOrder))
	for _, label := range mergedOrder {
		updatedGroups = append(updatedGroups, *merged[label])
	}
	return assignments, newGroups, updatedGroups
}
