package engine

import (
	"context"
	"fmt"

	"github.com/machshop/approval-engine/pkg/core/approval"
	"github.com/machshop/approval-engine/pkg/core/events"
	"github.com/machshop/approval-engine/pkg/core/workflow"
	"github.com/machshop/approval-engine/pkg/storage"
	"github.com/sirupsen/logrus"
)

// CheckStageCompletion 检查阶段是否达成审批策略并推进工作流
//
// 完成判定委托approval包（纯函数），随后计算一次阶段解决：
// 拒绝→实例REJECTED；通过→条件路由决定下一批阶段或实例COMPLETED。
// 全部变更由存储层在一个事务内原子应用。
func (e *Engine) CheckStageCompletion(ctx context.Context, stageInstanceID string) error {
	stage, err := e.repo.GetStageInstance(ctx, stageInstanceID)
	if err != nil {
		return workflow.WrapPersistence("Failed to load stage instance", err)
	}
	if stage == nil {
		return &workflow.NotFoundError{Entity: "stage instance", ID: stageInstanceID,
			Msg: fmt.Sprintf("Stage instance %s not found", stageInstanceID)}
	}
	if stage.Status != workflow.StageStatusInProgress {
		// 已解决或尚未激活的阶段不再求值（并发完成检查幂等）
		return nil
	}

	eval, err := approval.EvaluateStageCompletion(stage)
	if err != nil {
		return err
	}
	if !eval.IsComplete {
		return nil
	}

	inst, err := e.repo.GetInstance(ctx, stage.WorkflowInstanceID)
	if err != nil {
		return workflow.WrapPersistence("Failed to load workflow", err)
	}
	if inst == nil {
		return &workflow.NotFoundError{Entity: "workflow instance", ID: stage.WorkflowInstanceID,
			Msg: fmt.Sprintf("Workflow instance %s not found", stage.WorkflowInstanceID)}
	}
	if workflow.IsTerminalInstanceStatus(inst.Status) {
		return nil
	}

	res, evts, err := e.resolveStage(ctx, inst, stage, eval)
	if err != nil {
		return err
	}
	if err := e.repo.ApplyStageResolution(ctx, res); err != nil {
		return workflow.WrapPersistence("Failed to resolve stage", err)
	}

	e.log.WithFields(logrus.Fields{
		"instance_id":  inst.ID,
		"stage_number": stage.StageNumber,
		"outcome":      eval.Outcome,
	}).Info("✅ 阶段解决完成")

	for _, ev := range evts {
		e.publishEvent(ctx, ev)
	}
	return nil
}

// resolveStage 计算一次阶段解决的全部状态变更（不落库）
func (e *Engine) resolveStage(ctx context.Context, inst *workflow.WorkflowInstance,
	stage *workflow.StageInstance, eval approval.StageEvaluation) (*storage.StageResolution, []events.WorkflowEvent, error) {

	res := &storage.StageResolution{
		StageInstanceID: stage.ID,
		Outcome:         eval.Outcome,
		InstanceID:      inst.ID,
	}
	evts := []events.WorkflowEvent{{
		WorkflowInstanceID: inst.ID,
		Action:             workflow.HistoryActionStageCompleted,
		StageNumber:        stage.StageNumber,
		Notes:              eval.Outcome,
	}}
	res.History = append(res.History, workflow.NewHistoryEntry(inst.ID,
		workflow.HistoryActionStageCompleted, "",
		fmt.Sprintf("Stage %d resolved: %s", stage.StageNumber, eval.Outcome)))

	if eval.IsRejected {
		// 任一阶段被否决即终止整个工作流
		res.InstanceStatus = workflow.InstanceStatusRejected
		res.Progress = inst.ProgressPercentage
		res.History = append(res.History, workflow.NewHistoryEntry(inst.ID,
			workflow.HistoryActionRejected, "",
			fmt.Sprintf("Workflow rejected at stage %d", stage.StageNumber)))
		evts = append(evts, events.WorkflowEvent{
			WorkflowInstanceID: inst.ID,
			Action:             workflow.HistoryActionRejected,
			StageNumber:        stage.StageNumber,
		})
		return res, evts, nil
	}

	route, err := e.evaluateConditionalRouting(ctx, inst, stage)
	if err != nil {
		return nil, nil, err
	}

	for _, skipped := range route.SkippedStages {
		res.SkippedStageIDs = append(res.SkippedStageIDs, skipped.ID)
		res.History = append(res.History, workflow.NewHistoryEntry(inst.ID,
			workflow.HistoryActionStageSkipped, "",
			fmt.Sprintf("Stage %d skipped by routing rule", skipped.StageNumber)))
		evts = append(evts, events.WorkflowEvent{
			WorkflowInstanceID: inst.ID,
			Action:             workflow.HistoryActionStageSkipped,
			StageNumber:        skipped.StageNumber,
		})
	}

	if route.NextStage == nil {
		// 没有可激活的后续阶段：工作流完成
		res.InstanceStatus = workflow.InstanceStatusCompleted
		res.Progress = 100
		res.History = append(res.History, workflow.NewHistoryEntry(inst.ID,
			workflow.HistoryActionCompleted, "", "All stages resolved"))
		evts = append(evts, events.WorkflowEvent{
			WorkflowInstanceID: inst.ID,
			Action:             workflow.HistoryActionCompleted,
		})
		return res, evts, nil
	}

	next := route.NextStage
	res.ActivateStageIDs = append(res.ActivateStageIDs, next.ID)
	res.Progress = progressPercentage(inst, stage, route.SkippedStages)
	res.History = append(res.History, workflow.NewHistoryEntry(inst.ID,
		workflow.HistoryActionStageActivated, "",
		fmt.Sprintf("Stage %d activated", next.StageNumber)))
	evts = append(evts, events.WorkflowEvent{
		WorkflowInstanceID: inst.ID,
		Action:             workflow.HistoryActionStageActivated,
		StageNumber:        next.StageNumber,
	})

	// 为新激活的阶段解析审批人
	assignments, groups, err := e.resolveStageAssignments(ctx, inst, next)
	if err != nil {
		return nil, nil, err
	}
	res.NewAssignments = assignments
	res.NewGroups = groups

	return res, evts, nil
}

// resolveStageAssignments 通过协作方解析阶段审批人并构建分配与协调组
func (e *Engine) resolveStageAssignments(ctx context.Context, inst *workflow.WorkflowInstance,
	stage *workflow.StageInstance) ([]workflow.Assignment, []workflow.ParallelCoordinationGroup, error) {

	def, err := e.defs.GetDefinition(ctx, inst.WorkflowDefinitionID)
	if err != nil {
		return nil, nil, workflow.WrapPersistence("Failed to load workflow definition", err)
	}
	if def == nil {
		return nil, nil, nil
	}
	stageDef := def.FindStage(stage.StageNumber)
	if stageDef == nil {
		return nil, nil, nil
	}
	specs, err := e.resolver.ResolveStage(ctx, def, stageDef)
	if err != nil {
		return nil, nil, fmt.Errorf("解析阶段审批人失败: %w", err)
	}
	assignments, groups := buildAssignments(stage.ID, specs)
	return assignments, groups, nil
}

// progressPercentage 按已解决阶段占比计算实例进度
func progressPercentage(inst *workflow.WorkflowInstance, justResolved *workflow.StageInstance,
	skipped []*workflow.StageInstance) int {

	total := len(inst.Stages)
	if total == 0 {
		return 0
	}
	resolved := 1 + len(skipped) // 本次解决的阶段与被跳过的阶段
	for i := range inst.Stages {
		s := &inst.Stages[i]
		if s.ID != justResolved.ID && workflow.IsResolvedStageStatus(s.Status) {
			resolved++
		}
	}
	if resolved > total {
		resolved = total
	}
	return int(float64(resolved)/float64(total)*100 + 0.5)
}
