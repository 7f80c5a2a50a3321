package engine

import (
	"context"
	"fmt"

	"github.com/machshop/approval-engine/pkg/core/rules"
	"github.com/machshop/approval-engine/pkg/core/workflow"
	"github.com/sirupsen/logrus"
)

// stageRoute 一次路由求值的结果
// NextStage为nil表示没有可激活的后续阶段（工作流完成）
type stageRoute struct {
	NextStage     *workflow.StageInstance
	SkippedStages []*workflow.StageInstance
	MatchedRule   *rules.WorkflowRule
}

// evaluateConditionalRouting 在阶段通过后决定下一批激活的阶段
//
// 按workflowType加载启用规则并以优先级求值（小者优先），首个命中规则
// 决定路由动作；无规则命中时退回顺序推进（最大已解决阶段号+1）。
// SKIP_TO_STAGE将当前阶段与目标之间的PENDING阶段全部置为SKIPPED。
func (e *Engine) evaluateConditionalRouting(ctx context.Context, inst *workflow.WorkflowInstance,
	resolved *workflow.StageInstance) (*stageRoute, error) {

	ruleSet, err := e.repo.ListRules(ctx, inst.WorkflowType)
	if err != nil {
		return nil, workflow.WrapPersistence("Failed to load routing rules", err)
	}

	var matched *rules.WorkflowRule
	if len(ruleSet) > 0 {
		rctx, err := e.buildRuleContext(ctx, inst, resolved)
		if err != nil {
			return nil, err
		}
		matched = rules.FirstMatch(ruleSet, rctx)
	}

	if matched == nil {
		return e.sequentialRoute(inst, resolved), nil
	}

	target := matched.Action.TargetStage()
	next := findPendingStage(inst, target, resolved.ID)
	if next == nil {
		// 目标阶段不存在或已解决：规则失效，退回顺序推进
		e.log.WithFields(logrus.Fields{
			"instance_id": inst.ID,
			"rule_id":     matched.ID,
			"target":      target,
		}).Warn("路由规则目标阶段不可激活，退回顺序推进")
		return e.sequentialRoute(inst, resolved), nil
	}

	route := &stageRoute{NextStage: next, MatchedRule: matched}
	if matched.Action.Type == rules.ActionSkipToStage {
		route.SkippedStages = pendingStagesBetween(inst, resolved.StageNumber, target)
	}

	e.log.WithFields(logrus.Fields{
		"instance_id": inst.ID,
		"rule_id":     matched.ID,
		"rule_name":   matched.Name,
		"action":      matched.Action.Type,
		"target":      target,
	}).Info("🎯 路由规则命中")
	return route, nil
}

// sequentialRoute 顺序推进：激活最大已解决阶段号的下一个PENDING阶段
func (e *Engine) sequentialRoute(inst *workflow.WorkflowInstance, resolved *workflow.StageInstance) *stageRoute {
	highest := inst.HighestCompletedStage()
	if resolved.StageNumber > highest {
		highest = resolved.StageNumber
	}
	for n := highest + 1; ; n++ {
		stage := inst.FindStageByNumber(n)
		if stage == nil {
			return &stageRoute{} // 没有更多阶段
		}
		if stage.Status == workflow.StageStatusPending {
			return &stageRoute{NextStage: stage}
		}
	}
}

// buildRuleContext 构建规则求值上下文：实例字段叠加业务实体上下文
func (e *Engine) buildRuleContext(ctx context.Context, inst *workflow.WorkflowInstance,
	resolved *workflow.StageInstance) (rules.Context, error) {

	rctx := rules.Context{
		"workflowType":       inst.WorkflowType,
		"entityType":         inst.EntityType,
		"entityId":           inst.EntityID,
		"priority":           inst.Priority,
		"currentStageNumber": resolved.StageNumber,
	}
	if e.contexts != nil {
		extra, err := e.contexts.GetContext(ctx, inst.EntityType, inst.EntityID)
		if err != nil {
			return nil, fmt.Errorf("获取实体上下文失败: %w", err)
		}
		for k, v := range extra {
			rctx[k] = v
		}
	}
	return rctx, nil
}

// findPendingStage 查找可激活（PENDING且非当前）的阶段
func findPendingStage(inst *workflow.WorkflowInstance, n int, excludeID string) *workflow.StageInstance {
	stage := inst.FindStageByNumber(n)
	if stage == nil || stage.ID == excludeID || stage.Status != workflow.StageStatusPending {
		return nil
	}
	return stage
}

// pendingStagesBetween 返回(from, to)开区间内全部PENDING阶段
func pendingStagesBetween(inst *workflow.WorkflowInstance, from, to int) []*workflow.StageInstance {
	if to < from {
		from, to = to, from
	}
	var skipped []*workflow.StageInstance
	for i := range inst.Stages {
		s := &inst.Stages[i]
		if s.StageNumber > from && s.StageNumber < to && s.Status == workflow.StageStatusPending {
			skipped = append(skipped, s)
		}
	}
	return skipped
}
