package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/machshop/approval-engine/pkg/core/events"
	"github.com/machshop/approval-engine/pkg/core/workflow"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const defaultEscalationCron = "* * * * *"

// DeadlineScheduler 超期升级调度器（对外导出）
// 周期扫描过期未解决的IN_PROGRESS阶段并置为ESCALATED
type DeadlineScheduler struct {
	engine *Engine
	cron   *cron.Cron
}

// NewDeadlineScheduler 创建调度器；spec为空时默认每分钟扫描一次
func NewDeadlineScheduler(e *Engine, spec string) (*DeadlineScheduler, error) {
	if spec == "" {
		spec = defaultEscalationCron
	}
	s := &DeadlineScheduler{engine: e, cron: cron.New()}
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return nil, fmt.Errorf("注册超期扫描任务失败: %w", err)
	}
	return s, nil
}

// Start 启动调度
func (s *DeadlineScheduler) Start() {
	s.cron.Start()
	s.engine.log.Info("⏰ 超期升级调度器已启动")
}

// Stop 停止调度并等待进行中的扫描结束
func (s *DeadlineScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.engine.log.Info("🛑 超期升级调度器已停止")
}

// sweep 单次扫描：逐个升级过期阶段，失败不中断其余阶段
func (s *DeadlineScheduler) sweep() {
	ctx := context.Background()
	if _, err := s.engine.EscalateOverdueStages(ctx); err != nil {
		s.engine.log.WithError(err).Warn("超期阶段扫描失败")
	}
}

// EscalateOverdueStages 将截止时间已过的IN_PROGRESS阶段置为ESCALATED
// 返回本次升级的阶段数；阶段升级不改变实例状态，实例仍可继续审批
func (e *Engine) EscalateOverdueStages(ctx context.Context) (int, error) {
	stages, err := e.repo.ListEscalatableStages(ctx, time.Now())
	if err != nil {
		return 0, workflow.WrapPersistence("Failed to list overdue stages", err)
	}

	escalated := 0
	for i := range stages {
		stage := &stages[i]
		history := workflow.NewHistoryEntry(stage.WorkflowInstanceID,
			workflow.HistoryActionStageEscalated, "",
			fmt.Sprintf("Stage %d deadline exceeded", stage.StageNumber))
		ok, err := e.repo.MarkStageEscalated(ctx, stage.ID, history)
		if err != nil {
			e.log.WithError(err).WithField("stage_instance_id", stage.ID).Warn("阶段升级失败")
			continue
		}
		if !ok {
			continue
		}
		escalated++
		e.log.WithFields(logrus.Fields{
			"instance_id":  stage.WorkflowInstanceID,
			"stage_number": stage.StageNumber,
			"deadline":     stage.Deadline,
		}).Warn("⚠️ 阶段已超期升级")
		e.publishEvent(ctx, events.WorkflowEvent{
			WorkflowInstanceID: stage.WorkflowInstanceID,
			Action:             workflow.HistoryActionStageEscalated,
			StageNumber:        stage.StageNumber,
		})
	}
	return escalated, nil
}
