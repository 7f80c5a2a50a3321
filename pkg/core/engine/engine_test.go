package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machshop/approval-engine/pkg/core/builder"
	"github.com/machshop/approval-engine/pkg/core/rules"
	"github.com/machshop/approval-engine/pkg/core/workflow"
	"github.com/machshop/approval-engine/pkg/storage"
	"github.com/machshop/approval-engine/pkg/storage/sqlite"
)

func setupEngine(t *testing.T, opts ...Option) (*Engine, *storage.SQLApprovalRepo) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "engine_test.db")
	repo, err := sqlite.NewApprovalRepoFromDSN(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return New(repo, opts...), repo
}

// seedReviewDefinition 保存两阶段质检定义：
// 阶段1为三人多数决，阶段2为质量主管单人一致决
func seedReviewDefinition(t *testing.T, eng *Engine) *workflow.WorkflowDefinition {
	t.Helper()
	def, err := builder.NewDefinitionBuilder("质量放行", "QUALITY_REVIEW").
		WithStage(builder.StageSpec{
			Name:         "检验员会签",
			ApprovalType: "MAJORITY",
			Metadata:     map[string]any{"assignees": []any{"u1", "u2", "u3"}},
		}).
		WithStage(builder.StageSpec{
			Name:         "质量主管放行",
			ApprovalType: "UNANIMOUS",
			Metadata:     map[string]any{"assignees": []any{"qa"}},
		}).
		Build()
	require.NoError(t, err)
	require.NoError(t, eng.Repo().SaveDefinition(context.Background(), def))
	return def
}

func startReview(t *testing.T, eng *Engine, def *workflow.WorkflowDefinition) *workflow.WorkflowInstance {
	t.Helper()
	inst, err := eng.StartWorkflow(context.Background(), StartWorkflowInput{
		WorkflowID: def.ID,
		EntityType: "production_batch",
		EntityID:   "BATCH-001",
		Priority:   "HIGH",
	}, "alice")
	require.NoError(t, err)
	return inst
}

// assignmentFor 在阶段中按用户查找分配ID
func assignmentFor(t *testing.T, stage *workflow.StageInstance, userID string) string {
	t.Helper()
	for i := range stage.Assignments {
		if stage.Assignments[i].AssignedToID == userID && stage.Assignments[i].Action == "" {
			return stage.Assignments[i].ID
		}
	}
	t.Fatalf("用户%s在阶段%d没有未处理分配", userID, stage.StageNumber)
	return ""
}

func approve(t *testing.T, eng *Engine, assignmentID, userID string) {
	t.Helper()
	err := eng.ProcessApprovalAction(context.Background(), ApprovalInput{
		AssignmentID: assignmentID,
		Action:       workflow.ActionApproved,
	}, userID)
	require.NoError(t, err)
}

func TestStartWorkflow(t *testing.T) {
	eng, _ := setupEngine(t)
	def := seedReviewDefinition(t, eng)

	inst := startReview(t, eng, def)
	assert.Equal(t, workflow.InstanceStatusInProgress, inst.Status)
	assert.Equal(t, "QUALITY_REVIEW", inst.WorkflowType)
	require.Len(t, inst.Stages, 2)

	first := inst.Stages[0]
	assert.Equal(t, workflow.StageStatusInProgress, first.Status)
	require.Len(t, first.Assignments, 3)
	require.Len(t, first.Groups, 1)
	assert.Equal(t, 3, first.Groups[0].TotalAssignments)

	assert.Equal(t, workflow.StageStatusPending, inst.Stages[1].Status)
	assert.Empty(t, inst.Stages[1].Assignments)

	require.NotEmpty(t, inst.History)
	assert.Equal(t, workflow.HistoryActionStarted, inst.History[0].Action)
}

func TestStartWorkflow_Validation(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	_, err := eng.StartWorkflow(ctx, StartWorkflowInput{}, "alice")
	assert.ErrorIs(t, err, workflow.ErrValidation)

	_, err = eng.StartWorkflow(ctx, StartWorkflowInput{
		WorkflowID: "no-such-def", EntityType: "doc", EntityID: "D-1",
	}, "alice")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestApprovalFlow_FullCompletion(t *testing.T) {
	eng, _ := setupEngine(t)
	def := seedReviewDefinition(t, eng)
	inst := startReview(t, eng, def)
	ctx := context.Background()

	// 第一票不足多数，阶段保持进行中
	approve(t, eng, assignmentFor(t, &inst.Stages[0], "u1"), "u1")
	got, err := eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageStatusInProgress, got.Stages[0].Status)

	// 第二票达成2/3多数：阶段1解决，阶段2激活并分配qa
	approve(t, eng, assignmentFor(t, &got.Stages[0], "u2"), "u2")
	got, err = eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageStatusCompleted, got.Stages[0].Status)
	assert.Equal(t, workflow.OutcomeApproved, got.Stages[0].Outcome)
	assert.Equal(t, workflow.StageStatusInProgress, got.Stages[1].Status)
	require.Len(t, got.Stages[1].Assignments, 1)
	assert.Equal(t, "qa", got.Stages[1].Assignments[0].AssignedToID)

	// 终审通过：实例完成，进度100
	approve(t, eng, got.Stages[1].Assignments[0].ID, "qa")
	got, err = eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.InstanceStatusCompleted, got.Status)
	assert.Equal(t, 100, got.ProgressPercentage)

	actions := make([]string, 0, len(got.History))
	for _, h := range got.History {
		actions = append(actions, h.Action)
	}
	assert.Contains(t, actions, workflow.HistoryActionStarted)
	assert.Contains(t, actions, workflow.HistoryActionApproval)
	assert.Contains(t, actions, workflow.HistoryActionStageCompleted)
	assert.Contains(t, actions, workflow.HistoryActionStageActivated)
	assert.Contains(t, actions, workflow.HistoryActionCompleted)
}

func TestApprovalFlow_Rejection(t *testing.T) {
	eng, _ := setupEngine(t)
	def := seedReviewDefinition(t, eng)
	inst := startReview(t, eng, def)
	ctx := context.Background()

	// 三人多数决下两票否决：多数不可达，阶段以REJECTED解决
	require.NoError(t, eng.ProcessApprovalAction(ctx, ApprovalInput{
		AssignmentID: assignmentFor(t, &inst.Stages[0], "u1"),
		Action:       workflow.ActionRejected,
	}, "u1"))
	require.NoError(t, eng.ProcessApprovalAction(ctx, ApprovalInput{
		AssignmentID: assignmentFor(t, &inst.Stages[0], "u2"),
		Action:       workflow.ActionRejected,
	}, "u2"))

	got, err := eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.InstanceStatusRejected, got.Status)
	assert.Equal(t, workflow.OutcomeRejected, got.Stages[0].Outcome)
	// 后续阶段保持未激活
	assert.Equal(t, workflow.StageStatusPending, got.Stages[1].Status)
}

func TestProcessApprovalAction_Errors(t *testing.T) {
	eng, _ := setupEngine(t)
	def := seedReviewDefinition(t, eng)
	inst := startReview(t, eng, def)
	ctx := context.Background()
	asgID := assignmentFor(t, &inst.Stages[0], "u1")

	// 非法动作
	err := eng.ProcessApprovalAction(ctx, ApprovalInput{AssignmentID: asgID, Action: "MAYBE"}, "u1")
	assert.ErrorIs(t, err, workflow.ErrValidation)

	// 分配不存在
	err = eng.ProcessApprovalAction(ctx, ApprovalInput{AssignmentID: uuid.NewString(), Action: workflow.ActionApproved}, "u1")
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	// 冒用他人分配
	err = eng.ProcessApprovalAction(ctx, ApprovalInput{AssignmentID: asgID, Action: workflow.ActionApproved}, "u2")
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)

	// 重复动作
	approve(t, eng, asgID, "u1")
	err = eng.ProcessApprovalAction(ctx, ApprovalInput{AssignmentID: asgID, Action: workflow.ActionRejected}, "u1")
	assert.ErrorIs(t, err, workflow.ErrState)
	assert.Contains(t, err.Error(), "already has an action")
}

func TestCancelWorkflow(t *testing.T) {
	eng, _ := setupEngine(t)
	def := seedReviewDefinition(t, eng)
	inst := startReview(t, eng, def)
	ctx := context.Background()

	require.NoError(t, eng.CancelWorkflow(ctx, inst.ID, "requirements changed", "alice"))

	got, err := eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.InstanceStatusCancelled, got.Status)
	assert.Equal(t, "requirements changed", got.CancellationReason)

	// 终态实例不可再取消或完成
	err = eng.CancelWorkflow(ctx, inst.ID, "again", "alice")
	assert.ErrorIs(t, err, workflow.ErrState)
	err = eng.CompleteWorkflow(ctx, inst.ID, "alice")
	assert.ErrorIs(t, err, workflow.ErrState)

	// 不存在的实例
	err = eng.CancelWorkflow(ctx, uuid.NewString(), "x", "alice")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

// amountContextProvider 返回固定实体金额，供路由规则求值
type amountContextProvider struct{ amount int }

func (p amountContextProvider) GetContext(ctx context.Context, entityType, entityID string) (map[string]any, error) {
	return map[string]any{"amount": p.amount}, nil
}

func TestSkipToStageRouting(t *testing.T) {
	eng, _ := setupEngine(t, WithContextProvider(amountContextProvider{amount: 50000}))
	ctx := context.Background()

	def, err := builder.NewDefinitionBuilder("采购审批", "PURCHASE").
		WithStage(builder.StageSpec{Name: "初审", Metadata: map[string]any{"assignees": []any{"u1"}}}).
		WithStage(builder.StageSpec{Name: "复核", Metadata: map[string]any{"assignees": []any{"u2"}}}).
		WithStage(builder.StageSpec{Name: "终审", Metadata: map[string]any{"assignees": []any{"gm"}}}).
		Build()
	require.NoError(t, err)
	require.NoError(t, eng.Repo().SaveDefinition(ctx, def))

	// 大额采购直达终审
	require.NoError(t, eng.Repo().SaveRule(ctx, &rules.WorkflowRule{
		ID: uuid.NewString(), WorkflowType: "PURCHASE", Name: "大额直达终审", IsActive: true, Priority: 1,
		Condition: rules.Condition{Field: "amount", Operator: rules.OpGt, Value: 10000},
		Action:    rules.RuleAction{Type: rules.ActionSkipToStage, SkipToStageNumber: 3},
	}))

	inst, err := eng.StartWorkflow(ctx, StartWorkflowInput{
		WorkflowID: def.ID, EntityType: "purchase_order", EntityID: "PO-9",
	}, "alice")
	require.NoError(t, err)

	approve(t, eng, assignmentFor(t, &inst.Stages[0], "u1"), "u1")

	got, err := eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageStatusCompleted, got.Stages[0].Status)
	assert.Equal(t, workflow.StageStatusSkipped, got.Stages[1].Status)
	assert.Equal(t, workflow.OutcomeSkipped, got.Stages[1].Outcome)
	assert.Equal(t, workflow.StageStatusInProgress, got.Stages[2].Status)
	require.Len(t, got.Stages[2].Assignments, 1)
	assert.Equal(t, "gm", got.Stages[2].Assignments[0].AssignedToID)

	// 终审通过后整个流程完成
	approve(t, eng, got.Stages[2].Assignments[0].ID, "gm")
	got, err = eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.InstanceStatusCompleted, got.Status)
}

func TestSkipToStageRouting_InvalidTargetFallsBack(t *testing.T) {
	eng, _ := setupEngine(t, WithContextProvider(amountContextProvider{amount: 50000}))
	ctx := context.Background()

	def, err := builder.NewDefinitionBuilder("采购审批", "PURCHASE").
		WithStage(builder.StageSpec{Name: "初审", Metadata: map[string]any{"assignees": []any{"u1"}}}).
		WithStage(builder.StageSpec{Name: "复核", Metadata: map[string]any{"assignees": []any{"u2"}}}).
		Build()
	require.NoError(t, err)
	require.NoError(t, eng.Repo().SaveDefinition(ctx, def))

	// 规则指向不存在的阶段9：退回顺序推进
	require.NoError(t, eng.Repo().SaveRule(ctx, &rules.WorkflowRule{
		ID: uuid.NewString(), WorkflowType: "PURCHASE", IsActive: true, Priority: 1,
		Condition: rules.Condition{Field: "amount", Operator: rules.OpGt, Value: 10000},
		Action:    rules.RuleAction{Type: rules.ActionSkipToStage, SkipToStageNumber: 9},
	}))

	inst, err := eng.StartWorkflow(ctx, StartWorkflowInput{
		WorkflowID: def.ID, EntityType: "purchase_order", EntityID: "PO-10",
	}, "alice")
	require.NoError(t, err)

	approve(t, eng, assignmentFor(t, &inst.Stages[0], "u1"), "u1")

	got, err := eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageStatusInProgress, got.Stages[1].Status)
	require.Len(t, got.Stages[1].Assignments, 1)
	assert.Equal(t, "u2", got.Stages[1].Assignments[0].AssignedToID)
}

func TestGetMyTasksAndProgress(t *testing.T) {
	eng, _ := setupEngine(t)
	def := seedReviewDefinition(t, eng)
	inst := startReview(t, eng, def)
	ctx := context.Background()

	page, err := eng.GetMyTasks(ctx, "u1", storage.TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Tasks, 1)
	assert.Equal(t, inst.ID, page.Tasks[0].WorkflowID)
	assert.Equal(t, "检验员会签", page.Tasks[0].StageName)

	// 空用户拒绝
	_, err = eng.GetMyTasks(ctx, "", storage.TaskFilter{})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	progress, err := eng.GetWorkflowProgress(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.TotalStages)
	assert.Equal(t, 0, progress.CompletedStages)
	assert.Equal(t, 1, progress.CurrentStageNumber)
	assert.Equal(t, 3, progress.TotalAssignments)
	assert.Equal(t, 0, progress.CompletedAssignments)

	// 推进到完成后进度为100
	approve(t, eng, assignmentFor(t, &inst.Stages[0], "u1"), "u1")
	approve(t, eng, assignmentFor(t, &inst.Stages[0], "u2"), "u2")
	got, err := eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	approve(t, eng, got.Stages[1].Assignments[0].ID, "qa")

	progress, err = eng.GetWorkflowProgress(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.InstanceStatusCompleted, progress.Status)
	assert.Equal(t, float64(100), progress.ProgressPercentage)
	assert.Equal(t, 2, progress.CompletedStages)
}

func TestEscalateOverdueStages(t *testing.T) {
	eng, repo := setupEngine(t)
	def := seedReviewDefinition(t, eng)
	inst := startReview(t, eng, def)
	ctx := context.Background()

	count, err := eng.EscalateOverdueStages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	past := time.Now().Add(-time.Hour)
	_, err = repo.GetDB().Exec(repo.GetDB().Rebind(
		`UPDATE stage_instance SET deadline = ? WHERE id = ?`), past, inst.Stages[0].ID)
	require.NoError(t, err)

	count, err = eng.EscalateOverdueStages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageStatusEscalated, got.Stages[0].Status)
	// 升级不改变实例状态
	assert.Equal(t, workflow.InstanceStatusInProgress, got.Status)

	actions := make([]string, 0, len(got.History))
	for _, h := range got.History {
		actions = append(actions, h.Action)
	}
	assert.Contains(t, actions, workflow.HistoryActionStageEscalated)
}

func TestSignatureEnforcement(t *testing.T) {
	eng, _ := setupEngine(t, WithConfig(Config{EnforceSignatures: true}))
	ctx := context.Background()

	def, err := builder.NewDefinitionBuilder("质量放行", "QUALITY_REVIEW").
		WithStage(builder.StageSpec{
			Name: "主管放行",
			Metadata: map[string]any{
				"assignees":        []any{"qa"},
				"requireSignature": true,
			},
		}).
		Build()
	require.NoError(t, err)
	require.NoError(t, eng.Repo().SaveDefinition(ctx, def))

	inst, err := eng.StartWorkflow(ctx, StartWorkflowInput{
		WorkflowID: def.ID, EntityType: "production_batch", EntityID: "BATCH-7",
	}, "alice")
	require.NoError(t, err)
	asgID := inst.Stages[0].Assignments[0].ID

	required, err := eng.IsSignatureRequired(ctx, asgID)
	require.NoError(t, err)
	assert.True(t, required)

	// 无签名的审批动作被拒绝
	err = eng.ProcessApprovalAction(ctx, ApprovalInput{AssignmentID: asgID, Action: workflow.ActionApproved}, "qa")
	require.ErrorIs(t, err, workflow.ErrState)
	assert.Contains(t, err.Error(), "signature")

	// 携带签名的审批通过，并推动流程完成
	err = eng.ProcessApprovalWithSignature(ctx,
		ApprovalInput{AssignmentID: asgID, Action: workflow.ActionApproved},
		SignatureInput{Password: "secret", SignatureReason: "batch release"}, "qa")
	require.NoError(t, err)

	got, err := eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.InstanceStatusCompleted, got.Status)
	assert.NotEmpty(t, got.Stages[0].Assignments[0].SignatureID())

	verification, err := eng.VerifyWorkflowSignatures(ctx, inst.ID)
	require.NoError(t, err)
	assert.True(t, verification.IsValid)
	assert.Equal(t, 1, verification.SignatureCount)
	assert.Empty(t, verification.InvalidSignatures)
}

func TestAssignUsersToStage(t *testing.T) {
	eng, _ := setupEngine(t)
	def := seedReviewDefinition(t, eng)
	inst := startReview(t, eng, def)
	ctx := context.Background()

	err := eng.AssignUsersToStage(ctx, inst.Stages[0].ID, []AssignmentInput{
		{UserID: "backup-reviewer", AssignmentType: workflow.AssignmentTypeOptional},
	})
	require.NoError(t, err)

	// 同标签并入已有DEFAULT组：分母同步扩容，不另建同名组
	got, err := eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	assert.Len(t, got.Stages[0].Assignments, 4)
	require.Len(t, got.Stages[0].Groups, 1)
	assert.Equal(t, 4, got.Stages[0].Groups[0].TotalAssignments)
	assert.Len(t, got.Stages[0].Groups[0].Metadata.AssignmentIDs, 4)

	// 空输入与缺用户ID均拒绝
	err = eng.AssignUsersToStage(ctx, inst.Stages[0].ID, nil)
	assert.ErrorIs(t, err, workflow.ErrValidation)
	err = eng.AssignUsersToStage(ctx, inst.Stages[0].ID, []AssignmentInput{{}})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	// 阶段不存在
	err = eng.AssignUsersToStage(ctx, uuid.NewString(), []AssignmentInput{{UserID: "x"}})
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestAssignUsersToStage_BackupDoesNotBlockCompletion(t *testing.T) {
	eng, _ := setupEngine(t)
	def := seedReviewDefinition(t, eng)
	inst := startReview(t, eng, def)
	ctx := context.Background()

	// 中途给会签阶段补一名备审人
	require.NoError(t, eng.AssignUsersToStage(ctx, inst.Stages[0].ID, []AssignmentInput{
		{UserID: "backup", AssignmentType: workflow.AssignmentTypeOptional},
	}))

	// 三名检验员全票通过（4人组的多数），备审人未投票不阻塞阶段
	got, err := eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	approve(t, eng, assignmentFor(t, &got.Stages[0], "u1"), "u1")
	approve(t, eng, assignmentFor(t, &got.Stages[0], "u2"), "u2")
	approve(t, eng, assignmentFor(t, &got.Stages[0], "u3"), "u3")

	got, err = eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageStatusCompleted, got.Stages[0].Status)
	assert.Equal(t, workflow.OutcomeApproved, got.Stages[0].Outcome)
	assert.Equal(t, workflow.StageStatusInProgress, got.Stages[1].Status)
}

func TestAssignUsersToStage_OptionalGroupExemptFromGating(t *testing.T) {
	eng, _ := setupEngine(t)
	def := seedReviewDefinition(t, eng)
	inst := startReview(t, eng, def)
	ctx := context.Background()

	// 新标签下的纯观察员组：组类型OPTIONAL，不参与门控
	require.NoError(t, eng.AssignUsersToStage(ctx, inst.Stages[0].ID, []AssignmentInput{
		{UserID: "observer", AssignmentType: workflow.AssignmentTypeOptional, ParallelGroup: "OBSERVERS"},
	}))

	got, err := eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, got.Stages[0].Groups, 2)
	var observers *workflow.ParallelCoordinationGroup
	for i := range got.Stages[0].Groups {
		if got.Stages[0].Groups[i].ParallelGroup == "OBSERVERS" {
			observers = &got.Stages[0].Groups[i]
		}
	}
	require.NotNil(t, observers)
	assert.Equal(t, workflow.GroupTypeOptional, observers.Metadata.GroupType)

	// 原3人组达成多数即完成阶段，观察员从未投票
	approve(t, eng, assignmentFor(t, &got.Stages[0], "u1"), "u1")
	approve(t, eng, assignmentFor(t, &got.Stages[0], "u2"), "u2")

	got, err = eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageStatusCompleted, got.Stages[0].Status)
}

func TestGetWorkflowProgress_SkippedStagesNotCounted(t *testing.T) {
	eng, _ := setupEngine(t, WithContextProvider(amountContextProvider{amount: 50000}))
	ctx := context.Background()

	def, err := builder.NewDefinitionBuilder("采购审批", "PURCHASE").
		WithStage(builder.StageSpec{Name: "初审", Metadata: map[string]any{"assignees": []any{"u1"}}}).
		WithStage(builder.StageSpec{Name: "复核", Metadata: map[string]any{"assignees": []any{"u2"}}}).
		WithStage(builder.StageSpec{Name: "合规", Metadata: map[string]any{"assignees": []any{"u3"}}}).
		WithStage(builder.StageSpec{Name: "终审", Metadata: map[string]any{"assignees": []any{"gm"}}}).
		Build()
	require.NoError(t, err)
	require.NoError(t, eng.Repo().SaveDefinition(ctx, def))
	require.NoError(t, eng.Repo().SaveRule(ctx, &rules.WorkflowRule{
		ID: uuid.NewString(), WorkflowType: "PURCHASE", Name: "大额直达终审", IsActive: true, Priority: 1,
		Condition: rules.Condition{Field: "amount", Operator: rules.OpGt, Value: 10000},
		Action:    rules.RuleAction{Type: rules.ActionSkipToStage, SkipToStageNumber: 4},
	}))

	inst, err := eng.StartWorkflow(ctx, StartWorkflowInput{
		WorkflowID: def.ID, EntityType: "purchase_order", EntityID: "PO-11",
	}, "alice")
	require.NoError(t, err)

	// 初审通过后复核与合规被跳过：完成数与百分比只算COMPLETED
	approve(t, eng, assignmentFor(t, &inst.Stages[0], "u1"), "u1")

	progress, err := eng.GetWorkflowProgress(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, progress.TotalStages)
	assert.Equal(t, 1, progress.CompletedStages)
	assert.Equal(t, 2, progress.SkippedStages)
	assert.Equal(t, 4, progress.CurrentStageNumber)
	assert.Equal(t, float64(25), progress.ProgressPercentage)

	got, err := eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	approve(t, eng, got.Stages[3].Assignments[0].ID, "gm")

	progress, err = eng.GetWorkflowProgress(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.InstanceStatusCompleted, progress.Status)
	assert.Equal(t, 2, progress.CompletedStages)
	assert.Equal(t, 2, progress.SkippedStages)
	assert.Equal(t, float64(50), progress.ProgressPercentage)

	// 实例自身的持久化进度在完成时仍为100
	got, err = eng.GetWorkflow(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.ProgressPercentage)
}

func TestProcessApprovalWithSignature_InvalidActionLeavesNoSignature(t *testing.T) {
	eng, repo := setupEngine(t)
	def := seedReviewDefinition(t, eng)
	inst := startReview(t, eng, def)
	ctx := context.Background()
	asgID := assignmentFor(t, &inst.Stages[0], "u1")

	err := eng.ProcessApprovalWithSignature(ctx,
		ApprovalInput{AssignmentID: asgID, Action: "MAYBE"},
		SignatureInput{Password: "secret"}, "u1")
	assert.ErrorIs(t, err, workflow.ErrValidation)

	// 非法动作不产生悬空签名，分配保持未处理
	a, err := repo.GetAssignment(ctx, asgID)
	require.NoError(t, err)
	assert.Empty(t, a.SignatureID())
	assert.Empty(t, a.Action)
}
