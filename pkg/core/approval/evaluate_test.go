package approval

import (
	"testing"

	"github.com/machshop/approval-engine/pkg/core/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeStage(policy string, actions ...string) *workflow.StageInstance {
	stage := &workflow.StageInstance{
		ID:           "stage-1",
		ApprovalType: policy,
	}
	for i, action := range actions {
		stage.Assignments = append(stage.Assignments, workflow.Assignment{
			ID:              "asg-" + string(rune('a'+i)),
			StageInstanceID: stage.ID,
			AssignedToID:    "user-" + string(rune('a'+i)),
			Action:          action,
		})
	}
	return stage
}

func TestEvaluateStageCompletion_ImplicitGroup(t *testing.T) {
	// 无协调组时全部分配视为一个默认组
	stage := makeStage(PolicyMajority, workflow.ActionApproved, workflow.ActionApproved, "")
	eval, err := EvaluateStageCompletion(stage)
	require.NoError(t, err)
	assert.True(t, eval.IsComplete)
	assert.False(t, eval.IsRejected)
	assert.Equal(t, workflow.OutcomeApproved, eval.Outcome)
}

func TestEvaluateStageCompletion_Pending(t *testing.T) {
	stage := makeStage(PolicyUnanimous, workflow.ActionApproved, "", "")
	eval, err := EvaluateStageCompletion(stage)
	require.NoError(t, err)
	assert.False(t, eval.IsComplete)
}

func TestEvaluateStageCompletion_UnanimousVeto(t *testing.T) {
	// 一票否决立即定论
	stage := makeStage(PolicyUnanimous, workflow.ActionRejected, "", "")
	eval, err := EvaluateStageCompletion(stage)
	require.NoError(t, err)
	assert.True(t, eval.IsComplete)
	assert.True(t, eval.IsRejected)
	assert.Equal(t, workflow.OutcomeRejected, eval.Outcome)
}

func TestEvaluateStageCompletion_AllGroupsMustDecide(t *testing.T) {
	// 两个并行组：一组已定论另一组未定论，阶段未完成
	stage := makeStage(PolicyAny, workflow.ActionApproved, "")
	stage.Groups = []workflow.ParallelCoordinationGroup{
		{
			StageInstanceID:  stage.ID,
			ParallelGroup:    "TECH",
			TotalAssignments: 1,
			Metadata: workflow.CoordinationMetadata{
				AssignmentIDs: []string{stage.Assignments[0].ID},
				GroupType:     workflow.GroupTypeParallelRequired,
			},
		},
		{
			StageInstanceID:  stage.ID,
			ParallelGroup:    "FINANCE",
			TotalAssignments: 1,
			Metadata: workflow.CoordinationMetadata{
				AssignmentIDs: []string{stage.Assignments[1].ID},
				GroupType:     workflow.GroupTypeParallelRequired,
			},
		},
	}

	eval, err := EvaluateStageCompletion(stage)
	require.NoError(t, err)
	assert.False(t, eval.IsComplete)

	// 第二组投票后阶段完成
	stage.Assignments[1].Action = workflow.ActionApproved
	eval, err = EvaluateStageCompletion(stage)
	require.NoError(t, err)
	assert.True(t, eval.IsComplete)
	assert.Equal(t, workflow.OutcomeApproved, eval.Outcome)
}

func TestEvaluateStageCompletion_AuthoritativeDenominator(t *testing.T) {
	// 组登记名额3但只落位2条Assignment：以3为分母
	stage := makeStage(PolicyMajority, workflow.ActionApproved, workflow.ActionApproved)
	stage.Groups = []workflow.ParallelCoordinationGroup{{
		StageInstanceID:  stage.ID,
		ParallelGroup:    workflow.DefaultParallelGroup,
		TotalAssignments: 3,
		Metadata: workflow.CoordinationMetadata{
			AssignmentIDs: []string{stage.Assignments[0].ID, stage.Assignments[1].ID, "asg-missing"},
			GroupType:     workflow.GroupTypeRequired,
		},
	}}

	eval, err := EvaluateStageCompletion(stage)
	require.NoError(t, err)
	// 2/3已是多数
	assert.True(t, eval.IsComplete)
	assert.Equal(t, workflow.OutcomeApproved, eval.Outcome)
}

func TestEvaluateStageCompletion_OptionalGroupDoesNotGate(t *testing.T) {
	// 必审组已定论，OPTIONAL组一人未投票：阶段完成
	stage := makeStage(PolicyMajority, workflow.ActionApproved, workflow.ActionApproved, "", "")
	stage.Groups = []workflow.ParallelCoordinationGroup{
		{
			StageInstanceID:  stage.ID,
			ParallelGroup:    workflow.DefaultParallelGroup,
			TotalAssignments: 3,
			Metadata: workflow.CoordinationMetadata{
				AssignmentIDs: []string{stage.Assignments[0].ID, stage.Assignments[1].ID, stage.Assignments[2].ID},
				GroupType:     workflow.GroupTypeRequired,
			},
		},
		{
			StageInstanceID:  stage.ID,
			ParallelGroup:    "OBSERVERS",
			TotalAssignments: 1,
			Metadata: workflow.CoordinationMetadata{
				AssignmentIDs: []string{stage.Assignments[3].ID},
				GroupType:     workflow.GroupTypeOptional,
			},
		},
	}

	eval, err := EvaluateStageCompletion(stage)
	require.NoError(t, err)
	assert.True(t, eval.IsComplete)
	assert.Equal(t, workflow.OutcomeApproved, eval.Outcome)
}

func TestEvaluateStageCompletion_AllOptionalGroupsStillGate(t *testing.T) {
	// 退化配置：阶段只有OPTIONAL组时保留原有门控，不立即判完成
	stage := makeStage(PolicyAny, "")
	stage.Groups = []workflow.ParallelCoordinationGroup{{
		StageInstanceID:  stage.ID,
		ParallelGroup:    "OBSERVERS",
		TotalAssignments: 1,
		Metadata: workflow.CoordinationMetadata{
			AssignmentIDs: []string{stage.Assignments[0].ID},
			GroupType:     workflow.GroupTypeOptional,
		},
	}}

	eval, err := EvaluateStageCompletion(stage)
	require.NoError(t, err)
	assert.False(t, eval.IsComplete)
}

func TestEvaluateStageCompletion_IgnoresUnlistedVotes(t *testing.T) {
	// 不在assignmentIds里的动作不计票
	stage := makeStage(PolicyAny, workflow.ActionApproved, workflow.ActionApproved)
	stage.Groups = []workflow.ParallelCoordinationGroup{{
		StageInstanceID:  stage.ID,
		ParallelGroup:    workflow.DefaultParallelGroup,
		TotalAssignments: 1,
		Metadata: workflow.CoordinationMetadata{
			AssignmentIDs: []string{stage.Assignments[1].ID},
			GroupType:     workflow.GroupTypeRequired,
		},
	}}

	eval, err := EvaluateStageCompletion(stage)
	require.NoError(t, err)
	assert.True(t, eval.IsComplete)
}
