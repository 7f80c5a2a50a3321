package approval

import (
	"github.com/machshop/approval-engine/pkg/core/workflow"
)

// StageEvaluation 阶段完成度判定结果
type StageEvaluation struct {
	IsComplete bool   `json:"is_complete"`
	IsRejected bool   `json:"is_rejected"`
	Outcome    string `json:"outcome,omitempty"` // IsComplete时为APPROVED或REJECTED
}

// EvaluateStageCompletion 判定一个阶段实例是否完成及其结论（纯函数）
//
// 对阶段上的每个协调组：以组配置的TotalAssignments为分母，
// 只统计coordinationMetadata.assignmentIds中列出的Assignment的动作。
// 阶段完成当且仅当每个必审组都有定论；任一必审组否决则阶段结论为REJECTED。
// OPTIONAL组不参与门控，其成员投不投票都不阻塞阶段。
func EvaluateStageCompletion(stage *workflow.StageInstance) (StageEvaluation, error) {
	groups := gatingGroups(stage.Groups)
	if len(groups) == 0 {
		// 无协调组时将全部Assignment视为一个默认组
		groups = []workflow.ParallelCoordinationGroup{implicitGroup(stage)}
	}

	params := PolicyParams{
		MinimumApprovals:  stage.MinimumApprovals,
		ApprovalThreshold: stage.ApprovalThreshold,
	}

	byID := make(map[string]*workflow.Assignment, len(stage.Assignments))
	for i := range stage.Assignments {
		byID[stage.Assignments[i].ID] = &stage.Assignments[i]
	}

	anyRejected := false
	for i := range groups {
		counts := countVotes(&groups[i], byID)
		verdict, err := Evaluate(stage.ApprovalType, counts, params)
		if err != nil {
			return StageEvaluation{}, err
		}
		if !verdict.Decided {
			return StageEvaluation{}, nil
		}
		if !verdict.Approved {
			anyRejected = true
		}
	}

	if anyRejected {
		return StageEvaluation{IsComplete: true, IsRejected: true, Outcome: workflow.OutcomeRejected}, nil
	}
	return StageEvaluation{IsComplete: true, Outcome: workflow.OutcomeApproved}, nil
}

// gatingGroups 过滤出参与阶段门控的协调组
// 全部组都是OPTIONAL的退化配置下保留原有门控，避免阶段被判定为立即完成
func gatingGroups(groups []workflow.ParallelCoordinationGroup) []workflow.ParallelCoordinationGroup {
	required := make([]workflow.ParallelCoordinationGroup, 0, len(groups))
	for i := range groups {
		if groups[i].Metadata.GroupType != workflow.GroupTypeOptional {
			required = append(required, groups[i])
		}
	}
	if len(required) == 0 {
		return groups
	}
	return required
}

// countVotes 统计一个组内的通过/否决票
func countVotes(group *workflow.ParallelCoordinationGroup, byID map[string]*workflow.Assignment) VoteCounts {
	counts := VoteCounts{Total: group.TotalAssignments}
	for _, id := range group.Metadata.AssignmentIDs {
		a, ok := byID[id]
		if !ok {
			continue // 组登记的名额尚未落位成Assignment行
		}
		switch a.Action {
		case workflow.ActionApproved:
			counts.Approved++
		case workflow.ActionRejected:
			counts.Rejected++
		}
	}
	return counts
}

// implicitGroup 无显式协调组时的兜底组：覆盖阶段全部Assignment
func implicitGroup(stage *workflow.StageInstance) workflow.ParallelCoordinationGroup {
	ids := make([]string, 0, len(stage.Assignments))
	for i := range stage.Assignments {
		ids = append(ids, stage.Assignments[i].ID)
	}
	return workflow.ParallelCoordinationGroup{
		StageInstanceID:  stage.ID,
		ParallelGroup:    workflow.DefaultParallelGroup,
		TotalAssignments: len(ids),
		Metadata: workflow.CoordinationMetadata{
			AssignmentIDs: ids,
			GroupType:     workflow.GroupTypeRequired,
		},
	}
}
