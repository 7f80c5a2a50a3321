package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/machshop/approval-engine/pkg/core/events"
	"github.com/machshop/approval-engine/pkg/core/signature"
	"github.com/machshop/approval-engine/pkg/core/workflow"
)

// AssignmentInput 单条分配输入
type AssignmentInput struct {
	UserID         string `json:"user_id" binding:"required"`
	RoleID         string `json:"role_id,omitempty"`
	AssignmentType string `json:"assignment_type,omitempty"`
	ParallelGroup  string `json:"parallel_group,omitempty"`
}

// ApprovalInput 审批动作输入
type ApprovalInput struct {
	AssignmentID string `json:"assignment_id"`
	Action       string `json:"action" binding:"required"`
	Notes        string `json:"notes,omitempty"`
}

// SignatureInput 随审批提交的签名输入
type SignatureInput struct {
	Password        string `json:"password"`
	SignatureType   string `json:"signature_type,omitempty"`
	SignatureLevel  string `json:"signature_level,omitempty"`
	SignatureReason string `json:"signature_reason,omitempty"`
}

// SignatureVerification 工作流级验签汇总结果
type SignatureVerification struct {
	IsValid            bool     `json:"is_valid"`
	SignatureCount     int      `json:"signature_count"`
	InvalidSignatures  []string `json:"invalid_signatures"`
	VerificationErrors []string `json:"verification_errors"`
}

// AssignUsersToStage 为阶段批量创建审批人分配（单事务）
// 分配按parallelGroup归入协调组，默认组为DEFAULT；
// 标签命中已有组时并入该组而不是另建同名组
func (e *Engine) AssignUsersToStage(ctx context.Context, stageInstanceID string, inputs []AssignmentInput) error {
	if len(inputs) == 0 {
		return &workflow.ValidationError{Field: "assignments", Msg: "at least one assignment is required"}
	}
	for i := range inputs {
		if inputs[i].UserID == "" {
			return &workflow.ValidationError{Field: "assignments",
				Msg: fmt.Sprintf("assignment %d is missing a user id", i)}
		}
	}

	stage, err := e.repo.GetStageInstance(ctx, stageInstanceID)
	if err != nil {
		return workflow.WrapPersistence("Failed to load stage instance", err)
	}
	if stage == nil {
		return &workflow.NotFoundError{Entity: "stage instance", ID: stageInstanceID,
			Msg: fmt.Sprintf("Stage instance %s not found", stageInstanceID)}
	}

	specs := make([]AssignmentSpec, 0, len(inputs))
	for _, in := range inputs {
		specs = append(specs, AssignmentSpec{
			UserID:         in.UserID,
			RoleID:         in.RoleID,
			AssignmentType: in.AssignmentType,
			ParallelGroup:  in.ParallelGroup,
		})
	}
	assignments, newGroups, updatedGroups := mergeAssignments(stage, specs)

	if err := e.repo.CreateAssignments(ctx, stageInstanceID, assignments, newGroups, updatedGroups); err != nil {
		return workflow.WrapPersistence("Failed to assign users to stage", err)
	}
	return nil
}

// ProcessApprovalAction 记录一次审批动作并触发阶段完成检查
//
// 失败路径：分配不存在→NotFoundError；操作者不是被分配人→PermissionDeniedError；
// 已有动作→StateError。成功后级联进入阶段/工作流解决。
func (e *Engine) ProcessApprovalAction(ctx context.Context, input ApprovalInput, performedByID string) error {
	if !validAction(input.Action) {
		return &workflow.ValidationError{Field: "action",
			Msg: fmt.Sprintf("unsupported approval action: %s", input.Action)}
	}

	a, err := e.repo.GetAssignment(ctx, input.AssignmentID)
	if err != nil {
		return workflow.WrapPersistence("Failed to load assignment", err)
	}
	if a == nil {
		return &workflow.NotFoundError{Entity: "assignment", ID: input.AssignmentID,
			Msg: fmt.Sprintf("Assignment %s not found", input.AssignmentID)}
	}
	if a.AssignedToID != performedByID {
		return &workflow.PermissionDeniedError{UserID: performedByID, AssignmentID: a.ID}
	}
	if a.Action != "" {
		return &workflow.StateError{Entity: "assignment", ID: a.ID,
			Msg: "Assignment already has an action"}
	}

	stage, err := e.repo.GetStageInstance(ctx, a.StageInstanceID)
	if err != nil {
		return workflow.WrapPersistence("Failed to load stage instance", err)
	}
	if stage == nil {
		return &workflow.NotFoundError{Entity: "stage instance", ID: a.StageInstanceID,
			Msg: fmt.Sprintf("Stage instance %s not found", a.StageInstanceID)}
	}

	if e.cfg.EnforceSignatures && a.SignatureID() == "" {
		required, err := e.signatureRequiredForStage(ctx, stage)
		if err != nil {
			return err
		}
		if required {
			return &workflow.StateError{Entity: "assignment", ID: a.ID,
				Msg: "Assignment requires an electronic signature"}
		}
	}

	ok, err := e.repo.RecordAssignmentAction(ctx, a.ID, input.Action, performedByID, input.Notes, time.Now())
	if err != nil {
		return workflow.WrapPersistence("Failed to record approval action", err)
	}
	if !ok {
		// 与并发提交竞争失败：行级CAS已拒绝本次写入
		return &workflow.StateError{Entity: "assignment", ID: a.ID,
			Msg: "Assignment already has an action"}
	}

	history := workflow.NewHistoryEntry(stage.WorkflowInstanceID, workflow.HistoryActionApproval, performedByID,
		fmt.Sprintf("Stage %d: %s", stage.StageNumber, input.Action))
	if err := e.repo.AppendHistory(ctx, history); err != nil {
		return workflow.WrapPersistence("Failed to record approval action", err)
	}
	e.publishEvent(ctx, events.WorkflowEvent{
		WorkflowInstanceID: stage.WorkflowInstanceID,
		Action:             workflow.HistoryActionApproval,
		PerformedByID:      performedByID,
		StageNumber:        stage.StageNumber,
		Notes:              input.Action,
	})

	return e.CheckStageCompletion(ctx, a.StageInstanceID)
}

// ProcessApprovalWithSignature 创建电子签名后执行审批动作
// 签名绑定到workflow_assignment实体，签名文档为动作快照
func (e *Engine) ProcessApprovalWithSignature(ctx context.Context, approvalInput ApprovalInput,
	signatureInput SignatureInput, performedByID string) error {

	// 动作不合法就不留下悬空签名
	if !validAction(approvalInput.Action) {
		return &workflow.ValidationError{Field: "action",
			Msg: fmt.Sprintf("unsupported approval action: %s", approvalInput.Action)}
	}

	a, err := e.repo.GetAssignment(ctx, approvalInput.AssignmentID)
	if err != nil {
		return workflow.WrapPersistence("Failed to load assignment", err)
	}
	if a == nil {
		return &workflow.NotFoundError{Entity: "assignment", ID: approvalInput.AssignmentID,
			Msg: fmt.Sprintf("Assignment %s not found", approvalInput.AssignmentID)}
	}
	if a.AssignedToID != performedByID {
		return &workflow.PermissionDeniedError{UserID: performedByID, AssignmentID: a.ID}
	}
	if a.Action != "" {
		return &workflow.StateError{Entity: "assignment", ID: a.ID,
			Msg: "Assignment already has an action"}
	}

	sig, err := e.signatures.CreateSignature(ctx, signature.CreateRequest{
		UserID:           performedByID,
		Password:         signatureInput.Password,
		SignatureType:    signatureInput.SignatureType,
		SignatureLevel:   signatureInput.SignatureLevel,
		SignedEntityType: signature.SignedEntityTypeWorkflowAssignment,
		SignedEntityID:   a.ID,
		SignatureReason:  signatureInput.SignatureReason,
		SignedDocument: map[string]any{
			"assignmentId": a.ID,
			"action":       approvalInput.Action,
			"notes":        approvalInput.Notes,
			"timestamp":    time.Now().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("创建电子签名失败: %w", err)
	}

	if err := e.repo.SetAssignmentSignature(ctx, a.ID, sig.ID); err != nil {
		return workflow.WrapPersistence("Failed to bind signature to assignment", err)
	}

	return e.ProcessApprovalAction(ctx, approvalInput, performedByID)
}

// IsSignatureRequired 判断分配是否要求电子签名
// 仅为咨询语义：除非配置EnforceSignatures，否则不阻断审批动作
func (e *Engine) IsSignatureRequired(ctx context.Context, assignmentID string) (bool, error) {
	a, err := e.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return false, workflow.WrapPersistence("Failed to load assignment", err)
	}
	if a == nil {
		return false, &workflow.NotFoundError{Entity: "assignment", ID: assignmentID,
			Msg: fmt.Sprintf("Assignment %s not found", assignmentID)}
	}
	stage, err := e.repo.GetStageInstance(ctx, a.StageInstanceID)
	if err != nil {
		return false, workflow.WrapPersistence("Failed to load stage instance", err)
	}
	if stage == nil {
		return false, nil
	}
	return e.signatureRequiredForStage(ctx, stage)
}

// signatureRequiredForStage 阶段元数据或定义元数据携带requireSignature即要求签名
func (e *Engine) signatureRequiredForStage(ctx context.Context, stage *workflow.StageInstance) (bool, error) {
	inst, err := e.repo.GetInstance(ctx, stage.WorkflowInstanceID)
	if err != nil {
		return false, workflow.WrapPersistence("Failed to load workflow", err)
	}
	var defMeta map[string]any
	if inst != nil {
		def, err := e.defs.GetDefinition(ctx, inst.WorkflowDefinitionID)
		if err != nil {
			return false, workflow.WrapPersistence("Failed to load workflow definition", err)
		}
		if def != nil {
			defMeta = def.Metadata
		}
	}
	return workflow.RequireSignature(stage.Metadata, defMeta), nil
}

// VerifyWorkflowSignatures 校验实例下全部已绑定签名
// IsValid为所有签名校验结果的逻辑与
func (e *Engine) VerifyWorkflowSignatures(ctx context.Context, workflowID string) (*SignatureVerification, error) {
	inst, err := e.repo.GetInstance(ctx, workflowID)
	if err != nil {
		return nil, workflow.WrapPersistence("Failed to load workflow", err)
	}
	if inst == nil {
		return nil, &workflow.NotFoundError{Entity: "workflow instance", ID: workflowID,
			Msg: fmt.Sprintf("Workflow instance %s not found", workflowID)}
	}

	signed, err := e.repo.ListSignedAssignments(ctx, workflowID)
	if err != nil {
		return nil, workflow.WrapPersistence("Failed to list signed assignments", err)
	}

	result := &SignatureVerification{
		IsValid:            true,
		InvalidSignatures:  []string{},
		VerificationErrors: []string{},
	}
	for i := range signed {
		a := &signed[i]
		sigID := a.SignatureID()
		result.SignatureCount++

		verification, err := e.signatures.VerifySignature(ctx, signature.VerifyRequest{
			SignatureID:      sigID,
			UserID:           a.ActionTakenByID,
			SignedEntityType: signature.SignedEntityTypeWorkflowAssignment,
			SignedEntityID:   a.ID,
		})
		if err != nil {
			result.IsValid = false
			result.VerificationErrors = append(result.VerificationErrors,
				fmt.Sprintf("assignment %s: %v", a.ID, err))
			continue
		}
		if !verification.IsValid {
			result.IsValid = false
			result.InvalidSignatures = append(result.InvalidSignatures, sigID)
		}
	}
	return result, nil
}

// validAction 判断提交的审批动作合法
func validAction(action string) bool {
	switch action {
	case workflow.ActionApproved, workflow.ActionRejected,
		workflow.ActionChangesRequested, workflow.ActionDelegated:
		return true
	}
	return false
}
