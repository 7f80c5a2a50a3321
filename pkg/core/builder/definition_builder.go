// Package builder 提供工作流定义的链式构建器
package builder

import (
	"time"

	"github.com/google/uuid"
	"github.com/machshop/approval-engine/pkg/core/approval"
	"github.com/machshop/approval-engine/pkg/core/workflow"
)

// DefinitionBuilder 工作流定义构建器（对外导出）
type DefinitionBuilder struct {
	def *workflow.WorkflowDefinition
}

// NewDefinitionBuilder 创建构建器（对外导出）
func NewDefinitionBuilder(name, workflowType string) *DefinitionBuilder {
	return &DefinitionBuilder{
		def: &workflow.WorkflowDefinition{
			ID:           uuid.NewString(),
			Name:         name,
			WorkflowType: workflowType,
			IsActive:     true,
			CreateTime:   time.Now(),
		},
	}
}

// WithID 指定定义ID（链式构建，对外导出）
func (b *DefinitionBuilder) WithID(id string) *DefinitionBuilder {
	b.def.ID = id
	return b
}

// WithMetadata 设置定义级元数据（链式构建，对外导出）
func (b *DefinitionBuilder) WithMetadata(meta map[string]any) *DefinitionBuilder {
	b.def.Metadata = meta
	return b
}

// Inactive 将定义置为停用（停用定义不可启动实例）
func (b *DefinitionBuilder) Inactive() *DefinitionBuilder {
	b.def.IsActive = false
	return b
}

// WithStage 追加一个阶段定义，阶段号自动递增
func (b *DefinitionBuilder) WithStage(stage StageSpec) *DefinitionBuilder {
	sd := workflow.StageDefinition{
		ID:                uuid.NewString(),
		StageNumber:       len(b.def.Stages) + 1,
		StageName:         stage.Name,
		ApprovalType:      stage.ApprovalType,
		MinimumApprovals:  stage.MinimumApprovals,
		ApprovalThreshold: stage.ApprovalThreshold,
		RequiredRoles:     stage.RequiredRoles,
		Metadata:          stage.Metadata,
	}
	if sd.ApprovalType == "" {
		sd.ApprovalType = approval.PolicyAny
	}
	b.def.Stages = append(b.def.Stages, sd)
	return b
}

// StageSpec 阶段构建说明
type StageSpec struct {
	Name              string
	ApprovalType      string // UNANIMOUS/MAJORITY/THRESHOLD/MINIMUM/ANY
	MinimumApprovals  int
	ApprovalThreshold float64
	RequiredRoles     []string
	Metadata          map[string]any
}

// Build 校验并返回工作流定义（对外导出）
func (b *DefinitionBuilder) Build() (*workflow.WorkflowDefinition, error) {
	if err := Validate(b.def); err != nil {
		return nil, err
	}
	return b.def, nil
}

// Validate 校验工作流定义合法性
// 阶段号要求从1开始且连续；THRESHOLD要求百分比在(0,100]；
// MINIMUM要求minimumApprovals至少为1
func Validate(def *workflow.WorkflowDefinition) error {
	if def.Name == "" {
		return &workflow.ValidationError{Field: "name", Msg: "definition name is required"}
	}
	if def.WorkflowType == "" {
		return &workflow.ValidationError{Field: "workflowType", Msg: "workflow type is required"}
	}
	if len(def.Stages) == 0 {
		return &workflow.ValidationError{Field: "stages", Msg: "at least one stage is required"}
	}
	for i := range def.Stages {
		s := &def.Stages[i]
		if s.StageNumber != i+1 {
			return &workflow.ValidationError{Field: "stages",
				Msg: "stage numbers must be contiguous starting from 1"}
		}
		if !approval.KnownPolicy(s.ApprovalType) {
			return &workflow.ValidationError{Field: "approvalType",
				Msg: "unknown approval type: " + s.ApprovalType}
		}
		switch s.ApprovalType {
		case approval.PolicyThreshold:
			if s.ApprovalThreshold <= 0 || s.ApprovalThreshold > 100 {
				return &workflow.ValidationError{Field: "approvalThreshold",
					Msg: "approval threshold must be in (0, 100]"}
			}
		case approval.PolicyMinimum:
			if s.MinimumApprovals < 1 {
				return &workflow.ValidationError{Field: "minimumApprovals",
					Msg: "minimum approvals must be at least 1"}
			}
		}
	}
	return nil
}
