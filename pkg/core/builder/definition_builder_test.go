package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machshop/approval-engine/pkg/core/approval"
	"github.com/machshop/approval-engine/pkg/core/workflow"
)

func TestDefinitionBuilder_Build(t *testing.T) {
	def, err := NewDefinitionBuilder("采购审批", "PURCHASE").
		WithMetadata(map[string]any{"department": "finance"}).
		WithStage(StageSpec{Name: "部门初审", ApprovalType: approval.PolicyMajority}).
		WithStage(StageSpec{Name: "财务复核", ApprovalType: approval.PolicyThreshold, ApprovalThreshold: 60}).
		WithStage(StageSpec{Name: "总经理终审", ApprovalType: approval.PolicyUnanimous}).
		Build()
	require.NoError(t, err)

	assert.NotEmpty(t, def.ID)
	assert.Equal(t, "采购审批", def.Name)
	assert.Equal(t, "PURCHASE", def.WorkflowType)
	assert.True(t, def.IsActive)
	require.Len(t, def.Stages, 3)

	// 阶段号自动递增
	for i, s := range def.Stages {
		assert.Equal(t, i+1, s.StageNumber)
		assert.NotEmpty(t, s.ID)
	}
	assert.Equal(t, approval.PolicyThreshold, def.Stages[1].ApprovalType)
}

func TestDefinitionBuilder_DefaultPolicy(t *testing.T) {
	def, err := NewDefinitionBuilder("快速签收", "RECEIPT").
		WithStage(StageSpec{Name: "签收"}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, approval.PolicyAny, def.Stages[0].ApprovalType)
}

func TestDefinitionBuilder_Inactive(t *testing.T) {
	def, err := NewDefinitionBuilder("停用流程", "LEGACY").
		Inactive().
		WithStage(StageSpec{Name: "归档"}).
		Build()
	require.NoError(t, err)
	assert.False(t, def.IsActive)
}

func TestDefinitionBuilder_ValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		builder *DefinitionBuilder
	}{
		{"缺少名称", NewDefinitionBuilder("", "PURCHASE").
			WithStage(StageSpec{Name: "s1"})},
		{"缺少类型", NewDefinitionBuilder("x", "").
			WithStage(StageSpec{Name: "s1"})},
		{"没有阶段", NewDefinitionBuilder("x", "PURCHASE")},
		{"未知策略", NewDefinitionBuilder("x", "PURCHASE").
			WithStage(StageSpec{Name: "s1", ApprovalType: "CONSENSUS"})},
		{"阈值越界", NewDefinitionBuilder("x", "PURCHASE").
			WithStage(StageSpec{Name: "s1", ApprovalType: approval.PolicyThreshold, ApprovalThreshold: 120})},
		{"阈值为零", NewDefinitionBuilder("x", "PURCHASE").
			WithStage(StageSpec{Name: "s1", ApprovalType: approval.PolicyThreshold})},
		{"最少批准数为零", NewDefinitionBuilder("x", "PURCHASE").
			WithStage(StageSpec{Name: "s1", ApprovalType: approval.PolicyMinimum})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.builder.Build()
			require.Error(t, err)
			var verr *workflow.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestValidate_NonContiguousStages(t *testing.T) {
	def := &workflow.WorkflowDefinition{
		Name:         "乱序流程",
		WorkflowType: "PURCHASE",
		Stages: []workflow.StageDefinition{
			{StageNumber: 1, StageName: "s1", ApprovalType: approval.PolicyAny},
			{StageNumber: 3, StageName: "s3", ApprovalType: approval.PolicyAny},
		},
	}
	err := Validate(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contiguous")
}
