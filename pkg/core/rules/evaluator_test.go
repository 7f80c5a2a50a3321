package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateCondition_Leaf(t *testing.T) {
	ctx := Context{"amount": 5000, "category": "purchase", "tags": []any{"urgent", "capex"}}

	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"eq命中", Condition{Field: "category", Operator: OpEq, Value: "purchase"}, true},
		{"eq未命中", Condition{Field: "category", Operator: OpEq, Value: "expense"}, false},
		{"neq", Condition{Field: "category", Operator: OpNeq, Value: "expense"}, true},
		{"gt", Condition{Field: "amount", Operator: OpGt, Value: 1000}, true},
		{"gte边界", Condition{Field: "amount", Operator: OpGte, Value: 5000}, true},
		{"lt", Condition{Field: "amount", Operator: OpLt, Value: 1000}, false},
		{"lte", Condition{Field: "amount", Operator: OpLte, Value: 5000}, true},
		{"in", Condition{Field: "category", Operator: OpIn, Value: []any{"purchase", "expense"}}, true},
		{"nin", Condition{Field: "category", Operator: OpNotIn, Value: []any{"expense"}}, true},
		{"contains", Condition{Field: "tags", Operator: OpContains, Value: "urgent"}, true},
		{"contains未命中", Condition{Field: "tags", Operator: OpContains, Value: "opex"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EvaluateCondition(&tc.cond, ctx))
		})
	}
}

func TestEvaluateCondition_MissingField(t *testing.T) {
	ctx := Context{}

	// 缺失字段：eq/in/contains为假
	assert.False(t, EvaluateCondition(&Condition{Field: "x", Operator: OpEq, Value: 1}, ctx))
	assert.False(t, EvaluateCondition(&Condition{Field: "x", Operator: OpIn, Value: []any{1}}, ctx))
	assert.False(t, EvaluateCondition(&Condition{Field: "x", Operator: OpContains, Value: 1}, ctx))

	// neq/nin为真
	assert.True(t, EvaluateCondition(&Condition{Field: "x", Operator: OpNeq, Value: 1}, ctx))
	assert.True(t, EvaluateCondition(&Condition{Field: "x", Operator: OpNotIn, Value: []any{1}}, ctx))
}

func TestEvaluateCondition_NumericCrossType(t *testing.T) {
	// JSON反序列化出的数值与int比较
	ctx := Context{"amount": json.Number("5000")}
	assert.True(t, EvaluateCondition(&Condition{Field: "amount", Operator: OpEq, Value: 5000}, ctx))
	assert.True(t, EvaluateCondition(&Condition{Field: "amount", Operator: OpGt, Value: float64(4999.5)}, ctx))
}

func TestEvaluateCondition_Nested(t *testing.T) {
	ctx := Context{"amount": 20000, "priority": "HIGH"}

	// (amount > 10000 AND priority == HIGH)
	and := Condition{And: []Condition{
		{Field: "amount", Operator: OpGt, Value: 10000},
		{Field: "priority", Operator: OpEq, Value: "HIGH"},
	}}
	assert.True(t, EvaluateCondition(&and, ctx))

	// (amount > 50000 OR priority == HIGH)
	or := Condition{Or: []Condition{
		{Field: "amount", Operator: OpGt, Value: 50000},
		{Field: "priority", Operator: OpEq, Value: "HIGH"},
	}}
	assert.True(t, EvaluateCondition(&or, ctx))

	// AND短路
	and.And[1].Value = "LOW"
	assert.False(t, EvaluateCondition(&and, ctx))
}

func TestFirstMatch_PriorityOrder(t *testing.T) {
	ruleSet := []WorkflowRule{
		{
			ID: "r-low", IsActive: true, Priority: 10,
			Condition: Condition{Field: "amount", Operator: OpGt, Value: 0},
			Action:    RuleAction{Type: ActionActivateStage, StageNumber: 2},
		},
		{
			ID: "r-high", IsActive: true, Priority: 1,
			Condition: Condition{Field: "amount", Operator: OpGt, Value: 10000},
			Action:    RuleAction{Type: ActionSkipToStage, SkipToStageNumber: 4},
		},
		{
			ID: "r-inactive", IsActive: false, Priority: 0,
			Condition: Condition{Field: "amount", Operator: OpGt, Value: 0},
			Action:    RuleAction{Type: ActionActivateStage, StageNumber: 3},
		},
	}

	// 大额命中优先级更高的r-high；停用规则不参与
	match := FirstMatch(ruleSet, Context{"amount": 20000})
	require.NotNil(t, match)
	assert.Equal(t, "r-high", match.ID)
	assert.Equal(t, 4, match.Action.TargetStage())

	// 小额只命中r-low
	match = FirstMatch(ruleSet, Context{"amount": 500})
	require.NotNil(t, match)
	assert.Equal(t, "r-low", match.ID)

	// 无命中
	match = FirstMatch(ruleSet, Context{"amount": 0})
	assert.Nil(t, match)
}

func TestParseCondition(t *testing.T) {
	raw := []byte(`{"AND":[{"field":"amount","operator":"gt","value":1000},{"OR":[{"field":"priority","operator":"eq","value":"HIGH"},{"field":"priority","operator":"eq","value":"URGENT"}]}]}`)
	cond, err := ParseCondition(raw)
	require.NoError(t, err)

	assert.True(t, EvaluateCondition(&cond, Context{"amount": 2000, "priority": "URGENT"}))
	assert.False(t, EvaluateCondition(&cond, Context{"amount": 2000, "priority": "LOW"}))

	_, err = ParseCondition([]byte(`{"field":"x","operator":"between","value":1}`))
	assert.Error(t, err)
}
