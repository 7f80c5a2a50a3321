// Package rules 实现条件路由规则：布尔条件树与纯求值器
package rules

import (
	"encoding/json"
	"fmt"
)

// 条件运算符常量（对外导出）
const (
	OpEq       = "eq"
	OpNeq      = "neq"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpIn       = "in"
	OpNotIn    = "nin"
	OpContains = "contains"
)

// 规则动作类型常量
const (
	ActionActivateStage = "ACTIVATE_STAGE"
	ActionSkipToStage   = "SKIP_TO_STAGE"
)

// Condition 条件树节点：叶子或AND/OR复合节点
// 叶子设置Field/Operator/Value；复合节点设置And或Or之一
type Condition struct {
	Field    string      `json:"field,omitempty"`
	Operator string      `json:"operator,omitempty"`
	Value    interface{} `json:"value,omitempty"`

	And []Condition `json:"AND,omitempty"`
	Or  []Condition `json:"OR,omitempty"`
}

// IsLeaf 判断是否为叶子条件
func (c *Condition) IsLeaf() bool {
	return len(c.And) == 0 && len(c.Or) == 0
}

// Validate 校验条件树结构合法性
func (c *Condition) Validate() error {
	if len(c.And) > 0 && len(c.Or) > 0 {
		return fmt.Errorf("condition node cannot carry both AND and OR")
	}
	if !c.IsLeaf() {
		for i := range c.And {
			if err := c.And[i].Validate(); err != nil {
				return err
			}
		}
		for i := range c.Or {
			if err := c.Or[i].Validate(); err != nil {
				return err
			}
		}
		return nil
	}
	if c.Field == "" {
		return fmt.Errorf("leaf condition requires a field")
	}
	switch c.Operator {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpContains:
		return nil
	}
	return fmt.Errorf("unsupported operator: %s", c.Operator)
}

// RuleAction 规则命中后的路由动作
type RuleAction struct {
	Type              string `json:"type"` // ACTIVATE_STAGE/SKIP_TO_STAGE
	StageNumber       int    `json:"stage_number,omitempty"`
	SkipToStageNumber int    `json:"skip_to_stage_number,omitempty"`
}

// TargetStage 返回动作指向的阶段号
func (a *RuleAction) TargetStage() int {
	if a.Type == ActionSkipToStage {
		return a.SkipToStageNumber
	}
	return a.StageNumber
}

// WorkflowRule 条件路由规则（按workflowType限定范围）
type WorkflowRule struct {
	ID           string     `json:"id"`
	WorkflowType string     `json:"workflow_type"`
	Name         string     `json:"name,omitempty"`
	IsActive     bool       `json:"is_active"`
	Priority     int        `json:"priority"` // 小者先求值
	Condition    Condition  `json:"condition"`
	Action       RuleAction `json:"action"`
}

// ParseCondition 从JSON解析条件树
func ParseCondition(data []byte) (Condition, error) {
	var c Condition
	if err := json.Unmarshal(data, &c); err != nil {
		return Condition{}, fmt.Errorf("parse condition failed: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Condition{}, err
	}
	return c, nil
}
