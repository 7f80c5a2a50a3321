package rules

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Context 规则求值上下文：实例字段加实体上下文的不可变视图
type Context map[string]interface{}

// EvaluateCondition 对上下文递归求值条件树（纯函数，无副作用）
// AND要求所有子条件为真，OR要求至少一个子条件为真
func EvaluateCondition(c *Condition, ctx Context) bool {
	if len(c.And) > 0 {
		for i := range c.And {
			if !EvaluateCondition(&c.And[i], ctx) {
				return false
			}
		}
		return true
	}
	if len(c.Or) > 0 {
		for i := range c.Or {
			if EvaluateCondition(&c.Or[i], ctx) {
				return true
			}
		}
		return false
	}
	return evaluateLeaf(c, ctx)
}

// evaluateLeaf 求值单个叶子条件
// 上下文中不存在的字段：eq/in/contains类判定为假，neq/nin判定为真
func evaluateLeaf(c *Condition, ctx Context) bool {
	actual, exists := ctx[c.Field]
	switch c.Operator {
	case OpEq:
		return exists && looseEqual(actual, c.Value)
	case OpNeq:
		return !exists || !looseEqual(actual, c.Value)
	case OpGt, OpGte, OpLt, OpLte:
		if !exists {
			return false
		}
		return compareNumeric(actual, c.Value, c.Operator)
	case OpIn:
		return exists && valueIn(actual, c.Value)
	case OpNotIn:
		return !exists || !valueIn(actual, c.Value)
	case OpContains:
		if !exists {
			return false
		}
		return containsValue(actual, c.Value)
	}
	return false
}

// looseEqual 宽松相等：数值跨类型比较，其余按字符串化比较
func looseEqual(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareNumeric 数值比较，非数值回退到字符串比较
func compareNumeric(a, b interface{}, op string) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
		switch op {
		case OpGt:
			return as > bs
		case OpGte:
			return as >= bs
		case OpLt:
			return as < bs
		case OpLte:
			return as <= bs
		}
		return false
	}
	switch op {
	case OpGt:
		return af > bf
	case OpGte:
		return af >= bf
	case OpLt:
		return af < bf
	case OpLte:
		return af <= bf
	}
	return false
}

// valueIn 判断actual是否在expected列表中
func valueIn(actual, expected interface{}) bool {
	rv := reflect.ValueOf(expected)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return looseEqual(actual, expected)
	}
	for i := 0; i < rv.Len(); i++ {
		if looseEqual(actual, rv.Index(i).Interface()) {
			return true
		}
	}
	return false
}

// containsValue 字符串包含，或列表成员包含
func containsValue(actual, expected interface{}) bool {
	rv := reflect.ValueOf(actual)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if looseEqual(rv.Index(i).Interface(), expected) {
				return true
			}
		}
		return false
	}
	return strings.Contains(fmt.Sprintf("%v", actual), fmt.Sprintf("%v", expected))
}

// toFloat 尽力转为float64
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// FirstMatch 按Priority升序返回第一条命中的启用规则（无命中返回nil）
func FirstMatch(ruleSet []WorkflowRule, ctx Context) *WorkflowRule {
	var match *WorkflowRule
	for i := range ruleSet {
		r := &ruleSet[i]
		if !r.IsActive {
			continue
		}
		if match != nil && r.Priority >= match.Priority {
			continue
		}
		if EvaluateCondition(&r.Condition, ctx) {
			match = r
		}
	}
	return match
}
