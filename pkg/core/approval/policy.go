// Package approval 实现阶段内投票聚合：审批策略与阶段完成判定
package approval

import "fmt"

// 审批策略常量（对外导出）
const (
	PolicyUnanimous = "UNANIMOUS"
	PolicyMajority  = "MAJORITY"
	PolicyThreshold = "THRESHOLD"
	PolicyMinimum   = "MINIMUM"
	PolicyAny       = "ANY"
)

// VoteCounts 一个协调组的计票结果
// Total为组配置的权威分母，可能大于已记录的票数
type VoteCounts struct {
	Total    int
	Approved int
	Rejected int
}

// Outstanding 尚未投出的票数（不会为负）
func (c VoteCounts) Outstanding() int {
	n := c.Total - c.Approved - c.Rejected
	if n < 0 {
		return 0
	}
	return n
}

// PolicyParams 策略参数，来自阶段定义
type PolicyParams struct {
	MinimumApprovals  int     // MINIMUM策略的最低通过票数
	ApprovalThreshold float64 // THRESHOLD策略的通过百分比
}

// Verdict 单个协调组的裁定结果
type Verdict struct {
	Decided  bool // 是否已有定论
	Approved bool // Decided时有效：true为通过，false为否决
}

var (
	verdictPending  = Verdict{}
	verdictApproved = Verdict{Decided: true, Approved: true}
	verdictRejected = Verdict{Decided: true, Approved: false}
)

// policyFunc 纯函数：计票 + 参数 → 裁定
// 裁定为否决当且仅当该策略在剩余票全部通过的情况下也无法满足
type policyFunc func(c VoteCounts, p PolicyParams) Verdict

// policyTable 策略分发表
// 新增策略只需增加一个表项和对应单元测试
var policyTable = map[string]policyFunc{
	PolicyUnanimous: evalUnanimous,
	PolicyMajority:  evalMajority,
	PolicyThreshold: evalThreshold,
	PolicyMinimum:   evalMinimum,
	PolicyAny:       evalAny,
}

// Evaluate 按策略裁定一个协调组
// 未知策略返回错误，调用方应在定义校验阶段就拦截
func Evaluate(policy string, c VoteCounts, p PolicyParams) (Verdict, error) {
	fn, ok := policyTable[policy]
	if !ok {
		return verdictPending, fmt.Errorf("unknown approval policy: %s", policy)
	}
	if c.Total <= 0 {
		// 空组视为未决，避免除零
		return verdictPending, nil
	}
	return fn(c, p), nil
}

// evalUnanimous 全票通过；任何一张否决票即否决，未投完且无否决票时保持未决
func evalUnanimous(c VoteCounts, _ PolicyParams) Verdict {
	if c.Rejected > 0 {
		return verdictRejected
	}
	if c.Approved == c.Total {
		return verdictApproved
	}
	return verdictPending
}

// evalMajority 严格多数：approved > total/2
func evalMajority(c VoteCounts, _ PolicyParams) Verdict {
	if c.Approved*2 > c.Total {
		return verdictApproved
	}
	// 剩余票全部通过也到不了多数时否决
	if (c.Approved+c.Outstanding())*2 <= c.Total {
		return verdictRejected
	}
	return verdictPending
}

// evalThreshold 通过率达到配置百分比
func evalThreshold(c VoteCounts, p PolicyParams) Verdict {
	if float64(c.Approved)/float64(c.Total)*100 >= p.ApprovalThreshold {
		return verdictApproved
	}
	if float64(c.Approved+c.Outstanding())/float64(c.Total)*100 < p.ApprovalThreshold {
		return verdictRejected
	}
	return verdictPending
}

// evalMinimum 绝对票数下限，与分母无关
func evalMinimum(c VoteCounts, p PolicyParams) Verdict {
	if c.Approved >= p.MinimumApprovals {
		return verdictApproved
	}
	if c.Approved+c.Outstanding() < p.MinimumApprovals {
		return verdictRejected
	}
	return verdictPending
}

// evalAny 首张通过票即通过；全部投完仍无通过票时否决
func evalAny(c VoteCounts, _ PolicyParams) Verdict {
	if c.Approved >= 1 {
		return verdictApproved
	}
	if c.Outstanding() == 0 {
		return verdictRejected
	}
	return verdictPending
}

// KnownPolicy 判断策略名是否合法
func KnownPolicy(policy string) bool {
	_, ok := policyTable[policy]
	return ok
}
