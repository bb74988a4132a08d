package workflow

import "github.com/shopspring/decimal"

// ApprovalThreshold is the effective budget above which a non-head request
// needs presidential sign-off. The comparison is strict.
var ApprovalThreshold = decimal.NewFromInt(15000)

// Attributes are the request properties the routing guards read
type Attributes struct {
	HasParentDepartment bool
	HasBudget           bool
	RequesterIsHead     bool
	EffectiveBudget     decimal.Decimal
}

// ExceedsThreshold reports whether the effective budget is strictly above ApprovalThreshold
func (a Attributes) ExceedsThreshold() bool {
	return a.EffectiveBudget.GreaterThan(ApprovalThreshold)
}
