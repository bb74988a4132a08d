package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/travel-approval/internal/domain/workflow"
)

// Request is a travel order or seminar request together with its approval audit trail
type Request struct {
	ID                 int64   `json:"id"`
	RequestNumber      string  `json:"request_number"`
	RequestType        string  `json:"request_type"`
	RequesterID        string  `json:"requester_id"`
	RequesterName      string  `json:"requester_name"`
	RequesterIsHead    bool    `json:"requester_is_head"`
	DepartmentID       string  `json:"department_id"`
	ParentDepartmentID *string `json:"parent_department_id,omitempty"`

	HasBudget               bool                `json:"has_budget"`
	TotalBudget             decimal.NullDecimal `json:"total_budget"`
	ComptrollerEditedBudget decimal.NullDecimal `json:"comptroller_edited_budget"`
	ExpenseBreakdown        []ExpenseItem       `json:"expense_breakdown"`

	Status workflow.State `json:"status"`

	Head        StageAudit `json:"head"`
	ParentHead  StageAudit `json:"parent_head"`
	Admin       StageAudit `json:"admin"`
	Comptroller StageAudit `json:"comptroller"`
	HR          StageAudit `json:"hr"`
	VP          StageAudit `json:"vp"`
	President   StageAudit `json:"president"`

	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectedBy      string     `json:"rejected_by,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	RejectionStage  string     `json:"rejection_stage,omitempty"`

	ReturnedAt   *time.Time `json:"returned_at,omitempty"`
	ReturnedBy   string     `json:"returned_by,omitempty"`
	ReturnReason string     `json:"return_reason,omitempty"`
	ReturnStage  string     `json:"return_stage,omitempty"`

	WorkflowMetadata map[string]interface{} `json:"workflow_metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExpenseItem is one line of the requested budget
type ExpenseItem struct {
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// StageAudit records who passed a stage, when, and with what signature and remarks.
// For the admin stage At/By are the processed_at/processed_by columns.
type StageAudit struct {
	At        *time.Time `json:"approved_at,omitempty"`
	By        string     `json:"approved_by,omitempty"`
	Signature string     `json:"signature,omitempty"`
	Comments  string     `json:"comments,omitempty"`
}

// Passed reports whether the stage has been approved
func (a StageAudit) Passed() bool {
	return a.At != nil
}

// EffectiveBudget is the amount used for threshold decisions: the comptroller's
// edited figure, else the declared total, else zero.
func (r *Request) EffectiveBudget() decimal.Decimal {
	if r.ComptrollerEditedBudget.Valid {
		return r.ComptrollerEditedBudget.Decimal
	}
	if r.TotalBudget.Valid {
		return r.TotalBudget.Decimal
	}
	return decimal.Zero
}

// HasParentDepartment reports whether the requester's department reports to another department
func (r *Request) HasParentDepartment() bool {
	return r.ParentDepartmentID != nil && *r.ParentDepartmentID != ""
}

// Attributes returns the routing inputs of the workflow policy
func (r *Request) Attributes() workflow.Attributes {
	return workflow.Attributes{
		HasParentDepartment: r.HasParentDepartment(),
		HasBudget:           r.HasBudget,
		RequesterIsHead:     r.RequesterIsHead,
		EffectiveBudget:     r.EffectiveBudget(),
	}
}

// Audit returns the audit fields owned by a stage
func (r *Request) Audit(stage workflow.Stage) *StageAudit {
	switch stage {
	case workflow.StageHead:
		return &r.Head
	case workflow.StageParentHead:
		return &r.ParentHead
	case workflow.StageAdmin:
		return &r.Admin
	case workflow.StageComptroller:
		return &r.Comptroller
	case workflow.StageHR:
		return &r.HR
	case workflow.StageVP:
		return &r.VP
	case workflow.StagePresident:
		return &r.President
	default:
		return nil
	}
}

// NextApproverHint returns the escalation hints stored in workflow metadata
func (r *Request) NextApproverHint() (id, role string) {
	if r.WorkflowMetadata == nil {
		return "", ""
	}
	id, _ = r.WorkflowMetadata[MetadataNextApproverID].(string)
	role, _ = r.WorkflowMetadata[MetadataNextApproverRole].(string)
	return id, role
}
