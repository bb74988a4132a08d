package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/travel-approval/internal/domain/entity"
	"github.com/garyjia/travel-approval/internal/domain/workflow"
)

// RequestRepository defines persistence operations for Request.
// GetByID returns (nil, nil) when the request does not exist.
type RequestRepository interface {
	Create(ctx context.Context, req *entity.Request) error
	GetByID(ctx context.Context, id int64) (*entity.Request, error)
	ListByStatus(ctx context.Context, status workflow.State, limit, offset int) ([]*entity.Request, error)

	// ApplyDecision writes update only if the row still has ExpectedStatus and the
	// stage has not been passed. It reports false when no row matched.
	ApplyDecision(ctx context.Context, update *DecisionUpdate) (bool, error)
}

// DecisionUpdate is the single-row mutation produced by one decision
type DecisionUpdate struct {
	RequestID      int64
	ExpectedStatus workflow.State
	NewStatus      workflow.State
	Stage          workflow.Stage

	// Approval stamps the stage audit fields (approve only)
	Approval *entity.StageAudit

	// EditedBudget sets comptroller_edited_budget when valid
	EditedBudget decimal.NullDecimal

	// StageComments overwrites the stage comments column (return only)
	StageComments string

	Rejection *Closure
	Return    *Closure

	UpdatedAt time.Time
}

// Closure records who stopped a request at which stage and why
type Closure struct {
	At     time.Time
	By     string
	Reason string
	Stage  string
}

// UserRepository defines lookups against the user and department directory
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)

	// ListActiveByRole returns active users holding the role flag
	ListActiveByRole(ctx context.Context, role workflow.Role) ([]*entity.User, error)

	// ListDepartmentHeads returns active heads of a department
	ListDepartmentHeads(ctx context.Context, departmentID string) ([]*entity.User, error)

	CreateDepartment(ctx context.Context, dept *entity.Department) error
	GetDepartment(ctx context.Context, id string) (*entity.Department, error)
}

// NotificationRepository defines persistence operations for Notification
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error)
	ListByRelated(ctx context.Context, relatedID int64) ([]*entity.Notification, error)
}

// HistoryRepository defines persistence operations for ApprovalHistory
type HistoryRepository interface {
	Create(ctx context.Context, history *entity.ApprovalHistory) error
	GetByRequestID(ctx context.Context, requestID int64) ([]*entity.ApprovalHistory, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
