package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/garyjia/travel-approval/internal/application/port"
	"github.com/garyjia/travel-approval/internal/domain/entity"
	"github.com/garyjia/travel-approval/internal/domain/workflow"
)

// memRequestRepo keeps requests in memory and honours the conditional write
type memRequestRepo struct {
	mu       sync.Mutex
	requests map[int64]*entity.Request

	getByIDFunc       func(ctx context.Context, id int64) (*entity.Request, error)
	applyDecisionFunc func(ctx context.Context, u *port.DecisionUpdate) (bool, error)
	applyCalls        int
}

func newMemRequestRepo(reqs ...*entity.Request) *memRequestRepo {
	m := &memRequestRepo{requests: make(map[int64]*entity.Request)}
	for _, r := range reqs {
		m.requests[r.ID] = r
	}
	return m
}

func (m *memRequestRepo) Create(ctx context.Context, req *entity.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.ID = int64(len(m.requests) + 1)
	m.requests[req.ID] = req
	return nil
}

func (m *memRequestRepo) GetByID(ctx context.Context, id int64) (*entity.Request, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memRequestRepo) ListByStatus(ctx context.Context, status workflow.State, limit, offset int) ([]*entity.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Request
	for _, r := range m.requests {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRequestRepo) ApplyDecision(ctx context.Context, u *port.DecisionUpdate) (bool, error) {
	m.mu.Lock()
	m.applyCalls++
	m.mu.Unlock()
	if m.applyDecisionFunc != nil {
		return m.applyDecisionFunc(ctx, u)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[u.RequestID]
	if !ok || r.Status != u.ExpectedStatus || r.Audit(u.Stage).Passed() {
		return false, nil
	}

	r.Status = u.NewStatus
	r.UpdatedAt = u.UpdatedAt
	if u.Approval != nil {
		*r.Audit(u.Stage) = *u.Approval
	}
	if u.EditedBudget.Valid {
		r.ComptrollerEditedBudget = u.EditedBudget
	}
	if u.StageComments != "" {
		r.Audit(u.Stage).Comments = u.StageComments
	}
	if u.Rejection != nil {
		at := u.Rejection.At
		r.RejectedAt, r.RejectedBy, r.RejectionReason, r.RejectionStage = &at, u.Rejection.By, u.Rejection.Reason, u.Rejection.Stage
	}
	if u.Return != nil {
		at := u.Return.At
		r.ReturnedAt, r.ReturnedBy, r.ReturnReason, r.ReturnStage = &at, u.Return.By, u.Return.Reason, u.Return.Stage
	}
	return true, nil
}

func (m *memRequestRepo) snapshot(id int64) entity.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.requests[id]
}

type mockUserRepo struct {
	users map[string]*entity.User

	getByIDFunc          func(ctx context.Context, id string) (*entity.User, error)
	listActiveByRoleFunc func(ctx context.Context, role workflow.Role) ([]*entity.User, error)
}

func newMockUserRepo(users ...*entity.User) *mockUserRepo {
	m := &mockUserRepo{users: make(map[string]*entity.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) Create(ctx context.Context, user *entity.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return m.users[id], nil
}

func (m *mockUserRepo) ListActiveByRole(ctx context.Context, role workflow.Role) ([]*entity.User, error) {
	if m.listActiveByRoleFunc != nil {
		return m.listActiveByRoleFunc(ctx, role)
	}
	var out []*entity.User
	for _, u := range m.users {
		if u.IsActive && holdsRole(u, role) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockUserRepo) ListDepartmentHeads(ctx context.Context, departmentID string) ([]*entity.User, error) {
	var out []*entity.User
	for _, u := range m.users {
		if u.IsActive && u.IsHead && u.DepartmentID == departmentID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockUserRepo) CreateDepartment(ctx context.Context, dept *entity.Department) error {
	return nil
}

func (m *mockUserRepo) GetDepartment(ctx context.Context, id string) (*entity.Department, error) {
	return nil, nil
}

type mockHistoryRepo struct {
	mu         sync.Mutex
	entries    []*entity.ApprovalHistory
	createFunc func(ctx context.Context, h *entity.ApprovalHistory) error
}

func (m *mockHistoryRepo) Create(ctx context.Context, h *entity.ApprovalHistory) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, h)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, h)
	return nil
}

func (m *mockHistoryRepo) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.ApprovalHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ApprovalHistory
	for _, h := range m.entries {
		if h.RequestID == requestID {
			out = append(out, h)
		}
	}
	return out, nil
}

type mockNotificationRepo struct {
	mu         sync.Mutex
	created    []*entity.Notification
	createFunc func(ctx context.Context, n *entity.Notification) error
	listFunc   func(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error)
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	if m.createFunc != nil {
		if err := m.createFunc(ctx, n); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, n)
	return nil
}

func (m *mockNotificationRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, userID, unreadOnly, limit)
	}
	return nil, nil
}

func (m *mockNotificationRepo) ListByRelated(ctx context.Context, relatedID int64) ([]*entity.Notification, error) {
	return nil, nil
}

func (m *mockNotificationRepo) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.created))
	for _, n := range m.created {
		ids = append(ids, n.UserID)
	}
	return ids
}

// mockTxManager runs fn directly, the way a single-connection store would
type mockTxManager struct {
	mu    sync.Mutex
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return fn(ctx)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockMetrics struct {
	mu        sync.Mutex
	decisions []string
	created   int
	failed    int
}

func (m *mockMetrics) ObserveDecision(action, outcome string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, action+":"+outcome)
}

func (m *mockMetrics) NotificationCreated(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}

func (m *mockMetrics) NotificationFailed(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
}

type mockNotifier struct {
	mu       sync.Mutex
	outcomes []Outcome
	ctxErr   error
}

func (m *mockNotifier) Notify(ctx context.Context, o Outcome) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
	m.ctxErr = ctx.Err()
	return 1
}

var errStore = errors.New("database is locked")
