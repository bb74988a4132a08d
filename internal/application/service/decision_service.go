package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/travel-approval/internal/application/dispatcher"
	"github.com/garyjia/travel-approval/internal/application/port"
	"github.com/garyjia/travel-approval/internal/domain/entity"
	"github.com/garyjia/travel-approval/internal/domain/event"
	"github.com/garyjia/travel-approval/internal/domain/workflow"
	"github.com/garyjia/travel-approval/pkg/utils"
)

// DefaultReadTimeout bounds the load of the request and actor before a decision
const DefaultReadTimeout = 5 * time.Second

// Decision is one approver action on a request
type Decision struct {
	RequestID       int64
	ActorID         string
	Role            workflow.Role
	Action          workflow.Trigger
	Signature       string
	Comments        string
	RejectionReason string
	ReturnReason    string

	// EditedBudget lets the comptroller override the effective budget while approving
	EditedBudget *decimal.Decimal
}

// DecisionResult is returned after a decision has been committed
type DecisionResult struct {
	RequestID         int64          `json:"request_id"`
	PreviousStatus    workflow.State `json:"previous_status"`
	NewStatus         workflow.State `json:"new_status"`
	NotificationsSent int            `json:"notifications_sent"`
}

// DecisionService is the only way request status changes
type DecisionService interface {
	SubmitDecision(ctx context.Context, d Decision) (*DecisionResult, error)
}

// DecisionOption configures the decision service
type DecisionOption func(*decisionServiceImpl)

// WithReadTimeout bounds the read phase of a decision
func WithReadTimeout(d time.Duration) DecisionOption {
	return func(s *decisionServiceImpl) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithClock sets the clock used for audit timestamps
func WithClock(now func() time.Time) DecisionOption {
	return func(s *decisionServiceImpl) {
		s.now = now
	}
}

// WithMetrics sets the recorder for decision counters
func WithMetrics(m port.MetricsRecorder) DecisionOption {
	return func(s *decisionServiceImpl) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithEvents sets the dispatcher that receives request change events
func WithEvents(d dispatcher.Dispatcher) DecisionOption {
	return func(s *decisionServiceImpl) {
		s.events = d
	}
}

type decisionServiceImpl struct {
	requestRepo port.RequestRepository
	userRepo    port.UserRepository
	historyRepo port.HistoryRepository
	txManager   port.TransactionManager
	policy      *workflow.Policy
	notifier    Notifier
	events      dispatcher.Dispatcher
	metrics     port.MetricsRecorder
	readTimeout time.Duration
	now         func() time.Time
	logger      Logger
}

// NewDecisionService creates a new DecisionService
func NewDecisionService(
	requestRepo port.RequestRepository,
	userRepo port.UserRepository,
	historyRepo port.HistoryRepository,
	txManager port.TransactionManager,
	policy *workflow.Policy,
	notifier Notifier,
	logger Logger,
	opts ...DecisionOption,
) DecisionService {
	s := &decisionServiceImpl{
		requestRepo: requestRepo,
		userRepo:    userRepo,
		historyRepo: historyRepo,
		txManager:   txManager,
		policy:      policy,
		notifier:    notifier,
		metrics:     noopMetrics{},
		readTimeout: DefaultReadTimeout,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var errNotApplied = errors.New("conditional update matched no row")

// SubmitDecision validates and records one decision, then notifies best-effort
func (s *decisionServiceImpl) SubmitDecision(ctx context.Context, d Decision) (*DecisionResult, error) {
	start := time.Now()
	result, err := s.submit(ctx, d)

	outcome := "success"
	if err != nil {
		outcome = strings.ToLower(string(CodeOf(err)))
	}
	s.metrics.ObserveDecision(string(d.Action), outcome, time.Since(start))

	return result, err
}

func (s *decisionServiceImpl) submit(ctx context.Context, d Decision) (*DecisionResult, error) {
	d.Comments = utils.SanitizeString(d.Comments)
	d.RejectionReason = utils.SanitizeString(d.RejectionReason)
	d.ReturnReason = utils.SanitizeString(d.ReturnReason)
	d.Signature = strings.TrimSpace(d.Signature)

	if err := validateDecision(d); err != nil {
		return nil, err
	}

	req, actor, err := s.load(ctx, d)
	if err != nil {
		return nil, err
	}

	stage, err := s.authorize(req, actor, d)
	if err != nil {
		s.logger.Info("Decision refused",
			"request_id", d.RequestID,
			"actor_id", d.ActorID,
			"role", d.Role,
			"action", d.Action,
			"status", req.Status,
			"reason", err,
		)
		return nil, err
	}

	update, err := s.buildUpdate(req, actor, stage, d)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, newError(CodeCancelled, err, "decision on request %d cancelled before write", d.RequestID)
	}

	history := &entity.ApprovalHistory{
		RequestID:      req.ID,
		ActorID:        actor.ID,
		ActorRole:      string(d.Role),
		Action:         string(d.Action),
		PreviousStatus: string(req.Status),
		NewStatus:      string(update.NewStatus),
		Comments:       firstNonEmpty(d.RejectionReason, d.ReturnReason, d.Comments),
		Timestamp:      update.UpdatedAt,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		applied, err := s.requestRepo.ApplyDecision(txCtx, update)
		if err != nil {
			return err
		}
		if !applied {
			return errNotApplied
		}
		return s.historyRepo.Create(txCtx, history)
	})
	if errors.Is(err, errNotApplied) {
		return nil, newError(CodeAlreadyProcessed, nil, "request %d was already processed at %s", req.ID, req.Status)
	}
	if err != nil {
		s.logger.Error("Failed to persist decision",
			"error", err,
			"request_id", req.ID,
			"action", d.Action,
		)
		return nil, newError(CodePersistence, err, "persist decision on request %d", req.ID)
	}

	s.logger.Info("Decision recorded",
		"request_id", req.ID,
		"request_number", req.RequestNumber,
		"actor_id", actor.ID,
		"role", d.Role,
		"action", d.Action,
		"previous_status", req.Status,
		"new_status", update.NewStatus,
	)

	// The status change is committed; follow-up work must not be cut short by the caller.
	bg := context.WithoutCancel(ctx)

	hintID, hintRole := req.NextApproverHint()

	sent := 0
	if s.notifier != nil {
		sent = s.notifier.Notify(bg, Outcome{
			RequestID:          req.ID,
			RequestNumber:      req.RequestNumber,
			RequestType:        req.RequestType,
			RequesterID:        req.RequesterID,
			RequesterName:      req.RequesterName,
			ParentDepartmentID: derefString(req.ParentDepartmentID),
			Action:             d.Action,
			ActorID:            actor.ID,
			ActorName:          actor.Name,
			ActorRole:          d.Role,
			NewStatus:          update.NewStatus,
			Reason:             firstNonEmpty(d.RejectionReason, d.ReturnReason),
			NextApproverID:     hintID,
			NextApproverRole:   hintRole,
		})
	}
	s.emit(bg, req, history)

	return &DecisionResult{
		RequestID:         req.ID,
		PreviousStatus:    req.Status,
		NewStatus:         update.NewStatus,
		NotificationsSent: sent,
	}, nil
}

func validateDecision(d Decision) error {
	if d.RequestID <= 0 {
		return newError(CodeInvalidInput, nil, "request id must be positive")
	}
	if !d.Action.IsValid() {
		return newError(CodeInvalidInput, nil, "unknown action %q", d.Action)
	}
	if strings.TrimSpace(d.ActorID) == "" {
		return newError(CodeUnauthorized, nil, "actor is required")
	}
	if !d.Role.IsValid() {
		return newError(CodeUnauthorized, nil, "%q is not an approver role", d.Role)
	}

	switch d.Action {
	case workflow.TriggerReject:
		if d.RejectionReason == "" {
			return newError(CodeInvalidInput, nil, "rejection reason is required")
		}
	case workflow.TriggerReturn:
		if d.ReturnReason == "" {
			return newError(CodeInvalidInput, nil, "return reason is required")
		}
	}

	if d.EditedBudget != nil {
		if d.Action != workflow.TriggerApprove || d.Role != workflow.RoleComptroller {
			return newError(CodeInvalidInput, nil, "only the comptroller may edit the budget while approving")
		}
		if err := utils.ValidateBudget(*d.EditedBudget); err != nil {
			return newError(CodeInvalidInput, err, "invalid edited budget")
		}
	}
	return nil
}

// load reads the request and the acting user under the read timeout
func (s *decisionServiceImpl) load(ctx context.Context, d Decision) (*entity.Request, *entity.User, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	req, err := s.requestRepo.GetByID(readCtx, d.RequestID)
	if err != nil {
		return nil, nil, s.readError(ctx, readCtx, err, "load request %d", d.RequestID)
	}
	if req == nil {
		return nil, nil, newError(CodeNotFound, nil, "request %d not found", d.RequestID)
	}

	actor, err := s.userRepo.GetByID(readCtx, d.ActorID)
	if err != nil {
		return nil, nil, s.readError(ctx, readCtx, err, "load actor %s", d.ActorID)
	}
	if actor == nil || !actor.IsActive {
		return nil, nil, newError(CodeUnauthorized, nil, "actor %s is not an active user", d.ActorID)
	}

	return req, actor, nil
}

func (s *decisionServiceImpl) readError(parent, readCtx context.Context, err error, format string, args ...interface{}) error {
	switch {
	case parent.Err() != nil && errors.Is(parent.Err(), context.Canceled):
		return newError(CodeCancelled, parent.Err(), format, args...)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(readCtx.Err(), context.DeadlineExceeded):
		return newError(CodeTimeout, err, format, args...)
	default:
		s.logger.Error("Read failed", "error", err)
		return newError(CodePersistence, err, format, args...)
	}
}

// authorize checks that actor may apply d to req and returns the stage holding the request
func (s *decisionServiceImpl) authorize(req *entity.Request, actor *entity.User, d Decision) (workflow.Stage, error) {
	if !holdsRole(actor, d.Role) {
		return "", newError(CodeUnauthorized, nil, "user %s does not hold role %s", actor.ID, d.Role)
	}

	stage, pending := workflow.StageFor(req.Status)
	if !pending {
		if req.Status == workflow.StateDraft {
			return "", newError(CodeUnauthorized, nil, "request %d has not been submitted", req.ID)
		}
		return "", newError(CodeAlreadyProcessed, nil, "request %d is already %s", req.ID, req.Status)
	}

	if d.Action == workflow.TriggerApprove {
		ownsStage := stage.Role() == d.Role && (d.Role != workflow.RoleHead || actor.DepartmentID == stageDepartment(req, stage))
		if !ownsStage {
			if passedBy(req, actor, d.Role) {
				return "", newError(CodeAlreadyProcessed, nil, "%s already acted on request %d", d.Role, req.ID)
			}
			return "", newError(CodeUnauthorized, nil, "%s cannot approve request %d at %s", d.Role, req.ID, req.Status)
		}
		if req.Audit(stage).Passed() {
			return "", newError(CodeAlreadyProcessed, nil, "stage %s of request %d already approved", stage, req.ID)
		}
		return stage, nil
	}

	// Heads may only close requests from their own department chain.
	if d.Role == workflow.RoleHead && actor.DepartmentID != req.DepartmentID && actor.DepartmentID != derefString(req.ParentDepartmentID) {
		return "", newError(CodeUnauthorized, nil, "head %s is outside the chain of request %d", actor.ID, req.ID)
	}
	return stage, nil
}

func (s *decisionServiceImpl) buildUpdate(req *entity.Request, actor *entity.User, stage workflow.Stage, d Decision) (*port.DecisionUpdate, error) {
	attrs := req.Attributes()
	if d.EditedBudget != nil {
		attrs.EffectiveBudget = *d.EditedBudget
	}

	next, err := s.policy.Next(req.Status, d.Role, d.Action, attrs)
	if err != nil {
		if errors.Is(err, workflow.ErrRoleMismatch) || errors.Is(err, workflow.ErrInvalidTransition) {
			return nil, newError(CodeUnauthorized, err, "%s cannot %s request %d", d.Role, d.Action, req.ID)
		}
		return nil, newError(CodeInvalidInput, err, "no route for request %d", req.ID)
	}

	now := s.now().UTC()
	update := &port.DecisionUpdate{
		RequestID:      req.ID,
		ExpectedStatus: req.Status,
		NewStatus:      next,
		Stage:          stage,
		UpdatedAt:      now,
	}

	switch d.Action {
	case workflow.TriggerApprove:
		if stage.RequiresSignature() && d.Signature == "" {
			return nil, newError(CodeInvalidInput, nil, "signature is required to approve the %s stage", stage)
		}
		audit := &entity.StageAudit{At: &now, By: actor.ID, Comments: d.Comments}
		if stage.RequiresSignature() {
			audit.Signature = d.Signature
		}
		update.Approval = audit
		if d.EditedBudget != nil {
			update.EditedBudget = decimal.NewNullDecimal(*d.EditedBudget)
		}
	case workflow.TriggerReject:
		update.Rejection = &port.Closure{At: now, By: actor.ID, Reason: d.RejectionReason, Stage: string(d.Role)}
	case workflow.TriggerReturn:
		update.Return = &port.Closure{At: now, By: actor.ID, Reason: d.ReturnReason, Stage: string(d.Role)}
		if stage.Role() == d.Role {
			update.StageComments = d.ReturnReason
		}
	}

	return update, nil
}

func (s *decisionServiceImpl) emit(ctx context.Context, req *entity.Request, h *entity.ApprovalHistory) {
	if s.events == nil {
		return
	}

	payload := map[string]interface{}{
		"previous_status": h.PreviousStatus,
		"new_status":      h.NewStatus,
		"action":          h.Action,
		"actor_id":        h.ActorID,
		"actor_role":      h.ActorRole,
		"request_type":    req.RequestType,
	}
	changed := event.NewEvent(event.TypeStatusChanged, req.ID, req.RequestNumber, payload)
	s.events.DispatchAsync(ctx, changed)

	var outcome event.Type
	switch workflow.State(h.NewStatus) {
	case workflow.StateApproved:
		outcome = event.TypeRequestApproved
	case workflow.StateRejected:
		outcome = event.TypeRequestRejected
	case workflow.StateReturned:
		outcome = event.TypeRequestReturned
	default:
		return
	}
	s.events.DispatchAsync(ctx, event.NewEventWithCorrelation(outcome, req.ID, req.RequestNumber, payload, changed.CorrelationID))
}

func holdsRole(u *entity.User, role workflow.Role) bool {
	switch role {
	case workflow.RoleHead:
		return u.IsHead
	case workflow.RoleAdmin:
		return u.IsAdmin
	case workflow.RoleComptroller:
		return u.IsComptroller
	case workflow.RoleHR:
		return u.IsHR
	case workflow.RoleVP:
		return u.IsVP
	case workflow.RolePresident:
		return u.IsPresident
	default:
		return false
	}
}

// stageDepartment is the department whose head owns a head-level stage
func stageDepartment(req *entity.Request, stage workflow.Stage) string {
	if stage == workflow.StageParentHead {
		return derefString(req.ParentDepartmentID)
	}
	return req.DepartmentID
}

// passedBy reports whether a stage owned by role (and, for heads, by the actor's
// department) has already been approved on req
func passedBy(req *entity.Request, actor *entity.User, role workflow.Role) bool {
	for _, state := range workflow.PendingStates {
		stage, _ := workflow.StageFor(state)
		if stage.Role() != role || !req.Audit(stage).Passed() {
			continue
		}
		if role == workflow.RoleHead && stageDepartment(req, stage) != actor.DepartmentID {
			continue
		}
		return true
	}
	return false
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
