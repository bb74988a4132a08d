package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/travel-approval/internal/application/port"
	"github.com/garyjia/travel-approval/internal/domain/entity"
	"github.com/garyjia/travel-approval/internal/domain/workflow"
)

// Outcome describes a committed decision for the notification fan-out
type Outcome struct {
	RequestID          int64
	RequestNumber      string
	RequestType        string
	RequesterID        string
	RequesterName      string
	ParentDepartmentID string
	Action             workflow.Trigger
	ActorID            string
	ActorName          string
	ActorRole          workflow.Role
	NewStatus          workflow.State
	Reason             string

	// NextApproverID and NextApproverRole carry the escalation hint stored in
	// the request's workflow metadata
	NextApproverID   string
	NextApproverRole string
}

// Notifier creates the notifications that follow a decision. It never fails:
// it returns how many notifications were stored.
type Notifier interface {
	Notify(ctx context.Context, outcome Outcome) int
}

// NotificationService fans out decision notifications and serves user inboxes
type NotificationService interface {
	Notifier
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error)
}

type notificationServiceImpl struct {
	notificationRepo port.NotificationRepository
	userRepo         port.UserRepository
	metrics          port.MetricsRecorder
	actionBaseURL    string
	now              func() time.Time
	logger           Logger
}

// NewNotificationService creates a new NotificationService. actionBaseURL prefixes
// the /requests/{id} link stored on each notification and may be empty.
func NewNotificationService(
	notificationRepo port.NotificationRepository,
	userRepo port.UserRepository,
	metrics port.MetricsRecorder,
	actionBaseURL string,
	logger Logger,
) NotificationService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &notificationServiceImpl{
		notificationRepo: notificationRepo,
		userRepo:         userRepo,
		metrics:          metrics,
		actionBaseURL:    strings.TrimRight(actionBaseURL, "/"),
		now:              time.Now,
		logger:           logger,
	}
}

// Notify resolves recipients for the outcome and stores one notification each
func (s *notificationServiceImpl) Notify(ctx context.Context, o Outcome) int {
	var (
		recipients []string
		build      func(userID string) *entity.Notification
	)

	switch {
	case o.Action == workflow.TriggerApprove && o.NewStatus.IsPending():
		recipients = s.reviewers(ctx, o)
		build = func(userID string) *entity.Notification { return s.pendingReview(o, userID) }
	case o.NewStatus == workflow.StateApproved,
		o.Action == workflow.TriggerReject,
		o.Action == workflow.TriggerReturn:
		if o.RequesterID != "" {
			recipients = []string{o.RequesterID}
		}
		build = func(userID string) *entity.Notification { return s.outcomeNotice(o, userID) }
	default:
		s.logger.Info("No notification for decision",
			"request_id", o.RequestID,
			"action", o.Action,
			"new_status", o.NewStatus,
		)
		return 0
	}

	sent := 0
	for _, userID := range recipients {
		n := build(userID)
		if err := s.create(ctx, n); err != nil {
			s.metrics.NotificationFailed(n.NotificationType)
			s.logger.Error("Failed to create notification",
				"request_id", o.RequestID,
				"user_id", userID,
				"notification_type", n.NotificationType,
				"error", err,
			)
			continue
		}
		s.metrics.NotificationCreated(n.NotificationType)
		sent++
	}

	s.logger.Info("Notifications dispatched",
		"request_id", o.RequestID,
		"new_status", o.NewStatus,
		"recipients", len(recipients),
		"sent", sent,
	)
	return sent
}

// create stores one notification, turning a panic into an error so one
// recipient cannot abort the batch
func (s *notificationServiceImpl) create(ctx context.Context, n *entity.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notification panic: %v", r)
		}
	}()
	return s.notificationRepo.Create(ctx, n)
}

// reviewers returns the active members of the role that now holds the request,
// without the acting user
func (s *notificationServiceImpl) reviewers(ctx context.Context, o Outcome) []string {
	role, ok := workflow.RecipientRole(o.NewStatus)
	if !ok {
		s.logger.Info("Stage has no human reviewers", "request_id", o.RequestID, "new_status", o.NewStatus)
		return nil
	}

	var (
		users []*entity.User
		err   error
	)
	if o.NewStatus == workflow.StatePendingParentHead {
		if o.ParentDepartmentID == "" {
			s.logger.Error("Parent head stage without parent department", "request_id", o.RequestID)
			return nil
		}
		users, err = s.userRepo.ListDepartmentHeads(ctx, o.ParentDepartmentID)
	} else {
		users, err = s.userRepo.ListActiveByRole(ctx, role)
	}
	if err != nil {
		s.metrics.NotificationFailed(entity.NotificationTypePendingReview)
		s.logger.Error("Failed to resolve reviewers",
			"request_id", o.RequestID,
			"role", role,
			"error", err,
		)
		return nil
	}

	seen := make(map[string]bool, len(users))
	ids := make([]string, 0, len(users))
	for _, u := range users {
		if u == nil || !u.IsActive || u.ID == o.ActorID || seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		ids = append(ids, u.ID)
	}

	if id := s.hintedReviewer(ctx, o, role); id != "" && !seen[id] {
		ids = append(ids, id)
	}
	return ids
}

// hintedReviewer returns the escalation target named in the request metadata
// when that user is active and holds the role of the new stage
func (s *notificationServiceImpl) hintedReviewer(ctx context.Context, o Outcome, role workflow.Role) string {
	if o.NextApproverID == "" || o.NextApproverID == o.ActorID {
		return ""
	}
	if o.NextApproverRole != "" && workflow.Role(o.NextApproverRole) != role {
		return ""
	}

	u, err := s.userRepo.GetByID(ctx, o.NextApproverID)
	if err != nil {
		s.logger.Error("Failed to resolve hinted reviewer",
			"request_id", o.RequestID,
			"user_id", o.NextApproverID,
			"error", err,
		)
		return ""
	}
	if u == nil || !u.IsActive || !holdsRole(u, role) {
		return ""
	}
	return u.ID
}

func (s *notificationServiceImpl) pendingReview(o Outcome, userID string) *entity.Notification {
	return &entity.Notification{
		UserID:           userID,
		NotificationType: entity.NotificationTypePendingReview,
		Title:            fmt.Sprintf("%s pending your review", requestLabel(o.RequestType)),
		Message: fmt.Sprintf("%s %s from %s was approved by %s (%s) and is awaiting your review.",
			requestLabel(o.RequestType), o.RequestNumber, o.RequesterName, o.ActorName, o.ActorRole.Title()),
		RelatedType: o.RequestType,
		RelatedID:   o.RequestID,
		ActionURL:   s.actionURL(o.RequestID),
		Priority:    entity.PriorityHigh,
		CreatedAt:   s.now(),
	}
}

func (s *notificationServiceImpl) outcomeNotice(o Outcome, userID string) *entity.Notification {
	label := requestLabel(o.RequestType)
	n := &entity.Notification{
		UserID:      userID,
		RelatedType: o.RequestType,
		RelatedID:   o.RequestID,
		ActionURL:   s.actionURL(o.RequestID),
		Priority:    entity.PriorityNormal,
		CreatedAt:   s.now(),
	}

	switch {
	case o.Action == workflow.TriggerReject:
		n.NotificationType = entity.NotificationTypeRejected
		n.Title = fmt.Sprintf("%s rejected", label)
		n.Message = fmt.Sprintf("Your %s %s was rejected by %s (%s).", strings.ToLower(label), o.RequestNumber, o.ActorName, o.ActorRole.Title())
	case o.Action == workflow.TriggerReturn:
		n.NotificationType = entity.NotificationTypeReturned
		n.Title = fmt.Sprintf("%s returned for revision", label)
		n.Message = fmt.Sprintf("Your %s %s was returned by %s (%s).", strings.ToLower(label), o.RequestNumber, o.ActorName, o.ActorRole.Title())
	default:
		n.NotificationType = entity.NotificationTypeApproved
		n.Title = fmt.Sprintf("%s approved", label)
		n.Message = fmt.Sprintf("Your %s %s received final approval from %s (%s).", strings.ToLower(label), o.RequestNumber, o.ActorName, o.ActorRole.Title())
	}

	if o.Reason != "" {
		n.Message += " Reason: " + o.Reason
	}
	return n
}

func (s *notificationServiceImpl) actionURL(requestID int64) string {
	return fmt.Sprintf("%s/requests/%d", s.actionBaseURL, requestID)
}

// ListForUser returns a user's notifications, newest first
func (s *notificationServiceImpl) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newError(CodeInvalidInput, nil, "user id is required")
	}

	items, err := s.notificationRepo.ListByUser(ctx, userID, unreadOnly, clampLimit(limit))
	if err != nil {
		s.logger.Error("Failed to list notifications", "error", err, "user_id", userID)
		return nil, newError(CodePersistence, err, "list notifications for %s", userID)
	}
	return items, nil
}

func requestLabel(requestType string) string {
	if requestType == entity.RequestTypeSeminar {
		return "Seminar request"
	}
	return "Travel order"
}
