package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/travel-approval/internal/application/dispatcher"
	"github.com/garyjia/travel-approval/internal/application/port"
	"github.com/garyjia/travel-approval/internal/domain/entity"
	"github.com/garyjia/travel-approval/internal/domain/event"
	"github.com/garyjia/travel-approval/internal/domain/workflow"
)

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func directory() *mockUserRepo {
	return newMockUserRepo(
		&entity.User{ID: "head-cas", Name: "Dean Reyes", DepartmentID: "CAS", IsHead: true, IsActive: true},
		&entity.User{ID: "head-univ", Name: "Dr. Santos", DepartmentID: "UNIV", IsHead: true, IsActive: true},
		&entity.User{ID: "admin-1", Name: "Ana Cruz", IsAdmin: true, IsActive: true},
		&entity.User{ID: "comp-1", Name: "Carl Lim", IsComptroller: true, IsActive: true},
		&entity.User{ID: "comp-2", Name: "Cora Tan", IsComptroller: true, IsActive: true},
		&entity.User{ID: "hr-1", Name: "Hana Go", IsHR: true, IsActive: true},
		&entity.User{ID: "vp-1", Name: "Victor Uy", IsVP: true, IsActive: true},
		&entity.User{ID: "vp-old", Name: "Vera Sy", IsVP: true, IsActive: false},
		&entity.User{ID: "pres-1", Name: "Pia Chua", IsPresident: true, IsActive: true},
		&entity.User{ID: "req-1", Name: "Rico Dela", DepartmentID: "CAS", IsActive: true},
	)
}

func newRequest(status workflow.State, mods ...func(r *entity.Request)) *entity.Request {
	r := &entity.Request{
		ID:            1,
		RequestNumber: "TO-2026-0001",
		RequestType:   entity.RequestTypeTravelOrder,
		RequesterID:   "req-1",
		RequesterName: "Rico Dela",
		DepartmentID:  "CAS",
		Status:        status,
	}
	for _, m := range mods {
		m(r)
	}
	return r
}

func withBudget(total int64) func(r *entity.Request) {
	return func(r *entity.Request) {
		r.HasBudget = true
		r.TotalBudget = decimal.NewNullDecimal(decimal.NewFromInt(total))
	}
}

func withParent(dept string) func(r *entity.Request) {
	return func(r *entity.Request) { r.ParentDepartmentID = &dept }
}

type fixture struct {
	requests *memRequestRepo
	users    *mockUserRepo
	history  *mockHistoryRepo
	tx       *mockTxManager
	notifier *mockNotifier
	metrics  *mockMetrics
	svc      DecisionService
}

func newFixture(req *entity.Request, opts ...DecisionOption) *fixture {
	f := &fixture{
		requests: newMemRequestRepo(req),
		users:    directory(),
		history:  &mockHistoryRepo{},
		tx:       &mockTxManager{},
		notifier: &mockNotifier{},
		metrics:  &mockMetrics{},
	}
	opts = append([]DecisionOption{WithClock(func() time.Time { return fixedNow }), WithMetrics(f.metrics)}, opts...)
	f.svc = NewDecisionService(f.requests, f.users, f.history, f.tx, workflow.NewTravelPolicy(), f.notifier, &mockLogger{}, opts...)
	return f
}

func approve(actor string, role workflow.Role) Decision {
	return Decision{RequestID: 1, ActorID: actor, Role: role, Action: workflow.TriggerApprove, Signature: "sig:" + actor}
}

func TestSubmitDecision_ScenarioA_HeadApprovesToAdmin(t *testing.T) {
	f := newFixture(newRequest(workflow.StatePendingHead))

	result, err := f.svc.SubmitDecision(context.Background(), approve("head-cas", workflow.RoleHead))
	require.NoError(t, err)

	assert.Equal(t, workflow.StatePendingHead, result.PreviousStatus)
	assert.Equal(t, workflow.StatePendingAdmin, result.NewStatus)

	stored := f.requests.snapshot(1)
	require.NotNil(t, stored.Head.At)
	assert.Equal(t, fixedNow, *stored.Head.At)
	assert.Equal(t, "head-cas", stored.Head.By)
	assert.Equal(t, "sig:head-cas", stored.Head.Signature)

	require.Len(t, f.history.entries, 1)
	assert.Equal(t, "pending_head", f.history.entries[0].PreviousStatus)
	assert.Equal(t, "pending_admin", f.history.entries[0].NewStatus)
	assert.Equal(t, 1, f.tx.calls)

	require.Len(t, f.notifier.outcomes, 1)
	assert.Equal(t, workflow.StatePendingAdmin, f.notifier.outcomes[0].NewStatus)
	assert.Equal(t, "Dean Reyes", f.notifier.outcomes[0].ActorName)
	assert.Equal(t, []string{"approve:success"}, f.metrics.decisions)
}

func TestSubmitDecision_ScenarioB_VPAboveThreshold(t *testing.T) {
	f := newFixture(newRequest(workflow.StatePendingVP, withBudget(20000)))

	result, err := f.svc.SubmitDecision(context.Background(), approve("vp-1", workflow.RoleVP))
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePendingPresident, result.NewStatus)
}

func TestSubmitDecision_VPAtThresholdApproves(t *testing.T) {
	f := newFixture(newRequest(workflow.StatePendingVP, withBudget(15000)))

	result, err := f.svc.SubmitDecision(context.Background(), approve("vp-1", workflow.RoleVP))
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, result.NewStatus)
}

func TestSubmitDecision_ScenarioC_ComptrollerNotifiesOnlyHR(t *testing.T) {
	req := newRequest(workflow.StatePendingComptroller, withBudget(8000))
	requests := newMemRequestRepo(req)
	users := directory()
	notifications := &mockNotificationRepo{}
	notifier := NewNotificationService(notifications, users, nil, "", &mockLogger{})
	svc := NewDecisionService(requests, users, &mockHistoryRepo{}, &mockTxManager{}, workflow.NewTravelPolicy(), notifier, &mockLogger{})

	d := approve("comp-1", workflow.RoleComptroller)
	d.Signature = ""
	result, err := svc.SubmitDecision(context.Background(), d)
	require.NoError(t, err)

	assert.Equal(t, workflow.StatePendingHR, result.NewStatus)
	assert.Equal(t, 1, result.NotificationsSent)
	assert.Equal(t, []string{"hr-1"}, notifications.recipients())
	assert.Equal(t, entity.NotificationTypePendingReview, notifications.created[0].NotificationType)
	assert.Empty(t, requests.snapshot(1).Comptroller.Signature)
}

func TestSubmitDecision_ScenarioD_PresidentRejects(t *testing.T) {
	req := newRequest(workflow.StatePendingPresident, withBudget(30000))
	requests := newMemRequestRepo(req)
	users := directory()
	notifications := &mockNotificationRepo{}
	notifier := NewNotificationService(notifications, users, nil, "https://travel.example.edu", &mockLogger{})
	svc := NewDecisionService(requests, users, &mockHistoryRepo{}, &mockTxManager{}, workflow.NewTravelPolicy(), notifier, &mockLogger{},
		WithClock(func() time.Time { return fixedNow }))

	result, err := svc.SubmitDecision(context.Background(), Decision{
		RequestID:       1,
		ActorID:         "pres-1",
		Role:            workflow.RolePresident,
		Action:          workflow.TriggerReject,
		RejectionReason: "insufficient justification",
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.StateRejected, result.NewStatus)

	stored := requests.snapshot(1)
	assert.Equal(t, "president", stored.RejectionStage)
	assert.Equal(t, "insufficient justification", stored.RejectionReason)
	assert.Equal(t, "pres-1", stored.RejectedBy)
	assert.Nil(t, stored.President.At)

	require.Len(t, notifications.created, 1)
	n := notifications.created[0]
	assert.Equal(t, "req-1", n.UserID)
	assert.Equal(t, entity.NotificationTypeRejected, n.NotificationType)
	assert.Equal(t, "https://travel.example.edu/requests/1", n.ActionURL)
	assert.Contains(t, n.Message, "Pia Chua (President)")
}

func TestSubmitDecision_IdempotentApprove(t *testing.T) {
	f := newFixture(newRequest(workflow.StatePendingHR, withBudget(1000)))

	_, err := f.svc.SubmitDecision(context.Background(), approve("hr-1", workflow.RoleHR))
	require.NoError(t, err)
	after := f.requests.snapshot(1)

	_, err = f.svc.SubmitDecision(context.Background(), approve("hr-1", workflow.RoleHR))
	assert.True(t, errors.Is(err, ErrAlreadyProcessed), "got %v", err)

	assert.Equal(t, after, f.requests.snapshot(1))
	assert.Len(t, f.history.entries, 1)
	assert.Equal(t, []string{"approve:success", "approve:already_processed"}, f.metrics.decisions)
}

func TestSubmitDecision_ParentHeadStageAfterOwnApproval(t *testing.T) {
	f := newFixture(newRequest(workflow.StatePendingHead, withParent("UNIV")))

	result, err := f.svc.SubmitDecision(context.Background(), approve("head-cas", workflow.RoleHead))
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePendingParentHead, result.NewStatus)
	assert.Equal(t, "UNIV", f.notifier.outcomes[0].ParentDepartmentID)

	_, err = f.svc.SubmitDecision(context.Background(), approve("head-cas", workflow.RoleHead))
	assert.True(t, errors.Is(err, ErrAlreadyProcessed), "got %v", err)

	result, err = f.svc.SubmitDecision(context.Background(), approve("head-univ", workflow.RoleHead))
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePendingAdmin, result.NewStatus)
	assert.Equal(t, "head-univ", f.requests.snapshot(1).ParentHead.By)
}

func TestSubmitDecision_Unauthorized(t *testing.T) {
	tests := []struct {
		name     string
		status   workflow.State
		decision Decision
	}{
		{"role does not own stage", workflow.StatePendingVP, approve("head-cas", workflow.RoleHead)},
		{"actor lacks role flag", workflow.StatePendingVP, approve("hr-1", workflow.RoleVP)},
		{"inactive actor", workflow.StatePendingVP, approve("vp-old", workflow.RoleVP)},
		{"unknown actor", workflow.StatePendingVP, approve("ghost", workflow.RoleVP)},
		{"head of another department", workflow.StatePendingHead, approve("head-univ", workflow.RoleHead)},
		{"not an approver role", workflow.StatePendingVP, approve("vp-1", workflow.Role("dean"))},
		{"draft request", workflow.StateDraft, approve("head-cas", workflow.RoleHead)},
		{"head outside chain rejects", workflow.StatePendingHR, Decision{RequestID: 1, ActorID: "head-univ", Role: workflow.RoleHead, Action: workflow.TriggerReject, RejectionReason: "no"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(newRequest(tt.status))
			before := f.requests.snapshot(1)

			_, err := f.svc.SubmitDecision(context.Background(), tt.decision)
			assert.True(t, errors.Is(err, ErrUnauthorized), "got %v", err)
			assert.Equal(t, 0, f.requests.applyCalls)
			assert.Equal(t, before, f.requests.snapshot(1))
			assert.Empty(t, f.notifier.outcomes)
		})
	}
}

func TestSubmitDecision_NotFound(t *testing.T) {
	f := newFixture(newRequest(workflow.StatePendingHead))

	d := approve("head-cas", workflow.RoleHead)
	d.RequestID = 99
	_, err := f.svc.SubmitDecision(context.Background(), d)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestSubmitDecision_TerminalRequest(t *testing.T) {
	for _, status := range []workflow.State{workflow.StateApproved, workflow.StateRejected, workflow.StateReturned, workflow.StateCancelled} {
		f := newFixture(newRequest(status))
		_, err := f.svc.SubmitDecision(context.Background(), Decision{
			RequestID: 1, ActorID: "vp-1", Role: workflow.RoleVP, Action: workflow.TriggerReject, RejectionReason: "late",
		})
		assert.True(t, errors.Is(err, ErrAlreadyProcessed), "%s: got %v", status, err)
	}
}

func TestSubmitDecision_ReadTimeout(t *testing.T) {
	f := newFixture(newRequest(workflow.StatePendingHR), WithReadTimeout(10*time.Millisecond))
	f.requests.getByIDFunc = func(ctx context.Context, id int64) (*entity.Request, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := f.svc.SubmitDecision(context.Background(), approve("hr-1", workflow.RoleHR))
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
	assert.Equal(t, 0, f.requests.applyCalls)
}

func TestSubmitDecision_CancelledBeforeWrite(t *testing.T) {
	f := newFixture(newRequest(workflow.StatePendingHR))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.SubmitDecision(ctx, approve("hr-1", workflow.RoleHR))
	assert.True(t, errors.Is(err, ErrCancelled), "got %v", err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, f.requests.applyCalls)
	assert.Equal(t, workflow.StatePendingHR, f.requests.snapshot(1).Status)
}

func TestSubmitDecision_CancelAfterCommitStillNotifies(t *testing.T) {
	f := newFixture(newRequest(workflow.StatePendingHR))

	ctx, cancel := context.WithCancel(context.Background())
	f.requests.applyDecisionFunc = func(ctx context.Context, u *port.DecisionUpdate) (bool, error) {
		cancel()
		return true, nil
	}

	result, err := f.svc.SubmitDecision(ctx, approve("hr-1", workflow.RoleHR))
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePendingVP, result.NewStatus)
	require.Len(t, f.notifier.outcomes, 1)
	assert.NoError(t, f.notifier.ctxErr)
}

func TestSubmitDecision_PersistenceFailure(t *testing.T) {
	f := newFixture(newRequest(workflow.StatePendingHR))
	f.requests.applyDecisionFunc = func(ctx context.Context, u *port.DecisionUpdate) (bool, error) {
		return false, errStore
	}

	_, err := f.svc.SubmitDecision(context.Background(), approve("hr-1", workflow.RoleHR))
	assert.True(t, errors.Is(err, ErrPersistence), "got %v", err)
	assert.True(t, errors.Is(err, errStore))
	assert.Empty(t, f.notifier.outcomes)
}

func TestSubmitDecision_HistoryFailureIsPersistenceError(t *testing.T) {
	f := newFixture(newRequest(workflow.StatePendingHR))
	f.history.createFunc = func(ctx context.Context, h *entity.ApprovalHistory) error { return errStore }

	_, err := f.svc.SubmitDecision(context.Background(), approve("hr-1", workflow.RoleHR))
	assert.True(t, errors.Is(err, ErrPersistence), "got %v", err)
}

func TestSubmitDecision_ConcurrentWriterWins(t *testing.T) {
	f := newFixture(newRequest(workflow.StatePendingHR))
	f.requests.applyDecisionFunc = func(ctx context.Context, u *port.DecisionUpdate) (bool, error) {
		assert.Equal(t, workflow.StatePendingHR, u.ExpectedStatus)
		assert.Equal(t, workflow.StageHR, u.Stage)
		return false, nil
	}

	_, err := f.svc.SubmitDecision(context.Background(), approve("hr-1", workflow.RoleHR))
	assert.True(t, errors.Is(err, ErrAlreadyProcessed), "got %v", err)
	assert.Empty(t, f.history.entries)
}

func TestSubmitDecision_ConcurrentApprovalsAdvanceOnce(t *testing.T) {
	f := newFixture(newRequest(workflow.StatePendingHR))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.SubmitDecision(context.Background(), approve("hr-1", workflow.RoleHR))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrAlreadyProcessed), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workflow.StatePendingVP, f.requests.snapshot(1).Status)
}

func TestSubmitDecision_InvalidInput(t *testing.T) {
	budget := decimal.NewFromInt(-5)
	fine := decimal.NewFromInt(900)

	tests := []struct {
		name     string
		status   workflow.State
		decision Decision
	}{
		{"missing signature for head", workflow.StatePendingHead, Decision{RequestID: 1, ActorID: "head-cas", Role: workflow.RoleHead, Action: workflow.TriggerApprove}},
		{"reject without reason", workflow.StatePendingHR, Decision{RequestID: 1, ActorID: "hr-1", Role: workflow.RoleHR, Action: workflow.TriggerReject, RejectionReason: "  "}},
		{"return without reason", workflow.StatePendingHR, Decision{RequestID: 1, ActorID: "hr-1", Role: workflow.RoleHR, Action: workflow.TriggerReturn}},
		{"unknown action", workflow.StatePendingHR, Decision{RequestID: 1, ActorID: "hr-1", Role: workflow.RoleHR, Action: "escalate"}},
		{"negative edited budget", workflow.StatePendingComptroller, Decision{RequestID: 1, ActorID: "comp-1", Role: workflow.RoleComptroller, Action: workflow.TriggerApprove, EditedBudget: &budget}},
		{"budget edit by non-comptroller", workflow.StatePendingHR, Decision{RequestID: 1, ActorID: "hr-1", Role: workflow.RoleHR, Action: workflow.TriggerApprove, Signature: "s", EditedBudget: &fine}},
		{"non-positive request id", workflow.StatePendingHR, Decision{RequestID: 0, ActorID: "hr-1", Role: workflow.RoleHR, Action: workflow.TriggerApprove}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(newRequest(tt.status))
			_, err := f.svc.SubmitDecision(context.Background(), tt.decision)
			assert.True(t, errors.Is(err, ErrInvalidInput), "got %v", err)
			assert.Equal(t, 0, f.requests.applyCalls)
		})
	}
}

func TestSubmitDecision_ComptrollerEditsBudget(t *testing.T) {
	f := newFixture(newRequest(workflow.StatePendingComptroller, withBudget(20000)))
	edited := decimal.NewFromInt(12000)

	_, err := f.svc.SubmitDecision(context.Background(), Decision{
		RequestID: 1, ActorID: "comp-1", Role: workflow.RoleComptroller, Action: workflow.TriggerApprove,
		Comments: "airfare capped", EditedBudget: &edited,
	})
	require.NoError(t, err)

	stored := f.requests.snapshot(1)
	assert.True(t, stored.ComptrollerEditedBudget.Valid)
	assert.True(t, stored.EffectiveBudget().Equal(edited))
	assert.True(t, stored.TotalBudget.Decimal.Equal(decimal.NewFromInt(20000)))
	assert.Equal(t, "airfare capped", stored.Comptroller.Comments)

	_, err = f.svc.SubmitDecision(context.Background(), approve("hr-1", workflow.RoleHR))
	require.NoError(t, err)
	result, err := f.svc.SubmitDecision(context.Background(), approve("vp-1", workflow.RoleVP))
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, result.NewStatus)
}

func TestSubmitDecision_Return(t *testing.T) {
	f := newFixture(newRequest(workflow.StatePendingAdmin))

	result, err := f.svc.SubmitDecision(context.Background(), Decision{
		RequestID: 1, ActorID: "admin-1", Role: workflow.RoleAdmin, Action: workflow.TriggerReturn,
		ReturnReason: "attach the seminar invitation",
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.StateReturned, result.NewStatus)

	stored := f.requests.snapshot(1)
	assert.Equal(t, "attach the seminar invitation", stored.ReturnReason)
	assert.Equal(t, "admin", stored.ReturnStage)
	assert.Equal(t, "attach the seminar invitation", stored.Admin.Comments)
	assert.Nil(t, stored.Admin.At)
	assert.Empty(t, stored.RejectionReason)
	assert.Nil(t, stored.RejectedAt)
}

func TestSubmitDecision_RejectFromEveryPendingState(t *testing.T) {
	for _, status := range workflow.PendingStates {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(newRequest(status, withParent("UNIV")))

			result, err := f.svc.SubmitDecision(context.Background(), Decision{
				RequestID: 1, ActorID: "vp-1", Role: workflow.RoleVP, Action: workflow.TriggerReject, RejectionReason: "over budget",
			})
			require.NoError(t, err)
			assert.Equal(t, workflow.StateRejected, result.NewStatus)
			assert.Equal(t, "vp", f.requests.snapshot(1).RejectionStage)
		})
	}
}

func TestSubmitDecision_NotificationFailureDoesNotFail(t *testing.T) {
	req := newRequest(workflow.StatePendingHR)
	requests := newMemRequestRepo(req)
	users := directory()
	metrics := &mockMetrics{}
	notifications := &mockNotificationRepo{createFunc: func(ctx context.Context, n *entity.Notification) error { return errStore }}
	notifier := NewNotificationService(notifications, users, metrics, "", &mockLogger{})
	svc := NewDecisionService(requests, users, &mockHistoryRepo{}, &mockTxManager{}, workflow.NewTravelPolicy(), notifier, &mockLogger{})

	result, err := svc.SubmitDecision(context.Background(), approve("hr-1", workflow.RoleHR))
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePendingVP, result.NewStatus)
	assert.Equal(t, 0, result.NotificationsSent)
	assert.Equal(t, 1, metrics.failed)
	assert.Equal(t, workflow.StatePendingVP, requests.snapshot(1).Status)
}

func TestSubmitDecision_EmitsEvents(t *testing.T) {
	d := dispatcher.NewDispatcher()
	var (
		mu   sync.Mutex
		seen []*event.Event
	)
	d.SubscribeAll(event.AllTypes(), "recorder", func(ctx context.Context, evt *event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, evt)
		return nil
	})

	f := newFixture(newRequest(workflow.StatePendingPresident), WithEvents(d))
	_, err := f.svc.SubmitDecision(context.Background(), approve("pres-1", workflow.RolePresident))
	require.NoError(t, err)
	require.NoError(t, d.Close())

	require.Len(t, seen, 2)
	types := map[event.Type]*event.Event{}
	for _, e := range seen {
		types[e.Type] = e
	}
	changed := types[event.TypeStatusChanged]
	require.NotNil(t, changed)
	assert.Equal(t, int64(1), changed.RequestID)
	assert.Equal(t, "approved", changed.GetPayloadString("new_status"))
	require.NotNil(t, types[event.TypeRequestApproved])
	assert.Equal(t, changed.CorrelationID, types[event.TypeRequestApproved].CorrelationID)
}

func TestSubmitDecision_PassesNextApproverHint(t *testing.T) {
	f := newFixture(newRequest(workflow.StatePendingHR, func(r *entity.Request) {
		r.WorkflowMetadata = map[string]interface{}{
			entity.MetadataNextApproverID:   "vp-1",
			entity.MetadataNextApproverRole: "vp",
		}
	}))

	_, err := f.svc.SubmitDecision(context.Background(), approve("hr-1", workflow.RoleHR))
	require.NoError(t, err)

	require.Len(t, f.notifier.outcomes, 1)
	assert.Equal(t, "vp-1", f.notifier.outcomes[0].NextApproverID)
	assert.Equal(t, "vp", f.notifier.outcomes[0].NextApproverRole)
}
