package subscription

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutrack/edutrack/internal/payment"
	"github.com/edutrack/edutrack/internal/plan"
	"github.com/edutrack/edutrack/internal/school"
)

type recordedEvent struct {
	Kind     string // activated, expiring, expired
	SchoolID string
	Renewed  bool
	DaysLeft int
}

// recordingNotifier captures lifecycle events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingNotifier) SubscriptionActivated(_ context.Context, sc *school.School, _ *plan.Plan, _ *Subscription, renewed bool) error {
	r.record(recordedEvent{Kind: "activated", SchoolID: sc.ID, Renewed: renewed})
	return nil
}

func (r *recordingNotifier) SubscriptionExpiring(_ context.Context, sc *school.School, _ *Subscription, daysLeft int) error {
	r.record(recordedEvent{Kind: "expiring", SchoolID: sc.ID, DaysLeft: daysLeft})
	return nil
}

func (r *recordingNotifier) SubscriptionExpired(_ context.Context, sc *school.School, _ *Subscription) error {
	r.record(recordedEvent{Kind: "expired", SchoolID: sc.ID})
	return nil
}

func (r *recordingNotifier) record(e recordedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingNotifier) ofKind(kind string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc      *Service
	store    *MemoryStore
	payments *payment.MemoryStore
	plans    *plan.MemoryStore
	schools  *school.MemoryStore
	notifier *recordingNotifier
	now      time.Time
}

func intp(n int) *int { return &n }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fx := &fixture{
		payments: payment.NewMemoryStore(),
		plans:    plan.NewMemoryStore(),
		schools:  school.NewMemoryStore(),
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	fx.store = NewMemoryStore(fx.payments)

	ctx := context.Background()
	require.NoError(t, fx.plans.Create(ctx, &plan.Plan{
		ID: "plan_monthly", Name: "Monthly", Price: "10000.00", Currency: "NGN",
		DurationDays: intp(30), Active: true,
	}))
	require.NoError(t, fx.plans.Create(ctx, &plan.Plan{
		ID: "plan_lifetime", Name: "Lifetime", Price: "500000.00", Currency: "NGN",
		Active: true,
	}))
	require.NoError(t, fx.schools.Create(ctx, &school.School{
		ID: "sch_1", Name: "Greenfield Academy", Code: "GFA", Active: true,
	}))
	require.NoError(t, fx.schools.Create(ctx, &school.School{
		ID: "sch_demo", Name: "Demo School", Code: "DEMO", Active: true, Demo: true,
	}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fx.svc = NewService(fx.store, fx.payments, fx.plans, fx.schools, logger,
		WithClock(func() time.Time { return fx.now }),
		WithNotifier(fx.notifier),
		WithWarningWindow(7*24*time.Hour),
		WithDemoCode("DEMO"),
	)
	return fx
}

func (fx *fixture) pending(t *testing.T, id, schoolID, planID, reference string) {
	t.Helper()
	require.NoError(t, fx.payments.Create(context.Background(), &payment.Payment{
		ID: id, SchoolID: schoolID, PlanID: planID,
		Amount: "10000.00", Currency: "NGN", Reference: reference,
		Status: payment.StatusPending, CreatedAt: fx.now, UpdatedAt: fx.now,
	}))
}

func TestProcessVerifiedActivatesNewSubscription(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")

	act, err := fx.svc.ProcessVerified(ctx, VerifiedPayment{
		Reference: "ref_1", TransactionID: 42, Channel: "card",
	})
	require.NoError(t, err)
	assert.True(t, act.Created)
	assert.Equal(t, StatusActive, act.Subscription.Status)
	require.NotNil(t, act.Subscription.EndDate)
	assert.True(t, act.Subscription.EndDate.Equal(fx.now.Add(30*24*time.Hour)))

	pay, err := fx.payments.GetByReference(ctx, "ref_1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, pay.Status)
	assert.Equal(t, "42", pay.TransactionID)

	events := fx.notifier.ofKind("activated")
	require.Len(t, events, 1)
	assert.False(t, events[0].Renewed)
}

func TestProcessVerifiedDuplicateIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")

	vp := VerifiedPayment{Reference: "ref_1", TransactionID: 42, Channel: "card"}
	_, err := fx.svc.ProcessVerified(ctx, vp)
	require.NoError(t, err)

	_, err = fx.svc.ProcessVerified(ctx, vp)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Len(t, fx.notifier.ofKind("activated"), 1)
}

func TestProcessVerifiedUnknownReference(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.ProcessVerified(context.Background(), VerifiedPayment{
		Reference: "never_seen", TransactionID: 1,
	})
	assert.ErrorIs(t, err, ErrUnknownReference)
}

func TestProcessVerifiedRenewalExtendsFromCurrentEnd(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")
	first, err := fx.svc.ProcessVerified(ctx, VerifiedPayment{Reference: "ref_1", TransactionID: 1})
	require.NoError(t, err)

	// Renew 10 days in, 20 days before expiry. The new period stacks on
	// the old end date so the school keeps the time it paid for.
	fx.now = fx.now.Add(10 * 24 * time.Hour)
	fx.pending(t, "pay_2", "sch_1", "plan_monthly", "ref_2")
	second, err := fx.svc.ProcessVerified(ctx, VerifiedPayment{Reference: "ref_2", TransactionID: 2})
	require.NoError(t, err)

	assert.False(t, second.Created)
	require.NotNil(t, second.Subscription.EndDate)
	assert.True(t, second.Subscription.EndDate.Equal(first.Subscription.EndDate.Add(30*24*time.Hour)))
	assert.True(t, second.Subscription.StartDate.Equal(first.Subscription.StartDate))

	events := fx.notifier.ofKind("activated")
	require.Len(t, events, 2)
	assert.True(t, events[1].Renewed)
}

func TestProcessVerifiedAfterExpiryStartsFresh(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")
	_, err := fx.svc.ProcessVerified(ctx, VerifiedPayment{Reference: "ref_1", TransactionID: 1})
	require.NoError(t, err)

	// Come back 40 days later, 10 days after lapse.
	fx.now = fx.now.Add(40 * 24 * time.Hour)
	fx.pending(t, "pay_2", "sch_1", "plan_monthly", "ref_2")
	act, err := fx.svc.ProcessVerified(ctx, VerifiedPayment{Reference: "ref_2", TransactionID: 2})
	require.NoError(t, err)

	assert.True(t, act.Subscription.StartDate.Equal(fx.now))
	require.NotNil(t, act.Subscription.EndDate)
	assert.True(t, act.Subscription.EndDate.Equal(fx.now.Add(30*24*time.Hour)))
}

func TestProcessVerifiedLifetimePlan(t *testing.T) {
	fx := newFixture(t)
	fx.pending(t, "pay_1", "sch_1", "plan_lifetime", "ref_1")

	act, err := fx.svc.ProcessVerified(context.Background(), VerifiedPayment{
		Reference: "ref_1", TransactionID: 1,
	})
	require.NoError(t, err)
	assert.Nil(t, act.Subscription.EndDate)

	active, err := fx.svc.IsActive(context.Background(), "sch_1")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestIsActiveWithoutSubscription(t *testing.T) {
	fx := newFixture(t)

	active, err := fx.svc.IsActive(context.Background(), "sch_1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestIsActiveDemoBypass(t *testing.T) {
	fx := newFixture(t)

	active, err := fx.svc.IsActive(context.Background(), "sch_demo")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestIsActiveDeactivatedSchoolOverridesSubscription(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")
	_, err := fx.svc.ProcessVerified(ctx, VerifiedPayment{Reference: "ref_1", TransactionID: 1})
	require.NoError(t, err)

	require.NoError(t, fx.schools.Deactivate(ctx, "sch_1"))

	active, err := fx.svc.IsActive(ctx, "sch_1")
	require.NoError(t, err)
	assert.False(t, active)

	info, err := fx.svc.Status(ctx, "sch_1")
	require.NoError(t, err)
	assert.False(t, info.IsActive)
	assert.Equal(t, "deactivated", info.Status)

	// The subscription record keeps its state for reactivation later.
	sub, err := fx.store.GetBySchool(ctx, "sch_1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sub.Status)
}

func TestIsActiveDeactivatedDemoSchool(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.schools.Deactivate(ctx, "sch_demo"))

	active, err := fx.svc.IsActive(ctx, "sch_demo")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestIsActiveExpiresLapsedSubscriptionInPlace(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")
	_, err := fx.svc.ProcessVerified(ctx, VerifiedPayment{Reference: "ref_1", TransactionID: 1})
	require.NoError(t, err)

	fx.now = fx.now.Add(31 * 24 * time.Hour)
	active, err := fx.svc.IsActive(ctx, "sch_1")
	require.NoError(t, err)
	assert.False(t, active)

	sub, err := fx.store.GetBySchool(ctx, "sch_1")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, sub.Status)
	assert.Len(t, fx.notifier.ofKind("expired"), 1)
}

func TestStatusSummary(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	info, err := fx.svc.Status(ctx, "sch_1")
	require.NoError(t, err)
	assert.False(t, info.IsActive)
	assert.Equal(t, "none", info.Status)

	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")
	_, err = fx.svc.ProcessVerified(ctx, VerifiedPayment{Reference: "ref_1", TransactionID: 1})
	require.NoError(t, err)

	info, err = fx.svc.Status(ctx, "sch_1")
	require.NoError(t, err)
	assert.True(t, info.IsActive)
	assert.Equal(t, "active", info.Status)
	assert.Equal(t, "Monthly", info.PlanName)
	require.NotNil(t, info.DaysRemaining)
	assert.Equal(t, 30, *info.DaysRemaining)
	require.NotNil(t, info.ExpiresAt)
}

func TestSweepExpired(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.schools.Create(ctx, &school.School{
		ID: "sch_2", Name: "Hillcrest College", Code: "HCC", Active: true,
	}))

	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")
	_, err := fx.svc.ProcessVerified(ctx, VerifiedPayment{Reference: "ref_1", TransactionID: 1})
	require.NoError(t, err)

	// Second school activates 20 days later and is still inside its
	// period when the first lapses.
	fx.now = fx.now.Add(20 * 24 * time.Hour)
	fx.pending(t, "pay_2", "sch_2", "plan_monthly", "ref_2")
	_, err = fx.svc.ProcessVerified(ctx, VerifiedPayment{Reference: "ref_2", TransactionID: 2})
	require.NoError(t, err)

	fx.now = fx.now.Add(11 * 24 * time.Hour)
	expired, err := fx.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	events := fx.notifier.ofKind("expired")
	require.Len(t, events, 1)
	assert.Equal(t, "sch_1", events[0].SchoolID)

	sub2, err := fx.store.GetBySchool(ctx, "sch_2")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sub2.Status)

	// Nothing left to expire.
	expired, err = fx.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
}

func TestSweepWarningsThrottled(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")
	_, err := fx.svc.ProcessVerified(ctx, VerifiedPayment{Reference: "ref_1", TransactionID: 1})
	require.NoError(t, err)

	// 27 days in: 3 days to expiry, inside the 7 day window.
	fx.now = fx.now.Add(27 * 24 * time.Hour)
	warned, err := fx.svc.SweepWarnings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, warned)

	events := fx.notifier.ofKind("expiring")
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].DaysLeft)

	// An hourly re-run the same day stays quiet.
	fx.now = fx.now.Add(time.Hour)
	warned, err = fx.svc.SweepWarnings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, warned)

	// The next day it warns again.
	fx.now = fx.now.Add(24 * time.Hour)
	warned, err = fx.svc.SweepWarnings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, warned)
}

func TestCancelEndsAccessImmediately(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.pending(t, "pay_1", "sch_1", "plan_monthly", "ref_1")
	_, err := fx.svc.ProcessVerified(ctx, VerifiedPayment{Reference: "ref_1", TransactionID: 1})
	require.NoError(t, err)

	require.NoError(t, fx.svc.Cancel(ctx, "sch_1"))

	active, err := fx.svc.IsActive(ctx, "sch_1")
	require.NoError(t, err)
	assert.False(t, active)

	// A new verified payment re-enters active.
	fx.pending(t, "pay_2", "sch_1", "plan_monthly", "ref_2")
	act, err := fx.svc.ProcessVerified(ctx, VerifiedPayment{Reference: "ref_2", TransactionID: 2})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, act.Subscription.Status)
}
