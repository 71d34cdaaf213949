package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/edutrack/edutrack/internal/idgen"
	"github.com/edutrack/edutrack/internal/metrics"
	"github.com/edutrack/edutrack/internal/payment"
	"github.com/edutrack/edutrack/internal/plan"
	"github.com/edutrack/edutrack/internal/school"
	"github.com/edutrack/edutrack/internal/syncutil"
)

// Notifier receives subscription lifecycle events. Delivery failures
// are logged and never fail the operation that triggered them.
type Notifier interface {
	SubscriptionActivated(ctx context.Context, sc *school.School, pl *plan.Plan, sub *Subscription, renewed bool) error
	SubscriptionExpiring(ctx context.Context, sc *school.School, sub *Subscription, daysLeft int) error
	SubscriptionExpired(ctx context.Context, sc *school.School, sub *Subscription) error
}

// VerifiedPayment carries the gateway-verified transaction details the
// ingress handlers hand to the state machine. Callers must only build
// one from a transaction the gateway reported as successful.
type VerifiedPayment struct {
	Reference     string
	TransactionID int64
	Channel       string
}

// Activation is the outcome of processing a verified payment.
type Activation struct {
	Subscription *Subscription
	Plan         *plan.Plan
	Created      bool
}

// StatusInfo is the dashboard-facing view of a school's subscription.
type StatusInfo struct {
	IsActive      bool       `json:"is_active"`
	Status        string     `json:"status"`
	PlanName      string     `json:"plan_name,omitempty"`
	DaysRemaining *int       `json:"days_remaining,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// Service owns every subscription state transition. All writes to the
// store go through it, under a per-school lock so concurrent webhook
// deliveries, callbacks, and sweeps for the same school serialize.
type Service struct {
	store    Store
	payments payment.Store
	plans    plan.Store
	schools  school.Store
	notifier Notifier
	locks    *syncutil.ShardedMutex
	log      *slog.Logger

	now           func() time.Time
	warningWindow time.Duration
	demoCode      string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithWarningWindow sets how far ahead of expiry warnings are sent.
func WithWarningWindow(d time.Duration) Option {
	return func(s *Service) { s.warningWindow = d }
}

// WithDemoCode sets the school code that bypasses subscription checks.
func WithDemoCode(code string) Option {
	return func(s *Service) { s.demoCode = code }
}

// WithNotifier sets the lifecycle event sink.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService creates the subscription service.
func NewService(store Store, payments payment.Store, plans plan.Store, schools school.Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:         store,
		payments:      payments,
		plans:         plans,
		schools:       schools,
		locks:         syncutil.NewShardedMutex(),
		log:           logger,
		now:           time.Now,
		warningWindow: 7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// ProcessVerified activates or renews a school's subscription from a
// gateway-verified payment. Safe to call more than once for the same
// reference: duplicates return ErrAlreadyProcessed without a second
// state change.
func (s *Service) ProcessVerified(ctx context.Context, vp VerifiedPayment) (*Activation, error) {
	pay, err := s.payments.GetByReference(ctx, vp.Reference)
	if err != nil {
		if err == payment.ErrPaymentNotFound {
			return nil, ErrUnknownReference
		}
		return nil, err
	}

	unlock := s.locks.Lock(pay.SchoolID)
	defer unlock()

	pl, err := s.plans.Get(ctx, pay.PlanID)
	if err != nil {
		return nil, fmt.Errorf("subscription: plan for payment %s: %w", vp.Reference, err)
	}

	now := s.now()
	start, end := s.nextPeriod(ctx, pay.SchoolID, pl, now)

	sub, created, err := s.store.Activate(ctx, ActivateParams{
		SubscriptionID:   idgen.WithPrefix("sub_"),
		SchoolID:         pay.SchoolID,
		PlanID:           pl.ID,
		PaymentReference: vp.Reference,
		TransactionID:    strconv.FormatInt(vp.TransactionID, 10),
		Channel:          vp.Channel,
		Start:            start,
		End:              end,
		Now:              now,
	})
	if err != nil {
		return nil, err
	}

	kind := "renewal"
	if created {
		kind = "new"
	}
	metrics.ActivationsTotal.WithLabelValues(kind).Inc()
	s.log.Info("subscription activated",
		"school_id", pay.SchoolID, "plan_id", pl.ID,
		"reference", vp.Reference, "renewed", !created)

	s.notify(ctx, pay.SchoolID, func(sc *school.School) error {
		return s.notifier.SubscriptionActivated(ctx, sc, pl, sub, !created)
	})

	return &Activation{Subscription: sub, Plan: pl, Created: created}, nil
}

// nextPeriod computes the activation window. A renewal while the
// current subscription is still running extends from its end date so
// the school keeps the time it already paid for.
func (s *Service) nextPeriod(ctx context.Context, schoolID string, pl *plan.Plan, now time.Time) (time.Time, *time.Time) {
	start := now
	base := now
	if existing, err := s.store.GetBySchool(ctx, schoolID); err == nil {
		if existing.Status == StatusActive && existing.EndDate != nil && existing.EndDate.After(now) {
			start = existing.StartDate
			base = *existing.EndDate
		}
	}
	if pl.Lifetime() {
		return start, nil
	}
	end := base.Add(pl.Duration())
	return start, &end
}

// IsActive reports whether the school may use the product. A school
// deactivated by an operator is inactive no matter what its
// subscription says. Demo schools are otherwise always active. An
// active subscription whose end date has passed is expired in place
// before answering.
func (s *Service) IsActive(ctx context.Context, schoolID string) (bool, error) {
	sc, err := s.schools.Get(ctx, schoolID)
	if err != nil {
		return false, err
	}
	if !sc.Active {
		return false, nil
	}
	if s.isDemo(sc) {
		return true, nil
	}

	sub, err := s.store.GetBySchool(ctx, schoolID)
	if err != nil {
		if err == ErrNoSubscription {
			return false, nil
		}
		return false, err
	}
	if sub.Status != StatusActive {
		return false, nil
	}
	now := s.now()
	if sub.ExpiredAt(now) {
		s.expire(ctx, sub, now)
		return false, nil
	}
	return true, nil
}

// Status returns the subscription summary for a school's dashboard.
func (s *Service) Status(ctx context.Context, schoolID string) (*StatusInfo, error) {
	sc, err := s.schools.Get(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	if !sc.Active {
		return &StatusInfo{IsActive: false, Status: "deactivated"}, nil
	}
	if s.isDemo(sc) {
		return &StatusInfo{IsActive: true, Status: string(StatusActive), PlanName: "Demo"}, nil
	}

	sub, err := s.store.GetBySchool(ctx, schoolID)
	if err != nil {
		if err == ErrNoSubscription {
			return &StatusInfo{IsActive: false, Status: "none"}, nil
		}
		return nil, err
	}

	now := s.now()
	if sub.Status == StatusActive && sub.ExpiredAt(now) {
		s.expire(ctx, sub, now)
		sub.Status = StatusExpired
	}

	info := &StatusInfo{
		IsActive:  sub.Status == StatusActive,
		Status:    string(sub.Status),
		ExpiresAt: sub.EndDate,
	}
	if pl, err := s.plans.Get(ctx, sub.PlanID); err == nil {
		info.PlanName = pl.Name
	}
	if info.IsActive && sub.EndDate != nil {
		d := sub.DaysRemaining(now)
		info.DaysRemaining = &d
	}
	return info, nil
}

// Cancel marks the school's subscription cancelled. Access ends
// immediately; there is no proration.
func (s *Service) Cancel(ctx context.Context, schoolID string) error {
	unlock := s.locks.Lock(schoolID)
	defer unlock()
	if err := s.store.Cancel(ctx, schoolID, s.now()); err != nil {
		return err
	}
	s.log.Info("subscription cancelled", "school_id", schoolID)
	return nil
}

// SweepExpired transitions every lapsed subscription to expired and
// returns how many it moved. A subscription renewed between listing
// and marking is left alone.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()
	subs, err := s.store.ListExpired(ctx, now, 500)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, sub := range subs {
		unlock := s.locks.Lock(sub.SchoolID)
		moved, err := s.store.MarkExpired(ctx, sub.ID, now)
		unlock()
		if err != nil {
			s.log.Error("expire failed", "subscription_id", sub.ID, "error", err)
			continue
		}
		if !moved {
			continue
		}
		expired++
		metrics.SweepExpiredTotal.Inc()
		s.log.Info("subscription expired", "school_id", sub.SchoolID, "subscription_id", sub.ID)
		s.notify(ctx, sub.SchoolID, func(sc *school.School) error {
			return s.notifier.SubscriptionExpired(ctx, sc, sub)
		})
	}
	return expired, nil
}

// SweepWarnings notifies schools whose subscriptions lapse within the
// warning window. MarkWarned's 24 hour guard keeps hourly sweeps from
// repeating the same warning.
func (s *Service) SweepWarnings(ctx context.Context) (int, error) {
	now := s.now()
	subs, err := s.store.ListExpiringWithin(ctx, now, now.Add(s.warningWindow))
	if err != nil {
		return 0, err
	}

	warned := 0
	for _, sub := range subs {
		fresh, err := s.store.MarkWarned(ctx, sub.ID, now)
		if err != nil {
			s.log.Error("warn failed", "subscription_id", sub.ID, "error", err)
			continue
		}
		if !fresh {
			continue
		}
		warned++
		metrics.SweepWarningsTotal.Inc()
		daysLeft := sub.DaysRemaining(now)
		s.log.Info("subscription expiring soon",
			"school_id", sub.SchoolID, "days_left", daysLeft)
		s.notify(ctx, sub.SchoolID, func(sc *school.School) error {
			return s.notifier.SubscriptionExpiring(ctx, sc, sub, daysLeft)
		})
	}
	return warned, nil
}

func (s *Service) isDemo(sc *school.School) bool {
	return sc.Demo || (s.demoCode != "" && sc.Code == s.demoCode)
}

// expire performs the lazy read-path expiry. Best effort: the sweep
// will catch anything this misses.
func (s *Service) expire(ctx context.Context, sub *Subscription, now time.Time) {
	moved, err := s.store.MarkExpired(ctx, sub.ID, now)
	if err != nil {
		s.log.Error("lazy expire failed", "subscription_id", sub.ID, "error", err)
		return
	}
	if moved {
		s.log.Info("subscription expired", "school_id", sub.SchoolID, "subscription_id", sub.ID)
		s.notify(ctx, sub.SchoolID, func(sc *school.School) error {
			return s.notifier.SubscriptionExpired(ctx, sc, sub)
		})
	}
}

func (s *Service) notify(ctx context.Context, schoolID string, send func(*school.School) error) {
	if s.notifier == nil {
		return
	}
	sc, err := s.schools.Get(ctx, schoolID)
	if err != nil {
		s.log.Error("notify: school lookup failed", "school_id", schoolID, "error", err)
		return
	}
	if err := send(sc); err != nil {
		s.log.Error("notify failed", "school_id", schoolID, "error", err)
	}
}
