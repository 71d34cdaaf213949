// Package signup runs the combined register-and-pay flow.
//
// Ordering is the load-bearing part: the school and its admin user are
// committed before the gateway is ever called, and the pending payment
// row is committed before the initialize request goes out. A crash or
// gateway outage at any point leaves a resumable tenant and an
// attributable reference, never an orphaned charge.
package signup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/edutrack/edutrack/internal/auth"
	"github.com/edutrack/edutrack/internal/idgen"
	"github.com/edutrack/edutrack/internal/metrics"
	"github.com/edutrack/edutrack/internal/money"
	"github.com/edutrack/edutrack/internal/payment"
	"github.com/edutrack/edutrack/internal/paystack"
	"github.com/edutrack/edutrack/internal/plan"
	"github.com/edutrack/edutrack/internal/school"
)

// Errors
var (
	ErrInvalidInput = errors.New("signup: invalid input")
	// ErrPaymentInProgress means a payment attempt for this school and
	// plan was started within the last second. The caller should retry
	// or resume the existing attempt.
	ErrPaymentInProgress = errors.New("signup: a payment attempt is already in progress")
)

// MinimumChargeNotice is shown whenever a plan price below the gateway
// minimum is floored up. The wording is deliberate: the excess is a
// card-verification charge, not a deposit.
const MinimumChargeNotice = "Your plan costs less than the gateway minimum of NGN 100.00. " +
	"Your card will be charged NGN 100.00 to verify it; the excess will NOT be refunded."

// Gateway is the slice of the payment gateway client signup needs.
type Gateway interface {
	Initialize(ctx context.Context, req paystack.InitializeRequest) (*paystack.Authorization, error)
}

// Service orchestrates tenant creation and payment initialization.
type Service struct {
	schools  school.Store
	users    auth.Store
	plans    plan.Store
	payments payment.Store
	gateway  Gateway
	log      *slog.Logger

	baseURL string
	now     func() time.Time
}

// NewService creates the signup service. baseURL is this deployment's
// public origin, used to build the payment callback URL.
func NewService(schools school.Store, users auth.Store, plans plan.Store, payments payment.Store, gateway Gateway, baseURL string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		schools:  schools,
		users:    users,
		plans:    plans,
		payments: payments,
		gateway:  gateway,
		log:      logger,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		now:      time.Now,
	}
}

// RegisterParams is the input to RegisterAndPay.
type RegisterParams struct {
	SchoolName string
	SchoolCode string
	AdminName  string
	AdminEmail string
	Password   string
	PlanID     string
}

// Result is the outcome of a payment initialization. Notice is
// non-empty when the charged amount differs from the plan price.
type Result struct {
	School           *school.School   `json:"school,omitempty"`
	Payment          *payment.Payment `json:"payment"`
	AuthorizationURL string           `json:"authorization_url"`
	Notice           string           `json:"notice,omitempty"`
}

// RegisterAndPay creates (or resumes) a school and its admin, then
// initializes payment for the chosen plan. Returns the checkout URL
// the admin's browser must be sent to.
func (s *Service) RegisterAndPay(ctx context.Context, p RegisterParams) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	pl, err := s.purchasablePlan(ctx, p.PlanID)
	if err != nil {
		return nil, err
	}

	sc, err := s.findOrCreateTenant(ctx, p)
	if err != nil {
		return nil, err
	}

	return s.initialize(ctx, sc, pl, p.AdminEmail)
}

// Initialize starts a payment for an existing school, used for renewal
// and plan changes from inside the product.
func (s *Service) Initialize(ctx context.Context, schoolID, planID, email string) (*Result, error) {
	pl, err := s.purchasablePlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	sc, err := s.schools.Get(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	res, err := s.initialize(ctx, sc, pl, email)
	if err != nil {
		return nil, err
	}
	res.School = nil // the caller already has it
	return res, nil
}

func (p RegisterParams) validate() error {
	switch {
	case strings.TrimSpace(p.SchoolName) == "":
		return fmt.Errorf("%w: school name is required", ErrInvalidInput)
	case strings.TrimSpace(p.SchoolCode) == "":
		return fmt.Errorf("%w: school code is required", ErrInvalidInput)
	case strings.TrimSpace(p.AdminName) == "":
		return fmt.Errorf("%w: admin name is required", ErrInvalidInput)
	case !strings.Contains(p.AdminEmail, "@"):
		return fmt.Errorf("%w: a valid admin email is required", ErrInvalidInput)
	case p.PlanID == "":
		return fmt.Errorf("%w: plan is required", ErrInvalidInput)
	}
	return nil
}

func (s *Service) purchasablePlan(ctx context.Context, planID string) (*plan.Plan, error) {
	pl, err := s.plans.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !pl.Active {
		return nil, plan.ErrPlanInactive
	}
	return pl, nil
}

// findOrCreateTenant commits the school and admin, or resumes an
// earlier registration that never reached checkout. Resumption is only
// allowed for the same admin email; anyone else hitting an existing
// code gets ErrCodeTaken.
func (s *Service) findOrCreateTenant(ctx context.Context, p RegisterParams) (*school.School, error) {
	code := strings.ToUpper(strings.TrimSpace(p.SchoolCode))

	existing, err := s.schools.GetByCode(ctx, code)
	if err == nil {
		admin, uerr := s.users.GetByEmail(ctx, p.AdminEmail)
		if uerr != nil || admin.SchoolID != existing.ID {
			return nil, school.ErrCodeTaken
		}
		s.log.Info("signup resumed", "school_id", existing.ID, "code", code)
		return existing, nil
	}
	if err != school.ErrSchoolNotFound {
		return nil, err
	}

	hash, err := auth.HashPassword(p.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := s.now()
	sc := &school.School{
		ID:        idgen.WithPrefix("sch_"),
		Name:      strings.TrimSpace(p.SchoolName),
		Code:      code,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.schools.Create(ctx, sc); err != nil {
		return nil, err
	}

	admin := &auth.User{
		ID:           idgen.WithPrefix("usr_"),
		SchoolID:     sc.ID,
		Email:        auth.NormalizeEmail(p.AdminEmail),
		Name:         strings.TrimSpace(p.AdminName),
		Role:         auth.RoleSchoolAdmin,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		// The school row stays: the same person can resume once the
		// email conflict is sorted out, and operators can see the
		// half-finished registration.
		return nil, err
	}

	s.log.Info("school registered", "school_id", sc.ID, "code", code)
	return sc, nil
}

// initialize writes the pending ledger row and calls the gateway.
func (s *Service) initialize(ctx context.Context, sc *school.School, pl *plan.Plan, email string) (*Result, error) {
	kobo, ok := money.Parse(pl.Price)
	if !ok {
		return nil, fmt.Errorf("signup: plan %s has unparseable price %q", pl.ID, pl.Price)
	}
	// The ledger records what the card is charged, not the plan's list
	// price, so the minimum floor is applied here as well.
	chargedKobo := kobo
	if chargedKobo < paystack.MinChargeKobo {
		chargedKobo = paystack.MinChargeKobo
	}

	now := s.now()
	pay := &payment.Payment{
		ID:        idgen.WithPrefix("pay_"),
		SchoolID:  sc.ID,
		PlanID:    pl.ID,
		Amount:    money.Format(chargedKobo),
		Currency:  pl.Currency,
		Reference: payment.NewReference(sc.ID, pl.ID, now),
		Status:    payment.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.payments.Create(ctx, pay); err != nil {
		if err == payment.ErrReferenceTaken {
			metrics.PaymentsInitializedTotal.WithLabelValues("in_progress").Inc()
			return nil, ErrPaymentInProgress
		}
		return nil, err
	}

	authz, err := s.gateway.Initialize(ctx, paystack.InitializeRequest{
		Email:       email,
		AmountKobo:  kobo,
		Reference:   pay.Reference,
		CallbackURL: s.baseURL + "/payment/callback",
		Metadata: paystack.Metadata{
			SchoolID:   sc.ID,
			PlanID:     pl.ID,
			SchoolName: sc.Name,
		},
	})
	if err != nil {
		var gerr *paystack.GatewayError
		if errors.As(err, &gerr) && gerr.Rejected {
			// The gateway refused this transaction outright; the attempt
			// is dead and the ledger says so.
			if merr := s.payments.MarkFailed(ctx, pay.Reference, s.now()); merr != nil {
				s.log.Error("mark failed after rejection", "reference", pay.Reference, "error", merr)
			}
			metrics.PaymentsInitializedTotal.WithLabelValues("rejected").Inc()
			return nil, err
		}
		// Unreachable or unreadable gateway: the payment stays pending
		// and the same registration can retry.
		metrics.PaymentsInitializedTotal.WithLabelValues("gateway_error").Inc()
		return nil, err
	}

	metrics.PaymentsInitializedTotal.WithLabelValues("ok").Inc()
	s.log.Info("payment initialized",
		"school_id", sc.ID, "plan_id", pl.ID, "reference", pay.Reference,
		"amount_kobo", authz.ChargedKobo, "minimum_applied", authz.MinimumApplied)

	res := &Result{
		School:           sc,
		Payment:          pay,
		AuthorizationURL: authz.AuthorizationURL,
	}
	if authz.MinimumApplied {
		res.Notice = MinimumChargeNotice
	}
	return res, nil
}
