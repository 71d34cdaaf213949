package plan

import (
	"context"
	"time"

	"github.com/edutrack/edutrack/internal/idgen"
	"github.com/edutrack/edutrack/internal/money"
)

func days(n int) *int { return &n }

// defaultPlans is the bootstrap catalogue, created once on an empty store.
func defaultPlans(now time.Time) []*Plan {
	return []*Plan{
		{
			ID:           idgen.WithPrefix("pln_"),
			Name:         "Free Trial",
			Price:        "0.00",
			Currency:     money.NGN,
			DurationDays: days(7),
			Active:       true,
			Features: []string{
				"1 week access",
				"Up to 50 students",
				"Basic features",
				"Email support",
			},
			CreatedAt: now,
		},
		{
			ID:           idgen.WithPrefix("pln_"),
			Name:         "Monthly Plan",
			Price:        "10000.00",
			Currency:     money.NGN,
			DurationDays: days(30),
			Active:       true,
			Features: []string{
				"Unlimited students",
				"All features included",
				"Priority support",
				"Data backup",
			},
			CreatedAt: now,
		},
		{
			ID:           idgen.WithPrefix("pln_"),
			Name:         "Annual Plan",
			Price:        "100000.00",
			Currency:     money.NGN,
			DurationDays: days(365),
			Active:       true,
			Features: []string{
				"Unlimited students",
				"All features included",
				"Priority support",
				"Advanced analytics",
				"Custom integrations",
			},
			CreatedAt: now,
		},
		{
			ID:           idgen.WithPrefix("pln_"),
			Name:         "Lifetime Plan",
			Price:        "500000.00",
			Currency:     money.NGN,
			DurationDays: nil,
			Active:       true,
			Features: []string{
				"Unlimited students",
				"All features included",
				"24/7 premium support",
				"Custom development",
				"White-label options",
				"Lifetime updates",
			},
			CreatedAt: now,
		},
	}
}

// Seed creates the default plans if the catalogue is empty. Safe to call
// on every startup.
func Seed(ctx context.Context, store Store) error {
	existing, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, p := range defaultPlans(time.Now()) {
		if err := store.Create(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
