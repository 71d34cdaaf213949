package subscription

import (
	"context"
	"log/slog"

	"github.com/edutrack/edutrack/internal/metrics"
)

// Sweeper runs the periodic expiry pass. It is a single task suitable
// for a scheduler; every run expires lapsed subscriptions and then
// sends expiry warnings.
type Sweeper struct {
	service *Service
	log     *slog.Logger
}

// NewSweeper creates a sweeper over the given service.
func NewSweeper(service *Service, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{service: service, log: logger}
}

// Run performs one sweep. Errors are logged, not returned; the next
// scheduled run retries everything that failed.
func (s *Sweeper) Run(ctx context.Context) {
	metrics.SweepRunsTotal.Inc()

	expired, err := s.service.SweepExpired(ctx)
	if err != nil {
		s.log.Error("expiry sweep failed", "error", err)
	}
	warned, err := s.service.SweepWarnings(ctx)
	if err != nil {
		s.log.Error("warning sweep failed", "error", err)
	}
	if expired > 0 || warned > 0 {
		s.log.Info("sweep complete", "expired", expired, "warned", warned)
	}
}
