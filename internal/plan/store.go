package plan

import "context"

// Store persists the plan catalogue.
type Store interface {
	Create(ctx context.Context, p *Plan) error
	Get(ctx context.Context, id string) (*Plan, error)
	List(ctx context.Context) ([]*Plan, error)
	ListActive(ctx context.Context) ([]*Plan, error)
	// Deactivate retires a plan from sale. The record is retained so
	// existing payments and subscriptions keep resolving it.
	Deactivate(ctx context.Context, id string) error
}
