package school

import "context"

// Store persists school data.
type Store interface {
	Create(ctx context.Context, s *School) error
	Get(ctx context.Context, id string) (*School, error)
	GetByCode(ctx context.Context, code string) (*School, error)
	Update(ctx context.Context, s *School) error
	// Deactivate flips the active flag. Data is retained.
	Deactivate(ctx context.Context, id string) error
	List(ctx context.Context) ([]*School, error)
}
