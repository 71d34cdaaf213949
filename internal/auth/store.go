package auth

import "context"

// Store persists users. Email is unique across the whole platform, not
// per school, so a login needs no school disambiguation.
type Store interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListBySchool(ctx context.Context, schoolID string) ([]*User, error)
	Update(ctx context.Context, u *User) error
	Deactivate(ctx context.Context, id string) error
}
