// Package tenancy enforces per-school data isolation.
//
// Every read or write of a school-owned entity is constrained by the
// acting principal's Scope. A scope mismatch is reported as ErrNotFound
// so a caller can never learn that a record exists in another school.
package tenancy

import (
	"context"
	"errors"
)

var (
	// ErrNoTenant means the principal has no school and is not the operator.
	ErrNoTenant = errors.New("tenancy: principal has no school scope")
	// ErrNotFound is returned for cross-school access attempts. It is
	// deliberately indistinguishable from a genuinely missing record.
	ErrNotFound = errors.New("tenancy: not found")
)

// Scope is the resolved tenancy of an authenticated principal.
type Scope struct {
	SchoolID string
	Operator bool
}

// OperatorScope returns the cross-school administrative scope.
func OperatorScope() Scope {
	return Scope{Operator: true}
}

// ForSchool returns a scope confined to a single school.
func ForSchool(schoolID string) Scope {
	return Scope{SchoolID: schoolID}
}

// Check validates access to a record owned by ownerSchoolID.
// Operators pass unconditionally. A principal without a school fails
// with ErrNoTenant (never an unscoped result); a mismatch fails with
// ErrNotFound.
func (s Scope) Check(ownerSchoolID string) error {
	if s.Operator {
		return nil
	}
	if s.SchoolID == "" {
		return ErrNoTenant
	}
	if s.SchoolID != ownerSchoolID {
		return ErrNotFound
	}
	return nil
}

// School returns the school id list queries must be constrained to.
// For operators it returns ("", true): no constraint. For a scoped
// principal it returns (schoolID, true). A principal with no school
// gets ok=false and must be rejected before querying.
func (s Scope) School() (string, bool) {
	if s.Operator {
		return "", true
	}
	if s.SchoolID == "" {
		return "", false
	}
	return s.SchoolID, true
}

type contextKey struct{}

// WithScope attaches a scope to the context.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext extracts the scope from the context.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(contextKey{}).(Scope)
	return s, ok
}
