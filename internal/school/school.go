// Package school provides the tenant model for the platform.
//
// A School owns every other tenant-scoped entity (users, payments,
// subscription) through its id. Deactivating a school blocks access but
// never deletes data.
package school

import (
	"errors"
	"time"
)

// Errors
var (
	ErrSchoolNotFound = errors.New("school: not found")
	ErrCodeTaken      = errors.New("school: code already taken")
)

// School represents one tenant organisation.
type School struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Code      string            `json:"code"` // globally unique human-readable code
	Active    bool              `json:"active"`
	Demo      bool              `json:"demo"` // demonstration school, exempt from subscription checks
	Settings  map[string]string `json:"settings,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}
