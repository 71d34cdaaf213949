package tenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeCheck(t *testing.T) {
	tests := []struct {
		name    string
		scope   Scope
		ownerID string
		wantErr error
	}{
		{"own school", ForSchool("sch_a"), "sch_a", nil},
		{"other school", ForSchool("sch_a"), "sch_b", ErrNotFound},
		{"operator any school", OperatorScope(), "sch_b", nil},
		{"no scope", Scope{}, "sch_a", ErrNoTenant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Check(tt.ownerID)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

// Cross-school denial must be byte-for-byte identical to a missing
// record so existence in another school cannot be probed.
func TestScopeCheck_MismatchLooksLikeNotFound(t *testing.T) {
	err := ForSchool("sch_a").Check("sch_b")
	assert.Equal(t, ErrNotFound.Error(), err.Error())
}

func TestScopeSchool(t *testing.T) {
	id, ok := ForSchool("sch_a").School()
	assert.True(t, ok)
	assert.Equal(t, "sch_a", id)

	id, ok = OperatorScope().School()
	assert.True(t, ok)
	assert.Empty(t, id)

	_, ok = (Scope{}).School()
	assert.False(t, ok)
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithScope(context.Background(), ForSchool("sch_a"))
	s, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "sch_a", s.SchoolID)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
