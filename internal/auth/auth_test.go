package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleValidity(t *testing.T) {
	assert.True(t, RoleOperator.Valid())
	assert.True(t, RoleSchoolAdmin.Valid())
	assert.True(t, RoleTeacher.Valid())
	assert.True(t, RoleGuardian.Valid())
	assert.False(t, Role("principal").Valid())
	assert.False(t, Role("").Valid())
}

func TestPermissionTable(t *testing.T) {
	assert.True(t, Can(RoleOperator, ActionManagePlatform))
	assert.False(t, Can(RoleSchoolAdmin, ActionManagePlatform))
	assert.True(t, Can(RoleSchoolAdmin, ActionManageBilling))
	assert.False(t, Can(RoleTeacher, ActionManageBilling))
	assert.True(t, Can(RoleTeacher, ActionTeach))
	assert.False(t, Can(RoleGuardian, ActionTeach))
	assert.True(t, Can(RoleGuardian, ActionViewWard))
	assert.False(t, Can(Role("principal"), ActionViewWard))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	u := &User{PasswordHash: hash}
	assert.True(t, u.CheckPassword("correct horse battery"))
	assert.False(t, u.CheckPassword("wrong"))

	_, err = HashPassword("short")
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test_secret", time.Hour)
	u := &User{ID: "usr_1", SchoolID: "sch_1", Role: RoleSchoolAdmin}

	token, err := issuer.Issue(u)
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "usr_1", claims.Subject)
	assert.Equal(t, "sch_1", claims.SchoolID)
	assert.Equal(t, string(RoleSchoolAdmin), claims.Role)
}

func TestTokenRejections(t *testing.T) {
	issuer := NewTokenIssuer("test_secret", time.Hour)
	u := &User{ID: "usr_1", Role: RoleTeacher}

	token, err := issuer.Issue(u)
	require.NoError(t, err)

	// Wrong secret.
	other := NewTokenIssuer("other_secret", time.Hour)
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Garbage.
	_, err = issuer.Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Expired.
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := issuer.Issue(u)
	require.NoError(t, err)
	issuer.now = time.Now
	_, err = issuer.Parse(stale)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMemoryStoreEmailUniqueness(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	u := &User{ID: "usr_1", SchoolID: "sch_1", Email: "Admin@School.NG", Name: "A", Role: RoleSchoolAdmin, Active: true}
	require.NoError(t, store.Create(ctx, u))

	// Lookup is case-insensitive.
	got, err := store.GetByEmail(ctx, "admin@school.ng")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", got.ID)

	err = store.Create(ctx, &User{ID: "usr_2", Email: "admin@school.ng"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestMemoryStoreDeactivate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &User{ID: "usr_1", Email: "a@b.c", Active: true}))
	require.NoError(t, store.Deactivate(ctx, "usr_1"))

	u, err := store.Get(ctx, "usr_1")
	require.NoError(t, err)
	assert.False(t, u.Active)

	assert.ErrorIs(t, store.Deactivate(ctx, "usr_404"), ErrUserNotFound)
}
