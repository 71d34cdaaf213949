package school

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s := &School{
		ID:        "sch_1",
		Name:      "Sunrise Academy",
		Code:      "SUNRISE",
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	require.NoError(t, store.Create(ctx, s))

	got, err := store.Get(ctx, "sch_1")
	require.NoError(t, err)
	assert.Equal(t, "Sunrise Academy", got.Name)

	got, err = store.GetByCode(ctx, "SUNRISE")
	require.NoError(t, err)
	assert.Equal(t, "sch_1", got.ID)

	got.Name = "Sunrise International Academy"
	require.NoError(t, store.Update(ctx, got))

	got2, _ := store.Get(ctx, "sch_1")
	assert.Equal(t, "Sunrise International Academy", got2.Name)
}

func TestMemoryStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrSchoolNotFound)

	_, err = store.GetByCode(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrSchoolNotFound)

	err = store.Update(ctx, &School{ID: "nonexistent"})
	assert.ErrorIs(t, err, ErrSchoolNotFound)
}

func TestMemoryStore_DuplicateCode(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = store.Create(ctx, &School{ID: "sch_1", Code: "SUNRISE"})
	err := store.Create(ctx, &School{ID: "sch_2", Code: "SUNRISE"})
	assert.ErrorIs(t, err, ErrCodeTaken)
}

// Deactivation blocks access but keeps the record and everything it owns.
func TestMemoryStore_DeactivateRetainsData(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = store.Create(ctx, &School{ID: "sch_1", Code: "SUNRISE", Active: true})
	require.NoError(t, store.Deactivate(ctx, "sch_1"))

	got, err := store.Get(ctx, "sch_1")
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestMemoryStore_CopySemantics(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s := &School{ID: "sch_1", Code: "SUNRISE", Settings: map[string]string{"warning_window_days": "3"}}
	require.NoError(t, store.Create(ctx, s))

	// Mutating the caller's copy must not leak into the store.
	s.Settings["warning_window_days"] = "99"
	got, err := store.Get(ctx, "sch_1")
	require.NoError(t, err)
	assert.Equal(t, "3", got.Settings["warning_window_days"])
}
