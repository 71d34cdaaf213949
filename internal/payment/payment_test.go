package payment

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutrack/edutrack/internal/pagination"
)

func TestNewReference(t *testing.T) {
	at := time.Unix(1690000000, 0)
	ref := NewReference("sch_1", "pln_2", at)
	assert.Equal(t, "EDU_sch_1_pln_2_1690000000", ref)
	assert.True(t, strings.HasPrefix(ref, "EDU_"))
}

func newPending(id, ref string) *Payment {
	now := time.Now()
	return &Payment{
		ID: id, SchoolID: "sch_1", PlanID: "pln_1",
		Amount: "10000.00", Currency: "NGN",
		Reference: ref, Status: StatusPending,
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestMemoryStore_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Create(ctx, newPending("pay_1", "EDU_ref_1")))

	got, err := store.GetByReference(ctx, "EDU_ref_1")
	require.NoError(t, err)
	assert.Equal(t, "pay_1", got.ID)
	assert.Equal(t, StatusPending, got.Status)

	_, err = store.GetByReference(ctx, "EDU_missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestMemoryStore_DuplicateReference(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Create(ctx, newPending("pay_1", "EDU_ref_1")))
	err := store.Create(ctx, newPending("pay_2", "EDU_ref_1"))
	assert.ErrorIs(t, err, ErrReferenceTaken)
}

func TestMemoryStore_MarkFailedFromPending(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newPending("pay_1", "EDU_ref_1")))

	require.NoError(t, store.MarkFailed(ctx, "EDU_ref_1", time.Now()))

	got, _ := store.GetByReference(ctx, "EDU_ref_1")
	assert.Equal(t, StatusFailed, got.Status)

	// Final statuses never move.
	assert.ErrorIs(t, store.MarkFailed(ctx, "EDU_ref_1", time.Now()), ErrStatusFinal)
	assert.ErrorIs(t, store.MarkCancelled(ctx, "EDU_ref_1", time.Now()), ErrStatusFinal)
}

// Success is terminal: no later operation may move the status backward.
func TestMemoryStore_SuccessIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newPending("pay_1", "EDU_ref_1")))

	_, err := store.CompleteSuccess("EDU_ref_1", "12345", "card", time.Now())
	require.NoError(t, err)

	got, _ := store.GetByReference(ctx, "EDU_ref_1")
	assert.Equal(t, StatusSuccess, got.Status)
	assert.Equal(t, "12345", got.TransactionID)

	assert.ErrorIs(t, store.MarkFailed(ctx, "EDU_ref_1", time.Now()), ErrStatusFinal)
	assert.ErrorIs(t, store.MarkCancelled(ctx, "EDU_ref_1", time.Now()), ErrStatusFinal)

	_, err = store.CompleteSuccess("EDU_ref_1", "67890", "bank", time.Now())
	assert.ErrorIs(t, err, ErrStatusFinal)

	got, _ = store.GetByReference(ctx, "EDU_ref_1")
	assert.Equal(t, StatusSuccess, got.Status)
	assert.Equal(t, "12345", got.TransactionID)
}

func TestMemoryStore_ListBySchool(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a := newPending("pay_1", "EDU_ref_1")
	b := newPending("pay_2", "EDU_ref_2")
	b.SchoolID = "sch_2"
	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))

	got, err := store.ListBySchool(ctx, "sch_1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pay_1", got[0].ID)
}

func TestMemoryStore_ListBySchoolPage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		p := newPending(
			"pay_"+string(rune('a'+i)),
			"EDU_ref_"+string(rune('a'+i)),
		)
		p.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.Create(ctx, p))
	}

	// First page: limit 2 fetches 3 rows, newest first.
	fetched, err := store.ListBySchoolPage(ctx, "sch_1", nil, 2)
	require.NoError(t, err)
	require.Len(t, fetched, 3)
	assert.Equal(t, "pay_e", fetched[0].ID)
	assert.Equal(t, "pay_d", fetched[1].ID)

	page, next, more := pagination.Page(fetched, 2, func(p *Payment) (time.Time, string) {
		return p.CreatedAt, p.ID
	})
	require.Len(t, page, 2)
	require.True(t, more)

	// Second page continues strictly below the cursor.
	cursor, err := pagination.Decode(next)
	require.NoError(t, err)
	fetched, err = store.ListBySchoolPage(ctx, "sch_1", cursor, 2)
	require.NoError(t, err)
	require.Len(t, fetched, 3)
	assert.Equal(t, "pay_c", fetched[0].ID)

	// Beyond the end there is nothing.
	fetched, err = store.ListBySchoolPage(ctx, "sch_1", &pagination.Cursor{
		CreatedAt: base, ID: "pay_a",
	}, 2)
	require.NoError(t, err)
	assert.Empty(t, fetched)
}
