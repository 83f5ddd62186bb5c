package saga

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crewdeckhq/crewdeck/internal/database/testutil"
)

func TestGormLeaseStoreMutualExclusion(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	store := NewGormLeaseStore(db).WithLeaseClock(func() time.Time { return now })
	ctx := context.Background()

	acquired, err := store.Acquire(ctx, "team:alpha", "run-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	// A second owner is locked out while the lease is live.
	acquired, err = store.Acquire(ctx, "team:alpha", "run-2", time.Minute)
	require.NoError(t, err)
	require.False(t, acquired)

	// A different key is unaffected.
	acquired, err = store.Acquire(ctx, "team:beta", "run-2", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	// The holder may refresh its own lease.
	acquired, err = store.Acquire(ctx, "team:alpha", "run-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestGormLeaseStoreReclaimsExpired(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	store := NewGormLeaseStore(db).WithLeaseClock(func() time.Time { return now })
	ctx := context.Background()

	acquired, err := store.Acquire(ctx, "team:alpha", "crashed-run", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	now = now.Add(2 * time.Minute)

	acquired, err = store.Acquire(ctx, "team:alpha", "run-2", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestGormLeaseStoreReleaseIsOwnerScoped(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	store := NewGormLeaseStore(db)
	ctx := context.Background()

	acquired, err := store.Acquire(ctx, "team:alpha", "run-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	// A stranger's release is a no-op.
	require.NoError(t, store.Release(ctx, "team:alpha", "run-2"))
	acquired, err = store.Acquire(ctx, "team:alpha", "run-2", time.Minute)
	require.NoError(t, err)
	require.False(t, acquired)

	require.NoError(t, store.Release(ctx, "team:alpha", "run-1"))
	acquired, err = store.Acquire(ctx, "team:alpha", "run-2", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestGormLeaseStorePurgeExpired(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	store := NewGormLeaseStore(db).WithLeaseClock(func() time.Time { return now })
	ctx := context.Background()

	for _, key := range []string{"team:a", "team:b", "team:c"} {
		acquired, err := store.Acquire(ctx, key, "run", time.Minute)
		require.NoError(t, err)
		require.True(t, acquired)
	}

	now = now.Add(30 * time.Second)
	acquired, err := store.Acquire(ctx, "team:fresh", "run", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	now = now.Add(45 * time.Second)
	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, purged)

	// The fresh lease survived.
	acquired, err = store.Acquire(ctx, "team:fresh", "other", time.Minute)
	require.NoError(t, err)
	require.False(t, acquired)
}

func TestMemoryLeaseStoreBehavesLikeGorm(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryLeaseStore().WithLeaseClock(func() time.Time { return now })
	ctx := context.Background()

	acquired, err := store.Acquire(ctx, "team:alpha", "run-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = store.Acquire(ctx, "team:alpha", "run-2", time.Minute)
	require.NoError(t, err)
	require.False(t, acquired)

	now = now.Add(2 * time.Minute)
	acquired, err = store.Acquire(ctx, "team:alpha", "run-2", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, store.Release(ctx, "team:alpha", "run-2"))
	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, purged)
}
