package equipment

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestPostgresStore returns a migrated store on an empty table.
// Skips the test unless TEST_DATABASE_URL is set.
func getTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("Postgres not available: %v", err)
	}

	store := NewPostgresStore(pool)
	require.NoError(t, store.Migrate(ctx))
	_, err = pool.Exec(ctx, "TRUNCATE equipment")
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "TRUNCATE equipment")
		pool.Close()
	})

	return store
}

func TestPostgresStore_UpsertAndGet(t *testing.T) {
	store := getTestPostgresStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	parts, err := ValidateReport(pc01Report())
	require.NoError(t, err)

	created, err := store.Upsert(ctx, "PC-01", func(existing *Record) (*Record, error) {
		assert.Nil(t, existing)
		return MergeReport(existing, pc01Report(), parts, now), nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	got, err := store.Get(ctx, "PC-01")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Bob", got.Owner)
	assert.Equal(t, "10.0.0.5", got.IPAddress.Main)
	assert.Len(t, got.Components, 2)
	assert.Len(t, got.Disks, 1)
	assert.True(t, got.Online)
	assert.WithinDuration(t, now, got.LastUpdated, 0)
	assert.Equal(t, UnknownInventoryNumber, got.InventoryNumber)

	updated, err := store.Upsert(ctx, "PC-01", func(existing *Record) (*Record, error) {
		require.NotNil(t, existing)
		return MergeReport(existing, pc01Report(), parts, now.Add(time.Minute)), nil
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Len(t, updated.Components, 2)

	byID, err := store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "PC-01", byID.Name)
}

func TestPostgresStore_ConcurrentUpsert(t *testing.T) {
	store := getTestPostgresStore(t)
	ctx := context.Background()

	const writers = 10
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := store.Upsert(ctx, "PC-01", func(existing *Record) (*Record, error) {
				next := existing.Clone()
				if next == nil {
					next = &Record{Name: "PC-01"}
				}
				next.Components = append(next.Components, Component{Type: "Videocard", Name: fmt.Sprintf("GPU-%d", i)})
				return next, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all, err := store.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Len(t, all[0].Components, writers)
}

func TestPostgresStore_TouchMarkOffline(t *testing.T) {
	store := getTestPostgresStore(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	seed(t, store, "PC-01", base)
	seed(t, store, "PC-02", base.Add(10*time.Second))

	_, err := store.Touch(ctx, "ghost", base)
	assert.ErrorIs(t, err, ErrNotFound)

	flipped, err := store.MarkOffline(ctx, base.Add(5*time.Second))
	require.NoError(t, err)
	require.Len(t, flipped, 1)
	assert.Equal(t, "PC-01", flipped[0].Name)
	assert.False(t, flipped[0].Online)

	online := true
	list, err := store.List(ctx, &ListFilter{Online: &online})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "PC-02", list[0].Name)

	touched, err := store.Touch(ctx, "PC-01", base.Add(20*time.Second))
	require.NoError(t, err)
	assert.True(t, touched.Online)

	require.NoError(t, store.SetEstimation(ctx, "PC-01", 8.3))
	got, err := store.Get(ctx, "PC-01")
	require.NoError(t, err)
	require.NotNil(t, got.Estimation)
	assert.Equal(t, 8.3, *got.Estimation)
}

func TestPostgresStore_UpdateDelete(t *testing.T) {
	store := getTestPostgresStore(t)
	ctx := context.Background()
	r := seed(t, store, "PC-01", time.Unix(1_700_000_000, 0))

	inv := "INV-1"
	owner := "Bob"
	updated, err := store.Update(ctx, r.ID, &RecordPatch{InventoryNumber: &inv, Owner: &owner})
	require.NoError(t, err)
	assert.Equal(t, "INV-1", updated.InventoryNumber)
	assert.Equal(t, "Bob", updated.Owner)

	list, err := store.List(ctx, &ListFilter{Owner: "Bob", InventoryNumber: "INV-1"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	other := "INV-2"
	_, err = store.Update(ctx, r.ID, &RecordPatch{InventoryNumber: &other})
	assert.ErrorIs(t, err, ErrInventoryNumberAssigned)

	require.NoError(t, store.Delete(ctx, r.ID))
	assert.ErrorIs(t, store.Delete(ctx, r.ID), ErrNotFound)

	_, err = store.Update(ctx, r.ID, &RecordPatch{Owner: &owner})
	assert.ErrorIs(t, err, ErrNotFound)
}
