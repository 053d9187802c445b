package product_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/atelier/internal/entity"
	productrepo "github.com/Additional-Code/atelier/internal/repository/product"
	"github.com/Additional-Code/atelier/internal/testutil"
)

func newRepo(t *testing.T) *productrepo.Repository {
	t.Helper()
	repo := productrepo.NewRepository(testutil.SQLite(t))
	now := time.Now().UTC()
	require.NoError(t, repo.Upsert(context.Background(), &entity.Product{
		ID: "p-1", Slug: "p-1", Name: "Shirt", Price: 100, Stock: 3, Active: true,
		CreatedAt: now, UpdatedAt: now,
	}))
	return repo
}

func TestDecrementIfAvailable(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	ok, err := repo.DecrementIfAvailable(ctx, "p-1", 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DecrementIfAvailable(ctx, "p-1", 2)
	require.NoError(t, err)
	assert.False(t, ok, "only one unit left")

	stock, err := repo.Stock(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stock)
}

func TestDecrementRacesNeverOversell(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.DecrementIfAvailable(ctx, "p-1", 1)
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, wins)
	stock, err := repo.Stock(ctx, "p-1")
	require.NoError(t, err)
	assert.Zero(t, stock)
}

func TestIncrementAndCompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.Increment(ctx, "p-1", 2))
	require.ErrorIs(t, repo.Increment(ctx, "missing", 1), productrepo.ErrNotFound)

	ok, err := repo.CompareAndSetStock(ctx, "p-1", 4, 10)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.CompareAndSetStock(ctx, "p-1", 5, 10)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.Stock(ctx, "missing")
	require.ErrorIs(t, err, productrepo.ErrNotFound)
}

func TestGetManyAndUpsert(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	now := time.Now().UTC()
	require.NoError(t, repo.Upsert(ctx, &entity.Product{
		ID: "p-1", Slug: "p-1", Name: "Shirt v2", Price: 150, Stock: 7, Active: true,
		CreatedAt: now, UpdatedAt: now,
	}))

	got, err := repo.GetMany(ctx, []string{"p-1", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Shirt v2", got["p-1"].Name)
	assert.Equal(t, int64(150), got["p-1"].Price)
	assert.Equal(t, 7, got["p-1"].Stock)

	empty, err := repo.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
