package tracking_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trackingrepo "github.com/Additional-Code/atelier/internal/repository/tracking"
	"github.com/Additional-Code/atelier/internal/testutil"
)

func TestIssueAndResolve(t *testing.T) {
	ctx := context.Background()
	repo := trackingrepo.NewRepository(testutil.SQLite(t))
	orderID := uuid.New()

	token, err := repo.Issue(ctx, orderID, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotEqual(t, token, trackingrepo.HashToken(token))

	got, err := repo.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, orderID, got)

	_, err = repo.Resolve(ctx, "unknown")
	require.ErrorIs(t, err, trackingrepo.ErrNotFound)
	_, err = repo.Resolve(ctx, "")
	require.ErrorIs(t, err, trackingrepo.ErrNotFound)
}

func TestResolveExpired(t *testing.T) {
	ctx := context.Background()
	repo := trackingrepo.NewRepository(testutil.SQLite(t))

	token, err := repo.Issue(ctx, uuid.New(), -time.Second)
	require.NoError(t, err)

	_, err = repo.Resolve(ctx, token)
	require.ErrorIs(t, err, trackingrepo.ErrExpired)
}
