package pagesession

import (
	"context"
	"testing"
	"time"

	"github.com/potholemap/potholemap/internal/board"
	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/models"
	"github.com/potholemap/potholemap/internal/workflow"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, *time.Time) {
	t.Helper()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(context.Background(), Config{
		NewBoard: func(context.Context) (*board.Board, error) {
			return board.New([]models.PotholeRecord{{UniqueKey: "1", Latitude: 40.7, Longitude: -74}}), nil
		},
		NewWorkflow: func(ctx context.Context, b *board.Board) *workflow.Controller {
			return workflow.New(ctx, workflow.Config{OnSubmitted: b.MarkSubmitted})
		},
		IdleTimeout: time.Hour,
		Logger:      nil,
	})
	r.now = func() time.Time { return now }
	return r, &now
}

func TestRegistry_CreateGet(t *testing.T) {
	r, _ := newTestRegistry(t)

	page, err := r.Create(context.Background())
	require.NoError(t, err)
	require.Len(t, page.ID, 36)
	require.Equal(t, 1, page.Board.Len())

	got, err := r.Get(page.ID)
	require.NoError(t, err)
	require.Same(t, page, got)

	other, err := r.Create(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, page.ID, other.ID)
	require.NotSame(t, page.Board, other.Board, "sessions do not share markers")

	_, err = r.Get("unknown")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_CreateFailure(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.newBoard = func(context.Context) (*board.Board, error) {
		return nil, errors.New("backend down")
	}
	_, err := r.Create(context.Background())
	require.Error(t, err)
	require.Zero(t, r.Len())
}

func TestRegistry_EvictIdle(t *testing.T) {
	r, now := newTestRegistry(t)

	stale, err := r.Create(context.Background())
	require.NoError(t, err)
	*now = now.Add(45 * time.Minute)
	fresh, err := r.Create(context.Background())
	require.NoError(t, err)

	*now = now.Add(30 * time.Minute)
	require.Equal(t, 1, r.EvictIdle())

	_, err = r.Get(stale.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(fresh.ID)
	require.NoError(t, err)

	// Get refreshed the page so it survives another 45 minutes.
	*now = now.Add(45 * time.Minute)
	require.Zero(t, r.EvictIdle())
}

func TestRegistry_StartJanitor(t *testing.T) {
	r, now := newTestRegistry(t)
	_, err := r.Create(context.Background())
	require.NoError(t, err)
	*now = now.Add(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.StartJanitor(ctx, time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	<-done
}
