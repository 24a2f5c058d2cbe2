// Package alertstest holds the behavioural suite every alerts.Store
// implementation must pass.
package alertstest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmwatch/internal/alerts"
	"farmwatch/internal/model"
)

// Run executes the suite. newStore must return an empty store each call.
func Run(t *testing.T, newStore func(t *testing.T) alerts.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("create then get", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Create(ctx, alerts.Draft{Title: "Low soil_moisture", Message: "dry", Priority: model.PriorityHigh, Source: "s-1"})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		a, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, a.ID)
		assert.Equal(t, "Low soil_moisture", a.Title)
		assert.Equal(t, "dry", a.Message)
		assert.Equal(t, model.PriorityHigh, a.Priority)
		assert.Equal(t, "s-1", a.Source)
		assert.False(t, a.Read)
		assert.False(t, a.Resolved)
		assert.Nil(t, a.ResolvedAt)
		assert.False(t, a.CreatedAt.IsZero())
	})

	t.Run("priority defaults to medium", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Create(ctx, alerts.Draft{Title: "note"})
		require.NoError(t, err)
		a, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.PriorityMedium, a.Priority)
		assert.Empty(t, a.Source)
	})

	t.Run("title required", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, alerts.Draft{Title: "  "})
		assert.Error(t, err)
	})

	t.Run("resolve sets read and keeps first note", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Create(ctx, alerts.Draft{Title: "High temperature"})
		require.NoError(t, err)

		require.NoError(t, s.Resolve(ctx, id, "shade cloth installed"))
		a, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, a.Resolved)
		assert.True(t, a.Read)
		assert.Equal(t, "shade cloth installed", a.ResolutionNote)
		require.NotNil(t, a.ResolvedAt)

		require.NoError(t, s.Resolve(ctx, id, "again"))
		b, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "shade cloth installed", b.ResolutionNote)
		assert.True(t, a.ResolvedAt.Equal(*b.ResolvedAt))
	})

	t.Run("unread round trip", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Create(ctx, alerts.Draft{Title: "Low humidity"})
		require.NoError(t, err)

		unread, err := s.List(ctx, true, 0)
		require.NoError(t, err)
		require.Len(t, unread, 1)
		assert.Equal(t, id, unread[0].ID)

		require.NoError(t, s.MarkRead(ctx, id))
		require.NoError(t, s.MarkRead(ctx, id))
		unread, err = s.List(ctx, true, 0)
		require.NoError(t, err)
		assert.Empty(t, unread)

		all, err := s.List(ctx, false, 0)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.True(t, all[0].Read)
	})

	t.Run("list is newest first and filters before limit", func(t *testing.T) {
		s := newStore(t)
		ids := make([]string, 0, 5)
		for i := 0; i < 5; i++ {
			id, err := s.Create(ctx, alerts.Draft{Title: fmt.Sprintf("alert %d", i)})
			require.NoError(t, err)
			ids = append(ids, id)
		}
		all, err := s.List(ctx, false, 3)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{ids[4], ids[3], ids[2]}, alertIDs(all))

		for _, id := range ids[2:] {
			require.NoError(t, s.MarkRead(ctx, id))
		}
		unread, err := s.List(ctx, true, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{ids[1], ids[0]}, alertIDs(unread))
	})

	t.Run("unknown id", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, alerts.ErrNotFound)
		assert.ErrorIs(t, s.MarkRead(ctx, "missing"), alerts.ErrNotFound)
		assert.ErrorIs(t, s.Resolve(ctx, "missing", ""), alerts.ErrNotFound)
	})

	t.Run("concurrent creates get distinct ids", func(t *testing.T) {
		s := newStore(t)
		const n = 20
		var wg sync.WaitGroup
		idCh := make(chan string, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id, err := s.Create(ctx, alerts.Draft{Title: fmt.Sprintf("concurrent %d", i)})
				assert.NoError(t, err)
				idCh <- id
			}(i)
		}
		wg.Wait()
		close(idCh)
		seen := map[string]bool{}
		for id := range idCh {
			assert.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
		list, err := s.List(ctx, false, 100)
		require.NoError(t, err)
		assert.Len(t, list, n)
	})
}

func alertIDs(list []model.Alert) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.ID)
	}
	return out
}
