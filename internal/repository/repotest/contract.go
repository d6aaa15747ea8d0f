// Package repotest holds the behaviour every repository.Store must share.
// Store implementations call Run from their own tests.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-gate/internal/model"
	"github.com/iliyamo/parking-gate/internal/repository"
)

// Run executes the contract against fresh stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Run("seed is repeatable", func(t *testing.T) { testSeed(t, newStore(t)) })
	t.Run("credential crud", func(t *testing.T) { testCredentials(t, newStore(t)) })
	t.Run("slots", func(t *testing.T) { testSlots(t, newStore(t)) })
	t.Run("session lifecycle", func(t *testing.T) { testSessionLifecycle(t, newStore(t)) })
	t.Run("one open session", func(t *testing.T) { testSingleOpen(t, newStore(t)) })
	t.Run("delete cascades", func(t *testing.T) { testDeleteCascade(t, newStore(t)) })
}

func seeded(t *testing.T, s repository.Store) context.Context {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repository.Seed(ctx, s, 8))
	return ctx
}

func testSeed(t *testing.T, s repository.Store) {
	ctx := seeded(t, s)
	require.NoError(t, s.Slots().UpdateStatus(ctx, 2, model.SlotOccupied))
	require.NoError(t, repository.Seed(ctx, s, 8))

	slots, err := s.Slots().List(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 8)
	assert.Equal(t, 1, slots[0].ID)
	assert.Equal(t, model.SlotOccupied, slots[1].Status)

	creds, err := s.Credentials().List(ctx)
	require.NoError(t, err)
	assert.Len(t, creds, 2)
	require.NoError(t, s.Ping(ctx))
}

func testCredentials(t *testing.T, s repository.Store) {
	ctx := seeded(t, s)
	repo := s.Credentials()

	require.NoError(t, repo.Create(ctx, model.Credential{ID: "abc", Name: "Car", Role: model.RoleUser}))
	assert.ErrorIs(t, repo.Create(ctx, model.Credential{ID: "abc", Name: "Other", Role: model.RoleUser}), repository.ErrDuplicateKey)

	require.NoError(t, repo.Update(ctx, model.Credential{ID: "abc", Name: "Van", Role: model.RoleOwner}))
	c, err := repo.GetByID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "Van", c.Name)
	assert.Equal(t, model.RoleOwner, c.Role)
	assert.Zero(t, c.Balance)

	assert.ErrorIs(t, repo.Update(ctx, model.Credential{ID: "nope", Name: "x", Role: model.RoleUser}), repository.ErrNotFound)
	_, err = repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "nope"), repository.ErrNotFound)
}

func testSlots(t *testing.T, s repository.Store) {
	ctx := seeded(t, s)
	repo := s.Slots()

	assert.ErrorIs(t, repo.UpdateStatus(ctx, 9, model.SlotOccupied), repository.ErrNotFound)
	require.NoError(t, repo.UpdateStatus(ctx, 1, model.SlotOccupied))
	require.NoError(t, repo.UpdateStatus(ctx, 1, model.SlotOccupied))

	n, err := repo.CountByStatus(ctx, model.SlotOccupied)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	id, err := repo.OccupyFirstFree(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, id)

	for i := 3; i <= 8; i++ {
		require.NoError(t, repo.UpdateStatus(ctx, i, model.SlotOccupied))
	}
	_, err = repo.OccupyFirstFree(ctx)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testSessionLifecycle(t *testing.T, s repository.Store) {
	ctx := seeded(t, s)
	repo := s.Sessions()
	entry := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	_, err := repo.CreateOpen(ctx, "ghost", entry)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.LatestOpen(ctx, "1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	id, err := repo.CreateOpen(ctx, "1", entry)
	require.NoError(t, err)
	_, err = repo.CreateOpen(ctx, "1", entry.Add(time.Minute))
	assert.ErrorIs(t, err, repository.ErrConflict)

	open, err := repo.LatestOpen(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, id, open.ID)
	assert.True(t, open.IsOpen())
	assert.True(t, entry.Equal(open.EntryTime))

	_, err = repo.MarkPaid(ctx, id, "1")
	assert.ErrorIs(t, err, repository.ErrNotClosed)

	exit := entry.Add(90 * time.Minute)
	require.NoError(t, repo.Close(ctx, id, exit, 5400, 100))
	assert.ErrorIs(t, repo.Close(ctx, id, exit, 5400, 100), repository.ErrConflict)
	assert.ErrorIs(t, repo.Close(ctx, id+1000, exit, 1, 50), repository.ErrNotFound)

	_, err = repo.MarkPaid(ctx, id, "10")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	paid, err := repo.MarkPaid(ctx, id, "1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, paid.PaymentStatus)
	_, err = repo.MarkPaid(ctx, id, "1")
	assert.ErrorIs(t, err, repository.ErrConflict)

	c, err := s.Credentials().GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), c.Balance)

	// A second visit lists first.
	id2, err := repo.CreateOpen(ctx, "1", exit.Add(time.Hour))
	require.NoError(t, err)
	list, err := repo.ListByCredential(ctx, "1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, id2, list[0].ID)
	assert.Equal(t, int64(5400), list[1].DurationSeconds.Int64)

	views, err := repo.ListWithNames(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "User", views[0].CredentialName)
}

func testSingleOpen(t *testing.T, s repository.Store) {
	ctx := seeded(t, s)
	entry := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ok  int
		bad int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Sessions().CreateOpen(ctx, "1", entry)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if assert.ErrorIs(t, err, repository.ErrConflict) {
				bad++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, bad)
}

func testDeleteCascade(t *testing.T, s repository.Store) {
	ctx := seeded(t, s)
	entry := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	_, err := s.Sessions().CreateOpen(ctx, "1", entry)
	require.NoError(t, err)

	require.NoError(t, s.Credentials().Delete(ctx, "1"))
	list, err := s.Sessions().ListByCredential(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, list)
	views, err := s.Sessions().ListWithNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, views)

	// The id can be registered again with a clean slate.
	require.NoError(t, s.Credentials().Create(ctx, model.Credential{ID: "1", Name: "Again", Role: model.RoleUser}))
	_, err = s.Sessions().CreateOpen(ctx, "1", entry)
	assert.NoError(t, err)
}
