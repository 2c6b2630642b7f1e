package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/Tavern/internal/model"
	"github.com/Gopher0727/Tavern/internal/repository"
)

func newMember(t *testing.T, username, email, disc string) *model.Member {
	t.Helper()
	m, err := model.NewMember(username, email, "hash", disc)
	require.NoError(t, err)
	return m
}

func TestMembers_Uniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	members := store.Members()

	require.NoError(t, members.Create(ctx, newMember(t, "samwise", "sam@shire.org", "0001")))

	t.Run("same handle", func(t *testing.T) {
		err := members.Create(ctx, newMember(t, "samwise", "other@shire.org", "0001"))
		assert.True(t, repository.IsUniqueViolation(err))
	})

	t.Run("same email", func(t *testing.T) {
		err := members.Create(ctx, newMember(t, "samwise", "SAM@shire.org", "0002"))
		assert.True(t, repository.IsUniqueViolation(err))
	})

	t.Run("same username new discriminator", func(t *testing.T) {
		assert.NoError(t, members.Create(ctx, newMember(t, "samwise", "sam2@shire.org", "0002")))
	})

	found, err := members.FindByHandle(ctx, "samwise", "0002")
	require.NoError(t, err)
	assert.Equal(t, "sam2@shire.org", found.Email)
}

func TestReturnedRowsAreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	tavern, err := model.NewTavern("Prancing Pony", nil, 5)
	require.NoError(t, err)
	require.NoError(t, store.Taverns().Create(ctx, tavern))

	loaded, err := store.Taverns().FindByID(ctx, tavern.ID)
	require.NoError(t, err)
	loaded.Capacity = 99

	again, err := store.Taverns().FindByID(ctx, tavern.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, again.Capacity)
}

func TestSoftDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	m, err := model.NewMembership("member-1", "tavern-1", model.StatusCommon)
	require.NoError(t, err)
	require.NoError(t, store.Memberships().Create(ctx, m))

	count, _ := store.Memberships().CountActive(ctx, "tavern-1")
	assert.Equal(t, int64(1), count)

	require.NoError(t, store.Memberships().Delete(ctx, m))
	assert.True(t, m.IsDeleted())

	_, err = store.Memberships().FindByID(ctx, m.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = store.Memberships().FindActive(ctx, "tavern-1", "member-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	list, _ := store.Memberships().ListByTavern(ctx, "tavern-1")
	assert.Empty(t, list)

	count, _ = store.Memberships().CountActive(ctx, "tavern-1")
	assert.Zero(t, count)

	assert.ErrorIs(t, store.Memberships().Delete(ctx, m), repository.ErrNotFound)
}

func TestTransaction(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	t.Run("rollback discards every write", func(t *testing.T) {
		store := NewStore()
		tavern, _ := model.NewTavern("Prancing Pony", nil, 5)
		require.NoError(t, store.Taverns().Create(ctx, tavern))

		err := store.Transaction(ctx, func(tx repository.Store) error {
			loaded, err := tx.Taverns().FindByIDForUpdate(ctx, tavern.ID)
			require.NoError(t, err)
			loaded.Capacity = 50
			require.NoError(t, tx.Taverns().Update(ctx, loaded))

			g, _ := model.NewGameDay(tavern.ID, loaded.CreatedAt.Add(time.Hour), nil, loaded.CreatedAt)
			require.NoError(t, tx.GameDays().Create(ctx, g))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		reloaded, _ := store.Taverns().FindByID(ctx, tavern.ID)
		assert.Equal(t, 5, reloaded.Capacity)
		days, _ := store.GameDays().ListByTavern(ctx, tavern.ID)
		assert.Empty(t, days)
	})

	t.Run("commit keeps writes", func(t *testing.T) {
		store := NewStore()
		tavern, _ := model.NewTavern("Prancing Pony", nil, 5)

		err := store.Transaction(ctx, func(tx repository.Store) error {
			return tx.Taverns().Create(ctx, tavern)
		})
		require.NoError(t, err)

		_, err = store.Taverns().FindByID(ctx, tavern.ID)
		assert.NoError(t, err)
	})

	t.Run("panic rolls back and propagates", func(t *testing.T) {
		store := NewStore()
		tavern, _ := model.NewTavern("Prancing Pony", nil, 5)

		assert.Panics(t, func() {
			_ = store.Transaction(ctx, func(tx repository.Store) error {
				_ = tx.Taverns().Create(ctx, tavern)
				panic("kaboom")
			})
		})
		_, err := store.Taverns().FindByID(ctx, tavern.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := NewStore().Transaction(cctx, func(tx repository.Store) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("a rollback keeps writes made outside the transaction", func(t *testing.T) {
		store := NewStore()
		inside, _ := model.NewTavern("Prancing Pony", nil, 5)
		outside, _ := model.NewTavern("Green Dragon", nil, 5)

		started, release := make(chan struct{}), make(chan struct{})
		txErr := make(chan error, 1)
		go func() {
			txErr <- store.Transaction(ctx, func(tx repository.Store) error {
				if err := tx.Taverns().Create(ctx, inside); err != nil {
					return err
				}
				close(started)
				<-release
				return boom
			})
		}()
		<-started

		// Uncommitted rows are invisible outside the transaction.
		_, err := store.Taverns().FindByID(ctx, inside.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)

		writeErr := make(chan error, 1)
		go func() { writeErr <- store.Taverns().Create(ctx, outside) }()
		select {
		case err := <-writeErr:
			t.Fatalf("write finished while a transaction was open: %v", err)
		case <-time.After(20 * time.Millisecond):
		}

		close(release)
		assert.ErrorIs(t, <-txErr, boom)
		require.NoError(t, <-writeErr)

		_, err = store.Taverns().FindByID(ctx, outside.ID)
		assert.NoError(t, err)
		_, err = store.Taverns().FindByID(ctx, inside.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("transactions are serialized", func(t *testing.T) {
		store := NewStore()
		tavern, _ := model.NewTavern("Prancing Pony", nil, 1000)
		require.NoError(t, store.Taverns().Create(ctx, tavern))

		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = store.Transaction(ctx, func(tx repository.Store) error {
					loaded, err := tx.Taverns().FindByIDForUpdate(ctx, tavern.ID)
					if err != nil {
						return err
					}
					loaded.CurrentExperience++
					return tx.Taverns().Update(ctx, loaded)
				})
			}()
		}
		wg.Wait()

		reloaded, _ := store.Taverns().FindByID(ctx, tavern.ID)
		assert.Equal(t, 50, reloaded.CurrentExperience)
	})
}

func TestLikes(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	likes := store.Likes()

	a := &model.Like{Base: model.Base{ID: "l1"}, MembershipID: "ma", PostID: "p1"}
	b := &model.Like{Base: model.Base{ID: "l2"}, MembershipID: "mb", PostID: "p1"}
	c := &model.Like{Base: model.Base{ID: "l3"}, MembershipID: "ma", PostID: "p2"}
	for _, l := range []*model.Like{a, b, c} {
		require.NoError(t, likes.Create(ctx, l))
	}
	require.NoError(t, likes.Delete(ctx, b))

	counts, err := likes.CountByPosts(ctx, []string{"p1", "p2", "p3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"p1": 1, "p2": 1}, counts)

	liked, err := likes.LikedPostIDs(ctx, "ma", []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"p1": true, "p2": true}, liked)

	_, err = likes.Find(ctx, "mb", "p1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
