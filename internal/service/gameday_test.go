package service

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/Tavern/internal/model"
	"github.com/Gopher0727/Tavern/internal/pkg/kafka"
	"github.com/Gopher0727/Tavern/internal/repository"
)

func TestGameDayService_ConcludeScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dm := h.member(t, "gandalf")
	tavern, _ := h.tavern(t, dm, "Green Dragon", 6)

	scheduledAt := h.now.Add(24 * time.Hour)
	created := h.gameDays.Create(ctx, dm.ID, &CreateGameDayRequest{TavernID: tavern.ID, ScheduledAt: scheduledAt})
	requireCode(t, http.StatusCreated, created)
	gameDay := created.Data
	assert.False(t, gameDay.IsConcluded)

	concluded := h.gameDays.Conclude(ctx, dm.ID, gameDay.ID)
	requireCode(t, http.StatusOK, concluded)
	assert.True(t, concluded.Data.GameDay.IsConcluded)
	assert.Equal(t, GameDayReward, concluded.Data.Tavern.CurrentExperience)
	assert.Equal(t, 1, concluded.Data.Tavern.Level)
	assert.False(t, concluded.Data.LeveledUp)
	assert.Contains(t, h.publisher.types(), kafka.EventGameDayConcluded)

	resched := h.gameDays.Reschedule(ctx, dm.ID, gameDay.ID, &RescheduleGameDayRequest{ScheduledAt: scheduledAt.Add(48 * time.Hour)})
	requireCode(t, http.StatusConflict, resched)

	again := h.gameDays.Conclude(ctx, dm.ID, gameDay.ID)
	requireCode(t, http.StatusConflict, again)

	stored, err := h.store.GameDays().FindByID(ctx, gameDay.ID)
	require.NoError(t, err)
	assert.True(t, stored.ScheduledAt.Equal(scheduledAt.UTC()))
	assert.True(t, stored.IsConcluded)

	storedTavern, err := h.store.Taverns().FindByID(ctx, tavern.ID)
	require.NoError(t, err)
	assert.Equal(t, GameDayReward, storedTavern.CurrentExperience, "a rejected conclude must not pay out")
}

func TestGameDayService_ConcludeLevelsUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dm := h.member(t, "tom")
	tavern, _ := h.tavern(t, dm, "Old Forest", 2)
	requireCode(t, http.StatusOK, h.taverns.GainExperience(ctx, tavern.ID, model.ExperiencePerLevel-GameDayReward))

	created := h.gameDays.Create(ctx, dm.ID, &CreateGameDayRequest{TavernID: tavern.ID, ScheduledAt: h.now})
	requireCode(t, http.StatusCreated, created)

	res := h.gameDays.Conclude(ctx, dm.ID, created.Data.ID)
	requireCode(t, http.StatusOK, res)
	assert.True(t, res.Data.LeveledUp)
	assert.Equal(t, 2, res.Data.Tavern.Level)
	assert.Equal(t, 0, res.Data.Tavern.CurrentExperience)
}

func TestGameDayService_ConcludeIsAtomic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dm := h.member(t, "goldberry")
	tavern, _ := h.tavern(t, dm, "River House", 2)
	created := h.gameDays.Create(ctx, dm.ID, &CreateGameDayRequest{TavernID: tavern.ID, ScheduledAt: h.now.Add(time.Hour)})
	requireCode(t, http.StatusCreated, created)

	h.rebuild(&faultyStore{Store: h.store, failTavernUpdate: true})
	res := h.gameDays.Conclude(ctx, dm.ID, created.Data.ID)
	requireCode(t, http.StatusInternalServerError, res)
	assert.Equal(t, genericFailure, res.Message)

	stored, err := h.store.GameDays().FindByID(ctx, created.Data.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsConcluded, "game day must stay open when the experience write fails")
	assert.NotContains(t, h.publisher.types(), kafka.EventGameDayConcluded)
}

func TestGameDayService_Permissions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dm := h.member(t, "elrond")
	tavern, _ := h.tavern(t, dm, "Rivendell", 4)
	player := h.member(t, "frodo")
	h.join(t, dm, tavern, player)
	outsider := h.member(t, "gollum")

	requireCode(t, http.StatusForbidden,
		h.gameDays.Create(ctx, player.ID, &CreateGameDayRequest{TavernID: tavern.ID, ScheduledAt: h.now.Add(time.Hour)}))
	requireCode(t, http.StatusNotFound,
		h.gameDays.Create(ctx, dm.ID, &CreateGameDayRequest{TavernID: "missing", ScheduledAt: h.now.Add(time.Hour)}))

	created := h.gameDays.Create(ctx, dm.ID, &CreateGameDayRequest{TavernID: tavern.ID, ScheduledAt: h.now.Add(time.Hour)})
	requireCode(t, http.StatusCreated, created)
	id := created.Data.ID

	requireCode(t, http.StatusForbidden, h.gameDays.Conclude(ctx, player.ID, id))
	requireCode(t, http.StatusForbidden, h.gameDays.Delete(ctx, player.ID, id))
	requireCode(t, http.StatusForbidden,
		h.gameDays.Reschedule(ctx, player.ID, id, &RescheduleGameDayRequest{ScheduledAt: h.now.Add(2 * time.Hour)}))

	requireCode(t, http.StatusOK, h.gameDays.Get(ctx, player.ID, id))
	requireCode(t, http.StatusForbidden, h.gameDays.Get(ctx, outsider.ID, id))
	requireCode(t, http.StatusNotFound, h.gameDays.Get(ctx, dm.ID, "missing"))

	list := h.gameDays.List(ctx, player.ID, tavern.ID)
	requireCode(t, http.StatusOK, list)
	assert.Len(t, list.Data, 1)
}

func TestGameDayService_Schedule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dm := h.member(t, "bombadil")
	tavern, _ := h.tavern(t, dm, "Withywindle", 2)

	t.Run("grace window", func(t *testing.T) {
		within := h.gameDays.Create(ctx, dm.ID, &CreateGameDayRequest{TavernID: tavern.ID, ScheduledAt: h.now.Add(-4 * time.Minute)})
		requireCode(t, http.StatusCreated, within)

		past := h.gameDays.Create(ctx, dm.ID, &CreateGameDayRequest{TavernID: tavern.ID, ScheduledAt: h.now.Add(-10 * time.Minute)})
		requireCode(t, http.StatusBadRequest, past)
	})

	t.Run("reschedule revalidates", func(t *testing.T) {
		created := h.gameDays.Create(ctx, dm.ID, &CreateGameDayRequest{TavernID: tavern.ID, ScheduledAt: h.now.Add(time.Hour)})
		requireCode(t, http.StatusCreated, created)

		notes := "bring dice"
		moved := h.gameDays.Reschedule(ctx, dm.ID, created.Data.ID, &RescheduleGameDayRequest{ScheduledAt: h.now.Add(3 * time.Hour), Notes: &notes})
		requireCode(t, http.StatusOK, moved)
		require.NotNil(t, moved.Data.Notes)
		assert.Equal(t, notes, *moved.Data.Notes)

		bad := h.gameDays.Reschedule(ctx, dm.ID, created.Data.ID, &RescheduleGameDayRequest{ScheduledAt: h.now.Add(-time.Hour)})
		requireCode(t, http.StatusBadRequest, bad)
	})

	t.Run("delete works after conclude", func(t *testing.T) {
		created := h.gameDays.Create(ctx, dm.ID, &CreateGameDayRequest{TavernID: tavern.ID, ScheduledAt: h.now.Add(time.Hour)})
		requireCode(t, http.StatusCreated, created)
		requireCode(t, http.StatusOK, h.gameDays.Conclude(ctx, dm.ID, created.Data.ID))
		requireCode(t, http.StatusOK, h.gameDays.Delete(ctx, dm.ID, created.Data.ID))
		requireCode(t, http.StatusNotFound, h.gameDays.Get(ctx, dm.ID, created.Data.ID))
	})
}

func TestGameDayService_ConcurrentConcludesPayOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dm := h.member(t, "beorn")
	tavern, _ := h.tavern(t, dm, "Carrock", 4)
	created := h.gameDays.Create(ctx, dm.ID, &CreateGameDayRequest{TavernID: tavern.ID, ScheduledAt: h.now.Add(time.Hour)})
	requireCode(t, http.StatusCreated, created)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for range 10 {
		wg.Go(func() {
			res := h.gameDays.Conclude(ctx, dm.ID, created.Data.ID)
			mu.Lock()
			defer mu.Unlock()
			switch res.Code {
			case http.StatusOK:
				succeeded++
			case http.StatusConflict:
				conflicts++
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 9, conflicts)
	stored, err := h.store.Taverns().FindByID(ctx, tavern.ID)
	require.NoError(t, err)
	assert.Equal(t, GameDayReward, stored.CurrentExperience)
}

// lockHookStore runs onLock once, right after the first game day row lock
// is taken, while that transaction is still open.
type lockHookStore struct {
	repository.Store
	once   *sync.Once
	onLock func()
}

func (s *lockHookStore) GameDays() repository.IGameDayRepository {
	return lockHookGameDays{IGameDayRepository: s.Store.GameDays(), store: s}
}

func (s *lockHookStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		inner := *s
		inner.Store = tx
		return fn(&inner)
	})
}

type lockHookGameDays struct {
	repository.IGameDayRepository
	store *lockHookStore
}

func (g lockHookGameDays) FindByIDForUpdate(ctx context.Context, id string) (*model.GameDay, error) {
	gameDay, err := g.IGameDayRepository.FindByIDForUpdate(ctx, id)
	g.store.once.Do(g.store.onLock)
	return gameDay, err
}

func TestGameDayService_RescheduleCannotReopenConcluded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dm := h.member(t, "radagast")
	tavern, _ := h.tavern(t, dm, "Rhosgobel", 4)
	created := h.gameDays.Create(ctx, dm.ID, &CreateGameDayRequest{TavernID: tavern.ID, ScheduledAt: h.now.Add(time.Hour)})
	requireCode(t, http.StatusCreated, created)

	// A conclude arrives while the reschedule holds the game day.
	concluded := make(chan Result[*ConcludeOutcome], 1)
	h.rebuild(&lockHookStore{Store: h.store, once: &sync.Once{}, onLock: func() {
		go func() { concluded <- h.gameDays.Conclude(ctx, dm.ID, created.Data.ID) }()
		time.Sleep(20 * time.Millisecond)
	}})

	newDate := h.now.Add(48 * time.Hour)
	requireCode(t, http.StatusOK, h.gameDays.Reschedule(ctx, dm.ID, created.Data.ID, &RescheduleGameDayRequest{ScheduledAt: newDate}))
	requireCode(t, http.StatusOK, <-concluded)

	stored, err := h.store.GameDays().FindByID(ctx, created.Data.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsConcluded)
	assert.True(t, stored.ScheduledAt.Equal(newDate.UTC()))

	requireCode(t, http.StatusConflict, h.gameDays.Conclude(ctx, dm.ID, created.Data.ID))
	storedTavern, err := h.store.Taverns().FindByID(ctx, tavern.ID)
	require.NoError(t, err)
	assert.Equal(t, GameDayReward, storedTavern.CurrentExperience)
}
