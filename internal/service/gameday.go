package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/Tavern/internal/model"
	"github.com/Gopher0727/Tavern/internal/permission"
	"github.com/Gopher0727/Tavern/internal/pkg/kafka"
	"github.com/Gopher0727/Tavern/internal/repository"
)

// GameDayReward is the experience a tavern gains per concluded game day.
const GameDayReward = 4

type CreateGameDayRequest struct {
	TavernID    string    `json:"tavern_id"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	Notes       *string   `json:"notes"`
}

type RescheduleGameDayRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	Notes       *string   `json:"notes"`
}

type ConcludeOutcome struct {
	GameDay   *model.GameDay `json:"game_day"`
	Tavern    *model.Tavern  `json:"tavern"`
	LeveledUp bool           `json:"leveled_up"`
}

type IGameDayService interface {
	Create(ctx context.Context, callerID string, req *CreateGameDayRequest) Result[*model.GameDay]
	Get(ctx context.Context, callerID, gameDayID string) Result[*model.GameDay]
	List(ctx context.Context, callerID, tavernID string) Result[[]*model.GameDay]
	Reschedule(ctx context.Context, callerID, gameDayID string, req *RescheduleGameDayRequest) Result[*model.GameDay]
	Conclude(ctx context.Context, callerID, gameDayID string) Result[*ConcludeOutcome]
	Delete(ctx context.Context, callerID, gameDayID string) Result[*model.GameDay]
}

type GameDayService struct {
	Deps
}

func NewGameDayService(deps Deps) IGameDayService {
	return &GameDayService{Deps: deps.withDefaults()}
}

func (s *GameDayService) Create(ctx context.Context, callerID string, req *CreateGameDayRequest) Result[*model.GameDay] {
	const op = "CreateGameDay"

	if _, err := s.authorizeIn(ctx, s.Store, req.TavernID, callerID, permission.CreateGameDay); err != nil {
		return fail[*model.GameDay](ctx, s.Logger, op, err)
	}
	gameDay, err := model.NewGameDay(req.TavernID, req.ScheduledAt, req.Notes, s.Now())
	if err != nil {
		return fail[*model.GameDay](ctx, s.Logger, op, err)
	}
	if err := s.Store.GameDays().Create(ctx, gameDay); err != nil {
		return fail[*model.GameDay](ctx, s.Logger, op, fmt.Errorf("failed to create game day: %w", err))
	}
	return created("game day scheduled", gameDay)
}

func (s *GameDayService) Get(ctx context.Context, callerID, gameDayID string) Result[*model.GameDay] {
	const op = "GetGameDay"

	gameDay, err := s.findGameDay(ctx, s.Store, gameDayID)
	if err != nil {
		return fail[*model.GameDay](ctx, s.Logger, op, err)
	}
	if _, err := s.requireMembership(ctx, s.Store, gameDay.TavernID, callerID); err != nil {
		return fail[*model.GameDay](ctx, s.Logger, op, err)
	}
	return ok("game day found", gameDay)
}

func (s *GameDayService) List(ctx context.Context, callerID, tavernID string) Result[[]*model.GameDay] {
	const op = "ListGameDays"

	if _, err := s.findTavern(ctx, s.Store, tavernID); err != nil {
		return fail[[]*model.GameDay](ctx, s.Logger, op, err)
	}
	if _, err := s.requireMembership(ctx, s.Store, tavernID, callerID); err != nil {
		return fail[[]*model.GameDay](ctx, s.Logger, op, err)
	}
	gameDays, err := s.Store.GameDays().ListByTavern(ctx, tavernID)
	if err != nil {
		return fail[[]*model.GameDay](ctx, s.Logger, op, fmt.Errorf("failed to list game days: %w", err))
	}
	return ok("game days found", gameDays)
}

// Reschedule locks the game day so it cannot interleave with a Conclude and
// write back a stale concluded flag.
func (s *GameDayService) Reschedule(ctx context.Context, callerID, gameDayID string, req *RescheduleGameDayRequest) Result[*model.GameDay] {
	const op = "RescheduleGameDay"

	var gameDay *model.GameDay
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		g, err := s.lockGameDay(ctx, tx, gameDayID, callerID, permission.RescheduleGameDay)
		if err != nil {
			return err
		}
		if err := g.Reschedule(req.ScheduledAt, req.Notes, s.Now()); err != nil {
			return err
		}
		if err := tx.GameDays().Update(ctx, g); err != nil {
			return fmt.Errorf("failed to update game day: %w", err)
		}
		gameDay = g
		return nil
	})
	if err != nil {
		return fail[*model.GameDay](ctx, s.Logger, op, err)
	}
	return ok("game day rescheduled", gameDay)
}

// Conclude marks the game day concluded and credits the tavern with
// GameDayReward in the same transaction. The game day row is locked first,
// so of two concurrent calls only one sees it open.
func (s *GameDayService) Conclude(ctx context.Context, callerID, gameDayID string) Result[*ConcludeOutcome] {
	const op = "ConcludeGameDay"

	var outcome ConcludeOutcome
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		gameDay, err := s.lockGameDay(ctx, tx, gameDayID, callerID, permission.ConcludeGameDay)
		if err != nil {
			return err
		}
		if err := gameDay.Conclude(); err != nil {
			return err
		}
		if err := tx.GameDays().Update(ctx, gameDay); err != nil {
			return fmt.Errorf("failed to update game day: %w", err)
		}
		tavern, leveledUp, err := gainExperience(ctx, tx, gameDay.TavernID, GameDayReward)
		if err != nil {
			return err
		}
		outcome = ConcludeOutcome{GameDay: gameDay, Tavern: tavern, LeveledUp: leveledUp}
		return nil
	})
	if err != nil {
		return fail[*ConcludeOutcome](ctx, s.Logger, op, err)
	}

	s.Logger.InfoContext(ctx, "game day concluded",
		zap.String("game_day_id", outcome.GameDay.ID),
		zap.String("tavern_id", outcome.Tavern.ID),
		zap.Int("experience", outcome.Tavern.CurrentExperience),
	)
	s.publish(ctx, kafka.Event{
		Type:       kafka.EventGameDayConcluded,
		TavernID:   outcome.Tavern.ID,
		ActorID:    callerID,
		Attributes: map[string]any{"game_day_id": outcome.GameDay.ID, "reward": GameDayReward},
	})
	if outcome.LeveledUp {
		s.leveledUp(ctx, outcome.Tavern, callerID)
	}
	return ok("game day concluded", &outcome)
}

// Delete soft-deletes the game day whether or not it was concluded.
func (s *GameDayService) Delete(ctx context.Context, callerID, gameDayID string) Result[*model.GameDay] {
	const op = "DeleteGameDay"

	gameDay, err := s.authorizeGameDay(ctx, s.Store, gameDayID, callerID, permission.DeleteGameDay)
	if err != nil {
		return fail[*model.GameDay](ctx, s.Logger, op, err)
	}
	if err := s.Store.GameDays().Delete(ctx, gameDay); err != nil {
		return fail[*model.GameDay](ctx, s.Logger, op, fmt.Errorf("failed to delete game day: %w", err))
	}
	return ok("game day deleted", gameDay)
}

func (d Deps) findGameDay(ctx context.Context, store repository.Store, id string) (*model.GameDay, error) {
	g, err := store.GameDays().FindByID(ctx, id)
	return found("game day", g, err)
}

// lockGameDay is authorizeGameDay for writes inside tx: the game day row
// stays locked until tx ends.
func (d Deps) lockGameDay(ctx context.Context, tx repository.Store, gameDayID, memberID string, action permission.Action) (*model.GameDay, error) {
	gameDay, err := tx.GameDays().FindByIDForUpdate(ctx, gameDayID)
	if gameDay, err = found("game day", gameDay, err); err != nil {
		return nil, err
	}
	if _, err := d.authorizeIn(ctx, tx, gameDay.TavernID, memberID, action); err != nil {
		return nil, err
	}
	return gameDay, nil
}

func (d Deps) authorizeGameDay(ctx context.Context, store repository.Store, gameDayID, memberID string, action permission.Action) (*model.GameDay, error) {
	gameDay, err := d.findGameDay(ctx, store, gameDayID)
	if err != nil {
		return nil, err
	}
	if _, err := d.authorizeIn(ctx, store, gameDay.TavernID, memberID, action); err != nil {
		return nil, err
	}
	return gameDay, nil
}
