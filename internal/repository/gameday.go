package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/Tavern/internal/model"
)

// GameDayRepository implements IGameDayRepository interface
type GameDayRepository struct {
	db *gorm.DB
}

// NewGameDayRepository creates a new IGameDayRepository instance
func NewGameDayRepository(db *gorm.DB) IGameDayRepository {
	return &GameDayRepository{db: db}
}

func (r *GameDayRepository) Create(ctx context.Context, gameDay *model.GameDay) error {
	return r.db.WithContext(ctx).Create(gameDay).Error
}

func (r *GameDayRepository) FindByID(ctx context.Context, id string) (*model.GameDay, error) {
	var gameDay model.GameDay
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&gameDay).Error; err != nil {
		return nil, err
	}
	return &gameDay, nil
}

func (r *GameDayRepository) FindByIDForUpdate(ctx context.Context, id string) (*model.GameDay, error) {
	var gameDay model.GameDay
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&gameDay).Error
	if err != nil {
		return nil, err
	}
	return &gameDay, nil
}

func (r *GameDayRepository) ListByTavern(ctx context.Context, tavernID string) ([]*model.GameDay, error) {
	var gameDays []*model.GameDay
	err := r.db.WithContext(ctx).
		Where("tavern_id = ?", tavernID).
		Order("scheduled_at ASC").
		Find(&gameDays).Error
	if err != nil {
		return nil, err
	}
	return gameDays, nil
}

func (r *GameDayRepository) Update(ctx context.Context, gameDay *model.GameDay) error {
	return r.db.WithContext(ctx).Save(gameDay).Error
}

func (r *GameDayRepository) Delete(ctx context.Context, gameDay *model.GameDay) error {
	return r.db.WithContext(ctx).Delete(gameDay).Error
}
