package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/Tavern/internal/model"
)

// TavernRepository implements ITavernRepository interface
type TavernRepository struct {
	db *gorm.DB
}

// NewTavernRepository creates a new ITavernRepository instance
func NewTavernRepository(db *gorm.DB) ITavernRepository {
	return &TavernRepository{db: db}
}

func (r *TavernRepository) Create(ctx context.Context, tavern *model.Tavern) error {
	return r.db.WithContext(ctx).Create(tavern).Error
}

func (r *TavernRepository) FindByID(ctx context.Context, id string) (*model.Tavern, error) {
	var tavern model.Tavern
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tavern).Error; err != nil {
		return nil, err
	}
	return &tavern, nil
}

func (r *TavernRepository) FindByIDForUpdate(ctx context.Context, id string) (*model.Tavern, error) {
	var tavern model.Tavern
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&tavern).Error
	if err != nil {
		return nil, err
	}
	return &tavern, nil
}

func (r *TavernRepository) Update(ctx context.Context, tavern *model.Tavern) error {
	return r.db.WithContext(ctx).Save(tavern).Error
}

// ListByMember retrieves the taverns where the member holds an active membership
func (r *TavernRepository) ListByMember(ctx context.Context, memberID string) ([]*model.Tavern, error) {
	var taverns []*model.Tavern
	err := r.db.WithContext(ctx).
		Joins("JOIN memberships ON memberships.tavern_id = taverns.id").
		Where("memberships.member_id = ? AND memberships.is_active = ? AND memberships.deleted_at IS NULL", memberID, true).
		Order("taverns.created_at ASC").
		Find(&taverns).Error
	if err != nil {
		return nil, err
	}
	return taverns, nil
}

func (r *TavernRepository) ListDiscoverable(ctx context.Context, memberID string, offset, limit int) ([]*model.Tavern, error) {
	joined := r.db.Model(&model.Membership{}).
		Select("tavern_id").
		Where("member_id = ? AND is_active = ?", memberID, true)

	var taverns []*model.Tavern
	err := r.db.WithContext(ctx).
		Where("id NOT IN (?)", joined).
		Order("created_at ASC").
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&taverns).Error
	if err != nil {
		return nil, err
	}
	return taverns, nil
}

// MembershipRepository implements IMembershipRepository interface
type MembershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository creates a new IMembershipRepository instance
func NewMembershipRepository(db *gorm.DB) IMembershipRepository {
	return &MembershipRepository{db: db}
}

func (r *MembershipRepository) Create(ctx context.Context, membership *model.Membership) error {
	return r.db.WithContext(ctx).Create(membership).Error
}

func (r *MembershipRepository) FindByID(ctx context.Context, id string) (*model.Membership, error) {
	var membership model.Membership
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&membership).Error; err != nil {
		return nil, err
	}
	return &membership, nil
}

func (r *MembershipRepository) FindActive(ctx context.Context, tavernID, memberID string) (*model.Membership, error) {
	var membership model.Membership
	err := r.db.WithContext(ctx).
		Where("tavern_id = ? AND member_id = ? AND is_active = ?", tavernID, memberID, true).
		First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (r *MembershipRepository) ListByTavern(ctx context.Context, tavernID string) ([]*model.Membership, error) {
	var memberships []*model.Membership
	err := r.db.WithContext(ctx).
		Where("tavern_id = ?", tavernID).
		Order("created_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}
	return memberships, nil
}

func (r *MembershipRepository) CountActive(ctx context.Context, tavernID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Membership{}).
		Where("tavern_id = ? AND is_active = ?", tavernID, true).
		Count(&count).Error
	return count, err
}

// Delete soft-deletes the membership; the row stays for history.
func (r *MembershipRepository) Delete(ctx context.Context, membership *model.Membership) error {
	return r.db.WithContext(ctx).Delete(membership).Error
}
