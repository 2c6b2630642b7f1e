package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/Tavern/internal/model"
)

// MemberRepository implements IMemberRepository interface
type MemberRepository struct {
	db *gorm.DB
}

// NewMemberRepository creates a new IMemberRepository instance
func NewMemberRepository(db *gorm.DB) IMemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Create(ctx context.Context, member *model.Member) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *MemberRepository) FindByID(ctx context.Context, id string) (*model.Member, error) {
	var member model.Member
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *MemberRepository) FindByEmail(ctx context.Context, email string) (*model.Member, error) {
	var member model.Member
	err := r.db.WithContext(ctx).Where("email = ?", model.NormalizeEmail(email)).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *MemberRepository) FindByHandle(ctx context.Context, username, discriminator string) (*model.Member, error) {
	var member model.Member
	err := r.db.WithContext(ctx).
		Where("username = ? AND discriminator = ?", username, discriminator).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *MemberRepository) Update(ctx context.Context, member *model.Member) error {
	return r.db.WithContext(ctx).Save(member).Error
}
