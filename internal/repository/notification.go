package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/Tavern/internal/model"
)

// NotificationRepository implements INotificationRepository interface
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new INotificationRepository instance
func NewNotificationRepository(db *gorm.DB) INotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, notification *model.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*model.Notification, error) {
	var notification model.Notification
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&notification).Error; err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *NotificationRepository) ListByReceiver(ctx context.Context, email string) ([]*model.Notification, error) {
	var notifications []*model.Notification
	err := r.db.WithContext(ctx).
		Where("receiver_email = ?", model.NormalizeEmail(email)).
		Order("created_at DESC").
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *NotificationRepository) FindPending(ctx context.Context, senderID, tavernID string) ([]*model.Notification, error) {
	var notifications []*model.Notification
	err := r.db.WithContext(ctx).
		Where("sender_id = ? AND tavern_id = ? AND type = ? AND already_seen = ?",
			senderID, tavernID, model.NotificationInvite, false).
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *NotificationRepository) Update(ctx context.Context, notification *model.Notification) error {
	return r.db.WithContext(ctx).Save(notification).Error
}
