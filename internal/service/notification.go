package service

import (
	"context"
	"fmt"

	"github.com/Gopher0727/Tavern/internal/model"
)

type INotificationService interface {
	ListReceived(ctx context.Context, email string) Result[[]*model.Notification]
	MarkSeen(ctx context.Context, email, notificationID string) Result[*model.Notification]
}

type NotificationService struct {
	Deps
}

func NewNotificationService(deps Deps) INotificationService {
	return &NotificationService{Deps: deps.withDefaults()}
}

func (s *NotificationService) ListReceived(ctx context.Context, email string) Result[[]*model.Notification] {
	notifications, err := s.Store.Notifications().ListByReceiver(ctx, model.NormalizeEmail(email))
	if err != nil {
		return fail[[]*model.Notification](ctx, s.Logger, "ListReceived", fmt.Errorf("failed to list notifications: %w", err))
	}
	return ok("notifications found", notifications)
}

// MarkSeen flags the notification as seen. Only the receiver may do so, and
// marking an already seen notification is a no-op.
func (s *NotificationService) MarkSeen(ctx context.Context, email, notificationID string) Result[*model.Notification] {
	const op = "MarkSeen"

	n, err := s.Store.Notifications().FindByID(ctx, notificationID)
	if n, err = found("notification", n, err); err != nil {
		return fail[*model.Notification](ctx, s.Logger, op, err)
	}
	if n.ReceiverEmail != model.NormalizeEmail(email) {
		return fail[*model.Notification](ctx, s.Logger, op, model.Forbidden("this notification was sent to someone else"))
	}
	if n.MarkSeen() {
		if err := s.Store.Notifications().Update(ctx, n); err != nil {
			return fail[*model.Notification](ctx, s.Logger, op, fmt.Errorf("failed to update notification: %w", err))
		}
	}
	return ok("notification seen", n)
}
