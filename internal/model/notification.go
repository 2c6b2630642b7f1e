package model

type NotificationType string

const (
	NotificationInvite  NotificationType = "NEW_INVITE_ORDER"
	NotificationPost    NotificationType = "NEW_POST"
	NotificationComment NotificationType = "NEW_COMMENT"
)

// Notification is addressed to an email. AlreadySeen only moves false->true.
type Notification struct {
	Base
	SenderID      string           `gorm:"not null;type:varchar(64);index:idx_notification_sender" json:"sender_id"`
	ReceiverEmail string           `gorm:"not null;type:varchar(255);index" json:"receiver_email"`
	TavernID      string           `gorm:"not null;type:varchar(64);index:idx_notification_sender" json:"tavern_id"`
	Type          NotificationType `gorm:"not null;type:varchar(32)" json:"type"`
	Message       string           `gorm:"not null;type:varchar(500)" json:"message"`
	AlreadySeen   bool             `gorm:"not null;default:false" json:"already_seen"`
}

func (Notification) TableName() string {
	return "notifications"
}

func NewNotification(senderID, receiverEmail, tavernID string, kind NotificationType, message string) (*Notification, error) {
	if senderID == "" || tavernID == "" {
		return nil, Invalid("notification needs a sender and a tavern")
	}
	receiverEmail = NormalizeEmail(receiverEmail)
	if err := ValidateEmail(receiverEmail); err != nil {
		return nil, err
	}
	switch kind {
	case NotificationInvite, NotificationPost, NotificationComment:
	default:
		return nil, Invalid("unknown notification type %q", kind)
	}
	if err := checkRequired("message", message, 1, 500); err != nil {
		return nil, err
	}
	return &Notification{
		Base:          newBase(),
		SenderID:      senderID,
		ReceiverEmail: receiverEmail,
		TavernID:      tavernID,
		Type:          kind,
		Message:       message,
	}, nil
}

// MarkSeen reports whether the flag changed.
func (n *Notification) MarkSeen() bool {
	if n.AlreadySeen {
		return false
	}
	n.AlreadySeen = true
	return true
}
