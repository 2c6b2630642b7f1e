package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/Gopher0727/Tavern/internal/model"
)

// ErrNotFound is returned by every Find method when no live row matches.
var ErrNotFound = gorm.ErrRecordNotFound

// IsUniqueViolation reports whether err is a unique-constraint violation from
// the store: gorm's translated ErrDuplicatedKey or a raw PostgreSQL 23505.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IMemberRepository defines the interface for member data operations
type IMemberRepository interface {
	Create(ctx context.Context, member *model.Member) error
	FindByID(ctx context.Context, id string) (*model.Member, error)
	FindByEmail(ctx context.Context, email string) (*model.Member, error)
	FindByHandle(ctx context.Context, username, discriminator string) (*model.Member, error)
	Update(ctx context.Context, member *model.Member) error
}

// ITavernRepository defines the interface for tavern data operations
type ITavernRepository interface {
	Create(ctx context.Context, tavern *model.Tavern) error
	FindByID(ctx context.Context, id string) (*model.Tavern, error)
	// FindByIDForUpdate locks the row until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id string) (*model.Tavern, error)
	Update(ctx context.Context, tavern *model.Tavern) error
	ListByMember(ctx context.Context, memberID string) ([]*model.Tavern, error)
	// ListDiscoverable pages through the taverns the member has no active
	// membership in, oldest first.
	ListDiscoverable(ctx context.Context, memberID string, offset, limit int) ([]*model.Tavern, error)
}

// IMembershipRepository defines the interface for membership data operations
type IMembershipRepository interface {
	Create(ctx context.Context, membership *model.Membership) error
	FindByID(ctx context.Context, id string) (*model.Membership, error)
	// FindActive returns the member's active membership in the tavern.
	FindActive(ctx context.Context, tavernID, memberID string) (*model.Membership, error)
	ListByTavern(ctx context.Context, tavernID string) ([]*model.Membership, error)
	CountActive(ctx context.Context, tavernID string) (int64, error)
	Delete(ctx context.Context, membership *model.Membership) error
}

type IGameDayRepository interface {
	Create(ctx context.Context, gameDay *model.GameDay) error
	FindByID(ctx context.Context, id string) (*model.GameDay, error)
	// FindByIDForUpdate locks the row until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id string) (*model.GameDay, error)
	ListByTavern(ctx context.Context, tavernID string) ([]*model.GameDay, error)
	Update(ctx context.Context, gameDay *model.GameDay) error
	Delete(ctx context.Context, gameDay *model.GameDay) error
}

type IPostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	FindByID(ctx context.Context, id string) (*model.Post, error)
	// FindByIDForUpdate locks the post so like toggles on it run one at a time.
	FindByIDForUpdate(ctx context.Context, id string) (*model.Post, error)
	// ListByTavern returns posts newest first.
	ListByTavern(ctx context.Context, tavernID string) ([]*model.Post, error)
}

type ILikeRepository interface {
	Find(ctx context.Context, membershipID, postID string) (*model.Like, error)
	Create(ctx context.Context, like *model.Like) error
	Delete(ctx context.Context, like *model.Like) error
	CountByPost(ctx context.Context, postID string) (int64, error)
	CountByPosts(ctx context.Context, postIDs []string) (map[string]int64, error)
	// LikedPostIDs returns the subset of postIDs liked by membershipID.
	LikedPostIDs(ctx context.Context, membershipID string, postIDs []string) (map[string]bool, error)
}

type ICommentRepository interface {
	Create(ctx context.Context, comment *model.Comment) error
	FindByID(ctx context.Context, id string) (*model.Comment, error)
	// ListByPost returns comments oldest first.
	ListByPost(ctx context.Context, postID string) ([]*model.Comment, error)
	CountByPosts(ctx context.Context, postIDs []string) (map[string]int64, error)
}

type INotificationRepository interface {
	Create(ctx context.Context, notification *model.Notification) error
	FindByID(ctx context.Context, id string) (*model.Notification, error)
	ListByReceiver(ctx context.Context, email string) ([]*model.Notification, error)
	// FindPending returns unseen invite notifications sent by senderID for tavernID.
	FindPending(ctx context.Context, senderID, tavernID string) ([]*model.Notification, error)
	Update(ctx context.Context, notification *model.Notification) error
}

type IFolderRepository interface {
	Create(ctx context.Context, folder *model.Folder) error
	FindByID(ctx context.Context, id string) (*model.Folder, error)
	// FindByIDForUpdate locks the folder so item names are checked and
	// inserted one upload at a time.
	FindByIDForUpdate(ctx context.Context, id string) (*model.Folder, error)
	FindByName(ctx context.Context, membershipID, name string) (*model.Folder, error)
	ListByMembership(ctx context.Context, membershipID string) ([]*model.Folder, error)
}

type IItemRepository interface {
	Create(ctx context.Context, item *model.Item) error
	FindByID(ctx context.Context, id string) (*model.Item, error)
	FindByName(ctx context.Context, folderID, name, extension string) (*model.Item, error)
	ListByFolder(ctx context.Context, folderID string) ([]*model.Item, error)
	Delete(ctx context.Context, item *model.Item) error
}

// Store groups the repositories and runs units of work. Repositories obtained
// from the Store passed to fn share fn's transaction.
type Store interface {
	Members() IMemberRepository
	Taverns() ITavernRepository
	Memberships() IMembershipRepository
	GameDays() IGameDayRepository
	Posts() IPostRepository
	Likes() ILikeRepository
	Comments() ICommentRepository
	Notifications() INotificationRepository
	Folders() IFolderRepository
	Items() IItemRepository

	// Transaction commits when fn returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// Models lists every persisted type, in migration order.
func Models() []any {
	return []any{
		&model.Member{},
		&model.Tavern{},
		&model.Membership{},
		&model.GameDay{},
		&model.Post{},
		&model.Like{},
		&model.Comment{},
		&model.Notification{},
		&model.Folder{},
		&model.Item{},
	}
}
