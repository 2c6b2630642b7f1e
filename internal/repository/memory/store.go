// Package memory is an in-process repository.Store. It enforces the same
// contracts as the gorm store: soft-deleted rows are invisible, unique
// member handles and emails are enforced, and a failed transaction leaves no
// trace.
//
// Transactions are serialized store-wide and work on a private copy of the
// data that replaces the committed data on commit. Writes outside a
// transaction wait for the running one to finish, so a commit never
// overwrites them and a rollback never takes them along. Reads outside a
// transaction only see committed data.
package memory

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/Tavern/internal/model"
	"github.com/Gopher0727/Tavern/internal/repository"
)

type state struct {
	members       *table[model.Member]
	taverns       *table[model.Tavern]
	memberships   *table[model.Membership]
	gameDays      *table[model.GameDay]
	posts         *table[model.Post]
	likes         *table[model.Like]
	comments      *table[model.Comment]
	notifications *table[model.Notification]
	folders       *table[model.Folder]
	items         *table[model.Item]
}

func newState() *state {
	return &state{
		members:       newTable[model.Member](),
		taverns:       newTable[model.Tavern](),
		memberships:   newTable[model.Membership](),
		gameDays:      newTable[model.GameDay](),
		posts:         newTable[model.Post](),
		likes:         newTable[model.Like](),
		comments:      newTable[model.Comment](),
		notifications: newTable[model.Notification](),
		folders:       newTable[model.Folder](),
		items:         newTable[model.Item](),
	}
}

func (s *state) clone() *state {
	return &state{
		members:       s.members.clone(),
		taverns:       s.taverns.clone(),
		memberships:   s.memberships.clone(),
		gameDays:      s.gameDays.clone(),
		posts:         s.posts.clone(),
		likes:         s.likes.clone(),
		comments:      s.comments.clone(),
		notifications: s.notifications.clone(),
		folders:       s.folders.clone(),
		items:         s.items.clone(),
	}
}

type database struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data *state
}

type Store struct {
	db *database
	// work is the transaction's private copy; nil outside a transaction.
	work *state
	now  func() time.Time
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{db: &database{data: newState()}, now: time.Now}
}

func (s *Store) read(fn func(d *state)) {
	if s.work != nil {
		fn(s.work)
		return
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	fn(s.db.data)
}

func (s *Store) write(fn func(d *state) error) error {
	if s.work != nil {
		return fn(s.work)
	}
	s.db.txMu.Lock()
	defer s.db.txMu.Unlock()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return fn(s.db.data)
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func (s *Store) Members() repository.IMemberRepository             { return &memberRepo{s} }
func (s *Store) Taverns() repository.ITavernRepository             { return &tavernRepo{s} }
func (s *Store) Memberships() repository.IMembershipRepository     { return &membershipRepo{s} }
func (s *Store) GameDays() repository.IGameDayRepository           { return &gameDayRepo{s} }
func (s *Store) Posts() repository.IPostRepository                 { return &postRepo{s} }
func (s *Store) Likes() repository.ILikeRepository                 { return &likeRepo{s} }
func (s *Store) Comments() repository.ICommentRepository           { return &commentRepo{s} }
func (s *Store) Notifications() repository.INotificationRepository { return &notificationRepo{s} }
func (s *Store) Folders() repository.IFolderRepository             { return &folderRepo{s} }
func (s *Store) Items() repository.IItemRepository                 { return &itemRepo{s} }

func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.work != nil {
		return fn(s)
	}

	s.db.txMu.Lock()
	defer s.db.txMu.Unlock()

	s.db.mu.RLock()
	work := s.db.data.clone()
	s.db.mu.RUnlock()

	// A panic or an error simply drops work.
	if err := fn(&Store{db: s.db, work: work, now: s.now}); err != nil {
		return err
	}

	s.db.mu.Lock()
	s.db.data = work
	s.db.mu.Unlock()
	return nil
}

// stampCreate mirrors gorm's autoCreateTime/autoUpdateTime behaviour.
func stampCreate(b *model.Base, now time.Time) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = b.CreatedAt
}

func duplicate() error { return gorm.ErrDuplicatedKey }
