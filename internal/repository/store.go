package repository

import (
	"context"

	"gorm.io/gorm"
)

// GormStore implements Store on a gorm connection.
type GormStore struct {
	db          *gorm.DB
	memberCache *MemberCache
}

type StoreOption func(*GormStore)

// WithMemberCache puts a Redis read-through cache in front of member lookups by id.
func WithMemberCache(cache *MemberCache) StoreOption {
	return func(s *GormStore) {
		s.memberCache = cache
	}
}

func NewGormStore(db *gorm.DB, opts ...StoreOption) *GormStore {
	s := &GormStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GormStore) Members() IMemberRepository {
	repo := NewMemberRepository(s.db)
	if s.memberCache != nil {
		return NewCachedMemberRepository(repo, s.memberCache)
	}
	return repo
}

func (s *GormStore) Taverns() ITavernRepository         { return NewTavernRepository(s.db) }
func (s *GormStore) Memberships() IMembershipRepository { return NewMembershipRepository(s.db) }
func (s *GormStore) GameDays() IGameDayRepository       { return NewGameDayRepository(s.db) }
func (s *GormStore) Posts() IPostRepository             { return NewPostRepository(s.db) }
func (s *GormStore) Likes() ILikeRepository             { return NewLikeRepository(s.db) }
func (s *GormStore) Comments() ICommentRepository       { return NewCommentRepository(s.db) }
func (s *GormStore) Folders() IFolderRepository         { return NewFolderRepository(s.db) }
func (s *GormStore) Items() IItemRepository             { return NewItemRepository(s.db) }

func (s *GormStore) Notifications() INotificationRepository {
	return NewNotificationRepository(s.db)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, memberCache: s.memberCache})
	})
}

// countBy runs "SELECT key, COUNT(*) ... GROUP BY key" for the given ids.
func countBy(ctx context.Context, db *gorm.DB, value any, column string, ids []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}

	var rows []struct {
		GroupKey string
		Total    int64
	}
	err := db.WithContext(ctx).
		Model(value).
		Select(column+" AS group_key, COUNT(*) AS total").
		Where(column+" IN ?", ids).
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.GroupKey] = row.Total
	}
	return counts, nil
}
