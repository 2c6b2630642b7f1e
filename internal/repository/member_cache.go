package repository

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Gopher0727/Tavern/internal/model"
)

const memberCacheKeyPrefix = "tavern:member:"

// MemberCache stores member rows in Redis keyed by id. Cache failures are
// treated as misses.
type MemberCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewMemberCache(client redis.Cmdable, ttl time.Duration) *MemberCache {
	return &MemberCache{client: client, ttl: ttl}
}

// memberCacheEntry keeps the password hash, which Member hides from JSON.
type memberCacheEntry struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Username       string    `json:"username"`
	Discriminator  string    `json:"discriminator"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"password_hash"`
	ProfilePicture string    `json:"profile_picture"`
}

func memberCacheKey(id string) string {
	return memberCacheKeyPrefix + id
}

func (c *MemberCache) Get(ctx context.Context, id string) (*model.Member, bool) {
	raw, err := c.client.Get(ctx, memberCacheKey(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var entry memberCacheEntry
	if json.Unmarshal(raw, &entry) != nil {
		return nil, false
	}
	member := &model.Member{
		Username:       entry.Username,
		Discriminator:  entry.Discriminator,
		Email:          entry.Email,
		PasswordHash:   entry.PasswordHash,
		ProfilePicture: entry.ProfilePicture,
	}
	member.ID = entry.ID
	member.CreatedAt = entry.CreatedAt
	member.UpdatedAt = entry.UpdatedAt
	return member, true
}

func (c *MemberCache) Set(ctx context.Context, member *model.Member) {
	data, err := json.Marshal(memberCacheEntry{
		ID:             member.ID,
		CreatedAt:      member.CreatedAt,
		UpdatedAt:      member.UpdatedAt,
		Username:       member.Username,
		Discriminator:  member.Discriminator,
		Email:          member.Email,
		PasswordHash:   member.PasswordHash,
		ProfilePicture: member.ProfilePicture,
	})
	if err != nil {
		return
	}
	c.client.Set(ctx, memberCacheKey(member.ID), data, c.ttl)
}

func (c *MemberCache) Invalidate(ctx context.Context, id string) {
	c.client.Del(ctx, memberCacheKey(id))
}

// CachedMemberRepository serves FindByID from the cache and invalidates on
// writes. Other lookups go straight to the wrapped repository.
type CachedMemberRepository struct {
	IMemberRepository
	cache *MemberCache
}

func NewCachedMemberRepository(inner IMemberRepository, cache *MemberCache) IMemberRepository {
	return &CachedMemberRepository{IMemberRepository: inner, cache: cache}
}

func (r *CachedMemberRepository) FindByID(ctx context.Context, id string) (*model.Member, error) {
	if member, ok := r.cache.Get(ctx, id); ok {
		return member, nil
	}
	member, err := r.IMemberRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, member)
	return member, nil
}

func (r *CachedMemberRepository) Update(ctx context.Context, member *model.Member) error {
	if err := r.IMemberRepository.Update(ctx, member); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, member.ID)
	return nil
}
