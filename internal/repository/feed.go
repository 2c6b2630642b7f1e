package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/Tavern/internal/model"
)

// PostRepository implements IPostRepository interface
type PostRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new IPostRepository instance
func NewPostRepository(db *gorm.DB) IPostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) Create(ctx context.Context, post *model.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *PostRepository) FindByID(ctx context.Context, id string) (*model.Post, error) {
	var post model.Post
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *PostRepository) FindByIDForUpdate(ctx context.Context, id string) (*model.Post, error) {
	var post model.Post
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&post).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *PostRepository) ListByTavern(ctx context.Context, tavernID string) ([]*model.Post, error) {
	var posts []*model.Post
	err := r.db.WithContext(ctx).
		Where("tavern_id = ?", tavernID).
		Order("created_at DESC").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// LikeRepository implements ILikeRepository interface
type LikeRepository struct {
	db *gorm.DB
}

// NewLikeRepository creates a new ILikeRepository instance
func NewLikeRepository(db *gorm.DB) ILikeRepository {
	return &LikeRepository{db: db}
}

func (r *LikeRepository) Find(ctx context.Context, membershipID, postID string) (*model.Like, error) {
	var like model.Like
	err := r.db.WithContext(ctx).
		Where("membership_id = ? AND post_id = ?", membershipID, postID).
		First(&like).Error
	if err != nil {
		return nil, err
	}
	return &like, nil
}

func (r *LikeRepository) Create(ctx context.Context, like *model.Like) error {
	return r.db.WithContext(ctx).Create(like).Error
}

func (r *LikeRepository) Delete(ctx context.Context, like *model.Like) error {
	return r.db.WithContext(ctx).Delete(like).Error
}

func (r *LikeRepository) CountByPost(ctx context.Context, postID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Like{}).Where("post_id = ?", postID).Count(&count).Error
	return count, err
}

func (r *LikeRepository) CountByPosts(ctx context.Context, postIDs []string) (map[string]int64, error) {
	return countBy(ctx, r.db, &model.Like{}, "post_id", postIDs)
}

func (r *LikeRepository) LikedPostIDs(ctx context.Context, membershipID string, postIDs []string) (map[string]bool, error) {
	liked := make(map[string]bool)
	if len(postIDs) == 0 {
		return liked, nil
	}
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Like{}).
		Where("membership_id = ? AND post_id IN ?", membershipID, postIDs).
		Pluck("post_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		liked[id] = true
	}
	return liked, nil
}

// CommentRepository implements ICommentRepository interface
type CommentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new ICommentRepository instance
func NewCommentRepository(db *gorm.DB) ICommentRepository {
	return &CommentRepository{db: db}
}

func (r *CommentRepository) Create(ctx context.Context, comment *model.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *CommentRepository) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	var comment model.Comment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&comment).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *CommentRepository) ListByPost(ctx context.Context, postID string) ([]*model.Comment, error) {
	var comments []*model.Comment
	err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Find(&comments).Error
	if err != nil {
		return nil, err
	}
	return comments, nil
}

func (r *CommentRepository) CountByPosts(ctx context.Context, postIDs []string) (map[string]int64, error) {
	return countBy(ctx, r.db, &model.Comment{}, "post_id", postIDs)
}
