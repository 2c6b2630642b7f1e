package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Gopher0727/Tavern/internal/model"
	"github.com/Gopher0727/Tavern/internal/repository"
	"github.com/Gopher0727/Tavern/internal/storage"
)

type CreatePostRequest struct {
	TavernID string `json:"tavern_id" form:"tavern_id"`
	Title    string `json:"title" form:"title" binding:"required"`
	Content  string `json:"content" form:"content" binding:"required"`
}

type CreateCommentRequest struct {
	Content         string  `json:"content" binding:"required"`
	ParentCommentID *string `json:"parent_comment_id"`
}

// PostView is a post annotated for the member reading the feed.
type PostView struct {
	*model.Post
	LikeCount    int64 `json:"like_count"`
	CommentCount int64 `json:"comment_count"`
	LikedByMe    bool  `json:"liked_by_me"`
}

type LikeToggle struct {
	PostID    string `json:"post_id"`
	Added     bool   `json:"added"`
	LikeCount int64  `json:"like_count"`
}

type IFeedService interface {
	CreatePost(ctx context.Context, callerID string, req *CreatePostRequest, image *Upload) Result[*model.Post]
	ListPosts(ctx context.Context, callerID, tavernID string) Result[[]*PostView]
	ToggleLike(ctx context.Context, callerID, postID string) Result[*LikeToggle]
	CreateComment(ctx context.Context, callerID, postID string, req *CreateCommentRequest) Result[*model.Comment]
	ListComments(ctx context.Context, callerID, postID string) Result[[]*model.Comment]
}

type FeedService struct {
	Deps
	blobs storage.BlobStore
	ids   IDGenerator
}

func NewFeedService(deps Deps, blobs storage.BlobStore, ids IDGenerator) IFeedService {
	return &FeedService{Deps: deps.withDefaults(), blobs: blobs, ids: ids}
}

// CreatePost stores the optional image first and attaches its reference.
// If the post row cannot be written the image is deleted again.
func (s *FeedService) CreatePost(ctx context.Context, callerID string, req *CreatePostRequest, image *Upload) Result[*model.Post] {
	const op = "CreatePost"

	if _, err := s.findTavern(ctx, s.Store, req.TavernID); err != nil {
		return fail[*model.Post](ctx, s.Logger, op, err)
	}
	author, err := s.requireMembership(ctx, s.Store, req.TavernID, callerID)
	if err != nil {
		return fail[*model.Post](ctx, s.Logger, op, err)
	}

	id, err := s.ids.NextString()
	if err != nil {
		return fail[*model.Post](ctx, s.Logger, op, fmt.Errorf("failed to mint post id: %w", err))
	}
	post, err := model.NewPost(id, author, req.Title, req.Content)
	if err != nil {
		return fail[*model.Post](ctx, s.Logger, op, err)
	}

	var imageKey string
	if image != nil {
		ext, err := imageExtension(image)
		if err != nil {
			return fail[*model.Post](ctx, s.Logger, op, err)
		}
		imageKey = "posts/" + post.ID + ext
		ref, err := s.blobs.Put(ctx, imageKey, image.Data)
		if err != nil {
			return fail[*model.Post](ctx, s.Logger, op, fmt.Errorf("failed to store image: %w", err))
		}
		if err := post.AttachImage(ref); err != nil {
			s.discardBlob(ctx, imageKey)
			return fail[*model.Post](ctx, s.Logger, op, err)
		}
	}

	if err := s.Store.Posts().Create(ctx, post); err != nil {
		if imageKey != "" {
			s.discardBlob(ctx, imageKey)
		}
		return fail[*model.Post](ctx, s.Logger, op, fmt.Errorf("failed to create post: %w", err))
	}
	return created("post created", post)
}

// ListPosts returns the tavern's posts newest first with counts and the
// caller's own like state.
func (s *FeedService) ListPosts(ctx context.Context, callerID, tavernID string) Result[[]*PostView] {
	const op = "ListPosts"

	if _, err := s.findTavern(ctx, s.Store, tavernID); err != nil {
		return fail[[]*PostView](ctx, s.Logger, op, err)
	}
	reader, err := s.requireMembership(ctx, s.Store, tavernID, callerID)
	if err != nil {
		return fail[[]*PostView](ctx, s.Logger, op, err)
	}

	posts, err := s.Store.Posts().ListByTavern(ctx, tavernID)
	if err != nil {
		return fail[[]*PostView](ctx, s.Logger, op, fmt.Errorf("failed to list posts: %w", err))
	}
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}

	likes, err := s.Store.Likes().CountByPosts(ctx, ids)
	if err != nil {
		return fail[[]*PostView](ctx, s.Logger, op, fmt.Errorf("failed to count likes: %w", err))
	}
	comments, err := s.Store.Comments().CountByPosts(ctx, ids)
	if err != nil {
		return fail[[]*PostView](ctx, s.Logger, op, fmt.Errorf("failed to count comments: %w", err))
	}
	liked, err := s.Store.Likes().LikedPostIDs(ctx, reader.ID, ids)
	if err != nil {
		return fail[[]*PostView](ctx, s.Logger, op, fmt.Errorf("failed to load likes: %w", err))
	}

	views := make([]*PostView, len(posts))
	for i, p := range posts {
		views[i] = &PostView{
			Post:         p,
			LikeCount:    likes[p.ID],
			CommentCount: comments[p.ID],
			LikedByMe:    liked[p.ID],
		}
	}
	return ok("posts found", views)
}

// ToggleLike removes the caller's like when present and adds it otherwise.
func (s *FeedService) ToggleLike(ctx context.Context, callerID, postID string) Result[*LikeToggle] {
	const op = "ToggleLike"

	post, err := s.findPost(ctx, postID)
	if err != nil {
		return fail[*LikeToggle](ctx, s.Logger, op, err)
	}
	liker, err := s.requireMembership(ctx, s.Store, post.TavernID, callerID)
	if err != nil {
		return fail[*LikeToggle](ctx, s.Logger, op, err)
	}

	toggle := &LikeToggle{PostID: post.ID}
	err = s.Store.Transaction(ctx, func(tx repository.Store) error {
		// The post row lock serializes toggles on the same post.
		locked, err := tx.Posts().FindByIDForUpdate(ctx, post.ID)
		if _, err := found("post", locked, err); err != nil {
			return err
		}
		existing, err := tx.Likes().Find(ctx, liker.ID, post.ID)
		switch {
		case err == nil:
			if err := tx.Likes().Delete(ctx, existing); err != nil {
				return fmt.Errorf("failed to remove like: %w", err)
			}
		case errors.Is(err, repository.ErrNotFound):
			like, err := model.NewLike(liker, post)
			if err != nil {
				return err
			}
			if err := tx.Likes().Create(ctx, like); err != nil {
				return fmt.Errorf("failed to add like: %w", err)
			}
			toggle.Added = true
		default:
			return fmt.Errorf("failed to find like: %w", err)
		}

		toggle.LikeCount, err = tx.Likes().CountByPost(ctx, post.ID)
		if err != nil {
			return fmt.Errorf("failed to count likes: %w", err)
		}
		return nil
	})
	if err != nil {
		return fail[*LikeToggle](ctx, s.Logger, op, err)
	}

	if toggle.Added {
		return ok("added", toggle)
	}
	return ok("removed", toggle)
}

// CreateComment adds a comment to the post. A parent comment only has to
// exist; it is not required to belong to the same post.
func (s *FeedService) CreateComment(ctx context.Context, callerID, postID string, req *CreateCommentRequest) Result[*model.Comment] {
	const op = "CreateComment"

	post, err := s.findPost(ctx, postID)
	if err != nil {
		return fail[*model.Comment](ctx, s.Logger, op, err)
	}
	author, err := s.requireMembership(ctx, s.Store, post.TavernID, callerID)
	if err != nil {
		return fail[*model.Comment](ctx, s.Logger, op, err)
	}
	if req.ParentCommentID != nil && *req.ParentCommentID != "" {
		parent, err := s.Store.Comments().FindByID(ctx, *req.ParentCommentID)
		if _, err = found("parent comment", parent, err); err != nil {
			return fail[*model.Comment](ctx, s.Logger, op, err)
		}
	}

	comment, err := model.NewComment(author, post, req.Content, req.ParentCommentID)
	if err != nil {
		return fail[*model.Comment](ctx, s.Logger, op, err)
	}
	if err := s.Store.Comments().Create(ctx, comment); err != nil {
		return fail[*model.Comment](ctx, s.Logger, op, fmt.Errorf("failed to create comment: %w", err))
	}
	return created("comment created", comment)
}

func (s *FeedService) ListComments(ctx context.Context, callerID, postID string) Result[[]*model.Comment] {
	const op = "ListComments"

	post, err := s.findPost(ctx, postID)
	if err != nil {
		return fail[[]*model.Comment](ctx, s.Logger, op, err)
	}
	if _, err := s.requireMembership(ctx, s.Store, post.TavernID, callerID); err != nil {
		return fail[[]*model.Comment](ctx, s.Logger, op, err)
	}
	comments, err := s.Store.Comments().ListByPost(ctx, post.ID)
	if err != nil {
		return fail[[]*model.Comment](ctx, s.Logger, op, fmt.Errorf("failed to list comments: %w", err))
	}
	return ok("comments found", comments)
}

func (s *FeedService) findPost(ctx context.Context, id string) (*model.Post, error) {
	p, err := s.Store.Posts().FindByID(ctx, id)
	return found("post", p, err)
}

// discardBlobFrom removes bytes whose metadata was never written.
func (d Deps) discardBlobFrom(ctx context.Context, blobs storage.BlobStore, key string) {
	if err := blobs.Delete(ctx, key); err != nil {
		d.Logger.ErrorContext(ctx, "failed to discard orphaned blob",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func (s *FeedService) discardBlob(ctx context.Context, key string) {
	s.discardBlobFrom(ctx, s.blobs, key)
}
