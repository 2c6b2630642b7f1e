package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"

	"go.uber.org/zap"

	"github.com/Gopher0727/Tavern/internal/identity"
	"github.com/Gopher0727/Tavern/internal/model"
	"github.com/Gopher0727/Tavern/internal/repository"
	"github.com/Gopher0727/Tavern/internal/storage"
	"github.com/Gopher0727/Tavern/middleware/jwt"
)

const (
	invalidCredentials = "invalid email or password"
	handlesExhausted   = "no free discriminator is left for this username, pick a different username"
)

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ChangeUsernameRequest struct {
	Username string `json:"username" binding:"required"`
}

type LoginResponse struct {
	Token  string        `json:"token"`
	Member *model.Member `json:"member"`
}

type MemberProfile struct {
	Member  *model.Member   `json:"member"`
	Handle  string          `json:"handle"`
	Taverns []*model.Tavern `json:"taverns"`
}

type IMemberService interface {
	Register(ctx context.Context, req *RegisterRequest) Result[*model.Member]
	Login(ctx context.Context, req *LoginRequest) Result[*LoginResponse]
	Profile(ctx context.Context, memberID string) Result[*MemberProfile]
	ChangeUsername(ctx context.Context, memberID string, req *ChangeUsernameRequest) Result[*model.Member]
	ChangeProfilePicture(ctx context.Context, memberID string, image *Upload) Result[*model.Member]
}

type MemberService struct {
	Deps
	allocator *identity.Allocator
	tokens    *jwt.TokenManager
	blobs     storage.BlobStore
}

func NewMemberService(deps Deps, tokens *jwt.TokenManager, blobs storage.BlobStore, opts ...identity.Option) IMemberService {
	deps = deps.withDefaults()
	return &MemberService{
		Deps:      deps,
		allocator: identity.NewAllocator(deps.Store.Members(), opts...),
		tokens:    tokens,
		blobs:     blobs,
	}
}

// Register validates the request, hashes the password and lets the
// allocator pick a discriminator for the username.
func (s *MemberService) Register(ctx context.Context, req *RegisterRequest) Result[*model.Member] {
	const op = "Register"

	if err := model.ValidateUsername(req.Username); err != nil {
		return fail[*model.Member](ctx, s.Logger, op, err)
	}
	email := model.NormalizeEmail(req.Email)
	if err := model.ValidateEmail(email); err != nil {
		return fail[*model.Member](ctx, s.Logger, op, err)
	}

	_, err := s.Store.Members().FindByEmail(ctx, email)
	switch {
	case err == nil:
		return fail[*model.Member](ctx, s.Logger, op, model.Conflict(identity.EmailTakenMessage))
	case !errors.Is(err, repository.ErrNotFound):
		return fail[*model.Member](ctx, s.Logger, op, fmt.Errorf("failed to check email: %w", err))
	}

	hash, err := model.HashPassword(req.Password)
	if err != nil {
		return fail[*model.Member](ctx, s.Logger, op, err)
	}

	member, err := s.allocator.Allocate(ctx, req.Username, email, hash)
	if errors.Is(err, identity.ErrDiscriminatorsExhausted) {
		return s.exhausted(ctx, op, req.Username, err)
	}
	if err != nil {
		return fail[*model.Member](ctx, s.Logger, op, err)
	}

	s.Logger.InfoContext(ctx, "member registered",
		zap.String("member_id", member.ID),
		zap.String("handle", member.Handle()),
	)
	return created("member registered", member)
}

func (s *MemberService) Login(ctx context.Context, req *LoginRequest) Result[*LoginResponse] {
	const op = "Login"

	member, err := s.Store.Members().FindByEmail(ctx, model.NormalizeEmail(req.Email))
	if errors.Is(err, repository.ErrNotFound) {
		return Result[*LoginResponse]{Message: invalidCredentials, Code: http.StatusUnauthorized}
	}
	if err != nil {
		return fail[*LoginResponse](ctx, s.Logger, op, fmt.Errorf("failed to find member: %w", err))
	}
	if !member.ComparePassword(req.Password) {
		return Result[*LoginResponse]{Message: invalidCredentials, Code: http.StatusUnauthorized}
	}

	token, err := s.tokens.GenerateToken(jwt.Identity{
		MemberID:      member.ID,
		Username:      member.Username,
		Discriminator: member.Discriminator,
		Email:         member.Email,
	})
	if err != nil {
		return fail[*LoginResponse](ctx, s.Logger, op, fmt.Errorf("failed to issue token: %w", err))
	}
	return ok("logged in", &LoginResponse{Token: token, Member: member})
}

func (s *MemberService) Profile(ctx context.Context, memberID string) Result[*MemberProfile] {
	const op = "Profile"

	member, err := s.findMember(ctx, s.Store, memberID)
	if err != nil {
		return fail[*MemberProfile](ctx, s.Logger, op, err)
	}
	taverns, err := s.Store.Taverns().ListByMember(ctx, member.ID)
	if err != nil {
		return fail[*MemberProfile](ctx, s.Logger, op, fmt.Errorf("failed to list taverns: %w", err))
	}
	return ok("profile found", &MemberProfile{Member: member, Handle: member.Handle(), Taverns: taverns})
}

// ChangeUsername moves the member to a new username with a freshly drawn
// discriminator.
func (s *MemberService) ChangeUsername(ctx context.Context, memberID string, req *ChangeUsernameRequest) Result[*model.Member] {
	const op = "ChangeUsername"

	member, err := s.findMember(ctx, s.Store, memberID)
	if err != nil {
		return fail[*model.Member](ctx, s.Logger, op, err)
	}
	err = s.allocator.Rename(ctx, member, req.Username)
	if errors.Is(err, identity.ErrDiscriminatorsExhausted) {
		return s.exhausted(ctx, op, req.Username, err)
	}
	if err != nil {
		return fail[*model.Member](ctx, s.Logger, op, err)
	}
	return ok("username changed", member)
}

// ChangeProfilePicture stores the image under members/<id><ext> and points
// the member at it. A picture with a different extension replaces the old
// bytes, which are removed once the member row is updated.
func (s *MemberService) ChangeProfilePicture(ctx context.Context, memberID string, image *Upload) Result[*model.Member] {
	const op = "ChangeProfilePicture"

	member, err := s.findMember(ctx, s.Store, memberID)
	if err != nil {
		return fail[*model.Member](ctx, s.Logger, op, err)
	}
	if image == nil {
		return fail[*model.Member](ctx, s.Logger, op, model.Invalid("image is required"))
	}
	ext, err := imageExtension(image)
	if err != nil {
		return fail[*model.Member](ctx, s.Logger, op, err)
	}

	previous := member.ProfilePicture
	key := "members/" + member.ID + ext
	ref, err := s.blobs.Put(ctx, key, image.Data)
	if err != nil {
		return fail[*model.Member](ctx, s.Logger, op, fmt.Errorf("failed to store picture: %w", err))
	}
	// An unchanged extension reuses the key, so the stored bytes are the
	// picture the member already points at and must stay.
	fresh := previous == "" || path.Ext(previous) != ext
	if err := member.ChangeProfilePicture(ref); err != nil {
		if fresh {
			s.discardBlobFrom(ctx, s.blobs, key)
		}
		return fail[*model.Member](ctx, s.Logger, op, err)
	}
	if err := s.Store.Members().Update(ctx, member); err != nil {
		if fresh {
			s.discardBlobFrom(ctx, s.blobs, key)
		}
		return fail[*model.Member](ctx, s.Logger, op, fmt.Errorf("failed to update member: %w", err))
	}
	if previous != "" && fresh {
		s.discardBlobFrom(ctx, s.blobs, "members/"+member.ID+path.Ext(previous))
	}
	return ok("profile picture changed", member)
}

// exhausted reports allocator exhaustion as a retryable server-side failure
// that the caller resolves by picking another username.
func (s *MemberService) exhausted(ctx context.Context, op, username string, err error) Result[*model.Member] {
	s.Logger.WarnContext(ctx, "discriminators exhausted",
		zap.String("operation", op),
		zap.String("username", username),
		zap.Error(err),
	)
	return Result[*model.Member]{Message: handlesExhausted, Code: http.StatusServiceUnavailable}
}
