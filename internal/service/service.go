// Package service holds the workflows behind the HTTP API. Each call loads
// fresh entities, authorizes the caller, lets the entities validate the
// change and persists the result.
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/Tavern/internal/model"
	"github.com/Gopher0727/Tavern/internal/pkg/kafka"
	"github.com/Gopher0727/Tavern/internal/repository"
	logger "github.com/Gopher0727/Tavern/middleware/log"
)

// Deps are the collaborators every service shares.
type Deps struct {
	Store     repository.Store
	Logger    *logger.Logger
	Publisher kafka.Publisher
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	if d.Publisher == nil {
		d.Publisher = kafka.NopPublisher{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// IDGenerator mints ids for rows whose bytes are stored before the row.
type IDGenerator interface {
	NextString() (string, error)
}

// Upload is a file received from the caller.
type Upload struct {
	Filename string
	Data     []byte
}

// imageExtension returns the lowercased extension of a non-empty jpg, jpeg
// or png upload.
func imageExtension(image *Upload) (string, error) {
	ext := strings.ToLower(filepath.Ext(image.Filename))
	if !model.IsImageExtension(ext) {
		return "", model.Invalid("image must be a .jpg, .jpeg or .png file")
	}
	if len(image.Data) == 0 {
		return "", model.Invalid("image is empty")
	}
	return ext, nil
}

// found turns a repository lookup into a NotFoundError or a wrapped
// infrastructure error.
func found[T any](entity string, v *T, err error) (*T, error) {
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound(entity)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", entity, err)
	}
	return v, nil
}

func (d Deps) findMember(ctx context.Context, store repository.Store, id string) (*model.Member, error) {
	m, err := store.Members().FindByID(ctx, id)
	return found("member", m, err)
}

func (d Deps) findTavern(ctx context.Context, store repository.Store, id string) (*model.Tavern, error) {
	t, err := store.Taverns().FindByID(ctx, id)
	return found("tavern", t, err)
}

// requireMembership returns the caller's active membership in tavernID.
func (d Deps) requireMembership(ctx context.Context, store repository.Store, tavernID, memberID string) (*model.Membership, error) {
	m, err := store.Memberships().FindActive(ctx, tavernID, memberID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.Forbidden("you are not a member of this tavern")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}
	return m, nil
}

// publish emits an activity event. Delivery failures do not fail the
// already committed workflow.
func (d Deps) publish(ctx context.Context, event kafka.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.Now()
	}
	if err := d.Publisher.Publish(ctx, event); err != nil {
		d.Logger.WarnContext(ctx, "failed to publish activity event",
			zap.String("type", string(event.Type)),
			zap.String("tavern_id", event.TavernID),
			zap.Error(err),
		)
	}
}
