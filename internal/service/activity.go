package service

import (
	"context"
	"fmt"

	"github.com/Gopher0727/Tavern/internal/pkg/kafka"
)

// ActivityReader returns a tavern's recent activity, newest first.
type ActivityReader interface {
	Recent(ctx context.Context, tavernID string, limit int64) ([]kafka.Event, error)
}

type IActivityService interface {
	Recent(ctx context.Context, callerID, tavernID string, limit int64) Result[[]kafka.Event]
}

type ActivityService struct {
	Deps
	reader ActivityReader
}

func NewActivityService(deps Deps, reader ActivityReader) IActivityService {
	return &ActivityService{Deps: deps.withDefaults(), reader: reader}
}

// Recent is visible to the tavern's active members only.
func (s *ActivityService) Recent(ctx context.Context, callerID, tavernID string, limit int64) Result[[]kafka.Event] {
	const op = "RecentActivity"

	if _, err := s.findTavern(ctx, s.Store, tavernID); err != nil {
		return fail[[]kafka.Event](ctx, s.Logger, op, err)
	}
	if _, err := s.requireMembership(ctx, s.Store, tavernID, callerID); err != nil {
		return fail[[]kafka.Event](ctx, s.Logger, op, err)
	}
	events, err := s.reader.Recent(ctx, tavernID, limit)
	if err != nil {
		return fail[[]kafka.Event](ctx, s.Logger, op, fmt.Errorf("failed to read activity: %w", err))
	}
	return ok("activity found", events)
}
