package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Gopher0727/Tavern/internal/model"
	"github.com/Gopher0727/Tavern/internal/permission"
	"github.com/Gopher0727/Tavern/internal/pkg/kafka"
	"github.com/Gopher0727/Tavern/internal/repository"
)

type CreateTavernRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
	Capacity    int     `json:"capacity" binding:"required"`
}

type UpdateTavernRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Capacity    *int    `json:"capacity"`
}

// AskForEnterRequest is a join request sent by the caller to ReceiverEmail,
// usually the tavern's DM.
type AskForEnterRequest struct {
	ReceiverEmail string `json:"receiver_email" binding:"required"`
	TavernID      string `json:"tavern_id"`
	Message       string `json:"message"`
}

type AcceptJoinRequest struct {
	RequesterID string `json:"requester_id" binding:"required"`
	TavernID    string `json:"tavern_id"`
}

type AddMemberRequest struct {
	TavernID      string                 `json:"tavern_id"`
	Username      string                 `json:"username" binding:"required"`
	Discriminator string                 `json:"discriminator" binding:"required"`
	Status        model.MembershipStatus `json:"status"`
}

type TavernDetail struct {
	Tavern      *model.Tavern       `json:"tavern"`
	Memberships []*model.Membership `json:"memberships"`
	GameDays    []*model.GameDay    `json:"game_days"`
	MemberCount int64               `json:"member_count"`
}

// ITavernService defines the interface for tavern management operations
// DiscoverPageSize is the number of taverns per discovery page.
const DiscoverPageSize = 10

type ITavernService interface {
	CreateTavern(ctx context.Context, ownerEmail string, req *CreateTavernRequest) Result[*model.Tavern]
	GetTavern(ctx context.Context, callerID, tavernID string) Result[*TavernDetail]
	ListMemberTaverns(ctx context.Context, memberID string) Result[[]*model.Tavern]
	ListDiscoverableTaverns(ctx context.Context, callerID string, page int) Result[[]*model.Tavern]
	UpdateTavern(ctx context.Context, actorID, tavernID string, req *UpdateTavernRequest) Result[*model.Tavern]
	ListMemberships(ctx context.Context, callerID, tavernID string) Result[[]*model.Membership]
	AskForEnter(ctx context.Context, inviterID string, req *AskForEnterRequest) Result[*model.Notification]
	AcceptUserInTavern(ctx context.Context, accepterEmail string, req *AcceptJoinRequest) Result[*model.Membership]
	AddUserToTavern(ctx context.Context, actorID string, req *AddMemberRequest) Result[*model.Membership]
	RemoveUserFromTavern(ctx context.Context, actorID, tavernID, membershipID string) Result[*model.Membership]
	GainExperience(ctx context.Context, tavernID string, amount int) Result[*model.Tavern]
}

type TavernService struct {
	Deps
}

func NewTavernService(deps Deps) ITavernService {
	return &TavernService{Deps: deps.withDefaults()}
}

// CreateTavern creates the tavern and the owner's DM membership in one
// transaction.
func (s *TavernService) CreateTavern(ctx context.Context, ownerEmail string, req *CreateTavernRequest) Result[*model.Tavern] {
	const op = "CreateTavern"

	owner, err := s.Store.Members().FindByEmail(ctx, ownerEmail)
	if owner, err = found("member", owner, err); err != nil {
		return fail[*model.Tavern](ctx, s.Logger, op, err)
	}
	tavern, err := model.NewTavern(req.Name, req.Description, req.Capacity)
	if err != nil {
		return fail[*model.Tavern](ctx, s.Logger, op, err)
	}
	membership, err := model.NewOwnerMembership(owner.ID, tavern.ID)
	if err != nil {
		return fail[*model.Tavern](ctx, s.Logger, op, err)
	}

	err = s.Store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Taverns().Create(ctx, tavern); err != nil {
			return fmt.Errorf("failed to create tavern: %w", err)
		}
		if err := tx.Memberships().Create(ctx, membership); err != nil {
			return fmt.Errorf("failed to create owner membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return fail[*model.Tavern](ctx, s.Logger, op, err)
	}

	s.Logger.InfoContext(ctx, "tavern created",
		zap.String("tavern_id", tavern.ID),
		zap.String("owner_id", owner.ID),
	)
	s.publish(ctx, kafka.Event{
		Type:       kafka.EventTavernCreated,
		TavernID:   tavern.ID,
		ActorID:    owner.ID,
		Attributes: map[string]any{"name": tavern.Name, "capacity": tavern.Capacity},
	})
	return created("tavern created", tavern)
}

func (s *TavernService) GetTavern(ctx context.Context, callerID, tavernID string) Result[*TavernDetail] {
	const op = "GetTavern"

	tavern, err := s.findTavern(ctx, s.Store, tavernID)
	if err != nil {
		return fail[*TavernDetail](ctx, s.Logger, op, err)
	}
	if _, err := s.requireMembership(ctx, s.Store, tavern.ID, callerID); err != nil {
		return fail[*TavernDetail](ctx, s.Logger, op, err)
	}

	memberships, err := s.Store.Memberships().ListByTavern(ctx, tavern.ID)
	if err != nil {
		return fail[*TavernDetail](ctx, s.Logger, op, fmt.Errorf("failed to list memberships: %w", err))
	}
	gameDays, err := s.Store.GameDays().ListByTavern(ctx, tavern.ID)
	if err != nil {
		return fail[*TavernDetail](ctx, s.Logger, op, fmt.Errorf("failed to list game days: %w", err))
	}
	count, err := s.Store.Memberships().CountActive(ctx, tavern.ID)
	if err != nil {
		return fail[*TavernDetail](ctx, s.Logger, op, fmt.Errorf("failed to count members: %w", err))
	}
	return ok("tavern found", &TavernDetail{
		Tavern:      tavern,
		Memberships: memberships,
		GameDays:    gameDays,
		MemberCount: count,
	})
}

func (s *TavernService) ListMemberTaverns(ctx context.Context, memberID string) Result[[]*model.Tavern] {
	taverns, err := s.Store.Taverns().ListByMember(ctx, memberID)
	if err != nil {
		return fail[[]*model.Tavern](ctx, s.Logger, "ListMemberTaverns", fmt.Errorf("failed to list taverns: %w", err))
	}
	return ok("taverns found", taverns)
}

// ListDiscoverableTaverns returns one page, counted from 1, of the taverns
// the caller has not joined.
func (s *TavernService) ListDiscoverableTaverns(ctx context.Context, callerID string, page int) Result[[]*model.Tavern] {
	const op = "ListDiscoverableTaverns"

	if page < 1 {
		return fail[[]*model.Tavern](ctx, s.Logger, op, model.Invalid("page must be at least 1"))
	}
	if _, err := s.findMember(ctx, s.Store, callerID); err != nil {
		return fail[[]*model.Tavern](ctx, s.Logger, op, err)
	}
	taverns, err := s.Store.Taverns().ListDiscoverable(ctx, callerID, (page-1)*DiscoverPageSize, DiscoverPageSize)
	if err != nil {
		return fail[[]*model.Tavern](ctx, s.Logger, op, fmt.Errorf("failed to list taverns: %w", err))
	}
	if taverns == nil {
		taverns = []*model.Tavern{}
	}
	return ok("taverns found", taverns)
}

// UpdateTavern applies the non-nil fields of req. Lowering the capacity
// below the current member count is a conflict.
func (s *TavernService) UpdateTavern(ctx context.Context, actorID, tavernID string, req *UpdateTavernRequest) Result[*model.Tavern] {
	const op = "UpdateTavern"

	if _, err := s.authorizeIn(ctx, s.Store, tavernID, actorID, permission.UpdateTavern); err != nil {
		return fail[*model.Tavern](ctx, s.Logger, op, err)
	}

	var tavern *model.Tavern
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		t, err := tx.Taverns().FindByIDForUpdate(ctx, tavernID)
		if tavern, err = found("tavern", t, err); err != nil {
			return err
		}
		if req.Name != nil {
			if err := tavern.Rename(*req.Name); err != nil {
				return err
			}
		}
		if req.Description != nil {
			if err := tavern.Describe(req.Description); err != nil {
				return err
			}
		}
		if req.Capacity != nil {
			count, err := tx.Memberships().CountActive(ctx, tavern.ID)
			if err != nil {
				return fmt.Errorf("failed to count members: %w", err)
			}
			if err := tavern.ChangeCapacity(*req.Capacity, count); err != nil {
				return err
			}
		}
		if err := tx.Taverns().Update(ctx, tavern); err != nil {
			return fmt.Errorf("failed to update tavern: %w", err)
		}
		return nil
	})
	if err != nil {
		return fail[*model.Tavern](ctx, s.Logger, op, err)
	}
	return ok("tavern updated", tavern)
}

func (s *TavernService) ListMemberships(ctx context.Context, callerID, tavernID string) Result[[]*model.Membership] {
	const op = "ListMemberships"

	if _, err := s.findTavern(ctx, s.Store, tavernID); err != nil {
		return fail[[]*model.Membership](ctx, s.Logger, op, err)
	}
	if _, err := s.requireMembership(ctx, s.Store, tavernID, callerID); err != nil {
		return fail[[]*model.Membership](ctx, s.Logger, op, err)
	}
	memberships, err := s.Store.Memberships().ListByTavern(ctx, tavernID)
	if err != nil {
		return fail[[]*model.Membership](ctx, s.Logger, op, fmt.Errorf("failed to list memberships: %w", err))
	}
	return ok("memberships found", memberships)
}

// AskForEnter records a join request from inviterID. Only one unseen request
// per inviter and tavern may be pending.
func (s *TavernService) AskForEnter(ctx context.Context, inviterID string, req *AskForEnterRequest) Result[*model.Notification] {
	const op = "AskForEnter"

	receiver, err := s.Store.Members().FindByEmail(ctx, model.NormalizeEmail(req.ReceiverEmail))
	if receiver, err = found("receiver", receiver, err); err != nil {
		return fail[*model.Notification](ctx, s.Logger, op, err)
	}
	inviter, err := s.findMember(ctx, s.Store, inviterID)
	if err != nil {
		return fail[*model.Notification](ctx, s.Logger, op, err)
	}
	tavern, err := s.findTavern(ctx, s.Store, req.TavernID)
	if err != nil {
		return fail[*model.Notification](ctx, s.Logger, op, err)
	}

	_, err = s.Store.Memberships().FindActive(ctx, tavern.ID, inviter.ID)
	switch {
	case err == nil:
		return fail[*model.Notification](ctx, s.Logger, op, model.Conflict("you are already a member of this tavern"))
	case !errors.Is(err, repository.ErrNotFound):
		return fail[*model.Notification](ctx, s.Logger, op, fmt.Errorf("failed to check membership: %w", err))
	}

	pending, err := s.Store.Notifications().FindPending(ctx, inviter.ID, tavern.ID)
	if err != nil {
		return fail[*model.Notification](ctx, s.Logger, op, fmt.Errorf("failed to check pending requests: %w", err))
	}
	if len(pending) > 0 {
		return fail[*model.Notification](ctx, s.Logger, op, model.Conflict("a join request for this tavern is already pending"))
	}

	message := req.Message
	if message == "" {
		message = fmt.Sprintf("%s asks to join %s", inviter.Handle(), tavern.Name)
	}
	notification, err := model.NewNotification(inviter.ID, receiver.Email, tavern.ID, model.NotificationInvite, message)
	if err != nil {
		return fail[*model.Notification](ctx, s.Logger, op, err)
	}
	if err := s.Store.Notifications().Create(ctx, notification); err != nil {
		return fail[*model.Notification](ctx, s.Logger, op, fmt.Errorf("failed to create notification: %w", err))
	}

	s.publish(ctx, kafka.Event{
		Type:       kafka.EventNotificationCreated,
		TavernID:   tavern.ID,
		ActorID:    inviter.ID,
		Attributes: map[string]any{"notification_id": notification.ID, "kind": string(notification.Type)},
	})
	return created("join request sent", notification)
}

// AcceptUserInTavern admits the requester as a COMMON member and resolves
// their pending join requests for the tavern.
func (s *TavernService) AcceptUserInTavern(ctx context.Context, accepterEmail string, req *AcceptJoinRequest) Result[*model.Membership] {
	const op = "AcceptUserInTavern"

	accepter, err := s.Store.Members().FindByEmail(ctx, accepterEmail)
	if accepter, err = found("member", accepter, err); err != nil {
		return fail[*model.Membership](ctx, s.Logger, op, err)
	}
	requester, err := s.Store.Members().FindByID(ctx, req.RequesterID)
	if requester, err = found("requester", requester, err); err != nil {
		return fail[*model.Membership](ctx, s.Logger, op, err)
	}
	if _, err := s.authorizeIn(ctx, s.Store, req.TavernID, accepter.ID, permission.AcceptJoinRequest); err != nil {
		return fail[*model.Membership](ctx, s.Logger, op, err)
	}

	var membership *model.Membership
	err = s.Store.Transaction(ctx, func(tx repository.Store) error {
		m, err := s.admit(ctx, tx, req.TavernID, requester.ID, model.StatusCommon)
		if err != nil {
			return err
		}
		membership = m

		pending, err := tx.Notifications().FindPending(ctx, requester.ID, req.TavernID)
		if err != nil {
			return fmt.Errorf("failed to find pending requests: %w", err)
		}
		for _, n := range pending {
			if n.MarkSeen() {
				if err := tx.Notifications().Update(ctx, n); err != nil {
					return fmt.Errorf("failed to resolve join request: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fail[*model.Membership](ctx, s.Logger, op, err)
	}

	s.memberJoined(ctx, membership, accepter.ID)
	return created("member accepted", membership)
}

func (s *TavernService) AddUserToTavern(ctx context.Context, actorID string, req *AddMemberRequest) Result[*model.Membership] {
	const op = "AddUserToTavern"

	status := req.Status
	if status == "" {
		status = model.StatusCommon
	}
	if status != model.StatusCommon && status != model.StatusAdmin {
		return fail[*model.Membership](ctx, s.Logger, op, model.Invalid("status must be COMMON or ADMIN"))
	}

	if _, err := s.authorizeIn(ctx, s.Store, req.TavernID, actorID, permission.AddMember); err != nil {
		return fail[*model.Membership](ctx, s.Logger, op, err)
	}
	target, err := s.Store.Members().FindByHandle(ctx, req.Username, req.Discriminator)
	if target, err = found("member", target, err); err != nil {
		return fail[*model.Membership](ctx, s.Logger, op, err)
	}

	var membership *model.Membership
	err = s.Store.Transaction(ctx, func(tx repository.Store) error {
		m, err := s.admit(ctx, tx, req.TavernID, target.ID, status)
		membership = m
		return err
	})
	if err != nil {
		return fail[*model.Membership](ctx, s.Logger, op, err)
	}

	s.memberJoined(ctx, membership, actorID)
	return created("member added", membership)
}

// RemoveUserFromTavern soft-deletes a membership. The DM's membership can
// never be removed this way.
func (s *TavernService) RemoveUserFromTavern(ctx context.Context, actorID, tavernID, membershipID string) Result[*model.Membership] {
	const op = "RemoveUserFromTavern"

	if _, err := s.authorizeIn(ctx, s.Store, tavernID, actorID, permission.RemoveMember); err != nil {
		return fail[*model.Membership](ctx, s.Logger, op, err)
	}
	target, err := s.Store.Memberships().FindByID(ctx, membershipID)
	if target, err = found("membership", target, err); err != nil {
		return fail[*model.Membership](ctx, s.Logger, op, err)
	}
	if target.TavernID != tavernID {
		return fail[*model.Membership](ctx, s.Logger, op, notFound("membership"))
	}
	if target.IsDm {
		return fail[*model.Membership](ctx, s.Logger, op, model.Conflict("the dungeon master cannot be removed from the tavern"))
	}
	if err := s.Store.Memberships().Delete(ctx, target); err != nil {
		return fail[*model.Membership](ctx, s.Logger, op, fmt.Errorf("failed to remove membership: %w", err))
	}

	s.Logger.InfoContext(ctx, "member removed",
		zap.String("tavern_id", tavernID),
		zap.String("membership_id", target.ID),
	)
	return ok("member removed", target)
}

func (s *TavernService) GainExperience(ctx context.Context, tavernID string, amount int) Result[*model.Tavern] {
	var (
		tavern    *model.Tavern
		leveledUp bool
	)
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		tavern, leveledUp, err = gainExperience(ctx, tx, tavernID, amount)
		return err
	})
	if err != nil {
		return fail[*model.Tavern](ctx, s.Logger, "GainExperience", err)
	}
	if leveledUp {
		s.leveledUp(ctx, tavern, "")
	}
	return ok("experience gained", tavern)
}

// authorizeIn checks that the tavern exists and that memberID may perform
// action in it.
func (d Deps) authorizeIn(ctx context.Context, store repository.Store, tavernID, memberID string, action permission.Action) (*model.Membership, error) {
	if _, err := d.findTavern(ctx, store, tavernID); err != nil {
		return nil, err
	}
	m, err := d.requireMembership(ctx, store, tavernID, memberID)
	if err != nil {
		return nil, err
	}
	if err := permission.Authorize(m, action); err != nil {
		return nil, err
	}
	return m, nil
}

// admit creates an active membership for memberID. It must run inside a
// transaction: the tavern row stays locked from the capacity check until
// the insert commits.
func (d Deps) admit(ctx context.Context, tx repository.Store, tavernID, memberID string, status model.MembershipStatus) (*model.Membership, error) {
	tavern, err := tx.Taverns().FindByIDForUpdate(ctx, tavernID)
	if tavern, err = found("tavern", tavern, err); err != nil {
		return nil, err
	}

	_, err = tx.Memberships().FindActive(ctx, tavernID, memberID)
	switch {
	case err == nil:
		return nil, model.Conflict("member already belongs to this tavern")
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}

	count, err := tx.Memberships().CountActive(ctx, tavernID)
	if err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}
	if err := tavern.CanAdmit(count); err != nil {
		return nil, err
	}

	membership, err := model.NewMembership(memberID, tavernID, status)
	if err != nil {
		return nil, err
	}
	if err := tx.Memberships().Create(ctx, membership); err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}
	return membership, nil
}

// gainExperience locks the tavern, applies amount and persists it. It must
// run inside a transaction.
func gainExperience(ctx context.Context, tx repository.Store, tavernID string, amount int) (*model.Tavern, bool, error) {
	tavern, err := tx.Taverns().FindByIDForUpdate(ctx, tavernID)
	if tavern, err = found("tavern", tavern, err); err != nil {
		return nil, false, err
	}
	leveledUp, err := tavern.GainExperience(amount)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Taverns().Update(ctx, tavern); err != nil {
		return nil, false, fmt.Errorf("failed to update tavern: %w", err)
	}
	return tavern, leveledUp, nil
}

func (d Deps) memberJoined(ctx context.Context, m *model.Membership, actorID string) {
	d.Logger.InfoContext(ctx, "member joined",
		zap.String("tavern_id", m.TavernID),
		zap.String("member_id", m.MemberID),
		zap.String("status", string(m.Status)),
	)
	d.publish(ctx, kafka.Event{
		Type:       kafka.EventMemberJoined,
		TavernID:   m.TavernID,
		ActorID:    actorID,
		Attributes: map[string]any{"member_id": m.MemberID, "status": string(m.Status)},
	})
}

func (d Deps) leveledUp(ctx context.Context, t *model.Tavern, actorID string) {
	d.Logger.InfoContext(ctx, "tavern leveled up",
		zap.String("tavern_id", t.ID),
		zap.Int("level", t.Level),
	)
	d.publish(ctx, kafka.Event{
		Type:       kafka.EventTavernLeveledUp,
		TavernID:   t.ID,
		ActorID:    actorID,
		Attributes: map[string]any{"level": t.Level},
	})
}
