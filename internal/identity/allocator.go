// Package identity hands out (username, discriminator) pairs.
package identity

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/bits-and-blooms/bitset"

	"github.com/Gopher0727/Tavern/internal/model"
	"github.com/Gopher0727/Tavern/internal/repository"
)

// DefaultMaxAttempts bounds the discriminator draws per allocation.
const DefaultMaxAttempts = 20

// ErrDiscriminatorsExhausted means every attempted discriminator for the
// username was taken. It is an infrastructure failure, not a user error.
var ErrDiscriminatorsExhausted = errors.New("no free discriminator found")

// EmailTakenMessage is returned as a conflict when the email index, not the
// handle index, rejected the insert.
const EmailTakenMessage = "email is already registered"

type Allocator struct {
	members     repository.IMemberRepository
	maxAttempts int
	intN        func(n int) int
}

type Option func(*Allocator)

func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithRand replaces the uniform source used to draw discriminators.
func WithRand(intN func(n int) int) Option {
	return func(a *Allocator) {
		a.intN = intN
	}
}

func NewAllocator(members repository.IMemberRepository, opts ...Option) *Allocator {
	a := &Allocator{
		members:     members,
		maxAttempts: DefaultMaxAttempts,
		intN:        rand.IntN,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate creates a member with a fresh discriminator for username. Each
// attempt builds a new Member so a failed insert leaves nothing behind.
func (a *Allocator) Allocate(ctx context.Context, username, email, passwordHash string) (*model.Member, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, err
	}

	var created *model.Member
	err := a.draw(ctx, func(discriminator string) error {
		member, err := model.NewMember(username, email, passwordHash, discriminator)
		if err != nil {
			return err
		}
		if err := a.members.Create(ctx, member); err != nil {
			if repository.IsUniqueViolation(err) && a.emailTaken(ctx, member.Email) {
				return model.Conflict(EmailTakenMessage)
			}
			return err
		}
		created = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// emailTaken tells an email collision apart from a handle collision. Both
// surface as the same unique violation, and only the latter is worth a
// redraw.
func (a *Allocator) emailTaken(ctx context.Context, email string) bool {
	_, err := a.members.FindByEmail(ctx, email)
	return err == nil
}

// Rename moves member to username under a newly drawn discriminator. The
// member is left unchanged when no attempt succeeds.
func (a *Allocator) Rename(ctx context.Context, member *model.Member, username string) error {
	if err := model.ValidateUsername(username); err != nil {
		return err
	}

	oldUsername, oldDiscriminator := member.Username, member.Discriminator
	err := a.draw(ctx, func(discriminator string) error {
		if err := member.ChangeUsername(username, discriminator); err != nil {
			return err
		}
		return a.members.Update(ctx, member)
	})
	if err != nil {
		member.Username, member.Discriminator = oldUsername, oldDiscriminator
		return err
	}
	return nil
}

func (a *Allocator) draw(ctx context.Context, try func(discriminator string) error) error {
	tried := bitset.New(model.DiscriminatorSpace)

	err := RetryOnConflict(ctx, a.maxAttempts, repository.IsUniqueViolation, func(int) error {
		n, ok := a.next(tried)
		if !ok {
			return ErrAttemptsExhausted
		}
		tried.Set(n)
		return try(model.FormatDiscriminator(int(n)))
	})
	if errors.Is(err, ErrAttemptsExhausted) {
		return fmt.Errorf("%w: %v", ErrDiscriminatorsExhausted, err)
	}
	return err
}

// next draws uniformly and falls forward to the next untried value when the
// draw repeats.
func (a *Allocator) next(tried *bitset.BitSet) (uint, bool) {
	n := uint(a.intN(model.DiscriminatorSpace))
	if !tried.Test(n) {
		return n, true
	}
	if next, ok := tried.NextClear(n); ok && next < model.DiscriminatorSpace {
		return next, true
	}
	if next, ok := tried.NextClear(0); ok && next < model.DiscriminatorSpace {
		return next, true
	}
	return 0, false
}
