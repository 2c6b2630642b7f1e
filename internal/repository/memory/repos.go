package memory

import (
	"context"
	"time"

	"github.com/Gopher0727/Tavern/internal/model"
	"github.com/Gopher0727/Tavern/internal/repository"
)

type memberRepo struct{ s *Store }

func (r *memberRepo) Create(_ context.Context, m *model.Member) error {
	return r.s.write(func(d *state) error {
		if d.members.exists(m.ID) {
			return duplicate()
		}
		email := model.NormalizeEmail(m.Email)
		clash := false
		for _, other := range d.members.rows {
			// Unique indexes also cover soft-deleted rows.
			if other.Email == email || (other.Username == m.Username && other.Discriminator == m.Discriminator) {
				clash = true
				break
			}
		}
		if clash {
			return duplicate()
		}
		stampCreate(&m.Base, r.s.timestamp())
		d.members.put(*m)
		return nil
	})
}

func (r *memberRepo) FindByID(_ context.Context, id string) (*model.Member, error) {
	var (
		m  model.Member
		ok bool
	)
	r.s.read(func(d *state) { m, ok = d.members.get(id) })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r *memberRepo) FindByEmail(_ context.Context, email string) (*model.Member, error) {
	email = model.NormalizeEmail(email)
	var (
		m  model.Member
		ok bool
	)
	r.s.read(func(d *state) {
		m, ok = d.members.find(func(v model.Member) bool { return v.Email == email })
	})
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r *memberRepo) FindByHandle(_ context.Context, username, discriminator string) (*model.Member, error) {
	var (
		m  model.Member
		ok bool
	)
	r.s.read(func(d *state) {
		m, ok = d.members.find(func(v model.Member) bool {
			return v.Username == username && v.Discriminator == discriminator
		})
	})
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r *memberRepo) Update(_ context.Context, m *model.Member) error {
	return r.s.write(func(d *state) error {
		if _, ok := d.members.get(m.ID); !ok {
			return repository.ErrNotFound
		}
		for id, other := range d.members.rows {
			if id == m.ID {
				continue
			}
			if other.Email == m.Email || (other.Username == m.Username && other.Discriminator == m.Discriminator) {
				return duplicate()
			}
		}
		m.UpdatedAt = r.s.timestamp()
		d.members.put(*m)
		return nil
	})
}

type tavernRepo struct{ s *Store }

func (r *tavernRepo) Create(_ context.Context, t *model.Tavern) error {
	return r.s.write(func(d *state) error {
		if d.taverns.exists(t.ID) {
			return duplicate()
		}
		stampCreate(&t.Base, r.s.timestamp())
		d.taverns.put(*t)
		return nil
	})
}

func (r *tavernRepo) FindByID(_ context.Context, id string) (*model.Tavern, error) {
	var (
		t  model.Tavern
		ok bool
	)
	r.s.read(func(d *state) { t, ok = d.taverns.get(id) })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

// FindByIDForUpdate needs no row lock: transactions are already serialized.
func (r *tavernRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Tavern, error) {
	return r.FindByID(ctx, id)
}

func (r *tavernRepo) Update(_ context.Context, t *model.Tavern) error {
	return r.s.write(func(d *state) error {
		if _, ok := d.taverns.get(t.ID); !ok {
			return repository.ErrNotFound
		}
		t.UpdatedAt = r.s.timestamp()
		d.taverns.put(*t)
		return nil
	})
}

func (r *tavernRepo) ListByMember(_ context.Context, memberID string) ([]*model.Tavern, error) {
	var taverns []*model.Tavern
	r.s.read(func(d *state) {
		joined := make(map[string]bool)
		for _, m := range d.memberships.filter(func(m model.Membership) bool {
			return m.MemberID == memberID && m.IsActive
		}) {
			joined[m.TavernID] = true
		}
		taverns = d.taverns.filter(func(t model.Tavern) bool { return joined[t.ID] })
	})
	sortByTime(taverns, func(t *model.Tavern) time.Time { return t.CreatedAt }, false)
	return taverns, nil
}

func (r *tavernRepo) ListDiscoverable(_ context.Context, memberID string, offset, limit int) ([]*model.Tavern, error) {
	var taverns []*model.Tavern
	r.s.read(func(d *state) {
		joined := make(map[string]bool)
		for _, m := range d.memberships.filter(func(m model.Membership) bool {
			return m.MemberID == memberID && m.IsActive
		}) {
			joined[m.TavernID] = true
		}
		taverns = d.taverns.filter(func(t model.Tavern) bool { return !joined[t.ID] })
	})
	sortByTime(taverns, func(t *model.Tavern) time.Time { return t.CreatedAt }, false)
	if offset >= len(taverns) {
		return nil, nil
	}
	return taverns[offset:min(offset+limit, len(taverns))], nil
}

type membershipRepo struct{ s *Store }

func (r *membershipRepo) Create(_ context.Context, m *model.Membership) error {
	return r.s.write(func(d *state) error {
		if d.memberships.exists(m.ID) {
			return duplicate()
		}
		stampCreate(&m.Base, r.s.timestamp())
		d.memberships.put(*m)
		return nil
	})
}

func (r *membershipRepo) FindByID(_ context.Context, id string) (*model.Membership, error) {
	var (
		m  model.Membership
		ok bool
	)
	r.s.read(func(d *state) { m, ok = d.memberships.get(id) })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r *membershipRepo) FindActive(_ context.Context, tavernID, memberID string) (*model.Membership, error) {
	var (
		m  model.Membership
		ok bool
	)
	r.s.read(func(d *state) {
		m, ok = d.memberships.find(func(v model.Membership) bool {
			return v.TavernID == tavernID && v.MemberID == memberID && v.IsActive
		})
	})
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r *membershipRepo) ListByTavern(_ context.Context, tavernID string) ([]*model.Membership, error) {
	var out []*model.Membership
	r.s.read(func(d *state) {
		out = d.memberships.filter(func(m model.Membership) bool { return m.TavernID == tavernID })
	})
	sortByTime(out, func(m *model.Membership) time.Time { return m.CreatedAt }, false)
	return out, nil
}

func (r *membershipRepo) CountActive(_ context.Context, tavernID string) (int64, error) {
	var n int64
	r.s.read(func(d *state) {
		n = d.memberships.count(func(m model.Membership) bool { return m.TavernID == tavernID && m.IsActive })
	})
	return n, nil
}

func (r *membershipRepo) Delete(_ context.Context, m *model.Membership) error {
	return r.s.write(func(d *state) error {
		stored, ok := d.memberships.get(m.ID)
		if !ok {
			return repository.ErrNotFound
		}
		now := r.s.timestamp()
		stored.MarkDeleted(now)
		m.MarkDeleted(now)
		d.memberships.put(stored)
		return nil
	})
}

type gameDayRepo struct{ s *Store }

func (r *gameDayRepo) Create(_ context.Context, g *model.GameDay) error {
	return r.s.write(func(d *state) error {
		if d.gameDays.exists(g.ID) {
			return duplicate()
		}
		stampCreate(&g.Base, r.s.timestamp())
		d.gameDays.put(*g)
		return nil
	})
}

func (r *gameDayRepo) FindByID(_ context.Context, id string) (*model.GameDay, error) {
	var (
		g  model.GameDay
		ok bool
	)
	r.s.read(func(d *state) { g, ok = d.gameDays.get(id) })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &g, nil
}

// FindByIDForUpdate needs no lock: transactions are serialized.
func (r *gameDayRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.GameDay, error) {
	return r.FindByID(ctx, id)
}

func (r *gameDayRepo) ListByTavern(_ context.Context, tavernID string) ([]*model.GameDay, error) {
	var out []*model.GameDay
	r.s.read(func(d *state) {
		out = d.gameDays.filter(func(g model.GameDay) bool { return g.TavernID == tavernID })
	})
	sortByTime(out, func(g *model.GameDay) time.Time { return g.ScheduledAt }, false)
	return out, nil
}

func (r *gameDayRepo) Update(_ context.Context, g *model.GameDay) error {
	return r.s.write(func(d *state) error {
		if _, ok := d.gameDays.get(g.ID); !ok {
			return repository.ErrNotFound
		}
		g.UpdatedAt = r.s.timestamp()
		d.gameDays.put(*g)
		return nil
	})
}

func (r *gameDayRepo) Delete(_ context.Context, g *model.GameDay) error {
	return r.s.write(func(d *state) error {
		stored, ok := d.gameDays.get(g.ID)
		if !ok {
			return repository.ErrNotFound
		}
		now := r.s.timestamp()
		stored.MarkDeleted(now)
		g.MarkDeleted(now)
		d.gameDays.put(stored)
		return nil
	})
}
