package memory

import (
	"context"
	"slices"
	"time"

	"github.com/Gopher0727/Tavern/internal/model"
	"github.com/Gopher0727/Tavern/internal/repository"
)

type postRepo struct{ s *Store }

func (r *postRepo) Create(_ context.Context, p *model.Post) error {
	return r.s.write(func(d *state) error {
		if d.posts.exists(p.ID) {
			return duplicate()
		}
		stampCreate(&p.Base, r.s.timestamp())
		d.posts.put(*p)
		return nil
	})
}

func (r *postRepo) FindByID(_ context.Context, id string) (*model.Post, error) {
	var (
		p  model.Post
		ok bool
	)
	r.s.read(func(d *state) { p, ok = d.posts.get(id) })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

// FindByIDForUpdate needs no lock: transactions are serialized.
func (r *postRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Post, error) {
	return r.FindByID(ctx, id)
}

func (r *postRepo) ListByTavern(_ context.Context, tavernID string) ([]*model.Post, error) {
	var out []*model.Post
	r.s.read(func(d *state) {
		out = d.posts.filter(func(p model.Post) bool { return p.TavernID == tavernID })
	})
	// Newest first; posts created within the same instant keep reverse
	// insertion order.
	slices.Reverse(out)
	sortByTime(out, func(p *model.Post) time.Time { return p.CreatedAt }, true)
	return out, nil
}

type likeRepo struct{ s *Store }

func (r *likeRepo) Find(_ context.Context, membershipID, postID string) (*model.Like, error) {
	var (
		l  model.Like
		ok bool
	)
	r.s.read(func(d *state) {
		l, ok = d.likes.find(func(v model.Like) bool {
			return v.MembershipID == membershipID && v.PostID == postID
		})
	})
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &l, nil
}

func (r *likeRepo) Create(_ context.Context, l *model.Like) error {
	return r.s.write(func(d *state) error {
		if d.likes.exists(l.ID) {
			return duplicate()
		}
		stampCreate(&l.Base, r.s.timestamp())
		d.likes.put(*l)
		return nil
	})
}

func (r *likeRepo) Delete(_ context.Context, l *model.Like) error {
	return r.s.write(func(d *state) error {
		stored, ok := d.likes.get(l.ID)
		if !ok {
			return repository.ErrNotFound
		}
		now := r.s.timestamp()
		stored.MarkDeleted(now)
		l.MarkDeleted(now)
		d.likes.put(stored)
		return nil
	})
}

func (r *likeRepo) CountByPost(_ context.Context, postID string) (int64, error) {
	var n int64
	r.s.read(func(d *state) {
		n = d.likes.count(func(l model.Like) bool { return l.PostID == postID })
	})
	return n, nil
}

func (r *likeRepo) CountByPosts(_ context.Context, postIDs []string) (map[string]int64, error) {
	wanted := toSet(postIDs)
	counts := make(map[string]int64, len(postIDs))
	r.s.read(func(d *state) {
		for _, l := range d.likes.filter(func(l model.Like) bool { return wanted[l.PostID] }) {
			counts[l.PostID]++
		}
	})
	return counts, nil
}

func (r *likeRepo) LikedPostIDs(_ context.Context, membershipID string, postIDs []string) (map[string]bool, error) {
	wanted := toSet(postIDs)
	liked := make(map[string]bool)
	r.s.read(func(d *state) {
		for _, l := range d.likes.filter(func(l model.Like) bool {
			return l.MembershipID == membershipID && wanted[l.PostID]
		}) {
			liked[l.PostID] = true
		}
	})
	return liked, nil
}

type commentRepo struct{ s *Store }

func (r *commentRepo) Create(_ context.Context, c *model.Comment) error {
	return r.s.write(func(d *state) error {
		if d.comments.exists(c.ID) {
			return duplicate()
		}
		stampCreate(&c.Base, r.s.timestamp())
		d.comments.put(*c)
		return nil
	})
}

func (r *commentRepo) FindByID(_ context.Context, id string) (*model.Comment, error) {
	var (
		c  model.Comment
		ok bool
	)
	r.s.read(func(d *state) { c, ok = d.comments.get(id) })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *commentRepo) ListByPost(_ context.Context, postID string) ([]*model.Comment, error) {
	var out []*model.Comment
	r.s.read(func(d *state) {
		out = d.comments.filter(func(c model.Comment) bool { return c.PostID == postID })
	})
	sortByTime(out, func(c *model.Comment) time.Time { return c.CreatedAt }, false)
	return out, nil
}

func (r *commentRepo) CountByPosts(_ context.Context, postIDs []string) (map[string]int64, error) {
	wanted := toSet(postIDs)
	counts := make(map[string]int64, len(postIDs))
	r.s.read(func(d *state) {
		for _, c := range d.comments.filter(func(c model.Comment) bool { return wanted[c.PostID] }) {
			counts[c.PostID]++
		}
	})
	return counts, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
