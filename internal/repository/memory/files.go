package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/Gopher0727/Tavern/internal/model"
	"github.com/Gopher0727/Tavern/internal/repository"
)

type notificationRepo struct{ s *Store }

func (r *notificationRepo) Create(_ context.Context, n *model.Notification) error {
	return r.s.write(func(d *state) error {
		if d.notifications.exists(n.ID) {
			return duplicate()
		}
		stampCreate(&n.Base, r.s.timestamp())
		d.notifications.put(*n)
		return nil
	})
}

func (r *notificationRepo) FindByID(_ context.Context, id string) (*model.Notification, error) {
	var (
		n  model.Notification
		ok bool
	)
	r.s.read(func(d *state) { n, ok = d.notifications.get(id) })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &n, nil
}

func (r *notificationRepo) ListByReceiver(_ context.Context, email string) ([]*model.Notification, error) {
	email = model.NormalizeEmail(email)
	var out []*model.Notification
	r.s.read(func(d *state) {
		out = d.notifications.filter(func(n model.Notification) bool { return n.ReceiverEmail == email })
	})
	slices.Reverse(out)
	return out, nil
}

func (r *notificationRepo) FindPending(_ context.Context, senderID, tavernID string) ([]*model.Notification, error) {
	var out []*model.Notification
	r.s.read(func(d *state) {
		out = d.notifications.filter(func(n model.Notification) bool {
			return n.SenderID == senderID && n.TavernID == tavernID &&
				n.Type == model.NotificationInvite && !n.AlreadySeen
		})
	})
	return out, nil
}

func (r *notificationRepo) Update(_ context.Context, n *model.Notification) error {
	return r.s.write(func(d *state) error {
		if _, ok := d.notifications.get(n.ID); !ok {
			return repository.ErrNotFound
		}
		n.UpdatedAt = r.s.timestamp()
		d.notifications.put(*n)
		return nil
	})
}

type folderRepo struct{ s *Store }

func (r *folderRepo) Create(_ context.Context, f *model.Folder) error {
	return r.s.write(func(d *state) error {
		if d.folders.exists(f.ID) {
			return duplicate()
		}
		stampCreate(&f.Base, r.s.timestamp())
		d.folders.put(*f)
		return nil
	})
}

func (r *folderRepo) FindByID(_ context.Context, id string) (*model.Folder, error) {
	var (
		f  model.Folder
		ok bool
	)
	r.s.read(func(d *state) { f, ok = d.folders.get(id) })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &f, nil
}

// FindByIDForUpdate needs no lock: transactions are serialized.
func (r *folderRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Folder, error) {
	return r.FindByID(ctx, id)
}

func (r *folderRepo) FindByName(_ context.Context, membershipID, name string) (*model.Folder, error) {
	var (
		f  model.Folder
		ok bool
	)
	r.s.read(func(d *state) {
		f, ok = d.folders.find(func(v model.Folder) bool {
			return v.MembershipID == membershipID && v.Name == name
		})
	})
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &f, nil
}

func (r *folderRepo) ListByMembership(_ context.Context, membershipID string) ([]*model.Folder, error) {
	var out []*model.Folder
	r.s.read(func(d *state) {
		out = d.folders.filter(func(f model.Folder) bool { return f.MembershipID == membershipID })
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type itemRepo struct{ s *Store }

func (r *itemRepo) Create(_ context.Context, i *model.Item) error {
	return r.s.write(func(d *state) error {
		if d.items.exists(i.ID) {
			return duplicate()
		}
		stampCreate(&i.Base, r.s.timestamp())
		d.items.put(*i)
		return nil
	})
}

func (r *itemRepo) FindByID(_ context.Context, id string) (*model.Item, error) {
	var (
		i  model.Item
		ok bool
	)
	r.s.read(func(d *state) { i, ok = d.items.get(id) })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &i, nil
}

func (r *itemRepo) FindByName(_ context.Context, folderID, name, extension string) (*model.Item, error) {
	var (
		i  model.Item
		ok bool
	)
	r.s.read(func(d *state) {
		i, ok = d.items.find(func(v model.Item) bool {
			return v.FolderID == folderID && v.Name == name && v.Extension == extension
		})
	})
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &i, nil
}

func (r *itemRepo) ListByFolder(_ context.Context, folderID string) ([]*model.Item, error) {
	var out []*model.Item
	r.s.read(func(d *state) {
		out = d.items.filter(func(i model.Item) bool { return i.FolderID == folderID })
	})
	sort.SliceStable(out, func(a, b int) bool { return out[a].FileName() < out[b].FileName() })
	return out, nil
}

func (r *itemRepo) Delete(_ context.Context, i *model.Item) error {
	return r.s.write(func(d *state) error {
		stored, ok := d.items.get(i.ID)
		if !ok {
			return repository.ErrNotFound
		}
		now := r.s.timestamp()
		stored.MarkDeleted(now)
		i.MarkDeleted(now)
		d.items.put(stored)
		return nil
	})
}
