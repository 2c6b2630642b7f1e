package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/Tavern/internal/model"
	"github.com/Gopher0727/Tavern/internal/pkg/kafka"
	"github.com/Gopher0727/Tavern/internal/repository"
	"github.com/Gopher0727/Tavern/internal/repository/memory"
	"github.com/Gopher0727/Tavern/internal/storage"
	"github.com/Gopher0727/Tavern/middleware/jwt"
	logger "github.com/Gopher0727/Tavern/middleware/log"
	"github.com/Gopher0727/Tavern/utils/snowflake"
)

var errInjected = errors.New("injected failure")

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []kafka.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]kafka.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// countingBlobs counts calls reaching the wrapped blob store.
type countingBlobs struct {
	storage.BlobStore
	puts, deletes atomic.Int32
}

func (c *countingBlobs) Put(ctx context.Context, key string, data []byte) (string, error) {
	c.puts.Add(1)
	return c.BlobStore.Put(ctx, key, data)
}

func (c *countingBlobs) Delete(ctx context.Context, key string) error {
	c.deletes.Add(1)
	return c.BlobStore.Delete(ctx, key)
}

type harness struct {
	store     *memory.Store
	blobs     *countingBlobs
	publisher *recordingPublisher
	now       time.Time
	deps      Deps
	ids       *snowflake.Generator
	seq       int

	taverns       ITavernService
	gameDays      IGameDayService
	feed          IFeedService
	files         IFileService
	members       IMemberService
	notifications INotificationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	disk, err := storage.NewDiskBlobStore(t.TempDir(), "http://files.test")
	require.NoError(t, err)
	ids, err := snowflake.NewGenerator(snowflake.Config{WorkerID: 1})
	require.NoError(t, err)

	h := &harness{
		store:     memory.NewStore(),
		blobs:     &countingBlobs{BlobStore: disk},
		publisher: &recordingPublisher{},
		now:       time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC),
		ids:       ids,
	}
	h.rebuild(h.store)
	return h
}

// rebuild wires every service on top of store.
func (h *harness) rebuild(store repository.Store) {
	h.deps = Deps{
		Store:     store,
		Logger:    logger.NewNop(),
		Publisher: h.publisher,
		Now:       func() time.Time { return h.now },
	}
	h.taverns = NewTavernService(h.deps)
	h.gameDays = NewGameDayService(h.deps)
	h.feed = NewFeedService(h.deps, h.blobs, h.ids)
	h.files = NewFileService(h.deps, h.blobs, h.ids, 1<<20)
	h.members = NewMemberService(h.deps, jwt.NewTokenManager("test-secret", 1, 24), h.blobs)
	h.notifications = NewNotificationService(h.deps)
}

// member stores a member directly, bypassing registration.
func (h *harness) member(t *testing.T, username string) *model.Member {
	t.Helper()
	h.seq++
	m, err := model.NewMember(username, fmt.Sprintf("%s@tavern.test", username), "$2a$10$notarealhash", model.FormatDiscriminator(h.seq))
	require.NoError(t, err)
	require.NoError(t, h.store.Members().Create(context.Background(), m))
	return m
}

// tavern creates a tavern owned by owner and returns it with the owner's
// membership.
func (h *harness) tavern(t *testing.T, owner *model.Member, name string, capacity int) (*model.Tavern, *model.Membership) {
	t.Helper()
	ctx := context.Background()
	res := h.taverns.CreateTavern(ctx, owner.Email, &CreateTavernRequest{Name: name, Capacity: capacity})
	requireCode(t, http.StatusCreated, res)
	m, err := h.store.Memberships().FindActive(ctx, res.Data.ID, owner.ID)
	require.NoError(t, err)
	return res.Data, m
}

// join adds m to the tavern as a COMMON member through the owner.
func (h *harness) join(t *testing.T, owner *model.Member, tavern *model.Tavern, m *model.Member) *model.Membership {
	t.Helper()
	res := h.taverns.AddUserToTavern(context.Background(), owner.ID, &AddMemberRequest{
		TavernID: tavern.ID, Username: m.Username, Discriminator: m.Discriminator,
	})
	requireCode(t, http.StatusCreated, res)
	return res.Data
}

func requireCode[T any](t *testing.T, code int, res Result[T]) {
	t.Helper()
	require.Equal(t, code, res.Code, "message: %s", res.Message)
	require.Equal(t, code < 300, res.Success)
}

// faultyStore fails selected writes, inside and outside transactions.
type faultyStore struct {
	repository.Store
	failTavernUpdate bool
	failPostCreate   bool
	failItemCreate   bool
	failMemberUpdate bool
}

func (f *faultyStore) Members() repository.IMemberRepository {
	if f.failMemberUpdate {
		return failingMembers{f.Store.Members()}
	}
	return f.Store.Members()
}

func (f *faultyStore) Taverns() repository.ITavernRepository {
	if f.failTavernUpdate {
		return failingTaverns{f.Store.Taverns()}
	}
	return f.Store.Taverns()
}

func (f *faultyStore) Posts() repository.IPostRepository {
	if f.failPostCreate {
		return failingPosts{f.Store.Posts()}
	}
	return f.Store.Posts()
}

func (f *faultyStore) Items() repository.IItemRepository {
	if f.failItemCreate {
		return failingItems{f.Store.Items()}
	}
	return f.Store.Items()
}

func (f *faultyStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return f.Store.Transaction(ctx, func(tx repository.Store) error {
		inner := *f
		inner.Store = tx
		return fn(&inner)
	})
}

type failingTaverns struct{ repository.ITavernRepository }

func (failingTaverns) Update(context.Context, *model.Tavern) error { return errInjected }

type failingMembers struct{ repository.IMemberRepository }

func (failingMembers) Update(context.Context, *model.Member) error { return errInjected }

type failingPosts struct{ repository.IPostRepository }

func (failingPosts) Create(context.Context, *model.Post) error { return errInjected }

type failingItems struct{ repository.IItemRepository }

func (failingItems) Create(context.Context, *model.Item) error { return errInjected }
