package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/Tavern/internal/pkg/kafka"
)

type stubActivity struct {
	events []kafka.Event
	err    error
	limit  int64
}

func (s *stubActivity) Recent(_ context.Context, _ string, limit int64) ([]kafka.Event, error) {
	s.limit = limit
	return s.events, s.err
}

func TestActivityService_Recent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dm := h.member(t, "butterbur")
	tavern, _ := h.tavern(t, dm, "Prancing Pony", 3)
	outsider := h.member(t, "ferny")

	reader := &stubActivity{events: []kafka.Event{{Type: kafka.EventTavernCreated, TavernID: tavern.ID}}}
	svc := NewActivityService(h.deps, reader)

	res := svc.Recent(ctx, dm.ID, tavern.ID, 10)
	requireCode(t, http.StatusOK, res)
	require.Len(t, res.Data, 1)
	assert.Equal(t, int64(10), reader.limit)

	requireCode(t, http.StatusForbidden, svc.Recent(ctx, outsider.ID, tavern.ID, 10))
	requireCode(t, http.StatusNotFound, svc.Recent(ctx, dm.ID, "missing", 10))

	reader.err = errors.New("redis down")
	requireCode(t, http.StatusInternalServerError, svc.Recent(ctx, dm.ID, tavern.ID, 10))
}
