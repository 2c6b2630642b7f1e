package memory

import (
	"sort"
	"time"
)

type row interface {
	Key() string
	IsDeleted() bool
}

// table holds value copies of rows in insertion order. Callers only ever see
// copies, so mutating a returned row never changes stored state.
type table[T row] struct {
	rows  map[string]T
	order []string
}

func newTable[T row]() *table[T] {
	return &table[T]{rows: make(map[string]T)}
}

func (t *table[T]) clone() *table[T] {
	c := &table[T]{
		rows:  make(map[string]T, len(t.rows)),
		order: append([]string(nil), t.order...),
	}
	for k, v := range t.rows {
		c.rows[k] = v
	}
	return c
}

func (t *table[T]) exists(id string) bool {
	_, ok := t.rows[id]
	return ok
}

func (t *table[T]) put(v T) {
	if !t.exists(v.Key()) {
		t.order = append(t.order, v.Key())
	}
	t.rows[v.Key()] = v
}

// get returns a live (not deleted) row.
func (t *table[T]) get(id string) (T, bool) {
	v, ok := t.rows[id]
	if !ok || v.IsDeleted() {
		var zero T
		return zero, false
	}
	return v, true
}

// find returns the first live row matching fn.
func (t *table[T]) find(fn func(T) bool) (T, bool) {
	for _, id := range t.order {
		if v := t.rows[id]; !v.IsDeleted() && fn(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// filter returns pointers to copies of the live rows matching fn.
func (t *table[T]) filter(fn func(T) bool) []*T {
	var out []*T
	for _, id := range t.order {
		v := t.rows[id]
		if v.IsDeleted() || !fn(v) {
			continue
		}
		c := v
		out = append(out, &c)
	}
	return out
}

func (t *table[T]) count(fn func(T) bool) int64 {
	var n int64
	for _, v := range t.rows {
		if !v.IsDeleted() && fn(v) {
			n++
		}
	}
	return n
}

func sortByTime[T any](rows []*T, at func(*T) time.Time, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			return at(rows[i]).After(at(rows[j]))
		}
		return at(rows[i]).Before(at(rows[j]))
	})
}
