package stream

import (
	"maps"
	"slices"
	"sync"
)

// Table is the latest-value State for one entity type. Rows are grouped by
// routing key (wallet, asset pair) and identified within the group by id.
// A nil group func keeps a single venue-wide group.
type Table[T any] struct {
	mu    sync.RWMutex
	group func(T) string
	id    func(T) string
	drop  func(T) bool
	rows  map[string]map[string]T
}

func NewTable[T any](group, id func(T) string) *Table[T] {
	return &Table[T]{
		group: group,
		id:    id,
		rows:  make(map[string]map[string]T),
	}
}

// WithDrop deletes a row instead of storing it when fn reports true, e.g.
// an order reaching a terminal status.
func (t *Table[T]) WithDrop(fn func(T) bool) *Table[T] {
	t.drop = fn
	return t
}

// Rows is implemented by update payloads that carry several table rows.
type Rows[T any] interface {
	Rows() []T
}

// Apply stores events whose payload is a T, a []T or a Rows[T] and ignores
// anything else.
func (t *Table[T]) Apply(ev Event) {
	switch v := ev.Payload.(type) {
	case T:
		t.Put(v)
	case []T:
		for _, item := range v {
			t.Put(item)
		}
	case Rows[T]:
		for _, item := range v.Rows() {
			t.Put(item)
		}
	}
}

func (t *Table[T]) Put(v T) {
	g := t.groupOf(v)
	id := t.id(v)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.drop != nil && t.drop(v) {
		if rows := t.rows[g]; rows != nil {
			delete(rows, id)
			if len(rows) == 0 {
				delete(t.rows, g)
			}
		}
		return
	}
	rows := t.rows[g]
	if rows == nil {
		rows = make(map[string]T)
		t.rows[g] = rows
	}
	rows[id] = v
}

// Snapshot always reports a (possibly empty) []T.
func (t *Table[T]) Snapshot(key string) (any, bool) {
	return t.List(key), true
}

// List returns the rows of group sorted by id. An empty group, or a table
// without grouping, lists every row.
func (t *Table[T]) List(group string) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if group != "" && t.group != nil {
		rows := t.rows[group]
		out := make([]T, 0, len(rows))
		for _, id := range slices.Sorted(maps.Keys(rows)) {
			out = append(out, rows[id])
		}
		return out
	}
	out := make([]T, 0)
	for _, g := range slices.Sorted(maps.Keys(t.rows)) {
		rows := t.rows[g]
		for _, id := range slices.Sorted(maps.Keys(rows)) {
			out = append(out, rows[id])
		}
	}
	return out
}

func (t *Table[T]) Get(group, id string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.rows[group][id]
	return v, ok
}

func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, rows := range t.rows {
		n += len(rows)
	}
	return n
}

func (t *Table[T]) groupOf(v T) string {
	if t.group == nil {
		return ""
	}
	return t.group(v)
}
