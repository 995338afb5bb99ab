package ordering

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// memStore keeps items in memory and applies a WithinScope call only when fn
// succeeds.
type memStore struct {
	mu       sync.Mutex
	items    map[string]Item
	writeErr error
	writes   int
}

func newMemStore(items ...Item) *memStore {
	s := &memStore{items: make(map[string]Item, len(items))}
	for _, item := range items {
		s.items[item.ID] = item
	}
	return s
}

func (s *memStore) WithinScope(ctx context.Context, scope string, fn func(View) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[string]Item, len(s.items))
	for id, item := range s.items {
		snapshot[id] = item
	}
	view := &memView{items: snapshot, writeErr: s.writeErr}
	if err := fn(view); err != nil {
		return err
	}
	s.items = snapshot
	s.writes += view.writes
	return nil
}

func (s *memStore) sequence(scope string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := scopeItems(s.items, scope)
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func (s *memStore) item(id string) Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[id]
}

type memView struct {
	items    map[string]Item
	writeErr error
	writes   int
}

func scopeItems(items map[string]Item, scope string) []Item {
	var out []Item
	for _, item := range items {
		if item.Scope == scope {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order == out[j].Order {
			return out[i].ID < out[j].ID
		}
		return out[i].Order < out[j].Order
	})
	return out
}

func excluded(id string, exclude []string) bool {
	for _, e := range exclude {
		if e == id {
			return true
		}
	}
	return false
}

func (v *memView) Resolve(_ context.Context, ids []string) ([]Item, error) {
	var out []Item
	for _, id := range ids {
		if item, ok := v.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (v *memView) Get(_ context.Context, id string) (Item, bool, error) {
	item, ok := v.items[id]
	return item, ok, nil
}

func (v *memView) MaxOrder(_ context.Context, scope string, exclude []string) (Order, bool, error) {
	var max Order
	found := false
	for _, item := range scopeItems(v.items, scope) {
		if excluded(item.ID, exclude) {
			continue
		}
		if !found || item.Order > max {
			max = item.Order
			found = true
		}
	}
	return max, found, nil
}

func (v *memView) Neighbors(_ context.Context, scope string, order Order, exclude []string) (Neighbors, error) {
	var n Neighbors
	for _, item := range scopeItems(v.items, scope) {
		if excluded(item.ID, exclude) {
			continue
		}
		item := item
		if item.Order < order {
			n.Prev = &item
		}
		if item.Order > order && n.Next == nil {
			n.Next = &item
		}
	}
	return n, nil
}

func (v *memView) Following(_ context.Context, scope string, order Order, exclude []string) ([]Item, error) {
	var out []Item
	for _, item := range scopeItems(v.items, scope) {
		if excluded(item.ID, exclude) || item.Order <= order {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (v *memView) List(_ context.Context, scope string) ([]Item, error) {
	return scopeItems(v.items, scope), nil
}

func (v *memView) Write(_ context.Context, placements []Placement) error {
	if v.writeErr != nil {
		return v.writeErr
	}
	for _, p := range placements {
		item, ok := v.items[p.ID]
		if !ok {
			return errors.New("write unknown item " + p.ID)
		}
		item.Scope = p.Scope
		item.Order = p.Order
		v.items[p.ID] = item
		v.writes++
	}
	return nil
}

type recordingNotifier struct {
	mu           sync.Mutex
	reordered    []ReorderedEvent
	scopeChanges []ScopeChangedEvent
}

func (n *recordingNotifier) ItemsReordered(_ context.Context, event ReorderedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reordered = append(n.reordered, event)
}

func (n *recordingNotifier) ItemScopeChanged(_ context.Context, event ScopeChangedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scopeChanges = append(n.scopeChanges, event)
}

type recordingLocker struct {
	mu       sync.Mutex
	keys     []string
	released int
	err      error
}

func (l *recordingLocker) Lock(_ context.Context, key string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}
