package library

import (
	"context"
	"slices"
	"sync"
)

// Memory is an in-process Source, used by tests and for offline runs.
type Memory struct {
	mu    sync.RWMutex
	items map[string]Item
	order []string
}

// NewMemory returns a Memory source seeded with items.
func NewMemory(items ...Item) *Memory {
	m := &Memory{items: make(map[string]Item, len(items))}
	for _, item := range items {
		m.Put(item)
	}
	return m
}

// Put adds or replaces an item.
func (m *Memory) Put(item Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; !ok {
		m.order = append(m.order, item.ID)
	}
	m.items[item.ID] = item
}

// Delete removes an item.
func (m *Memory) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return
	}
	delete(m.items, id)
	m.order = slices.DeleteFunc(m.order, func(v string) bool { return v == id })
}

func (m *Memory) Get(_ context.Context, id string) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return item, nil
}

func (m *Memory) List(_ context.Context, kinds ...Kind) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Item, 0, len(m.order))
	for _, id := range m.order {
		item := m.items[id]
		if len(kinds) > 0 && !slices.Contains(kinds, item.Kind) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}
