package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"gamelibrary/internal/apperr"

	"github.com/google/uuid"
)

// memStore models the games table, including the unique index on lower(title).
type memStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]Item
}

func newMemStore() *memStore {
	return &memStore{items: map[uuid.UUID]Item{}}
}

func (m *memStore) Insert(_ context.Context, item *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if strings.EqualFold(existing.Title, item.Title) {
			return apperr.Conflict("game with title %q already exists", item.Title)
		}
	}
	m.items[item.ID] = *item
	return nil
}

func (m *memStore) Update(_ context.Context, item *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; !ok {
		return apperr.NotFound("game %s not found", item.ID)
	}
	for id, existing := range m.items {
		if id != item.ID && strings.EqualFold(existing.Title, item.Title) {
			return apperr.Conflict("game with title %q already exists", item.Title)
		}
	}
	m.items[item.ID] = *item
	return nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return apperr.NotFound("game %s not found", id)
	}
	delete(m.items, id)
	return nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("game %s not found", id)
	}
	return &item, nil
}

func (m *memStore) FindByTitle(_ context.Context, title string) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if strings.EqualFold(item.Title, title) {
			found := item
			return &found, nil
		}
	}
	return nil, apperr.NotFound("game titled %q not found", title)
}

func (m *memStore) List(ctx context.Context) ([]*Item, error) {
	return m.filter(func(*Item) bool { return true }), nil
}

func (m *memStore) ListByGenre(_ context.Context, genre Genre) ([]*Item, error) {
	return m.filter(func(i *Item) bool { return i.Genre == genre }), nil
}

func (m *memStore) filter(keep func(*Item) bool) []*Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*Item{}
	for _, item := range m.items {
		item := item
		if keep(&item) {
			out = append(out, &item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

// fakeMirror records indexed documents and can be told to fail.
type fakeMirror struct {
	mu      sync.Mutex
	docs    map[uuid.UUID]Item
	fail    bool
	indexed int
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{docs: map[uuid.UUID]Item{}}
}

var errMirrorDown = errors.New("meilisearch: connection refused")

func (f *fakeMirror) Index(_ context.Context, item *Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return apperr.Mirror("index", errMirrorDown)
	}
	f.docs[item.ID] = *item
	f.indexed++
	return nil
}

func (f *fakeMirror) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return apperr.Mirror("delete", errMirrorDown)
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeMirror) SearchByTitlePrefix(context.Context, string) ([]*Item, error) { return nil, nil }
func (f *fakeMirror) SearchByGenre(context.Context, string) ([]*Item, error)       { return nil, nil }
func (f *fakeMirror) PriceStatistics(context.Context) (*PriceStats, error)          { return &PriceStats{}, nil }
func (f *fakeMirror) ListAll(context.Context) ([]*Item, error)                      { return nil, nil }

func (f *fakeMirror) doc(id uuid.UUID) (Item, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	return d, ok
}

type fakeOwners map[uuid.UUID]bool

func (f fakeOwners) HasOwners(_ context.Context, id uuid.UUID) (bool, error) {
	return f[id], nil
}
