package library

import (
	"context"
	"sort"
	"sync"

	"gamelibrary/internal/apperr"
	"gamelibrary/internal/catalog"
	"gamelibrary/internal/clients"
	"gamelibrary/internal/journal"

	"github.com/google/uuid"
)

type pair struct{ user, game uuid.UUID }

// memLedger models library_entries including the unique (user_id, game_id)
// constraint and the version column.
type memLedger struct {
	mu      sync.Mutex
	entries map[pair]Entry
	events  map[uuid.UUID][]journal.Event
	// dropInserts simulates a write that reports success but is lost.
	dropInserts bool
}

func newMemLedger() *memLedger {
	return &memLedger{entries: map[pair]Entry{}, events: map[uuid.UUID][]journal.Event{}}
}

func (m *memLedger) Exists(_ context.Context, userID, gameID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[pair{userID, gameID}]
	return ok, nil
}

func (m *memLedger) Insert(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pair{entry.UserID, entry.GameID}
	if _, ok := m.entries[key]; ok {
		return apperr.Conflict("user already owns this game")
	}
	if m.dropInserts {
		return nil
	}
	m.entries[key] = *entry
	m.record(entry.ID, journal.EventAcquired)
	return nil
}

func (m *memLedger) UpdateInstalled(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pair{entry.UserID, entry.GameID}
	stored, ok := m.entries[key]
	if !ok || stored.ID != entry.ID || stored.Version != entry.Version {
		return apperr.Conflict("library entry %s was modified concurrently", entry.ID)
	}
	stored.Installed = entry.Installed
	stored.Version++
	m.entries[key] = stored
	entry.Version = stored.Version
	m.record(entry.ID, installEventType(entry.Installed))
	return nil
}

func (m *memLedger) Delete(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pair{entry.UserID, entry.GameID}
	if stored, ok := m.entries[key]; !ok || stored.ID != entry.ID {
		return apperr.NotFound("library entry not found")
	}
	delete(m.entries, key)
	m.record(entry.ID, journal.EventRemoved)
	return nil
}

func (m *memLedger) Find(_ context.Context, userID, gameID uuid.UUID) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[pair{userID, gameID}]
	if !ok {
		return nil, apperr.NotFound("library entry not found")
	}
	return &e, nil
}

func (m *memLedger) ListByUser(_ context.Context, userID uuid.UUID) ([]*Entry, error) {
	return m.list(func(e *Entry) bool { return e.UserID == userID }), nil
}

func (m *memLedger) ListInstalled(_ context.Context, userID uuid.UUID) ([]*Entry, error) {
	return m.list(func(e *Entry) bool { return e.UserID == userID && e.Installed }), nil
}

func (m *memLedger) History(_ context.Context, entryID uuid.UUID) ([]journal.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]journal.Event{}, m.events[entryID]...), nil
}

func (m *memLedger) list(keep func(*Entry) bool) []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*Entry{}
	for _, e := range m.entries {
		e := e
		if keep(&e) {
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchaseDate.After(out[j].PurchaseDate) })
	return out
}

func (m *memLedger) rowsFor(userID, gameID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[pair{userID, gameID}]; ok {
		return 1
	}
	return 0
}

func (m *memLedger) record(entryID uuid.UUID, eventType string) {
	evs := m.events[entryID]
	m.events[entryID] = append(evs, journal.Event{EntryID: entryID, EventType: eventType, Version: len(evs) + 1})
}

// fakeGames is a mutable stand-in for the catalog store.
type fakeGames struct {
	mu    sync.Mutex
	items map[uuid.UUID]catalog.Item
}

func newFakeGames(items ...*catalog.Item) *fakeGames {
	g := &fakeGames{items: map[uuid.UUID]catalog.Item{}}
	for _, it := range items {
		g.items[it.ID] = *it
	}
	return g
}

func (g *fakeGames) Get(_ context.Context, id uuid.UUID) (*catalog.Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	it, ok := g.items[id]
	if !ok {
		return nil, apperr.NotFound("game %s not found", id)
	}
	return &it, nil
}

func (g *fakeGames) setPrice(id uuid.UUID, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	it := g.items[id]
	it.Price = price
	g.items[id] = it
}

// fakeIdentity knows a fixed set of users.
type fakeIdentity struct {
	users map[uuid.UUID]clients.User
	err   error
}

func newFakeIdentity(ids ...uuid.UUID) *fakeIdentity {
	f := &fakeIdentity{users: map[uuid.UUID]clients.User{}}
	for _, id := range ids {
		f.users[id] = clients.User{ID: id, Name: "player", Email: "player@example.com", Permission: "User"}
	}
	return f
}

func (f *fakeIdentity) GetUser(_ context.Context, id uuid.UUID) (*clients.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperr.NotFound("user %s not found", id)
	}
	return &u, nil
}
