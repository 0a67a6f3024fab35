// internal/library/service.go
package library

import (
	"context"

	"gamelibrary/internal/catalog"
	"gamelibrary/internal/clients"
	"gamelibrary/internal/journal"

	"github.com/google/uuid"
)

// Service defines the interface for the ownership service.
type Service interface {
	Purchase(ctx context.Context, userID, gameID uuid.UUID) (*Entry, error)
	GetLibrary(ctx context.Context, userID uuid.UUID) ([]*Entry, error)
	GetInstalled(ctx context.Context, userID uuid.UUID) ([]*Entry, error)
	GetEntry(ctx context.Context, userID, gameID uuid.UUID) (*Entry, error)
	MarkInstalled(ctx context.Context, userID, gameID uuid.UUID) error
	MarkUninstalled(ctx context.Context, userID, gameID uuid.UUID) error
	Remove(ctx context.Context, userID, gameID uuid.UUID) error
	History(ctx context.Context, userID, gameID uuid.UUID) ([]journal.Event, error)
}

// Store is the ownership ledger. Implementations must enforce one entry per
// (user, game) pair and report a violation as a conflict.
type Store interface {
	Exists(ctx context.Context, userID, gameID uuid.UUID) (bool, error)
	Insert(ctx context.Context, entry *Entry) error
	// UpdateInstalled persists entry.Installed if the stored version still
	// equals entry.Version, then bumps entry.Version.
	UpdateInstalled(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, entry *Entry) error
	Find(ctx context.Context, userID, gameID uuid.UUID) (*Entry, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Entry, error)
	ListInstalled(ctx context.Context, userID uuid.UUID) ([]*Entry, error)
	History(ctx context.Context, entryID uuid.UUID) ([]journal.Event, error)
}

// Identity resolves users against the external identity service.
type Identity interface {
	GetUser(ctx context.Context, id uuid.UUID) (*clients.User, error)
}

// Games is the read side of the catalog store the ledger needs.
type Games interface {
	Get(ctx context.Context, id uuid.UUID) (*catalog.Item, error)
}
