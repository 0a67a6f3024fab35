// internal/catalog/service.go
package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service defines the interface for the catalog service.
type Service interface {
	Create(ctx context.Context, in CreateInput) (*Item, error)
	Get(ctx context.Context, id uuid.UUID) (*Item, error)
	List(ctx context.Context) ([]*Item, error)
	ListByGenre(ctx context.Context, genre Genre) ([]*Item, error)
	Update(ctx context.Context, id uuid.UUID, in UpdateInput) error
	Delete(ctx context.Context, id uuid.UUID) error
	Reindex(ctx context.Context) (int, error)
}

type CreateInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	ReleaseDate time.Time `json:"release_date"`
	Genre       string    `json:"genre"`
	CoverURL    string    `json:"cover_image_url"`
}

type UpdateInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Genre       string  `json:"genre"`
	CoverURL    string  `json:"cover_image_url"`
}

// Store is the authoritative item table. Implementations must enforce
// case-insensitive title uniqueness and report violations as conflicts.
type Store interface {
	Insert(ctx context.Context, item *Item) error
	Update(ctx context.Context, item *Item) error
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*Item, error)
	FindByTitle(ctx context.Context, title string) (*Item, error)
	List(ctx context.Context) ([]*Item, error)
	ListByGenre(ctx context.Context, genre Genre) ([]*Item, error)
}

// Mirror is the best-effort search index. Errors it returns are never
// allowed to undo a committed catalog write.
type Mirror interface {
	Index(ctx context.Context, item *Item) error
	Delete(ctx context.Context, id uuid.UUID) error
	SearchByTitlePrefix(ctx context.Context, text string) ([]*Item, error)
	SearchByGenre(ctx context.Context, genre string) ([]*Item, error)
	PriceStatistics(ctx context.Context) (*PriceStats, error)
	ListAll(ctx context.Context) ([]*Item, error)
}

// OwnershipChecker reports whether any ledger record still references an item.
type OwnershipChecker interface {
	HasOwners(ctx context.Context, itemID uuid.UUID) (bool, error)
}

// Options configures a Service at construction time.
type Options struct {
	MirrorEnabled bool
}
