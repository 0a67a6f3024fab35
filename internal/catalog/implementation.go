// internal/catalog/implementation.go
package catalog

import (
	"context"
	"fmt"

	"gamelibrary/internal/apperr"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// service implements the Service interface.
type service struct {
	store          Store
	mirror         Mirror
	owners         OwnershipChecker
	opts           Options
	log            *zap.Logger
	tracer         trace.Tracer
	mirrorFailures metric.Int64Counter
}

// NewService creates a new catalog service instance. mirror may be nil when
// the search mirror is not deployed; it is only used when opts.MirrorEnabled.
func NewService(store Store, mirror Mirror, owners OwnershipChecker, opts Options, log *zap.Logger) Service {
	if log == nil {
		log = zap.NewNop()
	}
	counter, err := otel.Meter("gamelibrary/catalog").Int64Counter("catalog.mirror.failures",
		metric.WithDescription("search mirror operations that failed after a committed catalog write"))
	if err != nil {
		log.Warn("mirror failure counter unavailable", zap.Error(err))
	}
	return &service{
		store:          store,
		mirror:         mirror,
		owners:         owners,
		opts:           opts,
		log:            log,
		tracer:         otel.Tracer("gamelibrary/catalog"),
		mirrorFailures: counter,
	}
}

// Create validates and persists a new item, then mirrors it.
func (s *service) Create(ctx context.Context, in CreateInput) (*Item, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.create")
	defer span.End()

	genre, err := ParseGenre(in.Genre)
	if err != nil {
		return nil, err
	}
	item, err := NewItem(in.Title, in.Description, in.Price, in.ReleaseDate, genre, in.CoverURL)
	if err != nil {
		return nil, err
	}

	// The store's unique index is the final arbiter; this only spares a round trip.
	if err := s.ensureTitleFree(ctx, item.Title, uuid.Nil); err != nil {
		return nil, err
	}

	if err := s.store.Insert(ctx, item); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("item.id", item.ID.String()))

	s.mirrorIndex(ctx, item)
	return item, nil
}

// Get retrieves an item by its ID.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	return s.store.Get(ctx, id)
}

func (s *service) List(ctx context.Context) ([]*Item, error) {
	return s.store.List(ctx)
}

func (s *service) ListByGenre(ctx context.Context, genre Genre) ([]*Item, error) {
	g, err := ParseGenre(string(genre))
	if err != nil {
		return nil, err
	}
	return s.store.ListByGenre(ctx, g)
}

// Update re-validates every mutable field and replaces the mirrored document.
func (s *service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) error {
	ctx, span := s.tracer.Start(ctx, "catalog.update",
		trace.WithAttributes(attribute.String("item.id", id.String())))
	defer span.End()

	item, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	genre, err := ParseGenre(in.Genre)
	if err != nil {
		return err
	}
	if err := item.SetTitle(in.Title); err != nil {
		return err
	}
	if err := item.SetDescription(in.Description); err != nil {
		return err
	}
	if err := item.SetPrice(in.Price); err != nil {
		return err
	}
	if err := item.SetGenre(genre); err != nil {
		return err
	}
	if err := item.SetCoverURL(in.CoverURL); err != nil {
		return err
	}

	if err := s.ensureTitleFree(ctx, item.Title, item.ID); err != nil {
		return err
	}

	if err := s.store.Update(ctx, item); err != nil {
		return err
	}

	s.mirrorIndex(ctx, item)
	return nil
}

// Delete removes an item that no user owns.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "catalog.delete",
		trace.WithAttributes(attribute.String("item.id", id.String())))
	defer span.End()

	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}

	if s.owners != nil {
		owned, err := s.owners.HasOwners(ctx, id)
		if err != nil {
			return fmt.Errorf("check item ownership: %w", err)
		}
		if owned {
			return apperr.Conflict("item %s is owned by users and cannot be deleted", id)
		}
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	if s.mirrorActive() {
		if err := s.mirror.Delete(ctx, id); err != nil {
			s.reportMirrorFailure(ctx, "delete", id, err)
		}
	}
	return nil
}

// Reindex pushes every catalog item into the mirror and returns how many were indexed.
func (s *service) Reindex(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.reindex")
	defer span.End()

	if s.mirror == nil {
		return 0, apperr.Unavailable("search mirror is not configured", nil)
	}

	items, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	for n, item := range items {
		if err := s.mirror.Index(ctx, item); err != nil {
			return n, err
		}
	}
	span.SetAttributes(attribute.Int("items.indexed", len(items)))
	return len(items), nil
}

func (s *service) ensureTitleFree(ctx context.Context, title string, self uuid.UUID) error {
	existing, err := s.store.FindByTitle(ctx, title)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil
		}
		return err
	}
	if existing.ID != self {
		return apperr.Conflict("game with title %q already exists", title)
	}
	return nil
}

func (s *service) mirrorActive() bool {
	return s.opts.MirrorEnabled && s.mirror != nil
}

func (s *service) mirrorIndex(ctx context.Context, item *Item) {
	if !s.mirrorActive() {
		return
	}
	if err := s.mirror.Index(ctx, item); err != nil {
		s.reportMirrorFailure(ctx, "index", item.ID, err)
	}
}

// reportMirrorFailure swallows a mirror error after the catalog write committed.
func (s *service) reportMirrorFailure(ctx context.Context, op string, id uuid.UUID, err error) {
	trace.SpanFromContext(ctx).AddEvent("mirror.failed", trace.WithAttributes(
		attribute.String("op", op),
		attribute.String("error", err.Error()),
	))
	if s.mirrorFailures != nil {
		s.mirrorFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
	s.log.Warn("search mirror out of sync",
		zap.String("op", op),
		zap.String("item_id", id.String()),
		zap.Error(err),
	)
}
