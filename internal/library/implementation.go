// internal/library/implementation.go
package library

import (
	"context"
	"fmt"
	"time"

	"gamelibrary/internal/apperr"
	"gamelibrary/internal/journal"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxInstallAttempts bounds retries when an install toggle loses a version race.
const maxInstallAttempts = 3

// service implements the Service interface.
type service struct {
	store    Store
	games    Games
	identity Identity
	log      *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewService creates a new ownership service instance.
func NewService(store Store, games Games, identity Identity, log *zap.Logger) Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &service{
		store:    store,
		games:    games,
		identity: identity,
		log:      log,
		tracer:   otel.Tracer("gamelibrary/library"),
		now:      time.Now,
	}
}

// Purchase orchestrates acquiring a game. Every precondition is checked again
// on each call, so retrying after a lost response yields a conflict rather
// than a second entry.
func (s *service) Purchase(ctx context.Context, userID, gameID uuid.UUID) (*Entry, error) {
	ctx, span := s.tracer.Start(ctx, "library.purchase",
		trace.WithAttributes(
			attribute.String("user.id", userID.String()),
			attribute.String("game.id", gameID.String()),
		),
	)
	defer span.End()

	// Step 1: Confirm the user with the identity service
	user, err := s.identity.GetUser(ctx, userID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.NotFound("user %s not found", userID)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("user.permission", user.Permission))

	// Step 2: Confirm the game exists
	game, err := s.games.Get(ctx, gameID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.NotFound("game %s not found", gameID)
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	// Step 3: Fast-path ownership check; the ledger's unique constraint decides races
	owned, err := s.store.Exists(ctx, userID, game.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check ownership: %w", err)
	}
	if owned {
		return nil, apperr.Conflict("user already owns this game")
	}

	// Step 4: Persist with the price snapshot
	entry := NewEntry(userID, game, s.now())
	if err := s.store.Insert(ctx, entry); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("entry.id", entry.ID.String()))

	// Step 5: Read back what was committed
	stored, err := s.store.Find(ctx, userID, game.ID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			s.log.Error("ledger entry missing after insert",
				zap.String("entry_id", entry.ID.String()),
				zap.String("user_id", userID.String()),
				zap.String("game_id", gameID.String()),
			)
			return nil, apperr.Integrity("an error occurred when linking game %s to user %s", gameID, userID)
		}
		return nil, fmt.Errorf("failed to read back entry: %w", err)
	}
	return stored, nil
}

func (s *service) GetLibrary(ctx context.Context, userID uuid.UUID) ([]*Entry, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *service) GetInstalled(ctx context.Context, userID uuid.UUID) ([]*Entry, error) {
	return s.store.ListInstalled(ctx, userID)
}

func (s *service) GetEntry(ctx context.Context, userID, gameID uuid.UUID) (*Entry, error) {
	return s.store.Find(ctx, userID, gameID)
}

func (s *service) MarkInstalled(ctx context.Context, userID, gameID uuid.UUID) error {
	return s.setInstalled(ctx, userID, gameID, true)
}

func (s *service) MarkUninstalled(ctx context.Context, userID, gameID uuid.UUID) error {
	return s.setInstalled(ctx, userID, gameID, false)
}

// setInstalled is idempotent: an entry already in the wanted state is left untouched.
func (s *service) setInstalled(ctx context.Context, userID, gameID uuid.UUID, installed bool) error {
	ctx, span := s.tracer.Start(ctx, "library.set_installed",
		trace.WithAttributes(
			attribute.String("user.id", userID.String()),
			attribute.String("game.id", gameID.String()),
			attribute.Bool("installed", installed),
		),
	)
	defer span.End()

	var err error
	for attempt := 1; attempt <= maxInstallAttempts; attempt++ {
		var entry *Entry
		entry, err = s.store.Find(ctx, userID, gameID)
		if err != nil {
			return err
		}
		if !entry.SetInstalled(installed) {
			return nil
		}
		err = s.store.UpdateInstalled(ctx, entry)
		if err == nil || apperr.KindOf(err) != apperr.KindConflict {
			return err
		}
		span.AddEvent("version.conflict", trace.WithAttributes(attribute.Int("attempt", attempt)))
	}
	return err
}

func (s *service) Remove(ctx context.Context, userID, gameID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "library.remove",
		trace.WithAttributes(
			attribute.String("user.id", userID.String()),
			attribute.String("game.id", gameID.String()),
		),
	)
	defer span.End()

	entry, err := s.store.Find(ctx, userID, gameID)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, entry)
}

// History returns the journal of the user's current entry for gameID.
func (s *service) History(ctx context.Context, userID, gameID uuid.UUID) ([]journal.Event, error) {
	entry, err := s.store.Find(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}
	return s.store.History(ctx, entry.ID)
}
