// internal/library/store.go
package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gamelibrary/internal/apperr"
	"gamelibrary/internal/database"
	"gamelibrary/internal/journal"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const entrySelect = `
	SELECT le.id, le.user_id, le.game_id, le.purchase_date, le.purchase_price, le.is_installed, le.version,
	       g.title AS game_title, g.cover_image_url AS game_cover_image_url
	FROM library_entries le
	JOIN games g ON g.id = le.game_id
`

// PostgresStore is the ownership ledger backed by library_entries. Every
// mutation appends to the journal in the same transaction.
type PostgresStore struct {
	db      *sqlx.DB
	journal *journal.Journal
}

func NewPostgresStore(db *sqlx.DB, j *journal.Journal) *PostgresStore {
	return &PostgresStore{db: db, journal: j}
}

func (s *PostgresStore) Exists(ctx context.Context, userID, gameID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM library_entries WHERE user_id = $1 AND game_id = $2)`, userID, gameID)
	if err != nil {
		return false, fmt.Errorf("check library entry: %w", err)
	}
	return exists, nil
}

// HasOwners reports whether any entry references gameID.
func (s *PostgresStore) HasOwners(ctx context.Context, gameID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM library_entries WHERE game_id = $1)`, gameID)
	if err != nil {
		return false, fmt.Errorf("check game owners: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Insert(ctx context.Context, entry *Entry) error {
	event, err := journal.NewEvent(journal.EventAcquired, GameAcquiredEvent{
		EntryID:       entry.ID,
		UserID:        entry.UserID,
		GameID:        entry.GameID,
		PurchasePrice: entry.PurchasePrice,
		PurchaseDate:  entry.PurchaseDate,
	})
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO library_entries (id, user_id, game_id, purchase_date, purchase_price, is_installed, version)
			VALUES (:id, :user_id, :game_id, :purchase_date, :purchase_price, :is_installed, :version)
		`, entry)
		if err != nil {
			switch {
			case database.IsUniqueViolation(err):
				return apperr.Conflict("user already owns this game")
			case database.IsForeignKeyViolation(err):
				return apperr.NotFound("game %s not found", entry.GameID)
			}
			return fmt.Errorf("insert library entry: %w", err)
		}
		return s.append(ctx, tx, entry.ID, 0, event)
	})
}

func (s *PostgresStore) UpdateInstalled(ctx context.Context, entry *Entry) error {
	event, err := journal.NewEvent(installEventType(entry.Installed), InstallationChangedEvent{
		EntryID:   entry.ID,
		Installed: entry.Installed,
	})
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE library_entries
			SET is_installed = $1, version = version + 1
			WHERE id = $2 AND version = $3
		`, entry.Installed, entry.ID, entry.Version)
		if err != nil {
			return fmt.Errorf("update library entry: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update library entry: %w", err)
		}
		if n == 0 {
			return apperr.Conflict("library entry %s was modified concurrently", entry.ID)
		}
		if err := s.append(ctx, tx, entry.ID, entry.Version, event); err != nil {
			return err
		}
		entry.Version++
		return nil
	})
}

func (s *PostgresStore) Delete(ctx context.Context, entry *Entry) error {
	event, err := journal.NewEvent(journal.EventRemoved, GameRemovedEvent{
		EntryID: entry.ID,
		UserID:  entry.UserID,
		GameID:  entry.GameID,
	})
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var version int
		err := tx.GetContext(ctx, &version, `DELETE FROM library_entries WHERE id = $1 RETURNING version`, entry.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("library entry not found")
			}
			return fmt.Errorf("delete library entry: %w", err)
		}
		return s.append(ctx, tx, entry.ID, version, event)
	})
}

func (s *PostgresStore) Find(ctx context.Context, userID, gameID uuid.UUID) (*Entry, error) {
	entry := &Entry{}
	err := s.db.GetContext(ctx, entry, entrySelect+`WHERE le.user_id = $1 AND le.game_id = $2`, userID, gameID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("library entry not found")
		}
		return nil, fmt.Errorf("get library entry: %w", err)
	}
	entry.PurchaseDate = entry.PurchaseDate.UTC()
	return entry, nil
}

// ListByUser returns the user's entries, most recent purchase first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Entry, error) {
	return s.selectEntries(ctx, entrySelect+`WHERE le.user_id = $1 ORDER BY le.purchase_date DESC`, userID)
}

func (s *PostgresStore) ListInstalled(ctx context.Context, userID uuid.UUID) ([]*Entry, error) {
	return s.selectEntries(ctx,
		entrySelect+`WHERE le.user_id = $1 AND le.is_installed ORDER BY le.purchase_date DESC`, userID)
}

func (s *PostgresStore) History(ctx context.Context, entryID uuid.UUID) ([]journal.Event, error) {
	return s.journal.Load(ctx, entryID)
}

func (s *PostgresStore) selectEntries(ctx context.Context, query string, args ...any) ([]*Entry, error) {
	entries := []*Entry{}
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list library entries: %w", err)
	}
	for _, e := range entries {
		e.PurchaseDate = e.PurchaseDate.UTC()
	}
	return entries, nil
}

// append journals event, translating a lost version race into a conflict.
func (s *PostgresStore) append(ctx context.Context, tx *sqlx.Tx, entryID uuid.UUID, version int, event journal.Event) error {
	if err := s.journal.Append(ctx, tx, entryID, version, []journal.Event{event}); err != nil {
		if errors.Is(err, journal.ErrConcurrencyConflict) {
			return apperr.Conflict("library entry %s was modified concurrently", entryID)
		}
		return fmt.Errorf("append journal event: %w", err)
	}
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func installEventType(installed bool) string {
	if installed {
		return journal.EventInstalled
	}
	return journal.EventUninstalled
}
