// internal/catalog/store.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gamelibrary/internal/apperr"
	"gamelibrary/internal/database"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const itemColumns = `id, title, description, price, release_date, genre, cover_image_url`

// PostgresStore is the Store backed by the games table.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, item *Item) error {
	query := `
		INSERT INTO games (` + itemColumns + `)
		VALUES (:id, :title, :description, :price, :release_date, :genre, :cover_image_url)
	`
	if _, err := s.db.NamedExecContext(ctx, query, item); err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("game with title %q already exists", item.Title)
		}
		if verr := fieldOutOfRange(err); verr != nil {
			return verr
		}
		return fmt.Errorf("insert game: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, item *Item) error {
	query := `
		UPDATE games
		SET title = :title, description = :description, price = :price,
		    genre = :genre, cover_image_url = :cover_image_url, updated_at = NOW()
		WHERE id = :id
	`
	res, err := s.db.NamedExecContext(ctx, query, item)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("game with title %q already exists", item.Title)
		}
		if verr := fieldOutOfRange(err); verr != nil {
			return verr
		}
		return fmt.Errorf("update game: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("game %s not found", item.ID)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperr.Conflict("game %s is owned by users and cannot be deleted", id)
		}
		return fmt.Errorf("delete game: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("game %s not found", id)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	item := &Item{}
	err := s.db.GetContext(ctx, item, `SELECT `+itemColumns+` FROM games WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("game %s not found", id)
		}
		return nil, fmt.Errorf("get game: %w", err)
	}
	item.ReleaseDate = item.ReleaseDate.UTC()
	return item, nil
}

// FindByTitle looks a title up case-insensitively.
func (s *PostgresStore) FindByTitle(ctx context.Context, title string) (*Item, error) {
	item := &Item{}
	err := s.db.GetContext(ctx, item, `SELECT `+itemColumns+` FROM games WHERE lower(title) = lower($1)`, title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("game titled %q not found", title)
		}
		return nil, fmt.Errorf("find game by title: %w", err)
	}
	item.ReleaseDate = item.ReleaseDate.UTC()
	return item, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Item, error) {
	return s.selectItems(ctx, `SELECT `+itemColumns+` FROM games ORDER BY title ASC`)
}

func (s *PostgresStore) ListByGenre(ctx context.Context, genre Genre) ([]*Item, error) {
	return s.selectItems(ctx, `SELECT `+itemColumns+` FROM games WHERE genre = $1 ORDER BY title ASC`, genre)
}

func (s *PostgresStore) selectItems(ctx context.Context, query string, args ...any) ([]*Item, error) {
	items := []*Item{}
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	for _, item := range items {
		item.ReleaseDate = item.ReleaseDate.UTC()
	}
	return items, nil
}

// fieldOutOfRange maps column width and precision violations to validation errors.
func fieldOutOfRange(err error) error {
	switch {
	case database.IsStringTooLong(err):
		return apperr.Validation("a text field exceeds its maximum length")
	case database.IsNumericOverflow(err):
		return apperr.Validation("price is out of range")
	}
	return nil
}
