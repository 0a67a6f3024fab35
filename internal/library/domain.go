// internal/library/domain.go
package library

import (
	"time"

	"gamelibrary/internal/catalog"

	"github.com/google/uuid"
)

// Entry records that a user acquired a game. PurchasePrice is the game's
// price at acquisition and never follows later catalog price changes.
type Entry struct {
	ID            uuid.UUID `json:"id" db:"id"`
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	GameID        uuid.UUID `json:"game_id" db:"game_id"`
	PurchaseDate  time.Time `json:"purchase_date" db:"purchase_date"`
	PurchasePrice float64   `json:"purchase_price" db:"purchase_price"`
	Installed     bool      `json:"is_installed" db:"is_installed"`
	Version       int       `json:"version" db:"version"`

	// Display fields joined from the catalog.
	GameTitle    string `json:"game_title" db:"game_title"`
	GameCoverURL string `json:"game_cover_image_url" db:"game_cover_image_url"`
}

// NewEntry snapshots game's current price for userID.
func NewEntry(userID uuid.UUID, game *catalog.Item, now time.Time) *Entry {
	return &Entry{
		ID:            uuid.New(),
		UserID:        userID,
		GameID:        game.ID,
		PurchaseDate:  now.UTC().Truncate(time.Microsecond),
		PurchasePrice: game.Price,
		Version:       1,
		GameTitle:     game.Title,
		GameCoverURL:  game.CoverURL,
	}
}

// SetInstalled reports whether the flag actually changed.
func (e *Entry) SetInstalled(installed bool) bool {
	if e.Installed == installed {
		return false
	}
	e.Installed = installed
	return true
}

// GameAcquiredEvent is journaled when an entry is created.
type GameAcquiredEvent struct {
	EntryID       uuid.UUID `json:"entry_id"`
	UserID        uuid.UUID `json:"user_id"`
	GameID        uuid.UUID `json:"game_id"`
	PurchasePrice float64   `json:"purchase_price"`
	PurchaseDate  time.Time `json:"purchase_date"`
}

// InstallationChangedEvent is journaled when the installed flag flips.
type InstallationChangedEvent struct {
	EntryID   uuid.UUID `json:"entry_id"`
	Installed bool      `json:"installed"`
}

// GameRemovedEvent is journaled when an entry is deleted.
type GameRemovedEvent struct {
	EntryID uuid.UUID `json:"entry_id"`
	UserID  uuid.UUID `json:"user_id"`
	GameID  uuid.UUID `json:"game_id"`
}
