// Package journal is the append-only event log of ownership ledger mutations.
// Events are written inside the caller's transaction so a ledger row and its
// event either both commit or both roll back.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gamelibrary/internal/database"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrInvalidVersion      = errors.New("invalid version number")
)

// Event types recorded for a ledger entry.
const (
	EventAcquired    = "GameAcquired"
	EventInstalled   = "GameInstalled"
	EventUninstalled = "GameUninstalled"
	EventRemoved     = "GameRemoved"
)

// Event is one recorded mutation of a ledger entry.
type Event struct {
	ID        int64                  `json:"id" db:"id"`
	EntryID   uuid.UUID              `json:"entry_id" db:"entry_id"`
	EventType string                 `json:"event_type" db:"event_type"`
	EventData json.RawMessage        `json:"event_data" db:"event_data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" db:"-"`
	Version   int                    `json:"version" db:"version"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}

// NewEvent marshals data into an event of the given type.
func NewEvent(eventType string, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return Event{EventType: eventType, EventData: raw}, nil
}

// Journal reads and appends ledger events.
type Journal struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

func New(db *sqlx.DB) *Journal {
	return &Journal{
		db:     db,
		tracer: otel.Tracer("gamelibrary/journal"),
	}
}

// Append writes events for entryID within tx, after checking that the
// entry's latest version equals expectedVersion.
func (j *Journal) Append(ctx context.Context, tx *sqlx.Tx, entryID uuid.UUID, expectedVersion int, events []Event) error {
	ctx, span := j.tracer.Start(ctx, "journal.append",
		trace.WithAttributes(
			attribute.String("entry.id", entryID.String()),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	if expectedVersion < 0 {
		return ErrInvalidVersion
	}

	currentVersion, err := currentVersion(ctx, tx, entryID)
	if err != nil {
		return err
	}
	if currentVersion != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", currentVersion),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConcurrencyConflict
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO library_events (entry_id, event_type, event_data, metadata, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, event := range events {
		version := expectedVersion + i + 1
		var metadataJSON []byte
		if event.Metadata != nil {
			if metadataJSON, err = json.Marshal(event.Metadata); err != nil {
				return fmt.Errorf("marshal metadata: %w", err)
			}
		}

		var eventID int64
		err = stmt.QueryRowContext(ctx,
			entryID,
			event.EventType,
			[]byte(event.EventData),
			metadataJSON,
			version,
			time.Now().UTC(),
		).Scan(&eventID)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("insert event %d: %w", i, err)
		}

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.id", eventID),
			attribute.Int("event.version", version),
			attribute.String("event.type", event.EventType),
		))
	}
	return nil
}

// Load returns every event recorded for entryID, oldest first.
func (j *Journal) Load(ctx context.Context, entryID uuid.UUID) ([]Event, error) {
	ctx, span := j.tracer.Start(ctx, "journal.load",
		trace.WithAttributes(attribute.String("entry.id", entryID.String())))
	defer span.End()

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, entry_id, event_type, event_data, metadata, version, created_at
		FROM library_events
		WHERE entry_id = $1
		ORDER BY version ASC
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var event Event
		var data, metadataJSON []byte
		if err := rows.Scan(&event.ID, &event.EntryID, &event.EventType, &data, &metadataJSON, &event.Version, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.EventData = data
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of event %d: %w", event.ID, err)
			}
		}
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

// CurrentVersion returns the latest version recorded for entryID, or 0.
func (j *Journal) CurrentVersion(ctx context.Context, entryID uuid.UUID) (int, error) {
	return currentVersion(ctx, j.db, entryID)
}

func currentVersion(ctx context.Context, q sqlx.QueryerContext, entryID uuid.UUID) (int, error) {
	var version int
	err := q.QueryRowxContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM library_events
		WHERE entry_id = $1
	`, entryID).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("query current version: %w", err)
	}
	return version, nil
}
