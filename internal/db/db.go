package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/photocal/photocal-server/internal/calsync"
	"github.com/photocal/photocal-server/internal/models"
)

const schema = `
-- Calendar events extracted from photos or pulled from remote calendars
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT,
    start_at TEXT NOT NULL,
    end_at TEXT,
    is_all_day INTEGER NOT NULL DEFAULT 0,
    timezone TEXT NOT NULL,
    location TEXT,
    category TEXT NOT NULL,
    rrule TEXT,                     -- rendered RRULE, empty for one-off events
    confidence REAL,
    extraction_method TEXT,
    original_text TEXT,
    external_id TEXT,               -- remote calendar counterpart
    synced_at TEXT,
    deleted INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    modified_at TEXT NOT NULL
);

-- Per-user sync bookkeeping
CREATE TABLE IF NOT EXISTS sync_state (
    user_id TEXT PRIMARY KEY,
    last_sync TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Extraction history for the usage endpoint and cost auditing
CREATE TABLE IF NOT EXISTS extraction_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    strategy TEXT NOT NULL,
    model TEXT,
    total_tokens INTEGER NOT NULL,
    cost REAL NOT NULL,
    event_count INTEGER NOT NULL,
    from_cache INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_user ON events(user_id, deleted);
CREATE INDEX IF NOT EXISTS idx_events_external ON events(user_id, external_id);
CREATE INDEX IF NOT EXISTS idx_events_start ON events(user_id, start_at);
CREATE INDEX IF NOT EXISTS idx_extraction_user ON extraction_log(user_id, created_at);
`

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(schema)
	if err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Ping() error {
	return db.conn.Ping()
}

// CreateEvent inserts an event. A missing ID gets a fresh UUID; the
// recurrence rule is stored in its rendered RRULE form.
func (db *DB) CreateEvent(ctx context.Context, userID string, ev calsync.LocalEvent) (string, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	rr, err := calsync.RenderRRule(ev.Recurrence)
	if err != nil {
		return "", fmt.Errorf("rendering recurrence: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	modified := ev.ModifiedAt
	if modified.IsZero() {
		modified = time.Now().UTC()
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO events (id, user_id, title, description, start_at, end_at, is_all_day,
			timezone, location, category, rrule, external_id, synced_at, deleted, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, userID, ev.Title, ev.Description,
		ev.Start.UTC().Format(time.RFC3339), formatTimePtr(ev.End), boolToInt(ev.IsAllDay),
		ev.Timezone, ev.Location, string(ev.Category), rr, ev.ExternalID,
		formatTimePtr(ev.SyncedAt), boolToInt(ev.Deleted), now, modified.UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("inserting event: %w", err)
	}
	return ev.ID, nil
}

// GetEvent returns one event, or nil when it does not exist.
func (db *DB) GetEvent(ctx context.Context, userID, id string) (*calsync.LocalEvent, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE user_id = ? AND id = ?
	`, userID, id)

	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// ListEvents returns every event for a user, soft-deleted rows
// included. The reconciler needs the deleted rows to propagate them.
func (db *DB) ListEvents(ctx context.Context, userID string) ([]calsync.LocalEvent, error) {
	return db.listEvents(ctx, userID, true)
}

// ListActiveEvents returns only the live events, ordered by start time.
func (db *DB) ListActiveEvents(ctx context.Context, userID string) ([]calsync.LocalEvent, error) {
	return db.listEvents(ctx, userID, false)
}

func (db *DB) listEvents(ctx context.Context, userID string, includeDeleted bool) ([]calsync.LocalEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE user_id = ?`
	if !includeDeleted {
		query += ` AND deleted = 0`
	}
	query += ` ORDER BY start_at ASC`

	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []calsync.LocalEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// UpdateEvent overwrites an event's mutable fields.
func (db *DB) UpdateEvent(ctx context.Context, userID string, ev calsync.LocalEvent) error {
	rr, err := calsync.RenderRRule(ev.Recurrence)
	if err != nil {
		return fmt.Errorf("rendering recurrence: %w", err)
	}
	modified := ev.ModifiedAt
	if modified.IsZero() {
		modified = time.Now().UTC()
	}

	result, err := db.conn.ExecContext(ctx, `
		UPDATE events
		SET title = ?, description = ?, start_at = ?, end_at = ?, is_all_day = ?,
			timezone = ?, location = ?, category = ?, rrule = ?, external_id = ?,
			synced_at = ?, deleted = ?, modified_at = ?
		WHERE user_id = ? AND id = ?
	`, ev.Title, ev.Description, ev.Start.UTC().Format(time.RFC3339), formatTimePtr(ev.End),
		boolToInt(ev.IsAllDay), ev.Timezone, ev.Location, string(ev.Category), rr,
		ev.ExternalID, formatTimePtr(ev.SyncedAt), boolToInt(ev.Deleted),
		modified.UTC().Format(time.RFC3339), userID, ev.ID)
	if err != nil {
		return fmt.Errorf("updating event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("event %s not found", ev.ID)
	}
	return nil
}

// SoftDeleteEvent marks an event deleted so the next sync run can
// propagate the deletion before the row is purged.
func (db *DB) SoftDeleteEvent(ctx context.Context, userID, id string) (bool, error) {
	result, err := db.conn.ExecContext(ctx, `
		UPDATE events
		SET deleted = 1, modified_at = ?
		WHERE user_id = ? AND id = ? AND deleted = 0
	`, time.Now().UTC().Format(time.RFC3339), userID, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// DeleteEvent removes the row outright.
func (db *DB) DeleteEvent(ctx context.Context, userID, id string) error {
	_, err := db.conn.ExecContext(ctx, `
		DELETE FROM events WHERE user_id = ? AND id = ?
	`, userID, id)
	return err
}

// LastSync returns the user's last successful sync point; zero time for
// a user who has never synced.
func (db *DB) LastSync(ctx context.Context, userID string) (time.Time, error) {
	var lastSyncStr string
	err := db.conn.QueryRowContext(ctx, `
		SELECT last_sync FROM sync_state WHERE user_id = ?
	`, userID).Scan(&lastSyncStr)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, lastSyncStr)
}

// SetLastSync records the user's sync point.
func (db *DB) SetLastSync(ctx context.Context, userID string, at time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sync_state (user_id, last_sync, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_sync = ?, updated_at = ?
	`, userID, at.UTC().Format(time.RFC3339), now, at.UTC().Format(time.RFC3339), now)
	return err
}

// LogExtraction records one pipeline run for cost auditing.
func (db *DB) LogExtraction(ctx context.Context, userID string, strategy models.Strategy, model string, usage models.TokenUsage, eventCount int, fromCache bool) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO extraction_log (user_id, strategy, model, total_tokens, cost, event_count, from_cache, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, userID, string(strategy), model, usage.TotalTokens, usage.EstimatedCost,
		eventCount, boolToInt(fromCache), time.Now().UTC().Format(time.RFC3339))
	return err
}

// ExtractionStats aggregates a user's extraction history since a time.
type ExtractionStats struct {
	Requests    int     `json:"requests"`
	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
	CacheHits   int     `json:"cache_hits"`
}

// GetExtractionStats sums the extraction log for a user since a time.
func (db *DB) GetExtractionStats(ctx context.Context, userID string, since time.Time) (*ExtractionStats, error) {
	var s ExtractionStats
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost), 0), COALESCE(SUM(from_cache), 0)
		FROM extraction_log
		WHERE user_id = ? AND created_at >= ?
	`, userID, since.UTC().Format(time.RFC3339)).Scan(&s.Requests, &s.TotalTokens, &s.TotalCost, &s.CacheHits)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

const eventColumns = `id, title, description, start_at, end_at, is_all_day,
	timezone, location, category, rrule, external_id, synced_at, deleted, modified_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*calsync.LocalEvent, error) {
	var ev calsync.LocalEvent
	var description, endStr, location, rr, externalID, syncedStr sql.NullString
	var startStr, modifiedStr, category string
	var isAllDay, deleted int

	err := row.Scan(&ev.ID, &ev.Title, &description, &startStr, &endStr, &isAllDay,
		&ev.Timezone, &location, &category, &rr, &externalID, &syncedStr, &deleted, &modifiedStr)
	if err != nil {
		return nil, err
	}

	ev.Description = description.String
	ev.Location = location.String
	ev.Category = models.Category(category)
	ev.ExternalID = externalID.String
	ev.IsAllDay = isAllDay == 1
	ev.Deleted = deleted == 1

	ev.Start, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		return nil, fmt.Errorf("parsing start_at: %w", err)
	}
	ev.ModifiedAt, _ = time.Parse(time.RFC3339, modifiedStr)

	if endStr.Valid && endStr.String != "" {
		end, err := time.Parse(time.RFC3339, endStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing end_at: %w", err)
		}
		ev.End = &end
	}
	if syncedStr.Valid && syncedStr.String != "" {
		synced, err := time.Parse(time.RFC3339, syncedStr.String)
		if err == nil {
			ev.SyncedAt = &synced
		}
	}
	if rr.Valid && rr.String != "" {
		rule, err := calsync.ParseRRule(rr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing recurrence: %w", err)
		}
		ev.Recurrence = rule
	}
	return &ev, nil
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
