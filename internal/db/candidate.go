package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/photocal/photocal-server/internal/calsync"
	"github.com/photocal/photocal-server/internal/models"
)

// ErrNoStartDate is returned when a candidate without a resolved date
// is saved; the client must supply one first.
var ErrNoStartDate = errors.New("event has no start date")

// SaveCandidate persists an extracted candidate as a calendar event and
// returns its ID. Extraction metadata (confidence, method, source text)
// is kept alongside for auditing.
func (db *DB) SaveCandidate(ctx context.Context, userID string, ev models.CandidateEvent) (string, error) {
	if ev.StartDate == nil {
		return "", ErrNoStartDate
	}

	id := ev.ID
	if id == "" {
		id = uuid.NewString()
	}
	tz := ev.Timezone
	if tz == "" {
		tz = models.DefaultTimezone
	}

	rr, err := calsync.RenderRRule(ev.Recurrence)
	if err != nil {
		return "", fmt.Errorf("rendering recurrence: %w", err)
	}

	var location string
	if ev.Location != nil {
		location = ev.Location.Name
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO events (id, user_id, title, description, start_at, end_at, is_all_day,
			timezone, location, category, rrule, confidence, extraction_method, original_text,
			deleted, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, id, userID, ev.Title, ev.Description,
		ev.StartDate.UTC().Format(time.RFC3339), formatTimePtr(ev.EndDate), boolToInt(ev.IsAllDay),
		tz, location, string(ev.Category), rr,
		ev.Confidence.Overall, string(ev.Method), ev.OriginalText, now, now)
	if err != nil {
		return "", fmt.Errorf("inserting event: %w", err)
	}
	return id, nil
}
