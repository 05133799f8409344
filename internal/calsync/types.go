package calsync

import (
	"context"
	"time"

	"github.com/photocal/photocal-server/internal/models"
)

// LocalEvent is a stored calendar event on our side of the sync
// boundary. ExternalID links it to its remote counterpart; empty means
// it has never been pushed.
type LocalEvent struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Start       time.Time              `json:"start"`
	End         *time.Time             `json:"end,omitempty"`
	IsAllDay    bool                   `json:"is_all_day"`
	Timezone    string                 `json:"timezone"`
	Location    string                 `json:"location,omitempty"`
	Category    models.Category        `json:"category"`
	Recurrence  *models.RecurrenceRule `json:"recurrence,omitempty"`
	ExternalID  string                 `json:"external_id,omitempty"`
	ModifiedAt  time.Time              `json:"modified_at"`
	SyncedAt    *time.Time             `json:"synced_at,omitempty"`
	Deleted     bool                   `json:"deleted"`
}

// RemoteEvent is the provider-side representation. Recurrence travels
// as an RRULE string, the lingua franca of calendar providers.
type RemoteEvent struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Start       time.Time  `json:"start"`
	End         *time.Time `json:"end,omitempty"`
	IsAllDay    bool       `json:"is_all_day"`
	Location    string     `json:"location,omitempty"`
	RRule       string     `json:"rrule,omitempty"`
	ModifiedAt  time.Time  `json:"modified_at"`
}

// RemoteCalendar is the provider boundary. Implementations wrap one
// user's calendar on one provider.
type RemoteCalendar interface {
	ListEvents(ctx context.Context) ([]RemoteEvent, error)
	CreateEvent(ctx context.Context, ev RemoteEvent) (string, error)
	UpdateEvent(ctx context.Context, ev RemoteEvent) error
	DeleteEvent(ctx context.Context, id string) error
}

// EventStore persists local events and per-user sync bookkeeping.
type EventStore interface {
	ListEvents(ctx context.Context, userID string) ([]LocalEvent, error)
	CreateEvent(ctx context.Context, userID string, ev LocalEvent) (string, error)
	UpdateEvent(ctx context.Context, userID string, ev LocalEvent) error
	DeleteEvent(ctx context.Context, userID, id string) error
	LastSync(ctx context.Context, userID string) (time.Time, error)
	SetLastSync(ctx context.Context, userID string, at time.Time) error
}
