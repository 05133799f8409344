package calsync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/photocal/photocal-server/internal/models"
)

// Reconciler drives one user's bidirectional sync between the local
// store and a remote calendar. A single run fetches both sides, diffs
// them against the last sync point, resolves conflicts per the
// configured strategy, and applies the changes.
//
// Individual operation failures never abort the run; they are recorded
// and the run continues so one bad event cannot wedge the whole
// calendar. The sync point only advances after a fully clean run, so
// failed operations are retried next time.
type Reconciler struct {
	store    EventStore
	remote   RemoteCalendar
	strategy models.ConflictStrategy
	clock    clockwork.Clock
}

// NewReconciler wires a reconciler. An empty strategy defaults to
// newest-wins.
func NewReconciler(store EventStore, remote RemoteCalendar, strategy models.ConflictStrategy, clock clockwork.Clock) *Reconciler {
	if strategy == "" {
		strategy = models.ResolveNewestWins
	}
	return &Reconciler{store: store, remote: remote, strategy: strategy, clock: clock}
}

// Sync runs one reconciliation for userID. It returns an error only
// when either side cannot be listed at all; every per-event failure is
// reported inside the result instead.
func (r *Reconciler) Sync(ctx context.Context, userID string) (*models.SyncResult, error) {
	lastSync, err := r.store.LastSync(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load last sync point: %w", err)
	}
	locals, err := r.store.ListEvents(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list local events: %w", err)
	}
	remotes, err := r.remote.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list remote events: %w", err)
	}

	result := &models.SyncResult{Success: true}
	now := r.clock.Now()

	remoteByID := make(map[string]RemoteEvent, len(remotes))
	for _, rem := range remotes {
		remoteByID[rem.ID] = rem
	}
	matched := make(map[string]bool, len(locals))

	for _, local := range locals {
		if local.ExternalID != "" {
			matched[local.ExternalID] = true
		}

		switch {
		case local.Deleted:
			r.applyLocalDeletion(ctx, userID, local, remoteByID, result)

		case local.ExternalID == "":
			r.pushNewLocal(ctx, userID, local, now, result)

		default:
			rem, exists := remoteByID[local.ExternalID]
			if !exists {
				r.handleRemoteDeletion(ctx, userID, local, now, result)
				continue
			}
			r.reconcilePair(ctx, userID, local, rem, lastSync, now, result)
		}
	}

	for _, rem := range remotes {
		if matched[rem.ID] {
			continue
		}
		r.pullNewRemote(ctx, userID, rem, now, result)
	}

	if result.Success {
		if err := r.store.SetLastSync(ctx, userID, now); err != nil {
			recordError(result, "", fmt.Errorf("persist sync point: %w", err))
		}
	}
	return result, nil
}

// applyLocalDeletion propagates a soft-deleted local event: the remote
// copy goes first, then the local row is purged.
func (r *Reconciler) applyLocalDeletion(ctx context.Context, userID string, local LocalEvent, remoteByID map[string]RemoteEvent, result *models.SyncResult) {
	if local.ExternalID != "" {
		if _, exists := remoteByID[local.ExternalID]; exists {
			if err := r.remote.DeleteEvent(ctx, local.ExternalID); err != nil {
				recordError(result, local.ID, fmt.Errorf("delete remote event: %w", err))
				return
			}
			result.Deleted++
		}
	}
	if err := r.store.DeleteEvent(ctx, userID, local.ID); err != nil {
		recordError(result, local.ID, fmt.Errorf("purge deleted event: %w", err))
	}
}

// pushNewLocal creates the remote counterpart of a never-synced local
// event and links the two.
func (r *Reconciler) pushNewLocal(ctx context.Context, userID string, local LocalEvent, now time.Time, result *models.SyncResult) {
	rem, err := toRemote(local)
	if err != nil {
		recordError(result, local.ID, err)
		return
	}
	remoteID, err := r.remote.CreateEvent(ctx, rem)
	if err != nil {
		recordError(result, local.ID, fmt.Errorf("create remote event: %w", err))
		return
	}
	local.ExternalID = remoteID
	local.SyncedAt = &now
	if err := r.store.UpdateEvent(ctx, userID, local); err != nil {
		recordError(result, local.ID, fmt.Errorf("link remote event: %w", err))
		return
	}
	result.Created++
}

// handleRemoteDeletion settles a local event whose remote counterpart
// disappeared: remote-wins deletes locally, manual surfaces a conflict,
// otherwise the event is pushed back.
func (r *Reconciler) handleRemoteDeletion(ctx context.Context, userID string, local LocalEvent, now time.Time, result *models.SyncResult) {
	switch r.strategy {
	case models.ResolveRemoteWins:
		if err := r.store.DeleteEvent(ctx, userID, local.ID); err != nil {
			recordError(result, local.ID, fmt.Errorf("delete local event: %w", err))
			return
		}
		result.Deleted++

	case models.ResolveManual:
		result.Success = false
		result.Conflicts = append(result.Conflicts, models.SyncConflict{
			LocalID:         local.ID,
			RemoteID:        local.ExternalID,
			Type:            models.ConflictDeletedRemotely,
			LocalModifiedAt: local.ModifiedAt,
		})

	default: // local-wins, newest-wins
		local.ExternalID = ""
		r.pushNewLocal(ctx, userID, local, now, result)
	}
}

// reconcilePair settles one linked local/remote pair against the last
// sync point.
func (r *Reconciler) reconcilePair(ctx context.Context, userID string, local LocalEvent, rem RemoteEvent, lastSync, now time.Time, result *models.SyncResult) {
	localChanged := local.ModifiedAt.After(lastSync)
	remoteChanged := rem.ModifiedAt.After(lastSync)

	switch {
	case localChanged && remoteChanged:
		r.resolveConflict(ctx, userID, local, rem, now, result)
	case localChanged:
		r.pushUpdate(ctx, local, result)
	case remoteChanged:
		r.pullUpdate(ctx, userID, local, rem, now, result)
	}
}

func (r *Reconciler) resolveConflict(ctx context.Context, userID string, local LocalEvent, rem RemoteEvent, now time.Time, result *models.SyncResult) {
	strategy := r.strategy
	if strategy == models.ResolveNewestWins {
		if local.ModifiedAt.After(rem.ModifiedAt) {
			strategy = models.ResolveLocalWins
		} else {
			strategy = models.ResolveRemoteWins
		}
	}

	switch strategy {
	case models.ResolveLocalWins:
		r.pushUpdate(ctx, local, result)
	case models.ResolveRemoteWins:
		r.pullUpdate(ctx, userID, local, rem, now, result)
	default: // manual
		result.Success = false
		result.Conflicts = append(result.Conflicts, models.SyncConflict{
			LocalID:          local.ID,
			RemoteID:         rem.ID,
			Type:             models.ConflictBothModified,
			LocalModifiedAt:  local.ModifiedAt,
			RemoteModifiedAt: rem.ModifiedAt,
		})
	}
}

func (r *Reconciler) pushUpdate(ctx context.Context, local LocalEvent, result *models.SyncResult) {
	rem, err := toRemote(local)
	if err != nil {
		recordError(result, local.ID, err)
		return
	}
	rem.ID = local.ExternalID
	if err := r.remote.UpdateEvent(ctx, rem); err != nil {
		recordError(result, local.ID, fmt.Errorf("update remote event: %w", err))
		return
	}
	result.Updated++
}

func (r *Reconciler) pullUpdate(ctx context.Context, userID string, local LocalEvent, rem RemoteEvent, now time.Time, result *models.SyncResult) {
	merged, err := mergeFromRemote(local, rem)
	if err != nil {
		recordError(result, local.ID, err)
		return
	}
	merged.SyncedAt = &now
	if err := r.store.UpdateEvent(ctx, userID, merged); err != nil {
		recordError(result, local.ID, fmt.Errorf("update local event: %w", err))
		return
	}
	result.Updated++
}

// pullNewRemote mirrors a remote-only event into the local store.
func (r *Reconciler) pullNewRemote(ctx context.Context, userID string, rem RemoteEvent, now time.Time, result *models.SyncResult) {
	local, err := fromRemote(rem)
	if err != nil {
		recordError(result, rem.ID, err)
		return
	}
	local.SyncedAt = &now
	if _, err := r.store.CreateEvent(ctx, userID, local); err != nil {
		recordError(result, rem.ID, fmt.Errorf("create local event: %w", err))
		return
	}
	result.Created++
}

func recordError(result *models.SyncResult, eventID string, err error) {
	log.Printf("sync: %v (event %s)", err, eventID)
	result.Success = false
	result.Errors = append(result.Errors, models.SyncError{
		Message: err.Error(),
		EventID: eventID,
	})
}

func toRemote(local LocalEvent) (RemoteEvent, error) {
	rr, err := RenderRRule(local.Recurrence)
	if err != nil {
		return RemoteEvent{}, fmt.Errorf("render recurrence: %w", err)
	}
	return RemoteEvent{
		ID:          local.ExternalID,
		Title:       local.Title,
		Description: local.Description,
		Start:       local.Start,
		End:         local.End,
		IsAllDay:    local.IsAllDay,
		Location:    local.Location,
		RRule:       rr,
		ModifiedAt:  local.ModifiedAt,
	}, nil
}

func fromRemote(rem RemoteEvent) (LocalEvent, error) {
	rule, err := ParseRRule(rem.RRule)
	if err != nil {
		return LocalEvent{}, fmt.Errorf("parse recurrence: %w", err)
	}
	return LocalEvent{
		Title:       rem.Title,
		Description: rem.Description,
		Start:       rem.Start,
		End:         rem.End,
		IsAllDay:    rem.IsAllDay,
		Timezone:    models.DefaultTimezone,
		Location:    rem.Location,
		Category:    models.CategoryOther,
		Recurrence:  rule,
		ExternalID:  rem.ID,
		ModifiedAt:  rem.ModifiedAt,
	}, nil
}

// mergeFromRemote overlays the remote fields onto the local event while
// keeping local-only fields (category, timezone, IDs).
func mergeFromRemote(local LocalEvent, rem RemoteEvent) (LocalEvent, error) {
	rule, err := ParseRRule(rem.RRule)
	if err != nil {
		return LocalEvent{}, fmt.Errorf("parse recurrence: %w", err)
	}
	local.Title = rem.Title
	local.Description = rem.Description
	local.Start = rem.Start
	local.End = rem.End
	local.IsAllDay = rem.IsAllDay
	local.Location = rem.Location
	local.Recurrence = rule
	local.ModifiedAt = rem.ModifiedAt
	return local, nil
}
