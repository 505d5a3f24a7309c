// Package history is the append-only audit ledger. Every successful
// mutation in the record store and the change-set lifecycle appends
// exactly one event in the same transaction as the mutation it
// describes; if the append fails, the whole unit of work rolls back.
// No update or delete path exists.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sandalwing/si/internal/actor"
	"github.com/sandalwing/si/internal/si"
	"github.com/sandalwing/si/internal/storage"
	"github.com/sandalwing/si/internal/tenancy"
	"github.com/sandalwing/si/internal/unitwork"
)

// Event is one immutable ledger entry.
type Event struct {
	Pk        int64           `json:"pk"`
	ID        string          `json:"id"`
	Label     string          `json:"label"`
	Message   string          `json:"message"`
	Actor     actor.Actor     `json:"actor"`
	Snapshot  json.RawMessage `json:"snapshot"`
	Tenancy   tenancy.Tenancy `json:"tenancy"`
	CreatedAt time.Time       `json:"created_at"`
}

// Record appends one event inside the caller's unit of work. The snapshot
// is the row state at event time, serialized as given.
func Record(ctx context.Context, w *unitwork.Work, label, message string, act actor.Actor, snapshot json.RawMessage, ten tenancy.Tenancy) (Event, error) {
	if label == "" {
		return Event{}, fmt.Errorf("history label is required")
	}
	if snapshot == nil {
		snapshot = json.RawMessage("null")
	}

	now := w.Now()
	evt := Event{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Label:     label,
		Message:   message,
		Actor:     act,
		Snapshot:  snapshot,
		Tenancy:   ten,
		CreatedAt: now,
	}

	pk, err := w.DB().InsertReturningPk(ctx, w.Tx(), `
		INSERT INTO history_events
		(id, label, message, actor, snapshot, tenancy_universal, tenancy_workspace_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		evt.ID,
		evt.Label,
		evt.Message,
		string(act.JSON()),
		string(snapshot),
		boolToInt(ten.Universal),
		ten.WorkspaceID,
		storage.ToMillis(now),
	)
	if err != nil {
		return Event{}, si.Storage("record history event", err)
	}
	evt.Pk = pk
	return evt, nil
}

// Filter narrows a ledger read. Zero values match everything.
type Filter struct {
	// LabelPrefix matches events whose label starts with the prefix,
	// e.g. "change_set." for all change-set lifecycle events.
	LabelPrefix string

	// Actor matches events recorded by exactly this actor.
	Actor *actor.Actor
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
