package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sandalwing/si/internal/si"
	"github.com/sandalwing/si/internal/storage"
	"github.com/sandalwing/si/internal/tenancy"
)

// defaultPageSize bounds how many rows one cursor advance fetches.
const defaultPageSize = 256

// List opens a cursor over the ledger for one tenancy scope, ordered by
// insertion (pk ascending). The cursor is lazy and restartable: it
// re-queries a page at a time keyed on the last seen pk, so a caller can
// drop it and open a new one at any point without holding rows in memory.
func List(db *storage.DB, q storage.Querier, scope tenancy.Tenancy, filter Filter) *Cursor {
	return &Cursor{
		db:       db,
		q:        q,
		scope:    scope,
		filter:   filter,
		pageSize: defaultPageSize,
	}
}

// Cursor walks ledger entries in insertion order.
type Cursor struct {
	db       *storage.DB
	q        storage.Querier
	scope    tenancy.Tenancy
	filter   Filter
	pageSize int

	page    []Event
	pos     int
	lastPk  int64
	drained bool
	err     error
}

// Next advances to the next event. It returns false when the ledger is
// exhausted or an error occurred; check Err after the loop.
func (c *Cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if c.pos < len(c.page) {
		c.lastPk = c.page[c.pos].Pk
		c.pos++
		return true
	}
	if c.drained {
		return false
	}
	if err := c.fetch(ctx); err != nil {
		c.err = err
		return false
	}
	if len(c.page) == 0 {
		c.drained = true
		return false
	}
	c.lastPk = c.page[0].Pk
	c.pos = 1
	return true
}

// Event returns the event the cursor currently points at. Only valid
// after Next returned true.
func (c *Cursor) Event() Event {
	return c.page[c.pos-1]
}

// Err returns the first error the cursor hit, if any.
func (c *Cursor) Err() error { return c.err }

func (c *Cursor) fetch(ctx context.Context) error {
	where := []string{"pk > ?"}
	args := []any{c.lastPk}

	// Tenancy read filter: workspace scopes see universal events plus
	// their own; the universal scope sees only universal events.
	if c.scope.Universal {
		where = append(where, "tenancy_universal = 1")
	} else {
		where = append(where, "(tenancy_universal = 1 OR tenancy_workspace_id = ?)")
		args = append(args, c.scope.WorkspaceID)
	}

	if c.filter.LabelPrefix != "" {
		where = append(where, `label LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(c.filter.LabelPrefix)+"%")
	}
	if c.filter.Actor != nil {
		where = append(where, "actor = ?")
		args = append(args, string(c.filter.Actor.JSON()))
	}

	query := fmt.Sprintf(`
		SELECT pk, id, label, message, actor, snapshot,
		       tenancy_universal, tenancy_workspace_id, created_at
		FROM history_events
		WHERE %s
		ORDER BY pk ASC
		LIMIT %d
	`, strings.Join(where, " AND "), c.pageSize)

	rows, err := c.q.QueryContext(ctx, c.db.Rebind(query), args...)
	if err != nil {
		return si.Storage("list history events", err)
	}
	defer rows.Close()

	c.page = c.page[:0]
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return err
		}
		c.page = append(c.page, evt)
	}
	if err := rows.Err(); err != nil {
		return si.Storage("iterate history events", err)
	}
	c.pos = 0
	return nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		evt           Event
		actorJSON     string
		snapshot      string
		tenUniversal  int
		tenWorkspace  string
		createdMillis int64
	)
	if err := rows.Scan(
		&evt.Pk, &evt.ID, &evt.Label, &evt.Message, &actorJSON, &snapshot,
		&tenUniversal, &tenWorkspace, &createdMillis,
	); err != nil {
		return Event{}, si.Storage("scan history event", err)
	}

	if err := json.Unmarshal([]byte(actorJSON), &evt.Actor); err != nil {
		return Event{}, fmt.Errorf("decode history actor: %w", err)
	}
	evt.Snapshot = json.RawMessage(snapshot)
	evt.Tenancy = tenancy.Tenancy{Universal: tenUniversal != 0, WorkspaceID: tenWorkspace}
	evt.CreatedAt = storage.FromMillis(createdMillis)
	return evt, nil
}

// escapeLike escapes LIKE metacharacters in a literal prefix.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
