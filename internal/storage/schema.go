package storage

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/sandalwing/si/internal/entitydef"
)

//go:embed schema_sqlite.sql
var schemaSQLite string

//go:embed schema_postgres.sql
var schemaPostgres string

// EnsureSchema applies the base DDL and creates one table per entity kind
// and per relation kind from the registry. It is idempotent: every
// statement is CREATE ... IF NOT EXISTS, so bootstrap is safe to run on
// every startup.
func EnsureSchema(ctx context.Context, db *DB, reg *entitydef.Registry) error {
	base := schemaSQLite
	if db.dialect == Postgres {
		base = schemaPostgres
	}
	for _, stmt := range splitStatements(base) {
		if _, err := db.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply base schema: %w", err)
		}
	}

	for _, def := range reg.Defs() {
		for _, stmt := range entityTableDDL(def.Table, db.dialect) {
			if _, err := db.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create entity table %s: %w", def.Table, err)
			}
		}
	}
	for _, rel := range reg.Relations() {
		for _, stmt := range relationTableDDL(rel.Table, db.dialect) {
			if _, err := db.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create relation table %s: %w", rel.Table, err)
			}
		}
	}
	return nil
}

// pkColumn returns the surrogate key column DDL for the dialect.
func pkColumn(d Dialect) string {
	if d == Postgres {
		return "pk BIGSERIAL PRIMARY KEY"
	}
	return "pk INTEGER PRIMARY KEY AUTOINCREMENT"
}

func intAffinity(d Dialect) string {
	if d == Postgres {
		return "BIGINT"
	}
	return "INTEGER"
}

func boolAffinity(d Dialect) string {
	if d == Postgres {
		return "SMALLINT"
	}
	return "INTEGER"
}

// entityTableDDL renders the standard column layout for one entity kind.
// Every entity table is identical apart from its name; rows are versions,
// never updated in place.
func entityTableDDL(table string, d Dialect) []string {
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    %s,
    id TEXT NOT NULL,
    tenancy_universal %s NOT NULL,
    tenancy_workspace_id TEXT NOT NULL DEFAULT '',
    change_set_pk %s NOT NULL DEFAULT -1,
    edit_session_pk %s NOT NULL DEFAULT -1,
    deleted_at %s,
    name TEXT NOT NULL DEFAULT '',
    payload TEXT NOT NULL,
    base_head_hash TEXT NOT NULL DEFAULT '',
    created_at %s NOT NULL,
    updated_at %s NOT NULL
)`, table, pkColumn(d), boolAffinity(d), intAffinity(d), intAffinity(d),
		intAffinity(d), intAffinity(d), intAffinity(d))

	resolveIdx := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_%s_resolve ON %s(id, change_set_pk, edit_session_pk, pk)",
		table, table)
	nameIdx := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_%s_name ON %s(name)",
		table, table)

	return []string{create, resolveIdx, nameIdx}
}

// relationTableDDL renders the join-table layout for one relation kind.
// The logical identity of a relation row is (parent_id, child_id); it is
// versioned and tombstoned exactly like a primary row.
func relationTableDDL(table string, d Dialect) []string {
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    %s,
    parent_id TEXT NOT NULL,
    child_id TEXT NOT NULL,
    tenancy_universal %s NOT NULL,
    tenancy_workspace_id TEXT NOT NULL DEFAULT '',
    change_set_pk %s NOT NULL DEFAULT -1,
    edit_session_pk %s NOT NULL DEFAULT -1,
    deleted_at %s,
    created_at %s NOT NULL,
    updated_at %s NOT NULL
)`, table, pkColumn(d), boolAffinity(d), intAffinity(d), intAffinity(d),
		intAffinity(d), intAffinity(d), intAffinity(d))

	resolveIdx := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_%s_resolve ON %s(parent_id, child_id, change_set_pk, edit_session_pk, pk)",
		table, table)

	return []string{create, resolveIdx}
}

// splitStatements breaks an embedded schema file into individual
// statements. Statements never contain literal semicolons in strings.
func splitStatements(schema string) []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
