package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const schemaVersion = 1

var schema = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scans (
		id         TEXT PRIMARY KEY,
		source     TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		entries    INTEGER NOT NULL,
		strings    INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS strings (
		scan_id     TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
		seq         INTEGER NOT NULL,
		path        TEXT NOT NULL,
		cp_index    INTEGER NOT NULL,
		class       TEXT NOT NULL,
		method      TEXT NOT NULL,
		descriptor  TEXT NOT NULL,
		value       TEXT NOT NULL,
		context     TEXT NOT NULL DEFAULT '',
		sink        TEXT NOT NULL DEFAULT '',
		code_offset INTEGER NOT NULL,
		inst_index  INTEGER NOT NULL,
		line        INTEGER NOT NULL DEFAULT 0,
		shared      INTEGER NOT NULL DEFAULT 0,
		edited      TEXT,
		PRIMARY KEY (scan_id, path, cp_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_strings_edited ON strings(scan_id) WHERE edited IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS diags (
		scan_id TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
		path    TEXT NOT NULL,
		message TEXT NOT NULL
	)`,
}

func (c *Catalog) migrate(ctx context.Context) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("catalog: schema: %w", err)
			}
		}
		var v int
		err := tx.QueryRowContext(ctx, `SELECT version FROM schema_version`).Scan(&v)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, schemaVersion)
			return err
		case err != nil:
			return err
		case v > schemaVersion:
			return fmt.Errorf("catalog: schema version %d is newer than supported %d", v, schemaVersion)
		}
		return nil
	})
}
