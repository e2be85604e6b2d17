// Package catalog persists scans and pending edits in a SQLite database so
// translation work can span several sessions.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"jarstrings/internal/record"
)

var ErrNotFound = errors.New("catalog: not found")

// Catalog is an open database. It is safe for concurrent use.
type Catalog struct {
	db  *sql.DB
	log *slog.Logger
}

// Scan describes one stored scan.
type Scan struct {
	ID      string
	Source  string
	Created time.Time
	Entries int
	Strings int
	Edits   int
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory catalog.
func Open(ctx context.Context, path string, log *slog.Logger) (*Catalog, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	// One connection: SQLite has a single writer and ":memory:" is per
	// connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("catalog: %s: %w", p, err)
		}
	}

	c := &Catalog{db: db, log: log}
	if err := c.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug("catalog opened", "path", path)
	return c, nil
}

func (c *Catalog) Close() error { return c.db.Close() }

func (c *Catalog) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.log.Error("rollback failed", "err", err, "rollback_err", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit: %w", err)
	}
	return nil
}

// SaveScan stores the records and diagnostics of a scan of source, with any
// pending edits, and returns the new scan.
func (c *Catalog) SaveScan(ctx context.Context, source string, entries int, records []*record.String, diags []record.Diag) (*Scan, error) {
	s := &Scan{
		ID:      uuid.New().String(),
		Source:  source,
		Created: time.Now().UTC().Truncate(time.Second),
		Entries: entries,
		Strings: len(records),
	}
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO scans (id, source, created_at, entries, strings) VALUES (?, ?, ?, ?, ?)`,
			s.ID, s.Source, s.Created.Unix(), s.Entries, s.Strings); err != nil {
			return fmt.Errorf("catalog: insert scan: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO strings
			(scan_id, seq, path, cp_index, class, method, descriptor, value, context, sink,
			 code_offset, inst_index, line, shared, edited)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (scan_id, path, cp_index) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("catalog: prepare: %w", err)
		}
		defer stmt.Close()
		for i, r := range records {
			if _, err := stmt.ExecContext(ctx, s.ID, i, r.Path, int(r.Index), r.ClassName, r.MethodName,
				r.MethodDescriptor, r.Value, string(r.Context), r.Sink, r.Offset, r.InstIndex, r.Line,
				r.Shared, editedValue(r)); err != nil {
				return fmt.Errorf("catalog: insert %s: %w", r.Key(), err)
			}
			if r.Changed {
				s.Edits++
			}
		}

		for _, d := range diags {
			if _, err := tx.ExecContext(ctx, `INSERT INTO diags (scan_id, path, message) VALUES (?, ?, ?)`,
				s.ID, d.Path, d.Err.Error()); err != nil {
				return fmt.Errorf("catalog: insert diag: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("scan saved", "id", s.ID, "source", source, "strings", s.Strings)
	return s, nil
}

func editedValue(r *record.String) any {
	if r.Changed {
		return r.Edited
	}
	return nil
}

const scanColumns = `s.id, s.source, s.created_at, s.entries, s.strings,
	(SELECT COUNT(*) FROM strings t WHERE t.scan_id = s.id AND t.edited IS NOT NULL)`

func scanRow(row interface{ Scan(...any) error }) (*Scan, error) {
	var (
		s       Scan
		created int64
	)
	if err := row.Scan(&s.ID, &s.Source, &created, &s.Entries, &s.Strings, &s.Edits); err != nil {
		return nil, err
	}
	s.Created = time.Unix(created, 0).UTC()
	return &s, nil
}

// Scans lists stored scans, newest first.
func (c *Catalog) Scans(ctx context.Context) ([]*Scan, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+scanColumns+` FROM scans s ORDER BY s.created_at DESC, s.rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list scans: %w", err)
	}
	defer rows.Close()
	var out []*Scan
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: list scans: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Scan looks up a scan by ID. An empty ID selects the newest scan.
func (c *Catalog) Scan(ctx context.Context, id string) (*Scan, error) {
	q := `SELECT ` + scanColumns + ` FROM scans s `
	var row *sql.Row
	if id == "" {
		row = c.db.QueryRowContext(ctx, q+`ORDER BY s.created_at DESC, s.rowid DESC LIMIT 1`)
	} else {
		row = c.db.QueryRowContext(ctx, q+`WHERE s.id = ?`, id)
	}
	s, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		if id == "" {
			return nil, fmt.Errorf("%w: no scans", ErrNotFound)
		}
		return nil, fmt.Errorf("%w: scan %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: scan %s: %w", id, err)
	}
	return s, nil
}

// Diags returns the diagnostics stored with a scan as path and message
// pairs.
func (c *Catalog) Diags(ctx context.Context, scanID string) ([][2]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT path, message FROM diags WHERE scan_id = ? ORDER BY rowid`, scanID)
	if err != nil {
		return nil, fmt.Errorf("catalog: diags: %w", err)
	}
	defer rows.Close()
	var out [][2]string
	for rows.Next() {
		var d [2]string
		if err := rows.Scan(&d[0], &d[1]); err != nil {
			return nil, fmt.Errorf("catalog: diags: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Records loads every record of a scan in scan order, with stored edits
// applied.
func (c *Catalog) Records(ctx context.Context, scanID string) ([]*record.String, error) {
	return c.records(ctx, scanID, false)
}

// Changed loads only the records that carry an edit.
func (c *Catalog) Changed(ctx context.Context, scanID string) ([]*record.String, error) {
	return c.records(ctx, scanID, true)
}

func (c *Catalog) records(ctx context.Context, scanID string, changedOnly bool) ([]*record.String, error) {
	q := `SELECT path, cp_index, class, method, descriptor, value, context, sink,
		code_offset, inst_index, line, shared, edited FROM strings WHERE scan_id = ?`
	if changedOnly {
		q += ` AND edited IS NOT NULL`
	}
	rows, err := c.db.QueryContext(ctx, q+` ORDER BY seq`, scanID)
	if err != nil {
		return nil, fmt.Errorf("catalog: records: %w", err)
	}
	defer rows.Close()

	var out []*record.String
	for rows.Next() {
		var (
			r      record.String
			idx    int
			usage  string
			edited sql.NullString
		)
		if err := rows.Scan(&r.Path, &idx, &r.ClassName, &r.MethodName, &r.MethodDescriptor, &r.Value,
			&usage, &r.Sink, &r.Offset, &r.InstIndex, &r.Line, &r.Shared, &edited); err != nil {
			return nil, fmt.Errorf("catalog: records: %w", err)
		}
		r.Index = uint16(idx)
		r.Context = record.Context(usage)
		if edited.Valid {
			r.Edit(edited.String)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// SetEdit stores text as the replacement for one literal. Text equal to the
// original value clears the edit.
func (c *Catalog) SetEdit(ctx context.Context, scanID string, key record.Key, text string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE strings SET edited = CASE WHEN value = ? THEN NULL ELSE ? END
		 WHERE scan_id = ? AND path = ? AND cp_index = ?`,
		text, text, scanID, key.Path, int(key.Index))
	if err != nil {
		return fmt.Errorf("catalog: set %s: %w", key, err)
	}
	return affected(res, key)
}

// ClearEdit drops the edit of one literal.
func (c *Catalog) ClearEdit(ctx context.Context, scanID string, key record.Key) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE strings SET edited = NULL WHERE scan_id = ? AND path = ? AND cp_index = ?`,
		scanID, key.Path, int(key.Index))
	if err != nil {
		return fmt.Errorf("catalog: clear %s: %w", key, err)
	}
	return affected(res, key)
}

func affected(res sql.Result, key record.Key) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

// SaveEdits writes the edit state of every record back to a scan: changed
// records store their edit, the rest are cleared. Records unknown to the
// scan are skipped and counted.
func (c *Catalog) SaveEdits(ctx context.Context, scanID string, records []*record.String) (unknown int, err error) {
	err = c.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`UPDATE strings SET edited = ? WHERE scan_id = ? AND path = ? AND cp_index = ?`)
		if err != nil {
			return fmt.Errorf("catalog: prepare: %w", err)
		}
		defer stmt.Close()
		for _, r := range records {
			res, err := stmt.ExecContext(ctx, editedValue(r), scanID, r.Path, int(r.Index))
			if err != nil {
				return fmt.Errorf("catalog: save %s: %w", r.Key(), err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				unknown++
			}
		}
		return nil
	})
	return unknown, err
}

// DeleteScan removes a scan with its records and diagnostics.
func (c *Catalog) DeleteScan(ctx context.Context, scanID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM scans WHERE id = ?`, scanID)
	if err != nil {
		return fmt.Errorf("catalog: delete %s: %w", scanID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: scan %s", ErrNotFound, scanID)
	}
	return nil
}
