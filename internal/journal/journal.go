// Package journal keeps an append-only SQLite record of inbound frames.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS frames (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	idx         INTEGER NOT NULL,
	grp         TEXT    NOT NULL,
	payload     TEXT    NOT NULL,
	received_at TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS frames_grp ON frames (grp, id);
`

type Entry struct {
	ID         int64
	Index      uint64
	Group      string
	Payload    string
	ReceivedAt time.Time
}

// Journal is safe for concurrent use.
type Journal struct {
	db        *sql.DB
	retention int
	now       func() time.Time
}

// Open creates or reuses the journal at path. retention > 0 keeps only the
// newest rows.
func Open(path string, retention int) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// one connection: sqlite serializes writers anyway, and :memory: is per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal %s: %w", path, err)
	}
	return &Journal{db: db, retention: retention, now: time.Now}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Record appends one frame and prunes rows past the retention limit.
func (j *Journal) Record(ctx context.Context, index uint64, group, payload string) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO frames (idx, grp, payload, received_at) VALUES (?, ?, ?, ?)`,
		int64(index), group, payload, j.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}

	if j.retention > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("journal insert id: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM frames WHERE id <= ?`, id-int64(j.retention)); err != nil {
			return fmt.Errorf("journal prune: %w", err)
		}
	}
	return tx.Commit()
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, idx, grp, payload, received_at FROM frames ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			idx   int64
			stamp string
		)
		if err := rows.Scan(&e.ID, &idx, &e.Group, &e.Payload, &stamp); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		e.Index = uint64(idx)
		if e.ReceivedAt, err = time.Parse(time.RFC3339Nano, stamp); err != nil {
			return nil, fmt.Errorf("journal timestamp %q: %w", stamp, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count is the number of retained rows.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM frames`).Scan(&n)
	return n, err
}
