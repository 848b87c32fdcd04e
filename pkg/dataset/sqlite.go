package dataset

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/menta2k/occupancy-tracker/pkg/types"
)

// SQLite mirrors recorded rows into the usage_stats table
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the mirror database at path
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &SQLite{conn: conn}
	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return db, nil
}

func (db *SQLite) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS usage_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		people_count INTEGER NOT NULL,
		table_used INTEGER NOT NULL,
		table_total INTEGER NOT NULL,
		beanbag_used INTEGER NOT NULL DEFAULT 0,
		beanbag_total INTEGER NOT NULL DEFAULT 0,
		filename TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_stats_timestamp ON usage_stats(timestamp);
	`

	_, err := db.conn.Exec(query)
	return err
}

// Append implements Sink
func (db *SQLite) Append(r types.FrameResult) error {
	_, err := db.conn.Exec(
		`INSERT INTO usage_stats (timestamp, people_count, table_used, table_total, beanbag_used, beanbag_total, filename)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp.Format(TimestampLayout), r.PeopleCount, r.TableUsed, r.TableTotal,
		r.BeanbagUsed, r.BeanbagTotal, r.Filename,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage row: %w", err)
	}
	return nil
}

// Since returns mirrored rows at or after t, oldest first
func (db *SQLite) Since(t time.Time) ([]types.FrameResult, error) {
	rows, err := db.conn.Query(
		`SELECT timestamp, people_count, table_used, table_total, beanbag_used, beanbag_total, filename
		 FROM usage_stats WHERE timestamp >= ? ORDER BY timestamp, id`,
		t.Format(TimestampLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage rows: %w", err)
	}
	defer rows.Close()

	var out []types.FrameResult
	for rows.Next() {
		var (
			ts string
			r  types.FrameResult
		)
		if err := rows.Scan(&ts, &r.PeopleCount, &r.TableUsed, &r.TableTotal, &r.BeanbagUsed, &r.BeanbagTotal, &r.Filename); err != nil {
			return nil, err
		}
		if r.Timestamp, err = time.ParseInLocation(TimestampLayout, ts, time.Local); err != nil {
			return nil, fmt.Errorf("invalid stored timestamp %q: %w", ts, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database
func (db *SQLite) Close() error {
	return db.conn.Close()
}
