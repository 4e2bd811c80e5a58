package database

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/digitaldrywood/timesheet/internal/timesheet"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type DB struct {
	conn *sql.DB
	now  func() time.Time
}

func New(dataDir string) (*DB, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "timesheet.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps sqlite from returning SQLITE_BUSY under concurrent saves.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, now: time.Now}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.Up(db.conn, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Snapshot operations

// SaveSnapshot stores rec under its period, replacing any earlier snapshot.
func (db *DB) SaveSnapshot(rec *timesheet.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT INTO snapshots (year, month, payload, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (year, month) DO UPDATE SET
			payload = excluded.payload,
			saved_at = excluded.saved_at
	`, rec.Year, rec.Month, string(payload), db.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", rec.Period, err)
	}
	return nil
}

// LoadSnapshot returns the snapshot saved for p. Missing and unreadable
// snapshots both come back as (nil, false).
func (db *DB) LoadSnapshot(p timesheet.Period) (*timesheet.Record, bool) {
	var payload string
	err := db.conn.QueryRow(`
		SELECT payload FROM snapshots WHERE year = ? AND month = ?
	`, p.Year, p.Month).Scan(&payload)

	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		log.Printf("Failed to load snapshot %s: %v", p, err)
		return nil, false
	}

	var rec timesheet.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		log.Printf("Ignoring corrupt snapshot %s: %v", p, err)
		return nil, false
	}
	rec.Period = p
	return &rec, true
}

// Periods lists every period with a snapshot, newest first.
func (db *DB) Periods() ([]timesheet.Period, error) {
	rows, err := db.conn.Query(`SELECT year, month FROM snapshots ORDER BY year DESC, month DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []timesheet.Period
	for rows.Next() {
		var p timesheet.Period
		if err := rows.Scan(&p.Year, &p.Month); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// Sync journal operations

// RecordSync appends one remote operation outcome to the journal.
func (db *DB) RecordSync(op string, p timesheet.Period, outcome timesheet.SyncOutcome) error {
	_, err := db.conn.Exec(`
		INSERT INTO sync_log (id, op, outcome, year, month, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), op, string(outcome), p.Year, p.Month, db.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record sync: %w", err)
	}
	return nil
}

// LastSync returns the time of the latest successful remote sync, or the
// zero time if there never was one.
func (db *DB) LastSync() (time.Time, error) {
	var at sql.NullTime
	err := db.conn.QueryRow(`
		SELECT at FROM sync_log WHERE outcome = ? ORDER BY at DESC LIMIT 1
	`, string(timesheet.OutcomeSynced)).Scan(&at)

	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return at.Time, nil
}
