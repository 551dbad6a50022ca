// Package sqlite stores scheduler timers in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TaomasSpace/clubhall-guard/internal/scheduler"
)

const createTimersTableSQL = `
CREATE TABLE IF NOT EXISTS timers (
    tenant_id TEXT NOT NULL,
    timer_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    deadline_ms INTEGER NOT NULL,
    payload TEXT,
    PRIMARY KEY (tenant_id, timer_id, kind)
)`

const upsertTimerSQL = `
INSERT INTO timers (tenant_id, timer_id, kind, deadline_ms, payload)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (tenant_id, timer_id, kind)
DO UPDATE SET deadline_ms = excluded.deadline_ms, payload = excluded.payload`

// TimerStore implements scheduler.PersistencePort.
type TimerStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path in WAL mode with full
// synchronous commits.
func Open(path string) (*TimerStore, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createTimersTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create timers table: %w", err)
	}
	return &TimerStore{db: db}, nil
}

func (s *TimerStore) Close() error {
	return s.db.Close()
}

func (s *TimerStore) PutTimer(ctx context.Context, e scheduler.TimerEntry) error {
	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}
	_, err := s.db.ExecContext(ctx, upsertTimerSQL, e.TenantID, e.TimerID, string(e.Kind), e.Deadline.UnixMilli(), payload)
	if err != nil {
		return fmt.Errorf("put timer %s: %w", e.Key(), err)
	}
	return nil
}

func (s *TimerStore) DeleteTimer(ctx context.Context, tenantID, timerID string, kind scheduler.Kind) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM timers WHERE tenant_id = ? AND timer_id = ? AND kind = ?`,
		tenantID, timerID, string(kind))
	if err != nil {
		return fmt.Errorf("delete timer %s/%s/%s: %w", tenantID, kind, timerID, err)
	}
	return nil
}

func (s *TimerStore) ListAllTimers(ctx context.Context) ([]scheduler.TimerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant_id, timer_id, kind, deadline_ms, payload FROM timers ORDER BY deadline_ms`)
	if err != nil {
		return nil, fmt.Errorf("list timers: %w", err)
	}
	defer rows.Close()

	var out []scheduler.TimerEntry
	for rows.Next() {
		var (
			e        scheduler.TimerEntry
			kind     string
			deadline int64
			payload  sql.NullString
		)
		if err := rows.Scan(&e.TenantID, &e.TimerID, &kind, &deadline, &payload); err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		e.Kind = scheduler.Kind(kind)
		e.Deadline = time.UnixMilli(deadline).UTC()
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
