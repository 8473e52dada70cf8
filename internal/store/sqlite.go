package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS attempts (
	id          TEXT PRIMARY KEY,
	request_id  TEXT NOT NULL,
	ts          INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	name        TEXT NOT NULL,
	target      TEXT NOT NULL,
	hop         INTEGER NOT NULL,
	retry       INTEGER NOT NULL,
	success     INTEGER NOT NULL,
	latency_ms  INTEGER NOT NULL,
	tokens      INTEGER NOT NULL,
	cost        REAL NOT NULL,
	error_code  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_attempts_ts ON attempts(ts);
CREATE INDEX IF NOT EXISTS idx_attempts_target ON attempts(target, ts);
CREATE INDEX IF NOT EXISTS idx_attempts_request ON attempts(request_id);
`

// SQLiteJournal persists records in a SQLite database.
type SQLiteJournal struct {
	db       *sql.DB
	path     string
	ttl      time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSQLiteJournal opens (or creates) the database at path.
func NewSQLiteJournal(path string, ttl time.Duration) (*SQLiteJournal, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	j := &SQLiteJournal{
		db:       db,
		path:     path,
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}
	j.wg.Add(1)
	go j.cleanup(cleanupInterval)
	return j, nil
}

// Path returns the database file path.
func (j *SQLiteJournal) Path() string { return j.path }

// Append inserts rec.
func (j *SQLiteJournal) Append(ctx context.Context, rec AttemptRecord) error {
	prepare(&rec, time.Now())
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO attempts (id, request_id, ts, kind, name, target, hop, retry, success,
			latency_ms, tokens, cost, error_code, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequestID, rec.Timestamp.UnixNano(), rec.Kind, rec.Name, rec.Target,
		rec.Hop, rec.Retry, boolToInt(rec.Success), rec.LatencyMs, rec.Tokens, rec.Cost,
		rec.ErrorCode, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// Recent returns unexpired matching records, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, q Query) ([]AttemptRecord, error) {
	where := []string{"ts >= ?"}
	args := []any{time.Now().Add(-j.ttl).UnixNano()}
	if q.Target != "" {
		where = append(where, "target = ?")
		args = append(args, q.Target)
	}
	if q.RequestID != "" {
		where = append(where, "request_id = ?")
		args = append(args, q.RequestID)
	}
	args = append(args, q.limit())

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, request_id, ts, kind, name, target, hop, retry, success,
			latency_ms, tokens, cost, error_code, error
		FROM attempts WHERE `+strings.Join(where, " AND ")+`
		ORDER BY ts DESC, rowid DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	out := []AttemptRecord{}
	for rows.Next() {
		var (
			r       AttemptRecord
			ts      int64
			success int
		)
		if err := rows.Scan(&r.ID, &r.RequestID, &ts, &r.Kind, &r.Name, &r.Target, &r.Hop,
			&r.Retry, &success, &r.LatencyMs, &r.Tokens, &r.Cost, &r.ErrorCode, &r.Error); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		r.Timestamp = time.Unix(0, ts).UTC()
		r.Success = success != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes records older than the TTL and returns how many were removed.
func (j *SQLiteJournal) Prune(ctx context.Context) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM attempts WHERE ts < ?`, time.Now().Add(-j.ttl).UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune attempts: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the cleanup goroutine and closes the database.
func (j *SQLiteJournal) Close() error {
	var err error
	j.stopOnce.Do(func() {
		close(j.stopChan)
		j.wg.Wait()
		err = j.db.Close()
	})
	return err
}

func (j *SQLiteJournal) cleanup(every time.Duration) {
	defer j.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			if n, err := j.Prune(context.Background()); err != nil {
				log.Warn().Err(err).Msg("journal: prune failed")
			} else if n > 0 {
				log.Debug().Int64("removed", n).Msg("journal: pruned")
			}
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure SQLiteJournal implements Journal
var _ Journal = (*SQLiteJournal)(nil)
