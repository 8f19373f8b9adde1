package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// probeStore persists per-display DDC probe results so a restart tries
// the last working transport first instead of re-walking the probe
// order. The store is advisory: every failure degrades to plain
// discovery and is logged at debug.
type probeStore struct {
	db  *sql.DB
	log *slog.Logger
}

// probeRecord is one remembered display.
type probeRecord struct {
	Key       string
	Connector string
	Transport string
	Max       uint16
	LastSeen  time.Time
}

const probeSchema = `
CREATE TABLE IF NOT EXISTS displays (
	key       TEXT PRIMARY KEY,
	connector TEXT NOT NULL,
	transport TEXT NOT NULL,
	max       INTEGER NOT NULL,
	last_seen TIMESTAMP NOT NULL
);`

func openProbeStore(path string, logger *slog.Logger) (*probeStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open probe store: %w", err)
	}
	if _, err := db.Exec(probeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create probe schema: %w", err)
	}
	s := &probeStore{db: db, log: logger}
	s.pruneStale(storeRetentionDays * 24 * time.Hour)
	return s, nil
}

func (s *probeStore) close() {
	if s != nil && s.db != nil {
		s.db.Close()
	}
}

// lookup returns the remembered record for a display fingerprint.
func (s *probeStore) lookup(key string) (probeRecord, bool) {
	if s == nil || s.db == nil {
		return probeRecord{}, false
	}
	row := s.db.QueryRow(
		`SELECT key, connector, transport, max, last_seen FROM displays WHERE key = ?`, key)
	var rec probeRecord
	var maxVal int64
	if err := row.Scan(&rec.Key, &rec.Connector, &rec.Transport, &maxVal, &rec.LastSeen); err != nil {
		if err != sql.ErrNoRows {
			s.log.Debug("probe store lookup failed", "key", key, "error", err)
		}
		return probeRecord{}, false
	}
	if maxVal < 0 || maxVal > 0xFFFF {
		return probeRecord{}, false
	}
	rec.Max = uint16(maxVal)
	return rec, true
}

// remember upserts a record after a validated read.
func (s *probeStore) remember(rec probeRecord) {
	if s == nil || s.db == nil {
		return
	}
	_, err := s.db.Exec(
		`INSERT INTO displays (key, connector, transport, max, last_seen)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   connector = excluded.connector,
		   transport = excluded.transport,
		   max       = excluded.max,
		   last_seen = excluded.last_seen`,
		rec.Key, rec.Connector, rec.Transport, int64(rec.Max), time.Now().UTC())
	if err != nil {
		s.log.Debug("probe store write failed", "key", rec.Key, "error", err)
	}
}

// pruneStale drops displays not seen within the retention window.
func (s *probeStore) pruneStale(retention time.Duration) {
	if s == nil || s.db == nil {
		return
	}
	cutoff := time.Now().UTC().Add(-retention)
	if _, err := s.db.Exec(`DELETE FROM displays WHERE last_seen < ?`, cutoff); err != nil {
		s.log.Debug("probe store prune failed", "error", err)
	}
}
