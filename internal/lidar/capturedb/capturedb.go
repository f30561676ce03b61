// Package capturedb records decode session metadata in a local sqlite
// database: which capture was read, what the arbitration and hardware
// detection concluded, and how much data came out. Scan contents are never
// stored.
package capturedb

import (
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// CaptureDB wraps the sqlite handle for the session metadata store.
type CaptureDB struct {
	*sql.DB
}

// SessionRecord is one decode session's metadata.
type SessionRecord struct {
	SessionID         string
	CapturePath       string
	VersionMajor      int
	VersionMinor      int
	TimeScaling       string
	ScalingConfidence string
	Hardware          string
	ScansDecoded      int
	PointsProjected   int
	FirstTimestampUS  uint64
	LastTimestampUS   uint64
}

// Open opens (creating if needed) the session store at path and applies
// the schema.
func Open(path string) (*CaptureDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("capturedb: apply schema: %w", err)
	}
	return &CaptureDB{db}, nil
}

// InsertSession stores a session record, assigning a fresh UUID when the
// record carries none, and returns the session ID.
func (cdb *CaptureDB) InsertSession(rec *SessionRecord) (string, error) {
	if rec.SessionID == "" {
		rec.SessionID = uuid.New().String()
	}

	const query = `
		INSERT INTO capture_sessions (
			session_id, capture_path, version_major, version_minor,
			time_scaling, scaling_confidence, hardware,
			scans_decoded, points_projected, first_timestamp_us, last_timestamp_us
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := cdb.Exec(query,
		rec.SessionID, rec.CapturePath, rec.VersionMajor, rec.VersionMinor,
		rec.TimeScaling, rec.ScalingConfidence, rec.Hardware,
		rec.ScansDecoded, rec.PointsProjected, int64(rec.FirstTimestampUS), int64(rec.LastTimestampUS))
	if err != nil {
		return "", fmt.Errorf("capturedb: insert session: %w", err)
	}
	return rec.SessionID, nil
}

// SessionsForCapture returns the recorded sessions for one capture path,
// newest first.
func (cdb *CaptureDB) SessionsForCapture(capturePath string) ([]SessionRecord, error) {
	const query = `
		SELECT session_id, capture_path, version_major, version_minor,
		       time_scaling, scaling_confidence, hardware,
		       scans_decoded, points_projected,
		       COALESCE(first_timestamp_us, 0), COALESCE(last_timestamp_us, 0)
		FROM capture_sessions
		WHERE capture_path = ?
		ORDER BY created_at DESC
	`
	rows, err := cdb.Query(query, capturePath)
	if err != nil {
		return nil, fmt.Errorf("capturedb: query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var first, last int64
		if err := rows.Scan(
			&rec.SessionID, &rec.CapturePath, &rec.VersionMajor, &rec.VersionMinor,
			&rec.TimeScaling, &rec.ScalingConfidence, &rec.Hardware,
			&rec.ScansDecoded, &rec.PointsProjected, &first, &last); err != nil {
			return nil, fmt.Errorf("capturedb: scan session row: %w", err)
		}
		rec.FirstTimestampUS = uint64(first)
		rec.LastTimestampUS = uint64(last)
		out = append(out, rec)
	}
	return out, rows.Err()
}
