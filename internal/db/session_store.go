package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/odometry.report/internal/vo"
)

// Session represents one replay run through the pipeline.
type Session struct {
	SessionID  string    `json:"session_id"`
	ReplayPath string    `json:"replay_path"`
	ConfigJSON string    `json:"config_json"`
	StartedAt  time.Time `json:"started_at"`
}

// FrameRecord is the persisted per-frame telemetry row.
type FrameRecord struct {
	SessionID       string          `json:"session_id"`
	FrameID         int64           `json:"frame_id"`
	TSUnixNanos     int64           `json:"ts_unix_nanos"`
	Stage           vo.Stage        `json:"stage"`
	Result          vo.UpdateResult `json:"result"`
	NumObservations int             `json:"num_observations"`
	Processing      time.Duration   `json:"processing_ns"`
	Quality         string          `json:"quality"`
}

// KeyframeRecord is the persisted keyframe row.
type KeyframeRecord struct {
	SessionID       string    `json:"session_id"`
	KeyframeID      int64     `json:"keyframe_id"`
	FrameID         int64     `json:"frame_id"`
	Timestamp       time.Time `json:"timestamp"`
	NumObservations int       `json:"num_observations"`
}

// CreateSession inserts a new session row with a fresh UUID and returns it.
func (db *DB) CreateSession(replayPath, configJSON string) (*Session, error) {
	s := &Session{
		SessionID:  uuid.NewString(),
		ReplayPath: replayPath,
		ConfigJSON: configJSON,
		StartedAt:  time.Now(),
	}

	_, err := db.Exec(
		`INSERT INTO vo_sessions (session_id, replay_path, config_json, started_unix_ns) VALUES (?, ?, ?, ?)`,
		s.SessionID, s.ReplayPath, s.ConfigJSON, s.StartedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

// InsertFrame records one processed frame's outcome and telemetry.
func (db *DB) InsertFrame(rec *FrameRecord) error {
	_, err := db.Exec(
		`INSERT INTO vo_frames (session_id, frame_id, ts_unix_nanos, stage, result, num_observations, processing_ns, quality)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.FrameID, rec.TSUnixNanos, string(rec.Stage), string(rec.Result),
		rec.NumObservations, int64(rec.Processing), rec.Quality,
	)
	if err != nil {
		return fmt.Errorf("insert frame %d: %w", rec.FrameID, err)
	}
	return nil
}

// InsertKeyframe records a keyframe retained in the map.
func (db *DB) InsertKeyframe(sessionID string, kf *vo.Keyframe) error {
	_, err := db.Exec(
		`INSERT INTO vo_keyframes (session_id, keyframe_id, frame_id, ts_unix_nanos, num_observations)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, kf.ID, kf.FrameID, kf.Timestamp.UnixNano(), kf.NumObservations,
	)
	if err != nil {
		return fmt.Errorf("insert keyframe %d: %w", kf.ID, err)
	}
	return nil
}

// RecentFrames returns up to limit frame records for the session, newest
// first.
func (db *DB) RecentFrames(sessionID string, limit int) ([]*FrameRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(
		`SELECT session_id, frame_id, ts_unix_nanos, stage, result, num_observations, processing_ns, quality
		 FROM vo_frames WHERE session_id = ? ORDER BY ts_unix_nanos DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var out []*FrameRecord
	for rows.Next() {
		rec := &FrameRecord{}
		var stage, result string
		var processingNS int64
		if err := rows.Scan(&rec.SessionID, &rec.FrameID, &rec.TSUnixNanos, &stage, &result,
			&rec.NumObservations, &processingNS, &rec.Quality); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		rec.Stage = vo.Stage(stage)
		rec.Result = vo.UpdateResult(result)
		rec.Processing = time.Duration(processingNS)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Keyframes returns all keyframe records for the session in insertion
// order.
func (db *DB) Keyframes(sessionID string) ([]*KeyframeRecord, error) {
	rows, err := db.Query(
		`SELECT session_id, keyframe_id, frame_id, ts_unix_nanos, num_observations
		 FROM vo_keyframes WHERE session_id = ? ORDER BY keyframe_id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query keyframes: %w", err)
	}
	defer rows.Close()

	var out []*KeyframeRecord
	for rows.Next() {
		rec := &KeyframeRecord{}
		var tsNanos int64
		if err := rows.Scan(&rec.SessionID, &rec.KeyframeID, &rec.FrameID, &tsNanos, &rec.NumObservations); err != nil {
			return nil, fmt.Errorf("scan keyframe: %w", err)
		}
		rec.Timestamp = time.Unix(0, tsNanos)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ClearSession deletes a session and, through the cascade, its frames and
// keyframes.
func (db *DB) ClearSession(sessionID string) error {
	if _, err := db.Exec(`DELETE FROM vo_sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
