// Package db is the sentry detection log: one row per run, the background
// profile it froze, and every command it sent. The log is diagnostic; nothing
// in it is read back into a running session.
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/sentry/internal/httputil"
	"github.com/banshee-data/sentry/internal/monitoring"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type DB struct {
	*sql.DB
	path string
}

// pragmas are applied to every database opened by OpenDB.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// OpenDB opens (creating if needed) the sqlite database at path and migrates
// it to the latest schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps the per-connection pragmas in force.
	sqlDB.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Session is one run of the detector.
type Session struct {
	ID         string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
	Version    string    `json:"version"`
	ConfigJSON string    `json:"config_json"`
}

// CreateSession inserts a new session with a fresh ID.
func (db *DB) CreateSession(startedAt time.Time, version, configJSON string) (*Session, error) {
	if configJSON == "" {
		configJSON = "{}"
	}
	s := &Session{
		ID:         uuid.NewString(),
		StartedAt:  startedAt,
		Version:    version,
		ConfigJSON: configJSON,
	}
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, started_unix_nanos, version, config_json) VALUES (?, ?, ?, ?)`,
		s.ID, s.StartedAt.UnixNano(), s.Version, s.ConfigJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return s, nil
}

// GetSession returns the session with the given ID.
func (db *DB) GetSession(id string) (*Session, error) {
	return db.scanSession(db.QueryRow(
		`SELECT session_id, started_unix_nanos, version, config_json FROM sessions WHERE session_id = ?`, id))
}

// LatestSession returns the most recently started session.
func (db *DB) LatestSession() (*Session, error) {
	return db.scanSession(db.QueryRow(
		`SELECT session_id, started_unix_nanos, version, config_json FROM sessions
		 ORDER BY started_unix_nanos DESC LIMIT 1`))
}

func (db *DB) scanSession(row *sql.Row) (*Session, error) {
	var s Session
	var started int64
	if err := row.Scan(&s.ID, &started, &s.Version, &s.ConfigJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.StartedAt = time.Unix(0, started)
	return &s, nil
}

// Calibration is the frozen background profile of a session.
type Calibration struct {
	SessionID    string          `json:"session_id"`
	FrozenAt     time.Time       `json:"frozen_at"`
	WarmupFrames int             `json:"warmup_frames"`
	Profile      []int           `json:"profile"`
	Report       json.RawMessage `json:"report"`
}

// RecordCalibration stores the profile a session froze. A session freezes
// exactly once, so a second call for the same session fails.
func (db *DB) RecordCalibration(c Calibration) error {
	profileJSON, err := json.Marshal(c.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	report := c.Report
	if len(report) == 0 {
		report = json.RawMessage("{}")
	}
	_, err = db.Exec(
		`INSERT INTO calibrations (session_id, frozen_unix_nanos, warmup_frames, profile_json, report_json)
		 VALUES (?, ?, ?, ?, ?)`,
		c.SessionID, c.FrozenAt.UnixNano(), c.WarmupFrames, string(profileJSON), string(report),
	)
	if err != nil {
		return fmt.Errorf("failed to insert calibration: %w", err)
	}
	return nil
}

// GetCalibration returns the calibration recorded for a session.
func (db *DB) GetCalibration(sessionID string) (*Calibration, error) {
	var c Calibration
	var frozen int64
	var profileJSON, reportJSON string
	err := db.QueryRow(
		`SELECT session_id, frozen_unix_nanos, warmup_frames, profile_json, report_json
		 FROM calibrations WHERE session_id = ?`, sessionID,
	).Scan(&c.SessionID, &frozen, &c.WarmupFrames, &profileJSON, &reportJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(profileJSON), &c.Profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	c.FrozenAt = time.Unix(0, frozen)
	c.Report = json.RawMessage(reportJSON)
	return &c, nil
}

// Detection is one command sent to the actuator.
type Detection struct {
	SessionID   string    `json:"session_id"`
	FrameSeq    uint64    `json:"frame_seq"`
	TakenAt     time.Time `json:"taken_at"`
	Command     byte      `json:"command"`
	TargetIndex int       `json:"target_index"`
	Fire        bool      `json:"fire"`
	Distance    int       `json:"distance"`
	Reference   int       `json:"reference"`
}

func (d *Detection) String() string {
	return fmt.Sprintf("seq=%d cmd=0x%02x index=%d fire=%t distance=%d reference=%d",
		d.FrameSeq, d.Command, d.TargetIndex, d.Fire, d.Distance, d.Reference)
}

// RecordDetection appends a detection row.
func (db *DB) RecordDetection(d Detection) error {
	_, err := db.Exec(
		`INSERT INTO detections (session_id, frame_seq, taken_unix_nanos, command, target_index, fire, distance, reference)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SessionID, int64(d.FrameSeq), d.TakenAt.UnixNano(), int(d.Command), d.TargetIndex, d.Fire, d.Distance, d.Reference,
	)
	if err != nil {
		return fmt.Errorf("failed to insert detection: %w", err)
	}
	return nil
}

// Detections returns up to limit detections for a session in frame order.
// A limit of zero or less returns all of them.
func (db *DB) Detections(sessionID string, limit int) ([]Detection, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := db.Query(
		`SELECT session_id, frame_seq, taken_unix_nanos, command, target_index, fire, distance, reference
		 FROM detections WHERE session_id = ? ORDER BY frame_seq ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Detection
	for rows.Next() {
		var d Detection
		var seq, taken int64
		var cmd int
		if err := rows.Scan(&d.SessionID, &seq, &taken, &cmd, &d.TargetIndex, &d.Fire, &d.Distance, &d.Reference); err != nil {
			return nil, err
		}
		d.FrameSeq = uint64(seq)
		d.TakenAt = time.Unix(0, taken)
		d.Command = byte(cmd)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DetectionStats counts the detections and fires recorded for a session.
func (db *DB) DetectionStats(sessionID string) (total, fires int, err error) {
	err = db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(fire), 0) FROM detections WHERE session_id = ?`, sessionID,
	).Scan(&total, &fires)
	return total, fires, err
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Sentry detection log",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("detections", "Recent detections of the latest session (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !httputil.AllowMethods(w, r, http.MethodGet) {
			return
		}
		session, err := db.LatestSession()
		if err != nil {
			httputil.WriteJSONError(w, http.StatusNotFound, fmt.Sprintf("no session: %v", err))
			return
		}
		dets, err := db.Detections(session.ID, 0)
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query detections: %v", err))
			return
		}
		if len(dets) > 200 {
			dets = dets[len(dets)-200:]
		}
		httputil.WriteJSON(w, http.StatusOK, struct {
			Session    *Session    `json:"session"`
			Detections []Detection `json:"detections"`
		}{session, dets})
	}))
}
