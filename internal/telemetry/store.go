// Package telemetry stores drive runs, per-frame ticks and phase transitions
// in SQLite for post-run analysis.
package telemetry

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("telemetry: run not found")

// Run statuses.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusAborted  = "aborted"
)

type Store struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies the
// embedded migrations.
func Open(path string) (*Store, error) {
	s, err := openRaw(path)
	if err != nil {
		return nil, err
	}
	if err := s.MigrateUp(MigrationsFS()); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// openRaw applies the connection pragmas on every pooled connection but
// leaves the schema alone.
func openRaw(path string) (*Store, error) {
	q := url.Values{}
	for _, p := range []string{
		"journal_mode(WAL)",
		"busy_timeout(5000)",
		"synchronous(NORMAL)",
		"temp_store(MEMORY)",
		"foreign_keys(ON)",
	} {
		q.Add("_pragma", p)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open telemetry db %s: %w", path, err)
	}
	return &Store{DB: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

type Run struct {
	ID         string     `json:"run_id"`
	Mode       string     `json:"mode"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	ConfigJSON string     `json:"config,omitempty"`
}

// Tick is one control-loop iteration.
type Tick struct {
	FrameID     uint64    `json:"frame_id"`
	At          time.Time `json:"at"`
	Phase       string    `json:"phase"`
	Outcome     string    `json:"outcome"`
	LaneOffset  int       `json:"lane_offset"`
	YellowCount int       `json:"yellow_count"`
	Stopline    bool      `json:"stopline"`
	Crosswalk   bool      `json:"crosswalk"`
	Startline   bool      `json:"startline"`
	Steering    float64   `json:"steering"`
	Throttle    float64   `json:"throttle"`
	Manual      bool      `json:"manual"`
}

// Transition is a recorded phase change.
type Transition struct {
	At      time.Time `json:"at"`
	FrameID uint64    `json:"frame_id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Manual  bool      `json:"manual"`
}

// StartRun inserts a new run row. cfg is stored as JSON when non-nil.
func (s *Store) StartRun(mode string, cfg any, at time.Time) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Mode:      mode,
		StartedAt: at,
		Status:    StatusRunning,
	}
	if cfg != nil {
		b, err := json.Marshal(cfg)
		if err != nil {
			return Run{}, fmt.Errorf("encode run config: %w", err)
		}
		run.ConfigJSON = string(b)
	}
	_, err := s.Exec(
		`INSERT INTO runs (run_id, mode, started_ns, status, config_json) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Mode, at.UnixNano(), run.Status, run.ConfigJSON,
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun stamps the end time and final status of a run.
func (s *Store) FinishRun(runID, status string, at time.Time) error {
	res, err := s.Exec(
		`UPDATE runs SET finished_ns = ?, status = ? WHERE run_id = ?`,
		at.UnixNano(), status, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// RecordTick stores one tick. A repeated frame id for the same run replaces
// the earlier row.
func (s *Store) RecordTick(runID string, t Tick) error {
	_, err := s.Exec(
		`INSERT OR REPLACE INTO ticks (
			run_id, frame_id, at_ns, phase, outcome, lane_offset, yellow_count,
			stopline, crosswalk, startline, steering, throttle, manual
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, int64(t.FrameID), t.At.UnixNano(), t.Phase, t.Outcome, t.LaneOffset, t.YellowCount,
		t.Stopline, t.Crosswalk, t.Startline, t.Steering, t.Throttle, t.Manual,
	)
	if err != nil {
		return fmt.Errorf("insert tick %d: %w", t.FrameID, err)
	}
	return nil
}

// RecordTransition stores one phase change.
func (s *Store) RecordTransition(runID string, tr Transition) error {
	_, err := s.Exec(
		`INSERT INTO transitions (run_id, at_ns, frame_id, from_phase, to_phase, manual)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, tr.At.UnixNano(), int64(tr.FrameID), tr.From, tr.To, tr.Manual,
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

const runColumns = `run_id, mode, started_ns, finished_ns, status, COALESCE(config_json, '')`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Mode, &started, &finished, &r.Status, &r.ConfigJSON); err != nil {
		return Run{}, err
	}
	r.StartedAt = time.Unix(0, started)
	if finished.Valid {
		t := time.Unix(0, finished.Int64)
		r.FinishedAt = &t
	}
	return r, nil
}

// Run returns a single run by id.
func (s *Store) Run(runID string) (Run, error) {
	r, err := scanRun(s.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return r, err
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun() (Run, error) {
	r, err := scanRun(s.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY started_ns DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return r, err
}

// Runs lists runs newest first. limit <= 0 returns every run.
func (s *Store) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Ticks returns a run's ticks in frame order.
func (s *Store) Ticks(runID string) ([]Tick, error) {
	rows, err := s.Query(
		`SELECT frame_id, at_ns, phase, outcome, lane_offset, yellow_count,
			stopline, crosswalk, startline, steering, throttle, manual
		FROM ticks WHERE run_id = ? ORDER BY frame_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []Tick
	for rows.Next() {
		var (
			t       Tick
			frameID int64
			at      int64
		)
		if err := rows.Scan(&frameID, &at, &t.Phase, &t.Outcome, &t.LaneOffset, &t.YellowCount,
			&t.Stopline, &t.Crosswalk, &t.Startline, &t.Steering, &t.Throttle, &t.Manual); err != nil {
			return nil, err
		}
		t.FrameID = uint64(frameID)
		t.At = time.Unix(0, at)
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// Transitions returns a run's phase changes in order.
func (s *Store) Transitions(runID string) ([]Transition, error) {
	rows, err := s.Query(
		`SELECT at_ns, frame_id, from_phase, to_phase, manual
		FROM transitions WHERE run_id = ? ORDER BY at_ns, transition_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			tr      Transition
			at      int64
			frameID int64
		)
		if err := rows.Scan(&at, &frameID, &tr.From, &tr.To, &tr.Manual); err != nil {
			return nil, err
		}
		tr.At = time.Unix(0, at)
		tr.FrameID = uint64(frameID)
		out = append(out, tr)
	}
	return out, rows.Err()
}
