// Package store persists sampled datasets and rollout results in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	// registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"go.viam.com/balance/environment"
	"go.viam.com/balance/logging"
	"go.viam.com/balance/rollout"
	"go.viam.com/balance/sysid"
)

// ErrNotFound is returned when a record id is unknown.
var ErrNotFound = errors.New("record not found")

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
	id         TEXT PRIMARY KEY,
	env        TEXT NOT NULL,
	created_at TEXT NOT NULL,
	samples    INTEGER NOT NULL,
	payload    BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	env         TEXT NOT NULL,
	policy      TEXT NOT NULL,
	dataset_id  TEXT,
	created_at  TEXT NOT NULL,
	episodes    INTEGER NOT NULL,
	mean_length REAL NOT NULL,
	gain        TEXT NOT NULL,
	summary     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_env ON runs (env, created_at);
`

// RunRecord is a stored closed loop evaluation.
type RunRecord struct {
	ID        string          `json:"id"`
	Env       string          `json:"env"`
	Policy    string          `json:"policy"`
	DatasetID string          `json:"dataset_id,omitempty"`
	Gain      [][]float64     `json:"gain,omitempty"`
	Summary   rollout.Summary `json:"summary"`
	CreatedAt time.Time       `json:"created_at"`
}

// DatasetInfo describes a stored dataset without its transitions.
type DatasetInfo struct {
	ID        string
	Env       string
	Samples   int
	CreatedAt time.Time
}

// Store is a SQLite backed store.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(ctx context.Context, path string, logger logging.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	// a single connection keeps writes serialized
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "failed to open %s", path), db.Close())
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "failed to create tables"), db.Close())
	}
	logger.Debugw("opened store", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveDataset stores ds, assigning it a new id when it has none, and returns the id.
func (s *Store) SaveDataset(ctx context.Context, ds *sysid.Dataset) (string, error) {
	if ds.ID == "" {
		ds.ID = uuid.NewString()
	}
	payload, err := json.Marshal(ds.Transitions)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode transitions")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO datasets (id, env, created_at, samples, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			env = excluded.env,
			samples = excluded.samples,
			payload = excluded.payload
	`, ds.ID, ds.Env, time.Now().UTC().Format(time.RFC3339Nano), ds.Len(), payload)
	if err != nil {
		return "", errors.Wrapf(err, "failed to save dataset %s", ds.ID)
	}
	s.logger.Debugw("saved dataset", "id", ds.ID, "samples", ds.Len())
	return ds.ID, nil
}

// LoadDataset returns the dataset with the given id.
func (s *Store) LoadDataset(ctx context.Context, id string) (*sysid.Dataset, error) {
	var env string
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT env, payload FROM datasets WHERE id = ?`, id).Scan(&env, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "dataset %s", id)
		}
		return nil, err
	}
	var transitions []environment.Transition
	if err := json.Unmarshal(payload, &transitions); err != nil {
		return nil, errors.Wrapf(err, "failed to decode dataset %s", id)
	}
	return &sysid.Dataset{ID: id, Env: env, Transitions: transitions}, nil
}

// ListDatasets returns the stored datasets, newest first.
func (s *Store) ListDatasets(ctx context.Context) ([]DatasetInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, env, samples, created_at FROM datasets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warnw("failed to close rows", "error", err)
		}
	}()
	var out []DatasetInfo
	for rows.Next() {
		var info DatasetInfo
		var created string
		if err := rows.Scan(&info.ID, &info.Env, &info.Samples, &created); err != nil {
			return nil, err
		}
		if info.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// SaveRun stores run, assigning it a new id and creation time when missing, and returns the id.
func (s *Store) SaveRun(ctx context.Context, run *RunRecord) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	gain, err := json.Marshal(run.Gain)
	if err != nil {
		return "", err
	}
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, env, policy, dataset_id, created_at, episodes, mean_length, gain, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Env, run.Policy, nullable(run.DatasetID), run.CreatedAt.UTC().Format(time.RFC3339Nano),
		run.Summary.Episodes, run.Summary.MeanLength, string(gain), string(summary))
	if err != nil {
		return "", errors.Wrapf(err, "failed to save run %s", run.ID)
	}
	return run.ID, nil
}

// ListRuns returns the stored runs, newest first. An empty env lists every environment.
func (s *Store) ListRuns(ctx context.Context, env string) ([]RunRecord, error) {
	query := `SELECT id, env, policy, dataset_id, created_at, gain, summary FROM runs`
	var args []interface{}
	if env != "" {
		query += ` WHERE env = ?`
		args = append(args, env)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warnw("failed to close rows", "error", err)
		}
	}()
	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var datasetID sql.NullString
		var created, gain, summary string
		if err := rows.Scan(&rec.ID, &rec.Env, &rec.Policy, &datasetID, &created, &gain, &summary); err != nil {
			return nil, err
		}
		rec.DatasetID = datasetID.String
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(gain), &rec.Gain); err != nil {
			return nil, errors.Wrapf(err, "failed to decode gain of run %s", rec.ID)
		}
		if err := json.Unmarshal([]byte(summary), &rec.Summary); err != nil {
			return nil, errors.Wrapf(err, "failed to decode summary of run %s", rec.ID)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
