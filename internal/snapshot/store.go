// Package snapshot persists the canonical identifier set of each
// reconciliation run, so later runs can diff against the published list.
package snapshot

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/pkg/errors"
	"github.com/openmedi/medirec/pkg/types/drug"
)

// Record is one canonical ingredient of a run's merged list.
type Record struct {
	NormalizedID string
	Label        string
}

// DB is the pgx surface the store uses. *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store reads and writes run snapshots.
type Store struct {
	db     DB
	logger logging.Logger
}

// NewStore wraps an open database handle.
func NewStore(db DB, log logging.Logger) *Store {
	return &Store{db: db, logger: log.Named("snapshot")}
}

// SaveSnapshot records the canonical list of one run. Saving the same run
// twice overwrites its records, so a rerun after a partial failure is safe.
func (s *Store) SaveSnapshot(ctx context.Context, runID string, records []Record) error {
	if runID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "run id is required")
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO snapshot_runs (run_id) VALUES ($1) ON CONFLICT (run_id) DO NOTHING`,
		runID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSnapshotStore, "record run")
	}

	stored := 0
	for _, rec := range records {
		if rec.NormalizedID == "" || drug.IsSentinel(rec.NormalizedID) {
			continue
		}
		_, err := s.db.Exec(ctx,
			`INSERT INTO snapshot_records (run_id, normalized_id, label) VALUES ($1, $2, $3)
			 ON CONFLICT (run_id, normalized_id) DO UPDATE SET label = EXCLUDED.label`,
			runID, rec.NormalizedID, rec.Label)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSnapshotStore,
				fmt.Sprintf("store record %s", rec.NormalizedID))
		}
		stored++
	}

	s.logger.Info("snapshot saved",
		logging.String("run_id", runID),
		logging.Int("records", stored))
	return nil
}

// LatestRunID returns the id of the most recent saved run.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT run_id FROM snapshot_runs ORDER BY created_at DESC, run_id DESC LIMIT 1`)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSnapshotStore, "query latest run")
	}
	defer rows.Close()

	if !rows.Next() {
		return "", errors.New(errors.ErrCodeSnapshotMissing, "no snapshots saved yet")
	}
	var runID string
	if err := rows.Scan(&runID); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSnapshotStore, "scan run id")
	}
	return runID, rows.Err()
}

// LatestIDSet loads the identifier set of the most recent run.
func (s *Store) LatestIDSet(ctx context.Context) (drug.IDSet, error) {
	runID, err := s.LatestRunID(ctx)
	if err != nil {
		return nil, err
	}
	return s.IDSet(ctx, runID)
}

// IDSet loads the identifier set saved for one run.
func (s *Store) IDSet(ctx context.Context, runID string) (drug.IDSet, error) {
	records, err := s.Records(ctx, runID)
	if err != nil {
		return nil, err
	}
	set := make(drug.IDSet, len(records))
	for _, rec := range records {
		set.Add(rec.NormalizedID)
	}
	return set, nil
}

// Records loads a run's full snapshot, labels included.
func (s *Store) Records(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT r.normalized_id, r.label
		   FROM snapshot_records r
		   JOIN snapshot_runs s ON s.run_id = r.run_id
		  WHERE r.run_id = $1
		  ORDER BY r.normalized_id`,
		runID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSnapshotStore, "query snapshot records")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.NormalizedID, &rec.Label); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSnapshotStore, "scan record")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSnapshotStore, "iterate records")
	}
	if len(records) == 0 {
		if exists, err := s.runExists(ctx, runID); err != nil {
			return nil, err
		} else if !exists {
			return nil, errors.New(errors.ErrCodeSnapshotMissing,
				fmt.Sprintf("run %s has no snapshot", runID))
		}
	}
	return records, nil
}

func (s *Store) runExists(ctx context.Context, runID string) (bool, error) {
	rows, err := s.db.Query(ctx,
		`SELECT 1 FROM snapshot_runs WHERE run_id = $1`, runID)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeSnapshotStore, "query run")
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}
