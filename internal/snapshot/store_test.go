package snapshot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/pkg/errors"
)

// fakeDB keeps snapshots in memory and routes the store's statements by
// the table they touch.
type fakeDB struct {
	runOrder []string
	records  map[string]map[string]string
	execErr  error
}

func newFakeDB() *fakeDB {
	return &fakeDB{records: map[string]map[string]string{}}
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	switch {
	case strings.Contains(sql, "INSERT INTO snapshot_runs"):
		runID := args[0].(string)
		if _, ok := f.records[runID]; !ok {
			f.records[runID] = map[string]string{}
			f.runOrder = append(f.runOrder, runID)
		}
	case strings.Contains(sql, "INSERT INTO snapshot_records"):
		runID := args[0].(string)
		f.records[runID][args[1].(string)] = args[2].(string)
	default:
		return pgconn.CommandTag{}, fmt.Errorf("unexpected exec: %s", sql)
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	switch {
	case strings.Contains(sql, "ORDER BY created_at"):
		if len(f.runOrder) == 0 {
			return &fakeRows{}, nil
		}
		latest := f.runOrder[len(f.runOrder)-1]
		return &fakeRows{data: [][]string{{latest}}}, nil
	case strings.Contains(sql, "SELECT r.normalized_id"):
		recs, ok := f.records[args[0].(string)]
		if !ok {
			return &fakeRows{}, nil
		}
		ids := make([]string, 0, len(recs))
		for id := range recs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		rows := &fakeRows{}
		for _, id := range ids {
			rows.data = append(rows.data, []string{id, recs[id]})
		}
		return rows, nil
	case strings.Contains(sql, "SELECT 1 FROM snapshot_runs"):
		if _, ok := f.records[args[0].(string)]; ok {
			return &fakeRows{data: [][]string{{"1"}}}, nil
		}
		return &fakeRows{}, nil
	}
	return nil, fmt.Errorf("unexpected query: %s", sql)
}

type fakeRows struct {
	data [][]string
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	for i, d := range dest {
		*(d.(*string)) = row[i]
	}
	return nil
}

func TestStore_SaveAndLoad(t *testing.T) {
	db := newFakeDB()
	store := NewStore(db, logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, store.SaveSnapshot(ctx, "run-1", []Record{
		{NormalizedID: "CHEBI:15365", Label: "aspirin"},
		{NormalizedID: "CHEBI:5855", Label: "ibuprofen"},
	}))

	set, err := store.IDSet(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, set.Has("CHEBI:15365"))
	assert.True(t, set.Has("CHEBI:5855"))
	assert.Len(t, set, 2)
}

func TestStore_SaveSkipsSentinels(t *testing.T) {
	db := newFakeDB()
	store := NewStore(db, logging.NewNopLogger())

	require.NoError(t, store.SaveSnapshot(context.Background(), "run-1", []Record{
		{NormalizedID: "CHEBI:1"},
		{NormalizedID: "Error"},
		{NormalizedID: "NONE"},
		{NormalizedID: ""},
	}))
	assert.Len(t, db.records["run-1"], 1)
}

func TestStore_LatestIDSet(t *testing.T) {
	db := newFakeDB()
	store := NewStore(db, logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, store.SaveSnapshot(ctx, "run-1", []Record{{NormalizedID: "CHEBI:1"}}))
	require.NoError(t, store.SaveSnapshot(ctx, "run-2", []Record{{NormalizedID: "CHEBI:2"}}))

	set, err := store.LatestIDSet(ctx)
	require.NoError(t, err)
	assert.True(t, set.Has("CHEBI:2"))
	assert.False(t, set.Has("CHEBI:1"))
}

func TestStore_LatestIDSet_Empty(t *testing.T) {
	store := NewStore(newFakeDB(), logging.NewNopLogger())

	_, err := store.LatestIDSet(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSnapshotMissing))
}

func TestStore_IDSet_UnknownRun(t *testing.T) {
	store := NewStore(newFakeDB(), logging.NewNopLogger())

	_, err := store.IDSet(context.Background(), "no-such-run")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSnapshotMissing))
}

func TestStore_Records_EmptyRunIsNotMissing(t *testing.T) {
	db := newFakeDB()
	store := NewStore(db, logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, store.SaveSnapshot(ctx, "run-1", nil))
	records, err := store.Records(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_SaveSnapshot_DBFailure(t *testing.T) {
	db := newFakeDB()
	db.execErr = fmt.Errorf("connection reset")
	store := NewStore(db, logging.NewNopLogger())

	err := store.SaveSnapshot(context.Background(), "run-1", []Record{{NormalizedID: "CHEBI:1"}})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSnapshotStore))
}

func TestStore_SaveSnapshot_RequiresRunID(t *testing.T) {
	store := NewStore(newFakeDB(), logging.NewNopLogger())

	err := store.SaveSnapshot(context.Background(), "", nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}
