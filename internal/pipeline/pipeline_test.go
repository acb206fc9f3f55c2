package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmedi/medirec/internal/config"
	"github.com/openmedi/medirec/internal/engine/diffver"
	"github.com/openmedi/medirec/internal/engine/expand"
	"github.com/openmedi/medirec/internal/engine/merge"
	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/internal/normalize"
	"github.com/openmedi/medirec/internal/resolve"
	"github.com/openmedi/medirec/internal/snapshot"
	"github.com/openmedi/medirec/internal/tabular"
	"github.com/openmedi/medirec/pkg/errors"
	"github.com/openmedi/medirec/pkg/types/drug"
)

type stubResolver struct {
	curies map[string]string
}

func (s *stubResolver) Resolve(_ context.Context, name string) (resolve.Resolution, error) {
	if curie, ok := s.curies[name]; ok {
		return resolve.Resolution{CURIE: curie, Label: name}, nil
	}
	return resolve.Resolution{CURIE: drug.ErrorSentinel, Label: drug.ErrorSentinel},
		errors.New(errors.ErrCodeUnresolved, "no candidates for "+name)
}

type stubNormalizer struct {
	norms map[string]string
}

func (s *stubNormalizer) Normalize(_ context.Context, id string) (normalize.Normalization, error) {
	if norm, ok := s.norms[id]; ok {
		return normalize.Normalization{ID: norm, Label: strings.ToLower(norm), AlternateIDs: []string{norm, id}}, nil
	}
	return normalize.Normalization{ID: drug.NoneSentinel, Label: drug.NoneSentinel},
		errors.New(errors.ErrCodeNormalizationFailed, "unknown id "+id)
}

type stubSplitter struct{}

func (stubSplitter) Split(_ context.Context, productName string) ([]string, error) {
	parts := strings.Split(productName, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

type stubTagger struct {
	verdicts map[string]map[string]string
}

func (s *stubTagger) Tag(_ context.Context, label string, features []string) (map[string]string, []error) {
	if v, ok := s.verdicts[label]; ok {
		return v, nil
	}
	all := make(map[string]string, len(features))
	for _, f := range features {
		all[f] = "false"
	}
	return all, nil
}

type memorySnapshots struct {
	runs  []string
	saved map[string][]snapshot.Record
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{saved: map[string][]snapshot.Record{}}
}

func (m *memorySnapshots) SaveSnapshot(_ context.Context, runID string, records []snapshot.Record) error {
	m.runs = append(m.runs, runID)
	m.saved[runID] = records
	return nil
}

func (m *memorySnapshots) LatestIDSet(_ context.Context) (drug.IDSet, error) {
	if len(m.runs) == 0 {
		return nil, errors.New(errors.ErrCodeSnapshotMissing, "empty store")
	}
	set := drug.NewIDSet()
	for _, rec := range m.saved[m.runs[len(m.runs)-1]] {
		set.Add(rec.NormalizedID)
	}
	return set, nil
}

const comboName = "amlodipine; valsartan"

func testSources() []Source {
	fda := tabular.New(drug.ColSourceName)
	fda.Append(tabular.Row{drug.ColSourceName: "aspirin"})
	fda.Append(tabular.Row{drug.ColSourceName: comboName})

	ema := tabular.New(drug.ColSourceName)
	ema.Append(tabular.Row{drug.ColSourceName: "acetylsalicylic acid"})
	ema.Append(tabular.Row{drug.ColSourceName: "fluzone"})

	return []Source{
		{Name: "fda", Region: drug.RegionUSA, Table: fda},
		{Name: "ema", Region: drug.RegionEUR, Table: ema},
	}
}

func testPipeline(t *testing.T, mode string, opts ...Option) *Pipeline {
	t.Helper()
	log := logging.NewNopLogger()

	resolver := &stubResolver{curies: map[string]string{
		"aspirin":              "CHEBI:A1",
		"acetylsalicylic acid": "CHEBI:A2",
		comboName:              "CHEBI:C1",
		"amlodipine":           "CHEBI:AM",
		"valsartan":            "CHEBI:VA",
		"fluzone":              "CHEBI:FZ",
	}}
	normalizer := &stubNormalizer{norms: map[string]string{
		"CHEBI:A1": "NORM:ASP",
		"CHEBI:A2": "NORM:ASP",
		"CHEBI:C1": "NORM:C1",
		"CHEBI:AM": "NORM:AM",
		"CHEBI:VA": "NORM:VA",
		"CHEBI:FZ": "NORM:FZ",
	}}
	tagger := &stubTagger{verdicts: map[string]map[string]string{
		comboName: {"combination_therapy": "true"},
		"fluzone": {"vaccine": "true"},
	}}

	expander := expand.New(stubSplitter{}, resolver, expand.Config{}, log)
	merger := merge.New(drug.ColNormalizedID, log)

	cfg := config.PipelineConfig{Mode: mode, OutputDir: t.TempDir(), PoolWidth: 2}
	opts = append([]Option{WithTagger(tagger)}, opts...)
	return New(resolver, normalizer, expander, merger, cfg, log, opts...)
}

func normalizedIDs(t *tabular.Table) map[string]bool {
	ids := map[string]bool{}
	for _, row := range t.Rows {
		if id, ok := row.Get(drug.ColNormalizedID); ok {
			ids[id] = true
		}
	}
	return ids
}

func TestRun_Flexible(t *testing.T) {
	p := testPipeline(t, config.ModeFlexible)

	res, err := p.Run(context.Background(), testSources())
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	ids := normalizedIDs(res.Merged)
	assert.True(t, ids["NORM:ASP"], "cross-source rows merge on normalized id")
	assert.True(t, ids["NORM:C1"], "combination parent survives")
	assert.True(t, ids["NORM:AM"], "synthesized component present")
	assert.True(t, ids["NORM:VA"])
	assert.False(t, ids["NORM:FZ"], "vaccine row dropped by tag filter")
	assert.Len(t, ids, 4)
}

func TestRun_MergesApprovalColumns(t *testing.T) {
	p := testPipeline(t, config.ModeFlexible)

	res, err := p.Run(context.Background(), testSources())
	require.NoError(t, err)

	for _, row := range res.Merged.Rows {
		if id, _ := row.Get(drug.ColNormalizedID); id != "NORM:ASP" {
			continue
		}
		usa, _ := row.Get(drug.ApprovedColumn(drug.RegionUSA))
		eur, _ := row.Get(drug.ApprovedColumn(drug.RegionEUR))
		assert.Equal(t, "true", usa)
		assert.Equal(t, "true", eur)
		return
	}
	t.Fatal("merged aspirin row not found")
}

func TestProcessSource_KeepsAccumulatedColumns(t *testing.T) {
	p := testPipeline(t, config.ModeFlexible)
	collect := func(string, string, []tabular.RowError) {}

	out, _, err := p.processSource(context.Background(), testSources()[0], collect)
	require.NoError(t, err)

	for _, col := range []string{
		drug.ColSourceName,
		drug.ColProvenance,
		drug.ApprovedColumn(drug.RegionUSA),
		drug.ColCanonicalID,
		drug.ColCanonicalLabel,
		drug.ColNormalizedID,
		drug.ColNormalizedLabel,
	} {
		assert.True(t, out.HasColumn(col), "column %s must survive the rename stages", col)
	}
	prov, _ := out.Rows[0].Get(drug.ColProvenance)
	assert.Equal(t, "fda", prov)
	usa, _ := out.Rows[0].Get(drug.ApprovedColumn(drug.RegionUSA))
	assert.Equal(t, "true", usa)
}

func TestRun_Stringent(t *testing.T) {
	p := testPipeline(t, config.ModeStringent)

	res, err := p.Run(context.Background(), testSources())
	require.NoError(t, err)

	ids := normalizedIDs(res.Merged)
	assert.True(t, ids["NORM:ASP"], "approved in every tracked region")
	assert.Len(t, ids, 1, "single-region rows excluded under stringent mode")
}

func TestRun_WritesOutputs(t *testing.T) {
	p := testPipeline(t, config.ModeFlexible)

	res, err := p.Run(context.Background(), testSources())
	require.NoError(t, err)

	for _, path := range []string{res.MergedPath, res.ErrorsPath} {
		require.NotEmpty(t, path)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	}
}

func TestRun_CollectsRowErrors(t *testing.T) {
	p := testPipeline(t, config.ModeFlexible)

	sources := testSources()
	sources[0].Table.Append(tabular.Row{drug.ColSourceName: "mysteron"})

	res, err := p.Run(context.Background(), sources)
	require.NoError(t, err, "row failures never fail the run")
	assert.Greater(t, res.ErrorCount, 0)

	stages := map[string]bool{}
	for _, row := range res.Errors.Rows {
		stage, _ := row.Get("stage")
		stages[stage] = true
	}
	assert.True(t, stages["resolve"], "resolution failure lands in the errors table")
}

func TestRun_SnapshotAndDiff(t *testing.T) {
	store := newMemorySnapshots()
	comparator := diffver.New(logging.NewNopLogger())
	ctx := context.Background()

	p := testPipeline(t, config.ModeFlexible, WithSnapshotStore(store), WithComparator(comparator))
	first, err := p.Run(ctx, testSources())
	require.NoError(t, err)

	require.NotNil(t, first.Diff)
	assert.Len(t, first.Diff.Added, 4, "first run diffs against an empty set")
	assert.Empty(t, first.Diff.Removed)
	require.Len(t, store.runs, 1)

	second, err := p.Run(ctx, testSources())
	require.NoError(t, err)
	require.NotNil(t, second.Diff)
	assert.Empty(t, second.Diff.Added)
	assert.Empty(t, second.Diff.Removed)
	assert.Len(t, second.Diff.Unchanged, 4)
}

func TestRun_NoSources(t *testing.T) {
	p := testPipeline(t, config.ModeFlexible)

	_, err := p.Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeEmptyInput))
}

func TestRun_MissingNameColumn(t *testing.T) {
	p := testPipeline(t, config.ModeFlexible)

	bad := tabular.New("ingredient")
	bad.Append(tabular.Row{"ingredient": "aspirin"})
	_, err := p.Run(context.Background(), []Source{{Name: "fda", Table: bad}})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSchemaError))
}

func TestFilterTagged(t *testing.T) {
	tbl := tabular.New(drug.ColNormalizedID, tagColumn("vaccine"), tagColumn("allergen"))
	tbl.Append(tabular.Row{drug.ColNormalizedID: "NORM:1", tagColumn("vaccine"): "false"})
	tbl.Append(tabular.Row{drug.ColNormalizedID: "NORM:2", tagColumn("vaccine"): "false| true"})
	tbl.Append(tabular.Row{drug.ColNormalizedID: "NORM:3", tagColumn("allergen"): "true"})
	tbl.Append(tabular.Row{drug.ColNormalizedID: "NORM:4"})

	out, dropped := filterTagged(tbl)
	assert.Equal(t, 2, dropped)
	ids := normalizedIDs(out)
	assert.True(t, ids["NORM:1"])
	assert.True(t, ids["NORM:4"], "untagged rows are kept")
	assert.False(t, ids["NORM:2"], "one true verdict among merged sources drops the row")
}

func TestFilterApproved_NoRegionColumnsPassesThrough(t *testing.T) {
	tbl := tabular.New(drug.ColNormalizedID)
	tbl.Append(tabular.Row{drug.ColNormalizedID: "NORM:1"})

	out := filterApproved(tbl, config.ModeStringent)
	assert.Equal(t, 1, out.Len())
}

func TestTagStage_DefaultsCombinationColumn(t *testing.T) {
	p := testPipeline(t, config.ModeFlexible)
	p.tagger = nil

	tbl := tabular.New(drug.ColSourceName)
	tbl.Append(tabular.Row{drug.ColSourceName: "aspirin"})

	out, errs := p.tagStage(context.Background(), tbl)
	assert.Empty(t, errs)
	v, _ := out.Rows[0].Get(drug.ColIsCombination)
	assert.Equal(t, "false", v)
}

func TestTagStage_FieldErrorsAreCollectedNotFatal(t *testing.T) {
	p := testPipeline(t, config.ModeFlexible)
	p.tagger = &failingTagger{}

	tbl := tabular.New(drug.ColSourceName)
	tbl.Append(tabular.Row{drug.ColSourceName: "aspirin"})

	out, errs := p.tagStage(context.Background(), tbl)
	require.Len(t, errs, 1)
	assert.True(t, errors.IsCode(errs[0].Err, errors.ErrCodeTagMalformed))
	v, _ := out.Rows[0].Get(drug.ColIsCombination)
	assert.Equal(t, "false", v, "missing verdict falls back to false")
}

type failingTagger struct{}

func (failingTagger) Tag(_ context.Context, label string, _ []string) (map[string]string, []error) {
	return nil, []error{errors.New(errors.ErrCodeTagMalformed, fmt.Sprintf("no verdicts for %s", label))}
}
