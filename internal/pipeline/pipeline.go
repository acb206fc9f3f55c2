// Package pipeline composes the reconciliation stages into one run: each
// source table is resolved, tagged, expanded, and normalized, then every
// source is merged, filtered, enriched, and written out. Row-level
// failures never stop a run; they are collected into a side errors table.
// Schema and empty-input failures are fatal.
package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/openmedi/medirec/internal/config"
	"github.com/openmedi/medirec/internal/engine/diffver"
	"github.com/openmedi/medirec/internal/engine/expand"
	"github.com/openmedi/medirec/internal/engine/merge"
	"github.com/openmedi/medirec/internal/enrich"
	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/internal/infrastructure/monitoring/prometheus"
	"github.com/openmedi/medirec/internal/normalize"
	"github.com/openmedi/medirec/internal/resolve"
	"github.com/openmedi/medirec/internal/snapshot"
	"github.com/openmedi/medirec/internal/source"
	"github.com/openmedi/medirec/internal/tabular"
	"github.com/openmedi/medirec/pkg/errors"
	"github.com/openmedi/medirec/pkg/types/drug"
)

// Source is one regulatory registry's preprocessed table, already renamed
// into the canonical schema with source_ingredient_name populated.
type Source struct {
	Name   string
	Region drug.Region
	Table  *tabular.Table
}

// Tagger asks for boolean drug features; llm.Tagger satisfies it.
type Tagger interface {
	Tag(ctx context.Context, label string, features []string) (map[string]string, []error)
}

// SnapshotStore persists each run's canonical id set.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, runID string, records []snapshot.Record) error
	LatestIDSet(ctx context.Context) (drug.IDSet, error)
}

// Archiver uploads run artifacts to object storage.
type Archiver interface {
	Store(ctx context.Context, runID, artifact string, r io.Reader, size int64) error
}

// Pipeline owns the stage collaborators for one configured deployment.
type Pipeline struct {
	resolver   resolve.NameResolver
	normalizer normalize.Normalizer
	expander   *expand.Expander
	merger     *merge.Merger
	tagger     Tagger
	comparator *diffver.Comparator
	atc        *enrich.ATCResolver
	structures enrich.StructureSource
	snapshots  SnapshotStore
	archiver   Archiver
	metrics    *prometheus.Metrics
	cfg        config.PipelineConfig
	logger     logging.Logger
}

// Option wires an optional collaborator into the pipeline.
type Option func(*Pipeline)

// WithTagger enables LLM feature tagging and the tag-driven filters.
func WithTagger(t Tagger) Option {
	return func(p *Pipeline) { p.tagger = t }
}

// WithComparator enables the version diff against the previous snapshot.
func WithComparator(c *diffver.Comparator) Option {
	return func(p *Pipeline) { p.comparator = c }
}

// WithATCResolver enables ATC enrichment of the merged list.
func WithATCResolver(r *enrich.ATCResolver) Option {
	return func(p *Pipeline) { p.atc = r }
}

// WithStructureSource enables SMILES enrichment of the merged list.
func WithStructureSource(s enrich.StructureSource) Option {
	return func(p *Pipeline) { p.structures = s }
}

// WithSnapshotStore enables per-run snapshot persistence.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(p *Pipeline) { p.snapshots = s }
}

// WithArchiver enables object storage archival of run outputs.
func WithArchiver(a Archiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

// WithMetrics enables run metrics recording.
func WithMetrics(m *prometheus.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New builds a pipeline. Resolver, normalizer, expander, and merger are
// mandatory; everything else is optional and skipped when absent.
func New(r resolve.NameResolver, n normalize.Normalizer, e *expand.Expander, m *merge.Merger,
	cfg config.PipelineConfig, log logging.Logger, opts ...Option) *Pipeline {
	if cfg.Mode == "" {
		cfg.Mode = config.ModeStringent
	}
	if cfg.PoolWidth < 1 {
		cfg.PoolWidth = enrich.DefaultPoolWidth
	}
	p := &Pipeline{
		resolver:   r,
		normalizer: n,
		expander:   e,
		merger:     m,
		cfg:        cfg,
		logger:     log.Named("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StageErrors groups the recoverable failures of one stage of one source.
type StageErrors struct {
	Stage  string
	Source string
	Errs   []tabular.RowError
}

// Result is the outcome of one reconciliation run.
type Result struct {
	RunID      string
	Merged     *tabular.Table
	Errors     *tabular.Table
	ErrorCount int
	Diff       *diffver.Result
	MergedPath string
	ErrorsPath string
	Duration   time.Duration
}

// Run executes one full reconciliation over the given sources.
func (p *Pipeline) Run(ctx context.Context, sources []Source) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := p.logger.With(logging.String("run_id", runID))

	res, err := p.run(ctx, runID, sources, log)
	elapsed := time.Since(start)
	if err != nil {
		p.observeRun("failed", elapsed)
		log.Error("run failed", logging.Err(err), logging.Duration("elapsed", elapsed))
		return nil, err
	}
	res.Duration = elapsed
	p.observeRun("success", elapsed)
	log.Info("run complete",
		logging.Int("rows", res.Merged.Len()),
		logging.Int("row_errors", res.ErrorCount),
		logging.Duration("elapsed", elapsed))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, runID string, sources []Source, log logging.Logger) (*Result, error) {
	if len(sources) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyInput, "no source tables given")
	}

	var stageErrs []StageErrors
	collect := func(stage, src string, errs []tabular.RowError) {
		if len(errs) == 0 {
			return
		}
		stageErrs = append(stageErrs, StageErrors{Stage: stage, Source: src, Errs: errs})
		p.countErrors(stage, len(errs))
	}

	canonical := make([]*tabular.Table, 0, len(sources))
	for _, src := range sources {
		t, errs, err := p.processSource(ctx, src, collect)
		if err != nil {
			return nil, err
		}
		collect("normalize", src.Name, errs)
		canonical = append(canonical, t)
	}

	merged, err := p.merger.Merge(canonical...)
	if err != nil {
		return nil, err
	}
	p.countRows("merge", merged.Len())

	filtered, dropped := filterTagged(merged)
	filtered = filterApproved(filtered, p.cfg.Mode)
	if n := merged.Len() - filtered.Len(); n > 0 {
		log.Info("terminal filters applied",
			logging.Int("tag_dropped", dropped),
			logging.Int("region_dropped", n-dropped))
	}

	filtered, errs, err := p.enrichStage(ctx, filtered)
	if err != nil {
		return nil, err
	}
	collect("enrich", "", errs)

	result := &Result{
		RunID:  runID,
		Merged: filtered,
		Errors: errorsTable(stageErrs),
	}
	for _, se := range stageErrs {
		result.ErrorCount += len(se.Errs)
	}

	if err := p.writeOutputs(ctx, result); err != nil {
		return nil, err
	}
	if err := p.snapshotAndDiff(ctx, result, log); err != nil {
		return nil, err
	}
	return result, nil
}

// processSource takes one source table through resolution, tagging,
// expansion, and normalization.
func (p *Pipeline) processSource(ctx context.Context, src Source, collect func(string, string, []tabular.RowError)) (*tabular.Table, []tabular.RowError, error) {
	t := src.Table
	if !t.HasColumn(drug.ColSourceName) {
		return nil, nil, errors.SchemaError([]string{drug.ColSourceName})
	}

	t = source.AddConstantColumn(t, drug.ColProvenance, src.Name)
	if src.Region != "" {
		t = source.AddConstantColumn(t, drug.ApprovedColumn(src.Region), "true")
	}

	t, errs, err := resolve.ResolveColumn(ctx, p.resolver, t, drug.ColSourceName)
	if err != nil {
		return nil, nil, err
	}
	collect("resolve", src.Name, errs)
	p.countRows("resolve", t.Len())

	t, err = source.RenameColumns(t, []source.Rename{
		{From: drug.ColSourceName + resolve.CURIESuffix, To: drug.ColCanonicalID},
		{From: drug.ColSourceName + resolve.LabelSuffix, To: drug.ColCanonicalLabel},
	})
	if err != nil {
		return nil, nil, err
	}

	t, errs = p.tagStage(ctx, t)
	collect("tag", src.Name, errs)

	t, errs, err = p.expander.Expand(ctx, t)
	if err != nil {
		return nil, nil, err
	}
	collect("expand", src.Name, errs)
	p.countRows("expand", t.Len())

	t, errs, err = normalize.NormalizeColumn(ctx, p.normalizer, t, drug.ColCanonicalID)
	if err != nil {
		return nil, nil, err
	}
	p.countRows("normalize", t.Len())

	t, err = source.RenameColumns(t, []source.Rename{
		{From: drug.ColCanonicalID + normalize.NormSuffix, To: drug.ColNormalizedID},
		{From: drug.ColCanonicalID + normalize.NormLabelSuffix, To: drug.ColNormalizedLabel},
	})
	if err != nil {
		return nil, nil, err
	}
	return t, errs, nil
}

// enrichStage adds ATC and SMILES columns when the respective lookups are
// configured.
func (p *Pipeline) enrichStage(ctx context.Context, t *tabular.Table) (*tabular.Table, []tabular.RowError, error) {
	var all []tabular.RowError
	if p.atc != nil {
		out, errs, err := enrich.EnrichATC(ctx, p.atc, t, p.cfg.PoolWidth)
		if err != nil {
			return nil, nil, err
		}
		t = out
		all = append(all, errs...)
	}
	if p.structures != nil {
		out, errs, err := enrich.EnrichSMILES(ctx, p.structures, t, p.cfg.PoolWidth)
		if err != nil {
			return nil, nil, err
		}
		t = out
		all = append(all, errs...)
	}
	return t, all, nil
}

// snapshotAndDiff loads the previous id set, persists the current run, and
// compares the two. Snapshot persistence failures are fatal; a missing
// previous snapshot just means the diff starts from an empty set.
func (p *Pipeline) snapshotAndDiff(ctx context.Context, res *Result, log logging.Logger) error {
	current := idSet(res.Merged)

	previous := drug.NewIDSet()
	if p.snapshots != nil {
		prev, err := p.snapshots.LatestIDSet(ctx)
		switch {
		case err == nil:
			previous = prev
		case errors.IsCode(err, errors.ErrCodeSnapshotMissing):
			log.Info("no previous snapshot, diffing against empty set")
		default:
			return err
		}

		if err := p.snapshots.SaveSnapshot(ctx, res.RunID, snapshotRecords(res.Merged)); err != nil {
			return err
		}
	}

	if p.comparator == nil {
		return nil
	}
	diff, err := p.comparator.Compare(ctx, previous, current, res.RunID)
	if err != nil {
		return err
	}
	res.Diff = &diff
	if p.metrics != nil {
		p.metrics.ObserveDrift(len(diff.Added), len(diff.Removed))
	}
	return nil
}

func idSet(t *tabular.Table) drug.IDSet {
	set := drug.NewIDSet()
	for _, row := range t.Rows {
		if id, ok := row.Get(drug.ColNormalizedID); ok {
			set.Add(id)
		}
	}
	return set
}

func snapshotRecords(t *tabular.Table) []snapshot.Record {
	records := make([]snapshot.Record, 0, t.Len())
	for _, row := range t.Rows {
		id, ok := row.Get(drug.ColNormalizedID)
		if !ok || drug.IsSentinel(id) {
			continue
		}
		label, _ := row.Get(drug.ColNormalizedLabel)
		records = append(records, snapshot.Record{NormalizedID: id, Label: label})
	}
	return records
}

// errorsTable flattens per-stage row errors into one reviewable table with
// stage and provenance columns.
func errorsTable(stageErrs []StageErrors) *tabular.Table {
	if len(stageErrs) == 0 {
		return tabular.ErrorTable(nil)
	}
	parts := make([]*tabular.Table, 0, len(stageErrs))
	for _, se := range stageErrs {
		t := tabular.ErrorTable(se.Errs)
		t = source.AddConstantColumn(t, "stage", se.Stage)
		t = source.AddConstantColumn(t, drug.ColProvenance, se.Source)
		parts = append(parts, t)
	}
	return tabular.Concat(parts...)
}

func (p *Pipeline) observeRun(status string, elapsed time.Duration) {
	if p.metrics != nil {
		p.metrics.ObserveRun(status, elapsed)
	}
}

func (p *Pipeline) countRows(stage string, n int) {
	if p.metrics != nil {
		p.metrics.RowsProcessed.WithLabelValues(stage).Add(float64(n))
	}
}

func (p *Pipeline) countErrors(stage string, n int) {
	if p.metrics != nil {
		p.metrics.RowErrors.WithLabelValues(stage).Add(float64(n))
	}
}
