package cli

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/openmedi/medirec/internal/config"
	"github.com/openmedi/medirec/internal/engine/diffver"
	"github.com/openmedi/medirec/internal/engine/expand"
	"github.com/openmedi/medirec/internal/engine/merge"
	"github.com/openmedi/medirec/internal/enrich"
	"github.com/openmedi/medirec/internal/infrastructure/database/postgres"
	redisinfra "github.com/openmedi/medirec/internal/infrastructure/database/redis"
	"github.com/openmedi/medirec/internal/infrastructure/messaging/kafka"
	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/internal/infrastructure/monitoring/prometheus"
	"github.com/openmedi/medirec/internal/infrastructure/storage/minio"
	"github.com/openmedi/medirec/internal/llm"
	"github.com/openmedi/medirec/internal/normalize"
	"github.com/openmedi/medirec/internal/pipeline"
	"github.com/openmedi/medirec/internal/resolve"
	"github.com/openmedi/medirec/internal/retry"
	"github.com/openmedi/medirec/internal/snapshot"
	"github.com/openmedi/medirec/pkg/types/drug"
)

// semicolonSplitter is the fallback when no LLM backend is configured:
// combination products listed as "a; b; c" still expand.
type semicolonSplitter struct{}

func (semicolonSplitter) Split(_ context.Context, productName string) ([]string, error) {
	parts := strings.Split(productName, ";")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return names, nil
}

// atcSourcePrefixes orders the per-ontology ATC lookup chain.
var atcSourcePrefixes = []string{"CHEBI", "CHEMBL.COMPOUND", "PUBCHEM.COMPOUND", "DrugCentral"}

// buildPipeline assembles the pipeline and every configured collaborator.
// The returned cleanup closes all of them; it is safe to call after a
// partial build error.
func buildPipeline(ctx context.Context, rt *runtime) (*pipeline.Pipeline, func(), error) {
	cfg, log := rt.cfg, rt.logger

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*pipeline.Pipeline, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	resolveCache := resolve.Cache(resolve.NewMemoryCache())
	normalizeCache := normalize.Cache(normalize.NewMemoryCache())
	if cfg.Redis.Addr != "" {
		client, err := redisinfra.NewClient(&cfg.Redis, log)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = client.Close() })
		shared := redisinfra.NewCache(client, log)
		resolveCache = resolve.NewRedisCache(shared, 0)
		normalizeCache = normalize.NewRedisCache(shared, 0)
	}

	resolver := resolve.NewClient(cfg.Resolver.BaseURL, resolveCache,
		resolve.WithLogger(log),
		resolve.WithRetryPolicy(servicePolicy(cfg.Resolver)),
		resolve.WithHTTPClient(&http.Client{Timeout: cfg.Resolver.Timeout}))
	normalizer := normalize.NewClient(cfg.Normalizer.BaseURL, normalizeCache,
		normalize.WithLogger(log),
		normalize.WithRetryPolicy(servicePolicy(cfg.Normalizer)),
		normalize.WithHTTPClient(&http.Client{Timeout: cfg.Normalizer.Timeout}))

	var splitter expand.Splitter = semicolonSplitter{}
	var opts []pipeline.Option
	if cfg.LLM.BaseURL != "" {
		model := llm.NewHTTPClient(cfg.LLM, log)
		splitter = llm.NewSplitter(model)
		opts = append(opts, pipeline.WithTagger(llm.NewTagger(model)))
	}

	expander := expand.New(splitter, resolver, expand.Config{}, log)
	merger := merge.New(drug.ColNormalizedID, log)

	comparatorOpts := []diffver.Option{diffver.WithNormalizer(normalizer)}
	if cfg.Pipeline.DriftEnabled {
		producer, err := kafka.NewProducer(cfg.Kafka, log)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = producer.Close() })
		comparatorOpts = append(comparatorOpts, diffver.WithPublisher(producer))
	}
	opts = append(opts, pipeline.WithComparator(diffver.New(log, comparatorOpts...)))

	if !cfg.Enrich.Disabled {
		if cfg.Enrich.ATCEndpoint != "" {
			src := enrich.NewJSONSource(cfg.Enrich.ATCEndpoint)
			atcOpts := make([]enrich.ATCOption, 0, len(atcSourcePrefixes)+1)
			for _, prefix := range atcSourcePrefixes {
				atcOpts = append(atcOpts, enrich.WithSource(prefix, src))
			}
			atcOpts = append(atcOpts, enrich.WithNameSource(src))
			opts = append(opts, pipeline.WithATCResolver(enrich.NewATCResolver(log, atcOpts...)))
		}
		opts = append(opts, pipeline.WithStructureSource(enrich.NewSMILESClient(cfg.Enrich.SMILESBaseURL, log)))
	}

	if cfg.Pipeline.SnapshotEnabled {
		if err := postgres.RunMigrations(cfg.Database, log); err != nil {
			return fail(err)
		}
		conn, err := postgres.NewConnection(ctx, cfg.Database, log)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, conn.Close)
		opts = append(opts, pipeline.WithSnapshotStore(snapshot.NewStore(conn.Pool(), log)))
	}

	if cfg.Pipeline.ArchiveEnabled {
		archiver, err := minio.NewArchiver(cfg.MinIO, log)
		if err != nil {
			return fail(err)
		}
		opts = append(opts, pipeline.WithArchiver(archiver))
	}

	if cfg.Metrics.Enabled {
		metrics := prometheus.NewMetrics()
		opts = append(opts, pipeline.WithMetrics(metrics))
		closers = append(closers, serveMetrics(cfg.Metrics.ListenAddr, metrics, log))
	}

	return pipeline.New(resolver, normalizer, expander, merger, cfg.Pipeline, log, opts...), cleanup, nil
}

func servicePolicy(svc config.ServiceConfig) retry.Policy {
	p := retry.DefaultPolicy()
	if svc.MaxAttempts > 0 {
		p.MaxAttempts = svc.MaxAttempts
	}
	if svc.BaseDelay > 0 {
		p.BaseDelay = svc.BaseDelay
	}
	return p
}

// serveMetrics exposes the registry on /metrics and returns a closer.
func serveMetrics(addr string, m *prometheus.Metrics, log logging.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", logging.Err(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
