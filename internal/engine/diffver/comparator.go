// Package diffver compares two versions of the merged drug list by their
// canonical identifier sets and reports what appeared, what disappeared, and
// what persisted.
package diffver

import (
	"context"
	"time"

	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/internal/normalize"
	"github.com/openmedi/medirec/pkg/types/drug"
)

// Entry is one identifier in a diff bucket, with its preferred label when
// enrichment is available.
type Entry struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// Result holds the three diff buckets, each sorted by identifier.
type Result struct {
	Added     []Entry `json:"added"`
	Removed   []Entry `json:"removed"`
	Unchanged []Entry `json:"unchanged"`
}

// DriftEvent summarizes a diff for downstream consumers.
type DriftEvent struct {
	RunID      string    `json:"run_id"`
	Added      int       `json:"added"`
	Removed    int       `json:"removed"`
	Unchanged  int       `json:"unchanged"`
	ComparedAt time.Time `json:"compared_at"`
}

// EventPublisher emits drift events.  The kafka producer implements it; a
// nil publisher disables emission.
type EventPublisher interface {
	PublishDrift(ctx context.Context, event DriftEvent) error
}

// Comparator diffs id sets, optionally enriching entries with labels and
// publishing a drift event.
type Comparator struct {
	normalizer normalize.Normalizer
	publisher  EventPublisher
	logger     logging.Logger
}

// Option customizes a Comparator.
type Option func(*Comparator)

// WithNormalizer enables label enrichment through the given normalizer; its
// cache and retry policy apply unchanged.
func WithNormalizer(n normalize.Normalizer) Option {
	return func(c *Comparator) { c.normalizer = n }
}

// WithPublisher enables drift-event emission.
func WithPublisher(p EventPublisher) Option {
	return func(c *Comparator) { c.publisher = p }
}

// New builds a comparator.
func New(log logging.Logger, opts ...Option) *Comparator {
	c := &Comparator{logger: log.Named("diffver")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compare diffs previous against current.  Swapping the inputs swaps the
// Added and Removed buckets and leaves Unchanged fixed.  Label-enrichment
// failures degrade to unlabeled entries; they never fail the diff.  When a
// publisher is configured a DriftEvent is emitted after the diff; a publish
// failure is logged and the Result still returned.
func (c *Comparator) Compare(ctx context.Context, previous, current drug.IDSet, runID string) (Result, error) {
	var res Result
	for _, id := range current.Sorted() {
		if previous.Has(id) {
			res.Unchanged = append(res.Unchanged, c.entry(ctx, id))
		} else {
			res.Added = append(res.Added, c.entry(ctx, id))
		}
	}
	for _, id := range previous.Sorted() {
		if !current.Has(id) {
			res.Removed = append(res.Removed, c.entry(ctx, id))
		}
	}

	c.logger.Info("compared list versions",
		logging.String("run_id", runID),
		logging.Int("added", len(res.Added)),
		logging.Int("removed", len(res.Removed)),
		logging.Int("unchanged", len(res.Unchanged)))

	if c.publisher != nil {
		event := DriftEvent{
			RunID:      runID,
			Added:      len(res.Added),
			Removed:    len(res.Removed),
			Unchanged:  len(res.Unchanged),
			ComparedAt: time.Now().UTC(),
		}
		if err := c.publisher.PublishDrift(ctx, event); err != nil {
			c.logger.Warn("drift event publish failed", logging.String("run_id", runID), logging.Err(err))
		}
	}
	return res, nil
}

func (c *Comparator) entry(ctx context.Context, id string) Entry {
	e := Entry{ID: id}
	if c.normalizer == nil {
		return e
	}
	norm, err := c.normalizer.Normalize(ctx, id)
	if err != nil || norm.Failed() {
		return e
	}
	e.Label = norm.Label
	return e
}
