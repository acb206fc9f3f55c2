// Package enrich decorates the merged drug list with ATC classification and
// SMILES structures.  Enrichment is the only parallel stage of the engine:
// per-row lookups are independent, fan out over a bounded worker pool, and
// land in index-addressed slots so the output order never depends on
// scheduling.
package enrich

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultPoolWidth bounds concurrent enrichment lookups.
const DefaultPoolWidth = 5

// forEachRow runs fn for every index in [0, n) with at most width workers.
// fn must confine its writes to its own index; row-level failures are
// recorded by fn itself, so fn returning an error is reserved for
// context cancellation.
func forEachRow(ctx context.Context, n, width int, fn func(ctx context.Context, i int) error) error {
	if width <= 0 {
		width = DefaultPoolWidth
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(width)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, i)
		})
	}
	return g.Wait()
}
