package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openmedi/medirec/internal/engine/diffver"
	"github.com/openmedi/medirec/internal/infrastructure/database/postgres"
	"github.com/openmedi/medirec/internal/snapshot"
	"github.com/openmedi/medirec/internal/tabular"
	"github.com/openmedi/medirec/pkg/errors"
	"github.com/openmedi/medirec/pkg/types/drug"
)

func newDiffCmd(rt *runtime) *cobra.Command {
	var (
		prevCSV, curCSV string
		prevRun, curRun string
	)

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare two canonical list versions",
		Long: "Compares two merged list versions and reports added, removed, and\n" +
			"unchanged identifiers. Versions come either from two exported CSVs\n" +
			"(--previous/--current) or from the snapshot database\n" +
			"(--previous-run, optionally --current-run, default latest).",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var previous, current drug.IDSet
			var err error
			switch {
			case prevCSV != "" && curCSV != "":
				if previous, err = idSetFromCSV(prevCSV); err != nil {
					return err
				}
				if current, err = idSetFromCSV(curCSV); err != nil {
					return err
				}
			case prevRun != "":
				store, cleanup, err := openSnapshotStore(ctx, rt)
				if err != nil {
					return err
				}
				defer cleanup()
				if previous, err = store.IDSet(ctx, prevRun); err != nil {
					return err
				}
				if curRun != "" {
					current, err = store.IDSet(ctx, curRun)
				} else {
					current, err = store.LatestIDSet(ctx)
				}
				if err != nil {
					return err
				}
			default:
				return errors.InvalidInput("either --previous/--current files or --previous-run is required")
			}

			result, err := diffver.New(rt.logger).Compare(ctx, previous, current, "cli-diff")
			if err != nil {
				return err
			}
			return printDiff(cmd, rt.opts.output, result)
		},
	}

	cmd.Flags().StringVar(&prevCSV, "previous", "", "previous merged list CSV")
	cmd.Flags().StringVar(&curCSV, "current", "", "current merged list CSV")
	cmd.Flags().StringVar(&prevRun, "previous-run", "", "previous run id in the snapshot database")
	cmd.Flags().StringVar(&curRun, "current-run", "", "current run id (default: latest snapshot)")
	return cmd
}

func openSnapshotStore(ctx context.Context, rt *runtime) (*snapshot.Store, func(), error) {
	if rt.cfg.Database.Host == "" {
		return nil, nil, errors.InvalidInput("database.host is not configured")
	}
	conn, err := postgres.NewConnection(ctx, rt.cfg.Database, rt.logger)
	if err != nil {
		return nil, nil, err
	}
	return snapshot.NewStore(conn.Pool(), rt.logger), conn.Close, nil
}

// idSetFromCSV loads the normalized id column of an exported merged list.
func idSetFromCSV(path string) (drug.IDSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceParse, "open "+path)
	}
	defer f.Close()

	t, err := tabular.ReadCSV(f)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceParse, "read "+path)
	}
	if !t.HasColumn(drug.ColNormalizedID) {
		return nil, errors.SchemaError([]string{drug.ColNormalizedID})
	}

	set := drug.NewIDSet()
	for _, row := range t.Rows {
		if id, ok := row.Get(drug.ColNormalizedID); ok {
			set.Add(id)
		}
	}
	return set, nil
}

func printDiff(cmd *cobra.Command, format string, result diffver.Result) error {
	if strings.EqualFold(format, "json") {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "added %d, removed %d, unchanged %d\n",
		len(result.Added), len(result.Removed), len(result.Unchanged))
	for _, e := range result.Added {
		fmt.Fprintf(out, "+ %s\n", entryLine(e))
	}
	for _, e := range result.Removed {
		fmt.Fprintf(out, "- %s\n", entryLine(e))
	}
	return nil
}

func entryLine(e diffver.Entry) string {
	if e.Label != "" {
		return fmt.Sprintf("%s (%s)", e.ID, e.Label)
	}
	return e.ID
}
