package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openmedi/medirec/internal/pipeline"
	"github.com/openmedi/medirec/internal/source"
	"github.com/openmedi/medirec/internal/tabular"
	"github.com/openmedi/medirec/pkg/errors"
	"github.com/openmedi/medirec/pkg/types/drug"
)

func newReconcileCmd(rt *runtime) *cobra.Command {
	var (
		sourceSpecs []string
		mode        string
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run a full reconciliation over the given source tables",
		Long: "Reads one CSV per source registry, takes each through resolution,\n" +
			"tagging, combination expansion, and normalization, merges them into\n" +
			"one canonical list, and writes the list plus an errors table.\n\n" +
			"Each --source is name=path[@region], e.g. fda=data/fda.csv@usa.\n" +
			"Tables named ema or pmda get their registry-specific preprocessing.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if mode != "" {
				rt.cfg.Pipeline.Mode = mode
				if err := rt.cfg.Validate(); err != nil {
					return err
				}
			}

			sources, err := loadSources(sourceSpecs)
			if err != nil {
				return err
			}

			p, cleanup, err := buildPipeline(cmd.Context(), rt)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := p.Run(cmd.Context(), sources)
			if err != nil {
				return err
			}
			return printRunResult(cmd, rt.opts.output, res)
		},
	}

	cmd.Flags().StringArrayVarP(&sourceSpecs, "source", "s", nil, "source table as name=path[@region] (repeatable)")
	cmd.Flags().StringVar(&mode, "mode", "", "inclusion mode override (stringent|flexible)")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

// parseSourceSpec splits "name=path[@region]".
func parseSourceSpec(spec string) (name, path string, region drug.Region, err error) {
	name, rest, ok := strings.Cut(spec, "=")
	if !ok || name == "" || rest == "" {
		return "", "", "", errors.InvalidInput(fmt.Sprintf("source %q is not name=path[@region]", spec))
	}
	path, regionStr, hasRegion := strings.Cut(rest, "@")
	if !hasRegion {
		return name, path, "", nil
	}
	region = drug.Region(strings.ToLower(regionStr))
	for _, r := range drug.Regions {
		if region == r {
			return name, path, region, nil
		}
	}
	return "", "", "", errors.InvalidInput(fmt.Sprintf("unknown region %q in source %q", regionStr, spec))
}

func loadSources(specs []string) ([]pipeline.Source, error) {
	sources := make([]pipeline.Source, 0, len(specs))
	for _, spec := range specs {
		name, path, region, err := parseSourceSpec(spec)
		if err != nil {
			return nil, err
		}
		t, err := loadSourceTable(name, path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, pipeline.Source{Name: name, Region: region, Table: t})
	}
	return sources, nil
}

// loadSourceTable reads one CSV and applies the registry-specific
// preprocessing the source name calls for.
func loadSourceTable(name, path string) (*tabular.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceParse, "open "+path)
	}
	defer f.Close()

	t, err := tabular.ReadCSV(f)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceParse, "read "+path)
	}

	switch strings.ToLower(name) {
	case "ema":
		return source.PreprocessEMA(t)
	case "pmda":
		return source.PreprocessPMDA(t, drug.ColSourceName)
	}
	return t, nil
}

// runSummary is the printable shape of a run result.
type runSummary struct {
	RunID      string `json:"run_id"`
	Rows       int    `json:"rows"`
	RowErrors  int    `json:"row_errors"`
	MergedPath string `json:"merged_path,omitempty"`
	ErrorsPath string `json:"errors_path,omitempty"`
	Added      int    `json:"added,omitempty"`
	Removed    int    `json:"removed,omitempty"`
	Unchanged  int    `json:"unchanged,omitempty"`
	Mode       string `json:"mode"`
}

func printRunResult(cmd *cobra.Command, format string, res *pipeline.Result) error {
	s := runSummary{
		RunID:      res.RunID,
		Rows:       res.Merged.Len(),
		RowErrors:  res.ErrorCount,
		MergedPath: res.MergedPath,
		ErrorsPath: res.ErrorsPath,
	}
	if res.Diff != nil {
		s.Added = len(res.Diff.Added)
		s.Removed = len(res.Diff.Removed)
		s.Unchanged = len(res.Diff.Unchanged)
	}

	if strings.EqualFold(format, "json") {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d rows, %d row errors\n", s.RunID, s.Rows, s.RowErrors)
	if s.MergedPath != "" {
		fmt.Fprintf(out, "merged list: %s\n", s.MergedPath)
	}
	if s.ErrorsPath != "" {
		fmt.Fprintf(out, "errors table: %s\n", s.ErrorsPath)
	}
	if res.Diff != nil {
		fmt.Fprintf(out, "drift: +%d -%d =%d\n", s.Added, s.Removed, s.Unchanged)
	}
	return nil
}
