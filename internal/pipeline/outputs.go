package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/internal/tabular"
	"github.com/openmedi/medirec/pkg/errors"
)

// Artifact names written per run.
const (
	MergedArtifact = "merged.csv"
	ErrorsArtifact = "errors.csv"
)

// writeOutputs renders the merged list and the errors table as CSV under
// <output_dir>/<run_id>/ and, when an archiver is wired, uploads the same
// bytes to object storage.
func (p *Pipeline) writeOutputs(ctx context.Context, res *Result) error {
	if p.cfg.OutputDir == "" {
		return nil
	}
	dir := filepath.Join(p.cfg.OutputDir, res.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "create output directory")
	}

	var err error
	if res.MergedPath, err = p.writeArtifact(ctx, dir, res.RunID, MergedArtifact, res.Merged); err != nil {
		return err
	}
	if res.ErrorsPath, err = p.writeArtifact(ctx, dir, res.RunID, ErrorsArtifact, res.Errors); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) writeArtifact(ctx context.Context, dir, runID, name string, t *tabular.Table) (string, error) {
	var buf bytes.Buffer
	if err := tabular.WriteCSV(&buf, t); err != nil {
		return "", err
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "write "+name)
	}

	if p.archiver != nil {
		if err := p.archiver.Store(ctx, runID, name, bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
			// Local output already exists; losing the archive copy is
			// not worth failing the run.
			p.logger.Warn("archive upload failed",
				logging.String("artifact", name), logging.Err(err))
		}
	}
	return path, nil
}
