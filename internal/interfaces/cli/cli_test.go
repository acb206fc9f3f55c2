package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmedi/medirec/pkg/types/drug"
)

func TestParseSourceSpec(t *testing.T) {
	name, path, region, err := parseSourceSpec("fda=data/fda.csv@usa")
	require.NoError(t, err)
	assert.Equal(t, "fda", name)
	assert.Equal(t, "data/fda.csv", path)
	assert.Equal(t, drug.RegionUSA, region)
}

func TestParseSourceSpec_NoRegion(t *testing.T) {
	name, path, region, err := parseSourceSpec("grls=grls.csv")
	require.NoError(t, err)
	assert.Equal(t, "grls", name)
	assert.Equal(t, "grls.csv", path)
	assert.Empty(t, region)
}

func TestParseSourceSpec_Invalid(t *testing.T) {
	for _, spec := range []string{"", "fda", "=x.csv", "fda=", "fda=x.csv@atlantis"} {
		_, _, _, err := parseSourceSpec(spec)
		assert.Error(t, err, spec)
	}
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIDSetFromCSV(t *testing.T) {
	path := writeCSV(t, "merged.csv",
		"normalized_id,normalized_label\nCHEBI:1,aspirin\nError,Error\nCHEBI:2,ibuprofen\n")

	set, err := idSetFromCSV(path)
	require.NoError(t, err)
	assert.True(t, set.Has("CHEBI:1"))
	assert.True(t, set.Has("CHEBI:2"))
	assert.Len(t, set, 2, "sentinel rows never count as identifiers")
}

func TestIDSetFromCSV_MissingColumn(t *testing.T) {
	path := writeCSV(t, "bad.csv", "name\naspirin\n")
	_, err := idSetFromCSV(path)
	assert.Error(t, err)
}

func setMinimalEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MEDIREC_RESOLVER_BASE_URL", "https://resolver.example.com")
	t.Setenv("MEDIREC_NORMALIZER_BASE_URL", "https://normalizer.example.com")
}

func TestDiffCommand_CSVMode(t *testing.T) {
	setMinimalEnv(t)
	prev := writeCSV(t, "prev.csv", "normalized_id\nCHEBI:1\nCHEBI:2\n")
	cur := writeCSV(t, "cur.csv", "normalized_id\nCHEBI:2\nCHEBI:3\n")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"diff", "--previous", prev, "--current", cur})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "added 1, removed 1, unchanged 1")
	assert.Contains(t, out.String(), "+ CHEBI:3")
	assert.Contains(t, out.String(), "- CHEBI:1")
}

func TestDiffCommand_RequiresInputs(t *testing.T) {
	setMinimalEnv(t)

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"diff"})

	assert.Error(t, cmd.Execute())
}

func TestVersionCommand_NoConfigNeeded(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "medirec")
}

func TestLoadSourceTable_PMDACleaning(t *testing.T) {
	path := writeCSV(t, "pmda.csv",
		"source_ingredient_name\na combination drug of tamoxifen(1)\n")

	tbl, err := loadSourceTable("pmda", path)
	require.NoError(t, err)
	require.Equal(t, 1, tbl.Len())
	name, _ := tbl.Rows[0].Get(drug.ColSourceName)
	assert.Equal(t, "TAMOXIFEN", name)
}
