package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/internal/normalize"
	"github.com/openmedi/medirec/internal/tabular"
	"github.com/openmedi/medirec/pkg/errors"
	"github.com/openmedi/medirec/pkg/types/drug"
)

// ATC output columns.  The main code is decomposed into the five WHO ATC
// levels for downstream grouping.
const (
	ColATCLevel1 = "atc_level_1"
	ColATCLevel2 = "atc_level_2"
	ColATCLevel3 = "atc_level_3"
	ColATCLevel4 = "atc_level_4"
	ColATCLevel5 = "atc_level_5"
)

// ErrNoATC marks an identifier the whole source chain has no code for.
var ErrNoATC = errors.New(errors.ErrCodeNotFound, "no ATC code found")

// ATCSource answers an ATC code for one identifier of the vocabulary it
// serves.  Implementations return ErrNoATC for a clean miss; any other
// error counts as a lookup failure.
type ATCSource interface {
	ATC(ctx context.Context, id string) (string, error)
}

// NameSource answers an ATC code for a drug name.  It is the last rung of
// the chain, used when no identifier-based source knows the drug.
type NameSource interface {
	ATCByName(ctx context.Context, name string) (string, error)
}

// chainEntry binds a CURIE prefix to the source that serves it.
type chainEntry struct {
	prefix string
	source ATCSource
}

// ATCResolver walks a fixed source chain per record: curated dictionary
// first, then each identifier vocabulary in order, then name search.
type ATCResolver struct {
	dictionary map[string]string
	chain      []chainEntry
	byName     NameSource
	logger     logging.Logger
}

// ATCOption customizes an ATCResolver.
type ATCOption func(*ATCResolver)

// WithDictionary installs curated code overrides keyed by CURIE.  Dictionary
// hits short-circuit the chain.
func WithDictionary(dict map[string]string) ATCOption {
	return func(r *ATCResolver) { r.dictionary = dict }
}

// WithSource appends an identifier source for a CURIE prefix; chain order is
// registration order.
func WithSource(prefix string, src ATCSource) ATCOption {
	return func(r *ATCResolver) { r.chain = append(r.chain, chainEntry{prefix: prefix, source: src}) }
}

// WithNameSource installs the name-search fallback.
func WithNameSource(src NameSource) ATCOption {
	return func(r *ATCResolver) { r.byName = src }
}

// NewATCResolver builds a resolver; register sources in the order they
// should be consulted (conventionally CHEBI, CHEMBL.COMPOUND,
// PUBCHEM.COMPOUND, DrugCentral).
func NewATCResolver(log logging.Logger, opts ...ATCOption) *ATCResolver {
	r := &ATCResolver{logger: log.Named("atc")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve walks the chain for one record.  Identifier candidates per rung
// are the normalized id followed by the alternates, filtered to the rung's
// vocabulary.  A rung miss moves on; a rung failure is remembered but the
// walk continues, so a dead service does not mask a later hit.  ErrNoATC
// comes back only when every rung missed; a lookup failure on an otherwise
// codeless record is ErrCodeATCLookupFailed.
func (r *ATCResolver) Resolve(ctx context.Context, normalizedID, name string, alternateIDs []string) (string, error) {
	candidates := append([]string{normalizedID}, alternateIDs...)

	for _, id := range candidates {
		if code, ok := r.dictionary[id]; ok {
			return code, nil
		}
	}

	var lookupErr error
	for _, entry := range r.chain {
		for _, id := range candidates {
			if drug.CURIEPrefix(id) != entry.prefix {
				continue
			}
			code, err := entry.source.ATC(ctx, id)
			if err == nil && code != "" {
				return code, nil
			}
			if err != nil && !errors.IsCode(err, errors.ErrCodeNotFound) {
				lookupErr = err
			}
		}
	}

	if r.byName != nil && strings.TrimSpace(name) != "" {
		code, err := r.byName.ATCByName(ctx, name)
		if err == nil && code != "" {
			return code, nil
		}
		if err != nil && !errors.IsCode(err, errors.ErrCodeNotFound) {
			lookupErr = err
		}
	}

	if lookupErr != nil {
		return "", errors.Wrap(lookupErr, errors.ErrCodeATCLookupFailed, fmt.Sprintf("ATC lookup for %q failed", normalizedID))
	}
	return "", ErrNoATC
}

// SplitATCLevels decomposes an ATC code into its five classification levels
// (anatomical group through chemical substance).  Short codes fill only the
// levels they cover.
func SplitATCLevels(code string) [5]string {
	var levels [5]string
	cuts := []int{1, 3, 4, 5, 7}
	for i, n := range cuts {
		if len(code) >= n {
			levels[i] = code[:n]
		}
	}
	return levels
}

// EnrichATC adds the ATC columns to t, resolving rows in parallel over the
// worker pool.  Rows without a usable code keep null ATC cells; lookup
// failures are reported per row and never abort the stage.
func EnrichATC(ctx context.Context, r *ATCResolver, t *tabular.Table, width int) (*tabular.Table, []tabular.RowError, error) {
	if missing := t.MissingColumns([]string{drug.ColNormalizedID}); len(missing) > 0 {
		return nil, nil, errors.SchemaError(missing)
	}

	out := t.Clone()
	for _, col := range []string{drug.ColATCMain, ColATCLevel1, ColATCLevel2, ColATCLevel3, ColATCLevel4, ColATCLevel5} {
		out.EnsureColumn(col)
	}

	errsByRow := make([]error, out.Len())
	err := forEachRow(ctx, out.Len(), width, func(ctx context.Context, i int) error {
		row := out.Rows[i]
		id, ok := row.Get(drug.ColNormalizedID)
		if !ok || drug.IsSentinel(id) {
			return nil
		}
		name, _ := row.Get(drug.ColNormalizedLabel)
		alternates := normalize.SplitAlternateIDs(row[drug.ColAlternateIDs])

		code, resErr := r.Resolve(ctx, id, name, alternates)
		if resErr != nil {
			if !errors.IsCode(resErr, errors.ErrCodeNotFound) {
				errsByRow[i] = resErr
			}
			return nil
		}
		row[drug.ColATCMain] = code
		levels := SplitATCLevels(code)
		row[ColATCLevel1] = levels[0]
		row[ColATCLevel2] = levels[1]
		row[ColATCLevel3] = levels[2]
		row[ColATCLevel4] = levels[3]
		row[ColATCLevel5] = levels[4]
		return nil
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeTimeout, "ATC enrichment interrupted")
	}

	var rowErrs []tabular.RowError
	for i, e := range errsByRow {
		if e != nil {
			rowErrs = append(rowErrs, tabular.RowError{Row: i, Column: drug.ColATCMain, Value: out.Rows[i][drug.ColNormalizedID], Err: e})
		}
	}
	return out, rowErrs, nil
}

// JSONSource is an ATCSource over a JSON gateway endpoint answering
// GET <base>?curie=<id> with {"atc": "<code>"}.  The chemistry gateways in
// front of ChEBI, ChEMBL, and DrugCentral all expose this shape.
type JSONSource struct {
	endpoint   string
	httpClient *http.Client
}

// NewJSONSource builds a source for one gateway endpoint.
func NewJSONSource(endpoint string) *JSONSource {
	return &JSONSource{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *JSONSource) ATC(ctx context.Context, id string) (string, error) {
	return s.fetch(ctx, url.Values{"curie": {id}})
}

// ATCByName lets a name-search gateway reuse the same response shape.
func (s *JSONSource) ATCByName(ctx context.Context, name string) (string, error) {
	return s.fetch(ctx, url.Values{"name": {name}})
}

func (s *JSONSource) fetch(ctx context.Context, q url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "build ATC request")
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeATCLookupFailed, "ATC gateway request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNoATC
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf(errors.ErrCodeATCLookupFailed, "ATC gateway returned %d", resp.StatusCode)
	}

	var body struct {
		ATC string `json:"atc"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "decode ATC response")
	}
	if body.ATC == "" {
		return "", ErrNoATC
	}
	return body.ATC, nil
}
