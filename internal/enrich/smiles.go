package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/internal/normalize"
	"github.com/openmedi/medirec/internal/tabular"
	"github.com/openmedi/medirec/pkg/errors"
	"github.com/openmedi/medirec/pkg/types/drug"
)

// pubchemPrefix is the vocabulary SMILES lookups work in.
const pubchemPrefix = "PUBCHEM.COMPOUND"

// ErrNoSMILES marks a record with no PubChem identifier or no structure.
var ErrNoSMILES = errors.New(errors.ErrCodeNotFound, "no SMILES available")

// SMILESClient fetches canonical SMILES strings from the PubChem PUG REST
// API by compound id.
type SMILESClient struct {
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

// NewSMILESClient builds a client; baseURL empty means the public PubChem
// endpoint.
func NewSMILESClient(baseURL string, log logging.Logger) *SMILESClient {
	if baseURL == "" {
		baseURL = "https://pubchem.ncbi.nlm.nih.gov/rest/pug"
	}
	return &SMILESClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.Named("smiles"),
	}
}

// SMILES returns the canonical SMILES for the first PubChem identifier among
// the candidates (primary id first, then alternates).  Records with no
// PubChem identifier at all are a clean miss.
func (c *SMILESClient) SMILES(ctx context.Context, candidates []string) (string, error) {
	var lookupErr error
	for _, id := range candidates {
		if drug.CURIEPrefix(id) != pubchemPrefix {
			continue
		}
		cid := strings.TrimPrefix(id, pubchemPrefix+":")
		smiles, err := c.fetch(ctx, cid)
		if err == nil && smiles != "" {
			return smiles, nil
		}
		if err != nil && !errors.IsCode(err, errors.ErrCodeNotFound) {
			lookupErr = err
		}
	}
	if lookupErr != nil {
		return "", errors.Wrap(lookupErr, errors.ErrCodeSMILESLookupFailed, "SMILES lookup failed")
	}
	return "", ErrNoSMILES
}

func (c *SMILESClient) fetch(ctx context.Context, cid string) (string, error) {
	url := fmt.Sprintf("%s/compound/cid/%s/property/CanonicalSMILES/JSON", c.baseURL, cid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "build SMILES request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSMILESLookupFailed, "PubChem request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNoSMILES
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf(errors.ErrCodeSMILESLookupFailed, "PubChem returned %d", resp.StatusCode)
	}

	var body struct {
		PropertyTable struct {
			Properties []struct {
				CanonicalSMILES string `json:"CanonicalSMILES"`
			} `json:"Properties"`
		} `json:"PropertyTable"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "decode PubChem response")
	}
	if len(body.PropertyTable.Properties) == 0 {
		return "", ErrNoSMILES
	}
	return body.PropertyTable.Properties[0].CanonicalSMILES, nil
}

// StructureSource answers a SMILES string for a candidate identifier list.
type StructureSource interface {
	SMILES(ctx context.Context, candidates []string) (string, error)
}

// EnrichSMILES adds the smiles column to t, resolving rows in parallel over
// the worker pool.  Rows without a structure keep a null cell; lookup
// failures are reported per row and never abort the stage.
func EnrichSMILES(ctx context.Context, src StructureSource, t *tabular.Table, width int) (*tabular.Table, []tabular.RowError, error) {
	if missing := t.MissingColumns([]string{drug.ColNormalizedID}); len(missing) > 0 {
		return nil, nil, errors.SchemaError(missing)
	}

	out := t.Clone()
	out.EnsureColumn(drug.ColSMILES)

	errsByRow := make([]error, out.Len())
	err := forEachRow(ctx, out.Len(), width, func(ctx context.Context, i int) error {
		row := out.Rows[i]
		id, ok := row.Get(drug.ColNormalizedID)
		if !ok || drug.IsSentinel(id) {
			return nil
		}
		candidates := append([]string{id}, normalize.SplitAlternateIDs(row[drug.ColAlternateIDs])...)

		smiles, resErr := src.SMILES(ctx, candidates)
		if resErr != nil {
			if !errors.IsCode(resErr, errors.ErrCodeNotFound) {
				errsByRow[i] = resErr
			}
			return nil
		}
		row[drug.ColSMILES] = smiles
		return nil
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeTimeout, "SMILES enrichment interrupted")
	}

	var rowErrs []tabular.RowError
	for i, e := range errsByRow {
		if e != nil {
			rowErrs = append(rowErrs, tabular.RowError{Row: i, Column: drug.ColSMILES, Value: out.Rows[i][drug.ColNormalizedID], Err: e})
		}
	}
	return out, rowErrs, nil
}
