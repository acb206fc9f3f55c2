// Package normalize maps canonical identifiers onto their preferred
// ontology form through an external node-normalization service.  Distinct
// source vocabularies (CHEBI, CHEMBL, PUBCHEM) collapse onto one preferred
// identifier here, which is what makes cross-source merging possible.
package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/internal/retry"
	"github.com/openmedi/medirec/pkg/errors"
	"github.com/openmedi/medirec/pkg/types/drug"
)

// Normalization is the verdict for one identifier.  AlternateIDs carries
// every equivalent identifier the service knows, always including ID itself.
type Normalization struct {
	ID           string   `json:"id"`
	Label        string   `json:"label"`
	AlternateIDs []string `json:"alternate_ids"`
}

// Failed reports whether the verdict is a failure sentinel.
func (n Normalization) Failed() bool {
	return drug.IsSentinel(n.ID)
}

var (
	// missNormalization marks an identifier the service definitively does
	// not know.
	missNormalization = Normalization{ID: drug.NoneSentinel, Label: drug.NoneSentinel}
	// errorNormalization marks a lookup that exhausted its retry budget.
	errorNormalization = Normalization{ID: drug.ErrorSentinel, Label: drug.ErrorSentinel}
)

// Normalizer maps an identifier to its preferred form.
type Normalizer interface {
	Normalize(ctx context.Context, id string) (Normalization, error)
}

// Client normalizes identifiers against an HTTP node-normalization service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      Cache
	policy     retry.Policy
	logger     logging.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy replaces the default five-attempt policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithLogger attaches a logger; the default is silent.
func WithLogger(log logging.Logger) Option {
	return func(c *Client) { c.logger = log.Named("normalize") }
}

// NewClient builds a normalizer against baseURL using the given cache.
func NewClient(baseURL string, cache Cache, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
		policy:     retry.DefaultPolicy(),
		logger:     logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// nodeEntry mirrors the service's per-curie response object.
type nodeEntry struct {
	ID struct {
		Identifier string `json:"identifier"`
		Label      string `json:"label"`
	} `json:"id"`
	EquivalentIdentifiers []struct {
		Identifier string `json:"identifier"`
	} `json:"equivalent_identifiers"`
}

// Normalize returns the preferred identifier for id.  Blank or sentinel
// input fails with ErrCodeInvalidInput before any network traffic.  An
// identifier the service does not know yields the NONE sentinel; a lookup
// that exhausts the retry budget yields the Error sentinel.  Both failure
// kinds carry ErrCodeNormalizationFailed and both are cached.
func (c *Client) Normalize(ctx context.Context, id string) (Normalization, error) {
	id = strings.TrimSpace(id)
	if id == "" || drug.IsSentinel(id) {
		return Normalization{}, errors.InvalidInput("identifier is blank or a failure sentinel")
	}

	if norm, ok, err := c.cache.Get(ctx, id); err != nil {
		c.logger.Warn("verdict cache read failed", logging.String("id", id), logging.Err(err))
	} else if ok {
		if norm.Failed() {
			return norm, errors.Newf(errors.ErrCodeNormalizationFailed, "identifier %q previously failed normalization", id)
		}
		return norm, nil
	}

	var norm Normalization
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		n, err := c.lookup(ctx, id)
		if err != nil {
			return err
		}
		norm = n
		return nil
	})
	if err != nil {
		sentinel := errorNormalization
		if errors.IsCode(err, errors.ErrCodeNormalizationFailed) {
			sentinel = missNormalization
		}
		c.cachePut(ctx, id, sentinel)
		if errors.IsCode(err, errors.ErrCodeNormalizationFailed) {
			return sentinel, err
		}
		return sentinel, errors.Wrap(err, errors.ErrCodeNormalizationFailed, fmt.Sprintf("normalization of %q failed", id))
	}

	c.cachePut(ctx, id, norm)
	return norm, nil
}

func (c *Client) cachePut(ctx context.Context, id string, norm Normalization) {
	if err := c.cache.Put(ctx, id, norm); err != nil {
		c.logger.Warn("verdict cache write failed", logging.String("id", id), logging.Err(err))
	}
}

func (c *Client) lookup(ctx context.Context, id string) (Normalization, error) {
	q := url.Values{}
	q.Set("curie", id)
	q.Set("conflate", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/get_normalized_nodes?"+q.Encode(), nil)
	if err != nil {
		return Normalization{}, retry.Permanent{Err: errors.Wrap(err, errors.ErrCodeInternal, "build normalization request")}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Normalization{}, errors.Wrap(err, errors.ErrCodeNormalizerUnavailable, "node-normalization request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Normalization{}, errors.Newf(errors.ErrCodeNormalizerUnavailable, "node-normalization service returned %d", resp.StatusCode)
	}

	var body map[string]*nodeEntry
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Normalization{}, errors.Wrap(err, errors.ErrCodeSerialization, "decode node-normalization response")
	}

	entry, ok := body[id]
	if !ok || entry == nil || entry.ID.Identifier == "" {
		// A null entry is a definitive miss; retrying cannot help.
		return Normalization{}, retry.Permanent{Err: errors.Newf(errors.ErrCodeNormalizationFailed, "service does not know %q", id)}
	}

	norm := Normalization{ID: entry.ID.Identifier, Label: entry.ID.Label}
	seen := map[string]struct{}{norm.ID: {}}
	norm.AlternateIDs = []string{norm.ID}
	for _, eq := range entry.EquivalentIdentifiers {
		if eq.Identifier == "" {
			continue
		}
		if _, dup := seen[eq.Identifier]; dup {
			continue
		}
		seen[eq.Identifier] = struct{}{}
		norm.AlternateIDs = append(norm.AlternateIDs, eq.Identifier)
	}
	return norm, nil
}
