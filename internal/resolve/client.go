// Package resolve maps free-text ingredient names to canonical ontology
// identifiers (CURIEs) through an external name-resolution service, with an
// injected verdict cache and a bounded retry policy.
package resolve

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

// Resolution is the verdict for one ingredient name.  A failed lookup
// carries the Error sentinel in both fields.
type Resolution struct {
	CURIE string `json:"curie"`
	Label string `json:"label"`
}

// Failed reports whether the verdict is the failure sentinel.
func (r Resolution) Failed() bool {
	return drug.IsSentinel(r.CURIE)
}

var failedResolution = Resolution{CURIE: drug.ErrorSentinel, Label: drug.ErrorSentinel}

// NameResolver resolves an ingredient name to its top-ranked canonical
// identifier.
type NameResolver interface {
	Resolve(ctx context.Context, name string) (Resolution, error)
}

// CleanName applies the lookup-key normalization: semicolons get a trailing
// space, runs of whitespace collapse to one space, and the result is
// trimmed.  Both the service query and the cache key use the cleaned form so
// spelling variants of the same name share one verdict.
func CleanName(name string) string {
	name = strings.ReplaceAll(name, ";", "; ")
	return strings.Join(strings.Fields(name), " ")
}

// Client resolves names against an HTTP name-resolution service.
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
	return func(c *Client) { c.logger = log.Named("resolve") }
}

// NewClient builds a resolver against baseURL using the given verdict cache.
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

// candidate mirrors one entry of the service's ranked response.
type candidate struct {
	Curie string `json:"curie"`
	Label string `json:"label"`
}

// Resolve returns the top-ranked verdict for name.  Blank input fails with
// ErrCodeInvalidInput before any network traffic.  Lookups that exhaust the
// retry budget, and names the service has no candidate for, yield the
// sentinel verdict alongside an ErrCodeUnresolved error; the sentinel is
// cached so the name is not retried within the cache's lifetime.
func (c *Client) Resolve(ctx context.Context, name string) (Resolution, error) {
	cleaned := CleanName(name)
	if cleaned == "" {
		return Resolution{}, errors.InvalidInput("ingredient name is blank")
	}

	if res, ok, err := c.cache.Get(ctx, cleaned); err != nil {
		c.logger.Warn("verdict cache read failed", logging.String("name", cleaned), logging.Err(err))
	} else if ok {
		if res.Failed() {
			return res, errors.Newf(errors.ErrCodeUnresolved, "name %q previously failed resolution", cleaned)
		}
		return res, nil
	}

	var resolved Resolution
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		res, err := c.lookup(ctx, cleaned)
		if err != nil {
			return err
		}
		resolved = res
		return nil
	})
	if err != nil {
		c.cachePut(ctx, cleaned, failedResolution)
		if errors.IsCode(err, errors.ErrCodeUnresolved) {
			return failedResolution, err
		}
		return failedResolution, errors.Wrap(err, errors.ErrCodeUnresolved, fmt.Sprintf("resolution of %q failed", cleaned))
	}

	c.cachePut(ctx, cleaned, resolved)
	return resolved, nil
}

func (c *Client) cachePut(ctx context.Context, name string, res Resolution) {
	if err := c.cache.Put(ctx, name, res); err != nil {
		c.logger.Warn("verdict cache write failed", logging.String("name", name), logging.Err(err))
	}
}

// lookup performs one service round trip.
func (c *Client) lookup(ctx context.Context, name string) (Resolution, error) {
	q := url.Values{}
	q.Set("string", name)
	q.Set("autocomplete", "false")
	q.Set("offset", "0")
	q.Set("limit", "10")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/lookup?"+q.Encode(), nil)
	if err != nil {
		return Resolution{}, retry.Permanent{Err: errors.Wrap(err, errors.ErrCodeInternal, "build lookup request")}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Resolution{}, errors.Wrap(err, errors.ErrCodeResolverUnavailable, "name-resolution request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Resolution{}, errors.Newf(errors.ErrCodeResolverUnavailable, "name-resolution service returned %d", resp.StatusCode)
	}

	var candidates []candidate
	if err := json.NewDecoder(resp.Body).Decode(&candidates); err != nil {
		return Resolution{}, errors.Wrap(err, errors.ErrCodeSerialization, "decode name-resolution response")
	}
	if len(candidates) == 0 {
		// An empty candidate list is a definitive miss, not a transient
		// failure; retrying cannot produce a match.
		return Resolution{}, retry.Permanent{Err: errors.Newf(errors.ErrCodeUnresolved, "no candidate for %q", name)}
	}
	top := candidates[0]
	return Resolution{CURIE: top.Curie, Label: top.Label}, nil
}
