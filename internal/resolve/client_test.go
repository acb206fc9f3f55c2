package resolve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmedi/medirec/internal/retry"
	"github.com/openmedi/medirec/pkg/errors"
	"github.com/openmedi/medirec/pkg/types/drug"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 5}
}

func newTestServer(t *testing.T, hits *atomic.Int64, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/lookup", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("autocomplete"))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"amlodipine;valsartan", "amlodipine; valsartan"},
		{"  aspirin   500mg ", "aspirin 500mg"},
		{"a;b", "a; b"},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanName(tt.in))
	}
}

func TestResolve_TopCandidate(t *testing.T) {
	var hits atomic.Int64
	srv := newTestServer(t, &hits,
		`[{"curie":"CHEBI:15365","label":"aspirin"},{"curie":"CHEBI:99","label":"other"}]`,
		http.StatusOK)

	c := NewClient(srv.URL, NewMemoryCache(), WithRetryPolicy(fastPolicy()))
	res, err := c.Resolve(context.Background(), "aspirin")
	require.NoError(t, err)
	assert.Equal(t, Resolution{CURIE: "CHEBI:15365", Label: "aspirin"}, res)
}

func TestResolve_CacheHitSkipsService(t *testing.T) {
	var hits atomic.Int64
	srv := newTestServer(t, &hits, `[{"curie":"CHEBI:1","label":"x"}]`, http.StatusOK)

	c := NewClient(srv.URL, NewMemoryCache(), WithRetryPolicy(fastPolicy()))
	for i := 0; i < 3; i++ {
		_, err := c.Resolve(context.Background(), "aspirin")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), hits.Load(), "repeated lookups of one name hit the service once")
}

func TestResolve_VariantsShareCacheKey(t *testing.T) {
	var hits atomic.Int64
	srv := newTestServer(t, &hits, `[{"curie":"CHEBI:1","label":"x"}]`, http.StatusOK)

	c := NewClient(srv.URL, NewMemoryCache(), WithRetryPolicy(fastPolicy()))
	_, err := c.Resolve(context.Background(), "aspirin  500mg")
	require.NoError(t, err)
	_, err = c.Resolve(context.Background(), " aspirin 500mg ")
	require.NoError(t, err)
	assert.Equal(t, int64(1), hits.Load())
}

func TestResolve_BlankInputNoNetworkCall(t *testing.T) {
	var hits atomic.Int64
	srv := newTestServer(t, &hits, `[]`, http.StatusOK)

	c := NewClient(srv.URL, NewMemoryCache(), WithRetryPolicy(fastPolicy()))
	_, err := c.Resolve(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
	assert.Zero(t, hits.Load())
}

func TestResolve_ExhaustsRetriesThenSentinel(t *testing.T) {
	var hits atomic.Int64
	srv := newTestServer(t, &hits, `oops`, http.StatusInternalServerError)

	c := NewClient(srv.URL, NewMemoryCache(), WithRetryPolicy(fastPolicy()))
	res, err := c.Resolve(context.Background(), "mystery compound")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnresolved))
	assert.Equal(t, drug.ErrorSentinel, res.CURIE)
	assert.Equal(t, drug.ErrorSentinel, res.Label)
	assert.Equal(t, int64(5), hits.Load(), "exactly five attempts")
}

func TestResolve_FailureIsCached(t *testing.T) {
	var hits atomic.Int64
	srv := newTestServer(t, &hits, `[]`, http.StatusOK)

	c := NewClient(srv.URL, NewMemoryCache(), WithRetryPolicy(fastPolicy()))
	_, err := c.Resolve(context.Background(), "nothing")
	require.Error(t, err)
	firstHits := hits.Load()
	assert.Equal(t, int64(1), firstHits, "empty candidate list is a definitive miss, not retried")

	res, err := c.Resolve(context.Background(), "nothing")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnresolved))
	assert.True(t, res.Failed())
	assert.Equal(t, firstHits, hits.Load(), "cached failure skips the service")
}
