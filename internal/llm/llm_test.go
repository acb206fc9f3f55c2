package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/pkg/errors"
)

// canned is a ChatModel returning a fixed reply.
type canned struct {
	reply string
	err   error
	last  string
}

func (c *canned) Complete(_ context.Context, prompt string) (string, error) {
	c.last = prompt
	return c.reply, c.err
}

func TestHTTPClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 1)

		json.NewEncoder(w).Encode(chatResponse{Choices: []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: "hello"}}}})
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL, APIKey: "sk-test", Model: "test-model"}, logging.NewNopLogger())
	reply, err := c.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)
}

func TestHTTPClient_BackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL}, logging.NewNopLogger())
	_, err := c.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeLLMBackend))
}

func TestSplitter_ParsesSemicolonList(t *testing.T) {
	m := &canned{reply: "amlodipine; valsartan; hydrochlorothiazide"}
	names, err := NewSplitter(m).Split(context.Background(), "Exforge HCT")
	require.NoError(t, err)
	assert.Equal(t, []string{"amlodipine", "valsartan", "hydrochlorothiazide"}, names)
	assert.Contains(t, m.last, "Exforge HCT")
}

func TestSplitter_ToleratesBulletedReply(t *testing.T) {
	m := &canned{reply: "1. amlodipine\n2. valsartan"}
	names, err := NewSplitter(m).Split(context.Background(), "Exforge")
	require.NoError(t, err)
	assert.Equal(t, []string{"amlodipine", "valsartan"}, names)
}

func TestSplitter_EmptyReplyFails(t *testing.T) {
	m := &canned{reply: "   "}
	_, err := NewSplitter(m).Split(context.Background(), "Exforge")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSplitFailed))
}

func TestSplitter_BlankProduct(t *testing.T) {
	_, err := NewSplitter(&canned{}).Split(context.Background(), " ")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestTagger_ParsesBooleans(t *testing.T) {
	m := &canned{reply: `{"allergen": false, "vaccine": true}`}
	tags, errs := NewTagger(m).Tag(context.Background(), "influenza vaccine", []string{FeatureAllergen, FeatureVaccine})
	assert.Empty(t, errs)
	assert.Equal(t, map[string]string{FeatureAllergen: "false", FeatureVaccine: "true"}, tags)
}

func TestTagger_ToleratesFencedReply(t *testing.T) {
	m := &canned{reply: "Here you go:\n```json\n{\"allergen\": true}\n```"}
	tags, errs := NewTagger(m).Tag(context.Background(), "peanut extract", []string{FeatureAllergen})
	assert.Empty(t, errs)
	assert.Equal(t, "true", tags[FeatureAllergen])
}

func TestTagger_MalformedReplyGivesFieldNulls(t *testing.T) {
	m := &canned{reply: "I cannot answer that."}
	tags, errs := NewTagger(m).Tag(context.Background(), "aspirin", []string{FeatureAllergen, FeatureVaccine})
	assert.Empty(t, tags)
	require.Len(t, errs, 2, "one error per feature, batch continues")
	for _, err := range errs {
		assert.True(t, errors.IsCode(err, errors.ErrCodeTagMalformed))
	}
}

func TestTagger_MissingFeatureIsFieldLevel(t *testing.T) {
	m := &canned{reply: `{"allergen": false}`}
	tags, errs := NewTagger(m).Tag(context.Background(), "aspirin", []string{FeatureAllergen, FeatureVaccine})
	assert.Equal(t, "false", tags[FeatureAllergen])
	_, present := tags[FeatureVaccine]
	assert.False(t, present)
	require.Len(t, errs, 1)
}
