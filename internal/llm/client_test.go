package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alebairos/supertask-pipeline/internal/pipelineerr"
)

func TestCompleteReturnsTextOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completionResponse{Text: "generated text"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	text, err := c.Complete(context.Background(), "system", "user", 100, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "generated text", text)
}

func TestCompleteRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(completionResponse{Text: "ok after retry"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	text, err := c.Complete(context.Background(), "system", "user", 100, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "ok after retry", text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCompleteNonRetryableAuthFailureSurfacesLLMRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad credentials"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad-key")
	_, err := c.Complete(context.Background(), "system", "user", 100, 0.7)
	require.Error(t, err)

	var perr *pipelineerr.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, pipelineerr.LLMRejected, perr.Kind)
}

func TestCompleteExhaustedRetriesSurfacesLLMUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	_, err := c.Complete(context.Background(), "system", "user", 100, 0.7)
	require.Error(t, err)

	var perr *pipelineerr.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, pipelineerr.LLMUnavailable, perr.Kind)
}

func TestAuditSinkRecordsRequestAndResponse(t *testing.T) {
	dir := t.TempDir()
	auditPath := dir + "/audit.jsonl"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse{Text: "audited text"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", WithAuditSink(NewAuditSink(auditPath)))
	_, err := c.Complete(context.Background(), "system msg", "user msg", 100, 0.7)
	require.NoError(t, err)

	raw, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "system msg")
	assert.Contains(t, string(raw), "audited text")
}
