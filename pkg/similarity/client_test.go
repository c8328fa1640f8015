package similarity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bisq-support/review-engine/internal/resilience"
)

func testGuard() *resilience.Guard {
	return resilience.NewGuard(resilience.GuardConfig{
		Service: ServiceName,
		Retry:   resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	}, nil)
}

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/faqs/search", r.URL.Path)
		assert.Equal(t, "how to open a trade", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		w.Write([]byte(`{"matches":[{"faq_id":"f1","question":"How do I open a trade?","answer":"Trade tab","category":"trading","similarity":0.97}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithGuard(testGuard()))
	got, err := c.Search(context.Background(), "how to open a trade", 5)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "f1", got[0].FAQID)
	assert.InDelta(t, 0.97, got[0].Similarity, 1e-9)
}

func TestSearch_NoLimitParam(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("limit"))
		w.Write([]byte(`{"matches":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL), WithGuard(testGuard()))
	got, err := c.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_TransientThenSuccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"matches":[{"faq_id":"f2","similarity":0.7}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL), WithGuard(testGuard()), WithRateLimit(100))
	got, err := c.Search(context.Background(), "q", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearch_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`internal error`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL), WithGuard(testGuard()))
	_, err := c.Search(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.True(t, resilience.IsTransient(err))
}

func TestSearch_BadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL), WithGuard(testGuard()))
	_, err := c.Search(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}
