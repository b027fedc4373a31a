package reasoning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/focusflow/splitd/internal/circuitbreaker"
	"github.com/focusflow/splitd/internal/models"
)

func newTestClient(baseURL string, timeout time.Duration) *HTTPClient {
	return NewHTTPClient(ClientConfig{
		BaseURL: baseURL,
		Timeout: timeout,
		Breaker: circuitbreaker.DefaultConfig(),
	}, zap.NewNop())
}

func intp(n int) *int { return &n }

func TestPropose_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/propose", r.URL.Path)

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "book the venue", req.NodeText)

		_ = json.NewEncoder(w).Encode([]Candidate{
			{Text: "shortlist three venues", EstimatedMinutes: intp(4)},
			{Text: "call the favorite and ask for quotes", EstimatedMinutes: intp(10)},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5*time.Second)
	candidates, err := c.Propose(context.Background(), Request{
		NodeText:        "book the venue",
		AncestorChain:   []string{"Plan mom's 60th birthday party"},
		Scope:           models.ScopeMulti,
		TargetCountHint: 4,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "shortlist three venues", candidates[0].Text)
}

func TestPropose_EmptyListIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]Candidate{})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5*time.Second)
	_, err := c.Propose(context.Background(), Request{NodeText: "anything"})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeMalformedResponse))
}

func TestPropose_SchemaViolationsAreMalformed(t *testing.T) {
	cases := []string{
		`[{"text": ""}]`,
		`[{"text": "ok"}, {"estimated_minutes": 3}]`,
		`[{"text": "ok", "estimated_minutes": -2}]`,
		`{"not": "a list"}`,
	}
	for _, body := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		c := newTestClient(srv.URL, 5*time.Second)
		_, err := c.Propose(context.Background(), Request{NodeText: "anything"})
		srv.Close()
		require.Error(t, err, body)
		assert.True(t, models.IsCode(err, models.ErrCodeMalformedResponse), body)
	}
}

func TestPropose_ServerErrorIsServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5*time.Second)
	_, err := c.Propose(context.Background(), Request{NodeText: "anything"})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeServiceUnavailable))
}

func TestPropose_TimeoutIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 50*time.Millisecond)
	_, err := c.Propose(context.Background(), Request{NodeText: "anything"})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeTimeout))
}

func TestPropose_CancellationCollapsesIntoTimeout(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := c.Propose(ctx, Request{NodeText: "anything"})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeTimeout))
}

func TestPropose_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := circuitbreaker.DefaultConfig()
	cfg.FailureThreshold = 2
	c := NewHTTPClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second, Breaker: cfg}, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := c.Propose(context.Background(), Request{NodeText: "anything"})
		require.Error(t, err)
		assert.True(t, models.IsCode(err, models.ErrCodeServiceUnavailable))
	}
}
