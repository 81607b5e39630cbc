package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/ai"
	"spendwise/internal/auth"
	"spendwise/internal/core"
	"spendwise/internal/services"
	"spendwise/internal/store/memory"
)

type fakeCategorizer struct {
	reply string
	err   error
}

func (f *fakeCategorizer) Categorize(context.Context, string, core.Money) (string, error) {
	return f.reply, f.err
}

type fakePredictor struct {
	prediction *ai.Prediction
	err        error
}

func (f *fakePredictor) Predict(context.Context, []core.Expense) (*ai.Prediction, error) {
	return f.prediction, f.err
}

type fakeReceiptReader struct {
	receipt *ai.Receipt
	err     error
}

func (f *fakeReceiptReader) ExtractReceipt(context.Context, []byte, string) (*ai.Receipt, error) {
	return f.receipt, f.err
}

type fakePublisher struct {
	mu    sync.Mutex
	syncs []string
	dels  []string
}

func (p *fakePublisher) PublishExpenseSync(_ context.Context, _, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncs = append(p.syncs, id)
	return nil
}

func (p *fakePublisher) PublishExpenseDelete(_ context.Context, _, id, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dels = append(p.dels, id)
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type testEnv struct {
	srv        *Server
	store      *memory.Store
	categorize *fakeCategorizer
	predictor  *fakePredictor
	receipts   *fakeReceiptReader
	publisher  *fakePublisher
}

type envOption func(*Deps)

// tokenVerifier accepts "<owner>-token" for any owner.
var tokenVerifier = auth.VerifierFunc(func(_ context.Context, token string) (string, error) {
	owner, ok := strings.CutSuffix(token, "-token")
	if !ok || owner == "" {
		return "", auth.ErrInvalidToken
	}
	return owner, nil
})

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{
		store:      memory.New(),
		categorize: &fakeCategorizer{reply: "Transportation"},
		predictor:  &fakePredictor{},
		receipts:   &fakeReceiptReader{},
		publisher:  &fakePublisher{},
	}
	expenses := services.NewExpenseService(env.store, env.categorize, env.publisher, time.Second)
	deps := Deps{
		Expenses:           expenses,
		Analytics:          services.NewAnalyticsService(env.store, 6),
		Predictions:        services.NewPredictionService(env.store, env.predictor),
		Receipts:           services.NewReceiptService(env.receipts, expenses),
		Settings:           services.NewSettingsService(env.store),
		Verifier:           tokenVerifier,
		Store:              env.store,
		RateLimitPerMinute: 1000,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	env.srv = NewServer(":0", deps)
	t.Cleanup(func() { _ = env.srv.Shutdown(context.Background()) })
	return env
}

// do sends a request as owner; an empty owner sends no credentials.
func (e *testEnv) do(t *testing.T, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set("Authorization", "Bearer "+owner+"-token")
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "body: %s", rr.Body.String())
	return v
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[errorBody](t, rr).Error
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestReadyReportsStoreFailure(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Store = fakePinger{err: errors.New("db down")} })

	rr := env.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "not_ready")
}

func TestMetricsExposeCounters(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/healthz", "", nil)

	rr := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
	body := rr.Body.String()
	for _, name := range []string{
		"http_requests_total 1",
		"rate_limit_rejections_total 0",
		"suspicious_requests_total",
		"suggestion_cache_entries 0",
		"uptime_seconds",
	} {
		assert.Contains(t, body, name)
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/expenses", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "missing bearer token", errorMessage(t, rr))

	req := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rr = httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "route not found", errorMessage(t, rr))
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)

	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.CORSOrigins = []string{"https://app.example.com"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/expenses", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitPerOwner(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.RateLimitPerMinute = 2 })

	for i := 0; i < 2; i++ {
		rr := env.do(t, http.MethodGet, "/api/settings", "alice", nil)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := env.do(t, http.MethodGet, "/api/settings", "alice", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Contains(t, errorMessage(t, rr), "rate limit")

	// Another owner has a budget of its own.
	rr = env.do(t, http.MethodGet, "/api/settings", "bob", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestShutdownIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, env.srv.Shutdown(ctx))
	require.NoError(t, env.srv.Shutdown(ctx))
}
