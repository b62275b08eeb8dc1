package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/lucy-scan/internal/domain/projects"
	"github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

type keyring map[string]string

func (k keyring) OwnerByAPIKey(_ context.Context, key string) (*projects.Owner, error) {
	if key == "explode" {
		return nil, errors.New("db down")
	}
	id, ok := k[key]
	if !ok {
		return nil, scans.ErrNotFound
	}
	return &projects.Owner{ID: id}, nil
}

func echoOwner() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetOwnerFromContext(r.Context())))
	})
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth(keyring{"secret": "o1"}, nil)(echoOwner())

	cases := []struct {
		name   string
		path   string
		header string
		code   int
		body   string
	}{
		{"bearer", "/v1/projects", "Bearer secret", http.StatusOK, "o1"},
		{"bare key", "/v1/projects", "secret", http.StatusOK, "o1"},
		{"query param", "/v1/scans/x/events?api_key=secret", "", http.StatusOK, "o1"},
		{"missing", "/v1/projects", "", http.StatusUnauthorized, ""},
		{"unknown", "/v1/projects", "Bearer nope", http.StatusUnauthorized, ""},
		{"resolver error", "/v1/projects", "Bearer explode", http.StatusInternalServerError, ""},
		{"public path", "/healthz", "", http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, tc.body, rec.Body.String())
			}
		})
	}
}

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(2, 1)
	now := tb.lastSeen

	ok, _ := tb.Allow(now)
	assert.True(t, ok)
	ok, _ = tb.Allow(now)
	assert.True(t, ok)
	ok, wait := tb.Allow(now)
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = tb.Allow(now.Add(1500 * time.Millisecond))
	assert.True(t, ok)
}

func TestTokenBucket_NoRefill(t *testing.T) {
	tb := NewTokenBucket(1, 0)
	now := tb.lastSeen
	ok, _ := tb.Allow(now)
	assert.True(t, ok)
	ok, wait := tb.Allow(now.Add(time.Hour))
	assert.False(t, ok)
	assert.Equal(t, time.Minute, wait)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, 0)
	h := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := func(owner string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/v1/projects", nil)
		if owner != "" {
			r = r.WithContext(WithOwner(r.Context(), owner))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, req("o1").Code)
	limited := req("o1")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))

	// separate buckets per owner, anonymous callers keyed by IP
	assert.Equal(t, http.StatusNoContent, req("o2").Code)
	assert.Equal(t, http.StatusNoContent, req("").Code)
	assert.Equal(t, 3, rl.Len())
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := NewRateLimiter(5, 1)
	rl.Allow("a")
	rl.sweep(time.Now().Add(5 * time.Minute))
	assert.Equal(t, 1, rl.Len())
	rl.sweep(time.Now().Add(11 * time.Minute))
	assert.Equal(t, 0, rl.Len())
}

func TestValidateURL(t *testing.T) {
	strict := URLPolicy{}
	for _, u := range []string{"https://example.com", "http://example.com:8080/path?q=1", "  https://example.org  "} {
		assert.NoError(t, strict.ValidateURL(u), u)
	}
	for _, u := range []string{
		"",
		"ftp://example.com",
		"javascript:alert(1)",
		"https://",
		"https://user:pw@example.com",
		"http://localhost:3000",
		"http://127.0.0.1",
		"http://10.0.0.8/admin",
		"http://169.254.169.254/latest/meta-data",
		"http://db.internal",
	} {
		err := strict.ValidateURL(u)
		assert.ErrorIs(t, err, ErrInvalidInput, u)
	}

	dev := URLPolicy{AllowPrivate: true}
	assert.NoError(t, dev.ValidateURL("http://localhost:3000"))
	assert.NoError(t, dev.ValidateURL("http://192.168.1.10"))
}

func TestValidateIDAndName(t *testing.T) {
	assert.NoError(t, ValidateID("project", "8d7c6c1e-8c5b-4d0e-9a57-0f1d1d6b3f11"))
	assert.ErrorIs(t, ValidateID("project", "nope"), ErrInvalidInput)
	assert.ErrorIs(t, ValidateID("project", ""), ErrInvalidInput)

	name, err := ValidateName("  Shop\x00 \x07")
	require.NoError(t, err)
	assert.Equal(t, "Shop", name)
	_, err = ValidateName("   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, 20, ValidateLimit(0))
	assert.Equal(t, 100, ValidateLimit(500))
	assert.Equal(t, 7, ValidateLimit(7))
}

func TestHealthHandler(t *testing.T) {
	ok := HealthHandler(map[string]HealthChecker{
		"database": CheckFunc(func(context.Context) error { return nil }),
	})
	rec := httptest.NewRecorder()
	ok(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	bad := HealthHandler(map[string]HealthChecker{
		"database": CheckFunc(func(context.Context) error { return nil }),
		"storage":  CheckFunc(func(context.Context) error { return errors.New("bucket gone") }),
	})
	rec = httptest.NewRecorder()
	bad(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "healthy", body.Checks["database"].Status)
	assert.Equal(t, "bucket gone", body.Checks["storage"].Message)
}

func TestMetricsMiddleware(t *testing.T) {
	m := NewMetrics()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))

	assert.EqualValues(t, 2, m.RequestsTotal.Load())
	assert.EqualValues(t, 1, m.RequestsSuccess.Load())
	assert.EqualValues(t, 1, m.RequestsFailed.Load())
	assert.EqualValues(t, 0, m.RequestsInProgress.Load())

	m.ScanStarted()
	m.ScanFinished(false, 2*time.Second)
	snap := m.Snapshot()
	assert.EqualValues(t, 1, snap["scans_completed"])
	assert.InDelta(t, 2.0, snap["scan_avg_duration_sec"], 0.001)
}
