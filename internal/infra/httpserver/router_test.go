package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/lucy-scan/internal/application"
	apphistory "github.com/bryanwahyu/lucy-scan/internal/application/history"
	appprojects "github.com/bryanwahyu/lucy-scan/internal/application/projects"
	appscans "github.com/bryanwahyu/lucy-scan/internal/application/scans"
	appschedules "github.com/bryanwahyu/lucy-scan/internal/application/schedules"
	"github.com/bryanwahyu/lucy-scan/internal/domain/projects"
	domain "github.com/bryanwahyu/lucy-scan/internal/domain/scans"
	"github.com/bryanwahyu/lucy-scan/internal/infra/db/memory"
	"github.com/bryanwahyu/lucy-scan/internal/middleware"
)

type stubPage struct{}

func (stubPage) Evaluate(context.Context, string, any) error { return nil }
func (stubPage) Poll(context.Context, string, any) error     { return nil }
func (stubPage) Close() error                                { return nil }

type stubBrowser struct{}

func (stubBrowser) Open(context.Context, string) (domain.Page, error) { return stubPage{}, nil }

type stubEngine struct{}

func (stubEngine) Analyze(context.Context, domain.Page) (domain.EngineResult, error) {
	return domain.EngineResult{Raw: []byte(`{"violations":[]}`)}, nil
}

type testAPI struct {
	store   *memory.Store
	pool    *appscans.Pool
	handler http.Handler
	hub     *Hub
}

const (
	ownerKey = "owner-key"
	otherKey = "other-key"
)

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.CreateOwner(ctx, &projects.Owner{ID: "o1", Email: "o1@example.com", APIKey: ownerKey}))
	require.NoError(t, store.CreateOwner(ctx, &projects.Owner{ID: "o2", Email: "o2@example.com", APIKey: otherKey}))

	clock := application.Fixed(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	pool := appscans.NewPool(1, 4, nil)
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	hist := &apphistory.Service{Scans: store, History: store, Projects: store, Clock: clock}
	hub := NewHub(nil, nil)
	scansSvc := &appscans.Service{
		Repo: store, Projects: store, Errors: store, History: hist,
		Browser: stubBrowser{}, Engine: stubEngine{}, Pool: pool,
		Events: hub, Clock: clock,
	}
	h := NewRouter(Deps{
		Scans:     scansSvc,
		Projects:  &appprojects.Service{Repo: store, Scans: store, Documents: store, Clock: clock},
		History:   hist,
		Schedules: &appschedules.Service{Repo: store, Scans: store, Projects: store, Runner: scansSvc, Clock: clock},
		Owners:    store,
		Hub:       hub,
		Limiter:   middleware.NewRateLimiter(100, 10),
		Health:    map[string]middleware.HealthChecker{"database": middleware.CheckFunc(func(context.Context) error { return nil })},
		Ready:     map[string]middleware.HealthChecker{"scan_queue": pool},
	})
	return &testAPI{store: store, pool: pool, handler: h, hub: hub}
}

func (a *testAPI) do(t *testing.T, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func (a *testAPI) projectWithTarget(t *testing.T) (string, string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/projects", ownerKey, map[string]string{"name": "Shop"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decodeBody[projects.Project](t, rec)

	rec = a.do(t, http.MethodPost, "/v1/projects/"+p.ID+"/targets", ownerKey, map[string]string{"url": " https://shop.example "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tg := decodeBody[domain.Target](t, rec)
	assert.Equal(t, "https://shop.example", tg.URL)
	return p.ID, string(tg.ID)
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/v1/projects", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/v1/projects", "wrong", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/v1/projects", ownerKey, nil).Code)
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/readyz", "", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/metrics", "", nil).Code)
}

func TestReadyz_PoolStopped(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.pool.Shutdown(context.Background()))

	rec := api.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody[middleware.HealthStatus](t, rec)
	assert.Equal(t, "unhealthy", body.Checks["scan_queue"].Status)
	assert.Equal(t, "healthy", body.Checks["database"].Status)

	// liveness and health ignore the queue
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/health", "", nil).Code)
}

func TestProjectAndTargetFlow(t *testing.T) {
	api := newTestAPI(t)
	projectID, targetID := api.projectWithTarget(t)

	rec := api.do(t, http.MethodGet, "/v1/projects", ownerKey, nil)
	list := decodeBody[[]projects.Project](t, rec)
	require.Len(t, list, 1)

	rec = api.do(t, http.MethodGet, "/v1/projects/"+projectID+"/targets", ownerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	targets := decodeBody[[]domain.Target](t, rec)
	require.Len(t, targets, 1)
	assert.Equal(t, domain.TargetID(targetID), targets[0].ID)

	// another owner sees a 403, not the data
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/v1/projects/"+projectID+"/targets", otherKey, nil).Code)

	rec = api.do(t, http.MethodGet, "/v1/projects/"+projectID+"/documents", ownerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestValidationErrors(t *testing.T) {
	api := newTestAPI(t)
	projectID, _ := api.projectWithTarget(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"bad project id", http.MethodGet, "/v1/projects/not-a-uuid/targets", nil},
		{"empty name", http.MethodPost, "/v1/projects", map[string]string{"name": "  "}},
		{"unknown field", http.MethodPost, "/v1/projects", `{"name":"x","extra":1}`},
		{"malformed json", http.MethodPost, "/v1/projects", `{"name":`},
		{"private url", http.MethodPost, "/v1/projects/" + projectID + "/targets", map[string]string{"url": "http://127.0.0.1:8080"}},
		{"bad scheme", http.MethodPost, "/v1/projects/" + projectID + "/targets", map[string]string{"url": "file:///etc/passwd"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.do(t, tc.method, tc.path, ownerKey, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decodeBody[map[string]string](t, rec)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestNotFound(t *testing.T) {
	api := newTestAPI(t)
	missing := uuid.NewString()
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/v1/scans/"+missing, ownerKey, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/v1/targets/"+missing+"/scans", ownerKey, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, "/v1/schedules/"+missing, ownerKey, nil).Code)
}

func TestStartScanAndFetch(t *testing.T) {
	api := newTestAPI(t)
	_, targetID := api.projectWithTarget(t)

	rec := api.do(t, http.MethodPost, "/v1/targets/"+targetID+"/scans", otherKey, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/v1/targets/"+targetID+"/scans", ownerKey, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	res := decodeBody[appscans.StartScanResult](t, rec)
	assert.Equal(t, domain.StatusRunning, res.Status)

	require.NoError(t, api.pool.Shutdown(context.Background()))

	rec = api.do(t, http.MethodGet, "/v1/scans/"+string(res.ScanID), ownerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	details := decodeBody[domain.ScanDetails](t, rec)
	assert.Equal(t, domain.StatusCompleted, details.Scan.Status)
	assert.Equal(t, "https://shop.example", details.URL)
	require.NotNil(t, details.Report)
	assert.Equal(t, 0, details.Report.RiskScore)

	rec = api.do(t, http.MethodGet, "/v1/scans/"+string(res.ScanID)+"/errors", ownerKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/v1/scans/"+string(res.ScanID), otherKey, nil).Code)
}

func TestStartScan_Busy(t *testing.T) {
	api := newTestAPI(t)
	_, targetID := api.projectWithTarget(t)

	ok, err := api.store.AcquireTarget(context.Background(), domain.TargetID(targetID))
	require.NoError(t, err)
	require.True(t, ok)

	rec := api.do(t, http.MethodPost, "/v1/targets/"+targetID+"/scans", ownerKey, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartScan_QueueFull(t *testing.T) {
	api := newTestAPI(t)
	_, targetID := api.projectWithTarget(t)
	require.NoError(t, api.pool.Shutdown(context.Background()))

	rec := api.do(t, http.MethodPost, "/v1/targets/"+targetID+"/scans", ownerKey, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

func TestScanSchedules(t *testing.T) {
	api := newTestAPI(t)
	projectID, targetID := api.projectWithTarget(t)

	rec := api.do(t, http.MethodPost, "/v1/targets/"+targetID+"/schedules", ownerKey,
		`{"frequency":"daily","time_of_day":"09:30"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "2024-03-02T09:30:00Z", created["next_run_at"])

	rec = api.do(t, http.MethodPost, "/v1/targets/"+targetID+"/schedules", ownerKey,
		`{"frequency":"quarterly","time_of_day":"09:30"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/v1/targets/"+targetID+"/schedules", ownerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]map[string]any](t, rec)
	require.Len(t, list, 1)

	id := created["id"].(string)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodDelete, "/v1/schedules/"+id, otherKey, nil).Code)
	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, "/v1/schedules/"+id, ownerKey, nil).Code)

	rec = api.do(t, http.MethodPost, "/v1/projects/"+projectID+"/report-schedules", ownerKey,
		`{"frequency":"weekly","time_of_day":"07:00","day_of_week":1,"report_type":"executive_summary","recipient_emails":["boss@example.com"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/v1/projects/"+projectID+"/report-schedules", ownerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]map[string]any](t, rec), 1)
}

func TestAnalyticsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.projectWithTarget(t)

	rec := api.do(t, http.MethodGet, "/v1/analytics?days=7", ownerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 7, body["days"])
}

func TestScanEvents_FinishedScan(t *testing.T) {
	api := newTestAPI(t)
	_, targetID := api.projectWithTarget(t)

	rec := api.do(t, http.MethodPost, "/v1/targets/"+targetID+"/scans", ownerKey, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	res := decodeBody[appscans.StartScanResult](t, rec)
	require.NoError(t, api.pool.Shutdown(context.Background()))

	srv := httptest.NewServer(api.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/scans/" + string(res.ScanID) + "/events?api_key=" + ownerKey
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var e domain.StatusEvent
	require.NoError(t, json.Unmarshal(data, &e))
	assert.Equal(t, res.ScanID, e.ScanID)
	assert.Equal(t, domain.StatusCompleted, e.Status)
	require.NotNil(t, e.RiskScore)

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestScanEvents_OriginPatterns(t *testing.T) {
	testCases := []struct {
		name     string
		patterns []string
		accepted bool
	}{
		{"none configured allows any origin", nil, true},
		{"listed origin only", []string{"app.example"}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			api := newTestAPI(t)
			if tc.patterns != nil {
				api.hub.originPatterns = tc.patterns
			}
			_, targetID := api.projectWithTarget(t)
			rec := api.do(t, http.MethodPost, "/v1/targets/"+targetID+"/scans", ownerKey, nil)
			res := decodeBody[appscans.StartScanResult](t, rec)
			require.NoError(t, api.pool.Shutdown(context.Background()))

			srv := httptest.NewServer(api.handler)
			defer srv.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/scans/" + string(res.ScanID) + "/events?api_key=" + ownerKey
			conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
				HTTPHeader: http.Header{"Origin": {"https://dashboard.example"}},
			})
			if tc.accepted {
				require.NoError(t, err)
				conn.CloseNow()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestScanEvents_ForbiddenBeforeUpgrade(t *testing.T) {
	api := newTestAPI(t)
	_, targetID := api.projectWithTarget(t)
	rec := api.do(t, http.MethodPost, "/v1/targets/"+targetID+"/scans", ownerKey, nil)
	res := decodeBody[appscans.StartScanResult](t, rec)

	rec = api.do(t, http.MethodGet, "/v1/scans/"+string(res.ScanID)+"/events", otherKey, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHubPublish(t *testing.T) {
	hub := NewHub(nil, nil)
	sub := hub.subscribe("s1")
	assert.Equal(t, 1, hub.Subscribers("s1"))

	hub.Publish(domain.StatusEvent{ScanID: "s1", Status: domain.StatusRunning})
	hub.Publish(domain.StatusEvent{ScanID: "other", Status: domain.StatusRunning})
	require.Len(t, sub.events, 1)

	// a full buffer drops instead of blocking
	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Publish(domain.StatusEvent{ScanID: "s1", Status: domain.StatusRunning})
	}
	assert.Len(t, sub.events, subscriberBuffer)

	hub.unsubscribe("s1", sub)
	assert.Equal(t, 0, hub.Subscribers("s1"))
}
