package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	apphistory "github.com/bryanwahyu/lucy-scan/internal/application/history"
	appprojects "github.com/bryanwahyu/lucy-scan/internal/application/projects"
	appscans "github.com/bryanwahyu/lucy-scan/internal/application/scans"
	appschedules "github.com/bryanwahyu/lucy-scan/internal/application/schedules"
	domain "github.com/bryanwahyu/lucy-scan/internal/domain/scans"
	"github.com/bryanwahyu/lucy-scan/internal/domain/schedules"
	"github.com/bryanwahyu/lucy-scan/internal/middleware"
)

// Deps are the services and infrastructure the HTTP surface needs.
type Deps struct {
	Scans     *appscans.Service
	Projects  *appprojects.Service
	History   *apphistory.Service
	Schedules *appschedules.Service
	Owners    middleware.OwnerResolver
	Hub       *Hub
	Metrics   *middleware.Metrics
	Limiter   *middleware.RateLimiter
	Health    map[string]middleware.HealthChecker
	// Ready adds to Health for /readyz, e.g. scan queue capacity.
	Ready map[string]middleware.HealthChecker
	URLs  middleware.URLPolicy
	// CORSOrigins also bounds WebSocket origins. Empty allows any origin.
	CORSOrigins []string
	Logger      *slog.Logger
}

type Router struct {
	Deps
}

func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = middleware.NewMetrics()
	}
	if d.Hub == nil {
		d.Hub = NewHub(d.CORSOrigins, d.Logger)
	}
	r := &Router{Deps: d}

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(middleware.LoggingMiddleware(d.Logger))
	mux.Use(d.Metrics.Middleware)

	mux.Get("/health", middleware.HealthHandler(d.Health))
	mux.Get("/healthz", middleware.LivenessHandler)
	mux.Get("/readyz", middleware.HealthHandler(merge(d.Health, d.Ready)))
	mux.Get("/metrics", d.Metrics.Handler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Use(middleware.APIKeyAuth(d.Owners, d.Logger))
		if d.Limiter != nil {
			rt.Use(middleware.RateLimitMiddleware(d.Limiter))
		}

		rt.Post("/projects", r.wrap(r.handleCreateProject))
		rt.Get("/projects", r.wrap(r.handleListProjects))
		rt.Post("/projects/{projectID}/targets", r.wrap(r.handleCreateTarget))
		rt.Get("/projects/{projectID}/targets", r.wrap(r.handleListTargets))
		rt.Get("/projects/{projectID}/documents", r.wrap(r.handleListDocuments))
		rt.Post("/projects/{projectID}/report-schedules", r.wrap(r.handleCreateReportSchedule))
		rt.Get("/projects/{projectID}/report-schedules", r.wrap(r.handleListReportSchedules))

		rt.Post("/targets/{targetID}/scans", r.wrap(r.handleStartScan))
		rt.Post("/targets/{targetID}/schedules", r.wrap(r.handleCreateScanSchedule))
		rt.Get("/targets/{targetID}/schedules", r.wrap(r.handleListScanSchedules))
		rt.Delete("/schedules/{scheduleID}", r.wrap(r.handleDeleteScanSchedule))

		rt.Get("/scans/{scanID}", r.wrap(r.handleGetScan))
		rt.Get("/scans/{scanID}/errors", r.wrap(r.handleScanErrors))
		rt.Get("/scans/{scanID}/events", r.wrap(r.handleScanEvents))

		rt.Get("/analytics", r.wrap(r.handleAnalytics))
	})

	return mux
}

func merge(a, b map[string]middleware.HealthChecker) map[string]middleware.HealthChecker {
	out := make(map[string]middleware.HealthChecker, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "not found")
		case errors.Is(err, domain.ErrForbidden):
			writeError(w, http.StatusForbidden, "forbidden")
		case errors.Is(err, domain.ErrTargetBusy):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrQueueFull):
			w.Header().Set("Retry-After", "30")
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, middleware.ErrInvalidInput), errors.Is(err, schedules.ErrInvalidCadence):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			r.Logger.Error("request failed", "method", req.Method, "path", req.URL.Path, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	_ = writeJSON(w, code, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, req *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed body: %v", middleware.ErrInvalidInput, err)
	}
	return nil
}

// param reads a UUID path parameter.
func param(req *http.Request, name, kind string) (string, error) {
	v := chi.URLParam(req, name)
	if err := middleware.ValidateID(kind, v); err != nil {
		return "", err
	}
	return v, nil
}

func owner(req *http.Request) string {
	return middleware.GetOwnerFromContext(req.Context())
}

func limit(req *http.Request) int {
	n, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	return middleware.ValidateLimit(n)
}

//
// ==== PROJECTS & TARGETS ====
//

// POST /v1/projects
// Body: {"name": "..."}
func (r *Router) handleCreateProject(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := decode(w, req, &body); err != nil {
		return err
	}
	name, err := middleware.ValidateName(body.Name)
	if err != nil {
		return err
	}
	p, err := r.Projects.CreateProject(req.Context(), owner(req), name)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, p)
}

// GET /v1/projects
func (r *Router) handleListProjects(w http.ResponseWriter, req *http.Request) error {
	list, err := r.Projects.ListProjects(req.Context(), owner(req))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /v1/projects/{projectID}/targets
// Body: {"url": "https://..."}
func (r *Router) handleCreateTarget(w http.ResponseWriter, req *http.Request) error {
	projectID, err := param(req, "projectID", "project")
	if err != nil {
		return err
	}
	var body struct {
		URL string `json:"url"`
	}
	if err := decode(w, req, &body); err != nil {
		return err
	}
	url := strings.TrimSpace(body.URL)
	if err := r.URLs.ValidateURL(url); err != nil {
		return err
	}
	t, err := r.Projects.CreateTarget(req.Context(), owner(req), projectID, url)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, t)
}

// GET /v1/projects/{projectID}/targets
func (r *Router) handleListTargets(w http.ResponseWriter, req *http.Request) error {
	projectID, err := param(req, "projectID", "project")
	if err != nil {
		return err
	}
	list, err := r.Projects.ListTargets(req.Context(), owner(req), projectID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/projects/{projectID}/documents?limit=20
func (r *Router) handleListDocuments(w http.ResponseWriter, req *http.Request) error {
	projectID, err := param(req, "projectID", "project")
	if err != nil {
		return err
	}
	list, err := r.Projects.ListDocuments(req.Context(), owner(req), projectID, limit(req))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

//
// ==== SCANS ====
//

// POST /v1/targets/{targetID}/scans
// Balikin 202 langsung, pipeline jalan di worker pool.
func (r *Router) handleStartScan(w http.ResponseWriter, req *http.Request) error {
	targetID, err := param(req, "targetID", "target")
	if err != nil {
		return err
	}
	res, err := r.Scans.StartScan(req.Context(), owner(req), domain.TargetID(targetID))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, res)
}

// GET /v1/scans/{scanID}
func (r *Router) handleGetScan(w http.ResponseWriter, req *http.Request) error {
	scanID, err := param(req, "scanID", "scan")
	if err != nil {
		return err
	}
	details, err := r.Scans.GetScanDetails(req.Context(), owner(req), domain.ScanID(scanID))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, details)
}

// GET /v1/scans/{scanID}/errors?limit=20
func (r *Router) handleScanErrors(w http.ResponseWriter, req *http.Request) error {
	scanID, err := param(req, "scanID", "scan")
	if err != nil {
		return err
	}
	list, err := r.Scans.ListScanErrors(req.Context(), owner(req), domain.ScanID(scanID), limit(req))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/scans/{scanID}/events (WebSocket)
func (r *Router) handleScanEvents(w http.ResponseWriter, req *http.Request) error {
	scanID, err := param(req, "scanID", "scan")
	if err != nil {
		return err
	}
	id := domain.ScanID(scanID)
	ownerID := owner(req)
	// ownership is checked before the upgrade so failures stay plain HTTP
	if _, err := r.Scans.GetScanDetails(req.Context(), ownerID, id); err != nil {
		return err
	}
	r.Hub.Serve(w, req, id, func(ctx context.Context) (domain.StatusEvent, error) {
		d, err := r.Scans.GetScanDetails(ctx, ownerID, id)
		if err != nil {
			return domain.StatusEvent{}, err
		}
		return currentEvent(d), nil
	})
	return nil
}

func currentEvent(d *domain.ScanDetails) domain.StatusEvent {
	e := domain.StatusEvent{
		ScanID:   d.Scan.ID,
		TargetID: d.Scan.TargetID,
		Status:   d.Scan.Status,
		At:       d.Scan.StartedAt,
	}
	if d.Scan.FinishedAt != nil {
		e.At = *d.Scan.FinishedAt
	}
	if d.Report != nil {
		score := d.Report.RiskScore
		e.RiskScore = &score
	}
	return e
}

//
// ==== ANALYTICS ====
//

// GET /v1/analytics?days=30
func (r *Router) handleAnalytics(w http.ResponseWriter, req *http.Request) error {
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))
	a, err := r.History.GetAnalytics(req.Context(), owner(req), days)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, a)
}

//
// ==== SCHEDULES ====
//

// POST /v1/targets/{targetID}/schedules
func (r *Router) handleCreateScanSchedule(w http.ResponseWriter, req *http.Request) error {
	targetID, err := param(req, "targetID", "target")
	if err != nil {
		return err
	}
	var cmd appschedules.CreateScanScheduleCommand
	if err := decode(w, req, &cmd); err != nil {
		return err
	}
	sc, err := r.Schedules.CreateScanSchedule(req.Context(), owner(req), domain.TargetID(targetID), cmd)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, sc)
}

// GET /v1/targets/{targetID}/schedules
func (r *Router) handleListScanSchedules(w http.ResponseWriter, req *http.Request) error {
	targetID, err := param(req, "targetID", "target")
	if err != nil {
		return err
	}
	list, err := r.Schedules.ListScanSchedules(req.Context(), owner(req), domain.TargetID(targetID))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// DELETE /v1/schedules/{scheduleID}
func (r *Router) handleDeleteScanSchedule(w http.ResponseWriter, req *http.Request) error {
	id, err := param(req, "scheduleID", "schedule")
	if err != nil {
		return err
	}
	if err := r.Schedules.DeleteScanSchedule(req.Context(), owner(req), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/projects/{projectID}/report-schedules
func (r *Router) handleCreateReportSchedule(w http.ResponseWriter, req *http.Request) error {
	projectID, err := param(req, "projectID", "project")
	if err != nil {
		return err
	}
	var cmd appschedules.CreateReportScheduleCommand
	if err := decode(w, req, &cmd); err != nil {
		return err
	}
	rs, err := r.Schedules.CreateReportSchedule(req.Context(), owner(req), projectID, cmd)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, rs)
}

// GET /v1/projects/{projectID}/report-schedules
func (r *Router) handleListReportSchedules(w http.ResponseWriter, req *http.Request) error {
	projectID, err := param(req, "projectID", "project")
	if err != nil {
		return err
	}
	list, err := r.Schedules.ListReportSchedules(req.Context(), owner(req), projectID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// Server wraps http.Server with the timeouts used in production.
func Server(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// WebSocket streams outlive a normal write deadline
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
}
