package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      atomic.Uint64
	RequestsInProgress atomic.Int64
	RequestsSuccess    atomic.Uint64
	RequestsFailed     atomic.Uint64
	ScansTotal         atomic.Uint64
	ScansRunning       atomic.Int64
	ScansCompleted     atomic.Uint64
	ScansFailed        atomic.Uint64
	ScanMillisTotal    atomic.Uint64
	StartTime          time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// ScanStarted counts a scan entering the pipeline.
func (m *Metrics) ScanStarted() {
	m.ScansTotal.Add(1)
	m.ScansRunning.Add(1)
}

// ScanFinished counts a scan leaving the pipeline.
func (m *Metrics) ScanFinished(failed bool, d time.Duration) {
	m.ScansRunning.Add(-1)
	if failed {
		m.ScansFailed.Add(1)
		return
	}
	m.ScansCompleted.Add(1)
	if d > 0 {
		m.ScanMillisTotal.Add(uint64(d.Milliseconds()))
	}
}

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]any {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	completed := m.ScansCompleted.Load()
	avg := 0.0
	if completed > 0 {
		avg = float64(m.ScanMillisTotal.Load()) / float64(completed) / 1000
	}
	return map[string]any{
		"requests_total":        m.RequestsTotal.Load(),
		"requests_in_progress":  m.RequestsInProgress.Load(),
		"requests_success":      m.RequestsSuccess.Load(),
		"requests_failed":       m.RequestsFailed.Load(),
		"scans_total":           m.ScansTotal.Load(),
		"scans_running":         m.ScansRunning.Load(),
		"scans_completed":       completed,
		"scans_failed":          m.ScansFailed.Load(),
		"scan_avg_duration_sec": avg,
		"uptime_seconds":        time.Since(m.StartTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"num_gc":            mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsTotal.Add(1)
		m.RequestsInProgress.Add(1)
		defer m.RequestsInProgress.Add(-1)

		wrapped := wrap(w)
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.RequestsSuccess.Add(1)
		} else {
			m.RequestsFailed.Add(1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
