package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/nerrad567/floorheat-core/internal/audit"
	"github.com/nerrad567/floorheat-core/internal/control"
	"github.com/nerrad567/floorheat-core/internal/httpserver"
)

// healthCheckTimeout bounds all component checks of one /health request.
const healthCheckTimeout = 2 * time.Second

// Health states.
const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Components    map[string]string `json:"components,omitempty"`
}

// SystemMetrics is the body of /metrics.
type SystemMetrics struct {
	Timestamp     string               `json:"timestamp"`
	Version       string               `json:"version"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	Runtime       RuntimeMetrics       `json:"runtime"`
	Dispatch      httpserver.Stats     `json:"dispatch"`
	Control       *control.Stats       `json:"control,omitempty"`
	MQTT          *MQTTMetrics         `json:"mqtt,omitempty"`
	Audit         *audit.RecorderStats `json:"audit,omitempty"`
	Database      *DatabaseMetrics     `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleHealth runs every registered check. Any failure turns the status
// to degraded and the response to 503.
func (a *API) handleHealth(req *httpserver.Request, _ any) error {
	resp := HealthResponse{
		Status:        healthOK,
		Version:       a.version,
		UptimeSeconds: int64(time.Since(a.startTime).Seconds()),
	}

	if len(a.checks) > 0 {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()

		names := make([]string, 0, len(a.checks))
		for name := range a.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp.Components = make(map[string]string, len(names))
		for _, name := range names {
			if err := a.checks[name].HealthCheck(ctx); err != nil {
				a.logger.Warn("health check failed", "component", name, "error", err)
				resp.Components[name] = err.Error()
				resp.Status = healthDegraded
				continue
			}
			resp.Components[name] = healthOK
		}
	}

	status := http.StatusOK
	if resp.Status != healthOK {
		status = http.StatusServiceUnavailable
	}
	return writeJSON(req, status, resp)
}

// handleMetrics returns runtime, dispatch and component counters.
func (a *API) handleMetrics(req *httpserver.Request, _ any) error {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       a.version,
		UptimeSeconds: int64(time.Since(a.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Dispatch: a.server.Stats(),
	}

	if a.loop != nil {
		st := a.loop.Stats()
		metrics.Control = &st
	}
	if a.mqtt != nil {
		metrics.MQTT = &MQTTMetrics{Connected: a.mqtt.IsConnected()}
	}
	if a.recorder != nil {
		st := a.recorder.Stats()
		metrics.Audit = &st
	}
	if a.db != nil {
		dbStats := a.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	return writeJSON(req, http.StatusOK, metrics)
}
