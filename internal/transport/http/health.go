package httptransport

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"ambrosia-pos-gateway/internal/platform/observability"
)

// StatsSource reports session store statistics.
type StatsSource interface {
	Stats(ctx context.Context) (map[string]any, error)
}

type HealthHandler struct {
	started  time.Time
	version  string
	sessions StatsSource
	extra    []namedSource
}

type namedSource struct {
	name   string
	source StatsSource
}

func NewHealthHandler(version string, sessions StatsSource) *HealthHandler {
	return &HealthHandler{started: time.Now(), version: version, sessions: sessions}
}

// WithSource adds another stats section under name. A nil source is ignored.
func (h *HealthHandler) WithSource(name string, source StatsSource) *HealthHandler {
	if source != nil {
		h.extra = append(h.extra, namedSource{name: name, source: source})
	}
	return h
}

func (h *HealthHandler) RegisterRoutes(router *Router) {
	router.Gateway.GET("/healthz", h.Health)
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	data := gin.H{
		"status":     "ok",
		"version":    h.version,
		"uptime":     time.Since(h.started).Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
		"metrics":    observability.Snapshot(),
		"host":       hostStats(ctx),
	}

	if h.sessions != nil {
		stats, err := h.sessions.Stats(ctx)
		if err != nil {
			data["status"] = "degraded"
			data["sessions"] = gin.H{"error": err.Error()}
		} else {
			data["sessions"] = stats
		}
	}

	for _, extra := range h.extra {
		stats, err := extra.source.Stats(ctx)
		if err != nil {
			data["status"] = "degraded"
			data[extra.name] = gin.H{"error": err.Error()}
			continue
		}
		data[extra.name] = stats
	}

	RespondSuccess(c, http.StatusOK, data, "")
}

// hostStats collects what gopsutil can read; missing values are omitted.
func hostStats(ctx context.Context) gin.H {
	stats := gin.H{}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats["memory_used_percent"] = vm.UsedPercent
		stats["memory_total"] = vm.Total
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		stats["cpu_percent"] = pct[0]
	}
	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		stats["host_uptime_seconds"] = uptime
	}
	return stats
}
