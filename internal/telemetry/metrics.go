package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	StageMoves       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pipeline_stage_moves_total", Help: "Single-card stage moves by outcome"}, []string{"outcome"})
	Rollbacks        = prometheus.NewCounter(prometheus.CounterOpts{Name: "pipeline_rollbacks_total", Help: "Optimistic mutations restored after a failed confirmation"})
	BulkActions      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pipeline_bulk_actions_total", Help: "Bulk actions by verb and outcome"}, []string{"action", "outcome"})
	Exports          = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pipeline_exports_total", Help: "Exports by format and outcome"}, []string{"format", "outcome"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "pipeline_rate_limit_rejects_total", Help: "Requests rejected by rate limiter"})
	VersionConflicts = prometheus.NewCounter(prometheus.CounterOpts{Name: "pipeline_version_conflicts_total", Help: "Stage updates rejected for a stale expected version"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			StageMoves,
			Rollbacks,
			BulkActions,
			Exports,
			RateLimitRejects,
			VersionConflicts,
		)
	})
	return promhttp.Handler()
}
