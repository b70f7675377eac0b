// Package httpapi is the worker's operational HTTP surface: health,
// readiness, liveness, and a metrics snapshot. It carries no submission
// or problem data and needs no authentication — everything a submitter
// does goes through the queue and the store directly, never through this
// process's HTTP listener.
package httpapi

import (
	"runtime"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kwant-dbg/codejudge/api"
	"github.com/kwant-dbg/codejudge/internal/logging"
	"github.com/kwant-dbg/codejudge/internal/metrics"
	"go.uber.org/zap"
)

// ReadinessChecker reports whether the worker is ready to keep judging,
// e.g. that its store and queue connections are still alive. Returning
// false flips the /readiness endpoint to CodeNotReady so an orchestrator
// stops routing new work (in this worker's case, that means pausing
// restarts rather than traffic, since there is no inbound request
// routing to this process).
type ReadinessChecker func() bool

// NewRouter builds the gin engine serving the operational surface. logger
// backs the logging and recovery middleware the rest of the project's
// HTTP surfaces use; m is the shared snapshot source; ready reports
// current health for /readiness.
func NewRouter(logger *zap.Logger, m *metrics.Metrics, ready ReadinessChecker) *gin.Engine {
	r := gin.New()
	r.Use(logging.GinLogger(logger), logging.GinRecovery(logger))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	r.Use(cors.New(corsCfg))

	r.GET("/health", healthHandler)
	r.GET("/metrics", metricsHandler(m))
	r.GET("/readiness", readinessHandler(ready))
	r.GET("/liveness", livenessHandler)

	r.NoRoute(func(c *gin.Context) {
		api.ResponseErrorWithHTTPStatus(c, 404)
	})
	return r
}

func healthHandler(c *gin.Context) {
	api.ResponseSuccess(c, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "codejudge-worker",
	})
}

func metricsHandler(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot := m.Snapshot()
		snapshot["goroutines"] = runtime.NumGoroutine()
		api.ResponseSuccess(c, snapshot)
	}
}

func readinessHandler(ready ReadinessChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready != nil && !ready() {
			api.ResponseError(c, api.CodeNotReady)
			return
		}
		api.ResponseSuccess(c, gin.H{
			"status":    "ready",
			"timestamp": time.Now().Unix(),
		})
	}
}

func livenessHandler(c *gin.Context) {
	api.ResponseSuccess(c, gin.H{
		"status":    "alive",
		"timestamp": time.Now().Unix(),
	})
}
