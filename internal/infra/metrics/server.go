package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const readinessTimeout = 2 * time.Second

// HealthCheck reports whether a dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// CheckResult is the outcome of one HealthCheck.
type CheckResult struct {
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
}

// RunChecks runs every check concurrently and returns the results sorted by
// name. ok is false when any check failed.
func RunChecks(ctx context.Context, checks []HealthCheck) (results []CheckResult, ok bool) {
	results = make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c HealthCheck) {
			defer wg.Done()
			results[i] = CheckResult{Name: c.Name}
			if err := c.Check(ctx); err != nil {
				results[i].Error = err.Error()
			}
		}(i, c)
	}
	wg.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].Name < results[b].Name })
	ok = true
	for _, r := range results {
		if r.Error != "" {
			ok = false
		}
	}
	return results, ok
}

// StartMetricsServer serves /metrics, /healthz (liveness) and /readyz, which
// fails while any of checks fails.
func StartMetricsServer(ctx context.Context, port int, logger *zap.Logger, checks ...HealthCheck) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", readyHandler(checks, logger))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		logger.Info("metrics server starting", zap.Int("port", port), zap.Int("readiness_checks", len(checks)))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	return srv
}

func readyHandler(checks []HealthCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		results, ok := RunChecks(ctx, checks)
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
			for _, res := range results {
				if res.Error != "" {
					logger.Warn("readiness check failed", zap.String("check", res.Name), zap.String("error", res.Error))
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{"ready": ok, "checks": results})
	}
}
