package middleware

import (
	"net/http"
	"time"

	"relfind/internal/api"
	"relfind/internal/observability"
)

// RequestMetricsMiddleware records request count, duration and in-flight
// requests for find API routes under basePath. Other paths pass through
// unrecorded.
func RequestMetricsMiddleware(metrics *observability.FilterMetrics, basePath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := api.ParseRoute(basePath, r.URL.Path)
			if !ok || metrics == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := observability.ContextWithFilterMetrics(r.Context(), metrics)
			metrics.IncrementActiveRequests(ctx)
			defer metrics.DecrementActiveRequests(ctx)

			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			metrics.RecordRequest(ctx, route.Collection, route.Method, rec.status, time.Since(start))
		})
	}
}
