package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// FilterMetrics holds custom metrics for require-filter compilation and the
// find API that serves compiled filters. All methods are safe on a nil receiver.
type FilterMetrics struct {
	compileDuration metric.Float64Histogram
	compilations    metric.Int64Counter
	reversals       metric.Int64Counter
	extractedIDs    metric.Int64Histogram
	requireEntries  metric.Int64Histogram
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	resultsCount    metric.Int64Histogram
	storeQueries    metric.Int64Counter
}

// InitFilterMetrics initializes filter-specific metrics
func InitFilterMetrics() (*FilterMetrics, error) {
	meter := otel.Meter("relfind")

	compileDuration, err := meter.Float64Histogram(
		"relfind.compile.duration",
		metric.WithDescription("Duration of require-filter compilation in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create compile duration histogram: %w", err)
	}

	compilations, err := meter.Int64Counter(
		"relfind.compilations.total",
		metric.WithDescription("Total number of require-filter compilations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create compilations counter: %w", err)
	}

	reversals, err := meter.Int64Counter(
		"relfind.reversals.total",
		metric.WithDescription("Total number of relation-path reversals"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reversals counter: %w", err)
	}

	extractedIDs, err := meter.Int64Histogram(
		"relfind.reversal.extracted_ids",
		metric.WithDescription("Number of distinct identifiers produced by a reversal"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create extracted ids histogram: %w", err)
	}

	requireEntries, err := meter.Int64Histogram(
		"relfind.compile.require_entries",
		metric.WithDescription("Number of require entries in a compiled filter"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create require entries histogram: %w", err)
	}

	requestDuration, err := meter.Float64Histogram(
		"relfind.request.duration",
		metric.WithDescription("Duration of find API requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"relfind.requests.total",
		metric.WithDescription("Total number of find API requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"relfind.requests.active",
		metric.WithDescription("Number of active find API requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	resultsCount, err := meter.Int64Histogram(
		"relfind.results.count",
		metric.WithDescription("Number of records returned by find API requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create results count histogram: %w", err)
	}

	storeQueries, err := meter.Int64Counter(
		"relfind.store.queries",
		metric.WithDescription("Number of data store fetches, including include batches"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store queries counter: %w", err)
	}

	return &FilterMetrics{
		compileDuration: compileDuration,
		compilations:    compilations,
		reversals:       reversals,
		extractedIDs:    extractedIDs,
		requireEntries:  requireEntries,
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		activeRequests:  activeRequests,
		resultsCount:    resultsCount,
		storeQueries:    storeQueries,
	}, nil
}

// RecordCompile records a filter compilation with its duration and outcome
func (m *FilterMetrics) RecordCompile(ctx context.Context, entity string, entries int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("entity", entity),
		attribute.String("outcome", outcome(err)),
	}
	m.compileDuration.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(attrs...))
	m.compilations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.requireEntries.Record(ctx, int64(entries), metric.WithAttributes(
		attribute.String("entity", entity),
	))
}

// RecordReversal records one relation-path reversal
func (m *FilterMetrics) RecordReversal(ctx context.Context, entity, relationKind string, ids int, err error) {
	if m == nil {
		return
	}
	m.reversals.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("relation_kind", relationKind),
		attribute.String("outcome", outcome(err)),
	))
	if err == nil {
		m.extractedIDs.Record(ctx, int64(ids), metric.WithAttributes(
			attribute.String("relation_kind", relationKind),
		))
	}
}

// RecordRequest records a find API request
func (m *FilterMetrics) RecordRequest(ctx context.Context, collection, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("collection", collection),
		attribute.String("method", method),
		attribute.Int("status", status),
	}
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordResultsCount records the number of records returned
func (m *FilterMetrics) RecordResultsCount(ctx context.Context, collection string, count int) {
	if m == nil {
		return
	}
	m.resultsCount.Record(ctx, int64(count), metric.WithAttributes(
		attribute.String("collection", collection),
	))
}

// RecordStoreQuery counts one fetch against a data store
func (m *FilterMetrics) RecordStoreQuery(ctx context.Context, store, entity string) {
	if m == nil {
		return
	}
	m.storeQueries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store", store),
		attribute.String("entity", entity),
	))
}

// IncrementActiveRequests increments the active requests counter
func (m *FilterMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter
func (m *FilterMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics initializes all custom metrics and returns the FilterMetrics instance
func InitMetrics(logger *slog.Logger) (*FilterMetrics, error) {
	metrics, err := InitFilterMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize filter metrics: %w", err)
	}

	logger.Info("custom filter metrics initialized")
	return metrics, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

type filterMetricsContextKey struct{}

// ContextWithFilterMetrics stores filter metrics in the provided context.
func ContextWithFilterMetrics(ctx context.Context, metrics *FilterMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, filterMetricsContextKey{}, metrics)
}

// FilterMetricsFromContext retrieves filter metrics from the context.
func FilterMetricsFromContext(ctx context.Context) *FilterMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(filterMetricsContextKey{}).(*FilterMetrics)
	return metrics
}
