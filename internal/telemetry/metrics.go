package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/orgmembers"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Service operation metrics
	OperationsTotal      metric.Int64Counter
	OperationErrorsTotal metric.Int64Counter

	// Event metrics
	EventsPublishedTotal    metric.Int64Counter
	EventPublishErrorsTotal metric.Int64Counter
	EventHandlerErrorsTotal metric.Int64Counter

	// Cross-record consistency metrics
	CompensationsTotal        metric.Int64Counter
	CompensationFailuresTotal metric.Int64Counter

	// Lock metrics
	LockWaitDuration metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.OperationsTotal, _ = meter.Int64Counter(
		"orgmembers.operations.total",
		metric.WithDescription("Total number of organization service operations"),
		metric.WithUnit("{operation}"),
	)

	m.OperationErrorsTotal, _ = meter.Int64Counter(
		"orgmembers.operations.errors.total",
		metric.WithDescription("Total number of failed organization service operations by error code"),
		metric.WithUnit("{error}"),
	)

	m.EventsPublishedTotal, _ = meter.Int64Counter(
		"orgmembers.events.published.total",
		metric.WithDescription("Total number of domain events published"),
		metric.WithUnit("{event}"),
	)

	m.EventPublishErrorsTotal, _ = meter.Int64Counter(
		"orgmembers.events.publish.errors.total",
		metric.WithDescription("Total number of domain events that failed to reach an external broker"),
		metric.WithUnit("{error}"),
	)

	m.EventHandlerErrorsTotal, _ = meter.Int64Counter(
		"orgmembers.events.handler.errors.total",
		metric.WithDescription("Total number of in-process event handler failures"),
		metric.WithUnit("{error}"),
	)

	m.CompensationsTotal, _ = meter.Int64Counter(
		"orgmembers.compensations.total",
		metric.WithDescription("Total number of organization writes undone after a mirror write failed"),
		metric.WithUnit("{compensation}"),
	)

	m.CompensationFailuresTotal, _ = meter.Int64Counter(
		"orgmembers.compensations.failed.total",
		metric.WithDescription("Total number of compensations that could not be applied"),
		metric.WithUnit("{error}"),
	)

	m.LockWaitDuration, _ = meter.Float64Histogram(
		"orgmembers.lock.wait.duration",
		metric.WithDescription("Time spent waiting for an organization write lock"),
		metric.WithUnit("ms"),
	)

	return m
}
