package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "councild"

// Metrics holds all councild metric instruments.
type Metrics struct {
	RoundsExecuted       metric.Int64Counter
	OpinionsSubmitted    metric.Int64Counter
	OpinionFailures      metric.Int64Counter
	Escalations          metric.Int64Counter
	DeliberationsDone    metric.Int64Counter
	DeliberationDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RoundsExecuted, err = meter.Int64Counter("councild.rounds.executed",
		metric.WithDescription("Number of deliberation rounds executed"))
	if err != nil {
		return nil, err
	}

	m.OpinionsSubmitted, err = meter.Int64Counter("councild.opinions.submitted",
		metric.WithDescription("Number of role opinions submitted"))
	if err != nil {
		return nil, err
	}

	m.OpinionFailures, err = meter.Int64Counter("councild.opinions.failed",
		metric.WithDescription("Number of role opinion calls that failed after retries"))
	if err != nil {
		return nil, err
	}

	m.Escalations, err = meter.Int64Counter("councild.escalations",
		metric.WithDescription("Number of deadlock escalations to a human decision"))
	if err != nil {
		return nil, err
	}

	m.DeliberationsDone, err = meter.Int64Counter("councild.deliberations.concluded",
		metric.WithDescription("Number of concluded deliberations"))
	if err != nil {
		return nil, err
	}

	m.DeliberationDuration, err = meter.Float64Histogram("councild.deliberation.duration_seconds",
		metric.WithDescription("Deliberation duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
