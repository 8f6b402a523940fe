// Package otel provides the guildhost metric instruments.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "guildhost"

// Metrics holds all guildhost metric instruments.
type Metrics struct {
	ProvisionsStarted   metric.Int64Counter
	ProvisionsSucceeded metric.Int64Counter
	ProvisionsFailed    metric.Int64Counter
	ScaleUps            metric.Int64Counter
	ScaleDowns          metric.Int64Counter
	ScaleRefusals       metric.Int64Counter
	Terminations        metric.Int64Counter
	ProvisionDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ProvisionsStarted, err = meter.Int64Counter("guildhost.provisions.started",
		metric.WithDescription("Number of provisioning attempts started"))
	if err != nil {
		return nil, err
	}

	m.ProvisionsSucceeded, err = meter.Int64Counter("guildhost.provisions.succeeded",
		metric.WithDescription("Number of deployments provisioned successfully"))
	if err != nil {
		return nil, err
	}

	m.ProvisionsFailed, err = meter.Int64Counter("guildhost.provisions.failed",
		metric.WithDescription("Number of provisioning attempts that failed"))
	if err != nil {
		return nil, err
	}

	m.ScaleUps, err = meter.Int64Counter("guildhost.scaling.up",
		metric.WithDescription("Number of scale-up actions applied"))
	if err != nil {
		return nil, err
	}

	m.ScaleDowns, err = meter.Int64Counter("guildhost.scaling.down",
		metric.WithDescription("Number of scale-down actions applied"))
	if err != nil {
		return nil, err
	}

	m.ScaleRefusals, err = meter.Int64Counter("guildhost.scaling.refused",
		metric.WithDescription("Number of scale-down refusals at a tier floor"))
	if err != nil {
		return nil, err
	}

	m.Terminations, err = meter.Int64Counter("guildhost.terminations",
		metric.WithDescription("Number of deployments terminated"))
	if err != nil {
		return nil, err
	}

	m.ProvisionDuration, err = meter.Float64Histogram("guildhost.provision.duration_seconds",
		metric.WithDescription("Wall time of successful provisioning"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
