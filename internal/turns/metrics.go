package turns

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts turn outcomes. With no meter provider installed these
// are no-ops, so the orchestrator never depends on an exporter.
type Metrics struct {
	turnsHandled     metric.Int64Counter
	turnsFailed      metric.Int64Counter
	analysesResolved metric.Int64Counter
}

// NewMetrics registers the orchestrator counters.
func NewMetrics() *Metrics {
	meter := otel.Meter("github.com/thebtf/parla/internal/turns")

	turnsHandled, _ := meter.Int64Counter("parla.turns.handled",
		metric.WithDescription("Immediate-path turns completed"))
	turnsFailed, _ := meter.Int64Counter("parla.turns.failed",
		metric.WithDescription("Immediate-path turns rejected or failed"))
	analysesResolved, _ := meter.Int64Counter("parla.analyses.resolved",
		metric.WithDescription("Background analyses resolved, by outcome"))

	return &Metrics{
		turnsHandled:     turnsHandled,
		turnsFailed:      turnsFailed,
		analysesResolved: analysesResolved,
	}
}

func (m *Metrics) recordTurn(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.turnsHandled.Add(ctx, 1)
		return
	}
	m.turnsFailed.Add(ctx, 1)
}

func (m *Metrics) recordAnalysis(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.analysesResolved.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}
