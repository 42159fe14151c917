// Package metrics exposes pipeline outcome counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Pipeline counts receipt pipeline outcomes.
type Pipeline struct {
	ReceiptsIssued      prometheus.Counter
	RunsAborted         *prometheus.CounterVec
	NotificationsFailed prometheus.Counter
}

func NewPipeline(reg prometheus.Registerer) *Pipeline {
	factory := promauto.With(reg)
	return &Pipeline{
		ReceiptsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "receiptor_receipts_issued_total",
			Help: "Receipts fully issued: numbered, stored, and notified.",
		}),
		RunsAborted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptor_runs_aborted_total",
			Help: "Pipeline runs ended before completion, by reason.",
		}, []string{"reason"}),
		NotificationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "receiptor_notifications_failed_total",
			Help: "Receipt deliveries reported failed by the transport.",
		}),
	}
}

func provideDefault() *Pipeline {
	return NewPipeline(prometheus.DefaultRegisterer)
}

// Module wires pipeline metrics onto the default registry.
var Module = fx.Module("metrics",
	fx.Provide(provideDefault),
)
