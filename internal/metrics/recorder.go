// Package metrics exposes workflow activity as Prometheus metrics. The
// Recorder is fed by dispatcher events rather than by the engine itself.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/orbitreg/compliance-workflow/internal/application/dispatcher"
	"github.com/orbitreg/compliance-workflow/internal/domain/event"
)

const (
	OutcomeSuccess      = "success"
	OutcomeFailure      = "failure"
	OutcomeTransitioned = "transitioned"
	OutcomeIdle         = "idle"
	OutcomeError        = "error"
)

// Config holds configuration for metrics recording
type Config struct {
	Namespace string
	Registry  prometheus.Registerer
}

// Recorder records workflow metrics
type Recorder struct {
	transitions      *prometheus.CounterVec
	autoEvaluations  *prometheus.CounterVec
	failures         *prometheus.CounterVec
	instancesCreated *prometheus.CounterVec
}

// NewRecorder creates a recorder and registers its collectors
func NewRecorder(cfg Config) *Recorder {
	if cfg.Namespace == "" {
		cfg.Namespace = "workflow"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(cfg.Registry)

	return &Recorder{
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "transitions_total",
				Help:      "Transition attempts by definition, event and outcome",
			},
			[]string{"definition", "event", "outcome"},
		),
		autoEvaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "auto_evaluations_total",
				Help:      "Auto-transition evaluation runs by outcome",
			},
			[]string{"definition", "outcome"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "transition_failures_total",
				Help:      "Failed transitions by error kind",
			},
			[]string{"definition", "kind"},
		),
		instancesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "instances_created_total",
				Help:      "Workflow instances created",
			},
			[]string{"definition"},
		),
	}
}

// Subscribe attaches the recorder to every event on d
func (r *Recorder) Subscribe(d dispatcher.Dispatcher) {
	d.Subscribe(dispatcher.AllEvents, "metrics", r.Handle)
}

// Handle updates counters for a single event
func (r *Recorder) Handle(_ context.Context, evt *event.Event) error {
	def := evt.DefinitionID

	switch evt.Type {
	case event.TypeInstanceCreated:
		r.instancesCreated.WithLabelValues(def).Inc()

	case event.TypeTransitionSucceeded:
		r.transitions.WithLabelValues(def, evt.GetPayloadString(event.KeyEvent), OutcomeSuccess).Inc()

	case event.TypeTransitionFailed:
		r.transitions.WithLabelValues(def, evt.GetPayloadString(event.KeyEvent), OutcomeFailure).Inc()
		kind := evt.GetPayloadString(event.KeyErrorKind)
		if kind == "" {
			kind = "unknown"
		}
		r.failures.WithLabelValues(def, kind).Inc()

	case event.TypeAutoEvaluated:
		outcome := OutcomeIdle
		switch {
		case evt.GetPayloadString(event.KeyError) != "":
			outcome = OutcomeError
		case evt.GetPayloadInt(event.KeyCount) > 0:
			outcome = OutcomeTransitioned
		}
		r.autoEvaluations.WithLabelValues(def, outcome).Inc()
	}

	return nil
}
