// Package event provides a pub-sub event bus decoupling the training loop
// from its observers (file sinks, the live monitor), plus the event types
// the harness emits.
package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "metric.scalar", "run.finished")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Event type identifiers used on the bus.
const (
	TypeMetricScalar   = "metric.scalar"
	TypeMetricArtifact = "metric.artifact"
	TypeRunStarted     = "run.started"
	TypeRunFinished    = "run.finished"
)

// MetricScalarEvent carries one named scalar value at a training step.
// Tags follow the train_loss/<name> and valid/<name> namespace contract.
type MetricScalarEvent struct {
	baseEvent
	Tag   string
	Value float64
	Step  int
}

// NewMetricScalarEvent creates a MetricScalarEvent.
func NewMetricScalarEvent(tag string, value float64, step int) MetricScalarEvent {
	return MetricScalarEvent{
		baseEvent: newBaseEvent(TypeMetricScalar),
		Tag:       tag,
		Value:     value,
		Step:      step,
	}
}

// MetricArtifactEvent carries one named visual artifact (an attention
// alignment matrix) at a training step.
type MetricArtifactEvent struct {
	baseEvent
	Tag       string
	Alignment [][]float64
	Step      int
}

// NewMetricArtifactEvent creates a MetricArtifactEvent.
func NewMetricArtifactEvent(tag string, alignment [][]float64, step int) MetricArtifactEvent {
	return MetricArtifactEvent{
		baseEvent: newBaseEvent(TypeMetricArtifact),
		Tag:       tag,
		Alignment: alignment,
		Step:      step,
	}
}

// RunStartedEvent is emitted once when the experiment enters its main loop.
type RunStartedEvent struct {
	baseEvent
	Experiment string
	Workers    int
	MaxStep    int
}

// NewRunStartedEvent creates a RunStartedEvent.
func NewRunStartedEvent(experiment string, workers, maxStep int) RunStartedEvent {
	return RunStartedEvent{
		baseEvent:  newBaseEvent(TypeRunStarted),
		Experiment: experiment,
		Workers:    workers,
		MaxStep:    maxStep,
	}
}

// RunFinishedEvent is emitted once when the experiment leaves its main loop.
type RunFinishedEvent struct {
	baseEvent
	Experiment string
	Iteration  int
	Err        error
}

// NewRunFinishedEvent creates a RunFinishedEvent.
func NewRunFinishedEvent(experiment string, iteration int, err error) RunFinishedEvent {
	return RunFinishedEvent{
		baseEvent:  newBaseEvent(TypeRunFinished),
		Experiment: experiment,
		Iteration:  iteration,
		Err:        err,
	}
}
