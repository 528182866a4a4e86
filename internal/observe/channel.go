// Package observe carries training metrics out of the run loop.
//
// A Channel receives scalar metrics and alignment artifacts; the runner
// feeds it from rank 0 only, so sinks never have to de-duplicate across
// workers. Sinks compose through Multi.
package observe

import "github.com/cadenza-ml/cadenza/internal/event"

// Channel is a destination for training observability.
type Channel interface {
	// LogScalar records one named scalar at a step.
	LogScalar(tag string, value float64, step int) error
	// LogArtifact records one alignment matrix (frames x text) at a step.
	LogArtifact(tag string, alignment [][]float64, step int) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) LogScalar(string, float64, int) error       { return nil }
func (Nop) LogArtifact(string, [][]float64, int) error { return nil }

// Multi fans every record out to each channel in order, stopping at the
// first error.
type Multi []Channel

func (m Multi) LogScalar(tag string, value float64, step int) error {
	for _, c := range m {
		if err := c.LogScalar(tag, value, step); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) LogArtifact(tag string, alignment [][]float64, step int) error {
	for _, c := range m {
		if err := c.LogArtifact(tag, alignment, step); err != nil {
			return err
		}
	}
	return nil
}

// BusChannel republishes metrics as events, feeding live subscribers such
// as the terminal monitor.
type BusChannel struct {
	bus *event.Bus
}

// NewBusChannel wraps an event bus as a metric channel.
func NewBusChannel(bus *event.Bus) *BusChannel {
	return &BusChannel{bus: bus}
}

func (c *BusChannel) LogScalar(tag string, value float64, step int) error {
	c.bus.Publish(event.NewMetricScalarEvent(tag, value, step))
	return nil
}

func (c *BusChannel) LogArtifact(tag string, alignment [][]float64, step int) error {
	c.bus.Publish(event.NewMetricArtifactEvent(tag, alignment, step))
	return nil
}
