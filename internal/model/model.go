// Package model defines the acoustic model contract consumed by the
// experiment runner: forward outputs, the named loss bundle, trainable
// parameters, and the Adam optimizer that updates them.
//
// The runner never inspects model internals. It drives any implementation
// of Model and Criterion through the same train and validation steps, so a
// real network and the in-package reference model are interchangeable.
package model

import (
	"sort"

	"github.com/cadenza-ml/cadenza/internal/data"
)

// Loss bundle keys. Every Criterion must populate all four on every call
// so downstream metric streams keep a stable key set across the run.
const (
	LossTotal   = "loss"
	LossMel     = "mel_loss"
	LossPostMel = "post_mel_loss"
	LossStop    = "stop_loss"
)

// Outputs holds one forward pass over a batch.
type Outputs struct {
	// MelOutput is the decoder's mel prediction, [batch][frames][mel bands].
	MelOutput [][][]float64
	// MelOutputPostnet is the postnet-refined mel prediction, same shape.
	MelOutputPostnet [][][]float64
	// StopLogits predicts sequence termination per frame, [batch][frames].
	StopLogits [][]float64
	// Alignments is the attention map per example, [batch][frames][text].
	Alignments [][][]float64
}

// Losses maps loss names to scalar values for one step.
type Losses map[string]float64

// Keys returns the loss names in sorted order, for deterministic emission.
func (l Losses) Keys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Model is a trainable acoustic model.
type Model interface {
	// Forward runs one pass over the batch. It must be safe to call in
	// both training and inference mode.
	Forward(b *data.Batch) (*Outputs, error)

	// Backward accumulates gradients for the most recent Forward into
	// Parameters(). It fails outside training mode.
	Backward(b *data.Batch, out *Outputs) error

	// Parameters returns the trainable parameters. The slice and its
	// order are stable for the lifetime of the model.
	Parameters() []*Param

	// SetTraining toggles training mode (gradient tracking, any
	// stochastic layers).
	SetTraining(training bool)

	// Training reports the current mode.
	Training() bool
}

// Criterion computes the loss bundle for one forward pass against the
// batch targets. Implementations must populate every Loss* key.
type Criterion interface {
	Compute(out *Outputs, b *data.Batch) (Losses, error)
}
