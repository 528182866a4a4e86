// Package data turns raw text+mel pairs into padded, fixed-shape batches.
//
// The training source shards examples disjointly across worker ranks with an
// identical batch count per rank; the validation source covers its split
// exhaustively. Collation is lossless: sequences are padded, never truncated.
package data

import (
	"github.com/cadenza-ml/cadenza/internal/errors"
)

// Example is one raw text+audio pair: a token ID sequence and its
// mel-spectrogram (frames x mel bands).
type Example struct {
	Text []int64
	Mel  [][]float64
}

// Batch is the fixed 5-tuple consumed by one training or validation step.
// All examples within one batch share the same padded width per field;
// TextLengths and OutputLengths record the true, pre-padding lengths.
type Batch struct {
	Texts         [][]int64     // [batch][padded text width]
	Mels          [][][]float64 // [batch][padded frame width][mel bands]
	TextLengths   []int
	OutputLengths []int
	StopTokens    [][]float64 // [batch][padded frame width]
}

// Size returns the number of examples in the batch.
func (b *Batch) Size() int {
	return len(b.Texts)
}

// TextWidth returns the padded text width shared by the batch.
func (b *Batch) TextWidth() int {
	if len(b.Texts) == 0 {
		return 0
	}
	return len(b.Texts[0])
}

// FrameWidth returns the padded mel frame width shared by the batch.
func (b *Batch) FrameWidth() int {
	if len(b.Mels) == 0 {
		return 0
	}
	return len(b.Mels[0])
}

// Validate checks the padding and length invariants. A violation returns a
// DataShapeError: the batch is unusable and must fail the run, since
// silently dropping or truncating data would corrupt the training signal.
func (b *Batch) Validate() error {
	n := b.Size()
	if n == 0 {
		return errors.NewDataShapeError("batch has no examples").WithCause(errors.ErrEmptyBatch)
	}
	if len(b.Mels) != n || len(b.TextLengths) != n || len(b.OutputLengths) != n || len(b.StopTokens) != n {
		return errors.NewDataShapeError("batch fields disagree on example count").WithCause(errors.ErrRaggedBatch)
	}

	textWidth := b.TextWidth()
	frameWidth := b.FrameWidth()

	for i := 0; i < n; i++ {
		if len(b.Texts[i]) != textWidth {
			return errors.NewDataShapeError("padded text width differs within batch").
				WithField("texts").WithIndex(i).WithCause(errors.ErrRaggedBatch)
		}
		if len(b.Mels[i]) != frameWidth {
			return errors.NewDataShapeError("padded frame width differs within batch").
				WithField("mels").WithIndex(i).WithCause(errors.ErrRaggedBatch)
		}
		if len(b.StopTokens[i]) != frameWidth {
			return errors.NewDataShapeError("stop token width differs from frame width").
				WithField("stop_tokens").WithIndex(i).WithCause(errors.ErrRaggedBatch)
		}
		if b.TextLengths[i] <= 0 || b.TextLengths[i] > textWidth {
			return errors.NewDataShapeError("text length exceeds padded width").
				WithField("texts").WithIndex(i).WithCause(errors.ErrLengthExceedsWidth)
		}
		if b.OutputLengths[i] <= 0 || b.OutputLengths[i] > frameWidth {
			return errors.NewDataShapeError("output length exceeds padded width").
				WithField("mels").WithIndex(i).WithCause(errors.ErrLengthExceedsWidth)
		}
	}
	return nil
}
