package data

import (
	"github.com/cadenza-ml/cadenza/internal/errors"
)

// Collator pads a set of raw examples into one fixed-shape Batch.
type Collator struct {
	// PaddingIdx fills the padded tail of text sequences.
	PaddingIdx int64
	// NMels is the expected mel band count per frame.
	NMels int
}

// Collate pads variable-length text and mel sequences to the batch maximum,
// records true lengths, and derives stop-token targets (1 at the final true
// frame and across the padded tail, 0 before it). It never truncates.
func (c Collator) Collate(examples []Example) (*Batch, error) {
	if len(examples) == 0 {
		return nil, errors.NewDataShapeError("cannot collate zero examples").WithCause(errors.ErrEmptyBatch)
	}

	maxText, maxFrames := 0, 0
	for i, ex := range examples {
		if len(ex.Text) == 0 {
			return nil, errors.NewDataShapeError("example has empty text").
				WithField("texts").WithIndex(i)
		}
		if len(ex.Mel) == 0 {
			return nil, errors.NewDataShapeError("example has empty mel").
				WithField("mels").WithIndex(i)
		}
		if len(ex.Text) > maxText {
			maxText = len(ex.Text)
		}
		if len(ex.Mel) > maxFrames {
			maxFrames = len(ex.Mel)
		}
	}

	n := len(examples)
	b := &Batch{
		Texts:         make([][]int64, n),
		Mels:          make([][][]float64, n),
		TextLengths:   make([]int, n),
		OutputLengths: make([]int, n),
		StopTokens:    make([][]float64, n),
	}

	for i, ex := range examples {
		text := make([]int64, maxText)
		for j := range text {
			text[j] = c.PaddingIdx
		}
		copy(text, ex.Text)

		mel := make([][]float64, maxFrames)
		for f := 0; f < maxFrames; f++ {
			frame := make([]float64, c.NMels)
			if f < len(ex.Mel) {
				if len(ex.Mel[f]) != c.NMels {
					return nil, errors.NewDataShapeError("mel frame width differs from n_mels").
						WithField("mels").WithIndex(i)
				}
				copy(frame, ex.Mel[f])
			}
			mel[f] = frame
		}

		stop := make([]float64, maxFrames)
		for f := len(ex.Mel) - 1; f < maxFrames; f++ {
			stop[f] = 1.0
		}

		b.Texts[i] = text
		b.Mels[i] = mel
		b.TextLengths[i] = len(ex.Text)
		b.OutputLengths[i] = len(ex.Mel)
		b.StopTokens[i] = stop
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}
