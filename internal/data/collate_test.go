package data

import (
	"testing"

	"github.com/cadenza-ml/cadenza/internal/errors"
)

func TestCollatePadsToBatchMaximum(t *testing.T) {
	c := Collator{PaddingIdx: 0, NMels: 2}
	examples := []Example{
		{Text: []int64{5, 6, 7}, Mel: [][]float64{{1, 1}, {2, 2}, {3, 3}, {4, 4}}},
		{Text: []int64{9}, Mel: [][]float64{{8, 8}}},
	}

	b, err := c.Collate(examples)
	if err != nil {
		t.Fatalf("Collate: %v", err)
	}

	if b.TextWidth() != 3 {
		t.Errorf("TextWidth() = %d, want 3", b.TextWidth())
	}
	if b.FrameWidth() != 4 {
		t.Errorf("FrameWidth() = %d, want 4", b.FrameWidth())
	}

	if got := b.Texts[1]; got[0] != 9 || got[1] != 0 || got[2] != 0 {
		t.Errorf("short text not padded with padding index: %v", got)
	}
	if b.TextLengths[0] != 3 || b.TextLengths[1] != 1 {
		t.Errorf("TextLengths = %v, want [3 1]", b.TextLengths)
	}
	if b.OutputLengths[0] != 4 || b.OutputLengths[1] != 1 {
		t.Errorf("OutputLengths = %v, want [4 1]", b.OutputLengths)
	}

	// Padded mel frames are zero.
	for f := 1; f < 4; f++ {
		for _, v := range b.Mels[1][f] {
			if v != 0 {
				t.Errorf("padded mel frame %d of example 1 is nonzero: %v", f, b.Mels[1][f])
			}
		}
	}

	// The original frames survive untouched.
	if b.Mels[0][3][0] != 4 || b.Mels[1][0][1] != 8 {
		t.Errorf("collation altered true mel frames")
	}
}

func TestCollateStopTokens(t *testing.T) {
	c := Collator{PaddingIdx: 0, NMels: 1}
	examples := []Example{
		{Text: []int64{1}, Mel: [][]float64{{0}, {0}, {0}, {0}, {0}}},
		{Text: []int64{2}, Mel: [][]float64{{0}, {0}}},
	}

	b, err := c.Collate(examples)
	if err != nil {
		t.Fatalf("Collate: %v", err)
	}

	want0 := []float64{0, 0, 0, 0, 1}
	for f, w := range want0 {
		if b.StopTokens[0][f] != w {
			t.Errorf("example 0 stop[%d] = %v, want %v", f, b.StopTokens[0][f], w)
		}
	}
	// Stop stays high across the padded tail.
	want1 := []float64{0, 1, 1, 1, 1}
	for f, w := range want1 {
		if b.StopTokens[1][f] != w {
			t.Errorf("example 1 stop[%d] = %v, want %v", f, b.StopTokens[1][f], w)
		}
	}
}

func TestCollateRejectsMalformedExamples(t *testing.T) {
	c := Collator{PaddingIdx: 0, NMels: 2}

	tests := []struct {
		name     string
		examples []Example
	}{
		{"empty slice", nil},
		{"empty text", []Example{{Text: nil, Mel: [][]float64{{1, 1}}}}},
		{"empty mel", []Example{{Text: []int64{1}, Mel: nil}}},
		{"wrong mel width", []Example{{Text: []int64{1}, Mel: [][]float64{{1, 2, 3}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Collate(tt.examples)
			if err == nil {
				t.Fatalf("Collate accepted malformed input")
			}
			var shapeErr *errors.DataShapeError
			if !errors.As(err, &shapeErr) {
				t.Errorf("error is %T, want *errors.DataShapeError", err)
			}
		})
	}
}

func TestBatchValidateCatchesRaggedWidths(t *testing.T) {
	b := &Batch{
		Texts:         [][]int64{{1, 2}, {3}},
		Mels:          [][][]float64{{{0}}, {{0}}},
		TextLengths:   []int{2, 1},
		OutputLengths: []int{1, 1},
		StopTokens:    [][]float64{{1}, {1}},
	}
	err := b.Validate()
	if !errors.Is(err, errors.ErrRaggedBatch) {
		t.Errorf("Validate() = %v, want ErrRaggedBatch", err)
	}
}

func TestBatchValidateCatchesLengthBeyondWidth(t *testing.T) {
	b := &Batch{
		Texts:         [][]int64{{1, 2}},
		Mels:          [][][]float64{{{0}}},
		TextLengths:   []int{5},
		OutputLengths: []int{1},
		StopTokens:    [][]float64{{1}},
	}
	err := b.Validate()
	if !errors.Is(err, errors.ErrLengthExceedsWidth) {
		t.Errorf("Validate() = %v, want ErrLengthExceedsWidth", err)
	}
}
