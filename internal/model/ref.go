package model

import (
	"math/rand"

	"github.com/cadenza-ml/cadenza/internal/data"
	"github.com/cadenza-ml/cadenza/internal/errors"
)

// RefModel is a deliberately small acoustic model used to exercise the
// full training pipeline end to end: an embedding table mean-pooled over
// the true text tokens, a decoder bias producing the mel prediction, a
// postnet residual refining it, and a constant stop-logit bias. Its
// backward pass is analytic, so optimizer behavior is exact and
// repeatable in tests.
type RefModel struct {
	vocabSize int
	nMels     int

	embedding *Param // [vocabSize * nMels]
	decodeB   *Param // [nMels]
	postnetR  *Param // [nMels]
	stopB     *Param // [1]

	params   []*Param
	training bool
}

// NewRefModel builds a reference model with deterministically seeded
// embedding weights.
func NewRefModel(vocabSize, nMels int, seed int64) (*RefModel, error) {
	if vocabSize <= 0 || nMels <= 0 {
		return nil, errors.New("vocab size and mel band count must be positive")
	}

	m := &RefModel{
		vocabSize: vocabSize,
		nMels:     nMels,
		embedding: NewParam("embedding", vocabSize*nMels),
		decodeB:   NewParam("decoder.bias", nMels),
		postnetR:  NewParam("postnet.residual", nMels),
		stopB:     NewParam("stop.bias", 1),
	}
	m.params = []*Param{m.embedding, m.decodeB, m.postnetR, m.stopB}

	rng := rand.New(rand.NewSource(seed))
	for i := range m.embedding.Value {
		m.embedding.Value[i] = rng.NormFloat64() * 0.1
	}
	return m, nil
}

// Forward computes mel, postnet, and stop predictions for the batch. The
// attention map is uniform over each example's true tokens.
func (m *RefModel) Forward(b *data.Batch) (*Outputs, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	n := b.Size()
	frames := b.FrameWidth()
	textWidth := b.TextWidth()

	out := &Outputs{
		MelOutput:        make([][][]float64, n),
		MelOutputPostnet: make([][][]float64, n),
		StopLogits:       make([][]float64, n),
		Alignments:       make([][][]float64, n),
	}

	for i := 0; i < n; i++ {
		pooled, err := m.pool(b.Texts[i], b.TextLengths[i])
		if err != nil {
			return nil, err
		}

		mel := make([][]float64, frames)
		post := make([][]float64, frames)
		stop := make([]float64, frames)
		align := make([][]float64, frames)

		uniform := 1.0 / float64(b.TextLengths[i])
		for f := 0; f < frames; f++ {
			mf := make([]float64, m.nMels)
			pf := make([]float64, m.nMels)
			for k := 0; k < m.nMels; k++ {
				mf[k] = pooled[k] + m.decodeB.Value[k]
				pf[k] = mf[k] + m.postnetR.Value[k]
			}
			mel[f] = mf
			post[f] = pf
			stop[f] = m.stopB.Value[0]

			row := make([]float64, textWidth)
			for t := 0; t < b.TextLengths[i]; t++ {
				row[t] = uniform
			}
			align[f] = row
		}

		out.MelOutput[i] = mel
		out.MelOutputPostnet[i] = post
		out.StopLogits[i] = stop
		out.Alignments[i] = align
	}
	return out, nil
}

// pool mean-pools the embedding rows of an example's true tokens.
func (m *RefModel) pool(text []int64, length int) ([]float64, error) {
	pooled := make([]float64, m.nMels)
	for t := 0; t < length; t++ {
		tok := text[t]
		if tok < 0 || tok >= int64(m.vocabSize) {
			return nil, errors.NewDataShapeError("token id outside vocabulary").WithField("texts")
		}
		row := m.embedding.Value[tok*int64(m.nMels):]
		for k := 0; k < m.nMels; k++ {
			pooled[k] += row[k]
		}
	}
	inv := 1.0 / float64(length)
	for k := range pooled {
		pooled[k] *= inv
	}
	return pooled, nil
}

// Backward accumulates the analytic gradients of the RefCriterion losses
// for the given forward pass into the model parameters.
func (m *RefModel) Backward(b *data.Batch, out *Outputs) error {
	if !m.training {
		return errors.New("backward pass requires training mode")
	}

	n := b.Size()
	frames := b.FrameWidth()

	melDenom := 0.0
	for i := 0; i < n; i++ {
		melDenom += float64(b.OutputLengths[i] * m.nMels)
	}
	stopDenom := float64(n * frames)

	for i := 0; i < n; i++ {
		gradPooled := make([]float64, m.nMels)

		for f := 0; f < b.OutputLengths[i]; f++ {
			for k := 0; k < m.nMels; k++ {
				target := b.Mels[i][f][k]
				gm := 2.0 * (out.MelOutput[i][f][k] - target) / melDenom
				gp := 2.0 * (out.MelOutputPostnet[i][f][k] - target) / melDenom

				m.decodeB.Grad[k] += gm + gp
				m.postnetR.Grad[k] += gp
				gradPooled[k] += gm + gp
			}
		}

		for f := 0; f < frames; f++ {
			m.stopB.Grad[0] += 2.0 * (out.StopLogits[i][f] - b.StopTokens[i][f]) / stopDenom
		}

		inv := 1.0 / float64(b.TextLengths[i])
		for t := 0; t < b.TextLengths[i]; t++ {
			base := b.Texts[i][t] * int64(m.nMels)
			for k := 0; k < m.nMels; k++ {
				m.embedding.Grad[base+int64(k)] += gradPooled[k] * inv
			}
		}
	}
	return nil
}

// Parameters returns the trainable parameters in a stable order.
func (m *RefModel) Parameters() []*Param {
	return m.params
}

// SetTraining toggles training mode.
func (m *RefModel) SetTraining(training bool) {
	m.training = training
}

// Training reports the current mode.
func (m *RefModel) Training() bool {
	return m.training
}

// RefCriterion pairs with RefModel: masked mean squared error on both mel
// predictions over each example's true frames, plus mean squared error on
// the stop logits over the full padded width.
type RefCriterion struct{}

// Compute returns the four-key loss bundle for one forward pass.
func (RefCriterion) Compute(out *Outputs, b *data.Batch) (Losses, error) {
	n := b.Size()
	if n == 0 || len(out.MelOutput) != n {
		return nil, errors.NewDataShapeError("outputs and batch disagree on example count").
			WithCause(errors.ErrRaggedBatch)
	}

	frames := b.FrameWidth()
	nMels := 0
	if frames > 0 && len(out.MelOutput[0]) > 0 {
		nMels = len(out.MelOutput[0][0])
	}

	melDenom := 0.0
	for i := 0; i < n; i++ {
		melDenom += float64(b.OutputLengths[i] * nMels)
	}

	var melSum, postSum, stopSum float64
	for i := 0; i < n; i++ {
		for f := 0; f < b.OutputLengths[i]; f++ {
			for k := 0; k < nMels; k++ {
				target := b.Mels[i][f][k]
				dm := out.MelOutput[i][f][k] - target
				dp := out.MelOutputPostnet[i][f][k] - target
				melSum += dm * dm
				postSum += dp * dp
			}
		}
		for f := 0; f < frames; f++ {
			ds := out.StopLogits[i][f] - b.StopTokens[i][f]
			stopSum += ds * ds
		}
	}

	melLoss := melSum / melDenom
	postLoss := postSum / melDenom
	stopLoss := stopSum / float64(n*frames)

	return Losses{
		LossTotal:   melLoss + postLoss + stopLoss,
		LossMel:     melLoss,
		LossPostMel: postLoss,
		LossStop:    stopLoss,
	}, nil
}
