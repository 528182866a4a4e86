package model

import "math"

// Param is one named, flat trainable parameter with its accumulated
// gradient. Value and Grad always have the same length.
type Param struct {
	Name  string
	Value []float64
	Grad  []float64
}

// NewParam allocates a zero-valued parameter of the given size.
func NewParam(name string, size int) *Param {
	return &Param{
		Name:  name,
		Value: make([]float64, size),
		Grad:  make([]float64, size),
	}
}

// ZeroGrad clears the accumulated gradient in place.
func (p *Param) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// ZeroGrads clears the gradients of every parameter.
func ZeroGrads(params []*Param) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// GlobalNorm returns the L2 norm of all gradients taken together.
func GlobalNorm(params []*Param) float64 {
	sum := 0.0
	for _, p := range params {
		for _, g := range p.Grad {
			sum += g * g
		}
	}
	return math.Sqrt(sum)
}

// ClipGradsByGlobalNorm rescales all gradients so their global L2 norm does
// not exceed maxNorm, and returns the pre-clip norm. Gradients at or below
// the threshold are untouched.
func ClipGradsByGlobalNorm(params []*Param, maxNorm float64) float64 {
	norm := GlobalNorm(params)
	if norm > maxNorm && norm > 0 {
		scale := maxNorm / norm
		for _, p := range params {
			for i := range p.Grad {
				p.Grad[i] *= scale
			}
		}
	}
	return norm
}
