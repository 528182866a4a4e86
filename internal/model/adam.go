package model

import (
	"fmt"
	"math"
)

// Adam implements the Adam update rule with bias correction and optional
// decoupled weight decay:
//
//	m_t = beta1*m_{t-1} + (1-beta1)*grad
//	v_t = beta2*v_{t-1} + (1-beta2)*grad^2
//	param -= lr * (m_t/(1-beta1^t)) / (sqrt(v_t/(1-beta2^t)) + eps)
type Adam struct {
	// LR is the learning rate read at every Step, so callers may anneal it.
	LR float64

	beta1       float64
	beta2       float64
	epsilon     float64
	weightDecay float64

	m [][]float64
	v [][]float64
	t int
}

// AdamState is the optimizer's restorable state for checkpointing.
type AdamState struct {
	Step int         `json:"step"`
	M    [][]float64 `json:"m"`
	V    [][]float64 `json:"v"`
}

// NewAdam creates an Adam optimizer with moment buffers sized to params.
func NewAdam(params []*Param, lr, beta1, beta2, epsilon, weightDecay float64) *Adam {
	m := make([][]float64, len(params))
	v := make([][]float64, len(params))
	for i, p := range params {
		m[i] = make([]float64, len(p.Value))
		v[i] = make([]float64, len(p.Value))
	}
	return &Adam{
		LR:          lr,
		beta1:       beta1,
		beta2:       beta2,
		epsilon:     epsilon,
		weightDecay: weightDecay,
		m:           m,
		v:           v,
	}
}

// Step applies one bias-corrected update to every parameter from its
// accumulated gradient. Gradients are left in place; the caller zeroes
// them at the top of the next step.
func (a *Adam) Step(params []*Param) {
	a.t++

	bias1 := 1.0 - math.Pow(a.beta1, float64(a.t))
	bias2 := 1.0 - math.Pow(a.beta2, float64(a.t))

	for i, p := range params {
		for j := range p.Value {
			grad := p.Grad[j] + a.weightDecay*p.Value[j]

			a.m[i][j] = a.beta1*a.m[i][j] + (1.0-a.beta1)*grad
			a.v[i][j] = a.beta2*a.v[i][j] + (1.0-a.beta2)*grad*grad

			mHat := a.m[i][j] / bias1
			vHat := a.v[i][j] / bias2

			p.Value[j] -= a.LR * mHat / (math.Sqrt(vHat) + a.epsilon)
		}
	}
}

// StepCount returns the number of updates applied so far.
func (a *Adam) StepCount() int {
	return a.t
}

// State returns a deep copy of the moment buffers and step counter.
func (a *Adam) State() AdamState {
	st := AdamState{
		Step: a.t,
		M:    make([][]float64, len(a.m)),
		V:    make([][]float64, len(a.v)),
	}
	for i := range a.m {
		st.M[i] = append([]float64(nil), a.m[i]...)
		st.V[i] = append([]float64(nil), a.v[i]...)
	}
	return st
}

// Restore replaces the optimizer state with a previously captured one.
// The buffer shapes must match the parameters this optimizer was built for.
func (a *Adam) Restore(st AdamState) error {
	if len(st.M) != len(a.m) || len(st.V) != len(a.v) {
		return fmt.Errorf("optimizer state has %d/%d moment buffers, expected %d", len(st.M), len(st.V), len(a.m))
	}
	for i := range a.m {
		if len(st.M[i]) != len(a.m[i]) || len(st.V[i]) != len(a.v[i]) {
			return fmt.Errorf("optimizer state buffer %d has size %d, expected %d", i, len(st.M[i]), len(a.m[i]))
		}
	}
	a.t = st.Step
	for i := range a.m {
		copy(a.m[i], st.M[i])
		copy(a.v[i], st.V[i])
	}
	return nil
}
