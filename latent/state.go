// Package latent holds the latent code being sampled and its accumulated gradient.
package latent

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrDimension is returned when a gradient does not match the latent dimension.
var ErrDimension = errors.New("latent: dimension mismatch")

// State is one live latent code. It is owned by a single run and mutated in place
// by the sampler.
type State struct {
	Values []float64
	Grad   []float64

	hasGrad bool
}

// New returns a zero latent of the given dimension.
func New(dim int) *State {
	return &State{
		Values: make([]float64, dim),
		Grad:   make([]float64, dim),
	}
}

// FromValues wraps a copy of values as a latent state.
func FromValues(values []float64) *State {
	s := New(len(values))
	copy(s.Values, values)
	return s
}

// SamplePrior draws a latent from the standard normal prior.
func SamplePrior(rng *rand.Rand, dim int) *State {
	s := New(dim)
	for i := range s.Values {
		s.Values[i] = rng.NormFloat64()
	}
	return s
}

// Dim returns the latent dimension.
func (s *State) Dim() int {
	return len(s.Values)
}

// Std returns the unbiased sample standard deviation of the latent values.
// This is the dispersion statistic used for divergence detection.
func (s *State) Std() float64 {
	if len(s.Values) < 2 {
		return 0
	}
	return stat.StdDev(s.Values, nil)
}

// ZeroGrad clears the accumulated gradient.
func (s *State) ZeroGrad() {
	for i := range s.Grad {
		s.Grad[i] = 0
	}
	s.hasGrad = false
}

// Accumulate adds scale*g into the gradient buffer.
func (s *State) Accumulate(g []float64, scale float64) error {
	if len(g) != len(s.Grad) {
		return fmt.Errorf("%w: gradient has %d entries, latent has %d", ErrDimension, len(g), len(s.Grad))
	}
	floats.AddScaled(s.Grad, scale, g)
	s.hasGrad = true
	return nil
}

// HasGrad reports whether any gradient has been accumulated since the last ZeroGrad.
func (s *State) HasGrad() bool {
	return s.hasGrad
}

// GradNorm returns the L2 norm of the accumulated gradient.
func (s *State) GradNorm() float64 {
	return floats.Norm(s.Grad, 2)
}

// Finite reports whether every latent value is finite.
func (s *State) Finite() bool {
	for _, v := range s.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of the current values.
func (s *State) Snapshot() []float64 {
	out := make([]float64, len(s.Values))
	copy(out, s.Values)
	return out
}
