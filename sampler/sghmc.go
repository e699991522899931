package sampler

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/seisinv/latent"
)

// SGHMC is a stochastic-gradient Hamiltonian Monte Carlo sampler with friction:
//
//	v ← (1−α)·v − lr·(∇ + wd·z) + s·√(2·α·lr)·ξ
//	z ← z + v
//
// where α is the friction and s the noise scale. NoiseScale is relative to the
// standard SGHMC diffusion √(2·α·lr): s = 1 injects exactly that, s = 0 turns the
// update into momentum descent, and the noise vanishes with the learning rate.
type SGHMC struct {
	tracked
}

// NewSGHMC creates an SGHMC sampler drawing noise from rng.
func NewSGHMC(rng *rand.Rand) *SGHMC {
	return &SGHMC{tracked: tracked{rng: rng}}
}

// Reset starts tracking params with zeroed velocity buffers.
func (s *SGHMC) Reset(params []*latent.State, opts Options) error {
	return s.reset(params, opts)
}

// Step applies one SGHMC update to every tracked parameter.
func (s *SGHMC) Step() error {
	if err := s.checkGrads(); err != nil {
		return err
	}
	st := s.state
	lr := st.LearningRate
	keep := 1 - st.Friction
	noise := st.NoiseScale * math.Sqrt(2*st.Friction*lr)

	for pi, p := range s.params {
		v := st.velocity[pi]
		for i, z := range p.Values {
			g := p.Grad[i] + st.WeightDecay*z
			v[i] = keep*v[i] - lr*g
			if noise != 0 {
				v[i] += noise * s.rng.NormFloat64()
			}
		}
		floats.Add(p.Values, v)
	}
	return nil
}
