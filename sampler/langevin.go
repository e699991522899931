package sampler

import (
	"math"
	"math/rand"

	"github.com/pthm-cable/seisinv/latent"
)

// Langevin is an unadjusted Langevin (MALA-style) sampler:
//
//	z ← z − (lr/2)·(∇ + wd·z) + √lr·ξ,  ξ ~ N(0, I)
//
// There is no per-step Metropolis correction; acceptance happens at the run level.
type Langevin struct {
	tracked
}

// NewLangevin creates a Langevin sampler drawing noise from rng.
func NewLangevin(rng *rand.Rand) *Langevin {
	return &Langevin{tracked: tracked{rng: rng}}
}

// Reset starts tracking params.
func (l *Langevin) Reset(params []*latent.State, opts Options) error {
	return l.reset(params, opts)
}

// Step applies one Langevin update to every tracked parameter.
func (l *Langevin) Step() error {
	if err := l.checkGrads(); err != nil {
		return err
	}
	lr := l.state.LearningRate
	wd := l.state.WeightDecay
	noise := math.Sqrt(lr)
	half := lr / 2

	for _, p := range l.params {
		for i, z := range p.Values {
			g := p.Grad[i] + wd*z
			p.Values[i] = z - half*g + noise*l.rng.NormFloat64()
		}
	}
	return nil
}
