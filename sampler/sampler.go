// Package sampler implements stochastic-gradient latent samplers with linear
// learning-rate annealing.
package sampler

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/pthm-cable/seisinv/config"
	"github.com/pthm-cable/seisinv/latent"
)

var (
	// ErrNoParameters is returned by Reset when no parameters are tracked.
	ErrNoParameters = errors.New("sampler: no parameters")
	// ErrMissingGradient is returned by Step when a tracked parameter has no gradient.
	ErrMissingGradient = errors.New("sampler: gradient not populated")
)

// Options configures a sampler for one run.
type Options struct {
	InitialLR   float64
	FinalLR     float64
	WeightDecay float64
	MaxIter     int

	// SGHMC only
	Friction   float64
	NoiseScale float64
}

// OptionsFromConfig extracts sampler options from the inversion config.
func OptionsFromConfig(c config.SamplerConfig) Options {
	return Options{
		InitialLR:   c.LearningRate,
		FinalLR:     c.FinalLearningRate,
		WeightDecay: c.WeightDecay,
		MaxIter:     c.MaxIter,
		Friction:    c.Friction,
		NoiseScale:  c.NoiseScale,
	}
}

// OptimizerState is the per-run mutable state of a sampler.
type OptimizerState struct {
	LearningRate float64
	InitialLR    float64
	FinalLR      float64
	WeightDecay  float64
	Friction     float64
	NoiseScale   float64

	decrement float64
	velocity  [][]float64 // SGHMC only, one buffer per parameter
}

func newOptimizerState(opts Options, params []*latent.State) *OptimizerState {
	st := &OptimizerState{
		LearningRate: opts.InitialLR,
		InitialLR:    opts.InitialLR,
		FinalLR:      opts.FinalLR,
		WeightDecay:  opts.WeightDecay,
		Friction:     opts.Friction,
		NoiseScale:   opts.NoiseScale,
	}
	if opts.MaxIter > 0 {
		st.decrement = (opts.InitialLR - opts.FinalLR) / float64(opts.MaxIter)
	}
	st.velocity = make([][]float64, len(params))
	for i, p := range params {
		st.velocity[i] = make([]float64, p.Dim())
	}
	return st
}

// SetLearningRate overrides the current learning rate.
func (o *OptimizerState) SetLearningRate(lr float64) {
	o.LearningRate = lr
}

// DecayStep applies one linear annealing step. After MaxIter calls the
// learning rate equals FinalLR; it never drops below it.
func (o *OptimizerState) DecayStep() float64 {
	o.LearningRate -= o.decrement
	if o.LearningRate < o.FinalLR {
		o.LearningRate = o.FinalLR
	}
	return o.LearningRate
}

// Velocity returns the momentum buffer of parameter i (nil for variants without one).
func (o *OptimizerState) Velocity(i int) []float64 {
	if i < 0 || i >= len(o.velocity) {
		return nil
	}
	return o.velocity[i]
}

// Sampler is a gradient-based latent update rule.
type Sampler interface {
	// Reset starts tracking params with a fresh OptimizerState.
	Reset(params []*latent.State, opts Options) error
	// ZeroGrad clears the gradients of all tracked parameters.
	ZeroGrad()
	// Step updates every tracked parameter in place from its gradient.
	Step() error
	// State exposes the optimizer state for annealing and diagnostics.
	State() *OptimizerState
}

// New creates a sampler of the named variant drawing noise from rng.
func New(variant string, rng *rand.Rand) (Sampler, error) {
	switch variant {
	case config.VariantLangevin:
		return NewLangevin(rng), nil
	case config.VariantSGHMC:
		return NewSGHMC(rng), nil
	default:
		return nil, fmt.Errorf("sampler: unknown variant %q", variant)
	}
}

// tracked holds the parameter bookkeeping shared by both variants.
type tracked struct {
	params []*latent.State
	state  *OptimizerState
	rng    *rand.Rand
}

func (t *tracked) reset(params []*latent.State, opts Options) error {
	if len(params) == 0 {
		return ErrNoParameters
	}
	t.params = params
	t.state = newOptimizerState(opts, params)
	return nil
}

func (t *tracked) ZeroGrad() {
	for _, p := range t.params {
		p.ZeroGrad()
	}
}

func (t *tracked) State() *OptimizerState {
	return t.state
}

func (t *tracked) checkGrads() error {
	if len(t.params) == 0 {
		return ErrNoParameters
	}
	for i, p := range t.params {
		if !p.HasGrad() {
			return fmt.Errorf("%w: parameter %d", ErrMissingGradient, i)
		}
	}
	return nil
}
