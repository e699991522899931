package sampler

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/pthm-cable/seisinv/config"
	"github.com/pthm-cable/seisinv/latent"
)

func TestNewVariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, v := range []string{config.VariantLangevin, config.VariantSGHMC} {
		if _, err := New(v, rng); err != nil {
			t.Errorf("New(%q): %v", v, err)
		}
	}
	if _, err := New("adam", rng); err == nil {
		t.Error("expected error for unknown variant")
	}
}

func TestResetRequiresParameters(t *testing.T) {
	for _, s := range []Sampler{NewLangevin(rand.New(rand.NewSource(1))), NewSGHMC(rand.New(rand.NewSource(1)))} {
		if err := s.Reset(nil, Options{}); !errors.Is(err, ErrNoParameters) {
			t.Errorf("%T.Reset(nil) = %v, want ErrNoParameters", s, err)
		}
	}
}

func TestStepRequiresGradient(t *testing.T) {
	for _, s := range []Sampler{NewLangevin(rand.New(rand.NewSource(1))), NewSGHMC(rand.New(rand.NewSource(1)))} {
		z := latent.New(4)
		if err := s.Reset([]*latent.State{z}, Options{InitialLR: 0.1, MaxIter: 10}); err != nil {
			t.Fatal(err)
		}
		if err := s.Step(); !errors.Is(err, ErrMissingGradient) {
			t.Errorf("%T.Step() without grad = %v, want ErrMissingGradient", s, err)
		}
	}
}

func TestLinearAnnealing(t *testing.T) {
	const (
		initial = 1e-2
		final   = 1e-5
		maxIter = 200
	)
	s := NewLangevin(rand.New(rand.NewSource(1)))
	if err := s.Reset([]*latent.State{latent.New(2)}, Options{InitialLR: initial, FinalLR: final, MaxIter: maxIter}); err != nil {
		t.Fatal(err)
	}

	st := s.State()
	if st.LearningRate != initial {
		t.Fatalf("initial lr = %v, want %v", st.LearningRate, initial)
	}

	step := (initial - final) / maxIter
	prev := st.LearningRate
	for i := 1; i <= maxIter; i++ {
		lr := st.DecayStep()
		if lr > prev {
			t.Fatalf("lr increased at step %d: %v -> %v", i, prev, lr)
		}
		want := initial - float64(i)*step
		if math.Abs(lr-want) > 1e-12 {
			t.Fatalf("lr at step %d = %v, want %v", i, lr, want)
		}
		prev = lr
	}
	if math.Abs(st.LearningRate-final) > 1e-12 {
		t.Errorf("final lr = %v, want %v", st.LearningRate, final)
	}

	// Extra decay steps clamp at the floor
	st.DecayStep()
	if st.LearningRate < final {
		t.Errorf("lr %v dropped below floor %v", st.LearningRate, final)
	}
}

func TestResetRestoresLearningRate(t *testing.T) {
	s := NewSGHMC(rand.New(rand.NewSource(1)))
	opts := Options{InitialLR: 0.5, FinalLR: 0.1, MaxIter: 4}
	params := []*latent.State{latent.New(3)}
	if err := s.Reset(params, opts); err != nil {
		t.Fatal(err)
	}
	s.State().DecayStep()
	s.State().Velocity(0)[0] = 3

	if err := s.Reset(params, opts); err != nil {
		t.Fatal(err)
	}
	if s.State().LearningRate != 0.5 {
		t.Errorf("lr after reset = %v, want 0.5", s.State().LearningRate)
	}
	if s.State().Velocity(0)[0] != 0 {
		t.Error("velocity not cleared on reset")
	}
}

func TestLangevinUpdate(t *testing.T) {
	const lr, wd = 0.04, 0.1
	z := latent.FromValues([]float64{1, -2, 0.5})
	if err := z.Accumulate([]float64{0.3, 0.1, -0.2}, 1); err != nil {
		t.Fatal(err)
	}
	before := z.Snapshot()
	grad := append([]float64(nil), z.Grad...)

	s := NewLangevin(rand.New(rand.NewSource(7)))
	if err := s.Reset([]*latent.State{z}, Options{InitialLR: lr, WeightDecay: wd, MaxIter: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Step(); err != nil {
		t.Fatal(err)
	}

	// Replay the noise stream to compute the expected update
	noise := rand.New(rand.NewSource(7))
	for i := range before {
		want := before[i] - lr/2*(grad[i]+wd*before[i]) + math.Sqrt(lr)*noise.NormFloat64()
		if math.Abs(z.Values[i]-want) > 1e-12 {
			t.Errorf("z[%d] = %v, want %v", i, z.Values[i], want)
		}
	}
}

func TestLangevinZeroLearningRateIsStable(t *testing.T) {
	z := latent.FromValues([]float64{1, 2, 3})
	if err := z.Accumulate([]float64{1e6, -1e6, 1e6}, 1); err != nil {
		t.Fatal(err)
	}
	s := NewLangevin(rand.New(rand.NewSource(3)))
	if err := s.Reset([]*latent.State{z}, Options{InitialLR: 0, MaxIter: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Step(); err != nil {
		t.Fatal(err)
	}
	for i, want := range []float64{1, 2, 3} {
		if z.Values[i] != want {
			t.Errorf("z[%d] = %v, want unchanged %v", i, z.Values[i], want)
		}
	}
}

func TestSGHMCMomentumWithoutNoise(t *testing.T) {
	const lr, friction = 0.1, 0.25
	z := latent.FromValues([]float64{1, 1})
	s := NewSGHMC(rand.New(rand.NewSource(1)))
	if err := s.Reset([]*latent.State{z}, Options{InitialLR: lr, Friction: friction, MaxIter: 10}); err != nil {
		t.Fatal(err)
	}

	// Constant unit gradient, no noise, no weight decay
	v := 0.0
	want := 1.0
	for step := 0; step < 3; step++ {
		s.ZeroGrad()
		if err := z.Accumulate([]float64{1, 1}, 1); err != nil {
			t.Fatal(err)
		}
		if err := s.Step(); err != nil {
			t.Fatal(err)
		}
		v = (1-friction)*v - lr
		want += v
		if math.Abs(z.Values[0]-want) > 1e-12 {
			t.Fatalf("step %d: z = %v, want %v", step, z.Values[0], want)
		}
		if math.Abs(s.State().Velocity(0)[0]-v) > 1e-12 {
			t.Fatalf("step %d: velocity = %v, want %v", step, s.State().Velocity(0)[0], v)
		}
	}
}

func TestSamplerDeterministic(t *testing.T) {
	run := func(variant string) []float64 {
		rng := rand.New(rand.NewSource(99))
		s, err := New(variant, rng)
		if err != nil {
			t.Fatal(err)
		}
		z := latent.SamplePrior(rng, 8)
		if err := s.Reset([]*latent.State{z}, Options{InitialLR: 0.01, FinalLR: 0.001, MaxIter: 5, Friction: 0.1, NoiseScale: 1}); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 5; i++ {
			s.ZeroGrad()
			if err := z.Accumulate(z.Values, 1); err != nil {
				t.Fatal(err)
			}
			if err := s.Step(); err != nil {
				t.Fatal(err)
			}
			s.State().DecayStep()
		}
		return z.Snapshot()
	}

	for _, variant := range []string{config.VariantLangevin, config.VariantSGHMC} {
		a, b := run(variant), run(variant)
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("%s: trajectories diverge at %d: %v vs %v", variant, i, a[i], b[i])
			}
		}
	}
}

func TestSGHMCNoiseScale(t *testing.T) {
	const lr, friction, scale = 0.09, 0.2, 0.5
	z := latent.FromValues([]float64{0.3, -0.7, 1.1})
	before := z.Snapshot()
	if err := z.Accumulate([]float64{0, 0, 0}, 1); err != nil {
		t.Fatal(err)
	}

	s := NewSGHMC(rand.New(rand.NewSource(11)))
	if err := s.Reset([]*latent.State{z}, Options{InitialLR: lr, Friction: friction, NoiseScale: scale, MaxIter: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Step(); err != nil {
		t.Fatal(err)
	}

	// Zero gradient and velocity: the first step is pure scaled diffusion.
	noise := rand.New(rand.NewSource(11))
	sigma := scale * math.Sqrt(2*friction*lr)
	for i := range before {
		want := before[i] + sigma*noise.NormFloat64()
		if math.Abs(z.Values[i]-want) > 1e-12 {
			t.Errorf("z[%d] = %v, want %v", i, z.Values[i], want)
		}
	}
}
