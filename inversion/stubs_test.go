package inversion

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/seisinv/config"
	"github.com/pthm-cable/seisinv/forward"
	"github.com/pthm-cable/seisinv/latent"
	"github.com/pthm-cable/seisinv/objective"
	"github.com/pthm-cable/seisinv/sampler"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// identityGen maps z to a 1x1xN field holding z.
type identityGen struct {
	n   int
	err error
}

func (g identityGen) LatentDim() int { return g.n }

func (g identityGen) Generate(z []float64) (forward.Field, error) {
	if g.err != nil {
		return forward.Field{}, g.err
	}
	f := forward.NewField(1, 1, g.n)
	copy(f.Data, z)
	return f, nil
}

func (g identityGen) Pullback(z []float64, grad forward.Field) ([]float64, error) {
	out := make([]float64, g.n)
	copy(out, grad.Data)
	return out, nil
}

func traces(data []float64) forward.Traces {
	tr := forward.NewTraces(1, 1, len(data))
	copy(tr.Data, data)
	return tr
}

// fixedMisfit always predicts the same traces with zero gradient.
type fixedMisfit struct {
	observed  forward.Traces
	predicted forward.Traces
	loss      float64
	resets    int
}

// newFixedMisfit predicts observed scaled by (1+relErr), so the relative error is relErr.
func newFixedMisfit(n int, relErr float64) *fixedMisfit {
	obs := make([]float64, n)
	pred := make([]float64, n)
	for i := range obs {
		obs[i] = 1
		pred[i] = 1 + relErr
	}
	return &fixedMisfit{observed: traces(obs), predicted: traces(pred)}
}

func (m *fixedMisfit) Misfit(f forward.Field) (forward.MisfitResult, error) {
	return forward.MisfitResult{Loss: m.loss, Grad: forward.ZeroLike(f), Predicted: m.predicted}, nil
}
func (m *fixedMisfit) Observed() forward.Traces { return m.observed }
func (m *fixedMisfit) Reset()                   { m.resets++ }

// quadraticMisfit predicts the field itself: loss = c/2·‖f − target‖².
// A negative c pushes the latent away from the target.
type quadraticMisfit struct {
	target []float64
	c      float64
}

func (m *quadraticMisfit) Misfit(f forward.Field) (forward.MisfitResult, error) {
	g := forward.ZeroLike(f)
	var loss float64
	for i, v := range f.Data {
		d := v - m.target[i]
		loss += 0.5 * m.c * d * d
		g.Data[i] = m.c * d
	}
	return forward.MisfitResult{Loss: loss, Grad: g, Predicted: traces(f.Data)}, nil
}
func (m *quadraticMisfit) Observed() forward.Traces { return traces(m.target) }
func (m *quadraticMisfit) Reset()                   {}

// fixedWell reports a constant accuracy with zero loss.
type fixedWell struct{ accuracy float64 }

func (w fixedWell) Evaluate(f, truth forward.Field, well, channel int) (forward.WellResult, error) {
	return forward.WellResult{Grad: forward.ZeroLike(f), Accuracy: w.accuracy}, nil
}

func baseOptions(dim, maxIter int, mode string, threshold float64) Options {
	return Options{
		Variant:         config.VariantLangevin,
		Sampler:         sampler.Options{InitialLR: 0.1, FinalLR: 0.001, MaxIter: maxIter},
		LatentDim:       dim,
		DivergenceBound: 5.0,
		Acceptance:      Acceptance{Mode: mode, RelativeError: threshold},
		RunID:           "test_0",
		Logger:          discard,
	}
}

func newTestController(t *testing.T, opts Options, gen forward.Generator, mis forward.Misfit, well forward.WellConstraint) *Controller {
	t.Helper()
	useWell := well != nil
	opts.Acceptance.UseWell = useWell
	terms := objective.Terms(config.ObjectiveConfig{
		UseWell:      useWell,
		LambdaFWI:    1,
		LambdaWell:   1,
		Wells:        []int{0},
		WellChannels: []int{0},
	})
	agg, err := objective.NewAggregator(terms, objective.Collaborators{
		Generator: gen,
		Misfit:    mis,
		Well:      well,
		Truth:     forward.NewField(1, 1, gen.LatentDim()),
	})
	require.NoError(t, err)
	ctrl, err := NewController(opts, gen, agg, mis.Observed())
	require.NoError(t, err)
	return ctrl
}

// spreadLatent returns a latent with sample standard deviation std.
func spreadLatent(dim int, std float64) *latent.State {
	s := latent.New(dim)
	for i := range s.Values {
		if i%2 == 0 {
			s.Values[i] = 1
		} else {
			s.Values[i] = -1
		}
	}
	scale := std / s.Std()
	for i := range s.Values {
		s.Values[i] *= scale
	}
	return s
}

// recorder collects persisted and observed runs.
type recorder struct {
	persisted []*RunRecord
	observed  []*RunRecord
	failWith  error
}

func (r *recorder) Persist(rec *RunRecord) error {
	if r.failWith != nil {
		return r.failWith
	}
	r.persisted = append(r.persisted, rec)
	return nil
}

func (r *recorder) OnRun(rec *RunRecord) error {
	r.observed = append(r.observed, rec)
	return nil
}

// scriptedRunner returns runs with the scripted statuses in order.
type scriptedRunner struct {
	statuses []Status
	seeds    []int64
	err      error
}

func (s *scriptedRunner) Run(attempt int, seed int64) (*RunRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.seeds = append(s.seeds, seed)
	st := s.statuses[attempt%len(s.statuses)]
	rec := &RunRecord{Attempt: attempt, Seed: seed, Index: -1, Status: st}
	if st == StatusConverged {
		rec.Accepted = true
		rec.Latents = [][]float64{{0}}
		rec.RelativeErrors = []float64{0}
	}
	return rec, nil
}

var errBoom = errors.New("boom")
