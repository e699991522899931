// Package inversion drives latent-space inversion runs: the per-run iteration
// loop with its accept/diverge/exhaust outcome, and the manager that repeats
// runs until enough samples are accepted.
package inversion

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/seisinv/config"
	"github.com/pthm-cable/seisinv/forward"
	"github.com/pthm-cable/seisinv/latent"
	"github.com/pthm-cable/seisinv/objective"
	"github.com/pthm-cable/seisinv/sampler"
	"github.com/pthm-cable/seisinv/telemetry"
)

// Acceptance decides whether a run's diagnostics are good enough.
type Acceptance struct {
	Mode          string
	RelativeError float64
	WellAccuracy  float64
	UseWell       bool
}

// Accept reports whether relErr and accuracy satisfy the thresholds. Accuracy
// is only consulted when well terms are in use.
func (a Acceptance) Accept(relErr, accuracy float64) bool {
	if relErr <= a.RelativeError && a.UseWell && accuracy >= a.WellAccuracy {
		return true
	}
	if relErr <= a.RelativeError && !a.UseWell {
		return true
	}
	return false
}

// Options configures a Controller.
type Options struct {
	Variant         string
	Sampler         sampler.Options
	LatentDim       int
	DivergenceBound float64
	Acceptance      Acceptance
	RunID           string

	// StoreReconstruction keeps the last shot-summed prediction on the record.
	StoreReconstruction bool

	// InitLatent replaces the prior draw. It receives the run RNG.
	InitLatent func(rng *rand.Rand, dim int) *latent.State

	Logger *slog.Logger
	Perf   *telemetry.PerfCollector
}

// OptionsFromConfig derives controller options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Variant:         cfg.Sampler.Variant,
		Sampler:         sampler.OptionsFromConfig(cfg.Sampler),
		LatentDim:       cfg.Latent.Dim,
		DivergenceBound: cfg.Latent.DivergenceBound,
		Acceptance: Acceptance{
			Mode:          cfg.Acceptance.Mode,
			RelativeError: cfg.Acceptance.RelativeError,
			WellAccuracy:  cfg.Acceptance.WellAccuracy,
			UseWell:       cfg.Objective.UseWell,
		},
		RunID:               cfg.Derived.RunID,
		StoreReconstruction: cfg.Output.StoreFinalReconstruction,
	}
}

// Controller runs one inversion at a time.
type Controller struct {
	opts  Options
	gen   forward.Generator
	agg   *objective.Aggregator
	gtSum []float64
	log   *slog.Logger
}

// NewController creates a controller scoring predictions against observed.
func NewController(opts Options, gen forward.Generator, agg *objective.Aggregator, observed forward.Traces) (*Controller, error) {
	if gen == nil || agg == nil {
		return nil, errors.New("inversion: generator and aggregator are required")
	}
	if opts.LatentDim < 1 {
		return nil, fmt.Errorf("inversion: latent dimension %d", opts.LatentDim)
	}
	if opts.Sampler.MaxIter < 1 {
		return nil, fmt.Errorf("inversion: max_iter %d", opts.Sampler.MaxIter)
	}
	switch opts.Acceptance.Mode {
	case config.ModeEager, config.ModeExhaustive:
	default:
		return nil, fmt.Errorf("inversion: unknown termination mode %q", opts.Acceptance.Mode)
	}

	gtSum := observed.Sum()
	if floats.Norm(gtSum, 2) == 0 {
		return nil, errors.New("inversion: observed waveform is zero")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		opts:  opts,
		gen:   gen,
		agg:   agg,
		gtSum: gtSum,
		log:   logger.With("component", "controller"),
	}, nil
}

// RelativeError returns ‖pred − gt‖/‖gt‖. gt must be non-zero.
func RelativeError(pred, gt []float64) float64 {
	return floats.Distance(pred, gt, 2) / floats.Norm(gt, 2)
}

// Run executes one inversion run seeded with seed. Divergence and exhaustion
// are reported through the record status; an error aborts the inversion.
func (c *Controller) Run(attempt int, seed int64) (*RunRecord, error) {
	rng := rand.New(rand.NewSource(seed))

	var z *latent.State
	if c.opts.InitLatent != nil {
		z = c.opts.InitLatent(rng, c.opts.LatentDim)
	} else {
		z = latent.SamplePrior(rng, c.opts.LatentDim)
	}
	if z.Dim() != c.gen.LatentDim() {
		return nil, &CollaboratorError{Stage: "generate", Err: fmt.Errorf("latent dimension %d, generator expects %d", z.Dim(), c.gen.LatentDim())}
	}

	s, err := sampler.New(c.opts.Variant, rng)
	if err != nil {
		return nil, err
	}
	if err := s.Reset([]*latent.State{z}, c.opts.Sampler); err != nil {
		return nil, err
	}
	defer c.agg.Reset()

	rec := &RunRecord{
		ID:      uuid.NewString(),
		RunID:   c.opts.RunID,
		Index:   -1,
		Attempt: attempt,
		Seed:    seed,
		Status:  StatusRunning,
		Reason:  ReasonNone,
	}
	log := c.log.With("attempt", attempt, "seed", seed)
	log.Info("run started", "id", rec.ID, "latent_std", z.Std())

	// Perf rows are labelled per attempt, so the window covers this run only.
	perf := c.opts.Perf
	perf.Reset()
	acc := c.opts.Acceptance
	var lastErr, lastAcc float64

	for i := 0; i < c.opts.Sampler.MaxIter; i++ {
		perf.StartIteration()

		s.ZeroGrad()

		perf.StartPhase(telemetry.PhaseGenerate)
		field, err := c.gen.Generate(z.Values)
		if err != nil {
			return nil, &CollaboratorError{Stage: "generate", Err: err}
		}

		perf.StartPhase(telemetry.PhaseObjective)
		res, err := c.agg.Evaluate(z, field)
		if err != nil {
			if errors.Is(err, objective.ErrNonFinite) {
				return nil, fmt.Errorf("iteration %d: %w", i, err)
			}
			return nil, &CollaboratorError{Stage: "objective", Err: err}
		}

		perf.StartPhase(telemetry.PhaseBackward)
		if err := c.agg.Backward(z); err != nil {
			if errors.Is(err, objective.ErrNonFinite) {
				return nil, fmt.Errorf("iteration %d: %w", i, err)
			}
			return nil, &CollaboratorError{Stage: "backward", Err: err}
		}
		gradNorm := z.GradNorm()

		perf.StartPhase(telemetry.PhaseStep)
		lr := s.State().LearningRate
		if err := s.Step(); err != nil {
			return nil, err
		}
		if !z.Finite() {
			return nil, fmt.Errorf("iteration %d: %w", i, ErrNonFinite)
		}

		perf.StartPhase(telemetry.PhaseDiagnostics)
		pred := res.Predicted.Sum()
		if len(pred) != len(c.gtSum) {
			return nil, &CollaboratorError{Stage: "misfit", Err: fmt.Errorf("prediction has %d samples, observed %d", len(pred), len(c.gtSum))}
		}
		relErr := RelativeError(pred, c.gtSum)
		s.State().DecayStep()

		std := z.Std()
		if std > c.opts.DivergenceBound || math.IsNaN(std) {
			perf.EndIteration()
			rec.Status = StatusDiverged
			rec.Reason = ReasonDiverged
			rec.FinalLR = s.State().LearningRate
			log.Warn("run diverged", "iter", i, "latent_std", std, "bound", c.opts.DivergenceBound)
			return rec, nil
		}

		rec.Latents = append(rec.Latents, z.Snapshot())
		rec.RelativeErrors = append(rec.RelativeErrors, relErr)
		if res.HasAccuracy {
			rec.Accuracies = append(rec.Accuracies, res.Accuracy)
		}
		rec.Iterations = append(rec.Iterations, IterationStats{
			Iter:      i,
			LR:        lr,
			RelErr:    relErr,
			Accuracy:  res.Accuracy,
			Combined:  res.Combined,
			Terms:     res.Terms,
			LatentStd: std,
			GradNorm:  gradNorm,
		})
		rec.FinalError, rec.FinalAccuracy = relErr, res.Accuracy
		rec.FinalLR = s.State().LearningRate
		if c.opts.StoreReconstruction {
			tr := forward.Traces{Shots: 1, Receivers: res.Predicted.Receivers, Samples: res.Predicted.Samples, Data: pred}
			rec.Reconstruction = &tr
		}
		lastErr, lastAcc = relErr, res.Accuracy

		for _, tv := range res.Terms {
			log.Info("term", "iter", i, "name", tv.Name, "value", tv.Value, "grad_norm", tv.GradNorm)
		}
		if res.HasAccuracy {
			log.Info("iteration", "iter", i, "relative_error", relErr, "well_accuracy", res.Accuracy, "lr", lr, "latent_std", std)
		} else {
			log.Info("iteration", "iter", i, "relative_error", relErr, "lr", lr, "latent_std", std)
		}
		perf.EndIteration()

		if acc.Mode == config.ModeEager && acc.Accept(relErr, res.Accuracy) {
			rec.Status = StatusConverged
			rec.Accepted = true
			log.Info("run converged", "iter", i, "relative_error", relErr)
			return rec, nil
		}
	}

	if acc.Mode == config.ModeExhaustive && acc.Accept(lastErr, lastAcc) {
		rec.Status = StatusConverged
		rec.Accepted = true
		log.Info("run converged", "iter", rec.Len()-1, "relative_error", lastErr)
		return rec, nil
	}

	rec.Status = StatusExhausted
	rec.Reason = ReasonExhausted
	log.Info("run exhausted", "relative_error", lastErr, "iterations", rec.Len())
	return rec, nil
}
