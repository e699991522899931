// Package engine assembles the collaborators, objective and controller of an
// inversion from a loaded configuration.
package engine

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/seisinv/config"
	"github.com/pthm-cable/seisinv/forward"
	"github.com/pthm-cable/seisinv/inversion"
	"github.com/pthm-cable/seisinv/latent"
	"github.com/pthm-cable/seisinv/objective"
	"github.com/pthm-cable/seisinv/telemetry"
)

// Options holds the runtime hooks that are not part of the configuration.
type Options struct {
	Logger     *slog.Logger
	Perf       *telemetry.PerfCollector
	InitLatent func(rng *rand.Rand, dim int) *latent.State
}

// Engine is a fully wired inversion.
type Engine struct {
	Generator  forward.Generator
	Misfit     *forward.ConvolutionalMisfit
	Truth      forward.Field
	Aggregator *objective.Aggregator
	Controller *inversion.Controller
}

// New loads or synthesizes every collaborator named by cfg. cfg.Generator
// velocity bounds are replaced by the bounds file when one is configured.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "engine")

	if cfg.Paths.Bounds != "" {
		lo, hi, err := forward.LoadBounds(cfg.Paths.Bounds)
		if err != nil {
			return nil, err
		}
		cfg.Generator.MinVp, cfg.Generator.MaxVp = lo, hi
		log.Info("velocity bounds loaded", "min_vp", lo, "max_vp", hi)
	}

	gen, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}

	// Truth and observation noise share one stream, offset from the run seeds.
	dataRNG := rand.New(rand.NewSource(cfg.Run.Seed + 1))

	var truth forward.Field
	if cfg.Paths.TestImages != "" {
		truth, err = forward.LoadTestImage(cfg.Paths.TestImages, cfg.Run.TestImageID, cfg.Generator.MinVp, cfg.Generator.MaxVp)
		if err != nil {
			return nil, err
		}
		if truth.Height != cfg.Generator.Height || truth.Width != cfg.Generator.Width {
			return nil, fmt.Errorf("engine: test image is %dx%d, generator produces %dx%d",
				truth.Height, truth.Width, cfg.Generator.Height, cfg.Generator.Width)
		}
	} else {
		truth, err = forward.SynthesizeTruth(gen, dataRNG)
		if err != nil {
			return nil, err
		}
		log.Info("ground truth synthesized from prior draw")
	}

	misfit, err := forward.NewConvolutionalMisfit(forward.PhysicsFromConfig(cfg), truth, dataRNG)
	if err != nil {
		return nil, err
	}

	collab := objective.Collaborators{
		Generator: gen,
		Misfit:    misfit,
		Truth:     truth,
	}
	if cfg.Objective.UseCritic {
		weights := cfg.Critic.ChannelWeights
		if cfg.Paths.Critic != "" {
			if weights, err = forward.LoadChannelWeights(cfg.Paths.Critic); err != nil {
				return nil, err
			}
		}
		collab.Critic = forward.NewSmoothnessCritic(weights)
	}
	if cfg.Objective.UseWell {
		collab.Well = forward.BCEWell{}
	}

	agg, err := objective.NewAggregator(objective.Terms(cfg.Objective), collab)
	if err != nil {
		return nil, err
	}

	ctrlOpts := inversion.OptionsFromConfig(cfg)
	ctrlOpts.Logger = logger
	ctrlOpts.Perf = opts.Perf
	ctrlOpts.InitLatent = opts.InitLatent
	ctrl, err := inversion.NewController(ctrlOpts, gen, agg, misfit.Observed())
	if err != nil {
		return nil, err
	}

	terms := make([]string, 0, len(agg.Terms()))
	for _, t := range agg.Terms() {
		terms = append(terms, t.Name)
	}
	log.Info("engine ready",
		"latent_dim", gen.LatentDim(),
		"model_shape", cfg.Derived.ModelShape,
		"terms", terms,
		"variant", cfg.Sampler.Variant,
		"mode", cfg.Acceptance.Mode,
	)

	return &Engine{
		Generator:  gen,
		Misfit:     misfit,
		Truth:      truth,
		Aggregator: agg,
		Controller: ctrl,
	}, nil
}

func newGenerator(cfg *config.Config) (*forward.SimplexGenerator, error) {
	if cfg.Paths.Generator == "" {
		return forward.NewSimplexGenerator(cfg.Generator, cfg.Latent.Dim), nil
	}
	basis, err := forward.LoadBasis(cfg.Paths.Generator)
	if err != nil {
		return nil, err
	}
	gen, err := forward.NewBasisGenerator(cfg.Generator, basis)
	if err != nil {
		return nil, err
	}
	if gen.LatentDim() != cfg.Latent.Dim {
		return nil, fmt.Errorf("engine: generator basis has latent dimension %d, latent.dim is %d", gen.LatentDim(), cfg.Latent.Dim)
	}
	return gen, nil
}
