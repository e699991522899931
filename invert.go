package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pthm-cable/seisinv/artifacts"
	"github.com/pthm-cable/seisinv/config"
	"github.com/pthm-cable/seisinv/engine"
	"github.com/pthm-cable/seisinv/inversion"
	"github.com/pthm-cable/seisinv/latent"
	"github.com/pthm-cable/seisinv/registry"
	"github.com/pthm-cable/seisinv/telemetry"
)

// Invert command flags. Only flags set on the command line override the config.
var (
	invSeed             int64
	invRunName          string
	invNumRuns          int
	invMaxAttempts      int
	invMaxIter          int
	invLearningRate     float64
	invFinalLR          float64
	invWeightDecay      float64
	invLambdaPerceptual float64
	invLambdaFWI        float64
	invLambdaWell       float64
	invUseDisc          bool
	invUseWell          bool
	invRelError         float64
	invWellAccuracy     float64
	invDivergenceBound  float64
	invErrorTermination bool
	invVariant          string
	invGenerator        string
	invDiscriminator    string
	invMinsMaxs         string
	invTestImages       string
	invTestImageID      int
	invWorkingDir       string
	invOutFolder        string
	invRegistry         string
	invStoreGT          bool
	invStoreRecon       bool
	invSources          int
	invWaveletFreq      float64
	invSimTime          float64
	invTopPadding       int
	invBottomPadding    int
	invNoisePercent     float64
	invConsole          bool
	invPlots            bool
	invLogLevel         string
	invWarmStart        string
)

var invertCmd = &cobra.Command{
	Use:   "invert",
	Short: "Run inversions until enough samples are accepted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInvert(cmd)
	},
}

func registerInvertFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int64Var(&invSeed, "seed", 0, "Seed for the run seed stream and synthetic truth")
	f.StringVar(&invRunName, "run-name", "", "Experiment name")
	f.IntVar(&invNumRuns, "num-runs", 1, "Accepted samples to collect")
	f.IntVar(&invMaxAttempts, "max-attempts", 0, "Stop after N attempts (0 = unbounded)")
	f.IntVar(&invMaxIter, "max-iter", 200, "Iteration budget per run")
	f.Float64Var(&invLearningRate, "learning-rate", 0.01, "Initial learning rate")
	f.Float64Var(&invFinalLR, "final-learning-rate", 0.00001, "Learning rate reached at max-iter")
	f.Float64Var(&invWeightDecay, "weight-decay", 0.00001, "Weight decay")
	f.Float64Var(&invLambdaPerceptual, "lambda-perceptual", 1, "Critic term weight")
	f.Float64Var(&invLambdaFWI, "lambda-fwi", 1, "Misfit term weight")
	f.Float64Var(&invLambdaWell, "lambda-well", 100, "Well term weight")
	f.BoolVar(&invUseDisc, "use-disc", false, "Include the critic term")
	f.BoolVar(&invUseWell, "use-well", false, "Include well terms and the accuracy criterion")
	f.Float64Var(&invRelError, "seismic-relative-error", 0.1, "Relative error threshold for acceptance")
	f.Float64Var(&invWellAccuracy, "well-accuracy", 0.95, "Well accuracy threshold for acceptance")
	f.Float64Var(&invDivergenceBound, "divergence-bound", 5, "Abort a run when the latent std exceeds this")
	f.BoolVar(&invErrorTermination, "error-termination", false, "Spend the full iteration budget, then test acceptance once")
	f.StringVar(&invVariant, "variant", "langevin", "Sampler variant: langevin or sghmc")
	f.StringVar(&invGenerator, "generator", "", "Generator basis .npy")
	f.StringVar(&invDiscriminator, "discriminator", "", "Critic channel weights .npy")
	f.StringVar(&invMinsMaxs, "minsmaxs", "", "Velocity min/max table .npy")
	f.StringVar(&invTestImages, "testimgs", "", "Test image stack .npy")
	f.IntVar(&invTestImageID, "test-image-id", 0, "Index into the test image stack")
	f.StringVar(&invWorkingDir, "working-dir", "./", "Working directory")
	f.StringVar(&invOutFolder, "out-folder", "", "Output folder under the working directory (empty = run name)")
	f.StringVar(&invRegistry, "registry", "", "SQLite run registry (empty = <out>/runs.db)")
	f.BoolVar(&invStoreGT, "store-gt-waveform", false, "Save the observed waveform")
	f.BoolVar(&invStoreRecon, "store-final-reconstruction-waveform", false, "Save each accepted run's final waveform")
	f.IntVar(&invSources, "sources", 2, "Number of shots")
	f.Float64Var(&invWaveletFreq, "wavelet-frequency", 0.01, "Ricker peak frequency (kHz)")
	f.Float64Var(&invSimTime, "simulation-time", 1000, "Simulation end time (ms)")
	f.IntVar(&invTopPadding, "top-padding", 32, "Padding rows above the model")
	f.IntVar(&invBottomPadding, "bottom-padding", 32, "Padding rows below the model")
	f.Float64Var(&invNoisePercent, "noise-percent", 0.02, "Observation noise relative to the data std")
	f.BoolVar(&invConsole, "print-to-console", false, "Log to stdout instead of a log file")
	f.BoolVar(&invPlots, "plots", false, "Save a trajectory plot per accepted run")
	f.StringVar(&invLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&invWarmStart, "warm-start", "", "Hall of fame JSON to draw initial latents from")
}

// applyOverrides copies every flag set on the command line into cfg.
func applyOverrides(flags *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("seed", func() { cfg.Run.Seed = invSeed })
	set("run-name", func() { cfg.Run.Name = invRunName })
	set("num-runs", func() { cfg.Run.TargetAccepted = invNumRuns })
	set("max-attempts", func() { cfg.Run.MaxAttempts = invMaxAttempts })
	set("max-iter", func() { cfg.Sampler.MaxIter = invMaxIter })
	set("learning-rate", func() { cfg.Sampler.LearningRate = invLearningRate })
	set("final-learning-rate", func() { cfg.Sampler.FinalLearningRate = invFinalLR })
	set("weight-decay", func() { cfg.Sampler.WeightDecay = invWeightDecay })
	set("lambda-perceptual", func() { cfg.Objective.LambdaPerceptual = invLambdaPerceptual })
	set("lambda-fwi", func() { cfg.Objective.LambdaFWI = invLambdaFWI })
	set("lambda-well", func() { cfg.Objective.LambdaWell = invLambdaWell })
	set("use-disc", func() { cfg.Objective.UseCritic = invUseDisc })
	set("use-well", func() { cfg.Objective.UseWell = invUseWell })
	set("seismic-relative-error", func() { cfg.Acceptance.RelativeError = invRelError })
	set("well-accuracy", func() { cfg.Acceptance.WellAccuracy = invWellAccuracy })
	set("divergence-bound", func() { cfg.Latent.DivergenceBound = invDivergenceBound })
	set("error-termination", func() {
		cfg.Acceptance.Mode = config.ModeEager
		if invErrorTermination {
			cfg.Acceptance.Mode = config.ModeExhaustive
		}
	})
	set("variant", func() { cfg.Sampler.Variant = invVariant })
	set("generator", func() { cfg.Paths.Generator = invGenerator })
	set("discriminator", func() { cfg.Paths.Critic = invDiscriminator })
	set("minsmaxs", func() { cfg.Paths.Bounds = invMinsMaxs })
	set("testimgs", func() { cfg.Paths.TestImages = invTestImages })
	set("test-image-id", func() { cfg.Run.TestImageID = invTestImageID })
	set("working-dir", func() { cfg.Paths.WorkingDir = invWorkingDir })
	set("out-folder", func() { cfg.Paths.OutFolder = invOutFolder })
	set("registry", func() { cfg.Paths.Registry = invRegistry })
	set("store-gt-waveform", func() { cfg.Output.StoreGTWaveform = invStoreGT })
	set("store-final-reconstruction-waveform", func() { cfg.Output.StoreFinalReconstruction = invStoreRecon })
	set("sources", func() { cfg.Physics.Sources = invSources })
	set("wavelet-frequency", func() { cfg.Physics.WaveletFrequency = invWaveletFreq })
	set("simulation-time", func() { cfg.Physics.Tn = invSimTime })
	set("top-padding", func() { cfg.Physics.TopPadding = invTopPadding })
	set("bottom-padding", func() { cfg.Physics.BottomPadding = invBottomPadding })
	set("noise-percent", func() { cfg.Physics.NoisePercent = invNoisePercent })
	set("print-to-console", func() { cfg.Logging.Console = invConsole })
	set("plots", func() { cfg.Output.Plots = invPlots })
	set("log-level", func() { cfg.Logging.Level = invLogLevel })
	cfg.ComputeDerived()
}

// loadConfig loads the config file and applies command-line overrides.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(flags, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// warmStart returns an initializer drawing latents from a saved hall of fame.
// Entries of the wrong dimension fall back to the prior.
func warmStart(path string, logger *slog.Logger) (func(*rand.Rand, int) *latent.State, error) {
	hof, err := telemetry.LoadHallOfFameFromFile(path)
	if err != nil {
		return nil, err
	}
	logger.Info("warm start loaded", "path", path, "entries", hof.Size())
	return func(rng *rand.Rand, dim int) *latent.State {
		if z := hof.Sample(rng); len(z) == dim {
			return latent.FromValues(z)
		}
		return latent.SamplePrior(rng, dim)
	}, nil
}

func runInvert(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	outDir := cfg.Derived.OutDir
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	logger, logFile, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logFile.Close()
	slog.SetDefault(logger)

	perf := telemetry.NewPerfCollector(cfg.Output.PerfWindow)
	opts := engine.Options{Logger: logger, Perf: perf}
	if invWarmStart != "" {
		if opts.InitLatent, err = warmStart(invWarmStart, logger); err != nil {
			return err
		}
	}

	eng, err := engine.New(cfg, opts)
	if err != nil {
		return err
	}

	output, err := telemetry.NewOutputManager(outDir)
	if err != nil {
		return err
	}
	defer output.Close()
	if err := output.WriteConfig(cfg); err != nil {
		return err
	}

	writer, err := artifacts.NewWriter(outDir, cfg.Derived.RunID, cfg.Output.Plots, logger)
	if err != nil {
		return err
	}
	if cfg.Output.StoreGTWaveform {
		if err := writer.WriteGroundTruth(eng.Misfit.Observed()); err != nil {
			return err
		}
	}

	regPath := cfg.Paths.Registry
	if regPath == "" {
		regPath = filepath.Join(outDir, "runs.db")
	}
	reg, err := registry.Open(regPath)
	if err != nil {
		return err
	}
	defer reg.Close()

	observers := []inversion.Observer{
		&inversion.TelemetryObserver{
			Output:          output,
			HallOfFame:      telemetry.NewHallOfFame(cfg.Output.HallOfFameSize),
			Perf:            perf,
			IncludeRejected: cfg.Output.PersistRejected,
		},
		reg,
	}

	mgr, err := inversion.NewManager(eng.Controller, inversion.ManagerOptions{
		TargetAccepted: cfg.Run.TargetAccepted,
		MaxAttempts:    cfg.Run.MaxAttempts,
		Seed:           cfg.Run.Seed,
		Persister:      writer,
		Observers:      observers,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting inversion",
		"run_id", cfg.Derived.RunID,
		"out_dir", outDir,
		"target_accepted", cfg.Run.TargetAccepted,
		"max_attempts", cfg.Run.MaxAttempts,
	)

	summary, err := mgr.Run(ctx)
	logger.Info("inversion finished",
		"accepted", len(summary.Accepted),
		"attempts", summary.Attempts,
		"diverged", summary.Diverged,
		"exhausted", summary.Exhausted,
		"perf", perf.Stats(),
	)
	if err != nil {
		return err
	}
	if !cfg.Logging.Console {
		fmt.Fprintf(cmd.OutOrStdout(), "accepted %d/%d runs in %d attempts, results in %s\n",
			len(summary.Accepted), cfg.Run.TargetAccepted, summary.Attempts, outDir)
	}
	return nil
}
