// Package config provides configuration loading and validation for latent-space inversion.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Termination modes.
const (
	ModeEager      = "eager"      // stop a run as soon as the acceptance predicate holds
	ModeExhaustive = "exhaustive" // always spend the full iteration budget, then test once
)

// Sampler variants.
const (
	VariantLangevin = "langevin"
	VariantSGHMC    = "sghmc"
)

// Config holds all run-independent inversion parameters.
type Config struct {
	Run        RunConfig        `yaml:"run"`
	Paths      PathsConfig      `yaml:"paths"`
	Output     OutputConfig     `yaml:"output"`
	Logging    LoggingConfig    `yaml:"logging"`
	Latent     LatentConfig     `yaml:"latent"`
	Sampler    SamplerConfig    `yaml:"sampler"`
	Objective  ObjectiveConfig  `yaml:"objective"`
	Acceptance AcceptanceConfig `yaml:"acceptance"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Critic     CriticConfig     `yaml:"critic"`
	Physics    PhysicsConfig    `yaml:"physics"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// RunConfig identifies the experiment and bounds the run-manager loop.
type RunConfig struct {
	Name           string `yaml:"name"`
	Seed           int64  `yaml:"seed"`
	TargetAccepted int    `yaml:"target_accepted"` // accepted samples to collect
	MaxAttempts    int    `yaml:"max_attempts"`    // 0 = unbounded retries
	TestImageID    int    `yaml:"test_image_id"`
}

// PathsConfig holds input and output locations.
type PathsConfig struct {
	WorkingDir string `yaml:"working_dir"`
	OutFolder  string `yaml:"out_folder"` // empty = run name
	Generator  string `yaml:"generator"`  // .npy basis matrix (empty = synthesize)
	Critic     string `yaml:"critic"`     // .npy per-channel weights (empty = critic.channel_weights)
	Bounds     string `yaml:"bounds"`     // .npy min/max table (empty = generator.min_vp/max_vp)
	TestImages string `yaml:"test_images"`
	Registry   string `yaml:"registry"` // sqlite file (empty = <out>/runs.db)
}

// OutputConfig selects optional artifacts.
type OutputConfig struct {
	StoreGTWaveform          bool `yaml:"store_gt_waveform"`
	StoreFinalReconstruction bool `yaml:"store_final_reconstruction"`
	PersistRejected          bool `yaml:"persist_rejected"` // keep CSV/registry rows for rejected runs
	Plots                    bool `yaml:"plots"`
	HallOfFameSize           int  `yaml:"hall_of_fame_size"`
	PerfWindow               int  `yaml:"perf_window"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level   string `yaml:"level"`   // debug, info, warn, error
	Format  string `yaml:"format"`  // json or text
	Console bool   `yaml:"console"` // stdout instead of a log file
}

// LatentConfig describes the latent prior.
type LatentConfig struct {
	Dim             int     `yaml:"dim"`
	DivergenceBound float64 `yaml:"divergence_bound"` // abort when latent std exceeds this
}

// SamplerConfig holds stochastic-gradient sampler parameters.
type SamplerConfig struct {
	Variant           string  `yaml:"variant"`
	LearningRate      float64 `yaml:"learning_rate"`
	FinalLearningRate float64 `yaml:"final_learning_rate"`
	WeightDecay       float64 `yaml:"weight_decay"`
	Friction          float64 `yaml:"friction"`    // SGHMC only
	NoiseScale        float64 `yaml:"noise_scale"` // SGHMC only
	MaxIter           int     `yaml:"max_iter"`
}

// ObjectiveConfig selects and weights the loss terms.
type ObjectiveConfig struct {
	UseCritic        bool    `yaml:"use_critic"`
	UseWell          bool    `yaml:"use_well"`
	LambdaPerceptual float64 `yaml:"lambda_perceptual"`
	LambdaFWI        float64 `yaml:"lambda_fwi"`
	LambdaWell       float64 `yaml:"lambda_well"`
	Wells            []int   `yaml:"wells"`         // well column positions
	WellChannels     []int   `yaml:"well_channels"` // field channels constrained at each well
}

// AcceptanceConfig holds the acceptance thresholds and termination mode.
type AcceptanceConfig struct {
	Mode          string  `yaml:"mode"`
	RelativeError float64 `yaml:"relative_error"`
	WellAccuracy  float64 `yaml:"well_accuracy"`
}

// GeneratorConfig configures the reference simplex-basis generator.
type GeneratorConfig struct {
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	FeatureScale float64 `yaml:"feature_scale"` // simplex frequency per cell
	BasisSeed    int64   `yaml:"basis_seed"`
	MinVp        float64 `yaml:"min_vp"`
	MaxVp        float64 `yaml:"max_vp"`
}

// CriticConfig configures the reference smoothness critic.
type CriticConfig struct {
	ChannelWeights []float64 `yaml:"channel_weights"`
}

// PhysicsConfig configures the reference acoustic forward model.
type PhysicsConfig struct {
	T0               float64    `yaml:"t0"`
	Tn               float64    `yaml:"tn"` // simulation time
	TopPadding       int        `yaml:"top_padding"`
	BottomPadding    int        `yaml:"bottom_padding"`
	PaddingVp        float64    `yaml:"padding_vp"`
	NBPML            int        `yaml:"nbpml"`
	Origin           [2]float64 `yaml:"origin"`
	Spacing          [2]float64 `yaml:"spacing"`
	Sources          int        `yaml:"sources"`
	SourceMinX       int        `yaml:"source_min_x"`
	SourceMinY       int        `yaml:"source_min_y"`
	Receivers        int        `yaml:"receivers"`
	RecMinX          int        `yaml:"rec_min_x"`
	RecMinY          int        `yaml:"rec_min_y"`
	WaveletFrequency float64    `yaml:"wavelet_frequency"`
	NoisePercent     float64    `yaml:"noise_percent"`
}

// DerivedConfig holds values computed from the loaded config.
type DerivedConfig struct {
	OutDir       string  // working_dir/out_folder
	RunID        string  // name_seed
	ModelShape   [2]int  // (width, padded depth)
	LRDecrement  float64 // per-iteration learning-rate decrement
	NumWellTerms int
}

// Load reads configuration from a YAML file, falling back to embedded defaults.
// If path is empty, only defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.ComputeDerived()

	return cfg, nil
}

// ComputeDerived recalculates derived values. Call it again after mutating fields
// (for example after applying command-line overrides).
func (c *Config) ComputeDerived() {
	out := c.Paths.OutFolder
	if out == "" {
		out = c.Run.Name
	}
	c.Derived.OutDir = filepath.Join(os.ExpandEnv(c.Paths.WorkingDir), out)
	c.Derived.RunID = fmt.Sprintf("%s_%d", c.Run.Name, c.Run.Seed)

	c.Derived.ModelShape = [2]int{
		c.Generator.Width,
		c.Physics.BottomPadding + c.Generator.Height + c.Physics.TopPadding,
	}

	if c.Sampler.MaxIter > 0 {
		c.Derived.LRDecrement = (c.Sampler.LearningRate - c.Sampler.FinalLearningRate) / float64(c.Sampler.MaxIter)
	}

	c.Derived.NumWellTerms = 0
	if c.Objective.UseWell {
		c.Derived.NumWellTerms = len(c.Objective.Wells) * len(c.Objective.WellChannels)
	}
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Run.Name == "" {
		fail("run.name is empty")
	}
	if c.Run.TargetAccepted < 1 {
		fail("run.target_accepted must be >= 1, got %d", c.Run.TargetAccepted)
	}
	if c.Run.MaxAttempts < 0 {
		fail("run.max_attempts must be >= 0, got %d", c.Run.MaxAttempts)
	}
	if c.Latent.Dim < 1 {
		fail("latent.dim must be >= 1, got %d", c.Latent.Dim)
	}
	if c.Latent.DivergenceBound <= 0 {
		fail("latent.divergence_bound must be > 0, got %g", c.Latent.DivergenceBound)
	}

	switch c.Sampler.Variant {
	case VariantLangevin, VariantSGHMC:
	default:
		fail("sampler.variant %q is not one of %q, %q", c.Sampler.Variant, VariantLangevin, VariantSGHMC)
	}
	if c.Sampler.MaxIter < 1 {
		fail("sampler.max_iter must be >= 1, got %d", c.Sampler.MaxIter)
	}
	if c.Sampler.FinalLearningRate < 0 || c.Sampler.LearningRate < c.Sampler.FinalLearningRate {
		fail("learning rates must satisfy 0 <= final (%g) <= initial (%g)",
			c.Sampler.FinalLearningRate, c.Sampler.LearningRate)
	}
	if c.Sampler.Friction < 0 || c.Sampler.Friction > 1 {
		fail("sampler.friction must be in [0,1], got %g", c.Sampler.Friction)
	}

	switch c.Acceptance.Mode {
	case ModeEager, ModeExhaustive:
	default:
		fail("acceptance.mode %q is not one of %q, %q", c.Acceptance.Mode, ModeEager, ModeExhaustive)
	}

	if c.Generator.Width < 1 || c.Generator.Height < 1 {
		fail("generator dimensions must be positive, got %dx%d", c.Generator.Width, c.Generator.Height)
	}
	if c.Generator.MaxVp <= c.Generator.MinVp {
		fail("generator.max_vp (%g) must exceed min_vp (%g)", c.Generator.MaxVp, c.Generator.MinVp)
	}

	if c.Objective.UseWell {
		if len(c.Objective.Wells) == 0 || len(c.Objective.WellChannels) == 0 {
			fail("objective.use_well requires wells and well_channels")
		}
		for _, w := range c.Objective.Wells {
			if w < 0 || w >= c.Generator.Width {
				fail("well position %d outside [0,%d)", w, c.Generator.Width)
			}
		}
		for _, ch := range c.Objective.WellChannels {
			if ch != 0 {
				fail("well channel %d is not a facies channel", ch)
			}
		}
	}

	if c.Physics.Tn <= c.Physics.T0 {
		fail("physics.tn (%g) must exceed t0 (%g)", c.Physics.Tn, c.Physics.T0)
	}
	if c.Physics.Sources < 1 || c.Physics.Receivers < 1 {
		fail("physics needs at least one source and one receiver")
	}
	if c.Physics.TopPadding < 0 || c.Physics.BottomPadding < 0 {
		fail("physics padding must be >= 0, got top %d bottom %d", c.Physics.TopPadding, c.Physics.BottomPadding)
	}
	if x := c.Physics.SourceMinX; x < 0 || x >= c.Generator.Width {
		fail("physics.source_min_x %d outside [0,%d)", x, c.Generator.Width)
	}
	if x := c.Physics.RecMinX; x < 0 || x >= c.Generator.Width {
		fail("physics.rec_min_x %d outside [0,%d)", x, c.Generator.Width)
	}
	if c.Physics.SourceMinY < 0 || c.Physics.RecMinY < 0 {
		fail("physics source and receiver depths must be >= 0")
	}
	if c.Physics.WaveletFrequency <= 0 {
		fail("physics.wavelet_frequency must be > 0")
	}

	return errors.Join(errs...)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
