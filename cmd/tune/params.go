package main

import (
	"math"

	"github.com/pthm-cable/seisinv/config"
)

// ParamSpec defines a single tunable parameter.
type ParamSpec struct {
	Name string  // Human-readable name
	Path string  // Config path for logging
	Min  float64 // Lower bound
	Max  float64 // Upper bound
	Log  bool    // search in log space

	get func(cfg *config.Config) float64
	set func(cfg *config.Config, v float64)
}

// ParamVector holds the set of all tunable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of sampler and objective parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{
				Name: "learning_rate", Path: "sampler.learning_rate", Min: 1e-4, Max: 1e-1, Log: true,
				get: func(c *config.Config) float64 { return c.Sampler.LearningRate },
				set: func(c *config.Config, v float64) { c.Sampler.LearningRate = v },
			},
			{
				// Ratio keeps final <= initial for every point in the box.
				Name: "final_lr_ratio", Path: "sampler.final_learning_rate", Min: 1e-4, Max: 1, Log: true,
				get: func(c *config.Config) float64 {
					if c.Sampler.LearningRate == 0 {
						return 1
					}
					return c.Sampler.FinalLearningRate / c.Sampler.LearningRate
				},
				set: func(c *config.Config, v float64) { c.Sampler.FinalLearningRate = c.Sampler.LearningRate * v },
			},
			{
				Name: "weight_decay", Path: "sampler.weight_decay", Min: 1e-7, Max: 1e-2, Log: true,
				get: func(c *config.Config) float64 { return c.Sampler.WeightDecay },
				set: func(c *config.Config, v float64) { c.Sampler.WeightDecay = v },
			},
			{
				Name: "friction", Path: "sampler.friction", Min: 0.01, Max: 0.5,
				get: func(c *config.Config) float64 { return c.Sampler.Friction },
				set: func(c *config.Config, v float64) { c.Sampler.Friction = v },
			},
			{
				Name: "lambda_perceptual", Path: "objective.lambda_perceptual", Min: 0, Max: 5,
				get: func(c *config.Config) float64 { return c.Objective.LambdaPerceptual },
				set: func(c *config.Config, v float64) { c.Objective.LambdaPerceptual = v },
			},
			{
				Name: "lambda_well", Path: "objective.lambda_well", Min: 1, Max: 1000, Log: true,
				get: func(c *config.Config) float64 { return c.Objective.LambdaWell },
				set: func(c *config.Config, v float64) { c.Objective.LambdaWell = v },
			},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// Normalize converts raw parameter values to the [0,1] search box.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		if spec.Log {
			normalized[i] = (math.Log(raw[i]) - math.Log(spec.Min)) / (math.Log(spec.Max) - math.Log(spec.Min))
			continue
		}
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		if spec.Log {
			lo, hi := math.Log(spec.Min), math.Log(spec.Max)
			raw[i] = math.Exp(lo + normalized[i]*(hi-lo))
			continue
		}
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = math.Min(math.Max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig writes clamped parameter values into cfg in Specs order, so
// ratios see the values set before them, then recomputes derived fields.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)
	for i, spec := range pv.Specs {
		spec.set(cfg, clamped[i])
	}
	cfg.ComputeDerived()
}

// ExtractFromConfig reads the current parameter values from cfg, clamped to
// the search box.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.get(cfg)
	}
	return pv.Clamp(v)
}
