package main

import (
	"io"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/pthm-cable/seisinv/config"
	"github.com/pthm-cable/seisinv/engine"
	"github.com/pthm-cable/seisinv/inversion"
	"github.com/pthm-cable/seisinv/telemetry"
)

// Fitness components. A converged run scores its best relative error plus a
// small charge for the iterations it spent; a diverged run always scores worse
// than any run that stayed bounded.
const (
	iterationWeight   = 0.1
	divergencePenalty = 2.0
	failurePenalty    = 10.0
)

// FitnessEvaluator runs one inversion per seed and scores the outcome.
type FitnessEvaluator struct {
	params     *ParamVector
	seeds      []int64
	baseConfig *config.Config
	hofSize    int
	log        *slog.Logger

	// Best evaluation tracking
	mu             sync.Mutex
	bestFitness    float64
	bestHallOfFame *telemetry.HallOfFame
	lastAccepted   float64 // accepted fraction from the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, seeds []int64, baseCfg *config.Config, logger *slog.Logger) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		seeds:       seeds,
		baseConfig:  baseCfg,
		hofSize:     baseCfg.Output.HallOfFameSize,
		log:         logger.With("component", "fitness"),
		bestFitness: math.Inf(1),
	}
}

// BestHallOfFame returns the accepted latents of the best evaluation.
func (fe *FitnessEvaluator) BestHallOfFame() *telemetry.HallOfFame {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestHallOfFame
}

// LastAccepted returns the fraction of seeds accepted in the most recent evaluation.
func (fe *FitnessEvaluator) LastAccepted() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastAccepted
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	fitness float64
	record  *inversion.RunRecord
}

// Evaluate computes fitness for a raw parameter vector (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	// Each seed gets its own engine: the misfit caches the last prediction.
	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			results[idx] = fe.runSeed(x, s)
		}(i, seed)
	}
	wg.Wait()

	hof := telemetry.NewHallOfFame(fe.hofSize)
	var total float64
	var accepted int
	for _, r := range results {
		total += r.fitness
		if r.record != nil && r.record.Accepted {
			accepted++
			hof.Consider(r.record.HallEntry())
		}
	}
	n := float64(len(fe.seeds))
	avg := total / n

	fe.mu.Lock()
	if avg < fe.bestFitness {
		fe.bestFitness = avg
		fe.bestHallOfFame = hof
	}
	fe.lastAccepted = float64(accepted) / n
	fe.mu.Unlock()

	return avg
}

// runSeed executes one inversion run for seed.
func (fe *FitnessEvaluator) runSeed(x []float64, seed int64) seedResult {
	cfg := fe.copyConfig()
	cfg.Run.Seed = seed
	fe.params.ApplyToConfig(cfg, x)

	eng, err := engine.New(cfg, engine.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		fe.log.Error("building engine", "seed", seed, "error", err)
		return seedResult{fitness: failurePenalty}
	}
	rec, err := eng.Controller.Run(0, seed)
	if err != nil {
		fe.log.Error("run failed", "seed", seed, "error", err)
		return seedResult{fitness: failurePenalty}
	}
	return seedResult{fitness: computeFitness(rec, cfg.Sampler.MaxIter), record: rec}
}

// computeFitness scores a finished run.
func computeFitness(rec *inversion.RunRecord, maxIter int) float64 {
	if rec.Status == inversion.StatusDiverged {
		// Later divergence is better than immediate divergence.
		return divergencePenalty + 1 - float64(rec.Len())/float64(maxIter)
	}
	best := 1.0
	if len(rec.RelativeErrors) > 0 {
		best = slices.Min(rec.RelativeErrors)
	}
	return best + iterationWeight*float64(rec.Len())/float64(maxIter)
}

// copyConfig creates a deep copy of the base config.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	cfg.Objective.Wells = slices.Clone(fe.baseConfig.Objective.Wells)
	cfg.Objective.WellChannels = slices.Clone(fe.baseConfig.Objective.WellChannels)
	cfg.Critic.ChannelWeights = slices.Clone(fe.baseConfig.Critic.ChannelWeights)
	return &cfg
}
