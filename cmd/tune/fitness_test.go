package main

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/seisinv/config"
	"github.com/pthm-cable/seisinv/inversion"
)

func smallConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Latent.Dim = 6
	cfg.Generator.Width = 12
	cfg.Generator.Height = 8
	cfg.Generator.FeatureScale = 0.3
	cfg.Physics.TopPadding = 2
	cfg.Physics.BottomPadding = 2
	cfg.Physics.Tn = 120
	cfg.Physics.WaveletFrequency = 0.05
	cfg.Physics.NBPML = 2
	cfg.Physics.Receivers = 6
	cfg.Physics.SourceMinX, cfg.Physics.RecMinX = 0, 0
	cfg.Physics.SourceMinY, cfg.Physics.RecMinY = 1, 1
	cfg.Objective.Wells = []int{5}
	cfg.Sampler.MaxIter = 5
	cfg.ComputeDerived()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestComputeFitness(t *testing.T) {
	converged := &inversion.RunRecord{
		Status:         inversion.StatusConverged,
		RelativeErrors: []float64{0.5, 0.08, 0.09},
		Latents:        make([][]float64, 3),
	}
	require.InDelta(t, 0.08+iterationWeight*3.0/10, computeFitness(converged, 10), 1e-12)

	early := &inversion.RunRecord{Status: inversion.StatusDiverged}
	late := &inversion.RunRecord{Status: inversion.StatusDiverged, Latents: make([][]float64, 9)}
	require.Greater(t, computeFitness(early, 10), computeFitness(late, 10))
	require.Greater(t, computeFitness(late, 10), computeFitness(converged, 10),
		"diverging must score worse than any bounded run")
}

func TestEvaluate(t *testing.T) {
	cfg := smallConfig(t)
	pv := NewParamVector()
	fe := NewFitnessEvaluator(pv, []int64{42, 1042}, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	x := pv.ExtractFromConfig(cfg)
	a := fe.Evaluate(x)
	require.False(t, math.IsNaN(a))
	require.Less(t, a, failurePenalty)
	require.NotNil(t, fe.BestHallOfFame())
	require.GreaterOrEqual(t, fe.LastAccepted(), 0.0)
	require.LessOrEqual(t, fe.LastAccepted(), 1.0)

	// Runs are seeded, so the same point scores the same.
	require.Equal(t, a, fe.Evaluate(x))

	// The base config is never mutated by an evaluation.
	require.Equal(t, int64(0), cfg.Run.Seed)
	require.Equal(t, []int{5}, cfg.Objective.Wells)
}
