// Package telemetry records per-iteration diagnostics, per-run summaries, phase
// timing and the best accepted samples of an inversion.
package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// IterationRow is one iteration of one run.
type IterationRow struct {
	RunID     string  `csv:"run_id"`
	Attempt   int     `csv:"attempt"`
	Seed      int64   `csv:"seed"`
	Iter      int     `csv:"iter"`
	LR        float64 `csv:"lr"`
	RelErr    float64 `csv:"relative_error"`
	Accuracy  float64 `csv:"well_accuracy"`
	Combined  float64 `csv:"combined_loss"`
	Critic    float64 `csv:"critic"`
	Well      float64 `csv:"well"`
	Misfit    float64 `csv:"misfit"`
	LatentStd float64 `csv:"latent_std"`
	GradNorm  float64 `csv:"grad_norm"`
}

// RunRow summarizes one finished run.
type RunRow struct {
	RunID         string  `csv:"run_id"`
	Attempt       int     `csv:"attempt"`
	Index         int     `csv:"index"` // accepted index, -1 if rejected
	Seed          int64   `csv:"seed"`
	Status        string  `csv:"status"`
	Reason        string  `csv:"reason"`
	Accepted      bool    `csv:"accepted"`
	Iterations    int     `csv:"iterations"`
	FinalError    float64 `csv:"final_error"`
	FinalAccuracy float64 `csv:"final_accuracy"`
	FinalLR       float64 `csv:"final_lr"`

	// Relative-error trajectory
	ErrMin  float64 `csv:"err_min"`
	ErrMean float64 `csv:"err_mean"`
	ErrStd  float64 `csv:"err_std"`
	ErrP10  float64 `csv:"err_p10"`
	ErrP50  float64 `csv:"err_p50"`
	ErrP90  float64 `csv:"err_p90"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// TrajectoryStats summarizes a per-iteration series.
type TrajectoryStats struct {
	Min, Mean, Std float64
	P10, P50, P90  float64
}

// ComputeTrajectoryStats returns summary statistics of values. Std is the
// population standard deviation.
func ComputeTrajectoryStats(values []float64) TrajectoryStats {
	if len(values) == 0 {
		return TrajectoryStats{}
	}

	mean, variance := stat.PopMeanVariance(values, nil)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return TrajectoryStats{
		Min:  sorted[0],
		Mean: mean,
		Std:  math.Sqrt(variance),
		P10:  Percentile(sorted, 0.10),
		P50:  Percentile(sorted, 0.50),
		P90:  Percentile(sorted, 0.90),
	}
}

// WithTrajectory fills the trajectory columns of r.
func (r RunRow) WithTrajectory(errs []float64) RunRow {
	s := ComputeTrajectoryStats(errs)
	r.ErrMin, r.ErrMean, r.ErrStd = s.Min, s.Mean, s.Std
	r.ErrP10, r.ErrP50, r.ErrP90 = s.P10, s.P50, s.P90
	return r
}

// LogValue implements slog.LogValuer for structured logging.
func (r RunRow) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("run_id", r.RunID),
		slog.Int("attempt", r.Attempt),
		slog.Int("index", r.Index),
		slog.Int64("seed", r.Seed),
		slog.String("status", r.Status),
		slog.String("reason", r.Reason),
		slog.Bool("accepted", r.Accepted),
		slog.Int("iterations", r.Iterations),
		slog.Float64("final_error", r.FinalError),
		slog.Float64("final_accuracy", r.FinalAccuracy),
		slog.Float64("err_min", r.ErrMin),
		slog.Float64("err_p50", r.ErrP50),
	)
}

// LogValue implements slog.LogValuer for structured logging.
func (s TrajectoryStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("min", s.Min),
		slog.Float64("mean", s.Mean),
		slog.Float64("std", s.Std),
		slog.Float64("p10", s.P10),
		slog.Float64("p50", s.P50),
		slog.Float64("p90", s.P90),
	)
}
