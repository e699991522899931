package inversion

import (
	"github.com/pthm-cable/seisinv/forward"
	"github.com/pthm-cable/seisinv/objective"
	"github.com/pthm-cable/seisinv/telemetry"
)

// Status is the state of a run.
type Status int

const (
	StatusRunning Status = iota
	StatusConverged
	StatusDiverged
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusConverged:
		return "CONVERGED"
	case StatusDiverged:
		return "DIVERGED"
	case StatusExhausted:
		return "EXHAUSTED"
	default:
		return "UNKNOWN"
	}
}

// AbortReason says why a run stopped without being accepted.
type AbortReason string

const (
	ReasonNone      AbortReason = "none"
	ReasonDiverged  AbortReason = "diverged"
	ReasonExhausted AbortReason = "exhausted"
)

// IterationStats are the diagnostics of one completed iteration.
type IterationStats struct {
	Iter      int
	LR        float64 // learning rate used by the step
	RelErr    float64
	Accuracy  float64
	Combined  float64
	Terms     []objective.TermValue
	LatentStd float64
	GradNorm  float64
}

// RunRecord is the result of one inversion run.
type RunRecord struct {
	ID      string // unique per attempt
	RunID   string // experiment name and top-level seed
	Index   int    // accepted index, -1 until accepted
	Attempt int
	Seed    int64

	Status   Status
	Reason   AbortReason
	Accepted bool

	// One entry per completed iteration. Accuracies stays empty when no well
	// terms are configured.
	Latents        [][]float64
	RelativeErrors []float64
	Accuracies     []float64
	Iterations     []IterationStats

	FinalError    float64
	FinalAccuracy float64
	FinalLR       float64

	// Shot-summed prediction of the last completed iteration.
	Reconstruction *forward.Traces
}

// Len returns the number of completed iterations.
func (r *RunRecord) Len() int {
	return len(r.Latents)
}

// FinalLatent returns the last recorded latent, or nil.
func (r *RunRecord) FinalLatent() []float64 {
	if len(r.Latents) == 0 {
		return nil
	}
	return r.Latents[len(r.Latents)-1]
}

// IterationRows flattens the run for iterations.csv.
func (r *RunRecord) IterationRows() []telemetry.IterationRow {
	rows := make([]telemetry.IterationRow, len(r.Iterations))
	for i, it := range r.Iterations {
		row := telemetry.IterationRow{
			RunID:     r.RunID,
			Attempt:   r.Attempt,
			Seed:      r.Seed,
			Iter:      it.Iter,
			LR:        it.LR,
			RelErr:    it.RelErr,
			Accuracy:  it.Accuracy,
			Combined:  it.Combined,
			LatentStd: it.LatentStd,
			GradNorm:  it.GradNorm,
		}
		for _, tv := range it.Terms {
			switch tv.Kind {
			case objective.KindCritic:
				row.Critic += tv.Value
			case objective.KindWell:
				row.Well += tv.Value
			case objective.KindMisfit:
				row.Misfit += tv.Value
			}
		}
		rows[i] = row
	}
	return rows
}

// Summary returns the runs.csv row.
func (r *RunRecord) Summary() telemetry.RunRow {
	return telemetry.RunRow{
		RunID:         r.RunID,
		Attempt:       r.Attempt,
		Index:         r.Index,
		Seed:          r.Seed,
		Status:        r.Status.String(),
		Reason:        string(r.Reason),
		Accepted:      r.Accepted,
		Iterations:    r.Len(),
		FinalError:    r.FinalError,
		FinalAccuracy: r.FinalAccuracy,
		FinalLR:       r.FinalLR,
	}.WithTrajectory(r.RelativeErrors)
}

// HallEntry returns the hall-of-fame entry of an accepted run.
func (r *RunRecord) HallEntry() telemetry.HallEntry {
	return telemetry.HallEntry{
		RunID:         r.RunID,
		Index:         r.Index,
		Seed:          r.Seed,
		Iterations:    r.Len(),
		FinalError:    r.FinalError,
		FinalAccuracy: r.FinalAccuracy,
		Latent:        r.FinalLatent(),
	}
}
