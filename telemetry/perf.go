package telemetry

import (
	"log/slog"
	"time"
)

// Phase names of one inversion iteration.
const (
	PhaseGenerate    = "generate"
	PhaseObjective   = "objective"
	PhaseBackward    = "backward"
	PhaseStep        = "step"
	PhaseDiagnostics = "diagnostics"
)

var phases = []string{PhaseGenerate, PhaseObjective, PhaseBackward, PhaseStep, PhaseDiagnostics}

// PerfSample holds timing data for a single iteration.
type PerfSample struct {
	IterDuration time.Duration
	Phases       map[string]time.Duration
}

// PerfCollector tracks iteration timing over a rolling window.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	iterStart     time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a collector averaging over windowSize iterations.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 50
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// Reset discards every recorded sample.
func (p *PerfCollector) Reset() {
	if p == nil {
		return
	}
	clear(p.samples)
	p.writeIndex = 0
	p.sampleCount = 0
	p.lastPhase = ""
}

// Samples returns the number of iterations in the current window.
func (p *PerfCollector) Samples() int {
	if p == nil {
		return 0
	}
	return p.sampleCount
}

// StartIteration begins timing a new iteration.
func (p *PerfCollector) StartIteration() {
	if p == nil {
		return
	}
	p.iterStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase, ending the previous one.
func (p *PerfCollector) StartPhase(phase string) {
	if p == nil {
		return
	}
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndIteration finishes timing the current iteration and records the sample.
func (p *PerfCollector) EndIteration() {
	if p == nil {
		return
	}
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		IterDuration: now.Sub(p.iterStart),
		Phases:       p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
	p.lastPhase = ""
}

// PerfStats holds aggregated timing statistics.
type PerfStats struct {
	AvgIterDuration time.Duration
	MinIterDuration time.Duration
	MaxIterDuration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	// Phase percentages of total iteration time
	PhasePct map[string]float64

	IterationsPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p == nil || p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var total, minIter, maxIter time.Duration
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.IterDuration

		if i == 0 || s.IterDuration < minIter {
			minIter = s.IterDuration
		}
		if s.IterDuration > maxIter {
			maxIter = s.IterDuration
		}

		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avg := total / time.Duration(p.sampleCount)

	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avg > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avg) * 100
		}
	}

	var perSec float64
	if avg > 0 {
		perSec = float64(time.Second) / float64(avg)
	}

	return PerfStats{
		AvgIterDuration:     avg,
		MinIterDuration:     minIter,
		MaxIterDuration:     maxIter,
		PhaseAvg:            phaseAvg,
		PhasePct:            phasePct,
		IterationsPerSecond: perSec,
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_iter_us", s.AvgIterDuration.Microseconds()),
		slog.Int64("min_iter_us", s.MinIterDuration.Microseconds()),
		slog.Int64("max_iter_us", s.MaxIterDuration.Microseconds()),
		slog.Float64("iters_per_sec", s.IterationsPerSecond),
	}
	for _, phase := range phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, slog.Float64(phase+"_pct", float64(int(pct*10))/10))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of timing stats.
type PerfStatsCSV struct {
	RunID          string  `csv:"run_id"`
	Attempt        int     `csv:"attempt"`
	AvgIterUS      int64   `csv:"avg_iter_us"`
	MinIterUS      int64   `csv:"min_iter_us"`
	MaxIterUS      int64   `csv:"max_iter_us"`
	ItersPerSec    float64 `csv:"iters_per_sec"`
	GeneratePct    float64 `csv:"generate_pct"`
	ObjectivePct   float64 `csv:"objective_pct"`
	BackwardPct    float64 `csv:"backward_pct"`
	StepPct        float64 `csv:"step_pct"`
	DiagnosticsPct float64 `csv:"diagnostics_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(runID string, attempt int) PerfStatsCSV {
	return PerfStatsCSV{
		RunID:          runID,
		Attempt:        attempt,
		AvgIterUS:      s.AvgIterDuration.Microseconds(),
		MinIterUS:      s.MinIterDuration.Microseconds(),
		MaxIterUS:      s.MaxIterDuration.Microseconds(),
		ItersPerSec:    s.IterationsPerSecond,
		GeneratePct:    s.PhasePct[PhaseGenerate],
		ObjectivePct:   s.PhasePct[PhaseObjective],
		BackwardPct:    s.PhasePct[PhaseBackward],
		StepPct:        s.PhasePct[PhaseStep],
		DiagnosticsPct: s.PhasePct[PhaseDiagnostics],
	}
}
