package inversion

import "github.com/pthm-cable/seisinv/telemetry"

// TelemetryObserver writes runs to the CSV logs and keeps the hall of fame.
type TelemetryObserver struct {
	Output          *telemetry.OutputManager
	HallOfFame      *telemetry.HallOfFame
	Perf            *telemetry.PerfCollector
	IncludeRejected bool
}

// OnRun implements Observer.
func (o *TelemetryObserver) OnRun(rec *RunRecord) error {
	if !rec.Accepted && !o.IncludeRejected {
		return nil
	}
	if err := o.Output.WriteIterations(rec.IterationRows()); err != nil {
		return err
	}
	if err := o.Output.WriteRun(rec.Summary()); err != nil {
		return err
	}
	if o.Perf != nil {
		if err := o.Output.WritePerf(o.Perf.Stats(), rec.RunID, rec.Attempt); err != nil {
			return err
		}
	}
	if rec.Accepted && o.HallOfFame != nil && o.HallOfFame.Consider(rec.HallEntry()) {
		return o.Output.WriteHallOfFame(o.HallOfFame)
	}
	return nil
}
