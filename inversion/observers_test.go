package inversion

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/seisinv/objective"
	"github.com/pthm-cable/seisinv/telemetry"
)

func sampleRecord(accepted bool) *RunRecord {
	rec := &RunRecord{
		RunID:          "test_0",
		Index:          -1,
		Attempt:        2,
		Seed:           99,
		Status:         StatusExhausted,
		Reason:         ReasonExhausted,
		Latents:        [][]float64{{0, 1}, {0.5, 1.5}},
		RelativeErrors: []float64{0.4, 0.2},
		Iterations: []IterationStats{
			{Iter: 0, LR: 0.01, RelErr: 0.4, Terms: []objective.TermValue{
				{Name: "critic", Kind: objective.KindCritic, Value: 1},
				{Name: "well_64_0", Kind: objective.KindWell, Value: 2},
				{Name: "misfit", Kind: objective.KindMisfit, Value: 3},
			}},
			{Iter: 1, LR: 0.009, RelErr: 0.2},
		},
		FinalError: 0.2,
	}
	if accepted {
		rec.Status, rec.Reason, rec.Accepted, rec.Index = StatusConverged, ReasonNone, true, 0
	}
	return rec
}

func TestRunRecordRows(t *testing.T) {
	rec := sampleRecord(true)

	rows := rec.IterationRows()
	require.Len(t, rows, 2)
	require.Equal(t, 1.0, rows[0].Critic)
	require.Equal(t, 2.0, rows[0].Well)
	require.Equal(t, 3.0, rows[0].Misfit)
	require.Equal(t, int64(99), rows[1].Seed)

	sum := rec.Summary()
	require.Equal(t, "CONVERGED", sum.Status)
	require.Equal(t, 2, sum.Iterations)
	require.Equal(t, 0.2, sum.ErrMin)

	hof := rec.HallEntry()
	require.Equal(t, []float64{0.5, 1.5}, hof.Latent)
}

func TestTelemetryObserver(t *testing.T) {
	dir := t.TempDir()
	om, err := telemetry.NewOutputManager(dir)
	require.NoError(t, err)

	obs := &TelemetryObserver{Output: om, HallOfFame: telemetry.NewHallOfFame(3)}
	require.NoError(t, obs.OnRun(sampleRecord(false)))
	require.NoError(t, obs.OnRun(sampleRecord(true)))
	require.NoError(t, om.Close())

	runs, err := os.ReadFile(filepath.Join(dir, "runs.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(runs)), "\n")
	require.Len(t, lines, 2, "rejected run must be skipped without IncludeRejected")

	require.Equal(t, 1, obs.HallOfFame.Size())
	_, err = os.Stat(filepath.Join(dir, "hall_of_fame.json"))
	require.NoError(t, err)
}

func TestTelemetryObserverIncludeRejected(t *testing.T) {
	dir := t.TempDir()
	om, err := telemetry.NewOutputManager(dir)
	require.NoError(t, err)

	obs := &TelemetryObserver{Output: om, IncludeRejected: true, Perf: telemetry.NewPerfCollector(5)}
	require.NoError(t, obs.OnRun(sampleRecord(false)))
	require.NoError(t, om.Close())

	iters, err := os.ReadFile(filepath.Join(dir, "iterations.csv"))
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(string(iters)), "\n"), 3)
}
