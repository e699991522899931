package inversion

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/seisinv/config"
	"github.com/pthm-cable/seisinv/telemetry"
)

// logRecords decodes JSON log lines and counts them by message.
func logRecords(t *testing.T, buf *bytes.Buffer) (map[string]int, []map[string]any) {
	t.Helper()
	counts := map[string]int{}
	var terms []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		msg, _ := rec["msg"].(string)
		counts[msg]++
		if msg == "term" {
			terms = append(terms, rec)
		}
	}
	require.NoError(t, sc.Err())
	return counts, terms
}

func TestTermRecordsLoggedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	opts := baseOptions(4, 3, config.ModeExhaustive, 0.01)
	opts.Logger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Wells enabled: one well term and the misfit term per iteration.
	ctrl := newTestController(t, opts, identityGen{n: 4}, newFixedMisfit(4, 0.05), fixedWell{accuracy: 1})
	rec, err := ctrl.Run(0, 1)
	require.NoError(t, err)
	require.Equal(t, 3, rec.Len())

	counts, terms := logRecords(t, &buf)
	require.Equal(t, 3, counts["iteration"])
	require.Equal(t, 3*2, counts["term"])

	names := map[string]int{}
	for _, r := range terms {
		names[r["name"].(string)]++
	}
	require.Equal(t, map[string]int{"well_0_0": 3, "misfit": 3}, names)
}

func TestPerfWindowCoversOneAttempt(t *testing.T) {
	perf := telemetry.NewPerfCollector(50)
	opts := baseOptions(4, 4, config.ModeExhaustive, 0.01)
	opts.Perf = perf
	ctrl := newTestController(t, opts, identityGen{n: 4}, newFixedMisfit(4, 0.05), nil)

	_, err := ctrl.Run(0, 1)
	require.NoError(t, err)
	require.Equal(t, 4, perf.Samples())

	_, err = ctrl.Run(1, 2)
	require.NoError(t, err)
	require.Equal(t, 4, perf.Samples(), "second attempt must not average in the first")
}
