package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/seisinv/inversion"
)

func TestRegistryRecordAndList(t *testing.T) {
	reg, err := Open(":memory:")
	require.NoError(t, err)
	defer reg.Close()

	ctx := context.Background()
	recs := []*inversion.RunRecord{
		{ID: "a", RunID: "marmousi_1", Attempt: 0, Index: -1, Seed: 11, Status: inversion.StatusDiverged, Reason: inversion.ReasonDiverged},
		{ID: "b", RunID: "marmousi_1", Attempt: 1, Index: 0, Seed: 12, Status: inversion.StatusConverged, Reason: inversion.ReasonNone,
			Accepted: true, Latents: [][]float64{{1}, {2}}, FinalError: 0.04},
		{ID: "c", RunID: "other_2", Attempt: 0, Index: -1, Seed: 13, Status: inversion.StatusExhausted, Reason: inversion.ReasonExhausted},
	}
	for _, r := range recs {
		require.NoError(t, reg.OnRun(r))
	}

	entries, err := reg.List(ctx, "marmousi_1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "DIVERGED", entries[0].Status)
	require.False(t, entries[0].Accepted)
	require.True(t, entries[1].Accepted)
	require.Equal(t, 2, entries[1].Iterations)
	require.Equal(t, 0.04, entries[1].FinalError)

	all, err := reg.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	attempts, accepted, err := reg.Counts(ctx, "marmousi_1")
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.Equal(t, 1, accepted)
}

func TestRegistryPersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	reg, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, reg.Record(context.Background(), Entry{ID: "x", RunID: "r_0", Status: "CONVERGED", Accepted: true}))
	require.NoError(t, reg.Close())

	reg, err = Open(path)
	require.NoError(t, err)
	defer reg.Close()
	entries, err := reg.List(context.Background(), "r_0")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].Accepted)
}

func TestRegistryCountsEmpty(t *testing.T) {
	reg, err := Open(":memory:")
	require.NoError(t, err)
	defer reg.Close()

	attempts, accepted, err := reg.Counts(context.Background(), "nothing")
	require.NoError(t, err)
	require.Zero(t, attempts)
	require.Zero(t, accepted)
}
