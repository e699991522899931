package inversion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// Scenario D: exactly three accepted runs with indices 0, 1, 2.
func TestScenarioThreeAccepted(t *testing.T) {
	runner := &scriptedRunner{statuses: []Status{
		StatusConverged, StatusDiverged, StatusExhausted, StatusConverged, StatusDiverged, StatusConverged,
	}}
	rec := &recorder{}
	mgr, err := NewManager(runner, ManagerOptions{
		TargetAccepted: 3,
		Seed:           1,
		Persister:      rec,
		Observers:      []Observer{rec},
		Logger:         discard,
	})
	require.NoError(t, err)

	sum, err := mgr.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 6, sum.Attempts)
	require.Equal(t, 2, sum.Diverged)
	require.Equal(t, 1, sum.Exhausted)
	require.Len(t, sum.Accepted, 3)
	require.Len(t, rec.persisted, 3)
	require.Len(t, rec.observed, 6)
	for i, r := range rec.persisted {
		require.Equal(t, i, r.Index)
	}
}

func TestManagerSeedsAreFreshPerAttempt(t *testing.T) {
	runner := &scriptedRunner{statuses: []Status{StatusDiverged, StatusDiverged, StatusConverged}}
	mgr, err := NewManager(runner, ManagerOptions{TargetAccepted: 1, Seed: 7, Logger: discard})
	require.NoError(t, err)
	_, err = mgr.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, runner.seeds, 3)
	seen := map[int64]bool{}
	for _, s := range runner.seeds {
		require.False(t, seen[s], "seed %d reused", s)
		require.GreaterOrEqual(t, s, int64(0))
		require.Less(t, s, int64(1<<31))
		seen[s] = true
	}

	// Same top-level seed, same sequence
	again, err := NewManager(&scriptedRunner{statuses: []Status{StatusConverged}}, ManagerOptions{TargetAccepted: 1, Seed: 7})
	require.NoError(t, err)
	require.Equal(t, runner.seeds[0], again.NextSeed())
}

func TestManagerMaxAttempts(t *testing.T) {
	runner := &scriptedRunner{statuses: []Status{StatusExhausted}}
	mgr, err := NewManager(runner, ManagerOptions{TargetAccepted: 1, MaxAttempts: 3, Logger: discard})
	require.NoError(t, err)

	sum, err := mgr.Run(context.Background())
	require.ErrorIs(t, err, ErrAttemptsExhausted)
	require.Equal(t, 3, sum.Attempts)
	require.Equal(t, 3, sum.Exhausted)
}

func TestManagerPersistenceFailureIsFatal(t *testing.T) {
	rec := &recorder{failWith: errBoom}
	mgr, err := NewManager(&scriptedRunner{statuses: []Status{StatusConverged}}, ManagerOptions{
		TargetAccepted: 2,
		Persister:      rec,
		Logger:         discard,
	})
	require.NoError(t, err)

	sum, err := mgr.Run(context.Background())
	require.ErrorIs(t, err, errBoom)
	require.Empty(t, sum.Accepted)
}

func TestManagerRunnerErrorIsFatal(t *testing.T) {
	mgr, err := NewManager(&scriptedRunner{err: errBoom}, ManagerOptions{TargetAccepted: 1, Logger: discard})
	require.NoError(t, err)
	_, err = mgr.Run(context.Background())
	require.ErrorIs(t, err, errBoom)
}

func TestManagerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mgr, err := NewManager(&scriptedRunner{statuses: []Status{StatusExhausted}}, ManagerOptions{TargetAccepted: 1, Logger: discard})
	require.NoError(t, err)

	sum, err := mgr.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, sum.Attempts)
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(nil, ManagerOptions{TargetAccepted: 1})
	require.Error(t, err)
	_, err = NewManager(&scriptedRunner{}, ManagerOptions{TargetAccepted: 0})
	require.Error(t, err)
	_, err = NewManager(&scriptedRunner{}, ManagerOptions{TargetAccepted: 1, MaxAttempts: -1})
	require.Error(t, err)
}
