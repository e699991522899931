package inversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
)

// Persister stores the artifacts of an accepted run.
type Persister interface {
	Persist(rec *RunRecord) error
}

// Observer is notified of every finished run, accepted or not.
type Observer interface {
	OnRun(rec *RunRecord) error
}

// Runner executes a single run. *Controller implements it.
type Runner interface {
	Run(attempt int, seed int64) (*RunRecord, error)
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	TargetAccepted int
	MaxAttempts    int   // 0 = unbounded
	Seed           int64 // seeds the per-run seed stream
	Persister      Persister
	Observers      []Observer
	Logger         *slog.Logger
}

// Summary is the outcome of a managed inversion.
type Summary struct {
	Accepted  []*RunRecord
	Attempts  int
	Diverged  int
	Exhausted int
}

// Manager repeats runs with fresh seeds until enough are accepted.
type Manager struct {
	runner Runner
	opts   ManagerOptions
	seeds  *rand.Rand
	log    *slog.Logger
}

// NewManager creates a manager driving runner.
func NewManager(runner Runner, opts ManagerOptions) (*Manager, error) {
	if runner == nil {
		return nil, errors.New("inversion: runner is required")
	}
	if opts.TargetAccepted < 1 {
		return nil, fmt.Errorf("inversion: target_accepted must be >= 1, got %d", opts.TargetAccepted)
	}
	if opts.MaxAttempts < 0 {
		return nil, fmt.Errorf("inversion: max_attempts must be >= 0, got %d", opts.MaxAttempts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		runner: runner,
		opts:   opts,
		seeds:  rand.New(rand.NewSource(opts.Seed)),
		log:    logger.With("component", "manager"),
	}, nil
}

// NextSeed draws the seed of the next run.
func (m *Manager) NextSeed() int64 {
	return m.seeds.Int63n(1 << 31)
}

// Run repeats runs until TargetAccepted runs converge, MaxAttempts is reached,
// or ctx is cancelled. Accepted runs get consecutive indices from 0 and are
// persisted before the next run starts.
func (m *Manager) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	for len(sum.Accepted) < m.opts.TargetAccepted {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if m.opts.MaxAttempts > 0 && sum.Attempts >= m.opts.MaxAttempts {
			m.log.Error("attempts exhausted", "attempts", sum.Attempts, "accepted", len(sum.Accepted))
			return sum, fmt.Errorf("%w: %d of %d accepted after %d attempts",
				ErrAttemptsExhausted, len(sum.Accepted), m.opts.TargetAccepted, sum.Attempts)
		}

		attempt := sum.Attempts
		seed := m.NextSeed()
		sum.Attempts++

		rec, err := m.runner.Run(attempt, seed)
		if err != nil {
			return sum, fmt.Errorf("attempt %d (seed %d): %w", attempt, seed, err)
		}

		switch rec.Status {
		case StatusConverged:
			rec.Index = len(sum.Accepted)
			if m.opts.Persister != nil {
				if err := m.opts.Persister.Persist(rec); err != nil {
					return sum, fmt.Errorf("persisting run %d: %w", rec.Index, err)
				}
			}
			sum.Accepted = append(sum.Accepted, rec)
		case StatusDiverged:
			sum.Diverged++
		case StatusExhausted:
			sum.Exhausted++
		}

		for _, o := range m.opts.Observers {
			if err := o.OnRun(rec); err != nil {
				return sum, fmt.Errorf("observing attempt %d: %w", attempt, err)
			}
		}

		m.log.Info("run finished",
			"attempt", attempt,
			"seed", seed,
			"status", rec.Status.String(),
			"accepted", rec.Accepted,
			"index", rec.Index,
			"iterations", rec.Len(),
			"final_error", rec.FinalError,
			"accepted_total", len(sum.Accepted),
			"target", m.opts.TargetAccepted,
		)
	}

	return sum, nil
}
