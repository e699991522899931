// Package artifacts persists accepted inversion runs as .npy arrays and
// optional trajectory plots.
package artifacts

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/seisinv/forward"
	"github.com/pthm-cable/seisinv/inversion"
)

// Writer stores run artifacts under dir, prefixing files with runID.
type Writer struct {
	dir   string
	runID string
	plots bool
	log   *slog.Logger
}

// NewWriter creates dir if needed.
func NewWriter(dir, runID string, plots bool, logger *slog.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		dir:   dir,
		runID: runID,
		plots: plots,
		log:   logger.With("component", "artifacts"),
	}, nil
}

// Path returns the artifact path for kind and suffix, e.g. ("latents", "3").
func (w *Writer) Path(kind, suffix, ext string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s_%s%s", w.runID, kind, suffix, ext))
}

// Persist implements inversion.Persister. It writes the latent trajectory
// (iterations x dim), the relative-error trajectory and, when present, the
// shot-summed reconstruction (receivers x samples).
func (w *Writer) Persist(rec *inversion.RunRecord) error {
	if rec.Index < 0 {
		return fmt.Errorf("artifacts: run %s has no accepted index", rec.ID)
	}
	if rec.Len() == 0 {
		return fmt.Errorf("artifacts: run %s has no iterations", rec.ID)
	}
	k := fmt.Sprint(rec.Index)

	latents, err := stackRows(rec.Latents)
	if err != nil {
		return err
	}
	if err := writeNPY(w.Path("latents", k, ".npy"), latents); err != nil {
		return err
	}
	if err := writeNPY(w.Path("losses", k, ".npy"), rec.RelativeErrors); err != nil {
		return err
	}
	if rec.Reconstruction != nil {
		if err := writeNPY(w.Path("shots", k, ".npy"), waveform(*rec.Reconstruction)); err != nil {
			return err
		}
	}
	if w.plots {
		if err := PlotTrajectory(w.Path("losses", k, ".png"), rec); err != nil {
			return fmt.Errorf("plotting run %d: %w", rec.Index, err)
		}
	}

	w.log.Info("run persisted", "index", rec.Index, "seed", rec.Seed, "iterations", rec.Len())
	return nil
}

// WriteGroundTruth writes the shot-summed observed waveform once.
func (w *Writer) WriteGroundTruth(observed forward.Traces) error {
	sum := forward.Traces{Shots: 1, Receivers: observed.Receivers, Samples: observed.Samples, Data: observed.Sum()}
	return writeNPY(w.Path("shots", "gt", ".npy"), waveform(sum))
}

// waveform reshapes single-shot traces into a receivers x samples matrix.
func waveform(tr forward.Traces) *mat.Dense {
	return mat.NewDense(tr.Receivers, tr.Samples, tr.Data[:tr.Receivers*tr.Samples])
}

func stackRows(rows [][]float64) (*mat.Dense, error) {
	dim := len(rows[0])
	data := make([]float64, 0, len(rows)*dim)
	for i, r := range rows {
		if len(r) != dim {
			return nil, fmt.Errorf("artifacts: latent %d has %d entries, want %d", i, len(r), dim)
		}
		data = append(data, r...)
	}
	return mat.NewDense(len(rows), dim, data), nil
}

func writeNPY(path string, val any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := npyio.Write(f, val); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
