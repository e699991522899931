package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/seisinv/config"
)

// csvFile appends gocsv records, writing the header once.
type csvFile struct {
	f             *os.File
	headerWritten bool
}

func createCSV(dir, name string) (*csvFile, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	return &csvFile{f: f}, nil
}

func appendRecords[T any](c *csvFile, records []T) error {
	if len(records) == 0 {
		return nil
	}
	if !c.headerWritten {
		if err := gocsv.Marshal(records, c.f); err != nil {
			return err
		}
		c.headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, c.f)
}

// OutputManager handles structured experiment output with CSV logging.
type OutputManager struct {
	dir        string
	iterations *csvFile
	runs       *csvFile
	perf       *csvFile
}

// NewOutputManager creates the output directory and its CSV files.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	var err error
	if om.iterations, err = createCSV(dir, "iterations.csv"); err != nil {
		return nil, err
	}
	if om.runs, err = createCSV(dir, "runs.csv"); err != nil {
		om.Close()
		return nil, err
	}
	if om.perf, err = createCSV(dir, "perf.csv"); err != nil {
		om.Close()
		return nil, err
	}
	return om, nil
}

// WriteConfig saves the effective configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteIterations appends the iteration rows of one run to iterations.csv.
func (om *OutputManager) WriteIterations(rows []IterationRow) error {
	if om == nil {
		return nil
	}
	if err := appendRecords(om.iterations, rows); err != nil {
		return fmt.Errorf("writing iterations: %w", err)
	}
	return nil
}

// WriteRun appends a run summary to runs.csv.
func (om *OutputManager) WriteRun(row RunRow) error {
	if om == nil {
		return nil
	}
	if err := appendRecords(om.runs, []RunRow{row}); err != nil {
		return fmt.Errorf("writing run: %w", err)
	}
	return nil
}

// WritePerf appends timing stats of one run to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, runID string, attempt int) error {
	if om == nil {
		return nil
	}
	if err := appendRecords(om.perf, []PerfStatsCSV{stats.ToCSV(runID, attempt)}); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// WriteHallOfFame saves the hall of fame as JSON.
func (om *OutputManager) WriteHallOfFame(hof *HallOfFame) error {
	if om == nil || hof == nil {
		return nil
	}

	data, err := hof.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshaling hall of fame: %w", err)
	}
	if err := os.WriteFile(filepath.Join(om.dir, "hall_of_fame.json"), data, 0644); err != nil {
		return fmt.Errorf("writing hall_of_fame.json: %w", err)
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, c := range []*csvFile{om.iterations, om.runs, om.perf} {
		if c == nil {
			continue
		}
		if err := c.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
