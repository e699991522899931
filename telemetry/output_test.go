package telemetry

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/seisinv/config"
)

func TestNewOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v; want nil, nil", om, err)
	}
	// Methods on a nil manager are no-ops
	if err := om.WriteRun(RunRow{}); err != nil {
		t.Error(err)
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
}

func TestOutputManagerCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	first := []IterationRow{{RunID: "a", Iter: 0, RelErr: 0.5}, {RunID: "a", Iter: 1, RelErr: 0.4}}
	second := []IterationRow{{RunID: "a", Attempt: 1, Iter: 0, RelErr: 0.9}}
	if err := om.WriteIterations(first); err != nil {
		t.Fatal(err)
	}
	if err := om.WriteIterations(second); err != nil {
		t.Fatal(err)
	}
	if err := om.WriteRun(RunRow{RunID: "a", Status: "CONVERGED", Accepted: true}); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "iterations.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "run_id"); n != 1 {
		t.Errorf("header written %d times, want 1", n)
	}

	var rows []IterationRow
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[2].RelErr != 0.9 || rows[2].Attempt != 1 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestOutputManagerConfigAndHallOfFame(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer om.Close()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if err := om.WriteConfig(cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Error(err)
	}

	hof := NewHallOfFame(2)
	hof.Consider(HallEntry{RunID: "x", Index: 0, FinalError: 0.1, Latent: []float64{1, 2}})
	if err := om.WriteHallOfFame(hof); err != nil {
		t.Fatal(err)
	}
	back, err := LoadHallOfFameFromFile(filepath.Join(dir, "hall_of_fame.json"))
	if err != nil {
		t.Fatal(err)
	}
	if back.Size() != 1 || back.Best().Latent[1] != 2 {
		t.Errorf("reloaded hall = %+v", back.Entries())
	}
}

func TestHallOfFameOrdering(t *testing.T) {
	hof := NewHallOfFame(3)
	for i, e := range []float64{0.3, 0.1, 0.5, 0.2, 0.4} {
		hof.Consider(HallEntry{Index: i, FinalError: e})
	}

	entries := hof.Entries()
	if len(entries) != 3 {
		t.Fatalf("size = %d, want 3", len(entries))
	}
	for i, want := range []float64{0.1, 0.2, 0.3} {
		if entries[i].FinalError != want {
			t.Errorf("entry %d error = %v, want %v", i, entries[i].FinalError, want)
		}
	}
	if hof.Consider(HallEntry{FinalError: 0.9}) {
		t.Error("worse entry admitted to a full hall")
	}
}

func TestHallOfFameSample(t *testing.T) {
	hof := NewHallOfFame(5)
	if hof.Sample(rand.New(rand.NewSource(42))) != nil {
		t.Error("empty hall should sample nil")
	}

	hof.Consider(HallEntry{FinalError: 0.1, Latent: []float64{7}})
	got := hof.Sample(rand.New(rand.NewSource(42)))
	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("sample = %v", got)
	}
	got[0] = 0
	if hof.Best().Latent[0] != 7 {
		t.Error("Sample returned an alias of the stored latent")
	}
}
