package telemetry

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"
)

// HallEntry is one accepted sample.
type HallEntry struct {
	RunID         string    `json:"run_id"`
	Index         int       `json:"index"`
	Seed          int64     `json:"seed"`
	Iterations    int       `json:"iterations"`
	FinalError    float64   `json:"final_error"`
	FinalAccuracy float64   `json:"final_accuracy,omitempty"`
	Latent        []float64 `json:"latent"`
}

// HallOfFame keeps the accepted samples with the lowest final relative error.
type HallOfFame struct {
	entries []HallEntry
	maxSize int
}

// NewHallOfFame creates a hall holding at most maxSize entries.
func NewHallOfFame(maxSize int) *HallOfFame {
	if maxSize < 1 {
		maxSize = 1
	}
	return &HallOfFame{
		entries: make([]HallEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Consider inserts entry if it ranks among the best. Returns true if added.
func (hof *HallOfFame) Consider(entry HallEntry) bool {
	// Sorted ascending by final error; ties keep arrival order
	idx := sort.Search(len(hof.entries), func(i int) bool {
		return hof.entries[i].FinalError > entry.FinalError
	})

	if len(hof.entries) >= hof.maxSize && idx >= hof.maxSize {
		return false
	}

	hof.entries = append(hof.entries, HallEntry{})
	copy(hof.entries[idx+1:], hof.entries[idx:])
	hof.entries[idx] = entry

	if len(hof.entries) > hof.maxSize {
		hof.entries = hof.entries[:hof.maxSize]
	}
	return true
}

// Entries returns the entries, best first.
func (hof *HallOfFame) Entries() []HallEntry {
	return hof.entries
}

// Size returns the number of entries.
func (hof *HallOfFame) Size() int {
	return len(hof.entries)
}

// Best returns the lowest-error entry, or nil if the hall is empty.
func (hof *HallOfFame) Best() *HallEntry {
	if len(hof.entries) == 0 {
		return nil
	}
	return &hof.entries[0]
}

// Sample selects a latent by tournament selection. Returns nil if the hall is empty.
func (hof *HallOfFame) Sample(rng *rand.Rand) []float64 {
	if len(hof.entries) == 0 {
		return nil
	}

	const tournamentSize = 3
	var best *HallEntry
	for i := 0; i < tournamentSize && i < len(hof.entries); i++ {
		candidate := &hof.entries[rng.Intn(len(hof.entries))]
		if best == nil || candidate.FinalError < best.FinalError {
			best = candidate
		}
	}

	out := make([]float64, len(best.Latent))
	copy(out, best.Latent)
	return out
}

// MarshalJSON serializes the hall of fame to JSON.
func (hof *HallOfFame) MarshalJSON() ([]byte, error) {
	return json.MarshalIndent(struct {
		Entries []HallEntry `json:"entries"`
	}{hof.entries}, "", "  ")
}

// LoadHallOfFameFromFile reads a hall of fame JSON file.
func LoadHallOfFameFromFile(path string) (*HallOfFame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hall of fame: %w", err)
	}

	var raw struct {
		Entries []HallEntry `json:"entries"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing hall of fame JSON: %w", err)
	}

	hof := NewHallOfFame(len(raw.Entries))
	for _, e := range raw.Entries {
		hof.Consider(e)
	}
	return hof, nil
}
