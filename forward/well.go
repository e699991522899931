package forward

import (
	"fmt"
	"math"
)

const probEps = 1e-7

// ToProbability maps a facies value in (-1, 1) to a probability in (0, 1).
func ToProbability(v float64) float64 {
	return (v + 1) / 2
}

// BCEWell is a reference well constraint: binary cross-entropy between the facies
// probabilities of one field column and the binarized ground-truth labels there.
type BCEWell struct{}

// Evaluate scores column well of channel against truth.
func (BCEWell) Evaluate(f, truth Field, well, channel int) (WellResult, error) {
	if !f.SameShape(truth) {
		return WellResult{}, fmt.Errorf("well: field %s and truth %s differ in shape", f.shape(), truth.shape())
	}
	if well < 0 || well >= f.Width {
		return WellResult{}, fmt.Errorf("well: position %d outside [0,%d)", well, f.Width)
	}
	if channel < 0 || channel >= f.Channels {
		return WellResult{}, fmt.Errorf("well: channel %d outside [0,%d)", channel, f.Channels)
	}

	grad := ZeroLike(f)
	n := float64(f.Height)
	var loss float64
	var matches int
	for y := 0; y < f.Height; y++ {
		i := f.Index(channel, y, well)
		label := 0.0
		if truth.Data[i] > 0 {
			label = 1
		}

		raw := ToProbability(f.Data[i])
		p := math.Min(math.Max(raw, probEps), 1-probEps)
		loss -= label*math.Log(p) + (1-label)*math.Log(1-p)

		// clamped probabilities carry no gradient
		if p == raw {
			grad.Data[i] = (p - label) / (p * (1 - p)) / n * 0.5
		}

		predicted := 0.0
		if raw > 0.5 {
			predicted = 1
		}
		if predicted == label {
			matches++
		}
	}

	return WellResult{
		Loss:     loss / n,
		Grad:     grad,
		Accuracy: float64(matches) / n,
	}, nil
}
