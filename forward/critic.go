package forward

import "fmt"

// SmoothnessCritic is a reference critic scoring realism as the negative weighted
// squared-gradient energy of each channel. Geologically plausible fields are
// piecewise smooth, so rough fields score lower.
type SmoothnessCritic struct {
	weights []float64
}

// NewSmoothnessCritic creates a critic with one weight per channel.
func NewSmoothnessCritic(weights []float64) *SmoothnessCritic {
	w := make([]float64, len(weights))
	copy(w, weights)
	return &SmoothnessCritic{weights: w}
}

// Score returns the realism score and its gradient with respect to f.
func (c *SmoothnessCritic) Score(f Field) (float64, Field, error) {
	if len(c.weights) < f.Channels {
		return 0, Field{}, fmt.Errorf("critic has %d channel weights, field has %d channels", len(c.weights), f.Channels)
	}
	grad := ZeroLike(f)
	norm := 1 / float64(len(f.Data))

	var energy float64
	for ch := 0; ch < f.Channels; ch++ {
		w := c.weights[ch]
		if w == 0 {
			continue
		}
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				i := f.Index(ch, y, x)
				if x+1 < f.Width {
					d := f.Data[i+1] - f.Data[i]
					energy += w * d * d
					// score is −energy, so the gradient sign flips
					grad.Data[i+1] -= 2 * w * d * norm
					grad.Data[i] += 2 * w * d * norm
				}
				if y+1 < f.Height {
					j := f.Index(ch, y+1, x)
					d := f.Data[j] - f.Data[i]
					energy += w * d * d
					grad.Data[j] -= 2 * w * d * norm
					grad.Data[i] += 2 * w * d * norm
				}
			}
		}
	}
	return -energy * norm, grad, nil
}
