// Package forward defines the differentiable collaborators consumed by the inversion
// engine (generator, critic, physics misfit, well constraint) together with reference
// implementations of each.
package forward

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Field channels produced by the reference generator.
const (
	ChannelFacies   = 0 // facies indicator in (-1, 1)
	ChannelVelocity = 1 // P-wave velocity in [min_vp, max_vp]
)

// Field is a channel-major grid: Data[(c*Height+y)*Width+x].
type Field struct {
	Channels int
	Height   int
	Width    int
	Data     []float64
}

// NewField allocates a zero field.
func NewField(channels, height, width int) Field {
	return Field{
		Channels: channels,
		Height:   height,
		Width:    width,
		Data:     make([]float64, channels*height*width),
	}
}

// ZeroLike allocates a zero field with the same shape as f.
func ZeroLike(f Field) Field {
	return NewField(f.Channels, f.Height, f.Width)
}

// Index returns the flat offset of (c, y, x).
func (f Field) Index(c, y, x int) int {
	return (c*f.Height+y)*f.Width + x
}

// At returns the value at (c, y, x).
func (f Field) At(c, y, x int) float64 {
	return f.Data[f.Index(c, y, x)]
}

// Channel returns the backing slice of channel c.
func (f Field) Channel(c int) []float64 {
	n := f.Height * f.Width
	return f.Data[c*n : (c+1)*n]
}

// SameShape reports whether f and g have identical dimensions.
func (f Field) SameShape(g Field) bool {
	return f.Channels == g.Channels && f.Height == g.Height && f.Width == g.Width
}

// Clone returns a deep copy.
func (f Field) Clone() Field {
	out := ZeroLike(f)
	copy(out.Data, f.Data)
	return out
}

// AddScaled accumulates alpha*g into f.
func (f Field) AddScaled(alpha float64, g Field) error {
	if !f.SameShape(g) {
		return fmt.Errorf("field shape %s does not match %s", g.shape(), f.shape())
	}
	floats.AddScaled(f.Data, alpha, g.Data)
	return nil
}

func (f Field) shape() string {
	return fmt.Sprintf("%dx%dx%d", f.Channels, f.Height, f.Width)
}

// Traces holds recorded wavefields: Data[(s*Receivers+r)*Samples+t].
type Traces struct {
	Shots     int
	Receivers int
	Samples   int
	Data      []float64
}

// NewTraces allocates zero traces.
func NewTraces(shots, receivers, samples int) Traces {
	return Traces{
		Shots:     shots,
		Receivers: receivers,
		Samples:   samples,
		Data:      make([]float64, shots*receivers*samples),
	}
}

// Shot returns the backing slice of shot s (receivers x samples).
func (t Traces) Shot(s int) []float64 {
	n := t.Receivers * t.Samples
	return t.Data[s*n : (s+1)*n]
}

// Sum returns the receiver x sample waveform summed over all shots.
func (t Traces) Sum() []float64 {
	out := make([]float64, t.Receivers*t.Samples)
	for s := 0; s < t.Shots; s++ {
		floats.Add(out, t.Shot(s))
	}
	return out
}

// Generator maps a latent code to a field.
type Generator interface {
	LatentDim() int
	Generate(z []float64) (Field, error)
	// Pullback returns the vector-Jacobian product dL/dz given dL/dfield at z.
	Pullback(z []float64, grad Field) ([]float64, error)
}

// Critic scores the realism of a field; higher is more realistic.
type Critic interface {
	Score(f Field) (score float64, grad Field, err error)
}

// MisfitResult is the outcome of one physics forward-model evaluation.
type MisfitResult struct {
	Loss      float64
	Grad      Field  // dLoss/dField
	Predicted Traces // simulated recordings for the field
}

// Misfit simulates recordings for a field and scores them against observations.
type Misfit interface {
	Misfit(f Field) (MisfitResult, error)
	// Observed returns the (noisy) observed recordings.
	Observed() Traces
	// Reset clears any per-run cached state.
	Reset()
}

// WellResult is the outcome of one well-constraint evaluation.
type WellResult struct {
	Loss     float64
	Grad     Field
	Accuracy float64 // fraction of matching binarized labels
}

// WellConstraint scores a field against known values at a probe column.
type WellConstraint interface {
	Evaluate(f, truth Field, well, channel int) (WellResult, error)
}
