package forward

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/seisinv/config"
)

// PhysicsConfig describes the acquisition and simulation setup of the forward model.
type PhysicsConfig struct {
	T0, Tn        float64    // simulation start and end time (ms)
	Shape         [2]int     // (nx, nz) including vertical padding
	NBPML         int        // absorbing boundary width (samples)
	Origin        [2]float64 // spatial origin
	Spacing       [2]float64 // (dx, dz)
	TopPadding    int
	BottomPadding int
	PaddingVp     float64 // velocity assigned to padding rows
	NShots        int
	SourceMinX    int
	SourceMinY    int
	NReceivers    int
	RecMinX       int
	RecMinY       int
	F0            float64 // Ricker peak frequency (kHz)
	NoisePercent  float64 // observation noise relative to the clean data std
}

// PhysicsFromConfig builds the forward-model setup from the inversion config.
func PhysicsFromConfig(c *config.Config) PhysicsConfig {
	p := c.Physics
	return PhysicsConfig{
		T0:            p.T0,
		Tn:            p.Tn,
		Shape:         c.Derived.ModelShape,
		NBPML:         p.NBPML,
		Origin:        p.Origin,
		Spacing:       p.Spacing,
		TopPadding:    p.TopPadding,
		BottomPadding: p.BottomPadding,
		PaddingVp:     p.PaddingVp,
		NShots:        p.Sources,
		SourceMinX:    p.SourceMinX,
		SourceMinY:    p.SourceMinY,
		NReceivers:    p.Receivers,
		RecMinX:       p.RecMinX,
		RecMinY:       p.RecMinY,
		F0:            p.WaveletFrequency,
		NoisePercent:  p.NoisePercent,
	}
}

// Ricker returns the zero-phase Ricker wavelet with peak frequency f0 at time t.
func Ricker(f0, t float64) float64 {
	a := math.Pi * f0 * t
	a *= a
	return (1 - 2*a) * math.Exp(-a)
}

// ConvolutionalMisfit is a reference acoustic forward model. Each receiver records
// the reflectivity series of its velocity column convolved with a Ricker wavelet,
// scaled by a source-receiver offset amplitude and tapered over the absorbing
// boundary. The misfit is half the squared residual against noisy observations.
type ConvolutionalMisfit struct {
	cfg     PhysicsConfig
	nx, nz  int
	nt      int
	height  int
	half    int       // wavelet half length in samples
	wavelet []float64 // 2*half+1 samples, centered
	taper   []float64
	recX    []int
	amp     [][]float64 // [shot][receiver]
	muteZ   int

	clean    Traces
	observed Traces
	last     *Traces
}

// NewConvolutionalMisfit simulates clean and noisy observations for truth. Noise
// is drawn from rng.
func NewConvolutionalMisfit(cfg PhysicsConfig, truth Field, rng *rand.Rand) (*ConvolutionalMisfit, error) {
	nx, nz := cfg.Shape[0], cfg.Shape[1]
	if truth.Channels <= ChannelVelocity {
		return nil, fmt.Errorf("physics: truth field needs a velocity channel, has %d channels", truth.Channels)
	}
	if truth.Width != nx || truth.Height+cfg.TopPadding+cfg.BottomPadding != nz {
		return nil, fmt.Errorf("physics: truth %s does not fit model shape %v with padding %d/%d",
			truth.shape(), cfg.Shape, cfg.TopPadding, cfg.BottomPadding)
	}
	if cfg.NShots < 1 || cfg.NReceivers < 1 {
		return nil, fmt.Errorf("physics: need at least one shot and one receiver")
	}
	if cfg.TopPadding < 0 || cfg.BottomPadding < 0 {
		return nil, fmt.Errorf("physics: negative padding %d/%d", cfg.TopPadding, cfg.BottomPadding)
	}
	if cfg.SourceMinX < 0 || cfg.SourceMinX >= nx {
		return nil, fmt.Errorf("physics: source_min_x %d outside [0,%d)", cfg.SourceMinX, nx)
	}
	if cfg.RecMinX < 0 || cfg.RecMinX >= nx {
		return nil, fmt.Errorf("physics: rec_min_x %d outside [0,%d)", cfg.RecMinX, nx)
	}

	m := &ConvolutionalMisfit{
		cfg:    cfg,
		nx:     nx,
		nz:     nz,
		nt:     nz,
		height: truth.Height,
		muteZ:  max(cfg.SourceMinY, cfg.RecMinY),
	}
	dt := (cfg.Tn - cfg.T0) / float64(m.nt)

	m.half = max(1, int(math.Ceil(1.5/(cfg.F0*dt))))
	m.wavelet = make([]float64, 2*m.half+1)
	for k := -m.half; k <= m.half; k++ {
		m.wavelet[k+m.half] = Ricker(cfg.F0, float64(k)*dt)
	}

	nb := min(cfg.NBPML, m.nt/2)
	m.taper = make([]float64, m.nt)
	for t := range m.taper {
		m.taper[t] = 1
		if nb > 0 && t >= m.nt-nb {
			m.taper[t] = 0.5 * (1 + math.Cos(math.Pi*float64(t-(m.nt-nb))/float64(nb)))
		}
	}

	m.recX = spread(cfg.RecMinX, nx, cfg.NReceivers)
	srcX := spread(cfg.SourceMinX, nx, cfg.NShots)
	aperture := float64(nx) * cfg.Spacing[0]
	m.amp = make([][]float64, cfg.NShots)
	for s, sx := range srcX {
		m.amp[s] = make([]float64, cfg.NReceivers)
		for r, rx := range m.recX {
			offset := math.Abs(float64(sx-rx)) * cfg.Spacing[0]
			m.amp[s][r] = 1 / (1 + offset/aperture)
		}
	}

	m.clean = m.simulate(truth)
	m.observed = NewTraces(m.clean.Shots, m.clean.Receivers, m.clean.Samples)
	sigma := cfg.NoisePercent * stat.StdDev(m.clean.Data, nil)
	for i, v := range m.clean.Data {
		m.observed.Data[i] = v + sigma*rng.NormFloat64()
	}
	return m, nil
}

// spread places n positions evenly from lo to size-1.
func spread(lo, size, n int) []int {
	out := make([]int, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	step := float64(size-1-lo) / float64(n-1)
	for i := range out {
		out[i] = lo + int(math.Round(float64(i)*step))
	}
	return out
}

// velocityColumn returns the padded velocity profile at column x.
func (m *ConvolutionalMisfit) velocityColumn(f Field, x int) []float64 {
	v := make([]float64, m.nz)
	for z := range v {
		y := z - m.cfg.TopPadding
		if y >= 0 && y < m.height {
			v[z] = f.At(ChannelVelocity, y, x)
		} else {
			v[z] = m.cfg.PaddingVp
		}
	}
	return v
}

// reflectivity returns the normal-incidence reflection series of v, muted above muteZ.
func (m *ConvolutionalMisfit) reflectivity(v []float64) []float64 {
	r := make([]float64, m.nz)
	for z := m.muteZ; z+1 < m.nz; z++ {
		r[z] = (v[z+1] - v[z]) / (v[z+1] + v[z])
	}
	return r
}

// convolve returns the tapered wavelet response of reflectivity r.
func (m *ConvolutionalMisfit) convolve(r []float64) []float64 {
	out := make([]float64, m.nt)
	for t := range out {
		var sum float64
		for k := -m.half; k <= m.half; k++ {
			z := t - k
			if z >= 0 && z < m.nz {
				sum += m.wavelet[k+m.half] * r[z]
			}
		}
		out[t] = sum * m.taper[t]
	}
	return out
}

func (m *ConvolutionalMisfit) simulate(f Field) Traces {
	tr := NewTraces(m.cfg.NShots, m.cfg.NReceivers, m.nt)
	for r, x := range m.recX {
		base := m.convolve(m.reflectivity(m.velocityColumn(f, x)))
		for s := 0; s < m.cfg.NShots; s++ {
			a := m.amp[s][r]
			row := tr.Shot(s)[r*m.nt : (r+1)*m.nt]
			for t, b := range base {
				row[t] = a * b
			}
		}
	}
	return tr
}

// Misfit simulates recordings for f and returns 0.5·‖pred − obs‖² with its gradient.
func (m *ConvolutionalMisfit) Misfit(f Field) (MisfitResult, error) {
	if f.Width != m.nx || f.Height != m.height || f.Channels <= ChannelVelocity {
		return MisfitResult{}, fmt.Errorf("physics: field %s does not match model %dx%d", f.shape(), m.height, m.nx)
	}

	pred := m.simulate(f)
	grad := ZeroLike(f)
	var loss float64

	for r, x := range m.recX {
		// Adjoint source: amplitude-weighted residual summed over shots, tapered
		q := make([]float64, m.nt)
		for s := 0; s < m.cfg.NShots; s++ {
			off := (s*m.cfg.NReceivers + r) * m.nt
			for t := 0; t < m.nt; t++ {
				res := pred.Data[off+t] - m.observed.Data[off+t]
				loss += 0.5 * res * res
				q[t] += m.amp[s][r] * res * m.taper[t]
			}
		}

		// dL/dR[z] = Σ_t q[t]·w(t−z)
		v := m.velocityColumn(f, x)
		for z := m.muteZ; z+1 < m.nz; z++ {
			var dR float64
			for k := -m.half; k <= m.half; k++ {
				t := z + k
				if t >= 0 && t < m.nt {
					dR += q[t] * m.wavelet[k+m.half]
				}
			}
			if dR == 0 {
				continue
			}
			sum := v[z+1] + v[z]
			sum2 := sum * sum
			m.addVelocityGrad(grad, z, x, dR*(-2*v[z+1]/sum2))
			m.addVelocityGrad(grad, z+1, x, dR*(2*v[z]/sum2))
		}
	}

	m.last = &pred
	return MisfitResult{Loss: loss, Grad: grad, Predicted: pred}, nil
}

func (m *ConvolutionalMisfit) addVelocityGrad(grad Field, z, x int, g float64) {
	y := z - m.cfg.TopPadding
	if y < 0 || y >= m.height {
		return
	}
	grad.Data[grad.Index(ChannelVelocity, y, x)] += g
}

// Observed returns the noisy observed recordings.
func (m *ConvolutionalMisfit) Observed() Traces {
	return m.observed
}

// Clean returns the noise-free recordings of the ground truth.
func (m *ConvolutionalMisfit) Clean() Traces {
	return m.clean
}

// Last returns the most recent simulated recordings, or nil after Reset.
func (m *ConvolutionalMisfit) Last() *Traces {
	return m.last
}

// Reset clears the cached simulation.
func (m *ConvolutionalMisfit) Reset() {
	m.last = nil
}
