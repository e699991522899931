package forward

import (
	"fmt"
	"math"

	"github.com/ojrac/opensimplex-go"
	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/seisinv/config"
)

// SimplexGenerator is a reference generator: each latent component weights a smooth
// simplex-noise basis map, and the sum is squashed per channel.
//
//	facies   = tanh(B·z/√k)
//	velocity = min_vp + (max_vp−min_vp)·(tanh(B·z/√k)+1)/2
type SimplexGenerator struct {
	dim    int
	height int
	width  int
	minVp  float64
	maxVp  float64
	scale  float64
	basis  *mat.Dense // (2·height·width) x dim
}

// NewSimplexGenerator synthesizes the basis from opensimplex noise seeded by
// cfg.BasisSeed, one noise source per latent component.
func NewSimplexGenerator(cfg config.GeneratorConfig, dim int) *SimplexGenerator {
	rows := 2 * cfg.Height * cfg.Width
	basis := mat.NewDense(rows, dim, nil)
	for k := 0; k < dim; k++ {
		noise := opensimplex.New(cfg.BasisSeed + int64(k))
		for c := 0; c < 2; c++ {
			for y := 0; y < cfg.Height; y++ {
				for x := 0; x < cfg.Width; x++ {
					row := (c*cfg.Height+y)*cfg.Width + x
					v := noise.Eval3(float64(x)*cfg.FeatureScale, float64(y)*cfg.FeatureScale, float64(c)*7.31)
					basis.Set(row, k, v)
				}
			}
		}
	}
	g, err := NewBasisGenerator(cfg, basis)
	if err != nil {
		panic(fmt.Sprintf("forward: synthesized basis rejected: %v", err))
	}
	return g
}

// NewBasisGenerator wraps a precomputed basis matrix (for example loaded from disk).
func NewBasisGenerator(cfg config.GeneratorConfig, basis *mat.Dense) (*SimplexGenerator, error) {
	rows, dim := basis.Dims()
	if want := 2 * cfg.Height * cfg.Width; rows != want {
		return nil, fmt.Errorf("generator basis has %d rows, want %d (2x%dx%d)", rows, want, cfg.Height, cfg.Width)
	}
	return &SimplexGenerator{
		dim:    dim,
		height: cfg.Height,
		width:  cfg.Width,
		minVp:  cfg.MinVp,
		maxVp:  cfg.MaxVp,
		scale:  1 / math.Sqrt(float64(dim)),
		basis:  basis,
	}, nil
}

// LatentDim returns the expected latent length.
func (g *SimplexGenerator) LatentDim() int {
	return g.dim
}

// Basis returns the basis matrix.
func (g *SimplexGenerator) Basis() *mat.Dense {
	return g.basis
}

// preActivation computes B·z/√k as a tanh-ready slice.
func (g *SimplexGenerator) preActivation(z []float64) ([]float64, error) {
	if len(z) != g.dim {
		return nil, fmt.Errorf("latent has %d entries, generator expects %d", len(z), g.dim)
	}
	rows, _ := g.basis.Dims()
	var pre mat.VecDense
	pre.MulVec(g.basis, mat.NewVecDense(g.dim, z))
	out := make([]float64, rows)
	for i := range out {
		out[i] = math.Tanh(pre.AtVec(i) * g.scale)
	}
	return out, nil
}

// Generate maps z to a two-channel (facies, velocity) field.
func (g *SimplexGenerator) Generate(z []float64) (Field, error) {
	act, err := g.preActivation(z)
	if err != nil {
		return Field{}, err
	}
	f := NewField(2, g.height, g.width)
	facies := f.Channel(ChannelFacies)
	copy(facies, act[:len(facies)])

	vel := f.Channel(ChannelVelocity)
	span := g.maxVp - g.minVp
	for i, t := range act[len(facies):] {
		vel[i] = g.minVp + span*(t+1)/2
	}
	return f, nil
}

// Pullback returns dL/dz for an upstream gradient dL/dfield at z.
func (g *SimplexGenerator) Pullback(z []float64, grad Field) ([]float64, error) {
	if grad.Channels != 2 || grad.Height != g.height || grad.Width != g.width {
		return nil, fmt.Errorf("gradient shape %s does not match generator output 2x%dx%d", grad.shape(), g.height, g.width)
	}
	act, err := g.preActivation(z)
	if err != nil {
		return nil, err
	}

	n := g.height * g.width
	halfSpan := (g.maxVp - g.minVp) / 2
	gpre := make([]float64, len(act))
	for i, t := range act {
		d := (1 - t*t) * g.scale
		if i >= n {
			d *= halfSpan
		}
		gpre[i] = grad.Data[i] * d
	}

	var dz mat.VecDense
	dz.MulVec(g.basis.T(), mat.NewVecDense(len(gpre), gpre))
	out := make([]float64, g.dim)
	for i := range out {
		out[i] = dz.AtVec(i)
	}
	return out, nil
}
