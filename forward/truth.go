package forward

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// readNPY reads a float64 array and its shape from a .npy file.
func readNPY(path string) ([]float64, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("reading npy header of %s: %w", path, err)
	}
	shape := append([]int(nil), r.Header.Descr.Shape...)

	var data []float64
	if err := r.Read(&data); err != nil {
		return nil, nil, fmt.Errorf("reading npy data of %s: %w", path, err)
	}
	return data, shape, nil
}

// LoadTestImage loads image index from a stack of ground-truth images.
//
// Accepted layouts are (N, H, W) holding facies labels in {0, 1}, and (N, C, H, W)
// with facies labels in channel 0 and min-max normalized velocity in [-1, 1] in
// channel 1. Facies are mapped to the generator range (-1, 1) and velocity is
// denormalized to [minVp, maxVp]. Single-channel images derive velocity from facies.
func LoadTestImage(path string, index int, minVp, maxVp float64) (Field, error) {
	data, shape, err := readNPY(path)
	if err != nil {
		return Field{}, err
	}

	var n, c, h, w int
	switch len(shape) {
	case 3:
		n, c, h, w = shape[0], 1, shape[1], shape[2]
	case 4:
		n, c, h, w = shape[0], shape[1], shape[2], shape[3]
	default:
		return Field{}, fmt.Errorf("test images %s: unsupported shape %v", path, shape)
	}
	if index < 0 || index >= n {
		return Field{}, fmt.Errorf("test image %d outside [0,%d)", index, n)
	}

	img := data[index*c*h*w : (index+1)*c*h*w]
	f := NewField(2, h, w)
	facies := f.Channel(ChannelFacies)
	vel := f.Channel(ChannelVelocity)
	span := maxVp - minVp
	for i := range facies {
		label := img[i]
		facies[i] = 2*label - 1
		if c >= 2 {
			vel[i] = minVp + span*(img[h*w+i]+1)/2
		} else {
			vel[i] = minVp + span*label
		}
	}
	return f, nil
}

// SynthesizeTruth generates a ground-truth field from a prior latent draw.
func SynthesizeTruth(g Generator, rng *rand.Rand) (Field, error) {
	z := make([]float64, g.LatentDim())
	for i := range z {
		z[i] = rng.NormFloat64()
	}
	return g.Generate(z)
}

// LoadBounds reads the velocity normalization bounds from a min/max table whose
// rows 2 and 3 hold the minimum and maximum in column 1.
func LoadBounds(path string) (minVp, maxVp float64, err error) {
	data, shape, err := readNPY(path)
	if err != nil {
		return 0, 0, err
	}
	if len(shape) != 2 || shape[0] < 4 || shape[1] < 2 {
		return 0, 0, fmt.Errorf("bounds %s: want at least a 4x2 table, got %v", path, shape)
	}
	cols := shape[1]
	return data[2*cols+1], data[3*cols+1], nil
}

// LoadChannelWeights reads a 1-D array of per-channel critic weights.
func LoadChannelWeights(path string) ([]float64, error) {
	data, shape, err := readNPY(path)
	if err != nil {
		return nil, err
	}
	if len(shape) != 1 {
		return nil, fmt.Errorf("critic weights %s: want 1-D array, got %v", path, shape)
	}
	return data, nil
}

// LoadBasis reads a generator basis matrix of shape (2·H·W, latent dim).
func LoadBasis(path string) (*mat.Dense, error) {
	data, shape, err := readNPY(path)
	if err != nil {
		return nil, err
	}
	if len(shape) != 2 || shape[0] == 0 || shape[1] == 0 {
		return nil, fmt.Errorf("generator basis %s: want non-empty 2-D array, got %v", path, shape)
	}
	return mat.NewDense(shape[0], shape[1], data), nil
}
