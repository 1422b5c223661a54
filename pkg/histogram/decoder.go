package histogram

import (
	"fmt"

	"github.com/ChizhovVadim/HistLoss/pkg/tensor"
	"gonum.org/v1/gonum/floats"
)

// Decoder recovers estimates as the expectation of bin centers under a probability vector.
type Decoder struct {
	geometry *Geometry
}

func NewDecoder(g *Geometry) *Decoder {
	return &Decoder{geometry: g}
}

func (d *Decoder) Geometry() *Geometry { return d.geometry }

func (d *Decoder) DecodeOne(probs []float64, dim int) (float64, error) {
	if err := d.geometry.checkDim(dim); err != nil {
		return 0, err
	}
	if len(probs) != d.geometry.nBins {
		return 0, fmt.Errorf("%w: %v probabilities for %v bins", ErrShapeMismatch, len(probs), d.geometry.nBins)
	}
	return floats.Dot(probs, d.geometry.centers[dim]), nil
}

// Decode maps probabilities of shape (batch..., geometry shape..., NBins) to estimates
// of shape (batch..., geometry shape...). Each output dimension uses its own centers.
func (d *Decoder) Decode(probs tensor.Tensor) (tensor.Tensor, error) {
	var g = d.geometry
	var suffix = append(g.Shape(), g.nBins)
	if !tensor.HasSuffix(probs.Shape, suffix) {
		return tensor.Tensor{}, fmt.Errorf("%w: probabilities %v for %v", ErrShapeMismatch, probs.Shape, suffix)
	}
	var n = g.nBins
	var dims = g.Dims()
	var result = tensor.New(probs.Shape[:len(probs.Shape)-1]...)
	for i := range result.Data {
		result.Data[i] = floats.Dot(probs.Data[i*n:(i+1)*n], g.centers[i%dims])
	}
	return result, nil
}
