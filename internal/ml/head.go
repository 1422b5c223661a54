package ml

import (
	"fmt"
	"slices"

	"github.com/ChizhovVadim/HistLoss/pkg/affine"
	"github.com/ChizhovVadim/HistLoss/pkg/histogram"
	"github.com/ChizhovVadim/HistLoss/pkg/tensor"
)

// HistogramHead turns features into a histogram over the bins of every output dimension
// and reads estimates back as expectations. Only the forward pass is computed here.
type HistogramHead struct {
	layer   *affine.Layer
	decoder *histogram.Decoder
	cost    IHistogramCost
}

// NewHistogramHead checks that the layer produces (geometry shape..., NBins) per sample.
func NewHistogramHead(layer *affine.Layer, geometry *histogram.Geometry) (*HistogramHead, error) {
	var want = append(geometry.Shape(), geometry.NBins())
	if !slices.Equal(layer.SampleOutputShape(), want) {
		return nil, fmt.Errorf("%w: layer output %v for histogram %v",
			histogram.ErrShapeMismatch, layer.SampleOutputShape(), want)
	}
	return &HistogramHead{
		layer:   layer,
		decoder: histogram.NewDecoder(geometry),
		cost:    &CrossEntropyCost{},
	}, nil
}

func (h *HistogramHead) Probabilities(features tensor.Tensor) (tensor.Tensor, error) {
	var logits, err = h.layer.Forward(features)
	if err != nil {
		return tensor.Tensor{}, err
	}
	SoftmaxLastAxis(logits)
	return logits, nil
}

func (h *HistogramHead) Predict(features tensor.Tensor) (tensor.Tensor, error) {
	var probs, err = h.Probabilities(features)
	if err != nil {
		return tensor.Tensor{}, err
	}
	return h.decoder.Decode(probs)
}

// Loss is the mean cross-entropy between encoded targets and predicted histograms.
func (h *HistogramHead) Loss(features, targets tensor.Tensor, encoder histogram.IEncoder) (float64, error) {
	var probs, err = h.Probabilities(features)
	if err != nil {
		return 0, err
	}
	want, err := histogram.Encode(encoder, targets)
	if err != nil {
		return 0, err
	}
	if !slices.Equal(want.Shape, probs.Shape) {
		return 0, fmt.Errorf("%w: targets %v for predictions %v", histogram.ErrShapeMismatch, targets.Shape, probs.Shape)
	}
	var n = h.decoder.Geometry().NBins()
	var rows = len(probs.Data) / n
	if rows == 0 {
		return 0, nil
	}
	var total float64
	for i := 0; i < rows; i++ {
		total += h.cost.Cost(probs.Data[i*n:(i+1)*n], want.Data[i*n:(i+1)*n])
	}
	return total / float64(rows), nil
}
