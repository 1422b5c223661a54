// Package affine maps the last axis of an input tensor to a multi-dimensional output
// with one shared weight matrix or one weight matrix per position of the other axes.
package affine

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"

	"github.com/ChizhovVadim/HistLoss/pkg/tensor"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrInvalidConfig = errors.New("affine: invalid configuration")
	ErrShapeMismatch = errors.New("affine: shape mismatch")
)

// Config describes a layer for inputs of shape (batch, InputShape...).
// With InputShape (d1, ..., dk) the output has shape (batch, d1, ..., d(k-1), OutputShape...).
type Config struct {
	InputShape  []int `yaml:"input_shape"`
	OutputShape []int `yaml:"output_shape"`
	// Individual uses an independent weight matrix for every (d1, ..., d(k-1)) position.
	Individual bool `yaml:"individual"`
}

func (c *Config) Validate() error {
	var err error
	if len(c.InputShape) == 0 {
		err = multierr.Append(err, fmt.Errorf("%w: input shape must have at least one axis", ErrInvalidConfig))
	}
	if slices.ContainsFunc(c.InputShape, func(d int) bool { return d <= 0 }) {
		err = multierr.Append(err, fmt.Errorf("%w: input shape %v", ErrInvalidConfig, c.InputShape))
	}
	if slices.ContainsFunc(c.OutputShape, func(d int) bool { return d <= 0 }) {
		err = multierr.Append(err, fmt.Errorf("%w: output shape %v", ErrInvalidConfig, c.OutputShape))
	}
	return err
}

type Layer struct {
	config  Config
	weights []*mat.Dense
	bias    tensor.Tensor
}

// New creates a layer with LeCun-scaled uniform weights drawn from rnd and zero biases.
// A nil rnd uses a fixed seed.
func New(config Config, rnd *rand.Rand) (*Layer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(0))
	}
	var l = &Layer{
		config: Config{
			InputShape:  slices.Clone(config.InputShape),
			OutputShape: slices.Clone(config.OutputShape),
			Individual:  config.Individual,
		},
	}
	var inputs = l.inputs()
	var outputs = tensor.Size(config.OutputShape)
	var matrices = 1
	var biasShape = l.config.OutputShape
	if config.Individual {
		matrices = tensor.Size(l.positions())
		biasShape = slices.Concat(l.positions(), l.config.OutputShape)
	}
	l.weights = make([]*mat.Dense, matrices)
	for i := range l.weights {
		var data = make([]float64, inputs*outputs)
		InitUniform(rnd, data, 1/float64(inputs))
		l.weights[i] = mat.NewDense(inputs, outputs, data)
	}
	l.bias = tensor.New(biasShape...)
	return l, nil
}

func (l *Layer) inputs() int {
	return l.config.InputShape[len(l.config.InputShape)-1]
}

func (l *Layer) positions() []int {
	return l.config.InputShape[:len(l.config.InputShape)-1]
}

func (l *Layer) Config() Config { return l.config }

// Weights returns the Inputs×Size(OutputShape) matrices, one per position in individual mode.
func (l *Layer) Weights() []*mat.Dense { return l.weights }

// Bias has shape OutputShape, or positions ++ OutputShape in individual mode.
func (l *Layer) Bias() tensor.Tensor { return l.bias }

// SampleOutputShape is the output shape without the batch axis.
func (l *Layer) SampleOutputShape() []int {
	return slices.Concat(l.positions(), l.config.OutputShape)
}

func (l *Layer) contraction(batch int) Contraction {
	if l.config.Individual {
		return Contraction{
			BatchShape:  []int{batch},
			GroupShape:  l.positions(),
			Inputs:      l.inputs(),
			OutputShape: l.config.OutputShape,
		}
	}
	return Contraction{
		BatchShape:  slices.Concat([]int{batch}, l.positions()),
		Inputs:      l.inputs(),
		OutputShape: l.config.OutputShape,
	}
}

func (l *Layer) Forward(x tensor.Tensor) (tensor.Tensor, error) {
	if x.Rank() != len(l.config.InputShape)+1 || !tensor.HasSuffix(x.Shape, l.config.InputShape) {
		return tensor.Tensor{}, fmt.Errorf("%w: input %v for layer input %v", ErrShapeMismatch, x.Shape, l.config.InputShape)
	}
	var result, err = Contract(l.contraction(x.Shape[0]), x, l.weights)
	if err != nil {
		return tensor.Tensor{}, err
	}
	// Result rows are ordered (batch, position), so the bias repeats with its own length.
	var bias = l.bias.Data
	for i := range result.Data {
		result.Data[i] += bias[i%len(bias)]
	}
	return result, nil
}

func InitUniform(rnd *rand.Rand, data []float64, variance float64) {
	var uniformVariance = 1.0 / 12
	var scale = math.Sqrt(variance / uniformVariance)
	for i := range data {
		data[i] = (rnd.Float64() - 0.5) * scale
	}
}
