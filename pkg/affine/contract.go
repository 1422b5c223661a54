package affine

import (
	"fmt"
	"slices"

	"github.com/ChizhovVadim/HistLoss/pkg/tensor"
	"gonum.org/v1/gonum/mat"
)

// Contraction describes a batched matrix multiply over an input of shape
// BatchShape ++ GroupShape ++ [Inputs]. Every index of GroupShape selects its own
// Inputs×Size(OutputShape) weight matrix, shared by all batch indices. The result has
// shape BatchShape ++ GroupShape ++ OutputShape; an empty OutputShape contracts each
// input vector to a scalar.
type Contraction struct {
	BatchShape  []int
	GroupShape  []int
	Inputs      int
	OutputShape []int
}

func (c *Contraction) InputShape() []int {
	return slices.Concat(c.BatchShape, c.GroupShape, []int{c.Inputs})
}

func (c *Contraction) ResultShape() []int {
	return slices.Concat(c.BatchShape, c.GroupShape, c.OutputShape)
}

func (c *Contraction) Groups() int { return tensor.Size(c.GroupShape) }

func (c *Contraction) Outputs() int { return tensor.Size(c.OutputShape) }

// Contract multiplies every input vector of x by the weight matrix of its group.
func Contract(c Contraction, x tensor.Tensor, weights []*mat.Dense) (tensor.Tensor, error) {
	if !slices.Equal(x.Shape, c.InputShape()) {
		return tensor.Tensor{}, fmt.Errorf("%w: input %v, expected %v", ErrShapeMismatch, x.Shape, c.InputShape())
	}
	var batch = tensor.Size(c.BatchShape)
	var groups = c.Groups()
	var inputs = c.Inputs
	var outputs = c.Outputs()
	if len(weights) != groups {
		return tensor.Tensor{}, fmt.Errorf("%w: %v weight matrices for %v groups", ErrShapeMismatch, len(weights), groups)
	}
	for _, w := range weights {
		if r, cols := w.Dims(); r != inputs || cols != outputs {
			return tensor.Tensor{}, fmt.Errorf("%w: weights %vx%v, expected %vx%v", ErrShapeMismatch, r, cols, inputs, outputs)
		}
	}

	var result = tensor.New(c.ResultShape()...)
	if batch == 0 || groups == 0 {
		return result, nil
	}
	if groups == 1 {
		var y = mat.NewDense(batch, outputs, result.Data)
		y.Mul(mat.NewDense(batch, inputs, x.Data), weights[0])
		return result, nil
	}

	// Rows of one group are strided by groups*inputs, gather them into a dense block.
	var a = mat.NewDense(batch, inputs, nil)
	var y = mat.NewDense(batch, outputs, nil)
	for g := 0; g < groups; g++ {
		for b := 0; b < batch; b++ {
			var row = b*groups + g
			a.SetRow(b, x.Data[row*inputs:(row+1)*inputs])
		}
		y.Mul(a, weights[g])
		for b := 0; b < batch; b++ {
			var row = b*groups + g
			copy(result.Data[row*outputs:(row+1)*outputs], y.RawRowView(b))
		}
	}
	return result, nil
}
