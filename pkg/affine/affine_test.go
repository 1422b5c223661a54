package affine

import (
	"math/rand"
	"testing"

	"github.com/ChizhovVadim/HistLoss/pkg/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomTensor(rnd *rand.Rand, shape ...int) tensor.Tensor {
	var x = tensor.New(shape...)
	for i := range x.Data {
		x.Data[i] = rnd.NormFloat64()
	}
	return x
}

// naive computes x[..., :] · w for one input row.
func naive(row []float64, w *mat.Dense) []float64 {
	var r, c = w.Dims()
	var out = make([]float64, c)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			out[j] += row[i] * w.At(i, j)
		}
	}
	return out
}

func TestSharedMatchesMatrixProduct(t *testing.T) {
	var rnd = rand.New(rand.NewSource(1))
	layer, err := New(Config{InputShape: []int{4}, OutputShape: []int{3}}, rnd)
	require.NoError(t, err)
	require.Len(t, layer.Weights(), 1)
	var w = layer.Weights()[0]
	var r, c = w.Dims()
	require.Equal(t, 4, r)
	require.Equal(t, 3, c)

	var x = randomTensor(rnd, 5, 4)
	y, err := layer.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 3}, y.Shape)

	var expected mat.Dense
	expected.Mul(mat.NewDense(5, 4, x.Data), w)
	for b := 0; b < 5; b++ {
		for o := 0; o < 3; o++ {
			assert.InDelta(t, expected.At(b, o), y.At(b, o), 1e-12)
		}
	}
}

func TestSharedAcrossPositions(t *testing.T) {
	var rnd = rand.New(rand.NewSource(2))
	layer, err := New(Config{InputShape: []int{3, 4}, OutputShape: []int{2, 5}}, rnd)
	require.NoError(t, err)
	layer.Bias().Set(1.5, 1, 2)

	var x = randomTensor(rnd, 6, 3, 4)
	y, err := layer.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{6, 3, 2, 5}, y.Shape)
	assert.Equal(t, []int{3, 2, 5}, layer.SampleOutputShape())

	var w = layer.Weights()[0]
	for b := 0; b < 6; b++ {
		for p := 0; p < 3; p++ {
			var row = x.Data[(b*3+p)*4 : (b*3+p+1)*4]
			var want = naive(row, w)
			want[1*5+2] += 1.5
			for o, v := range want {
				assert.InDelta(t, v, y.At(b, p, o/5, o%5), 1e-12)
			}
		}
	}
}

func TestIndividual(t *testing.T) {
	var rnd = rand.New(rand.NewSource(3))
	layer, err := New(Config{InputShape: []int{2, 3, 4}, OutputShape: []int{7}, Individual: true}, rnd)
	require.NoError(t, err)
	require.Len(t, layer.Weights(), 6)
	assert.Equal(t, []int{2, 3, 7}, layer.Bias().Shape)
	for i := range layer.Bias().Data {
		layer.Bias().Data[i] = float64(i)
	}

	var x = randomTensor(rnd, 5, 2, 3, 4)
	y, err := layer.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 2, 3, 7}, y.Shape)

	for b := 0; b < 5; b++ {
		for p := 0; p < 6; p++ {
			var row = x.Data[(b*6+p)*4 : (b*6+p+1)*4]
			var want = naive(row, layer.Weights()[p])
			for o, v := range want {
				assert.InDelta(t, v+float64(p*7+o), y.At(b, p/3, p%3, o), 1e-12)
			}
		}
	}
}

func TestScalarOutput(t *testing.T) {
	for _, individual := range []bool{false, true} {
		var rnd = rand.New(rand.NewSource(4))
		layer, err := New(Config{InputShape: []int{3, 4}, Individual: individual}, rnd)
		require.NoError(t, err)

		var x = randomTensor(rnd, 2, 3, 4)
		y, err := layer.Forward(x)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 3}, y.Shape)

		for b := 0; b < 2; b++ {
			for p := 0; p < 3; p++ {
				var w = layer.Weights()[0]
				if individual {
					w = layer.Weights()[p]
				}
				var want = naive(x.Data[(b*3+p)*4:(b*3+p+1)*4], w)
				require.Len(t, want, 1)
				assert.InDelta(t, want[0], y.At(b, p), 1e-12, "individual=%v", individual)
			}
		}
	}
}

func TestContractValidation(t *testing.T) {
	var c = Contraction{BatchShape: []int{2}, GroupShape: []int{3}, Inputs: 4, OutputShape: []int{5}}
	assert.Equal(t, []int{2, 3, 4}, c.InputShape())
	assert.Equal(t, []int{2, 3, 5}, c.ResultShape())

	var weights = make([]*mat.Dense, 3)
	for i := range weights {
		weights[i] = mat.NewDense(4, 5, nil)
	}
	_, err := Contract(c, tensor.New(2, 3, 5), weights)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = Contract(c, tensor.New(2, 3, 4), weights[:2])
	assert.ErrorIs(t, err, ErrShapeMismatch)
	weights[1] = mat.NewDense(5, 4, nil)
	_, err = Contract(c, tensor.New(2, 3, 4), weights)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	c.BatchShape = []int{0}
	weights[1] = mat.NewDense(4, 5, nil)
	y, err := Contract(c, tensor.New(0, 3, 4), weights)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 5}, y.Shape)
}

func TestLayerValidation(t *testing.T) {
	_, err := New(Config{OutputShape: []int{3}}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(Config{InputShape: []int{4}, OutputShape: []int{0}}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	layer, err := New(Config{InputShape: []int{4}, OutputShape: []int{3}}, nil)
	require.NoError(t, err)
	_, err = layer.Forward(tensor.New(2, 5))
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = layer.Forward(tensor.New(4))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestInitScale(t *testing.T) {
	layer, err := New(Config{InputShape: []int{400}, OutputShape: []int{50}}, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	var sumSq float64
	var data = layer.Weights()[0].RawMatrix().Data
	for _, v := range data {
		sumSq += v * v
	}
	assert.InDelta(t, 1.0/400, sumSq/float64(len(data)), 0.1/400)
}
