package ml

import (
	"math"

	"github.com/ChizhovVadim/HistLoss/pkg/tensor"
	"gonum.org/v1/gonum/floats"
)

// Softmax writes exp(x)/sum(exp(x)) into dst. dst and x may alias.
func Softmax(dst, x []float64) {
	var maxX = floats.Max(x)
	var sum float64
	for i, v := range x {
		var e = math.Exp(v - maxX)
		dst[i] = e
		sum += e
	}
	floats.Scale(1/sum, dst)
}

// SoftmaxLastAxis turns logits into probability vectors along the trailing axis in place.
func SoftmaxLastAxis(logits tensor.Tensor) {
	if logits.Rank() == 0 {
		return
	}
	var n = logits.Shape[logits.Rank()-1]
	if n == 0 {
		return
	}
	for i := 0; i+n <= len(logits.Data); i += n {
		var row = logits.Data[i : i+n]
		Softmax(row, row)
	}
}
