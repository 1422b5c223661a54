package ml

import "math"

type IModelCost interface {
	Cost(predicted, target float64) float64
}

type MSECost struct{}

func (*MSECost) Cost(predicted, target float64) float64 {
	var x = predicted - target
	return x * x
}

type AbsCost struct{}

func (*AbsCost) Cost(predicted, target float64) float64 {
	return math.Abs(predicted - target)
}

// IHistogramCost compares a target probability vector with a predicted one.
type IHistogramCost interface {
	Cost(predicted, target []float64) float64
}

// Predicted probabilities are clipped to [CrossEntropyEpsilon, 1] before the logarithm.
const CrossEntropyEpsilon = 1e-7

type CrossEntropyCost struct{}

func (*CrossEntropyCost) Cost(predicted, target []float64) float64 {
	var sum float64
	for i, t := range target {
		if t == 0 {
			continue
		}
		var p = math.Min(math.Max(predicted[i], CrossEntropyEpsilon), 1)
		sum -= t * math.Log(p)
	}
	return sum
}
