package bias

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrFitNotConverged = errors.New("bias: curve fit did not converge")
	ErrInvalidData     = errors.New("bias: invalid data")
)

// Curve is the approximation bias(x) = A*exp(B*x^2) with its error on the log scale.
type Curve struct {
	A, B float64
	MAE  float64
	RMSE float64
}

func (c Curve) Eval(x float64) float64 {
	return c.A * math.Exp(c.B*x*x)
}

// FitCurve minimises the squared log ratio between y and the curve. y must be positive.
// ln(bias) = ln(a) + b*x^2 is linear in (ln a, b), so the minimum is the least squares
// solution of the design [1, x^2], found by QR.
func FitCurve(x, y []float64) (Curve, error) {
	if len(x) != len(y) || len(x) < 2 {
		return Curve{}, fmt.Errorf("%w: %v parameters and %v biases", ErrInvalidData, len(x), len(y))
	}
	for i := range y {
		if !(y[i] > 0) || math.IsInf(y[i], 0) || math.IsNaN(x[i]) || math.IsInf(x[i], 0) {
			return Curve{}, fmt.Errorf("%w: point %v is (%v, %v), need finite x and positive y", ErrInvalidData, i, x[i], y[i])
		}
	}

	var n = len(x)
	var design = mat.NewDense(n, 2, nil)
	var ly = mat.NewVecDense(n, nil)
	var distinct bool
	for i := range x {
		var u = x[i] * x[i]
		design.Set(i, 0, 1)
		design.Set(i, 1, u)
		ly.SetVec(i, math.Log(y[i]))
		distinct = distinct || u != x[0]*x[0]
	}
	// A single x^2 leaves b undetermined.
	if !distinct {
		return Curve{}, fmt.Errorf("%w: all %v points share x^2 = %v", ErrFitNotConverged, n, x[0]*x[0])
	}

	var p mat.VecDense
	if err := p.SolveVec(design, ly); err != nil {
		return Curve{}, fmt.Errorf("%w: %w", ErrFitNotConverged, err)
	}
	var la, b = p.AtVec(0), p.AtVec(1)
	if math.IsNaN(la) || math.IsInf(la, 0) || math.IsNaN(b) || math.IsInf(b, 0) {
		return Curve{}, fmt.Errorf("%w: parameters (%v, %v)", ErrFitNotConverged, la, b)
	}

	var curve = Curve{A: math.Exp(la), B: b}
	for i := range x {
		var r = la + b*x[i]*x[i] - ly.AtVec(i)
		curve.MAE += math.Abs(r)
		curve.RMSE += r * r
	}
	curve.MAE /= float64(n)
	curve.RMSE = math.Sqrt(curve.RMSE / float64(n))
	return curve, nil
}
