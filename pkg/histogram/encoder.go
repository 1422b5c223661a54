package histogram

import (
	"fmt"
	"math"

	"github.com/ChizhovVadim/HistLoss/pkg/tensor"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// IEncoder maps one target of one output dimension to a probability vector over the bins.
type IEncoder interface {
	Geometry() *Geometry
	// EncodeTo writes NBins probabilities summing to one into dst.
	EncodeTo(dst []float64, target float64, dim int) error
}

// Encode maps targets whose trailing axes equal the geometry shape to probabilities
// with an extra trailing axis of NBins.
func Encode(e IEncoder, targets tensor.Tensor) (tensor.Tensor, error) {
	var g = e.Geometry()
	if !tensor.HasSuffix(targets.Shape, g.shape) {
		return tensor.Tensor{}, fmt.Errorf("%w: targets %v for geometry shape %v", ErrShapeMismatch, targets.Shape, g.shape)
	}
	var n = g.nBins
	var dims = g.Dims()
	var result = tensor.New(append(targets.Shape[:len(targets.Shape):len(targets.Shape)], n)...)
	for i, y := range targets.Data {
		var err = e.EncodeTo(result.Data[i*n:(i+1)*n], y, i%dims)
		if err != nil {
			return tensor.Tensor{}, fmt.Errorf("target %v: %w", i, err)
		}
	}
	return result, nil
}

func checkEncode(g *Geometry, dst []float64, target float64, dim int) error {
	if err := g.checkDim(dim); err != nil {
		return err
	}
	if len(dst) != g.nBins {
		return fmt.Errorf("%w: destination of %v values for %v bins", ErrShapeMismatch, len(dst), g.nBins)
	}
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return fmt.Errorf("%w: %v", ErrOutOfSupport, target)
	}
	return nil
}

const DefaultMinMass = 1e-12

// TruncatedGaussian spreads a target over the bins as a Gaussian centered at the target
// with the geometry sigma, truncated to the padded support and renormalized.
type TruncatedGaussian struct {
	geometry *Geometry
	// MinMass is the smallest truncated mass accepted before reporting ErrNumericalInstability.
	MinMass float64
}

func NewTruncatedGaussian(g *Geometry) *TruncatedGaussian {
	return &TruncatedGaussian{geometry: g, MinMass: DefaultMinMass}
}

func (e *TruncatedGaussian) Geometry() *Geometry { return e.geometry }

func (e *TruncatedGaussian) EncodeTo(dst []float64, target float64, dim int) error {
	var g = e.geometry
	if err := checkEncode(g, dst, target, dim); err != nil {
		return err
	}
	var borders = g.borders[dim]
	var last = len(borders) - 1
	var normal = distuv.Normal{Mu: target, Sigma: g.sigma[dim]}

	// Masses come from the tail away from the target. Below the midpoint P(X > b) is
	// the CDF at the mirror point 2*target-b, since only the CDF keeps relative
	// precision far in the tail.
	var cumulative = func(b float64) float64 { return normal.CDF(2*target - b) }
	var sign = -1.0
	if target > (borders[0]+borders[last])/2 {
		cumulative = normal.CDF
		sign = 1
	}
	var first = cumulative(borders[0])
	var prev = first
	for i := 1; i <= last; i++ {
		var cur = cumulative(borders[i])
		dst[i-1] = sign * (cur - prev)
		prev = cur
	}
	var total = sign * (prev - first)
	if !(total >= e.MinMass) {
		return fmt.Errorf("%w: mass %v for target %v in [%v, %v]",
			ErrNumericalInstability, total, target, borders[0], borders[last])
	}
	floats.Scale(1/total, dst)
	return nil
}

// OneHot puts all mass on the bin containing the target.
type OneHot struct {
	geometry *Geometry
}

func NewOneHot(g *Geometry) *OneHot {
	return &OneHot{geometry: g}
}

func (e *OneHot) Geometry() *Geometry { return e.geometry }

func (e *OneHot) EncodeTo(dst []float64, target float64, dim int) error {
	if err := checkEncode(e.geometry, dst, target, dim); err != nil {
		return err
	}
	var index, err = e.geometry.binIndex(target, dim)
	if err != nil {
		return err
	}
	for i := range dst {
		dst[i] = 0
	}
	dst[index] = 1
	return nil
}

// UniformMixture mixes the one-hot vector with uniform noise so that every bin keeps
// at least Eps probability.
type UniformMixture struct {
	geometry *Geometry
	eps      float64
}

func NewUniformMixture(g *Geometry, eps float64) (*UniformMixture, error) {
	if !(eps > 0) || !(float64(g.nBins)*eps < 1) {
		return nil, fmt.Errorf("%w: eps %v must be in (0, 1/%v)", ErrInvalidConfig, eps, g.nBins)
	}
	return &UniformMixture{geometry: g, eps: eps}, nil
}

func (e *UniformMixture) Geometry() *Geometry { return e.geometry }

func (e *UniformMixture) Eps() float64 { return e.eps }

func (e *UniformMixture) EncodeTo(dst []float64, target float64, dim int) error {
	if err := checkEncode(e.geometry, dst, target, dim); err != nil {
		return err
	}
	var index, err = e.geometry.binIndex(target, dim)
	if err != nil {
		return err
	}
	for i := range dst {
		dst[i] = e.eps
	}
	dst[index] = 1 - float64(e.geometry.nBins-1)*e.eps
	return nil
}

// LinearProjection splits the mass between the two centers around the target so that
// the expectation over centers equals the target.
type LinearProjection struct {
	geometry *Geometry
}

func NewLinearProjection(g *Geometry) *LinearProjection {
	return &LinearProjection{geometry: g}
}

func (e *LinearProjection) Geometry() *Geometry { return e.geometry }

func (e *LinearProjection) EncodeTo(dst []float64, target float64, dim int) error {
	var g = e.geometry
	if err := checkEncode(g, dst, target, dim); err != nil {
		return err
	}
	var centers = g.centers[dim]
	var last = len(centers) - 1
	if target < centers[0] || target > centers[last] {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrOutOfSupport, target, centers[0], centers[last])
	}
	for i := range dst {
		dst[i] = 0
	}
	if last == 0 {
		dst[0] = 1
		return nil
	}
	var index = locate(centers, target, g.binWidth[dim])
	index = min(index, last-1)
	var p = (target - centers[index]) / (centers[index+1] - centers[index])
	p = min(max(p, 0), 1)
	dst[index] = 1 - p
	dst[index+1] = p
	return nil
}
