package camera

import (
	"math"

	"github.com/golang/geo/r2"
)

// UndistortOptions bounds the inverse distortion iteration.
type UndistortOptions struct {
	// MaxIterations caps the fixed-point refinement per point.
	MaxIterations int

	// Epsilon stops the iteration once re-distorting the estimate lands
	// within this many pixels of the observed point.
	Epsilon float64
}

// DefaultUndistortOptions returns the stock iteration bounds.
func DefaultUndistortOptions() UndistortOptions {
	return UndistortOptions{MaxIterations: 10, Epsilon: 0.001}
}

// radial returns 1 + k1*r^2 + k2*r^4 + k3*r^6.
func (d Distortion) radial(rr float64) float64 {
	return 1 + ((d.RadialK3*rr+d.RadialK2)*rr+d.RadialK1)*rr
}

// tangential returns the tangential displacement at p.
func (d Distortion) tangential(p r2.Point) r2.Point {
	rr := p.X*p.X + p.Y*p.Y
	return r2.Point{
		X: 2*d.TangentialP1*p.X*p.Y + d.TangentialP2*(rr+2*p.X*p.X),
		Y: d.TangentialP1*(rr+2*p.Y*p.Y) + 2*d.TangentialP2*p.X*p.Y,
	}
}

// Distort applies the forward Brown-Conrady model to a normalized point:
//
//	x_d = x_u * (1 + k1*r^2 + k2*r^4 + k3*r^6) + 2*p1*x_u*y_u + p2*(r^2 + 2*x_u^2)
//	y_d = y_u * (1 + k1*r^2 + k2*r^4 + k3*r^6) + p1*(r^2 + 2*y_u^2) + 2*p2*x_u*y_u
func (d Distortion) Distort(p r2.Point) r2.Point {
	rr := p.X*p.X + p.Y*p.Y
	return p.Mul(d.radial(rr)).Add(d.tangential(p))
}

// DistortPixel maps an ideal pinhole pixel to where the lens images it.
func (m *Model) DistortPixel(p r2.Point) r2.Point {
	return m.Denormalize(m.Distortion.Distort(m.Normalize(p)))
}

// UndistortPixel maps an observed pixel to its ideal pinhole position.
//
// Starting from the normalized observation, each iteration evaluates the
// tangential displacement at the current estimate, subtracts it from the
// observation and divides by the radial factor. The estimate is then
// re-distorted and compared with the observation in pixels; iteration
// stops once the difference is below opts.Epsilon.
//
// When the inverse radial factor goes negative the model has broken down
// (extreme distortion far from the center) and the linearly normalized
// observation is used unchanged.
func (m *Model) UndistortPixel(p r2.Point, opts UndistortOptions) r2.Point {
	d := m.Distortion
	if d.IsZero() {
		return p
	}

	observed := m.Normalize(p)
	est := observed
	for i := 0; i < opts.MaxIterations; i++ {
		icdist := 1 / d.radial(est.X*est.X+est.Y*est.Y)
		if icdist < 0 || math.IsInf(icdist, 0) || math.IsNaN(icdist) {
			est = observed
			break
		}
		est = observed.Sub(d.tangential(est)).Mul(icdist)

		if m.Denormalize(d.Distort(est)).Sub(p).Norm() < opts.Epsilon {
			break
		}
	}
	return m.Denormalize(est)
}

// Undistort corrects each point with UndistortPixel, preserving order.
func (m *Model) Undistort(pts []r2.Point, opts UndistortOptions) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = m.UndistortPixel(p, opts)
	}
	return out
}
