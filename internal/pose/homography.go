package pose

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrHomographyDegenerate is returned when the correspondences do not pin
// down a unique homography, typically because three of the points are
// nearly collinear or two coincide.
var ErrHomographyDegenerate = errors.New("homography degenerate")

// DefaultMinSingularRatio is the smallest accepted ratio between the
// eighth and the first singular value of the normalized DLT system.
const DefaultMinSingularRatio = 1e-9

// CanonicalCorners returns the marker corners in the marker plane, in label
// order: q1=(-1,-1), q2=(-1,1), q3=(1,-1), q4=(1,1).
func CanonicalCorners() [4]r2.Point {
	return [4]r2.Point{
		{X: -1, Y: -1},
		{X: -1, Y: 1},
		{X: 1, Y: -1},
		{X: 1, Y: 1},
	}
}

// EstimateHomography solves for H with dst[i] ~ H * src[i].
//
// At least four correspondences are required. Both point sets are first
// normalized so their centroid is at the origin and their mean distance
// from it is sqrt(2) (Hartley, Multiple View Geometry, Alg. 4.2). The
// homogeneous DLT system, two rows per correspondence, is then solved for
// its null vector with an SVD. When the eighth singular value is smaller
// than minRatio times the largest, the system is rank deficient and
// ErrHomographyDegenerate is returned.
//
// The result is scaled so that H[2][2] is 1 whenever that entry is not
// vanishingly small.
func EstimateHomography(src, dst []r2.Point, minRatio float64) (mgl64.Mat3, error) {
	if len(src) != len(dst) {
		return mgl64.Mat3{}, errors.Errorf("point sets differ in size: %d vs %d", len(src), len(dst))
	}
	if len(src) < 4 {
		return mgl64.Mat3{}, errors.Errorf("need at least 4 correspondences, got %d", len(src))
	}

	nsrc, tsrc, ok := normalizePoints(src)
	if !ok {
		return mgl64.Mat3{}, errors.Wrap(ErrHomographyDegenerate, "source points coincide")
	}
	ndst, tdst, ok := normalizePoints(dst)
	if !ok {
		return mgl64.Mat3{}, errors.Wrap(ErrHomographyDegenerate, "destination points coincide")
	}

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range nsrc {
		q, p := nsrc[i], ndst[i]
		a.SetRow(2*i, []float64{q.X, q.Y, 1, 0, 0, 0, -p.X * q.X, -p.X * q.Y, -p.X})
		a.SetRow(2*i+1, []float64{0, 0, 0, q.X, q.Y, 1, -p.Y * q.X, -p.Y * q.Y, -p.Y})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return mgl64.Mat3{}, errors.Wrap(ErrHomographyDegenerate, "SVD did not converge")
	}
	values := svd.Values(nil)
	if values[0] == 0 || values[7]/values[0] < minRatio {
		return mgl64.Mat3{}, errors.Wrapf(ErrHomographyDegenerate, "singular value ratio %.3g below %.3g",
			values[7]/values[0], minRatio)
	}

	var v mat.Dense
	svd.VTo(&v)
	h := make([]float64, 9)
	for i := range h {
		h[i] = v.At(i, 8)
	}
	hn := mgl64.Mat3FromRows(
		mgl64.Vec3{h[0], h[1], h[2]},
		mgl64.Vec3{h[3], h[4], h[5]},
		mgl64.Vec3{h[6], h[7], h[8]},
	)

	// H = Tdst^-1 * Hn * Tsrc
	hm := tdst.Inv().Mul3(hn).Mul3(tsrc)
	if s := hm.At(2, 2); math.Abs(s) > 1e-12 {
		hm = hm.Mul(1 / s)
	} else {
		hm = hm.Mul(1 / frobenius(hm))
	}
	return hm, nil
}

// normalizePoints translates and scales pts as described in Multiple View
// Geometry, Alg. 11.1, and returns the transformed points with the matrix
// that produced them. ok is false when all points coincide.
func normalizePoints(pts []r2.Point) ([]r2.Point, mgl64.Mat3, bool) {
	n := float64(len(pts))
	var mu r2.Point
	for _, p := range pts {
		mu = mu.Add(p)
	}
	mu = mu.Mul(1 / n)

	d := 0.0
	for _, p := range pts {
		d += p.Sub(mu).Norm() / n
	}
	if d == 0 {
		return nil, mgl64.Mat3{}, false
	}
	scale := math.Sqrt2 / d

	t := mgl64.Mat3FromRows(
		mgl64.Vec3{scale, 0, -scale * mu.X},
		mgl64.Vec3{0, scale, -scale * mu.Y},
		mgl64.Vec3{0, 0, 1},
	)
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = p.Sub(mu).Mul(scale)
	}
	return out, t, true
}

// ApplyHomography maps q through h with the perspective divide.
func ApplyHomography(h mgl64.Mat3, q r2.Point) r2.Point {
	v := h.Mul3x1(mgl64.Vec3{q.X, q.Y, 1})
	return r2.Point{X: v.X() / v.Z(), Y: v.Y() / v.Z()}
}

// HomographyError returns the largest pixel distance between dst[i] and
// src[i] mapped through h.
func HomographyError(h mgl64.Mat3, src, dst []r2.Point) float64 {
	worst := 0.0
	for i := range src {
		if d := ApplyHomography(h, src[i]).Sub(dst[i]).Norm(); d > worst {
			worst = d
		}
	}
	return worst
}

func frobenius(m mgl64.Mat3) float64 {
	s := 0.0
	for _, v := range m {
		s += v * v
	}
	return math.Sqrt(s)
}
