package pose

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// Decompose recovers a metric pose from a homography mapping canonical
// marker coordinates to undistorted pixels.
//
// H is first normalized by the inverse intrinsics, H' = K^-1 * H, with
// columns h0, h1, h2. The scale d = 1/sqrt(|h0|*|h1|) gives the
// translation t = d*h2; H' is negated if needed so the marker lies in
// front of the camera (t_z > 0).
//
// The rotation is built symmetrically from the bisector of h0 and h1
// rather than by Gram-Schmidt on one column:
//
//	h12 = normalize(h0 + h1)
//	h21 = normalize(h12 x (h0 x h1))
//	R0  = (h12 + h21) / sqrt(2)
//	R1  = (h12 - h21) / sqrt(2)
//	R2  = R0 x R1
//
// so the orthogonalization error is shared evenly between R0 and R1. The
// returned rotation is orthonormal with determinant +1.
func Decompose(h, invK mgl64.Mat3) (Pose, error) {
	hp := invK.Mul3(h)
	h0, h1, h2 := hp.Col(0), hp.Col(1), hp.Col(2)

	n0, n1 := h0.Len(), h1.Len()
	if n0 == 0 || n1 == 0 {
		return Pose{}, errors.Wrap(ErrHomographyDegenerate, "zero column in metric homography")
	}
	d := 1 / math.Sqrt(n0*n1)

	if h2.Z() < 0 {
		h0, h1, h2 = h0.Mul(-1), h1.Mul(-1), h2.Mul(-1)
	}
	t := h2.Mul(d)

	normal := h0.Cross(h1)
	if normal.Len() == 0 {
		return Pose{}, errors.Wrap(ErrHomographyDegenerate, "parallel columns in metric homography")
	}
	h12 := h0.Add(h1).Normalize()
	h21 := h12.Cross(normal).Normalize()

	r0 := h12.Add(h21).Mul(1 / math.Sqrt2)
	r1 := h12.Sub(h21).Mul(1 / math.Sqrt2)
	r2v := r0.Cross(r1)

	return NewPose(mgl64.Mat3FromCols(r0, r1, r2v), t), nil
}

// AnchorScale rescales p so that K * p * (q, 0, 1) has a third component
// of exactly 1 for the anchor correspondence. With a consistent pose the
// first two components then equal the anchor pixel, which is the scale
// AlgebraicError pins during refinement.
func AnchorScale(p Pose, k mgl64.Mat3, q r2.Point) (Pose, error) {
	z := p.Camera(k, q).Z()
	if math.Abs(z) < 1e-12 {
		return Pose{}, errors.Wrap(ErrHomographyDegenerate, "anchor corner projects to infinity")
	}
	return p.Scale(1 / z), nil
}
