package pose

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Orthonormalize replaces the rotation block of p with its nearest scaled
// rotation.
//
// The block is factored as U*S*Vt; the polar factor U*Vt (with the sign of
// the last singular direction flipped if needed to keep det = +1) is
// scaled by the mean singular value so the overall scale of the pose, and
// therefore its projection, is preserved. The translation is unchanged.
func Orthonormalize(p Pose) (Pose, error) {
	r := p.R()
	a := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			a.Set(i, j, r.At(i, j))
		}
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return p, errors.New("rotation SVD did not converge")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)
	scale := (s[0] + s[1] + s[2]) / 3
	if scale == 0 {
		return p, errors.New("zero rotation block")
	}

	var polar mat.Dense
	polar.Mul(&u, v.T())
	if mat.Det(&polar) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		polar.Mul(&u, v.T())
	}

	var out mgl64.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Set(i, j, polar.At(i, j)*scale)
		}
	}
	return NewPose(out, p.T()), nil
}

// OrthonormalityError returns the Frobenius norm of Rt*R/c - I, where c is
// the mean squared column length, as a measure of how far the rotation
// block has drifted from a scaled rotation.
func OrthonormalityError(p Pose) float64 {
	r := p.R()
	rtr := r.Transpose().Mul3(r)
	c := rtr.Trace() / 3
	if c == 0 {
		return 0
	}
	return frobenius(rtr.Mul(1 / c).Sub(mgl64.Ident3()))
}
