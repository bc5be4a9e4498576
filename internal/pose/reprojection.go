package pose

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
)

// PerspectiveError returns the mean squared pixel distance between dst[i]
// and src[i] projected through K*M with the perspective divide. Unlike
// AlgebraicError it does not depend on the overall scale of the pose.
func PerspectiveError(p Pose, k mgl64.Mat3, src, dst []r2.Point) float64 {
	if len(src) == 0 {
		return 0
	}
	e := 0.0
	for i := range src {
		d := p.Project(k, src[i].X, src[i].Y, 0).Sub(dst[i])
		e += d.Dot(d)
	}
	return e / float64(len(src))
}

// HomographyFromPose returns the homography K*[r0 r1 t] that maps marker
// plane points to pixels for pose p.
func HomographyFromPose(p Pose, k mgl64.Mat3) mgl64.Mat3 {
	return k.Mul3(mgl64.Mat3FromCols(p.M.Col(0), p.M.Col(1), p.M.Col(3)))
}
