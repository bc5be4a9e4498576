package pose

import (
	"encoding/json"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
)

// Pose is the 3x4 marker-to-camera matrix [R | t].
//
// A marker-plane point (x, y) maps to the camera frame as
// M * (x, y, 0, 1). The rotation block is orthonormal when the pose comes
// straight from Decompose; after AnchorScale and Refine it carries a
// common scale factor and may drift slightly from orthonormality.
type Pose struct {
	M mgl64.Mat3x4
}

// NewPose assembles a pose from rotation columns and a translation.
func NewPose(r mgl64.Mat3, t mgl64.Vec3) Pose {
	return Pose{M: mgl64.Mat3x4FromCols(r.Col(0), r.Col(1), r.Col(2), t)}
}

// R returns the rotation block.
func (p Pose) R() mgl64.Mat3 {
	return mgl64.Mat3FromCols(p.M.Col(0), p.M.Col(1), p.M.Col(2))
}

// T returns the translation column.
func (p Pose) T() mgl64.Vec3 {
	return p.M.Col(3)
}

// IsZero reports whether every entry is zero, the published pose while the
// marker is lost.
func (p Pose) IsZero() bool {
	return p.M == mgl64.Mat3x4{}
}

// Scale multiplies every entry by s.
func (p Pose) Scale(s float64) Pose {
	return Pose{M: p.M.Mul(s)}
}

// Camera maps a marker-plane point to homogeneous camera coordinates
// K * M * (x, y, 0, 1).
func (p Pose) Camera(k mgl64.Mat3, q r2.Point) mgl64.Vec3 {
	return k.Mul3x1(p.M.Mul4x1(mgl64.Vec4{q.X, q.Y, 0, 1}))
}

// Project maps a marker-plane point to a pixel with the perspective divide.
// z is the marker-plane height above the marker, zero for points on it.
func (p Pose) Project(k mgl64.Mat3, x, y, z float64) r2.Point {
	v := k.Mul3x1(p.M.Mul4x1(mgl64.Vec4{x, y, z, 1}))
	return r2.Point{X: v.X() / v.Z(), Y: v.Y() / v.Z()}
}

// Blend returns w*prev + (1-w)*next.
func Blend(prev, next Pose, w float64) Pose {
	return Pose{M: prev.M.Mul(w).Add(next.M.Mul(1 - w))}
}

// Rows returns the matrix as three rows of four.
func (p Pose) Rows() [3][4]float64 {
	var rows [3][4]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			rows[r][c] = p.M.At(r, c)
		}
	}
	return rows
}

// MarshalJSON encodes the pose as three rows of four numbers.
func (p Pose) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Rows())
}

// UnmarshalJSON decodes the row form written by MarshalJSON.
func (p *Pose) UnmarshalJSON(data []byte) error {
	var rows [3][4]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			p.M.Set(r, c, rows[r][c])
		}
	}
	return nil
}
