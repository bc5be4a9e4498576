package camera

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// ErrInvalidModel is returned by CheckValid for unusable calibrations.
var ErrInvalidModel = errors.New("invalid camera model")

// Intrinsics holds the pinhole parameters of a calibrated camera, measured
// at the calibration resolution.
type Intrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// Distortion holds Brown-Conrady lens coefficients: three radial and two
// tangential.
type Distortion struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// IsZero reports whether every coefficient is zero.
func (d Distortion) IsZero() bool {
	return d == Distortion{}
}

// Model is a calibrated camera. Models are treated as immutable once
// published; ScaledTo returns a new value.
type Model struct {
	Intrinsics Intrinsics `json:"intrinsic_parameters"`
	Distortion Distortion `json:"distortion"`
}

// DefaultModel returns the reference calibration of an 800x600 webcam.
func DefaultModel() *Model {
	return &Model{
		Intrinsics: Intrinsics{
			Width:  800,
			Height: 600,
			Fx:     776.39107688,
			Fy:     770.19292802,
			Ppx:    346.33206594,
			Ppy:    315.46822203,
		},
		Distortion: Distortion{
			RadialK1:     -0.358177671,
			RadialK2:     0.558704262,
			RadialK3:     -0.893211088,
			TangentialP1: 8.46171348e-4,
			TangentialP2: -4.12405134e-3,
		},
	}
}

// CheckValid checks that the intrinsics can be used for projection.
func (m *Model) CheckValid() error {
	if m == nil {
		return errors.Wrap(ErrInvalidModel, "model not provided")
	}
	in := m.Intrinsics
	if in.Width <= 0 || in.Height <= 0 {
		return errors.Wrapf(ErrInvalidModel, "invalid size (%d, %d)", in.Width, in.Height)
	}
	if in.Fx <= 0 {
		return errors.Wrapf(ErrInvalidModel, "invalid focal length fx = %g", in.Fx)
	}
	if in.Fy <= 0 {
		return errors.Wrapf(ErrInvalidModel, "invalid focal length fy = %g", in.Fy)
	}
	if in.Ppx < 0 || in.Ppx > float64(in.Width) {
		return errors.Wrapf(ErrInvalidModel, "principal point ppx = %g outside image", in.Ppx)
	}
	if in.Ppy < 0 || in.Ppy > float64(in.Height) {
		return errors.Wrapf(ErrInvalidModel, "principal point ppy = %g outside image", in.Ppy)
	}
	return nil
}

// K returns the intrinsic matrix
//
//	| fx  0  ppx |
//	|  0  fy ppy |
//	|  0  0   1  |
func (m *Model) K() mgl64.Mat3 {
	in := m.Intrinsics
	return mgl64.Mat3FromRows(
		mgl64.Vec3{in.Fx, 0, in.Ppx},
		mgl64.Vec3{0, in.Fy, in.Ppy},
		mgl64.Vec3{0, 0, 1},
	)
}

// InvK returns the inverse of K in closed form.
func (m *Model) InvK() mgl64.Mat3 {
	in := m.Intrinsics
	return mgl64.Mat3FromRows(
		mgl64.Vec3{1 / in.Fx, 0, -in.Ppx / in.Fx},
		mgl64.Vec3{0, 1 / in.Fy, -in.Ppy / in.Fy},
		mgl64.Vec3{0, 0, 1},
	)
}

// ScaledTo returns the model rescaled to a frame of width x height pixels.
// Focal lengths and the principal point scale per axis; distortion
// coefficients act on normalized coordinates and are unchanged.
func (m *Model) ScaledTo(width, height int) *Model {
	in := m.Intrinsics
	if (in.Width == width && in.Height == height) || in.Width == 0 || in.Height == 0 {
		out := *m
		return &out
	}
	sx := float64(width) / float64(in.Width)
	sy := float64(height) / float64(in.Height)
	return &Model{
		Intrinsics: Intrinsics{
			Width:  width,
			Height: height,
			Fx:     in.Fx * sx,
			Fy:     in.Fy * sy,
			Ppx:    in.Ppx * sx,
			Ppy:    in.Ppy * sy,
		},
		Distortion: m.Distortion,
	}
}

// Normalize maps a pixel to normalized image coordinates with InvK.
func (m *Model) Normalize(p r2.Point) r2.Point {
	in := m.Intrinsics
	return r2.Point{X: (p.X - in.Ppx) / in.Fx, Y: (p.Y - in.Ppy) / in.Fy}
}

// Denormalize maps normalized image coordinates back to a pixel with K.
func (m *Model) Denormalize(p r2.Point) r2.Point {
	in := m.Intrinsics
	return r2.Point{X: p.X*in.Fx + in.Ppx, Y: p.Y*in.Fy + in.Ppy}
}
