package tracking

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/marker-pose-mcp/internal/camera"
	"github.com/ironsheep/marker-pose-mcp/internal/config"
	"github.com/ironsheep/marker-pose-mcp/internal/detection"
	"github.com/ironsheep/marker-pose-mcp/internal/imaging"
	"github.com/ironsheep/marker-pose-mcp/internal/pose"
)

// squareBorderFrame draws a black square outline spanning min..max on both
// axes, inclusive, with the given border thickness.
func squareBorderFrame(width, height, min, max, thickness int) *imaging.BinaryImage {
	bin := imaging.NewBinaryImage(width, height)
	bin.FillRect(image.Rect(min, min, max+1, max+1), imaging.Black)
	bin.FillRect(image.Rect(min+thickness, min+thickness, max+1-thickness, max+1-thickness), imaging.White)
	return bin
}

// tiltedBorderFrame renders a square marker outline seen under pose p: a
// pixel is black when it maps back onto the marker plane with
// inner <= max(|x|, |y|) <= 1.
func tiltedBorderFrame(width, height int, k mgl64.Mat3, p pose.Pose, inner float64) *imaging.BinaryImage {
	inv := pose.HomographyFromPose(p, k).Inv()
	bin := imaging.NewBinaryImage(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := inv.Mul3x1(mgl64.Vec3{float64(x), float64(y), 1})
			if v.Z() == 0 {
				continue
			}
			a := math.Max(math.Abs(v.X()/v.Z()), math.Abs(v.Y()/v.Z()))
			if a >= inner && a <= 1 {
				bin.Set(x, y, imaging.Black)
			}
		}
	}
	return bin
}

func idealCamera() *camera.Model {
	return &camera.Model{
		Intrinsics: camera.Intrinsics{
			Width:  640,
			Height: 480,
			Fx:     600,
			Fy:     600,
			Ppx:    320,
			Ppy:    240,
		},
	}
}

func newTestPipeline(t *testing.T, m *camera.Model) *Pipeline {
	t.Helper()
	return NewPipeline(DefaultOptions(), camera.NewStore(m), zerolog.Nop())
}

func assertCornersNear(t *testing.T, want []r2.Point, got [4]r2.Point, tol float64) {
	t.Helper()
	for _, w := range want {
		best := math.Inf(1)
		for _, g := range got {
			best = math.Min(best, g.Sub(w).Norm())
		}
		assert.LessOrEqual(t, best, tol, "no detected corner near %v in %v", w, got)
	}
}

func TestProcessFrame_EndToEnd(t *testing.T) {
	p := newTestPipeline(t, idealCamera())
	state := NewState(DefaultCoastFrames)

	res := p.ProcessFrame(state, squareBorderFrame(640, 480, 100, 300, 10))
	require.NoError(t, res.Err)
	require.True(t, res.Found)
	require.NotNil(t, res.Estimate)

	assert.Equal(t, StatusLost, res.Previous)
	assert.Equal(t, StatusLocked, res.Status)
	assert.Equal(t, StatusLocked, state.Status)

	assertCornersNear(t, []r2.Point{
		{X: 100, Y: 100}, {X: 300, Y: 100}, {X: 100, Y: 300}, {X: 300, Y: 300},
	}, res.Corners, 2)

	// The homography maps each canonical corner onto its labeled corner.
	est := res.Estimate
	canon := pose.CanonicalCorners()
	for i, q := range canon {
		got := pose.ApplyHomography(est.Homography, q)
		assert.Less(t, got.Sub(res.Corners[i]).Norm(), 1.0, "corner %d", i+1)
	}
	assert.Less(t, est.HomographyError, 1.0)

	// The fronto-parallel square is reproduced exactly by the pose.
	assert.Greater(t, est.Pose.T().Z(), 0.0)
	assert.Less(t, est.ReprojectionError, 1e-3)
	assert.Less(t, est.OrthonormalityError, 1e-6)
	assert.False(t, est.Blended)
	assert.Equal(t, est.Pose, state.Pose)
	assert.Equal(t, est.Pose, res.Pose)

	for i, q := range canon {
		px := res.Pose.Project(res.Model.K(), q.X, q.Y, 0)
		assert.InDelta(t, res.Corners[i].X, px.X, 0.05, "corner %d", i+1)
		assert.InDelta(t, res.Corners[i].Y, px.Y, 0.05, "corner %d", i+1)
	}
}

func TestProcessFrame_CoastThenLose(t *testing.T) {
	p := newTestPipeline(t, idealCamera())
	state := NewState(DefaultCoastFrames)

	locked := p.ProcessFrame(state, squareBorderFrame(640, 480, 100, 300, 10))
	require.True(t, locked.Found)

	blank := imaging.NewBinaryImage(640, 480)
	for i := 1; i <= 20; i++ {
		res := p.ProcessFrame(state, blank)
		require.False(t, res.Found)
		assert.True(t, errors.Is(res.Err, detection.ErrNoCandidate))
		assert.Nil(t, res.Detection)
		assert.Equal(t, StatusCoasting, res.Status, "miss %d", i)
		assert.Equal(t, i, res.Misses)
		assert.Equal(t, locked.Corners, res.Corners, "miss %d", i)
		assert.Equal(t, locked.Pose, res.Pose, "miss %d", i)
	}

	res := p.ProcessFrame(state, blank)
	assert.Equal(t, StatusCoasting, res.Previous)
	assert.Equal(t, StatusLost, res.Status)
	assert.Equal(t, 21, res.Misses)
	assert.True(t, res.Pose.IsZero())
	assert.Equal(t, [4]r2.Point{}, res.Corners)
}

func TestProcessFrame_ReacquireBlends(t *testing.T) {
	p := newTestPipeline(t, idealCamera())
	state := NewState(DefaultCoastFrames)
	frame := squareBorderFrame(640, 480, 100, 300, 10)

	first := p.ProcessFrame(state, frame)
	require.True(t, first.Found)

	p.ProcessFrame(state, imaging.NewBinaryImage(640, 480))
	require.Equal(t, StatusCoasting, state.Status)

	again := p.ProcessFrame(state, frame)
	require.True(t, again.Found)
	assert.Equal(t, StatusCoasting, again.Previous)
	assert.Equal(t, StatusLocked, again.Status)
	assert.Equal(t, 0, again.Misses)
	assert.True(t, again.Estimate.Blended)
	assert.Less(t, again.Estimate.ReprojectionError, 1e-3)

	// A shifted marker blends toward the old pose; refinement must not
	// make the start worse.
	moved := p.ProcessFrame(state, squareBorderFrame(640, 480, 120, 310, 10))
	require.True(t, moved.Found)
	assert.True(t, moved.Estimate.Blended)
	assert.LessOrEqual(t, moved.Estimate.Refinement.FinalError, moved.Estimate.Refinement.InitialError)
	assert.LessOrEqual(t, moved.Estimate.ReprojectionError, moved.Estimate.Refinement.InitialPixelError)
}

func TestProcessFrame_TiltedMarker(t *testing.T) {
	m := idealCamera()
	k := m.K()
	q := pose.CanonicalCorners()

	for _, tilt := range []float64{0.3, 0.5} {
		truth := pose.NewPose(mgl64.Rotate3DX(tilt).Mul3(mgl64.Rotate3DY(0.2)), mgl64.Vec3{0.1, -0.2, 6})
		p := newTestPipeline(t, m)
		state := NewState(DefaultCoastFrames)

		res := p.ProcessFrame(state, tiltedBorderFrame(640, 480, k, truth, 0.9))
		require.True(t, res.Found, "tilt %g failure: %s", tilt, res.Failure())

		var want []r2.Point
		for _, c := range q {
			want = append(want, truth.Project(k, c.X, c.Y, 0))
		}
		assertCornersNear(t, want, res.Corners, 2)

		// The published pose lands every canonical corner on its pixel.
		est := res.Estimate
		for i, c := range q {
			got := res.Pose.Project(k, c.X, c.Y, 0)
			assert.Less(t, got.Sub(est.Undistorted[i]).Norm(), 1.0, "tilt %g corner %d", tilt, i+1)
		}
		assert.Less(t, est.ReprojectionError, 1.0, "tilt %g", tilt)
		assert.LessOrEqual(t, est.ReprojectionError, est.Refinement.InitialPixelError, "tilt %g", tilt)

		// The plane normal matches the rendered one.
		normal := est.Raw.R().Col(2).Normalize()
		assert.Greater(t, math.Abs(normal.Dot(truth.R().Col(2))), 0.98, "tilt %g", tilt)
	}
}

func TestProcessFrame_QuadFitFailureIsAMiss(t *testing.T) {
	p := newTestPipeline(t, idealCamera())
	state := NewState(DefaultCoastFrames)
	require.True(t, p.ProcessFrame(state, squareBorderFrame(640, 480, 100, 300, 10)).Found)

	// A filled disc traces fine but is not a quadrilateral.
	disc := imaging.NewBinaryImage(640, 480)
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			dx, dy := float64(x-320), float64(y-240)
			if dx*dx+dy*dy <= 120*120 {
				disc.Set(x, y, imaging.Black)
			}
		}
	}

	res := p.ProcessFrame(state, disc)
	assert.False(t, res.Found)
	assert.True(t, errors.Is(res.Err, detection.ErrQuadFit), "got %v", res.Err)
	assert.NotEmpty(t, res.Failure())
	assert.Equal(t, StatusCoasting, res.Status)
}

func TestProcessFrame_DistortedLens(t *testing.T) {
	p := newTestPipeline(t, camera.DefaultModel())
	state := NewState(DefaultCoastFrames)

	res := p.ProcessFrame(state, squareBorderFrame(640, 480, 100, 300, 10))
	require.True(t, res.Found, "failure: %s", res.Failure())

	// The calibration is rescaled from 800x600 to the frame size.
	assert.Equal(t, 640, res.Model.Intrinsics.Width)
	assert.InDelta(t, 776.39107688*0.8, res.Model.Intrinsics.Fx, 1e-9)

	est := res.Estimate
	moved := false
	for i := range est.Undistorted {
		if est.Undistorted[i].Sub(res.Corners[i]).Norm() > 0.5 {
			moved = true
		}
	}
	assert.True(t, moved, "undistortion left every corner in place")
	assert.Less(t, est.HomographyError, 1.0)
	assert.Greater(t, est.Pose.T().Z(), 0.0)
	assert.LessOrEqual(t, est.Refinement.FinalError, est.Refinement.InitialError)
}

func TestProcessFrame_CalibrationSwap(t *testing.T) {
	store := camera.NewStore(idealCamera())
	p := NewPipeline(DefaultOptions(), store, zerolog.Nop())
	state := NewState(DefaultCoastFrames)
	frame := squareBorderFrame(640, 480, 100, 300, 10)

	before := p.ProcessFrame(state, frame)
	require.True(t, before.Found)
	assert.Equal(t, 600.0, before.Model.Intrinsics.Fx)

	wide := idealCamera()
	wide.Intrinsics.Fx, wide.Intrinsics.Fy = 300, 300
	_, err := store.Swap(wide)
	require.NoError(t, err)

	after := p.ProcessFrame(state, frame)
	require.True(t, after.Found)
	assert.Equal(t, 300.0, after.Model.Intrinsics.Fx)

	// Halving the focal length halves the recovered depth.
	zBefore := before.Estimate.Raw.T().Z() / before.Estimate.Raw.R().Col(0).Len()
	zAfter := after.Estimate.Raw.T().Z() / after.Estimate.Raw.R().Col(0).Len()
	assert.InDelta(t, zBefore/2, zAfter, 1e-6)
}

func TestProcessFrame_FromColorFrame(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			ink := color.RGBA{230, 230, 230, 255}
			inSquare := x >= 100 && x <= 300 && y >= 100 && y <= 300
			inHole := x >= 110 && x <= 290 && y >= 110 && y <= 290
			if inSquare && !inHole {
				ink = color.RGBA{20, 20, 20, 255}
			}
			frame.Set(x, y, ink)
		}
	}

	p := newTestPipeline(t, idealCamera())
	bin, _, err := imaging.Binarize(frame, p.Options().Binarize)
	require.NoError(t, err)

	state := NewState(DefaultCoastFrames)
	res := p.ProcessFrame(state, bin)
	require.True(t, res.Found, "failure: %s", res.Failure())
	assertCornersNear(t, []r2.Point{
		{X: 100, Y: 100}, {X: 300, Y: 100}, {X: 100, Y: 300}, {X: 300, Y: 300},
	}, res.Corners, 2)
}

func TestEstimate_Degenerate(t *testing.T) {
	p := newTestPipeline(t, idealCamera())

	collinear := [4]r2.Point{{X: 0, Y: 0}, {X: 10, Y: 10}, {X: 20, Y: 20}, {X: 30, Y: 30}}
	_, err := p.Estimate(collinear, idealCamera(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pose.ErrHomographyDegenerate), "got %v", err)
}

func TestEstimate_Orthonormalize(t *testing.T) {
	tuning, err := config.ParseTuningConfig([]byte(`{"orthonormalize": true}`))
	require.NoError(t, err)
	opts := OptionsFromTuning(tuning)
	require.True(t, opts.Orthonormalize)

	p := NewPipeline(opts, camera.NewStore(idealCamera()), zerolog.Nop())

	// A mildly perspective quad.
	corners := [4]r2.Point{{X: 305, Y: 298}, {X: 298, Y: 102}, {X: 96, Y: 304}, {X: 103, Y: 97}}
	est, err := p.Estimate(corners, idealCamera(), nil)
	require.NoError(t, err)
	assert.Less(t, est.OrthonormalityError, 1e-9)
}

func TestOptionsFromTuning(t *testing.T) {
	def := DefaultOptions()
	assert.Equal(t, detection.DefaultTraceOptions(), def.Trace)
	assert.Equal(t, detection.DefaultFitOptions(), def.Fit)
	assert.Equal(t, camera.DefaultUndistortOptions(), def.Undistort)
	assert.Equal(t, pose.DefaultRefineOptions(), def.Refine)
	assert.Equal(t, imaging.DefaultBinarizeOptions(), def.Binarize)
	assert.Equal(t, pose.DefaultMinSingularRatio, def.MinSingularRatio)
	assert.Equal(t, 0.6, def.BlendWeight)
	assert.Equal(t, DefaultCoastFrames, def.CoastFrames)
	assert.False(t, def.Orthonormalize)

	assert.Equal(t, def, OptionsFromTuning(nil))

	tuning, err := config.ParseTuningConfig([]byte(`{"scan_divisions": 8, "coast_frames": 3, "lm_iterations": 5}`))
	require.NoError(t, err)
	opts := OptionsFromTuning(tuning)
	assert.Equal(t, 8, opts.Trace.ScanDivisions)
	assert.Equal(t, 3, opts.CoastFrames)
	assert.Equal(t, 5, opts.Refine.MaxIterations)
}
