package tracking

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ironsheep/marker-pose-mcp/internal/camera"
	"github.com/ironsheep/marker-pose-mcp/internal/detection"
	"github.com/ironsheep/marker-pose-mcp/internal/imaging"
	"github.com/ironsheep/marker-pose-mcp/internal/pose"
)

// Pipeline runs the per-frame marker pipeline: detection, undistortion,
// homography, decomposition, refinement and the tracker update.
//
// A Pipeline holds no per-frame state. The cross-frame memory lives in the
// State passed to ProcessFrame, and the camera model is read from the
// store once per frame, so a calibration reload takes effect on the next
// frame.
type Pipeline struct {
	opts     Options
	detector *detection.Detector
	cameras  *camera.Store
	logger   zerolog.Logger
}

// NewPipeline creates a pipeline reading calibration from cameras. A nil
// store uses camera.DefaultModel.
func NewPipeline(opts Options, cameras *camera.Store, logger zerolog.Logger) *Pipeline {
	if cameras == nil {
		cameras = camera.NewStore(nil)
	}
	return &Pipeline{
		opts:     opts,
		detector: detection.NewDetector(opts.Trace, opts.Fit, logger),
		cameras:  cameras,
		logger:   logger.With().Str("component", "tracker").Logger(),
	}
}

// Options returns the pipeline settings.
func (p *Pipeline) Options() Options { return p.opts }

// Cameras returns the calibration store the pipeline reads.
func (p *Pipeline) Cameras() *camera.Store { return p.cameras }

// Detector returns the detection stage.
func (p *Pipeline) Detector() *detection.Detector { return p.detector }

// Model returns the current calibration scaled to a frame size.
func (p *Pipeline) Model(width, height int) *camera.Model {
	return p.cameras.Load().ScaledTo(width, height)
}

// Estimate is the pose computed from one set of detected corners.
type Estimate struct {
	// Undistorted are the detected corners with lens distortion removed.
	Undistorted [4]r2.Point `json:"undistorted"`

	// Homography maps canonical marker corners to Undistorted.
	Homography mgl64.Mat3 `json:"-"`

	// HomographyError is the largest pixel distance between a canonical
	// corner mapped through Homography and its undistorted corner.
	HomographyError float64 `json:"homography_error"`

	// Raw is the decomposed and anchored pose before blending.
	Raw pose.Pose `json:"raw_pose"`

	// Blended reports whether a previous pose was mixed into the LM
	// starting point.
	Blended bool `json:"blended"`

	Refinement *pose.Refinement `json:"refinement"`

	// Pose is the refined pose, re-orthonormalized if configured.
	Pose pose.Pose `json:"pose"`

	// ReprojectionError is the mean squared pixel error of Pose.
	ReprojectionError float64 `json:"reprojection_error"`

	// OrthonormalityError measures how far the rotation block of Pose is
	// from a scaled rotation.
	OrthonormalityError float64 `json:"orthonormality_error"`
}

// Estimate computes a pose from detected pixel corners in label order.
// prev, when not nil, is blended into the refinement starting point.
// Errors wrap pose.ErrHomographyDegenerate.
func (p *Pipeline) Estimate(corners [4]r2.Point, model *camera.Model, prev *pose.Pose) (*Estimate, error) {
	k := model.K()
	src := pose.CanonicalCorners()
	und := model.Undistort(corners[:], p.opts.Undistort)

	h, err := pose.EstimateHomography(src[:], und, p.opts.MinSingularRatio)
	if err != nil {
		return nil, err
	}

	raw, err := pose.Decompose(h, model.InvK())
	if err != nil {
		return nil, err
	}
	raw, err = pose.AnchorScale(raw, k, src[0])
	if err != nil {
		return nil, err
	}

	est := &Estimate{
		Homography:      h,
		HomographyError: pose.HomographyError(h, src[:], und),
		Raw:             raw,
	}
	copy(est.Undistorted[:], und)

	start := raw
	if prev != nil && !prev.IsZero() {
		start = pose.Blend(*prev, raw, p.opts.BlendWeight)
		est.Blended = true
	}

	ref, err := pose.Refine(start, k, src[:], und, p.opts.Refine)
	if err != nil {
		return nil, errors.Wrap(err, "pose refinement")
	}
	est.Refinement = ref
	est.Pose = ref.Pose

	if p.opts.Orthonormalize {
		ortho, err := pose.Orthonormalize(est.Pose)
		if err != nil {
			p.logger.Warn().Err(err).Msg("orthonormalization failed, publishing raw refined pose")
		} else {
			est.Pose = ortho
		}
	}

	est.ReprojectionError = pose.PerspectiveError(est.Pose, k, src[:], und)
	est.OrthonormalityError = pose.OrthonormalityError(est.Pose)
	return est, nil
}

// FrameResult is the outcome of one ProcessFrame call.
type FrameResult struct {
	// Found reports whether every stage succeeded on this frame.
	Found bool `json:"found"`

	Previous Status `json:"previous_status"`
	Status   Status `json:"status"`
	Misses   int    `json:"misses"`

	// Detection is set when the quad fit succeeded, even if a later stage
	// failed.
	Detection *detection.Detection `json:"detection,omitempty"`

	// Estimate is set when Found is true.
	Estimate *Estimate `json:"estimate,omitempty"`

	// Err is the stage failure that sent the tracker down the miss path.
	Err error `json:"-"`

	// Corners and Pose are what the tracker publishes after this frame.
	Corners [4]r2.Point `json:"corners"`
	Pose    pose.Pose   `json:"pose"`

	// Model is the calibration used for this frame, scaled to its size.
	Model *camera.Model `json:"-"`
}

// Failure returns the stage failure message, or "" when the marker was
// found.
func (r *FrameResult) Failure() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// ProcessFrame runs the full pipeline on one binary frame and updates
// state. Stage failures are not returned as errors: they route the tracker
// through its miss path and are reported in FrameResult.Err.
func (p *Pipeline) ProcessFrame(state *State, bin *imaging.BinaryImage) *FrameResult {
	model := p.Model(bin.Width(), bin.Height())
	res := &FrameResult{Model: model}

	det, err := p.detector.Detect(bin)
	if err == nil {
		res.Detection = det
		var prev *pose.Pose
		if state.HasPose() {
			last := state.Pose
			prev = &last
		}
		res.Estimate, err = p.Estimate(det.Quad.Corners(), model, prev)
	}

	if err != nil {
		res.Err = err
		res.Previous = state.Missed()
	} else {
		res.Found = true
		res.Previous = state.Found(det.Quad.Corners(), res.Estimate.Pose)
	}

	res.Status = state.Status
	res.Misses = state.Misses
	res.Corners = state.Corners
	res.Pose = state.Pose

	if res.Previous != res.Status {
		ev := p.logger.Debug().
			Stringer("from", res.Previous).
			Stringer("to", res.Status).
			Int("misses", state.Misses).
			Uint64("frame", state.Frames)
		if res.Err != nil {
			ev = ev.Err(res.Err)
		}
		ev.Msg("tracker state changed")
	}
	return res
}
