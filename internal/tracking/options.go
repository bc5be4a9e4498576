package tracking

import (
	"github.com/ironsheep/marker-pose-mcp/internal/camera"
	"github.com/ironsheep/marker-pose-mcp/internal/config"
	"github.com/ironsheep/marker-pose-mcp/internal/detection"
	"github.com/ironsheep/marker-pose-mcp/internal/imaging"
	"github.com/ironsheep/marker-pose-mcp/internal/pose"
)

// Options gathers the settings of every pipeline stage.
type Options struct {
	Binarize  imaging.BinarizeOptions
	Trace     detection.TraceOptions
	Fit       detection.FitOptions
	Undistort camera.UndistortOptions
	Refine    pose.RefineOptions

	// MinSingularRatio is the homography conditioning limit.
	MinSingularRatio float64

	// BlendWeight is the share of the previous pose in the LM starting
	// point.
	BlendWeight float64

	// Orthonormalize projects the refined rotation block back onto a
	// scaled rotation before publishing.
	Orthonormalize bool

	CoastFrames int
}

// DefaultOptions returns the stock settings.
func DefaultOptions() Options {
	return OptionsFromTuning(config.EmptyTuningConfig())
}

// OptionsFromTuning resolves a tuning document, falling back to defaults
// for every field it leaves unset.
func OptionsFromTuning(cfg *config.TuningConfig) Options {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return Options{
		Binarize: imaging.BinarizeOptions{
			Threshold:     cfg.GetThreshold(),
			BlurSigma:     cfg.GetBlurSigma(),
			AutoThreshold: cfg.GetAutoThreshold(),
		},
		Trace: detection.TraceOptions{
			ScanDivisions: cfg.GetScanDivisions(),
			MaxIterations: cfg.GetMaxTraceIterations(),
			MinLength:     cfg.GetMinContourLength(),
		},
		Fit: detection.FitOptions{
			EdgeTolerance:    cfg.GetEdgeTolerance(),
			MaxAngleCos:      cfg.GetMaxAngleCos(),
			OrientationRatio: cfg.GetOrientationSampleRatio(),
		},
		Undistort: camera.UndistortOptions{
			MaxIterations: cfg.GetUndistortIterations(),
			Epsilon:       cfg.GetUndistortEpsilon(),
		},
		Refine: pose.RefineOptions{
			MaxIterations:    cfg.GetLMIterations(),
			Epsilon:          cfg.GetLMEpsilon(),
			InitialLambdaLog: cfg.GetLMInitialLambdaLog(),
			LambdaLogBound:   cfg.GetLMLambdaLogBound(),
		},
		MinSingularRatio: cfg.GetHomographyMinSingularRatio(),
		BlendWeight:      cfg.GetBlendWeight(),
		Orthonormalize:   cfg.GetOrthonormalize(),
		CoastFrames:      cfg.GetCoastFrames(),
	}
}
