package detection

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/rs/zerolog"

	"github.com/ironsheep/marker-pose-mcp/internal/imaging"
)

// Detector runs the tracer and the quad fitter on a binary frame.
type Detector struct {
	Trace TraceOptions
	Fit   FitOptions

	logger zerolog.Logger
}

// NewDetector returns a detector with the given options. Pass zerolog.Nop()
// to disable logging.
func NewDetector(trace TraceOptions, fit FitOptions, logger zerolog.Logger) *Detector {
	return &Detector{
		Trace:  trace,
		Fit:    fit,
		logger: logger.With().Str("component", "detector").Logger(),
	}
}

// Detection is a marker found in a frame.
type Detection struct {
	Fit

	// ContourLength is the number of boundary points traced.
	ContourLength int `json:"contour_length"`

	// Bounds is the bounding box of the fitted quad.
	Bounds Bounds `json:"bounds"`
}

// Detect traces the first marker boundary in img and fits its corners.
// Errors wrap ErrNoCandidate, ErrTraceFailed, ErrContourTooShort or
// ErrQuadFit.
func (d *Detector) Detect(img *imaging.BinaryImage) (*Detection, error) {
	contour, err := Trace(img, d.Trace)
	if err != nil {
		d.logger.Debug().Err(err).Msg("trace failed")
		return nil, err
	}

	fit, err := FitQuad(img, contour, d.Fit)
	if err != nil {
		d.logger.Debug().Err(err).Int("contour_length", len(contour)).Msg("quad fit failed")
		return nil, err
	}

	d.logger.Debug().
		Int("contour_length", len(contour)).
		Bool("oriented", fit.Oriented).
		Floats64("residuals", fit.Residuals[:]).
		Msg("marker detected")

	return &Detection{
		Fit:           *fit,
		ContourLength: len(contour),
		Bounds:        fit.Quad.Bounds(),
	}, nil
}

func toR2(p image.Point) r2.Point {
	return r2.Point{X: float64(p.X), Y: float64(p.Y)}
}
