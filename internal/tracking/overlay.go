package tracking

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/golang/geo/r2"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/marker-pose-mcp/internal/imaging"
)

// OverlayOptions controls the debug overlay.
type OverlayOptions struct {
	// QuadColor is the outline color while LOCKED, as "#RRGGBB" or
	// "#RRGGBBAA". While COASTING it is faded toward gray.
	QuadColor string

	// AxisColors are the colors of the marker x, y and z axes.
	AxisColors [3]string

	LineWidth float64
	LabelSize float64

	// AxisLength is the drawn axis length in marker units; the marker
	// half-width is 1.
	AxisLength float64

	// Crop limits the output to the marker outline grown by CropMargin
	// pixels and scaled by CropScale. Ignored when no corners are
	// published.
	Crop       bool
	CropMargin int
	CropScale  float64
}

// DefaultOverlayOptions returns the stock overlay styling.
func DefaultOverlayOptions() OverlayOptions {
	return OverlayOptions{
		QuadColor:  "#00FF00",
		AxisColors: [3]string{"#FF0000", "#00FF00", "#0000FF"},
		LineWidth:  2,
		LabelSize:  14,
		AxisLength: 1,
		CropMargin: 40,
		CropScale:  1,
	}
}

const coastFade = 0.5

// RenderOverlay draws the published tracker output of res on a copy of
// frame: the quad outline in edge order, the corner labels 1-4, the marker
// axes projected through K * Pose and a status banner.
func RenderOverlay(frame image.Image, res *FrameResult, opts OverlayOptions) (*imaging.OverlayResult, error) {
	if frame == nil {
		return nil, fmt.Errorf("nil frame")
	}
	if res == nil {
		return nil, fmt.Errorf("nil frame result")
	}
	if opts.LineWidth <= 0 {
		opts.LineWidth = 1
	}
	if opts.LabelSize <= 0 {
		opts.LabelSize = 12
	}

	quadColor, err := imaging.ParseColor(opts.QuadColor)
	if err != nil {
		return nil, fmt.Errorf("invalid quad color: %w", err)
	}
	if res.Status == StatusCoasting {
		quadColor = fade(quadColor, coastFade)
	}

	canvas := imaging.NewCanvas(frame)
	white := color.NRGBA{255, 255, 255, 255}
	black := color.NRGBA{0, 0, 0, 200}

	published := res.Status != StatusLost
	if published {
		c := res.Corners
		canvas.Polygon([]r2.Point{c[0], c[1], c[3], c[2]}, quadColor, opts.LineWidth)
		for i, p := range c {
			canvas.Dot(p, opts.LineWidth*1.5, quadColor)
			if err := canvas.Label(p, fmt.Sprintf("%d", i+1), opts.LabelSize, white, black); err != nil {
				return nil, err
			}
		}
	}

	if published && !res.Pose.IsZero() && res.Model != nil {
		if err := drawAxes(canvas, res, opts); err != nil {
			return nil, err
		}
	}

	banner := fmt.Sprintf("%s misses=%d", res.Status, res.Misses)
	if res.Estimate != nil {
		banner += fmt.Sprintf(" err=%.3g", res.Estimate.ReprojectionError)
	}
	if err := canvas.Label(r2.Point{X: 8 + float64(len(banner))*opts.LabelSize*0.3, Y: opts.LabelSize}, banner, opts.LabelSize, white, black); err != nil {
		return nil, err
	}

	if !opts.Crop || !published {
		return canvas.Encode()
	}

	rect := r2.RectFromPoints(res.Corners[:]...)
	roi := image.Rect(
		int(math.Floor(rect.X.Lo)), int(math.Floor(rect.Y.Lo)),
		int(math.Ceil(rect.X.Hi))+1, int(math.Ceil(rect.Y.Hi))+1,
	)
	cropped, err := imaging.CropRegion(canvas.Image(), roi, opts.CropMargin, opts.CropScale)
	if err != nil {
		return nil, err
	}
	return imaging.EncodePNG(cropped)
}

func drawAxes(canvas *imaging.Canvas, res *FrameResult, opts OverlayOptions) error {
	k := res.Model.K()
	origin := res.Pose.Camera(k, r2.Point{})
	if origin.Z() <= 0 {
		return nil
	}
	o := res.Pose.Project(k, 0, 0, 0)

	l := opts.AxisLength
	ends := [3][3]float64{{l, 0, 0}, {0, l, 0}, {0, 0, l}}
	for i, e := range ends {
		col, err := imaging.ParseColor(opts.AxisColors[i])
		if err != nil {
			return fmt.Errorf("invalid axis color: %w", err)
		}
		p := res.Pose.Project(k, e[0], e[1], e[2])
		if !finite(p) {
			continue
		}
		canvas.Line(o, p, col, opts.LineWidth)
	}
	return nil
}

// fade blends c toward mid gray by t in Lab space, keeping its alpha.
func fade(c color.Color, t float64) color.Color {
	src, ok := colorful.MakeColor(c)
	if !ok {
		return c
	}
	gray := colorful.Color{R: 0.5, G: 0.5, B: 0.5}
	r, g, b := src.BlendLab(gray, t).Clamped().RGB255()
	_, _, _, a := c.RGBA()
	return color.NRGBA{R: r, G: g, B: b, A: uint8(a >> 8)}
}

func finite(p r2.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
