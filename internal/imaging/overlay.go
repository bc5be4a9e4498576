package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/golang/geo/r2"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	fontOnce sync.Once
	font     *truetype.Font
	fontErr  error
)

func labelFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		font, fontErr = truetype.Parse(goregular.TTF)
	})
	return font, fontErr
}

// OverlayResult contains a rendered overlay image.
type OverlayResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Canvas draws annotations on a copy of a frame.
//
// The source frame is never modified. Coordinates are in source pixels;
// drawing outside the frame is clipped.
type Canvas struct {
	dc *gg.Context
}

// NewCanvas returns a canvas initialized with a copy of frame.
func NewCanvas(frame image.Image) *Canvas {
	return &Canvas{dc: gg.NewContextForImage(frame)}
}

// Width returns the canvas width in pixels.
func (c *Canvas) Width() int { return c.dc.Width() }

// Height returns the canvas height in pixels.
func (c *Canvas) Height() int { return c.dc.Height() }

// Line strokes a segment from a to b.
func (c *Canvas) Line(a, b r2.Point, col color.Color, width float64) {
	c.dc.SetColor(col)
	c.dc.SetLineWidth(width)
	c.dc.DrawLine(a.X, a.Y, b.X, b.Y)
	c.dc.Stroke()
}

// Polygon strokes a closed outline through pts in order.
func (c *Canvas) Polygon(pts []r2.Point, col color.Color, width float64) {
	if len(pts) < 2 {
		return
	}
	c.dc.SetColor(col)
	c.dc.SetLineWidth(width)
	c.dc.MoveTo(pts[0].X, pts[0].Y)
	for _, p := range pts[1:] {
		c.dc.LineTo(p.X, p.Y)
	}
	c.dc.ClosePath()
	c.dc.Stroke()
}

// Dot fills a circle of the given radius centered on p.
func (c *Canvas) Dot(p r2.Point, radius float64, col color.Color) {
	c.dc.SetColor(col)
	c.dc.DrawCircle(p.X, p.Y, radius)
	c.dc.Fill()
}

// Label draws text centered on p over a filled background box.
func (c *Canvas) Label(p r2.Point, text string, size float64, fg, bg color.Color) error {
	f, err := labelFont()
	if err != nil {
		return fmt.Errorf("failed to load label font: %w", err)
	}
	c.dc.SetFontFace(truetype.NewFace(f, &truetype.Options{Size: size}))

	w, h := c.dc.MeasureString(text)
	pad := size / 4
	c.dc.SetColor(bg)
	c.dc.DrawRectangle(p.X-w/2-pad, p.Y-h/2-pad, w+2*pad, h+2*pad)
	c.dc.Fill()

	c.dc.SetColor(fg)
	c.dc.DrawStringAnchored(text, p.X, p.Y, 0.5, 0.5)
	return nil
}

// Image returns the canvas contents.
func (c *Canvas) Image() image.Image {
	return c.dc.Image()
}

// Encode renders the canvas as a base64 PNG result.
func (c *Canvas) Encode() (*OverlayResult, error) {
	return EncodePNG(c.dc.Image())
}

// EncodePNG renders img as a base64 PNG result.
func EncodePNG(img image.Image) (*OverlayResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	b := img.Bounds()
	return &OverlayResult{
		Width:       b.Dx(),
		Height:      b.Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// ParseColor parses a hex color string like "#FF0000" or "#FF000080".
// The optional last byte is alpha.
func ParseColor(hex string) (color.Color, error) {
	if len(hex) == 0 {
		return nil, fmt.Errorf("empty color string")
	}
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}

	alpha := uint8(255)
	switch len(hex) {
	case 7:
	case 9:
		a, err := strconv.ParseUint(hex[7:], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid alpha in %q: %w", hex, err)
		}
		alpha = uint8(a)
		hex = hex[:7]
	default:
		return nil, fmt.Errorf("invalid hex color length")
	}

	c, err := colorful.Hex(hex)
	if err != nil {
		return nil, err
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}
