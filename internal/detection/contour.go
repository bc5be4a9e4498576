package detection

import (
	"image"

	"github.com/pkg/errors"

	"github.com/ironsheep/marker-pose-mcp/internal/imaging"
)

var (
	// ErrNoCandidate is returned when no scanned row contains a
	// white-to-black transition that could start a trace.
	ErrNoCandidate = errors.New("no contour candidate found")

	// ErrTraceFailed is returned when every boundary walk in the frame
	// failed. The wrapped message names the last failure: the walk hit the
	// image border, got stuck, or ran out of iterations.
	ErrTraceFailed = errors.New("contour trace failed")

	// ErrContourTooShort is returned when the only closed contours found
	// were shorter than the minimum length.
	ErrContourTooShort = errors.New("contour too short")
)

// Contour is an ordered boundary of pixel coordinates. The last point is
// adjacent to the first; the first point is not repeated.
type Contour []image.Point

// TraceOptions bounds the contour search.
type TraceOptions struct {
	// ScanDivisions sets the row stride to Height/ScanDivisions. The marker
	// is assumed to cover at least that much of the frame height.
	ScanDivisions int

	// MaxIterations caps the number of steps of a single boundary walk.
	MaxIterations int

	// MinLength rejects closed contours with fewer points.
	MinLength int
}

// DefaultTraceOptions returns the stock tracer bounds.
func DefaultTraceOptions() TraceOptions {
	return TraceOptions{
		ScanDivisions: 20,
		MaxIterations: 5000,
		MinLength:     200,
	}
}

// heading is one of the four walk directions, numbered clockwise.
type heading int

const (
	headUp heading = iota
	headRight
	headDown
	headLeft
)

var headingStep = [4]image.Point{
	headUp:    {0, -1},
	headRight: {1, 0},
	headDown:  {0, 1},
	headLeft:  {-1, 0},
}

func (h heading) left() heading  { return (h + 3) % 4 }
func (h heading) right() heading { return (h + 1) % 4 }

// Trace scans img for the first closed black/white boundary and returns it.
//
// Rows are scanned top to bottom at a stride of Height/ScanDivisions, each
// row left to right. A white cell followed by a black cell, neither yet
// visited, starts a boundary walk. The first walk that closes on its start
// cell with at least MinLength points is returned; failed or short walks
// leave their visited marks behind and the scan continues.
//
// # Boundary Walk
//
// The walk is a four-heading variant of Pavlidis' algorithm. Standing on a
// black cell with the current heading, three cells are probed in order:
//
//  1. front-left: if black, step there and turn left
//  2. front: if black, step there
//  3. front-right: if black, step there
//
// White probes are marked visited. When all three are white the heading
// turns right and the probes repeat; a fourth turn means the walk is stuck
// on an isolated cell. The walk fails when it reaches the image border or
// exceeds MaxIterations.
func Trace(img *imaging.BinaryImage, opts TraceOptions) (Contour, error) {
	width, height := img.Width(), img.Height()
	if width < 3 || height < 3 {
		return nil, ErrNoCandidate
	}

	divisions := opts.ScanDivisions
	if divisions <= 0 {
		divisions = DefaultTraceOptions().ScanDivisions
	}
	stride := height / divisions
	if stride < 1 {
		stride = 1
	}

	visited := imaging.NewVisitedSet(width, height)
	var lastErr error

	for y := stride; y < height-1; y += stride {
		for x := 1; x < width-1; x++ {
			if img.At(x-1, y) != imaging.White || visited.Has(x-1, y) {
				continue
			}
			if img.At(x, y) != imaging.Black || visited.Has(x, y) {
				continue
			}

			contour, err := walkBoundary(img, visited, image.Point{X: x, Y: y}, opts.MaxIterations)
			if err != nil {
				lastErr = err
				continue
			}
			if len(contour) < opts.MinLength {
				lastErr = errors.Wrapf(ErrContourTooShort, "%d points at (%d,%d), need %d",
					len(contour), x, y, opts.MinLength)
				continue
			}
			return contour, nil
		}
	}

	if lastErr == nil {
		return nil, ErrNoCandidate
	}
	return nil, lastErr
}

// walkBoundary follows the boundary that starts at start, entered from the
// white cell on its left while heading up.
func walkBoundary(img *imaging.BinaryImage, visited *imaging.VisitedSet, start image.Point, maxIterations int) (Contour, error) {
	width, height := img.Width(), img.Height()
	onBorder := func(p image.Point) bool {
		return p.X <= 0 || p.Y <= 0 || p.X >= width-1 || p.Y >= height-1
	}

	visited.Mark(start.X-1, start.Y)
	visited.Mark(start.X, start.Y)

	contour := Contour{start}
	pos := start
	dir := headUp

	for iter := 0; ; iter++ {
		if iter >= maxIterations {
			return nil, errors.Wrapf(ErrTraceFailed, "exceeded %d iterations from (%d,%d)", maxIterations, start.X, start.Y)
		}
		if onBorder(pos) {
			return nil, errors.Wrapf(ErrTraceFailed, "touched image border at (%d,%d)", pos.X, pos.Y)
		}

		moved := false
		for turns := 0; turns < 4 && !moved; turns++ {
			front := pos.Add(headingStep[dir])
			frontLeft := front.Add(headingStep[dir.left()])
			frontRight := front.Add(headingStep[dir.right()])

			switch {
			case img.IsBlack(frontLeft.X, frontLeft.Y):
				pos = frontLeft
				dir = dir.left()
				moved = true
			case img.IsBlack(front.X, front.Y):
				visited.Mark(frontLeft.X, frontLeft.Y)
				pos = front
				moved = true
			case img.IsBlack(frontRight.X, frontRight.Y):
				visited.Mark(frontLeft.X, frontLeft.Y)
				visited.Mark(front.X, front.Y)
				pos = frontRight
				moved = true
			default:
				visited.Mark(frontLeft.X, frontLeft.Y)
				visited.Mark(front.X, front.Y)
				visited.Mark(frontRight.X, frontRight.Y)
				dir = dir.right()
			}
		}
		if !moved {
			return nil, errors.Wrapf(ErrTraceFailed, "stuck at (%d,%d)", pos.X, pos.Y)
		}

		if pos == start {
			return contour, nil
		}
		visited.Mark(pos.X, pos.Y)
		contour = append(contour, pos)
	}
}
