package detection

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/ironsheep/marker-pose-mcp/internal/imaging"
)

// ErrQuadFit is returned when a contour cannot be reduced to a convex,
// straight-edged quadrilateral.
var ErrQuadFit = errors.New("quadrilateral fit failed")

// Quad is a marker outline in pixel coordinates.
//
// Corners map to the canonical marker corners q1=(-1,-1), q2=(-1,1),
// q3=(1,-1), q4=(1,1). The outline is traversed P1, P2, P4, P3; P2 and P3
// are the neighbors of P1 and P4 is diagonal to it.
type Quad struct {
	P1 r2.Point `json:"p1"`
	P2 r2.Point `json:"p2"`
	P3 r2.Point `json:"p3"`
	P4 r2.Point `json:"p4"`
}

// Corners returns the corners in label order P1..P4.
func (q Quad) Corners() [4]r2.Point {
	return [4]r2.Point{q.P1, q.P2, q.P3, q.P4}
}

// ring returns the corners in traversal order P1, P2, P4, P3.
func (q Quad) ring() [4]r2.Point {
	return [4]r2.Point{q.P1, q.P2, q.P4, q.P3}
}

func quadFromRing(r [4]r2.Point) Quad {
	return Quad{P1: r[0], P2: r[1], P4: r[2], P3: r[3]}
}

// Edges returns the four outline edges in traversal order:
// P1P2, P2P4, P4P3, P3P1.
func (q Quad) Edges() [4][2]r2.Point {
	r := q.ring()
	var e [4][2]r2.Point
	for i := range r {
		e[i] = [2]r2.Point{r[i], r[(i+1)%4]}
	}
	return e
}

// AngleCosines returns the cosine of the interior angle at P1, P2, P3, P4.
// A perfect square yields zeros.
func (q Quad) AngleCosines() [4]float64 {
	return [4]float64{
		cornerCos(q.P1, q.P2, q.P3),
		cornerCos(q.P2, q.P1, q.P4),
		cornerCos(q.P3, q.P4, q.P1),
		cornerCos(q.P4, q.P2, q.P3),
	}
}

// Cross returns the z component of (P2-P1) x (P3-P1). Fitted quads always
// have a negative value.
func (q Quad) Cross() float64 {
	return q.P2.Sub(q.P1).Cross(q.P3.Sub(q.P1))
}

// Bounds returns the integer bounding box of the quad.
func (q Quad) Bounds() Bounds {
	c := q.Corners()
	minX, minY := c[0].X, c[0].Y
	maxX, maxY := minX, minY
	for _, p := range c[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return Bounds{
		X1: int(math.Floor(minX)),
		Y1: int(math.Floor(minY)),
		X2: int(math.Ceil(maxX)),
		Y2: int(math.Ceil(maxY)),
	}
}

// Bounds is a rectangular bounding box in pixel coordinates.
//
// The coordinate convention follows standard image bounds:
//   - (X1, Y1) is the top-left corner (inclusive)
//   - (X2, Y2) is the bottom-right corner
type Bounds struct {
	X1 int `json:"x1"` // Left edge (inclusive)
	Y1 int `json:"y1"` // Top edge (inclusive)
	X2 int `json:"x2"` // Right edge
	Y2 int `json:"y2"` // Bottom edge
}

// FitOptions tunes the quadrilateral fit.
type FitOptions struct {
	// EdgeTolerance is the largest distance, in pixels, any contour point
	// may lie from the line through the two corners it falls between.
	EdgeTolerance float64

	// MaxAngleCos bounds |cos| of the interior angle at P1 and P4.
	// Corners sharper or flatter than this are rejected.
	MaxAngleCos float64

	// OrientationRatio is how far, as a fraction of the corner-to-centroid
	// distance, the orientation sample is taken from each corner.
	OrientationRatio float64
}

// DefaultFitOptions returns the stock fit tolerances.
func DefaultFitOptions() FitOptions {
	return FitOptions{
		EdgeTolerance:    6.0,
		MaxAngleCos:      0.94,
		OrientationRatio: 0.3,
	}
}

// Fit is the result of fitting a quadrilateral to a contour.
type Fit struct {
	// Quad is the labeled, wound outline.
	Quad Quad `json:"quad"`

	// Centroid is the mean of the contour points.
	Centroid r2.Point `json:"centroid"`

	// Residuals is the largest point-to-line distance along each edge, in
	// the order of Quad.Edges.
	Residuals [4]float64 `json:"residuals"`

	// Oriented reports whether an orientation sample landed in black and
	// the labels were rotated to put P1 next to it.
	Oriented bool `json:"oriented"`
}

// FitQuad reduces a closed contour to four corners.
//
// # Corner Search
//
//  1. P1 is the contour point farthest from the first contour point; the
//     centroid is accumulated in the same pass.
//  2. P2 and P3 are the points with the largest positive and negative
//     perpendicular distance from the line centroid-P1.
//  3. P4 is the point farthest from the line P2-P3 on the side away from P1.
//
// # Validation
//
// The interior angles at P1 and P4 must have |cos| below MaxAngleCos. Each
// run of contour points between two neighboring corners must stay within
// EdgeTolerance of the line through them; a run that joins diagonal corners
// means the corner order is inconsistent and the fit is rejected.
//
// # Labeling
//
// A point OrientationRatio of the way from each of P2, P3 and P4 toward the
// centroid is sampled in img. The first one that lands in black becomes P1
// by rotating the labels along the outline. Finally P2 and P3 are swapped if
// needed so that (P2-P1) x (P3-P1) is negative.
func FitQuad(img *imaging.BinaryImage, contour Contour, opts FitOptions) (*Fit, error) {
	n := len(contour)
	if n < 4 {
		return nil, errors.Wrapf(ErrQuadFit, "contour has %d points", n)
	}

	pts := make([]r2.Point, n)
	origin := toR2(contour[0])
	var sum r2.Point
	i1, best := 0, -1.0
	for i, c := range contour {
		p := toR2(c)
		pts[i] = p
		sum = sum.Add(p)
		if d := p.Sub(origin).Norm(); d > best {
			i1, best = i, d
		}
	}
	centroid := sum.Mul(1 / float64(n))
	p1 := pts[i1]

	axis := p1.Sub(centroid)
	if axis.Norm() == 0 {
		return nil, errors.Wrap(ErrQuadFit, "degenerate contour")
	}
	i2, i3 := -1, -1
	maxPos, maxNeg := 0.0, 0.0
	for i, p := range pts {
		s := axis.Cross(p.Sub(centroid))
		if s > maxPos {
			i2, maxPos = i, s
		}
		if s < maxNeg {
			i3, maxNeg = i, s
		}
	}
	if i2 < 0 || i3 < 0 {
		return nil, errors.Wrap(ErrQuadFit, "contour lies on one side of its axis")
	}
	p2, p3 := pts[i2], pts[i3]

	diag := p3.Sub(p2)
	side := diag.Cross(p1.Sub(p2))
	i4, far := -1, 0.0
	for i, p := range pts {
		s := diag.Cross(p.Sub(p2))
		if s*side < 0 && math.Abs(s) > far {
			i4, far = i, math.Abs(s)
		}
	}
	if i4 < 0 {
		return nil, errors.Wrap(ErrQuadFit, "no corner opposite the first")
	}
	p4 := pts[i4]

	if c := cornerCos(p1, p2, p3); math.Abs(c) >= opts.MaxAngleCos {
		return nil, errors.Wrapf(ErrQuadFit, "angle at first corner out of range (cos %.3f)", c)
	}
	if c := cornerCos(p4, p2, p3); math.Abs(c) >= opts.MaxAngleCos {
		return nil, errors.Wrapf(ErrQuadFit, "angle at opposite corner out of range (cos %.3f)", c)
	}

	residuals, err := edgeResiduals(pts, [4]int{i1, i2, i3, i4}, opts.EdgeTolerance)
	if err != nil {
		return nil, err
	}

	fit := &Fit{
		Quad:      Quad{P1: p1, P2: p2, P3: p3, P4: p4},
		Centroid:  centroid,
		Residuals: residuals,
	}
	fit.orient(img, opts.OrientationRatio)
	fit.wind()
	return fit, nil
}

// edgeResiduals walks the contour arcs between consecutive corners and
// returns the largest deviation per edge, indexed as Quad.Edges.
// idx holds the contour indices of P1, P2, P3, P4.
func edgeResiduals(pts []r2.Point, idx [4]int, tol float64) ([4]float64, error) {
	var residuals [4]float64
	n := len(pts)

	// Labels are 0..3 for P1..P4.
	order := []int{0, 1, 2, 3}
	sort.Slice(order, func(a, b int) bool { return idx[order[a]] < idx[order[b]] })
	for k := 0; k < 3; k++ {
		if idx[order[k]] == idx[order[k+1]] {
			return residuals, errors.Wrap(ErrQuadFit, "corners coincide")
		}
	}

	for k := range order {
		from, to := order[k], order[(k+1)%4]
		edge, ok := edgeIndex(from, to)
		if !ok {
			return residuals, errors.Wrap(ErrQuadFit, "corners out of order along contour")
		}
		a, b := pts[idx[from]], pts[idx[to]]
		length := b.Sub(a).Norm()

		worst := 0.0
		for i := idx[from]; i != idx[to]; i = (i + 1) % n {
			d := math.Abs(b.Sub(a).Cross(pts[i].Sub(a))) / length
			if d > worst {
				worst = d
			}
		}
		if worst > tol {
			return residuals, errors.Wrapf(ErrQuadFit, "edge %d deviates %.2f px", edge+1, worst)
		}
		residuals[edge] = worst
	}
	return residuals, nil
}

// edgeIndex maps a pair of corner labels to its Quad.Edges position. The
// diagonals P1-P4 and P2-P3 are not edges.
func edgeIndex(a, b int) (int, bool) {
	if a > b {
		a, b = b, a
	}
	switch [2]int{a, b} {
	case [2]int{0, 1}:
		return 0, true
	case [2]int{1, 3}:
		return 1, true
	case [2]int{2, 3}:
		return 2, true
	case [2]int{0, 2}:
		return 3, true
	}
	return 0, false
}

// orient relabels the corners so that P1 is the corner whose inward sample
// is black.
func (f *Fit) orient(img *imaging.BinaryImage, ratio float64) {
	ring := f.Quad.ring()
	for shift := 1; shift < 4; shift++ {
		c := ring[shift]
		s := c.Add(f.Centroid.Sub(c).Mul(ratio))
		if !img.IsBlack(int(math.Round(s.X)), int(math.Round(s.Y))) {
			continue
		}
		var r [4]r2.Point
		var res [4]float64
		for i := range ring {
			r[i] = ring[(i+shift)%4]
			res[i] = f.Residuals[(i+shift)%4]
		}
		f.Quad = quadFromRing(r)
		f.Residuals = res
		f.Oriented = true
		return
	}
}

// wind swaps P2 and P3 when the outline runs the wrong way.
func (f *Fit) wind() {
	if f.Quad.Cross() < 0 {
		return
	}
	f.Quad.P2, f.Quad.P3 = f.Quad.P3, f.Quad.P2
	r := f.Residuals
	f.Residuals = [4]float64{r[3], r[2], r[1], r[0]}
}

// cornerCos returns the cosine of the angle at p between rays to a and b.
func cornerCos(p, a, b r2.Point) float64 {
	u, v := a.Sub(p), b.Sub(p)
	den := u.Norm() * v.Norm()
	if den == 0 {
		return 1
	}
	return u.Dot(v) / den
}
