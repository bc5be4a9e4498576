package imaging

import (
	"image"
	"math/bits"
)

// Class is the classification of a single cell in a BinaryImage.
type Class uint8

const (
	// Unknown marks cells that carry no usable classification, including
	// every read outside the image bounds.
	Unknown Class = iota
	// Black marks marker border or marker interior.
	Black
	// White marks background.
	White
)

// String returns the lower-case name of the class.
func (c Class) String() string {
	switch c {
	case Black:
		return "black"
	case White:
		return "white"
	default:
		return "unknown"
	}
}

// BinaryImage is a width x height grid of black/white classifications.
//
// It is produced once per frame by preprocessing (see Binarize) and is
// read-only to the detection pipeline. Visited bookkeeping performed by the
// contour tracer lives in a separate VisitedSet, so a BinaryImage can be
// traced any number of times with identical results.
type BinaryImage struct {
	width  int
	height int
	cells  []Class
}

// NewBinaryImage returns an all-white image of the given size.
func NewBinaryImage(width, height int) *BinaryImage {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	cells := make([]Class, width*height)
	for i := range cells {
		cells[i] = White
	}
	return &BinaryImage{width: width, height: height, cells: cells}
}

// BinaryImageFromGray classifies an 8-bit grayscale image: zero is black,
// anything brighter is white.
func BinaryImageFromGray(gray *image.Gray) *BinaryImage {
	b := gray.Bounds()
	bin := &BinaryImage{
		width:  b.Dx(),
		height: b.Dy(),
		cells:  make([]Class, b.Dx()*b.Dy()),
	}
	for y := 0; y < bin.height; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+bin.width]
		for x, v := range row {
			if v == 0 {
				bin.cells[y*bin.width+x] = Black
			} else {
				bin.cells[y*bin.width+x] = White
			}
		}
	}
	return bin
}

// Width returns the image width in cells.
func (b *BinaryImage) Width() int { return b.width }

// Height returns the image height in cells.
func (b *BinaryImage) Height() int { return b.height }

// In reports whether (x, y) lies inside the image.
func (b *BinaryImage) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.width && y < b.height
}

// At returns the class at (x, y), or Unknown outside the image.
func (b *BinaryImage) At(x, y int) Class {
	if !b.In(x, y) {
		return Unknown
	}
	return b.cells[y*b.width+x]
}

// IsBlack reports whether (x, y) is inside the image and black.
func (b *BinaryImage) IsBlack(x, y int) bool {
	return b.At(x, y) == Black
}

// Set assigns a class to (x, y). Out of range writes are ignored.
func (b *BinaryImage) Set(x, y int, c Class) {
	if b.In(x, y) {
		b.cells[y*b.width+x] = c
	}
}

// FillRect sets every cell of r (clipped to the image) to c.
func (b *BinaryImage) FillRect(r image.Rectangle, c Class) {
	r = r.Intersect(image.Rect(0, 0, b.width, b.height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			b.cells[y*b.width+x] = c
		}
	}
}

// BlackRatio returns the fraction of cells classified as black.
func (b *BinaryImage) BlackRatio() float64 {
	if len(b.cells) == 0 {
		return 0
	}
	n := 0
	for _, c := range b.cells {
		if c == Black {
			n++
		}
	}
	return float64(n) / float64(len(b.cells))
}

// Gray renders the classification as an 8-bit image: black is 0, white is
// 255 and unknown is mid gray.
func (b *BinaryImage) Gray() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, b.width, b.height))
	for i, c := range b.cells {
		switch c {
		case Black:
			out.Pix[i] = 0
		case White:
			out.Pix[i] = 255
		default:
			out.Pix[i] = 128
		}
	}
	return out
}

// VisitedSet is a per-trace bitset of cells already examined by the contour
// tracer.
type VisitedSet struct {
	width int
	words []uint64
}

// NewVisitedSet returns an empty set sized for a width x height image.
func NewVisitedSet(width, height int) *VisitedSet {
	n := width * height
	return &VisitedSet{width: width, words: make([]uint64, (n+63)/64)}
}

// Mark records (x, y) as visited. Callers must pass in-bounds coordinates.
func (v *VisitedSet) Mark(x, y int) {
	i := y*v.width + x
	v.words[i>>6] |= 1 << (uint(i) & 63)
}

// Has reports whether (x, y) has been marked.
func (v *VisitedSet) Has(x, y int) bool {
	i := y*v.width + x
	return v.words[i>>6]&(1<<(uint(i)&63)) != 0
}

// Count returns the number of marked cells.
func (v *VisitedSet) Count() int {
	n := 0
	for _, w := range v.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Reset clears every mark.
func (v *VisitedSet) Reset() {
	clear(v.words)
}
