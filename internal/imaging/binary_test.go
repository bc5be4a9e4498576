package imaging

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryImage_Basics(t *testing.T) {
	bin := NewBinaryImage(10, 8)
	require.Equal(t, 10, bin.Width())
	require.Equal(t, 8, bin.Height())

	assert.Equal(t, White, bin.At(0, 0))
	assert.Equal(t, Unknown, bin.At(-1, 0))
	assert.Equal(t, Unknown, bin.At(10, 0))
	assert.Equal(t, Unknown, bin.At(0, 8))

	bin.Set(3, 4, Black)
	assert.True(t, bin.IsBlack(3, 4))
	assert.False(t, bin.IsBlack(4, 3))

	// Out of range writes are ignored.
	bin.Set(100, 100, Black)
	assert.InDelta(t, 1.0/80, bin.BlackRatio(), 1e-12)
}

func TestBinaryImage_FillRect(t *testing.T) {
	bin := NewBinaryImage(10, 10)
	bin.FillRect(image.Rect(5, 5, 20, 20), Black)

	assert.True(t, bin.IsBlack(9, 9))
	assert.False(t, bin.IsBlack(4, 9))
	assert.InDelta(t, 0.25, bin.BlackRatio(), 1e-12)

	bin.FillRect(image.Rect(5, 5, 6, 6), Unknown)
	assert.Equal(t, Unknown, bin.At(5, 5))
}

func TestBinaryImage_GrayRoundTrip(t *testing.T) {
	bin := NewBinaryImage(4, 3)
	bin.Set(1, 1, Black)
	bin.Set(2, 2, Unknown)

	gray := bin.Gray()
	assert.Equal(t, uint8(0), gray.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(255), gray.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(128), gray.GrayAt(2, 2).Y)

	back := BinaryImageFromGray(gray)
	assert.Equal(t, Black, back.At(1, 1))
	assert.Equal(t, White, back.At(0, 0))
	// Unknown is not representable in a thresholded gray image.
	assert.Equal(t, White, back.At(2, 2))
}

func TestBinaryImageFromGray_SubImage(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range gray.Pix {
		gray.Pix[i] = 255
	}
	gray.Pix[3*gray.Stride+3] = 0

	sub := gray.SubImage(image.Rect(2, 2, 6, 6)).(*image.Gray)
	bin := BinaryImageFromGray(sub)
	require.Equal(t, 4, bin.Width())
	assert.True(t, bin.IsBlack(1, 1))
	assert.InDelta(t, 1.0/16, bin.BlackRatio(), 1e-12)
}

func TestClass_String(t *testing.T) {
	assert.Equal(t, "black", Black.String())
	assert.Equal(t, "white", White.String())
	assert.Equal(t, "unknown", Unknown.String())
}

func TestVisitedSet(t *testing.T) {
	v := NewVisitedSet(100, 7)

	assert.False(t, v.Has(0, 0))
	v.Mark(0, 0)
	v.Mark(99, 6)
	v.Mark(63, 0)
	v.Mark(64, 0)
	v.Mark(64, 0)

	assert.True(t, v.Has(0, 0))
	assert.True(t, v.Has(99, 6))
	assert.True(t, v.Has(63, 0))
	assert.True(t, v.Has(64, 0))
	assert.False(t, v.Has(65, 0))
	assert.Equal(t, 4, v.Count())

	v.Reset()
	assert.Equal(t, 0, v.Count())
	assert.False(t, v.Has(99, 6))
}
