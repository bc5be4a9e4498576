package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// markerFrame returns a white RGBA frame with a filled dark square.
func markerFrame(width, height int, square image.Rectangle, ink color.Color) *image.RGBA {
	img := solidFrame(width, height, color.White)
	for y := square.Min.Y; y < square.Max.Y; y++ {
		for x := square.Min.X; x < square.Max.X; x++ {
			img.Set(x, y, ink)
		}
	}
	return img
}

func TestBinarize_FixedThreshold(t *testing.T) {
	square := image.Rect(20, 20, 60, 60)
	frame := markerFrame(100, 100, square, color.Gray{Y: 40})

	bin, level, err := Binarize(frame, DefaultBinarizeOptions())
	require.NoError(t, err)
	assert.Equal(t, uint8(128), level)
	assert.Equal(t, 100, bin.Width())
	assert.Equal(t, 100, bin.Height())

	assert.True(t, bin.IsBlack(20, 20))
	assert.True(t, bin.IsBlack(59, 59))
	assert.False(t, bin.IsBlack(19, 20))
	assert.False(t, bin.IsBlack(60, 59))
	assert.InDelta(t, 0.16, bin.BlackRatio(), 1e-9)
}

func TestBinarize_ThresholdCut(t *testing.T) {
	tests := []struct {
		name      string
		ink       uint8
		threshold float64
		black     bool
	}{
		{"dark below mid", 100, 0.5, true},
		{"light above mid", 200, 0.5, false},
		{"high cut", 200, 0.9, true},
		{"zero cut", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := markerFrame(40, 40, image.Rect(10, 10, 30, 30), color.Gray{Y: tt.ink})
			bin, _, err := Binarize(frame, BinarizeOptions{Threshold: tt.threshold})
			require.NoError(t, err)
			assert.Equal(t, tt.black, bin.IsBlack(20, 20))
		})
	}
}

func TestBinarize_AutoThreshold(t *testing.T) {
	// Half the frame is black, so the mean lands mid gray.
	frame := markerFrame(100, 100, image.Rect(0, 0, 50, 100), color.Black)

	bin, level, err := Binarize(frame, BinarizeOptions{AutoThreshold: true})
	require.NoError(t, err)
	assert.InDelta(t, 128, int(level), 1)
	assert.InDelta(t, 0.5, bin.BlackRatio(), 1e-9)
}

func TestBinarize_Blur(t *testing.T) {
	frame := markerFrame(100, 100, image.Rect(20, 20, 80, 80), color.Black)

	bin, _, err := Binarize(frame, BinarizeOptions{Threshold: 0.5, BlurSigma: 1.5})
	require.NoError(t, err)
	assert.True(t, bin.IsBlack(50, 50))
	assert.False(t, bin.IsBlack(5, 5))
}

func TestBinarize_Errors(t *testing.T) {
	_, _, err := Binarize(nil, DefaultBinarizeOptions())
	assert.Error(t, err)

	_, _, err = Binarize(image.NewRGBA(image.Rect(0, 0, 0, 0)), DefaultBinarizeOptions())
	assert.Error(t, err)
}

func TestEncodeBinary(t *testing.T) {
	bin := NewBinaryImage(30, 20)
	bin.FillRect(image.Rect(0, 0, 15, 20), Black)

	res, err := EncodeBinary(bin, 90)
	require.NoError(t, err)
	assert.Equal(t, 30, res.Width)
	assert.Equal(t, 20, res.Height)
	assert.Equal(t, uint8(90), res.Level)
	assert.InDelta(t, 0.5, res.BlackRatio, 1e-12)
	assert.Equal(t, "image/png", res.MimeType)
	assert.NotEmpty(t, res.ImageBase64)
}
