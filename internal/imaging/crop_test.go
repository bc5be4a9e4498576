package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCropRegion(t *testing.T) {
	img := solidFrame(200, 100, color.White)

	tests := []struct {
		name   string
		roi    image.Rectangle
		margin int
		scale  float64
		want   image.Rectangle
	}{
		{"native", image.Rect(10, 10, 60, 40), 0, 1, image.Rect(0, 0, 50, 30)},
		{"zero scale keeps size", image.Rect(10, 10, 60, 40), 0, 0, image.Rect(0, 0, 50, 30)},
		{"margin", image.Rect(50, 30, 70, 50), 10, 1, image.Rect(0, 0, 40, 40)},
		{"margin clipped", image.Rect(0, 0, 20, 20), 10, 1, image.Rect(0, 0, 30, 30)},
		{"upscale", image.Rect(0, 0, 50, 50), 0, 2, image.Rect(0, 0, 100, 100)},
		{"downscale", image.Rect(0, 0, 100, 100), 0, 0.5, image.Rect(0, 0, 50, 50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := CropRegion(img, tt.roi, tt.margin, tt.scale)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Bounds())
		})
	}
}

func TestCropRegion_Errors(t *testing.T) {
	img := solidFrame(100, 100, color.White)

	_, err := CropRegion(img, image.Rect(200, 200, 300, 300), 0, 1)
	assert.Error(t, err, "outside image")

	_, err = CropRegion(img, image.Rect(0, 0, 10, 10), -1, 1)
	assert.Error(t, err, "negative margin")

	_, err = CropRegion(img, image.Rect(0, 0, 10, 10), 0, -2)
	assert.Error(t, err, "negative scale")

	_, err = CropRegion(img, image.Rect(0, 0, 10, 10), 0, 0.01)
	assert.Error(t, err, "collapsed")
}
