package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// CropRegion extracts roi, grown by margin pixels on every side and clipped
// to the image, and optionally rescales it.
//
// A scale of 0 or 1 keeps the native resolution. Upscaling uses Lanczos
// resampling so thin overlay lines stay legible when zooming on a small
// marker.
func CropRegion(img image.Image, roi image.Rectangle, margin int, scale float64) (image.Image, error) {
	bounds := img.Bounds()
	if margin < 0 {
		return nil, fmt.Errorf("negative crop margin %d", margin)
	}
	if scale < 0 {
		return nil, fmt.Errorf("negative crop scale %g", scale)
	}

	region := roi.Inset(-margin).Intersect(bounds)
	if region.Empty() {
		return nil, fmt.Errorf("crop region %v outside image bounds %v", roi, bounds)
	}

	cropped := imaging.Crop(img, region)

	if scale != 1.0 && scale > 0 {
		newWidth := int(float64(cropped.Bounds().Dx()) * scale)
		newHeight := int(float64(cropped.Bounds().Dy()) * scale)
		if newWidth < 1 || newHeight < 1 {
			return nil, fmt.Errorf("crop scale %g collapses %v", scale, region)
		}
		cropped = imaging.Resize(cropped, newWidth, newHeight, imaging.Lanczos)
	}

	return cropped, nil
}
