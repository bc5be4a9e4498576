package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"
	"github.com/montanaflynn/stats"
)

// BinarizeOptions controls how a camera frame is reduced to a BinaryImage.
type BinarizeOptions struct {
	// Threshold is the luminance cut in [0, 1]. Pixels darker than the cut
	// are classified black. Ignored when AutoThreshold is set.
	Threshold float64

	// BlurSigma is the Gaussian blur sigma applied before thresholding.
	// Zero disables blurring.
	BlurSigma float64

	// AutoThreshold derives the cut from the mean luminance of the frame.
	AutoThreshold bool
}

// DefaultBinarizeOptions returns a mid-gray fixed threshold without blur.
func DefaultBinarizeOptions() BinarizeOptions {
	return BinarizeOptions{Threshold: 0.5}
}

// Binarize converts a color or grayscale frame into a BinaryImage.
//
// This is the host-side preprocessing stage that feeds the detection
// pipeline. The detection packages never call it; they only consume its
// output.
//
// # Algorithm
//
//  1. Grayscale conversion (disintegration/imaging)
//  2. Optional Gaussian blur with opts.BlurSigma
//  3. Threshold level: fixed from opts.Threshold, or the frame's mean
//     luminance when opts.AutoThreshold is set
//  4. Binary segmentation (bild/segment): values below the level are black
//
// Returns the binary image and the 8-bit level that was applied.
func Binarize(img image.Image, opts BinarizeOptions) (*BinaryImage, uint8, error) {
	if img == nil {
		return nil, 0, fmt.Errorf("nil image")
	}
	if img.Bounds().Empty() {
		return nil, 0, fmt.Errorf("empty image")
	}

	gray := imaging.Grayscale(img)
	if opts.BlurSigma > 0 {
		gray = imaging.Blur(gray, opts.BlurSigma)
	}

	var level uint8
	if opts.AutoThreshold {
		l, err := AutoThreshold(gray)
		if err != nil {
			return nil, 0, err
		}
		level = l
	} else {
		level = thresholdLevel(opts.Threshold)
	}

	return BinaryImageFromGray(segment.Threshold(gray, level)), level, nil
}

// AutoThreshold returns the mean luminance of a grayscale NRGBA frame as an
// 8-bit threshold level.
func AutoThreshold(gray *image.NRGBA) (uint8, error) {
	b := gray.Bounds()
	samples := make([]float64, 0, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+b.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			samples = append(samples, float64(row[x]))
		}
	}
	mean, err := stats.Mean(samples)
	if err != nil {
		return 0, fmt.Errorf("failed to compute mean luminance: %w", err)
	}
	return uint8(math.Round(mean)), nil
}

func thresholdLevel(t float64) uint8 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 255
	}
	return uint8(math.Round(t * 255))
}

// BinarizeResult is the JSON shape returned for a binarized frame.
type BinarizeResult struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Level       uint8   `json:"level"`
	BlackRatio  float64 `json:"black_ratio"`
	ImageBase64 string  `json:"image_base64"`
	MimeType    string  `json:"mime_type"`
}

// EncodeBinary renders a BinaryImage as a base64 PNG result.
func EncodeBinary(bin *BinaryImage, level uint8) (*BinarizeResult, error) {
	enc, err := EncodePNG(bin.Gray())
	if err != nil {
		return nil, err
	}
	return &BinarizeResult{
		Width:       enc.Width,
		Height:      enc.Height,
		Level:       level,
		BlackRatio:  bin.BlackRatio(),
		ImageBase64: enc.ImageBase64,
		MimeType:    enc.MimeType,
	}, nil
}
