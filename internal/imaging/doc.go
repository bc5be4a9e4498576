// Package imaging provides frame handling for the marker tracker.
//
// It covers everything that touches pixels before and after pose
// estimation: decoding and caching frames, reducing them to black/white
// classifications, and drawing diagnostic overlays.
//
// # Binary Frames
//
// BinaryImage is the input contract of the detection pipeline. Every cell
// is Black, White or Unknown, and reads outside the frame return Unknown,
// so tracers can probe neighbors without bounds checks. Binarize produces
// one from a decoded frame using a fixed or mean-luminance threshold.
//
// VisitedSet holds the per-trace bookkeeping of which cells have been
// examined. Keeping it apart from the image lets the same BinaryImage be
// traced repeatedly.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For regions, Min is inclusive and Max is exclusive
//
// # Thread Safety
//
// FrameCache is safe for concurrent use. BinaryImage and Canvas are not;
// share them across goroutines only for reading.
//
// # Output Format
//
// Rendered images (binarized frames and overlays) are returned as
// base64-encoded PNG with MimeType "image/png".
package imaging
