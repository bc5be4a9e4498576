// Package camera models a calibrated pinhole camera with Brown-Conrady lens
// distortion.
//
// A Model carries the intrinsics (focal lengths and principal point at the
// calibration resolution) and five distortion coefficients. K and InvK give
// the intrinsic matrix and its inverse as mgl64 matrices; ScaledTo adapts a
// calibration to a different frame size.
//
// # Distortion Correction
//
// UndistortPixel inverts the lens model for a single observed pixel with a
// fixed-point iteration in normalized coordinates, stopping after
// MaxIterations or once the re-distorted estimate is within Epsilon pixels
// of the observation. The pose stages run on the corrected corners.
//
// # Hot Reload
//
// Store publishes one immutable Model at a time through an atomic pointer.
// Watcher follows a calibration file with fsnotify and swaps each valid
// revision into the Store; the tracking pipeline reads one snapshot per
// frame.
package camera
