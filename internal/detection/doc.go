// Package detection finds a square fiducial marker in a binary frame.
//
// The marker is a dark square border on a light background. Detection runs
// in two stages, each usable on its own:
//
//  1. Trace: scan rows for a white-to-black transition and walk the outer
//     boundary of the black region with a four-heading Pavlidis tracer
//  2. FitQuad: reduce the closed contour to four corners, validate that
//     the edges are straight and the corners are neither too sharp nor too
//     flat, then label and wind the corners consistently
//
// Detector bundles the two and logs each outcome.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// # Corner Labels
//
// Corners P1..P4 correspond to the canonical marker corners (-1,-1),
// (-1,1), (1,-1) and (1,1) used by the pose stages. Walking the outline
// visits P1, P2, P4, P3. When the marker interior carries a dark
// orientation block next to one corner, that corner is labeled P1.
//
// # Errors
//
// Failures wrap one of the package sentinels so callers can use errors.Is:
//   - ErrNoCandidate: nothing to trace
//   - ErrTraceFailed: every walk hit the border, got stuck or ran too long
//   - ErrContourTooShort: closed contours were all below the minimum length
//   - ErrQuadFit: the contour is not a usable quadrilateral
//
// # Limitations
//
// The tracer stops at the first acceptable contour, so only one marker per
// frame is found. Markers touching the frame border are never detected.
package detection
