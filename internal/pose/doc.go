// Package pose turns four marker corners into a camera-relative pose.
//
// The stages run in order on undistorted corner pixels:
//
//  1. EstimateHomography: normalized DLT solved by SVD, with a singular
//     value check that rejects degenerate correspondences
//  2. Decompose: metric homography K^-1*H split into an orthonormal
//     rotation and a translation in front of the camera
//  3. AnchorScale and Blend: fix the pose scale to the first corner and
//     smooth against the previous frame
//  4. Refine: Levenberg-Marquardt on the twelve pose entries against the
//     depth-weighted pixel residual, scale pinned to the first corner
//  5. Orthonormalize (optional): project the rotation block back onto a
//     scaled rotation
//
// # Marker Frame
//
// The marker is the square with corners (-1,-1), (-1,1), (1,-1), (1,1) in
// the z = 0 plane. A Pose M maps a marker point (x, y, z) to the camera
// frame as M * (x, y, z, 1); renderers project with K * M.
//
// # Matrix Conventions
//
// Fixed-size matrices use mgl64 and are column-major: entry (row r,
// column c) of a Pose is M[c*3+r]. Variable-size systems (the DLT matrix
// and the refinement normal equations) use gonum.
package pose
