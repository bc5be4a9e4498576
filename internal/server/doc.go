// Package server implements the MCP (Model Context Protocol) server for the
// marker tracker.
//
// This package provides a JSON-RPC 2.0 server that exposes the per-frame
// marker pipeline through the MCP protocol, so an MCP client can feed
// camera frames to the tracker and read back corners, pose and error
// metrics.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Frame Operations:
//   - frame_load: Load a frame and get metadata
//   - frame_binarize: Show the black/white image the detector sees
//
// Marker Operations:
//   - marker_detect: Stateless detection and single-frame pose
//   - marker_track: Full pipeline plus tracker update
//   - marker_overlay: Debug drawing of the tracked marker
//
// Tracker Operations:
//   - tracker_status: Current state, corners and pose
//   - tracker_reset: Back to LOST
//   - tracker_configure: Merge tuning overrides
//
// Camera Operations:
//   - camera_get: Active calibration
//   - camera_load: Load (and optionally watch) a calibration file
//
// # Tracker State
//
// The server owns one tracking.State. Tool calls that read or advance it
// hold a single mutex, so frames are processed one at a time in arrival
// order. The frame cache checks each file's modification time and size,
// so a capture process may overwrite one path between calls.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// A frame without a marker is not an error: marker_track reports
// found=false with the failing stage in "failure".
package server
