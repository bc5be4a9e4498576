// Package tracking runs the per-frame marker pipeline and keeps the
// cross-frame tracker state.
//
// # State Machine
//
//	LOST --found--> LOCKED --miss--> COASTING --miss (> CoastFrames)--> LOST
//	                  ^                  |
//	                  +------found-------+
//
// A tracker starts LOST. While COASTING it keeps publishing the last
// corners and pose; on entering LOST both are zeroed.
//
// The State is an explicit value passed into Pipeline.ProcessFrame, so
// transitions can be driven directly in tests without a camera.
package tracking
