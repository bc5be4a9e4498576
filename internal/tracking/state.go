package tracking

import (
	"encoding/json"
	"fmt"

	"github.com/golang/geo/r2"

	"github.com/ironsheep/marker-pose-mcp/internal/pose"
)

// DefaultCoastFrames is the number of consecutive misses tolerated before
// the tracker drops the marker.
const DefaultCoastFrames = 20

// Status is the tracker state.
type Status int

const (
	// StatusLost means no marker is tracked; corners and pose are zero.
	StatusLost Status = iota
	// StatusLocked means the marker was found in the latest frame.
	StatusLocked
	// StatusCoasting means the marker was missed recently and the last
	// known corners and pose are still published.
	StatusCoasting
)

func (s Status) String() string {
	switch s {
	case StatusLost:
		return "LOST"
	case StatusLocked:
		return "LOCKED"
	case StatusCoasting:
		return "COASTING"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalJSON encodes the status by name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "LOST":
		*s = StatusLost
	case "LOCKED":
		*s = StatusLocked
	case "COASTING":
		*s = StatusCoasting
	default:
		return fmt.Errorf("unknown tracker status %q", name)
	}
	return nil
}

// State is the cross-frame memory of one tracker.
//
// It is a plain value owned by the caller and passed into every
// Pipeline.ProcessFrame call. State has no internal locking; hosts that
// share it between goroutines must guard it themselves.
type State struct {
	Status Status `json:"status"`

	// Misses counts consecutive frames without a detection.
	Misses int `json:"misses"`

	// Corners are the last detected corners in pixel space, in label order.
	Corners [4]r2.Point `json:"corners"`

	// Pose is the last refined pose, the one renderers read.
	Pose pose.Pose `json:"pose"`

	// Frames counts every frame fed to the tracker.
	Frames uint64 `json:"frames"`

	// CoastFrames is the number of misses tolerated before LOST.
	CoastFrames int `json:"coast_frames"`
}

// NewState returns a tracker in the LOST state. A negative coastFrames
// uses DefaultCoastFrames.
func NewState(coastFrames int) *State {
	if coastFrames < 0 {
		coastFrames = DefaultCoastFrames
	}
	return &State{Status: StatusLost, CoastFrames: coastFrames}
}

// HasPose reports whether a previous pose is available for blending.
func (s *State) HasPose() bool {
	return s.Status != StatusLost && !s.Pose.IsZero()
}

// Found records a successful detection and returns the previous status.
func (s *State) Found(corners [4]r2.Point, p pose.Pose) Status {
	prev := s.Status
	s.Frames++
	s.Status = StatusLocked
	s.Misses = 0
	s.Corners = corners
	s.Pose = p
	return prev
}

// Missed records a frame without a detection and returns the previous
// status. The last corners and pose are kept while the miss count stays
// within CoastFrames; past it the tracker is LOST and both are zeroed.
func (s *State) Missed() Status {
	prev := s.Status
	s.Frames++
	if s.Status == StatusLost {
		return prev
	}
	s.Misses++
	if s.Misses <= s.CoastFrames {
		s.Status = StatusCoasting
		return prev
	}
	s.Status = StatusLost
	s.Corners = [4]r2.Point{}
	s.Pose = pose.Pose{}
	return prev
}

// Reset returns the tracker to LOST, keeping its coast setting.
func (s *State) Reset() {
	*s = State{Status: StatusLost, CoastFrames: s.CoastFrames}
}
