package tracking

import (
	"encoding/json"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/marker-pose-mcp/internal/pose"
)

var testCorners = [4]r2.Point{
	{X: 300, Y: 300},
	{X: 300, Y: 100},
	{X: 100, Y: 300},
	{X: 100, Y: 100},
}

func testPose() pose.Pose {
	return pose.NewPose(mgl64.Ident3(), mgl64.Vec3{0.1, -0.2, 5})
}

func TestNewState(t *testing.T) {
	s := NewState(DefaultCoastFrames)
	assert.Equal(t, StatusLost, s.Status)
	assert.Equal(t, 0, s.Misses)
	assert.True(t, s.Pose.IsZero())
	assert.False(t, s.HasPose())

	assert.Equal(t, DefaultCoastFrames, NewState(-1).CoastFrames)
	assert.Equal(t, 0, NewState(0).CoastFrames)
}

func TestState_FoundLocks(t *testing.T) {
	s := NewState(DefaultCoastFrames)

	prev := s.Found(testCorners, testPose())
	assert.Equal(t, StatusLost, prev)
	assert.Equal(t, StatusLocked, s.Status)
	assert.Equal(t, testCorners, s.Corners)
	assert.Equal(t, testPose(), s.Pose)
	assert.True(t, s.HasPose())
	assert.Equal(t, uint64(1), s.Frames)
}

func TestState_CoastingKeepsLastCorners(t *testing.T) {
	for _, misses := range []int{1, 5, 19, 20} {
		s := NewState(DefaultCoastFrames)
		s.Found(testCorners, testPose())

		for i := 0; i < misses; i++ {
			s.Missed()
		}

		assert.Equal(t, StatusCoasting, s.Status, "after %d misses", misses)
		assert.Equal(t, misses, s.Misses)
		assert.Equal(t, testCorners, s.Corners, "corners must survive %d misses", misses)
		assert.Equal(t, testPose(), s.Pose)
		assert.True(t, s.HasPose())
	}
}

func TestState_LostAfterCoastLimit(t *testing.T) {
	s := NewState(DefaultCoastFrames)
	s.Found(testCorners, testPose())

	for i := 0; i < 20; i++ {
		s.Missed()
	}
	require.Equal(t, StatusCoasting, s.Status)

	prev := s.Missed()
	assert.Equal(t, StatusCoasting, prev)
	assert.Equal(t, StatusLost, s.Status)
	assert.Equal(t, 21, s.Misses)
	assert.Equal(t, [4]r2.Point{}, s.Corners)
	assert.True(t, s.Pose.IsZero())
	assert.False(t, s.HasPose())

	// Further misses stay lost.
	s.Missed()
	assert.Equal(t, StatusLost, s.Status)
	assert.True(t, s.Pose.IsZero())
}

func TestState_MissWhileLost(t *testing.T) {
	s := NewState(DefaultCoastFrames)

	prev := s.Missed()
	assert.Equal(t, StatusLost, prev)
	assert.Equal(t, StatusLost, s.Status)
	assert.Equal(t, 0, s.Misses)
	assert.Equal(t, uint64(1), s.Frames)
}

func TestState_ReacquireResetsCounter(t *testing.T) {
	s := NewState(DefaultCoastFrames)
	s.Found(testCorners, testPose())
	for i := 0; i < 10; i++ {
		s.Missed()
	}

	moved := testCorners
	moved[0] = r2.Point{X: 305, Y: 302}
	prev := s.Found(moved, testPose())

	assert.Equal(t, StatusCoasting, prev)
	assert.Equal(t, StatusLocked, s.Status)
	assert.Equal(t, 0, s.Misses)
	assert.Equal(t, moved, s.Corners)
}

func TestState_ZeroCoastFrames(t *testing.T) {
	s := NewState(0)
	s.Found(testCorners, testPose())

	s.Missed()
	assert.Equal(t, StatusLost, s.Status)
	assert.True(t, s.Pose.IsZero())
}

func TestState_Reset(t *testing.T) {
	s := NewState(7)
	s.Found(testCorners, testPose())
	s.Missed()

	s.Reset()
	assert.Equal(t, StatusLost, s.Status)
	assert.Equal(t, 0, s.Misses)
	assert.Equal(t, uint64(0), s.Frames)
	assert.True(t, s.Pose.IsZero())
	assert.Equal(t, 7, s.CoastFrames)
}

func TestStatus_JSON(t *testing.T) {
	for _, st := range []Status{StatusLost, StatusLocked, StatusCoasting} {
		data, err := json.Marshal(st)
		require.NoError(t, err)
		assert.Equal(t, `"`+st.String()+`"`, string(data))

		var back Status
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, st, back)
	}

	var s Status
	assert.Error(t, json.Unmarshal([]byte(`"SEARCHING"`), &s))
	assert.Equal(t, "Status(9)", Status(9).String())
}

func TestState_JSON(t *testing.T) {
	s := NewState(DefaultCoastFrames)
	s.Found(testCorners, testPose())

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "LOCKED", decoded["status"])
	assert.Len(t, decoded["pose"], 3)
	assert.Len(t, decoded["corners"], 4)
}
