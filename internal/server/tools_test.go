package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()
	require.NotEmpty(t, tools)

	expectedTools := []string{
		"frame_load",
		"frame_binarize",
		"marker_detect",
		"marker_track",
		"marker_overlay",
		"tracker_status",
		"tracker_reset",
		"tracker_configure",
		"camera_get",
		"camera_load",
	}

	toolMap := make(map[string]Tool)
	for _, tool := range tools {
		_, dup := toolMap[tool.Name]
		assert.False(t, dup, "duplicate tool %s", tool.Name)
		toolMap[tool.Name] = tool
	}

	for _, name := range expectedTools {
		assert.Contains(t, toolMap, name)
	}
	assert.Len(t, toolMap, len(expectedTools))
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			assert.NotEmpty(t, tool.Name)
			assert.NotEmpty(t, tool.Description)
			require.NotNil(t, tool.InputSchema)
			assert.Equal(t, "object", tool.InputSchema["type"])

			props, ok := tool.InputSchema["properties"].(map[string]interface{})
			require.True(t, ok, "properties should be a map")

			// Every required argument must be declared.
			if required, ok := tool.InputSchema["required"].([]string); ok {
				for _, name := range required {
					assert.Contains(t, props, name)
				}
			}
		})
	}
}

func TestToolDefinitions_FrameToolsShareArguments(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		switch tool.Name {
		case "frame_binarize", "marker_detect", "marker_track", "marker_overlay":
		default:
			continue
		}
		props := tool.InputSchema["properties"].(map[string]interface{})
		for _, arg := range []string{"path", "threshold", "blur_sigma", "auto_threshold"} {
			assert.Contains(t, props, arg, "%s missing %s", tool.Name, arg)
		}
	}
}

func TestToolDefinitions_JSON(t *testing.T) {
	data, err := json.Marshal(GetToolDefinitions())
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, tool := range decoded {
		assert.Contains(t, tool, "inputSchema")
	}
}
