package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// pathProperty is the frame path argument shared by the frame tools.
func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the camera frame (PNG, JPEG or GIF)",
	}
}

// frameProperties returns the path argument plus the preprocessing
// overrides accepted by every tool that binarizes a frame.
func frameProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": pathProperty(),
		"threshold": map[string]interface{}{
			"type":        "number",
			"description": "Luminance cut in [0, 1]; darker pixels are black. Defaults to the tuning value (0.5)",
			"minimum":     0,
			"maximum":     1,
		},
		"blur_sigma": map[string]interface{}{
			"type":        "number",
			"description": "Gaussian blur sigma applied before thresholding. 0 disables",
			"minimum":     0,
		},
		"auto_threshold": map[string]interface{}{
			"type":        "boolean",
			"description": "Use the frame's mean luminance as the cut instead of threshold",
		},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	overlayProps := frameProperties()
	overlayProps["track"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Run marker_track on the frame first. Otherwise the last tracked result is drawn",
	}
	overlayProps["crop"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Crop the output to the marker outline plus margin",
	}
	overlayProps["margin"] = map[string]interface{}{
		"type":        "integer",
		"description": "Crop margin in pixels. Default 40",
		"default":     40,
	}
	overlayProps["scale"] = map[string]interface{}{
		"type":        "number",
		"description": "Scale factor applied after cropping. Default 1.0",
		"default":     1.0,
	}
	overlayProps["color"] = map[string]interface{}{
		"type":        "string",
		"description": "Outline color as hex (#RRGGBB or #RRGGBBAA). Default #00FF00",
		"default":     "#00FF00",
	}

	return []Tool{
		// Frame Operations
		{
			Name:        "frame_load",
			Description: "Load a camera frame and return its dimensions and format. The frame is cached for later tool calls.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "frame_binarize",
			Description: "Convert a frame to the black/white image the marker detector sees. Returns the binary image as base64 PNG, the threshold level applied and the black pixel ratio.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": frameProperties(),
				"required":   []string{"path"},
			},
		},

		// Marker Operations
		{
			Name:        "marker_detect",
			Description: "Detect a square marker in a frame without touching the tracker state. Returns the four labeled corners, edge straightness residuals, corner angle cosines and a single-frame pose estimate.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": frameProperties(),
				"required":   []string{"path"},
			},
		},
		{
			Name:        "marker_track",
			Description: "Feed a frame to the marker tracker. Runs detection, undistortion, homography, pose decomposition and Levenberg-Marquardt refinement, then updates the LOCKED/COASTING/LOST state. Returns the published corners and 3x4 pose with error metrics.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": frameProperties(),
				"required":   []string{"path"},
			},
		},
		{
			Name:        "marker_overlay",
			Description: "Draw the tracked marker outline, corner labels 1-4 and pose axes over a frame. Returns a base64 PNG for visual verification.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": overlayProps,
				"required":   []string{"path"},
			},
		},

		// Tracker Operations
		{
			Name:        "tracker_status",
			Description: "Get the tracker state, miss counter, last published corners and pose, and the active tuning.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "tracker_reset",
			Description: "Reset the tracker to LOST and forget the last pose.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "tracker_configure",
			Description: "Update tracker tuning. Fields given override the current tuning; omitted fields are unchanged. Takes effect on the next frame.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"tuning": map[string]interface{}{
						"type":        "object",
						"description": "Tuning fields, e.g. {\"edge_tolerance\": 4, \"coast_frames\": 10, \"orthonormalize\": true}",
					},
					"reset": map[string]interface{}{
						"type":        "boolean",
						"description": "Discard the current tuning before applying the given fields",
					},
				},
				"required": []string{"tuning"},
			},
		},

		// Camera Operations
		{
			Name:        "camera_get",
			Description: "Get the active camera calibration (intrinsics and distortion) and, if given a frame size, the calibration scaled to it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Frame width to scale the intrinsics to",
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Frame height to scale the intrinsics to",
					},
				},
			},
		},
		{
			Name:        "camera_load",
			Description: "Load a camera calibration JSON file and make it active. With watch, the file is reloaded whenever it changes.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the calibration JSON file",
					},
					"watch": map[string]interface{}{
						"type":        "boolean",
						"description": "Reload the file on every change",
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
