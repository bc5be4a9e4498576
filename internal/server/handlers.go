package server

import (
	"encoding/json"
	"fmt"
	"image"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"

	"github.com/ironsheep/marker-pose-mcp/internal/camera"
	"github.com/ironsheep/marker-pose-mcp/internal/config"
	"github.com/ironsheep/marker-pose-mcp/internal/detection"
	"github.com/ironsheep/marker-pose-mcp/internal/imaging"
	"github.com/ironsheep/marker-pose-mcp/internal/pose"
	"github.com/ironsheep/marker-pose-mcp/internal/tracking"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "frame_load", "marker_track").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}
	if len(params.Arguments) == 0 {
		params.Arguments = json.RawMessage("{}")
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.logger.Debug().Err(err).Str("tool", params.Name).Msg("tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}
	return s.toolResponse(req.ID, params.Name, result)
}

// toolResponse wraps a tool result in MCP content. A result that cannot be
// encoded, such as one carrying NaN or infinite errors from a pose that
// projects a corner to infinity, becomes a -32000 error.
func (s *Server) toolResponse(id interface{}, tool string, result interface{}) *MCPResponse {
	text, err := marshalResult(result)
	if err != nil {
		s.logger.Warn().Err(err).Str("tool", tool).Msg("tool result not encodable")
		return s.errorResponse(id, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": text,
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies the active tuning for optional parameters
//  3. Loads frames from cache as needed
//  4. Calls the appropriate imaging/tracking/camera function
//  5. Returns the result or error
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Frame Operations
	case "frame_load":
		return s.handleFrameLoad(args)
	case "frame_binarize":
		return s.handleFrameBinarize(args)

	// Marker Operations
	case "marker_detect":
		return s.handleMarkerDetect(args)
	case "marker_track":
		return s.handleMarkerTrack(args)
	case "marker_overlay":
		return s.handleMarkerOverlay(args)

	// Tracker Operations
	case "tracker_status":
		return s.handleTrackerStatus(args)
	case "tracker_reset":
		return s.handleTrackerReset(args)
	case "tracker_configure":
		return s.handleTrackerConfigure(args)

	// Camera Operations
	case "camera_get":
		return s.handleCameraGet(args)
	case "camera_load":
		return s.handleCameraLoad(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// marshalResult converts a tool result to a pretty-printed JSON string.
func marshalResult(v interface{}) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}

// === Result Types ===

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func toPoints(c [4]r2.Point) *[4]point {
	var out [4]point
	for i, p := range c {
		out[i] = point{X: p.X, Y: p.Y}
	}
	return &out
}

// matRows returns m in row-major form.
func matRows(m mgl64.Mat3) [3][3]float64 {
	var rows [3][3]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			rows[r][c] = m.At(r, c)
		}
	}
	return rows
}

type detectionResult struct {
	Corners       *[4]point        `json:"corners"`
	Centroid      point            `json:"centroid"`
	ContourLength int              `json:"contour_length"`
	Residuals     [4]float64       `json:"edge_residuals"`
	AngleCosines  [4]float64       `json:"angle_cosines"`
	Oriented      bool             `json:"oriented"`
	Bounds        detection.Bounds `json:"bounds"`
}

func newDetectionResult(d *detection.Detection) *detectionResult {
	if d == nil {
		return nil
	}
	return &detectionResult{
		Corners:       toPoints(d.Quad.Corners()),
		Centroid:      point{X: d.Centroid.X, Y: d.Centroid.Y},
		ContourLength: d.ContourLength,
		Residuals:     d.Residuals,
		AngleCosines:  d.Quad.AngleCosines(),
		Oriented:      d.Oriented,
		Bounds:        d.Bounds,
	}
}

type estimateResult struct {
	Undistorted         *[4]point        `json:"undistorted_corners"`
	Homography          [3][3]float64    `json:"homography"`
	HomographyError     float64          `json:"homography_error_px"`
	RawPose             pose.Pose        `json:"raw_pose"`
	Blended             bool             `json:"blended"`
	Pose                pose.Pose        `json:"pose"`
	ReprojectionError   float64          `json:"reprojection_error"`
	OrthonormalityError float64          `json:"orthonormality_error"`
	Refinement          *pose.Refinement `json:"refinement"`
}

func newEstimateResult(e *tracking.Estimate) *estimateResult {
	if e == nil {
		return nil
	}
	return &estimateResult{
		Undistorted:         toPoints(e.Undistorted),
		Homography:          matRows(e.Homography),
		HomographyError:     e.HomographyError,
		RawPose:             e.Raw,
		Blended:             e.Blended,
		Pose:                e.Pose,
		ReprojectionError:   e.ReprojectionError,
		OrthonormalityError: e.OrthonormalityError,
		Refinement:          e.Refinement,
	}
}

// === Frame Handlers ===

type frameLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleFrameLoad(args json.RawMessage) (interface{}, error) {
	var a frameLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	return imaging.LoadFrameInfo(s.cache, a.Path)
}

// frameArgs are the arguments shared by the tools that binarize a frame.
// Unset preprocessing fields fall back to the active tuning.
type frameArgs struct {
	Path          string   `json:"path"`
	Threshold     *float64 `json:"threshold"`
	BlurSigma     *float64 `json:"blur_sigma"`
	AutoThreshold *bool    `json:"auto_threshold"`
}

func (a frameArgs) binarizeOptions(def imaging.BinarizeOptions) imaging.BinarizeOptions {
	opts := def
	if a.Threshold != nil {
		opts.Threshold = *a.Threshold
	}
	if a.BlurSigma != nil {
		opts.BlurSigma = *a.BlurSigma
	}
	if a.AutoThreshold != nil {
		opts.AutoThreshold = *a.AutoThreshold
	}
	return opts
}

func (a frameArgs) validate() error {
	if a.Path == "" {
		return fmt.Errorf("path is required")
	}
	if a.Threshold != nil && (*a.Threshold < 0 || *a.Threshold > 1) {
		return fmt.Errorf("threshold must be between 0 and 1, got %g", *a.Threshold)
	}
	if a.BlurSigma != nil && *a.BlurSigma < 0 {
		return fmt.Errorf("blur_sigma must be non-negative, got %g", *a.BlurSigma)
	}
	return nil
}

// binarizeFrame loads a frame and reduces it to a BinaryImage. The cache
// rereads files that changed on disk, so a capture process may rewrite one
// path between calls.
func (s *Server) binarizeFrame(a frameArgs, def imaging.BinarizeOptions) (image.Image, *imaging.BinaryImage, uint8, error) {
	if err := a.validate(); err != nil {
		return nil, nil, 0, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, nil, 0, err
	}
	bin, level, err := imaging.Binarize(img, a.binarizeOptions(def))
	if err != nil {
		return nil, nil, 0, err
	}
	return img, bin, level, nil
}

// currentPipeline returns the pipeline of the active tuning.
func (s *Server) currentPipeline() *tracking.Pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipeline
}

func (s *Server) handleFrameBinarize(args json.RawMessage) (interface{}, error) {
	var a frameArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	p := s.currentPipeline()
	_, bin, level, err := s.binarizeFrame(a, p.Options().Binarize)
	if err != nil {
		return nil, err
	}
	return imaging.EncodeBinary(bin, level)
}

// === Marker Handlers ===

type markerDetectResult struct {
	Width           int              `json:"width"`
	Height          int              `json:"height"`
	ThresholdLevel  uint8            `json:"threshold_level"`
	Found           bool             `json:"found"`
	Failure         string           `json:"failure,omitempty"`
	Detection       *detectionResult `json:"detection,omitempty"`
	Estimate        *estimateResult  `json:"estimate,omitempty"`
	EstimateFailure string           `json:"estimate_failure,omitempty"`
}

func (s *Server) handleMarkerDetect(args json.RawMessage) (interface{}, error) {
	var a frameArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	p := s.currentPipeline()
	_, bin, level, err := s.binarizeFrame(a, p.Options().Binarize)
	if err != nil {
		return nil, err
	}

	result := &markerDetectResult{
		Width:          bin.Width(),
		Height:         bin.Height(),
		ThresholdLevel: level,
	}

	det, err := p.Detector().Detect(bin)
	if err != nil {
		result.Failure = err.Error()
		return result, nil
	}
	result.Found = true
	result.Detection = newDetectionResult(det)

	est, err := p.Estimate(det.Quad.Corners(), p.Model(bin.Width(), bin.Height()), nil)
	if err != nil {
		result.EstimateFailure = err.Error()
		return result, nil
	}
	result.Estimate = newEstimateResult(est)
	return result, nil
}

type markerTrackResult struct {
	Frame          string           `json:"frame"`
	ThresholdLevel uint8            `json:"threshold_level"`
	Found          bool             `json:"found"`
	Status         tracking.Status  `json:"status"`
	PreviousStatus tracking.Status  `json:"previous_status"`
	Misses         int              `json:"misses"`
	Frames         uint64           `json:"frames"`
	Failure        string           `json:"failure,omitempty"`
	Corners        *[4]point        `json:"corners,omitempty"`
	Pose           *pose.Pose       `json:"pose,omitempty"`
	Detection      *detectionResult `json:"detection,omitempty"`
	Estimate       *estimateResult  `json:"estimate,omitempty"`
}

// track runs one frame through the tracker. The caller must hold mu.
func (s *Server) track(a frameArgs) (image.Image, *tracking.FrameResult, uint8, error) {
	img, bin, level, err := s.binarizeFrame(a, s.pipeline.Options().Binarize)
	if err != nil {
		return nil, nil, 0, err
	}
	res := s.pipeline.ProcessFrame(s.state, bin)
	s.last, s.lastFrame = res, a.Path
	return img, res, level, nil
}

func (s *Server) handleMarkerTrack(args json.RawMessage) (interface{}, error) {
	var a frameArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, res, level, err := s.track(a)
	if err != nil {
		return nil, err
	}

	result := &markerTrackResult{
		Frame:          a.Path,
		ThresholdLevel: level,
		Found:          res.Found,
		Status:         res.Status,
		PreviousStatus: res.Previous,
		Misses:         res.Misses,
		Frames:         s.state.Frames,
		Failure:        res.Failure(),
		Detection:      newDetectionResult(res.Detection),
		Estimate:       newEstimateResult(res.Estimate),
	}
	if res.Status != tracking.StatusLost {
		result.Corners = toPoints(res.Corners)
		published := res.Pose
		result.Pose = &published
	}
	return result, nil
}

type markerOverlayArgs struct {
	frameArgs
	Track  bool    `json:"track"`
	Crop   bool    `json:"crop"`
	Margin *int    `json:"margin"`
	Scale  float64 `json:"scale"`
	Color  string  `json:"color"`
}

func (s *Server) handleMarkerOverlay(args json.RawMessage) (interface{}, error) {
	var a markerOverlayArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := a.validate(); err != nil {
		return nil, err
	}

	opts := tracking.DefaultOverlayOptions()
	opts.Crop = a.Crop
	if a.Margin != nil {
		opts.CropMargin = *a.Margin
	}
	if a.Scale != 0 {
		opts.CropScale = a.Scale
	}
	if a.Color != "" {
		opts.QuadColor = a.Color
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var frame image.Image
	res := s.last
	if a.Track || res == nil {
		img, tracked, _, err := s.track(a.frameArgs)
		if err != nil {
			return nil, err
		}
		frame, res = img, tracked
	} else {
		img, err := s.cache.Load(a.Path)
		if err != nil {
			return nil, err
		}
		frame = img
	}

	return tracking.RenderOverlay(frame, res, opts)
}

// === Tracker Handlers ===

type trackerStatusResult struct {
	Status      tracking.Status      `json:"status"`
	Misses      int                  `json:"misses"`
	Frames      uint64               `json:"frames"`
	CoastFrames int                  `json:"coast_frames"`
	LastFrame   string               `json:"last_frame,omitempty"`
	Corners     *[4]point            `json:"corners,omitempty"`
	Pose        *pose.Pose           `json:"pose,omitempty"`
	Tuning      *config.TuningConfig `json:"tuning"`
	Cache       imaging.CacheStats   `json:"frame_cache"`
}

// status snapshots the tracker. The caller must hold mu.
func (s *Server) status() *trackerStatusResult {
	st := s.state
	result := &trackerStatusResult{
		Status:      st.Status,
		Misses:      st.Misses,
		Frames:      st.Frames,
		CoastFrames: st.CoastFrames,
		LastFrame:   s.lastFrame,
		Tuning:      s.tuning,
		Cache:       s.cache.Stats(),
	}
	if st.Status != tracking.StatusLost {
		result.Corners = toPoints(st.Corners)
		published := st.Pose
		result.Pose = &published
	}
	return result
}

func (s *Server) handleTrackerStatus(_ json.RawMessage) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status(), nil
}

func (s *Server) handleTrackerReset(_ json.RawMessage) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Reset()
	s.last, s.lastFrame = nil, ""
	s.cache.Clear()
	s.logger.Info().Msg("tracker reset")
	return s.status(), nil
}

type trackerConfigureArgs struct {
	Tuning json.RawMessage `json:"tuning"`
	Reset  bool            `json:"reset"`
}

func (s *Server) handleTrackerConfigure(args json.RawMessage) (interface{}, error) {
	var a trackerConfigureArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if len(a.Tuning) == 0 {
		return nil, fmt.Errorf("tuning is required")
	}
	override, err := config.ParseTuningConfig(a.Tuning)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.tuning
	if a.Reset {
		base = config.EmptyTuningConfig()
	}
	merged := base.Merge(override)
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s.configure(merged)
	s.logger.Info().RawJSON("tuning", a.Tuning).Bool("reset", a.Reset).Msg("tracker reconfigured")
	return s.status(), nil
}

// === Camera Handlers ===

type cameraResult struct {
	Model       *camera.Model `json:"model"`
	Scaled      *camera.Model `json:"scaled,omitempty"`
	Version     uint64        `json:"version"`
	WatchedPath string        `json:"watched_path,omitempty"`
}

func (s *Server) cameraResult(width, height int) *cameraResult {
	m := s.cameras.Load()
	result := &cameraResult{
		Model:       m,
		Version:     s.cameras.Version(),
		WatchedPath: s.watchedPath(),
	}
	if width > 0 && height > 0 {
		result.Scaled = m.ScaledTo(width, height)
	}
	return result
}

type cameraGetArgs struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s *Server) handleCameraGet(args json.RawMessage) (interface{}, error) {
	var a cameraGetArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Width < 0 || a.Height < 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", a.Width, a.Height)
	}
	return s.cameraResult(a.Width, a.Height), nil
}

type cameraLoadArgs struct {
	Path  string `json:"path"`
	Watch bool   `json:"watch"`
}

func (s *Server) handleCameraLoad(args json.RawMessage) (interface{}, error) {
	var a cameraLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	if a.Watch {
		if err := s.Watch(a.Path); err != nil {
			return nil, err
		}
		return s.cameraResult(0, 0), nil
	}

	m, err := camera.LoadModel(a.Path)
	if err != nil {
		return nil, err
	}
	if _, err := s.cameras.Swap(m); err != nil {
		return nil, err
	}
	s.logger.Info().Str("path", a.Path).Uint64("version", s.cameras.Version()).Msg("calibration loaded")
	return s.cameraResult(0, 0), nil
}
