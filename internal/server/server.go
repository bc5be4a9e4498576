package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ironsheep/marker-pose-mcp/internal/camera"
	"github.com/ironsheep/marker-pose-mcp/internal/config"
	"github.com/ironsheep/marker-pose-mcp/internal/imaging"
	"github.com/ironsheep/marker-pose-mcp/internal/tracking"
)

// Server handles MCP protocol communication
type Server struct {
	cache   *imaging.FrameCache
	cameras *camera.Store
	logger  zerolog.Logger
	version string

	// mu guards the tracker: one frame is processed at a time and tool
	// calls that read the state see a whole frame's update.
	mu        sync.Mutex
	tuning    *config.TuningConfig
	pipeline  *tracking.Pipeline
	state     *tracking.State
	last      *tracking.FrameResult
	lastFrame string

	watchMu     sync.Mutex
	watcher     *camera.Watcher
	watchCancel context.CancelFunc
}

// Options configures a Server.
type Options struct {
	// Logger receives protocol and tracker events. The zero value
	// discards them.
	Logger zerolog.Logger

	// Cameras is the calibration store. Nil uses camera.DefaultModel.
	Cameras *camera.Store

	// Tuning overrides the pipeline defaults. Nil uses the defaults.
	Tuning *config.TuningConfig

	// Version is reported in the initialize handshake.
	Version string
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// New creates a new MCP server instance
func New(opts Options) *Server {
	if opts.Cameras == nil {
		opts.Cameras = camera.NewStore(nil)
	}
	if opts.Tuning == nil {
		opts.Tuning = config.EmptyTuningConfig()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	logger := opts.Logger.With().Str("component", "server").Logger()

	s := &Server{
		cache:   imaging.NewFrameCache(imaging.DefaultFrameCacheSize),
		cameras: opts.Cameras,
		logger:  logger,
		version: opts.Version,
	}
	s.configure(opts.Tuning)
	return s
}

// configure rebuilds the pipeline for a tuning document. The tracker state
// keeps its history; only the coast limit follows the new tuning. The
// caller must hold mu, or be the constructor.
func (s *Server) configure(tuning *config.TuningConfig) {
	opts := tracking.OptionsFromTuning(tuning)
	s.tuning = tuning
	s.pipeline = tracking.NewPipeline(opts, s.cameras, s.logger)
	if s.state == nil {
		s.state = tracking.NewState(opts.CoastFrames)
	} else {
		s.state.CoastFrames = opts.CoastFrames
	}
}

// Serve processes newline-delimited JSON-RPC requests from r and writes the
// responses to w until r is exhausted.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn().Err(err).Msg("failed to parse request")
			continue
		}

		resp := s.handleRequest(&req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				s.logger.Error().Err(err).Msg("failed to encode response")
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// Close stops the calibration watcher, if one is running.
func (s *Server) Close() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	return s.stopWatchLocked()
}

func (s *Server) stopWatchLocked() error {
	if s.watcher == nil {
		return nil
	}
	s.watchCancel()
	err := s.watcher.Close()
	s.watcher, s.watchCancel = nil, nil
	return err
}

// Watch reloads the calibration from path now and whenever it changes,
// replacing any previous watch.
func (s *Server) Watch(path string) error {
	w, err := camera.NewWatcher(path, s.cameras, s.logger)
	if err != nil {
		return err
	}
	if err := w.Reload(); err != nil {
		_ = w.Close()
		return err
	}

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if err := s.stopWatchLocked(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to close previous calibration watcher")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.watcher, s.watchCancel = w, cancel
	go func() {
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("calibration watcher stopped")
		}
	}()
	return nil
}

// watchedPath returns the calibration file under watch, or "".
func (s *Server) watchedPath() string {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher == nil {
		return ""
	}
	return s.watcher.Path()
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "marker-pose-mcp",
				"version": s.version,
			},
		},
	}
}
