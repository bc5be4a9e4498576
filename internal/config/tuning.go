package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TuningConfig holds the tracker tuning parameters.
//
// Every field is optional. Fields left out of the JSON document fall back
// to the defaults returned by the matching Get* method, so partial configs
// are safe.
type TuningConfig struct {
	// Preprocessing params
	Threshold     *float64 `json:"threshold,omitempty"`
	BlurSigma     *float64 `json:"blur_sigma,omitempty"`
	AutoThreshold *bool    `json:"auto_threshold,omitempty"`

	// Contour tracer params
	ScanDivisions      *int `json:"scan_divisions,omitempty"`
	MaxTraceIterations *int `json:"max_trace_iterations,omitempty"`
	MinContourLength   *int `json:"min_contour_length,omitempty"`

	// Quad fitter params
	EdgeTolerance          *float64 `json:"edge_tolerance,omitempty"`
	MaxAngleCos            *float64 `json:"max_angle_cos,omitempty"`
	OrientationSampleRatio *float64 `json:"orientation_sample_ratio,omitempty"`

	// Distortion corrector params
	UndistortIterations *int     `json:"undistort_iterations,omitempty"`
	UndistortEpsilon    *float64 `json:"undistort_epsilon,omitempty"`

	// Pose params
	HomographyMinSingularRatio *float64 `json:"homography_min_singular_ratio,omitempty"`
	BlendWeight                *float64 `json:"blend_weight,omitempty"`
	LMIterations               *int     `json:"lm_iterations,omitempty"`
	LMEpsilon                  *float64 `json:"lm_epsilon,omitempty"`
	LMInitialLambdaLog         *float64 `json:"lm_initial_lambda_log,omitempty"`
	LMLambdaLogBound           *float64 `json:"lm_lambda_log_bound,omitempty"`
	Orthonormalize             *bool    `json:"orthonormalize,omitempty"`

	// Tracker params
	CoastFrames *int `json:"coast_frames,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil,
// which yields the defaults from every Get* method.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseTuningConfig(data)
}

// ParseTuningConfig decodes and validates a tuning JSON document.
func ParseTuningConfig(data []byte) (*TuningConfig, error) {
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Merge returns a copy of c with every field set in override replacing the
// corresponding field of c.
func (c *TuningConfig) Merge(override *TuningConfig) *TuningConfig {
	out := *c
	if override == nil {
		return &out
	}
	mergeFloat(&out.Threshold, override.Threshold)
	mergeFloat(&out.BlurSigma, override.BlurSigma)
	mergeBool(&out.AutoThreshold, override.AutoThreshold)
	mergeInt(&out.ScanDivisions, override.ScanDivisions)
	mergeInt(&out.MaxTraceIterations, override.MaxTraceIterations)
	mergeInt(&out.MinContourLength, override.MinContourLength)
	mergeFloat(&out.EdgeTolerance, override.EdgeTolerance)
	mergeFloat(&out.MaxAngleCos, override.MaxAngleCos)
	mergeFloat(&out.OrientationSampleRatio, override.OrientationSampleRatio)
	mergeInt(&out.UndistortIterations, override.UndistortIterations)
	mergeFloat(&out.UndistortEpsilon, override.UndistortEpsilon)
	mergeFloat(&out.HomographyMinSingularRatio, override.HomographyMinSingularRatio)
	mergeFloat(&out.BlendWeight, override.BlendWeight)
	mergeInt(&out.LMIterations, override.LMIterations)
	mergeFloat(&out.LMEpsilon, override.LMEpsilon)
	mergeFloat(&out.LMInitialLambdaLog, override.LMInitialLambdaLog)
	mergeFloat(&out.LMLambdaLogBound, override.LMLambdaLogBound)
	mergeBool(&out.Orthonormalize, override.Orthonormalize)
	mergeInt(&out.CoastFrames, override.CoastFrames)
	return &out
}

func mergeFloat(dst **float64, src *float64) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

func mergeInt(dst **int, src *int) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

func mergeBool(dst **bool, src *bool) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.Threshold != nil && (*c.Threshold < 0 || *c.Threshold > 1) {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", *c.Threshold)
	}
	if c.BlurSigma != nil && *c.BlurSigma < 0 {
		return fmt.Errorf("blur_sigma must be non-negative, got %f", *c.BlurSigma)
	}
	if c.ScanDivisions != nil && *c.ScanDivisions < 1 {
		return fmt.Errorf("scan_divisions must be positive, got %d", *c.ScanDivisions)
	}
	if c.MaxTraceIterations != nil && *c.MaxTraceIterations < 1 {
		return fmt.Errorf("max_trace_iterations must be positive, got %d", *c.MaxTraceIterations)
	}
	if c.MinContourLength != nil && *c.MinContourLength < 4 {
		return fmt.Errorf("min_contour_length must be at least 4, got %d", *c.MinContourLength)
	}
	if c.EdgeTolerance != nil && *c.EdgeTolerance <= 0 {
		return fmt.Errorf("edge_tolerance must be positive, got %f", *c.EdgeTolerance)
	}
	if c.MaxAngleCos != nil && (*c.MaxAngleCos <= 0 || *c.MaxAngleCos > 1) {
		return fmt.Errorf("max_angle_cos must be in (0, 1], got %f", *c.MaxAngleCos)
	}
	if c.OrientationSampleRatio != nil && (*c.OrientationSampleRatio <= 0 || *c.OrientationSampleRatio >= 1) {
		return fmt.Errorf("orientation_sample_ratio must be in (0, 1), got %f", *c.OrientationSampleRatio)
	}
	if c.UndistortIterations != nil && *c.UndistortIterations < 0 {
		return fmt.Errorf("undistort_iterations must be non-negative, got %d", *c.UndistortIterations)
	}
	if c.UndistortEpsilon != nil && *c.UndistortEpsilon < 0 {
		return fmt.Errorf("undistort_epsilon must be non-negative, got %f", *c.UndistortEpsilon)
	}
	if c.HomographyMinSingularRatio != nil && *c.HomographyMinSingularRatio < 0 {
		return fmt.Errorf("homography_min_singular_ratio must be non-negative, got %g", *c.HomographyMinSingularRatio)
	}
	if c.BlendWeight != nil && (*c.BlendWeight < 0 || *c.BlendWeight >= 1) {
		return fmt.Errorf("blend_weight must be in [0, 1), got %f", *c.BlendWeight)
	}
	if c.LMIterations != nil && *c.LMIterations < 0 {
		return fmt.Errorf("lm_iterations must be non-negative, got %d", *c.LMIterations)
	}
	if c.LMEpsilon != nil && *c.LMEpsilon < 0 {
		return fmt.Errorf("lm_epsilon must be non-negative, got %f", *c.LMEpsilon)
	}
	if c.LMLambdaLogBound != nil && *c.LMLambdaLogBound <= 0 {
		return fmt.Errorf("lm_lambda_log_bound must be positive, got %f", *c.LMLambdaLogBound)
	}
	if c.LMInitialLambdaLog != nil {
		bound := c.GetLMLambdaLogBound()
		if *c.LMInitialLambdaLog < -bound || *c.LMInitialLambdaLog > bound {
			return fmt.Errorf("lm_initial_lambda_log must be within +-%g, got %f", bound, *c.LMInitialLambdaLog)
		}
	}
	if c.CoastFrames != nil && *c.CoastFrames < 0 {
		return fmt.Errorf("coast_frames must be non-negative, got %d", *c.CoastFrames)
	}
	return nil
}

// GetThreshold returns the threshold value or the default.
func (c *TuningConfig) GetThreshold() float64 {
	if c.Threshold == nil {
		return 0.5
	}
	return *c.Threshold
}

// GetBlurSigma returns the blur_sigma value or the default.
func (c *TuningConfig) GetBlurSigma() float64 {
	if c.BlurSigma == nil {
		return 0 // default: no blur
	}
	return *c.BlurSigma
}

// GetAutoThreshold returns the auto_threshold value or the default.
func (c *TuningConfig) GetAutoThreshold() bool {
	if c.AutoThreshold == nil {
		return false
	}
	return *c.AutoThreshold
}

// GetScanDivisions returns the scan_divisions value or the default.
func (c *TuningConfig) GetScanDivisions() int {
	if c.ScanDivisions == nil {
		return 20
	}
	return *c.ScanDivisions
}

// GetMaxTraceIterations returns the max_trace_iterations value or the default.
func (c *TuningConfig) GetMaxTraceIterations() int {
	if c.MaxTraceIterations == nil {
		return 5000
	}
	return *c.MaxTraceIterations
}

// GetMinContourLength returns the min_contour_length value or the default.
func (c *TuningConfig) GetMinContourLength() int {
	if c.MinContourLength == nil {
		return 200
	}
	return *c.MinContourLength
}

// GetEdgeTolerance returns the edge_tolerance value or the default.
func (c *TuningConfig) GetEdgeTolerance() float64 {
	if c.EdgeTolerance == nil {
		return 6.0
	}
	return *c.EdgeTolerance
}

// GetMaxAngleCos returns the max_angle_cos value or the default.
func (c *TuningConfig) GetMaxAngleCos() float64 {
	if c.MaxAngleCos == nil {
		return 0.94
	}
	return *c.MaxAngleCos
}

// GetOrientationSampleRatio returns the orientation_sample_ratio value or the default.
func (c *TuningConfig) GetOrientationSampleRatio() float64 {
	if c.OrientationSampleRatio == nil {
		return 0.3
	}
	return *c.OrientationSampleRatio
}

// GetUndistortIterations returns the undistort_iterations value or the default.
func (c *TuningConfig) GetUndistortIterations() int {
	if c.UndistortIterations == nil {
		return 10
	}
	return *c.UndistortIterations
}

// GetUndistortEpsilon returns the undistort_epsilon value or the default.
func (c *TuningConfig) GetUndistortEpsilon() float64 {
	if c.UndistortEpsilon == nil {
		return 0.001
	}
	return *c.UndistortEpsilon
}

// GetHomographyMinSingularRatio returns the homography_min_singular_ratio value or the default.
func (c *TuningConfig) GetHomographyMinSingularRatio() float64 {
	if c.HomographyMinSingularRatio == nil {
		return 1e-9
	}
	return *c.HomographyMinSingularRatio
}

// GetBlendWeight returns the weight of the previous pose when blending, or
// the default.
func (c *TuningConfig) GetBlendWeight() float64 {
	if c.BlendWeight == nil {
		return 0.6
	}
	return *c.BlendWeight
}

// GetLMIterations returns the lm_iterations value or the default.
func (c *TuningConfig) GetLMIterations() int {
	if c.LMIterations == nil {
		return 30
	}
	return *c.LMIterations
}

// GetLMEpsilon returns the lm_epsilon value or the default.
func (c *TuningConfig) GetLMEpsilon() float64 {
	if c.LMEpsilon == nil {
		return 0.001
	}
	return *c.LMEpsilon
}

// GetLMInitialLambdaLog returns the lm_initial_lambda_log value or the default.
func (c *TuningConfig) GetLMInitialLambdaLog() float64 {
	if c.LMInitialLambdaLog == nil {
		return -4
	}
	return *c.LMInitialLambdaLog
}

// GetLMLambdaLogBound returns the lm_lambda_log_bound value or the default.
func (c *TuningConfig) GetLMLambdaLogBound() float64 {
	if c.LMLambdaLogBound == nil {
		return 16
	}
	return *c.LMLambdaLogBound
}

// GetOrthonormalize returns the orthonormalize value or the default.
func (c *TuningConfig) GetOrthonormalize() bool {
	if c.Orthonormalize == nil {
		return false // default: publish the raw refined matrix
	}
	return *c.Orthonormalize
}

// GetCoastFrames returns the coast_frames value or the default.
func (c *TuningConfig) GetCoastFrames() int {
	if c.CoastFrames == nil {
		return 20
	}
	return *c.CoastFrames
}
