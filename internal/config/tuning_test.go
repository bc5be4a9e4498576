package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyTuningConfig_Defaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	assert.Equal(t, 0.5, cfg.GetThreshold())
	assert.Equal(t, 0.0, cfg.GetBlurSigma())
	assert.False(t, cfg.GetAutoThreshold())
	assert.Equal(t, 20, cfg.GetScanDivisions())
	assert.Equal(t, 5000, cfg.GetMaxTraceIterations())
	assert.Equal(t, 200, cfg.GetMinContourLength())
	assert.Equal(t, 6.0, cfg.GetEdgeTolerance())
	assert.Equal(t, 0.94, cfg.GetMaxAngleCos())
	assert.Equal(t, 0.3, cfg.GetOrientationSampleRatio())
	assert.Equal(t, 10, cfg.GetUndistortIterations())
	assert.Equal(t, 0.001, cfg.GetUndistortEpsilon())
	assert.Equal(t, 1e-9, cfg.GetHomographyMinSingularRatio())
	assert.Equal(t, 0.6, cfg.GetBlendWeight())
	assert.Equal(t, 30, cfg.GetLMIterations())
	assert.Equal(t, 0.001, cfg.GetLMEpsilon())
	assert.Equal(t, -4.0, cfg.GetLMInitialLambdaLog())
	assert.Equal(t, 16.0, cfg.GetLMLambdaLogBound())
	assert.False(t, cfg.GetOrthonormalize())
	assert.Equal(t, 20, cfg.GetCoastFrames())

	require.NoError(t, cfg.Validate())
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tuning.json")

	testJSON := `{
  "threshold": 0.4,
  "auto_threshold": true,
  "scan_divisions": 10,
  "edge_tolerance": 3.5,
  "coast_frames": 5,
  "orthonormalize": true
}`
	require.NoError(t, os.WriteFile(configPath, []byte(testJSON), 0o644))

	cfg, err := LoadTuningConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 0.4, cfg.GetThreshold())
	assert.True(t, cfg.GetAutoThreshold())
	assert.Equal(t, 10, cfg.GetScanDivisions())
	assert.Equal(t, 3.5, cfg.GetEdgeTolerance())
	assert.Equal(t, 5, cfg.GetCoastFrames())
	assert.True(t, cfg.GetOrthonormalize())

	// Omitted fields keep their defaults.
	assert.Nil(t, cfg.MinContourLength)
	assert.Equal(t, 200, cfg.GetMinContourLength())
	assert.Equal(t, 30, cfg.GetLMIterations())
}

func TestLoadTuningConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	_, err := LoadTuningConfig(filepath.Join(tmpDir, "tuning.yaml"))
	assert.ErrorContains(t, err, ".json extension")

	_, err = LoadTuningConfig(filepath.Join(tmpDir, "missing.json"))
	assert.ErrorContains(t, err, "failed to stat")

	bad := filepath.Join(tmpDir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = LoadTuningConfig(bad)
	assert.ErrorContains(t, err, "failed to parse")

	big := filepath.Join(tmpDir, "big.json")
	require.NoError(t, os.WriteFile(big, []byte(`{"threshold": 0.5, "pad": "`+strings.Repeat("x", 2<<20)+`"}`), 0o644))
	_, err = LoadTuningConfig(big)
	assert.ErrorContains(t, err, "too large")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"threshold above one", `{"threshold": 1.5}`},
		{"negative blur", `{"blur_sigma": -1}`},
		{"zero scan divisions", `{"scan_divisions": 0}`},
		{"zero trace iterations", `{"max_trace_iterations": 0}`},
		{"tiny contour", `{"min_contour_length": 3}`},
		{"zero edge tolerance", `{"edge_tolerance": 0}`},
		{"angle cos above one", `{"max_angle_cos": 1.2}`},
		{"orientation ratio one", `{"orientation_sample_ratio": 1}`},
		{"negative undistort iterations", `{"undistort_iterations": -1}`},
		{"negative undistort epsilon", `{"undistort_epsilon": -0.1}`},
		{"negative singular ratio", `{"homography_min_singular_ratio": -1}`},
		{"blend weight one", `{"blend_weight": 1}`},
		{"negative lm iterations", `{"lm_iterations": -1}`},
		{"negative lm epsilon", `{"lm_epsilon": -1}`},
		{"zero lambda bound", `{"lm_lambda_log_bound": 0}`},
		{"lambda log outside bound", `{"lm_initial_lambda_log": -20}`},
		{"negative coast frames", `{"coast_frames": -1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTuningConfig([]byte(tt.json))
			assert.ErrorContains(t, err, "invalid configuration")
		})
	}
}

func TestMerge(t *testing.T) {
	base, err := ParseTuningConfig([]byte(`{"threshold": 0.3, "coast_frames": 10}`))
	require.NoError(t, err)
	override, err := ParseTuningConfig([]byte(`{"coast_frames": 3, "orthonormalize": true}`))
	require.NoError(t, err)

	merged := base.Merge(override)
	assert.Equal(t, 0.3, merged.GetThreshold())
	assert.Equal(t, 3, merged.GetCoastFrames())
	assert.True(t, merged.GetOrthonormalize())

	// Inputs are not modified.
	assert.Equal(t, 10, base.GetCoastFrames())
	assert.Nil(t, base.Orthonormalize)

	*override.CoastFrames = 99
	assert.Equal(t, 3, merged.GetCoastFrames())

	same := base.Merge(nil)
	assert.Equal(t, base, same)
	assert.NotSame(t, base, same)
}
