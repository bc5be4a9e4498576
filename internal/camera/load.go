package camera

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const maxModelFileSize = 1 << 20

// LoadModel reads a calibration file.
//
// The file is JSON with the intrinsics under "intrinsic_parameters" and the
// Brown-Conrady coefficients under "distortion":
//
//	{
//	  "intrinsic_parameters": {"width_px": 800, "height_px": 600,
//	    "fx": 776.4, "fy": 770.2, "ppx": 346.3, "ppy": 315.5},
//	  "distortion": {"rk1": -0.358, "rk2": 0.559, "rk3": -0.893,
//	    "tp1": 0.00085, "tp2": -0.0041}
//	}
//
// A missing "distortion" object means an ideal lens.
func LoadModel(path string) (*Model, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, errors.Errorf("calibration file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening calibration file")
	}
	if info.Size() > maxModelFileSize {
		return nil, errors.Errorf("calibration file too large: %d bytes (max %d)", info.Size(), maxModelFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading calibration file")
	}
	return ParseModel(data)
}

// ParseModel decodes and validates a calibration document.
func ParseModel(data []byte) (*Model, error) {
	m := &Model{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, "error parsing calibration JSON")
	}
	if err := m.CheckValid(); err != nil {
		return nil, err
	}
	return m, nil
}
