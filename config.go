// config.go - the declarative wiring document (SPEC_FULL.md §10.3).
//
// Non-goal 5 excludes the Lua configuration *grammar* specifically
// (spec.md §1), not configuration wholesale. Kharon reads a plain YAML
// document describing stages and their per-modality producer/consumer
// edges via gopkg.in/yaml.v3, the same library and tag style
// sarchlab-zeonica's core/program.go uses for its YAML core
// description. There is no expression language or control flow here,
// only a typed document the wiring layer validates.

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WiringDocument is the root of the YAML wiring document.
type WiringDocument struct {
	LogRoot     string                `yaml:"log_root"`
	Declination float64               `yaml:"declination_deg"`
	StatusAddr  string                `yaml:"status_addr"`
	IMUs        []IMUWiring           `yaml:"imus"`
	GPS         []GPSWiring           `yaml:"gps"`
	Cameras     []CameraWiring        `yaml:"cameras"`
	Attitude    AttitudeWiring        `yaml:"attitude"`
	FrameSync   FrameSyncWiring       `yaml:"frame_sync"`
}

// IMUWiring is one §4.2 IMU receiver's configuration block plus the
// attitude-estimator priority tuple that wires it in (SPEC_FULL.md §9/§11
// "Variable-priority merge").
type IMUWiring struct {
	Name     string  `yaml:"name"`
	Address  string  `yaml:"address"`
	RotGyr   [3][3]float64 `yaml:"rot_gyr"`
	RotAcc   [3][3]float64 `yaml:"rot_acc"`
	RotMag   [3][3]float64 `yaml:"rot_mag"`
	MagBiasX float64 `yaml:"mag_bias_x"`
	MagBiasY float64 `yaml:"mag_bias_y"`
	PriorityGyr string `yaml:"priority_gyr"`
	PriorityAcc string `yaml:"priority_acc"`
	PriorityMag string `yaml:"priority_mag"`
}

// GPSWiring is one §4.3 GPS receiver's configuration block.
type GPSWiring struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// CameraWiring is one §2.8 camera receiver's configuration block.
type CameraWiring struct {
	Name       string `yaml:"name"`
	ListenAddr string `yaml:"listen_addr"`
	CameraNum  int    `yaml:"camera_num"`
	Rows       int    `yaml:"rows"`
	Cols       int    `yaml:"cols"`
}

// AttitudeWiring carries the attitude estimator's tunables (spec.md §9
// "undocumented tuning constant" exposed as configurable).
type AttitudeWiring struct {
	MagErrorDivisor float64 `yaml:"mag_error_divisor"`
}

// FrameSyncWiring carries the frame-sync cadence tunables (spec.md §4.5).
type FrameSyncWiring struct {
	FrameIntervalSec float64 `yaml:"frame_interval_sec"`
	ArenaSize        int     `yaml:"arena_size"`
}

// LoadWiringDocument reads and parses a YAML wiring document from path.
// Structural YAML errors are configuration errors and are fatal at
// startup (spec.md §7).
func LoadWiringDocument(path string) (*WiringDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var doc WiringDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := validateWiringDocument(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func validateWiringDocument(doc *WiringDocument) error {
	if len(doc.IMUs) == 0 {
		return errConfig("config: at least one imu must be wired")
	}
	if len(doc.IMUs) > maxIMUProducers {
		return errConfig("config: too many imus wired (%d, max %d)", len(doc.IMUs), maxIMUProducers)
	}
	if len(doc.Cameras) > maxCameras {
		return errConfig("config: too many cameras wired (%d, max %d)", len(doc.Cameras), maxCameras)
	}
	for _, imu := range doc.IMUs {
		if imu.Name == "" || imu.Address == "" {
			return errConfig("config: imu entry missing name or address")
		}
		if !validPriority(imu.PriorityGyr) || !validPriority(imu.PriorityAcc) || !validPriority(imu.PriorityMag) {
			return errConfig("config: imu %s has an invalid priority tier", imu.Name)
		}
	}
	for _, cam := range doc.Cameras {
		if cam.CameraNum < 0 || cam.CameraNum >= maxCameras {
			return errConfig("config: camera %s has out-of-range camera_num %d", cam.Name, cam.CameraNum)
		}
	}
	return nil
}

func validPriority(p string) bool {
	switch Priority(p) {
	case PriorityP1, PriorityP2, PriorityP3, PriorityNull, "":
		return true
	default:
		return false
	}
}

// rotMatFromWiring converts a [3][3]float64 YAML block into a Mat3 whose
// rows are the given rotation rows (spec.md §4.2 "three 3x3 device->ship
// rotation matrices").
func rotMatFromWiring(rows [3][3]float64) Mat3 {
	toVec := func(r [3]float64) Vec3 { return Vec3{X: r[0], Y: r[1], Z: r[2]} }
	return FromRows(toVec(rows[0]), toVec(rows[1]), toVec(rows[2]))
}
