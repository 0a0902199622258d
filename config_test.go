package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleWiringYAML = `
log_root: /tmp/kharon-logs
declination_deg: -3.5
status_addr: 127.0.0.1:8642
imus:
  - name: imu0
    address: 192.168.1.10:5000
    rot_gyr: [[1,0,0],[0,1,0],[0,0,1]]
    rot_acc: [[1,0,0],[0,1,0],[0,0,1]]
    rot_mag: [[1,0,0],[0,1,0],[0,0,1]]
    priority_gyr: P1
    priority_acc: P1
    priority_mag: P1
gps:
  - name: gps0
    address: 192.168.1.11:5010
cameras:
  - name: cam0
    listen_addr: 0.0.0.0:6000
    camera_num: 0
    rows: 480
    cols: 640
attitude:
  mag_error_divisor: 4
frame_sync:
  frame_interval_sec: 0.1
  arena_size: 64
`

func writeTempWiring(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "wiring.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadWiringDocumentValid(t *testing.T) {
	path := writeTempWiring(t, sampleWiringYAML)
	doc, err := LoadWiringDocument(path)
	require.NoError(t, err)
	require.Equal(t, -3.5, doc.Declination)
	require.Len(t, doc.IMUs, 1)
	require.Equal(t, "imu0", doc.IMUs[0].Name)
	require.Len(t, doc.Cameras, 1)
	require.Equal(t, 480, doc.Cameras[0].Rows)
}

func TestLoadWiringDocumentRejectsNoIMUs(t *testing.T) {
	path := writeTempWiring(t, "imus: []\n")
	_, err := LoadWiringDocument(path)
	require.Error(t, err)
}

func TestLoadWiringDocumentRejectsBadPriority(t *testing.T) {
	bad := `
imus:
  - name: imu0
    address: 1.2.3.4:5000
    priority_gyr: BOGUS
`
	path := writeTempWiring(t, bad)
	_, err := LoadWiringDocument(path)
	require.Error(t, err)
}

func TestLoadWiringDocumentRejectsOutOfRangeCameraNum(t *testing.T) {
	bad := `
imus:
  - name: imu0
    address: 1.2.3.4:5000
cameras:
  - name: cam0
    listen_addr: 0.0.0.0:6000
    camera_num: 99
    rows: 1
    cols: 1
`
	path := writeTempWiring(t, bad)
	_, err := LoadWiringDocument(path)
	require.Error(t, err)
}

func TestRotMatFromWiring(t *testing.T) {
	rows := [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	m := rotMatFromWiring(rows)
	require.Equal(t, Identity(), m)
}
