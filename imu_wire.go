// imu_wire.go - per-sample IMU TCP frame codec (spec.md §6 "IMU wire
// format").
//
// Fixed-size binary header (decoded with encoding/binary, the same idiom
// the teacher uses for MachineBus's Read32/Write32 accessors) followed by
// SP_SERIAL_LENGTH ASCII bytes holding up to 14 floats in fixed 20-byte
// "%.7e" fields, order {gyr.xyz, acc.xyz, mag.xyz, gps.xyz, temp, baro}.
// An all-zero field means "not present".

package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	imuPacketType        uint32 = 0x494D5530 // "IMU0"
	spSerialFieldWidth          = 20
	spSerialFieldCount          = 14
	spSerialLength              = spSerialFieldWidth * spSerialFieldCount // 280
	sensorPacketLogData         = 128

	// imuHeaderWireSize is PacketType(4) + AcqTimestamp ascii field(24) + LogLen(4).
	imuHeaderWireSize = 4 + 24 + 4
	imuFrameWireSize  = imuHeaderWireSize + sensorPacketLogData + spSerialLength
)

// imuWireFrame is the fully decoded contents of one IMU TCP frame.
type imuWireFrame struct {
	PacketType  uint32
	AcqTime     float64 // seconds since epoch, parsed from the "%.4f" ascii field
	DeviceLog   string  // SPEC_FULL.md §12.3 passthrough
	Gyr, Acc, Mag Vec3
	GPS         Vec3 // present only on devices with an integrated GPS; rarely used here
	Temp, Baro  float64
	GyrPresent, AccPresent, MagPresent bool
}

// readIMUFrame reads and decodes exactly one frame from r. Returns
// io.EOF (possibly wrapped) on a clean close; any other error is a
// protocol or transient I/O error per spec.md §7.
func readIMUFrame(r io.Reader) (*imuWireFrame, error) {
	buf := make([]byte, imuFrameWireSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	packetType := binary.BigEndian.Uint32(buf[0:4])
	if packetType != imuPacketType {
		return nil, fmt.Errorf("imu_wire: bad packet type 0x%08X", packetType)
	}

	acqStr := trimNulls(buf[4:28])
	acqTime, err := strconv.ParseFloat(strings.TrimSpace(acqStr), 64)
	if err != nil {
		return nil, fmt.Errorf("imu_wire: bad acquisition timestamp %q: %w", acqStr, err)
	}

	logLen := binary.BigEndian.Uint32(buf[28:32])
	if logLen > sensorPacketLogData {
		return nil, fmt.Errorf("imu_wire: log length %d exceeds %d", logLen, sensorPacketLogData)
	}
	logBytes := buf[imuHeaderWireSize : imuHeaderWireSize+int(logLen)]
	deviceLog := string(logBytes)

	serial := buf[imuHeaderWireSize+sensorPacketLogData:]
	fields, err := decodeSerialFields(serial)
	if err != nil {
		return nil, err
	}

	frame := &imuWireFrame{
		PacketType: packetType,
		AcqTime:    acqTime,
		DeviceLog:  deviceLog,
		Gyr:        Vec3{fields[0], fields[1], fields[2]},
		Acc:        Vec3{fields[3], fields[4], fields[5]},
		Mag:        Vec3{fields[6], fields[7], fields[8]},
		GPS:        Vec3{fields[9], fields[10], fields[11]},
		Temp:       fields[12],
		Baro:       fields[13],
	}
	frame.GyrPresent = fields[0] != 0 || fields[1] != 0 || fields[2] != 0
	frame.AccPresent = fields[3] != 0 || fields[4] != 0 || fields[5] != 0
	frame.MagPresent = fields[6] != 0 || fields[7] != 0 || fields[8] != 0
	return frame, nil
}

// writeIMUFrame encodes frame in the same layout readIMUFrame expects;
// used by tests.
func writeIMUFrame(w io.Writer, frame *imuWireFrame) error {
	buf := make([]byte, imuFrameWireSize)
	binary.BigEndian.PutUint32(buf[0:4], imuPacketType)
	copy(buf[4:28], padASCII(fmt.Sprintf("%.4f", frame.AcqTime), 24))

	logBytes := []byte(frame.DeviceLog)
	if len(logBytes) > sensorPacketLogData {
		logBytes = logBytes[:sensorPacketLogData]
	}
	binary.BigEndian.PutUint32(buf[28:32], uint32(len(logBytes)))
	copy(buf[imuHeaderWireSize:imuHeaderWireSize+sensorPacketLogData], logBytes)

	fields := [spSerialFieldCount]float64{
		frame.Gyr.X, frame.Gyr.Y, frame.Gyr.Z,
		frame.Acc.X, frame.Acc.Y, frame.Acc.Z,
		frame.Mag.X, frame.Mag.Y, frame.Mag.Z,
		frame.GPS.X, frame.GPS.Y, frame.GPS.Z,
		frame.Temp, frame.Baro,
	}
	serial := buf[imuHeaderWireSize+sensorPacketLogData:]
	for i, v := range fields {
		copy(serial[i*spSerialFieldWidth:(i+1)*spSerialFieldWidth], padASCII(fmt.Sprintf("%.7e", v), spSerialFieldWidth))
	}

	_, err := w.Write(buf)
	return err
}

func decodeSerialFields(serial []byte) ([spSerialFieldCount]float64, error) {
	var out [spSerialFieldCount]float64
	for i := 0; i < spSerialFieldCount; i++ {
		field := strings.TrimSpace(trimNulls(serial[i*spSerialFieldWidth : (i+1)*spSerialFieldWidth]))
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return out, fmt.Errorf("imu_wire: bad field %d %q: %w", i, field, err)
		}
		out[i] = v
	}
	return out, nil
}

func padASCII(s string, width int) []byte {
	b := make([]byte, width)
	copy(b, s)
	return b
}

func trimNulls(b []byte) string {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return string(b[:i])
}
