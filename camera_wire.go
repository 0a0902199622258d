// camera_wire.go - per-frame camera TCP codec and connect handshake
// (spec.md §6 "Camera wire format").
//
// Grounded on _examples/original_source/remote/camera/camera_vy.c and
// core/core_modules/vy_receiver/receiver_logic.c: a fixed-size header
// (packet type, request/receive timestamps, rows/cols in 16-bit custom
// fields) followed by rows*cols bytes of V-channel then rows*cols bytes
// of Y-channel. Handshake: client sends a 4-byte magic, server replies
// with a 4-byte status.

package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	vyStreamID      uint32 = 0x31420004
	handshakeOK     uint32 = 0x28180000
	handshakeError  uint32 = 0xffff0000
	vyPacketType    uint32 = 0x56593030 // "VY00"

	// cameraHeaderWireSize is PacketType(4) + ReqTime(8) + RecvTime(8) +
	// Rows(2) + Cols(2), all fixed-width binary (encoding/binary), the
	// same idiom the teacher uses for MachineBus's fixed-width accessors.
	cameraHeaderWireSize = 4 + 8 + 8 + 2 + 2
)

// cameraWireFrame is one fully decoded camera TCP frame.
type cameraWireFrame struct {
	PacketType           uint32
	RequestTime, RecvTime float64
	Rows, Cols           uint16
	VChan, YChan         []byte
}

// performCameraHandshake implements the connect-time handshake from
// spec.md §6: the client sends VY_STREAM_ID (network byte order) and the
// server replies HANDSHAKE_OK or HANDSHAKE_ERROR.
func performCameraHandshake(rw io.ReadWriter) error {
	var magicBuf [4]byte
	if _, err := io.ReadFull(rw, magicBuf[:]); err != nil {
		return fmt.Errorf("camera_wire: read handshake magic: %w", err)
	}
	magic := binary.BigEndian.Uint32(magicBuf[:])

	var status uint32 = handshakeOK
	if magic != vyStreamID {
		status = handshakeError
	}
	var statusBuf [4]byte
	binary.BigEndian.PutUint32(statusBuf[:], status)
	if _, err := rw.Write(statusBuf[:]); err != nil {
		return fmt.Errorf("camera_wire: write handshake response: %w", err)
	}
	if status != handshakeOK {
		return fmt.Errorf("camera_wire: bad handshake magic 0x%08x", magic)
	}
	return nil
}

// readCameraFrame reads and decodes exactly one frame from r. A
// dimension mismatch against expectRows/expectCols is a structural
// protocol error and is fatal per spec.md §7 ("if the mismatch is
// structural (image dimension), fatal"); zero for either disables the
// check (used by tests).
func readCameraFrame(r io.Reader, expectRows, expectCols uint16) (*cameraWireFrame, error) {
	header := make([]byte, cameraHeaderWireSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	f := &cameraWireFrame{}
	f.PacketType = binary.BigEndian.Uint32(header[0:4])
	if f.PacketType != vyPacketType {
		return nil, fmt.Errorf("camera_wire: unexpected packet type 0x%08x", f.PacketType)
	}
	f.RequestTime = bitsToFloat(header[4:12])
	f.RecvTime = bitsToFloat(header[12:20])
	f.Rows = binary.BigEndian.Uint16(header[20:22])
	f.Cols = binary.BigEndian.Uint16(header[22:24])

	if (expectRows != 0 && f.Rows != expectRows) || (expectCols != 0 && f.Cols != expectCols) {
		return nil, &protocolFatalError{fmt.Sprintf("camera_wire: dimension mismatch: got %dx%d, want %dx%d",
			f.Rows, f.Cols, expectRows, expectCols)}
	}

	n := int(f.Rows) * int(f.Cols)
	if n <= 0 {
		return nil, fmt.Errorf("camera_wire: non-positive frame size %dx%d", f.Rows, f.Cols)
	}
	f.VChan = make([]byte, n)
	if _, err := io.ReadFull(r, f.VChan); err != nil {
		return nil, err
	}
	f.YChan = make([]byte, n)
	if _, err := io.ReadFull(r, f.YChan); err != nil {
		return nil, err
	}
	return f, nil
}

// writeCameraFrame encodes and writes one frame to w, used by tests and
// by any in-process simulator feeding the receiver.
func writeCameraFrame(w io.Writer, f *cameraWireFrame) error {
	header := make([]byte, cameraHeaderWireSize)
	binary.BigEndian.PutUint32(header[0:4], vyPacketType)
	floatToBits(header[4:12], f.RequestTime)
	floatToBits(header[12:20], f.RecvTime)
	binary.BigEndian.PutUint16(header[20:22], f.Rows)
	binary.BigEndian.PutUint16(header[22:24], f.Cols)
	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write(f.VChan); err != nil {
		return err
	}
	_, err := w.Write(f.YChan)
	return err
}

func bitsToFloat(b []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

func floatToBits(dst []byte, v float64) {
	binary.BigEndian.PutUint64(dst, math.Float64bits(v))
}

// protocolFatalError marks a protocol error that spec.md §7 calls out as
// structural (and therefore fatal rather than merely connection-closing).
type protocolFatalError struct{ msg string }

func (e *protocolFatalError) Error() string { return e.msg }
