// collaborators.go - pure Go interfaces for the components spec.md §1
// explicitly places out of scope, plus enough of the wire-level types
// from §6 to make their method signatures compile-check against the
// rest of the graph. None of these interfaces has an implementation in
// this repository (SPEC_FULL.md §10.6); they exist so the wiring layer
// can reference a collaborator's shape without reimplementing it.

package main

import "context"

// ConfigLoader is the out-of-scope Lua configuration loader (spec.md
// §1). Kharon's own wiring document is YAML (SPEC_FULL.md §10.3); a
// Lua-backed implementation of this interface is the original runtime's
// loader and is not provided here.
type ConfigLoader interface {
	Load(ctx context.Context, path string) (*WiringDocument, error)
}

// PostmasterRequestType enumerates the command-plane request kinds from
// spec.md §6 "Control plane".
type PostmasterRequestType uint32

const (
	PostmasterNull PostmasterRequestType = iota
	PostmasterAnnotation
	PostmasterShutdown
	PostmasterAutopilotOn
	PostmasterAutopilotOff
	PostmasterModuleResume
	PostmasterModulePause
	PostmasterSetHeading
	PostmasterSetDestination
)

// PostmasterRequest mirrors spec.md §6's
// {request_type, header_bytes, custom_0..2, payload}; header_bytes has no
// field of its own here.
type PostmasterRequest struct {
	RequestType PostmasterRequestType
	Custom0, Custom1, Custom2 int32
	Payload []byte
}

// PostmasterResponse echoes the request type (or 0 on failure) and
// carries an optional payload, per spec.md §6.
type PostmasterResponse struct {
	RequestType PostmasterRequestType
	Payload     []byte
}

// Postmaster is the out-of-scope command/response TCP surface (spec.md
// §1, §6). SET_HEADING/SET_DESTINATION/MODULE_PAUSE etc. are requests a
// real postmaster would translate into calls against the Scheduler,
// Declination and the (also out-of-scope) RoutePlanner.
type Postmaster interface {
	Handle(ctx context.Context, req PostmasterRequest) (PostmasterResponse, error)
}

// ClockSync is the out-of-scope UDP broadcast time-sync receiver
// (spec.md §1, §6). A real implementation calls TimeBase.SetOffset.
type ClockSync interface {
	Start(ctx context.Context, tb *TimeBase) error
}

// RemoteCameraLink is the out-of-scope remote-node image acquisition
// collaborator (spec.md §1) that the CameraReceiver's TCP server side
// expects to dial in and perform the §6 handshake.
type RemoteCameraLink interface {
	Stream(ctx context.Context, addr string) error
}

// Beeper is the out-of-scope ALSA audio backend (spec.md §1). It
// consumes attitude and GPS state and emits audible alerts, including
// the "running blind" alert spec.md §7 calls out when attitude's
// RunningBlind flag is set.
type Beeper interface {
	Alert(ctx context.Context, kind string) error
}

// RoutePlanner is the out-of-scope mapping/routing subsystem (spec.md
// §1) that consumes attitude+GPS+targets and publishes route decisions.
// Specified here only at its interface boundary.
type RoutePlanner interface {
	SteeringCommand(ctx context.Context, attitude AttitudeRecord, gps GPSFix) (headingDeg float64, err error)
}

// LogArchiver is the out-of-scope on-disk log writer beyond the
// per-stage file handles LogSession already opens (spec.md §1, §6
// "log-file writing").
type LogArchiver interface {
	Archive(ctx context.Context, sessionDir string) error
}

// BathymetryTool is the out-of-scope GEBCO bathymetry image tooling
// (spec.md §1).
type BathymetryTool interface {
	RenderChart(ctx context.Context, latMin, lonMin, latMax, lonMax float64) ([]byte, error)
}

// ImageColorConverter is the out-of-scope RGB<->YUV image utility
// (spec.md §1) that a real Beeper/HUD implementation might use to
// render camera frames for a human operator.
type ImageColorConverter interface {
	RGBToYUV(rgb []byte) (y, u, v []byte)
	YUVToRGB(y, u, v []byte) []byte
}
