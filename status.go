// status.go - read-only operator introspection HTTP endpoint
// (SPEC_FULL.md §11 domain stack: gorilla/mux).
//
// This is explicitly not the postmaster (spec.md §1, §6 "command
// postmaster" stays out of scope as an external collaborator): no
// commands are accepted here, only JSON snapshots of queue/stage state
// for a human or dashboard to poll.

package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// QueueStatus is one producer queue's point-in-time snapshot.
type QueueStatus struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Produced uint64 `json:"produced"`
}

// DropStatus is one (consumer, producer) cursor's running data-loss
// counter: how many records the reader is known to have lost to
// overwrite by falling more than N/2 behind (SPEC_FULL.md §12.2).
type DropStatus struct {
	Consumer string `json:"consumer"`
	Producer string `json:"producer"`
	Dropped  uint64 `json:"dropped"`
}

// AttitudeSnapshot is the subset of AttitudeRecord the HUD (and any
// other dashboard-style consumer) needs, per SPEC_FULL.md §11's ebiten
// HUD wiring.
type AttitudeSnapshot struct {
	TrueHeading  float64 `json:"true_heading"`
	Pitch        float64 `json:"pitch"`
	Roll         float64 `json:"roll"`
	TurnRate     float64 `json:"turn_rate"`
	RunningBlind bool    `json:"running_blind"`
	Have         bool    `json:"have"`
}

// StatusServer exposes /status, /queues, /drops and /attitude for
// read-only introspection.
type StatusServer struct {
	router     *mux.Router
	queueFn    func() []QueueStatus
	stageFn    func() []string
	attitudeFn func() AttitudeSnapshot
	dropsFn    func() []DropStatus
}

// NewStatusServer builds the router. Every *Fn is called fresh on every
// request so the snapshot always reflects current state. attitudeFn and
// dropsFn may be nil when the corresponding stage state is not wired.
func NewStatusServer(queueFn func() []QueueStatus, stageFn func() []string, attitudeFn func() AttitudeSnapshot, dropsFn func() []DropStatus) *StatusServer {
	s := &StatusServer{queueFn: queueFn, stageFn: stageFn, attitudeFn: attitudeFn, dropsFn: dropsFn}
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/queues", s.handleQueues).Methods(http.MethodGet)
	r.HandleFunc("/drops", s.handleDrops).Methods(http.MethodGet)
	r.HandleFunc("/attitude", s.handleAttitude).Methods(http.MethodGet)
	s.router = r
	return s
}

func (s *StatusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"stages": s.stageFn()})
}

func (s *StatusServer) handleQueues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.queueFn())
}

func (s *StatusServer) handleDrops(w http.ResponseWriter, r *http.Request) {
	if s.dropsFn == nil {
		writeJSON(w, []DropStatus{})
		return
	}
	writeJSON(w, s.dropsFn())
}

func (s *StatusServer) handleAttitude(w http.ResponseWriter, r *http.Request) {
	if s.attitudeFn == nil {
		writeJSON(w, AttitudeSnapshot{})
		return
	}
	writeJSON(w, s.attitudeFn())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
