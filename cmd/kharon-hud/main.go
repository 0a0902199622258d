// cmd/kharon-hud renders a simple heading-tape HUD from the runtime's
// status HTTP endpoint. It is a real "driver/beeper"-class collaborator
// in the spirit of spec.md §4.11: a downstream consumer of published
// attitude, built with the teacher's own video backend
// (github.com/hajimehoshi/ebiten/v2) rather than reimplementing a
// windowing toolkit. This is the one place in the repository the
// teacher's ebiten/gomobile/xgb rendering stack is exercised
// (SPEC_FULL.md §11).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

const (
	hudWidth  = 480
	hudHeight = 120
)

// headingSample is the minimal attitude state the HUD polls for. The
// runtime's status endpoint (status.go) is read-only JSON, never the
// out-of-scope postmaster. Field tags mirror status.go's AttitudeSnapshot.
type headingSample struct {
	TrueHeading  float64 `json:"true_heading"`
	Pitch        float64 `json:"pitch"`
	Roll         float64 `json:"roll"`
	TurnRate     float64 `json:"turn_rate"`
	RunningBlind bool    `json:"running_blind"`
	Have         bool    `json:"have"`
}

// hud implements ebiten.Game. It polls statusAddr on its own ticker and
// renders a simple text heading tape.
type hud struct {
	statusAddr string
	mu         sync.Mutex
	latest     headingSample
	lastPollOK bool
}

func newHUD(statusAddr string) *hud {
	h := &hud{statusAddr: statusAddr}
	go h.pollLoop()
	return h
}

func (h *hud) pollLoop() {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	client := &http.Client{Timeout: 500 * time.Millisecond}
	for range ticker.C {
		resp, err := client.Get(h.statusAddr + "/attitude")
		if err != nil {
			h.mu.Lock()
			h.lastPollOK = false
			h.mu.Unlock()
			continue
		}
		var sample headingSample
		err = json.NewDecoder(resp.Body).Decode(&sample)
		resp.Body.Close()
		h.mu.Lock()
		h.lastPollOK = err == nil && sample.Have
		if h.lastPollOK {
			h.latest = sample
		}
		h.mu.Unlock()
	}
}

func (h *hud) Update() error { return nil }

func (h *hud) Draw(screen *ebiten.Image) {
	h.mu.Lock()
	ok := h.lastPollOK
	sample := h.latest
	h.mu.Unlock()

	status := "connecting..."
	if ok {
		status = fmt.Sprintf("HDG %.1f  PITCH %.1f  ROLL %.1f", sample.TrueHeading, sample.Pitch, sample.Roll)
		if sample.RunningBlind {
			status += "  [RUNNING BLIND]"
		}
	}
	ebitenutil.DebugPrint(screen, status)
}

func (h *hud) Layout(outsideWidth, outsideHeight int) (int, int) {
	return hudWidth, hudHeight
}

func main() {
	statusAddr := flag.String("status-addr", "http://127.0.0.1:8642", "base URL of the kharon status endpoint")
	flag.Parse()

	ebiten.SetWindowSize(hudWidth, hudHeight)
	ebiten.SetWindowTitle("kharon heading tape")

	if err := ebiten.RunGame(newHUD(*statusAddr)); err != nil {
		log.Fatal(err)
	}
}
