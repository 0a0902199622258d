// frame_sync.go - frame-sync stage (spec.md §4.5/2.10 "Frame-sync").
//
// Groups per-camera reprojected frames whose timestamps fall inside a
// small alignment window and publishes full or best-effort sets. Ported
// from the original C source's intrusive-pointer freelist
// (_examples/original_source/core/core_modules/frame_sync/align_frames.c)
// to an arena of indices per SPEC_FULL.md §9/§11's redesign note: nodes
// are identified by a uint32 slot id into a fixed []frameNode arena, and
// the doubly-linked list's prev/next fields hold slot ids (with a
// sentinel for "none") instead of pointers, so bounds checks are a slice
// index instead of a raw-pointer dereference.

package main

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	noNode = ^uint32(0)

	alignSecs = 0.08 // full-set tolerance window, spec.md §4.5
)

// frameNode is one arena slot: a camera frame pending inclusion in a
// published set, linked ascending by t.
type frameNode struct {
	inUse  bool
	t      float64
	camNum uint8
	frame  *OpticalUpRecord
	prev   uint32
	next   uint32
}

// frameArena is the fixed-size freelist described in spec.md §3
// ("Frame-node... drawn from a fixed-size freelist arena of size F").
// Allocation beyond F is fatal (spec.md §4.5).
type frameArena struct {
	nodes     []frameNode
	freeHead  uint32
	listHead  uint32
	allocated int
}

func newFrameArena(size int) *frameArena {
	a := &frameArena{nodes: make([]frameNode, size), listHead: noNode}
	for i := range a.nodes {
		a.nodes[i].next = uint32(i) + 1
		a.nodes[i].prev = noNode
	}
	if size > 0 {
		a.nodes[size-1].next = noNode
	}
	a.freeHead = 0
	return a
}

func (a *frameArena) allocate(log *zap.SugaredLogger) uint32 {
	if a.freeHead == noNode {
		hardExit(log, "frame_sync: frame node arena exhausted (size %d)", len(a.nodes))
	}
	id := a.freeHead
	a.freeHead = a.nodes[id].next
	a.nodes[id] = frameNode{inUse: true, prev: noNode, next: noNode}
	a.allocated++
	return id
}

func (a *frameArena) free(id uint32) {
	a.nodes[id] = frameNode{next: a.freeHead, prev: noNode}
	a.freeHead = id
	a.allocated--
}

// insert places a new node in the sorted-by-t active list (spec.md §4.5
// "Active list").
func (a *frameArena) insert(t float64, camNum uint8, frame *OpticalUpRecord, log *zap.SugaredLogger) uint32 {
	id := a.allocate(log)
	a.nodes[id].t = t
	a.nodes[id].camNum = camNum
	a.nodes[id].frame = frame

	if a.listHead == noNode {
		a.listHead = id
		return id
	}
	cur := a.listHead
	var prev uint32 = noNode
	for cur != noNode && a.nodes[cur].t <= t {
		prev = cur
		cur = a.nodes[cur].next
	}
	a.nodes[id].prev = prev
	a.nodes[id].next = cur
	if cur != noNode {
		a.nodes[cur].prev = id
	}
	if prev == noNode {
		a.listHead = id
	} else {
		a.nodes[prev].next = id
	}
	return id
}

// purgeUpTo removes every node with t <= cutoff from the active list.
func (a *frameArena) purgeUpTo(cutoff float64) {
	cur := a.listHead
	for cur != noNode && a.nodes[cur].t <= cutoff {
		next := a.nodes[cur].next
		a.free(cur)
		cur = next
	}
	a.listHead = cur
	if cur != noNode {
		a.nodes[cur].prev = noNode
	}
}

// FrameSyncConfig wires the camera producers and the per-device cadence
// tunables from spec.md §4.5.
type FrameSyncConfig struct {
	Cameras         []*OpticalUp
	FrameIntervalSec float64 // nominal camera inter-frame interval
	ArenaSize        int     // F, spec.md §3 (e.g. 64)

	// Drops, when non-nil, receives this stage's per-camera cursor loss
	// counters for the status endpoint (SPEC_FULL.md §12.2).
	Drops *DropRegistry
}

// FrameSet is the published record: one optical-up record per camera
// slot, or nil (spec.md §3 "Frame-set record").
type FrameSet struct {
	Frames [maxCameras]*OpticalUpRecord
}

// FrameSync is the frame-alignment stage. Exactly one instance runs per
// graph.
type FrameSync struct {
	cfg FrameSyncConfig
	log *zap.SugaredLogger

	Queue *ProducerQueue[FrameSet]

	cursors      []*Cursor[OpticalUpRecord]
	camOfCursor  []uint8
	arena        *frameArena
	lastSyncTime float64
	numCams      int

	missedInterval float64
	dumpInterval   float64

	done        atomic.Bool
	initialized bool
}

// NewFrameSync builds the stage. Queue capacity 256 at camera cadence
// comfortably covers consumer lag.
func NewFrameSync(cfg FrameSyncConfig, log *zap.SugaredLogger) *FrameSync {
	if cfg.ArenaSize <= 0 {
		cfg.ArenaSize = 64
	}
	return &FrameSync{
		cfg:   cfg,
		log:   log,
		Queue: NewProducerQueue[FrameSet](256, 1),
	}
}

func (f *FrameSync) Name() string { return "frame_sync" }

// PreRun validates the wired camera count and builds the arena and
// per-camera cursors (spec.md §4.5 "Inputs", §4.1 add_producer).
func (f *FrameSync) PreRun(ctx context.Context) error {
	f.numCams = len(f.cfg.Cameras)
	if f.numCams == 0 || f.numCams > maxCameras {
		return errConfig("frame_sync: wired camera count %d out of range [1,%d]", f.numCams, maxCameras)
	}
	if f.cfg.FrameIntervalSec <= 0 {
		return errConfig("frame_sync: frame_interval_sec must be > 0")
	}
	f.missedInterval = 1.5 * f.cfg.FrameIntervalSec
	f.dumpInterval = 5 * f.cfg.FrameIntervalSec
	f.arena = newFrameArena(f.cfg.ArenaSize)

	for _, c := range f.cfg.Cameras {
		cursor := NewCursor(c.Queue)
		if f.cfg.Drops != nil {
			f.cfg.Drops.Register(f.Name(), c.Name(), cursor)
		}
		f.cursors = append(f.cursors, cursor)
		f.camOfCursor = append(f.camOfCursor, c.CameraNum())
	}
	return nil
}

func (f *FrameSync) PostRun(ctx context.Context) error {
	f.Queue.Close()
	return nil
}

func (f *FrameSync) Abort() { f.done.Store(true) }

func (f *FrameSync) Run(ctx context.Context) error {
	// Frame-sync consumes from up to MAX_CAMS independent producers, so
	// it cannot block in a single producer's condition variable the way
	// a single-producer consumer does; it polls for the earliest
	// available arrival across all wired cameras instead (spec.md §4.5
	// "get_next_earliest_frame" cycles every producer each pass).
	for !f.done.Load() {
		if f.drainOneArrival() {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Millisecond):
		}
		// spec.md §4.1, §5: after this stage's wait()-equivalent poll
		// returns, pick up a pending reload request.
		MaybeReload(ctx)
	}
	return nil
}

// drainOneArrival consumes the single earliest-available frame across
// all wired cameras (spec.md §4.5 step "get_next_earliest_frame"),
// inserts it, and runs the publish loop. Returns false when no producer
// has data.
func (f *FrameSync) drainOneArrival() bool {
	best := -1
	var bestTs float64
	for i, cur := range f.cursors {
		if !cur.HasData() {
			continue
		}
		_, ts, _, _ := cur.q.At(cur.Consumed())
		if best < 0 || ts < bestTs {
			best = i
			bestTs = ts
		}
	}
	if best < 0 {
		return false
	}
	record, ts, ok := f.cursors[best].Consume()
	if !ok {
		return false
	}
	if !f.initialized {
		f.lastSyncTime = ts - f.cfg.FrameIntervalSec
		f.initialized = true
	}

	rec := record
	f.arena.insert(ts, f.camOfCursor[best], &rec, f.log)

	for {
		publishTime, ok := f.checkForFrameSet(ts)
		if !ok {
			break
		}
		set := f.buildFrameSet(publishTime)
		f.arena.purgeUpTo(publishTime)
		f.lastSyncTime = publishTime
		f.Queue.Publish(set, publishTime)
	}
	return true
}

// checkForFrameSet implements spec.md §4.5's three-regime algorithm
// (healthy / missed / dump), grounded on align_frames.c's
// check_for_frame_set.
func (f *FrameSync) checkForFrameSet(frameTime float64) (float64, bool) {
	dt := frameTime - f.lastSyncTime
	switch {
	case dt > f.dumpInterval:
		f.lastSyncTime = frameTime - f.cfg.FrameIntervalSec
		f.arena.purgeUpTo(f.lastSyncTime)
		return 0, false
	case dt > f.missedInterval:
		target := f.lastSyncTime + f.cfg.FrameIntervalSec
		ivalStart := target - 0.51*f.cfg.FrameIntervalSec
		ivalEnd := target + 0.51*f.cfg.FrameIntervalSec
		if t, ok := f.findBestSetInInterval(ivalStart, ivalEnd); ok {
			return t, true
		}
		f.lastSyncTime += f.cfg.FrameIntervalSec
		f.arena.purgeUpTo(f.lastSyncTime)
		return 0, false
	default:
		return f.findNextFullSet()
	}
}

// findNextFullSet searches the active list for the earliest sliding
// window of width alignSecs containing one node from every camera
// (spec.md §4.5 step 5).
func (f *FrameSync) findNextFullSet() (float64, bool) {
	node := f.arena.listHead
	if node == noNode {
		return 0, false
	}
	trailing := node
	leading := node
	// perCam counts the window's nodes per camera; distinct is how many
	// cameras have at least one node in it.
	var perCam [maxCameras]int
	perCam[f.arena.nodes[node].camNum]++
	distinct := 1
	node = f.arena.nodes[node].next
	for node != noNode {
		leading = node
		if perCam[f.arena.nodes[leading].camNum] == 0 {
			distinct++
		}
		perCam[f.arena.nodes[leading].camNum]++
		for f.arena.nodes[trailing].t < f.arena.nodes[leading].t-alignSecs {
			cam := f.arena.nodes[trailing].camNum
			perCam[cam]--
			if perCam[cam] == 0 {
				distinct--
			}
			trailing = f.arena.nodes[trailing].next
		}
		if distinct == f.numCams {
			return (f.arena.nodes[trailing].t + f.arena.nodes[leading].t) / 2, true
		}
		node = f.arena.nodes[node].next
	}
	return 0, false
}

// findBestSetInInterval implements spec.md §4.5 step 4's best-effort
// sub-window search: the width-alignSecs window within [start,end]
// containing the most nodes.
func (f *FrameSync) findBestSetInInterval(start, end float64) (float64, bool) {
	node := f.arena.listHead
	var trailing, leading uint32 = noNode, noNode
	count := 0
	bestCount := 0
	bestTime := 0.0
	found := false

	for node != noNode {
		t := f.arena.nodes[node].t
		if t < start {
			node = f.arena.nodes[node].next
			continue
		}
		if t > end {
			break
		}
		if trailing == noNode {
			trailing = node
		}
		leading = node
		count++
		for f.arena.nodes[trailing].t < f.arena.nodes[leading].t-alignSecs {
			trailing = f.arena.nodes[trailing].next
			count--
		}
		if count > bestCount {
			bestCount = count
			bestTime = (f.arena.nodes[trailing].t + f.arena.nodes[leading].t) / 2
			found = true
		}
		node = f.arena.nodes[node].next
	}
	return bestTime, found
}

// buildFrameSet collects every node within alignSecs/2 of t into the
// output set (spec.md §4.5 "Publication"). Per SPEC_FULL.md §12.6, a
// duplicate frame from the same camera within the window is resolved
// most-recent-wins: since the active list is sorted ascending by t, a
// later duplicate simply overwrites an earlier one as the scan proceeds.
func (f *FrameSync) buildFrameSet(t float64) FrameSet {
	var set FrameSet
	half := alignSecs / 2
	node := f.arena.listHead
	for node != noNode {
		nt := f.arena.nodes[node].t
		if nt > t+half {
			break
		}
		if nt >= t-half {
			cam := f.arena.nodes[node].camNum
			if set.Frames[cam] != nil {
				f.log.Debugw("dropped_duplicate_frame", "cam", cam, "t", nt)
			}
			set.Frames[cam] = f.arena.nodes[node].frame
		}
		node = f.arena.nodes[node].next
	}
	return set
}
