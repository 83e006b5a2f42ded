package progress

import (
	"sync"
	"time"
)

// DefaultThrottle is the minimum interval between throttled emissions.
const DefaultThrottle = 100 * time.Millisecond

// Update is the snapshot delivered to observers. Pointer fields are nil
// while the corresponding value is unknown.
type Update struct {
	Percentage  *float64 `json:"percentage"`
	BytesDone   uint64   `json:"bytes_written"`
	TotalBytes  *uint64  `json:"total_bytes"`
	ETASeconds  *float64 `json:"eta_seconds"`
	CurrentFile string   `json:"current_file,omitempty"`
	FilesDone   uint32   `json:"files_processed"`
	TotalFiles  *uint32  `json:"total_files"`
	Phase       Phase    `json:"phase"`
}

// Sink receives progress updates. It is called from the worker goroutine
// and must not block for long.
type Sink func(Update)

// Emitter pushes throttled updates from a Tracker to a Sink. The tracker
// stays a pure counter object; all observer concerns live here. The last
// emission time is the one piece of shared mutable state that needs a lock.
type Emitter struct {
	tracker  *Tracker
	sink     Sink
	throttle time.Duration

	mu       sync.Mutex
	lastEmit time.Time
}

// NewEmitter creates an emitter over the given tracker. A nil sink discards
// updates, which keeps call sites free of nil checks. A non-positive
// throttle falls back to DefaultThrottle.
//
// The first ShouldEmit check after construction always succeeds, so the
// opening update of an operation bypasses throttling.
func NewEmitter(tracker *Tracker, sink Sink, throttle time.Duration) *Emitter {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	return &Emitter{tracker: tracker, sink: sink, throttle: throttle}
}

// Tracker returns the underlying tracker.
func (e *Emitter) Tracker() *Tracker {
	return e.tracker
}

// ShouldEmit reports whether enough time has passed since the last emission
// and, if so, marks now as the last emission time.
func (e *Emitter) ShouldEmit() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	if now.Sub(e.lastEmit) >= e.throttle {
		e.lastEmit = now
		return true
	}
	return false
}

// ForceNextEmit makes the next ShouldEmit check succeed regardless of when
// the previous emission happened.
func (e *Emitter) ForceNextEmit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastEmit = time.Time{}
}

// Emit delivers a throttled update. Returns true if the update was sent.
func (e *Emitter) Emit(phase Phase, currentFile string) bool {
	if !e.ShouldEmit() {
		return false
	}
	e.emit(phase, currentFile)
	return true
}

// EmitForced delivers an update regardless of throttling.
func (e *Emitter) EmitForced(phase Phase, currentFile string) {
	e.mu.Lock()
	e.lastEmit = time.Now()
	e.mu.Unlock()
	e.emit(phase, currentFile)
}

// Complete delivers the final completion update, bypassing throttling.
func (e *Emitter) Complete() {
	e.ForceNextEmit()
	e.EmitForced(PhaseComplete, "")
}

func (e *Emitter) emit(phase Phase, currentFile string) {
	if e.sink == nil {
		return
	}
	e.sink(e.Snapshot(phase, currentFile))
}

// Snapshot builds an Update from the tracker's current state.
func (e *Emitter) Snapshot(phase Phase, currentFile string) Update {
	u := Update{
		BytesDone:   e.tracker.BytesDone(),
		FilesDone:   e.tracker.FilesDone(),
		CurrentFile: currentFile,
		Phase:       phase,
	}
	if pct, ok := e.tracker.Percentage(); ok {
		u.Percentage = &pct
	}
	if eta, ok := e.tracker.ETASeconds(); ok {
		u.ETASeconds = &eta
	}
	if totalBytes, totalFiles, ok := e.tracker.Totals(); ok {
		u.TotalBytes = &totalBytes
		u.TotalFiles = &totalFiles
	}
	return u
}
