// Package progress provides thread-safe progress accumulation for archive
// operations, throttled reporting to observers, cooperative cancellation,
// and a registry that maps running operations to their trackers.
package progress

import (
	"errors"
	"math"
	"sync/atomic"
	"time"
)

// ErrCancelled is returned by operation loops that observed a cancellation
// request and unwound cleanly.
var ErrCancelled = errors.New("operation cancelled by user")

// Phase identifies the stage an operation is in, for observer feedback.
type Phase string

const (
	PhaseScanning    Phase = "scanning"
	PhaseCompressing Phase = "compressing"
	PhaseEncrypting  Phase = "encrypting"
	PhaseExtracting  Phase = "extracting"
	PhaseFinalizing  Phase = "finalizing"
	PhaseComplete    Phase = "complete"
)

// Tracker accumulates progress counters for a single operation.
//
// Exactly one worker goroutine mutates the counters; any number of observer
// goroutines may read them concurrently. All shared state is atomic, so no
// lock is required. A Tracker is created per operation and never reused.
type Tracker struct {
	totalBytes atomic.Uint64
	bytesDone  atomic.Uint64
	totalFiles atomic.Uint64
	filesDone  atomic.Uint64
	totalKnown atomic.Bool
	cancelled  atomic.Bool
	startTime  time.Time
}

// NewTracker creates a tracker with an unknown total.
func NewTracker() *Tracker {
	return &Tracker{startTime: time.Now()}
}

// NewTrackerWithTotal creates a tracker with a known total.
func NewTrackerWithTotal(totalBytes uint64, totalFiles uint32) *Tracker {
	t := NewTracker()
	t.SetTotal(totalBytes, totalFiles)
	return t
}

// SetTotal records the totals once a scan phase has determined them. Until
// it is called, Percentage reports unknown.
func (t *Tracker) SetTotal(totalBytes uint64, totalFiles uint32) {
	t.totalBytes.Store(totalBytes)
	t.totalFiles.Store(uint64(totalFiles))
	t.totalKnown.Store(true)
}

// AddBytes adds to the processed byte count.
func (t *Tracker) AddBytes(n uint64) {
	t.bytesDone.Add(n)
}

// SetBytesDone overwrites the processed byte count.
func (t *Tracker) SetBytesDone(n uint64) {
	t.bytesDone.Store(n)
}

// IncrementFiles bumps the processed file count.
func (t *Tracker) IncrementFiles() {
	t.filesDone.Add(1)
}

// Cancel requests cooperative cancellation. It does not interrupt in-flight
// I/O; the worker must poll IsCancelled at file boundaries and unwind.
func (t *Tracker) Cancel() {
	t.cancelled.Store(true)
}

// IsCancelled reports whether cancellation has been requested.
func (t *Tracker) IsCancelled() bool {
	return t.cancelled.Load()
}

// BytesDone returns the processed byte count.
func (t *Tracker) BytesDone() uint64 {
	return t.bytesDone.Load()
}

// FilesDone returns the processed file count.
func (t *Tracker) FilesDone() uint32 {
	return uint32(t.filesDone.Load())
}

// Totals returns the recorded totals; ok is false until SetTotal is called.
func (t *Tracker) Totals() (totalBytes uint64, totalFiles uint32, ok bool) {
	if !t.totalKnown.Load() {
		return 0, 0, false
	}
	return t.totalBytes.Load(), uint32(t.totalFiles.Load()), true
}

// Percentage returns completion in the range 0-100. ok is false while the
// total is unknown. A zero total reports 100 to avoid a divide by zero.
func (t *Tracker) Percentage() (float64, bool) {
	if !t.totalKnown.Load() {
		return 0, false
	}
	total := t.totalBytes.Load()
	if total == 0 {
		return 100, true
	}
	return float64(t.bytesDone.Load()) / float64(total) * 100, true
}

// ETASeconds estimates the remaining time from elapsed wall time and the
// current percentage. ok is false while the total is unknown, at 0%, or
// when the projection is not finite. At 100% the estimate is zero.
func (t *Tracker) ETASeconds() (float64, bool) {
	pct, ok := t.Percentage()
	if !ok || pct <= 0 {
		return 0, false
	}
	if pct >= 100 {
		return 0, true
	}
	elapsed := time.Since(t.startTime).Seconds()
	remaining := elapsed/(pct/100) - elapsed
	if remaining < 0 || math.IsNaN(remaining) || math.IsInf(remaining, 0) {
		return 0, false
	}
	return remaining, true
}
