package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_Throttling(t *testing.T) {
	em := NewEmitter(NewTracker(), nil, 100*time.Millisecond)

	// The first check always succeeds; an immediate second is throttled.
	assert.True(t, em.ShouldEmit())
	assert.False(t, em.ShouldEmit())

	em.ForceNextEmit()
	assert.True(t, em.ShouldEmit())
	assert.False(t, em.ShouldEmit())
}

func TestEmitter_ThrottleWindowElapses(t *testing.T) {
	em := NewEmitter(NewTracker(), nil, 10*time.Millisecond)

	assert.True(t, em.ShouldEmit())
	assert.False(t, em.ShouldEmit())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, em.ShouldEmit())
}

func TestEmitter_EmitDeliversToSink(t *testing.T) {
	tr := NewTrackerWithTotal(1000, 10)
	tr.AddBytes(250)

	var updates []Update
	em := NewEmitter(tr, func(u Update) { updates = append(updates, u) }, time.Hour)

	assert.True(t, em.Emit(PhaseCompressing, "a.txt"))
	assert.False(t, em.Emit(PhaseCompressing, "b.txt"), "second emit throttled")

	require.Len(t, updates, 1)
	u := updates[0]
	assert.Equal(t, PhaseCompressing, u.Phase)
	assert.Equal(t, "a.txt", u.CurrentFile)
	assert.Equal(t, uint64(250), u.BytesDone)
	require.NotNil(t, u.Percentage)
	assert.Equal(t, 25.0, *u.Percentage)
	require.NotNil(t, u.TotalBytes)
	assert.Equal(t, uint64(1000), *u.TotalBytes)
	require.NotNil(t, u.TotalFiles)
	assert.Equal(t, uint32(10), *u.TotalFiles)
}

func TestEmitter_UnknownTotalsSnapshot(t *testing.T) {
	em := NewEmitter(NewTracker(), nil, 0)

	u := em.Snapshot(PhaseScanning, "")
	assert.Nil(t, u.Percentage)
	assert.Nil(t, u.TotalBytes)
	assert.Nil(t, u.TotalFiles)
	assert.Nil(t, u.ETASeconds)
}

func TestEmitter_CompleteBypassesThrottle(t *testing.T) {
	var updates []Update
	em := NewEmitter(NewTrackerWithTotal(10, 1), func(u Update) { updates = append(updates, u) }, time.Hour)

	assert.True(t, em.Emit(PhaseCompressing, ""))
	em.Complete()

	require.Len(t, updates, 2)
	assert.Equal(t, PhaseComplete, updates[1].Phase)
}

func TestEmitter_NilSinkIsSafe(t *testing.T) {
	em := NewEmitter(NewTracker(), nil, 0)
	assert.NotPanics(t, func() {
		em.Emit(PhaseScanning, "x")
		em.EmitForced(PhaseFinalizing, "")
		em.Complete()
	})
}

func TestRegistry_RegisterCancelRemove(t *testing.T) {
	r := NewRegistry()
	tr := NewTracker()

	id := r.Register(tr)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, r.Active())

	got, ok := r.Get(id)
	require.True(t, ok)
	assert.Same(t, tr, got)

	assert.True(t, r.Cancel(id))
	assert.True(t, tr.IsCancelled())

	r.Remove(id)
	assert.Equal(t, 0, r.Active())
	assert.False(t, r.Cancel(id), "unknown operation")
}

func TestRegistry_DistinctIDs(t *testing.T) {
	r := NewRegistry()
	a := r.Register(NewTracker())
	b := r.Register(NewTracker())
	assert.NotEqual(t, a, b)
}
