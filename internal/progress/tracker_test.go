package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_PercentageUnknownUntilTotalSet(t *testing.T) {
	tr := NewTracker()

	_, ok := tr.Percentage()
	assert.False(t, ok)

	tr.AddBytes(500)
	_, ok = tr.Percentage()
	assert.False(t, ok)

	tr.SetTotal(1000, 5)
	pct, ok := tr.Percentage()
	require.True(t, ok)
	assert.Equal(t, 50.0, pct)
}

func TestTracker_Percentage(t *testing.T) {
	tr := NewTrackerWithTotal(1000, 10)

	pct, ok := tr.Percentage()
	require.True(t, ok)
	assert.Equal(t, 0.0, pct)

	tr.AddBytes(250)
	pct, _ = tr.Percentage()
	assert.Equal(t, 25.0, pct)

	tr.SetBytesDone(1000)
	pct, _ = tr.Percentage()
	assert.Equal(t, 100.0, pct)
}

func TestTracker_ZeroTotalIsComplete(t *testing.T) {
	tr := NewTrackerWithTotal(0, 0)

	pct, ok := tr.Percentage()
	require.True(t, ok)
	assert.Equal(t, 100.0, pct)

	eta, ok := tr.ETASeconds()
	require.True(t, ok)
	assert.Equal(t, 0.0, eta)
}

func TestTracker_ETA(t *testing.T) {
	tr := NewTracker()

	_, ok := tr.ETASeconds()
	assert.False(t, ok, "unknown total has no ETA")

	tr.SetTotal(1000, 1)
	_, ok = tr.ETASeconds()
	assert.False(t, ok, "0%% has no ETA")

	tr.AddBytes(500)
	eta, ok := tr.ETASeconds()
	require.True(t, ok)
	assert.GreaterOrEqual(t, eta, 0.0)

	tr.SetBytesDone(1000)
	eta, ok = tr.ETASeconds()
	require.True(t, ok)
	assert.Equal(t, 0.0, eta)
}

func TestTracker_Cancellation(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.IsCancelled())

	tr.Cancel()
	assert.True(t, tr.IsCancelled())
	assert.True(t, tr.IsCancelled(), "cancellation is sticky")
}

func TestTracker_Files(t *testing.T) {
	tr := NewTrackerWithTotal(100, 3)
	assert.Equal(t, uint32(0), tr.FilesDone())

	tr.IncrementFiles()
	tr.IncrementFiles()
	assert.Equal(t, uint32(2), tr.FilesDone())

	_, totalFiles, ok := tr.Totals()
	require.True(t, ok)
	assert.Equal(t, uint32(3), totalFiles)
}

func TestTracker_ConcurrentReaders(t *testing.T) {
	tr := NewTrackerWithTotal(1_000_000, 100)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.AddBytes(1000)
			tr.IncrementFiles()
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				tr.Percentage()
				tr.ETASeconds()
				tr.BytesDone()
				tr.IsCancelled()
			}
		}()
	}
	wg.Wait()

	pct, ok := tr.Percentage()
	require.True(t, ok)
	assert.Equal(t, 100.0, pct)
	assert.Equal(t, uint32(1000), tr.FilesDone())
}
