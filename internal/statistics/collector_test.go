package statistics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCollectorCounters(t *testing.T) {
	c := NewMemoryCollector()

	c.ConnectionOpened("1")
	c.ConnectionOpened("1")
	c.ConnectionOpened("2")
	c.ConnectionClosed("1")
	c.WebSocketMessage("1")
	c.WebSocketMessage("1")
	c.APIMessage("1")

	assert.Equal(t, 1, c.CurrentConnections("1"))
	assert.Equal(t, 1, c.CurrentConnections("2"))
	assert.Equal(t, 0, c.CurrentConnections("unknown"))
}

func TestMemoryCollectorClosedNeverGoesNegative(t *testing.T) {
	c := NewMemoryCollector()
	c.ConnectionClosed("1")
	assert.Equal(t, 0, c.CurrentConnections("1"))
}

func TestFlushResetsIntervalCounters(t *testing.T) {
	c := NewMemoryCollector()

	c.ConnectionOpened("1")
	c.ConnectionOpened("1")
	c.ConnectionClosed("1")
	c.WebSocketMessage("1")
	c.APIMessage("1")

	snapshots := c.Flush()
	require.Len(t, snapshots, 1)
	snap := snapshots[0]
	assert.Equal(t, "1", snap.AppID)
	assert.Equal(t, 1, snap.CurrentConnections)
	assert.Equal(t, 2, snap.PeakConnections)
	assert.Equal(t, 1, snap.WebSocketMessages)
	assert.Equal(t, 1, snap.APIMessages)
	assert.False(t, snap.CapturedAt.IsZero())

	// Next interval: counters reset, peak restarts from the carried-forward
	// current count.
	snapshots = c.Flush()
	require.Len(t, snapshots, 1)
	snap = snapshots[0]
	assert.Equal(t, 1, snap.CurrentConnections)
	assert.Equal(t, 1, snap.PeakConnections)
	assert.Zero(t, snap.WebSocketMessages)
	assert.Zero(t, snap.APIMessages)
}

func TestFlushDropsIdleApps(t *testing.T) {
	c := NewMemoryCollector()

	c.ConnectionOpened("1")
	c.ConnectionClosed("1")

	snapshots := c.Flush()
	require.Len(t, snapshots, 1)
	assert.Equal(t, 0, snapshots[0].CurrentConnections)
	assert.Equal(t, 1, snapshots[0].PeakConnections)

	// The app had no connections left, so it is forgotten entirely.
	assert.Empty(t, c.Flush())
}

func TestNoopCollector(t *testing.T) {
	var c Collector = NoopCollector{}
	c.ConnectionOpened("1")
	c.ConnectionClosed("1")
	c.WebSocketMessage("1")
	c.APIMessage("1")
}
