// Package statistics counts per-app connection and message activity. The
// collector is injected into the protocol dispatcher and the trigger API;
// nothing in the core reaches for it through globals.
package statistics

import (
	"sync"
	"time"
)

// Collector receives activity counters from the core.
type Collector interface {
	ConnectionOpened(appID string)
	ConnectionClosed(appID string)
	WebSocketMessage(appID string)
	APIMessage(appID string)
}

// NoopCollector discards everything. Used when statistics are disabled.
type NoopCollector struct{}

func (NoopCollector) ConnectionOpened(string) {}
func (NoopCollector) ConnectionClosed(string) {}
func (NoopCollector) WebSocketMessage(string) {}
func (NoopCollector) APIMessage(string) {}

// Snapshot is one flushed interval of counters for one app.
type Snapshot struct {
	AppID              string
	CurrentConnections int
	PeakConnections    int
	WebSocketMessages  int
	APIMessages        int
	CapturedAt         time.Time
}

type appCounters struct {
	current    int
	peak       int
	wsMessages int
	apiMsgs    int
}

// MemoryCollector accumulates counters in memory. Flush snapshots and
// resets the interval counters while carrying current connection counts
// forward.
type MemoryCollector struct {
	mu   sync.Mutex
	apps map[string]*appCounters
}

func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{apps: make(map[string]*appCounters)}
}

func (c *MemoryCollector) counters(appID string) *appCounters {
	counters, ok := c.apps[appID]
	if !ok {
		counters = &appCounters{}
		c.apps[appID] = counters
	}
	return counters
}

func (c *MemoryCollector) ConnectionOpened(appID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counters := c.counters(appID)
	counters.current++
	if counters.current > counters.peak {
		counters.peak = counters.current
	}
}

func (c *MemoryCollector) ConnectionClosed(appID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counters := c.counters(appID)
	if counters.current > 0 {
		counters.current--
	}
}

func (c *MemoryCollector) WebSocketMessage(appID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters(appID).wsMessages++
}

func (c *MemoryCollector) APIMessage(appID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters(appID).apiMsgs++
}

// CurrentConnections returns the live connection count for one app.
func (c *MemoryCollector) CurrentConnections(appID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if counters, ok := c.apps[appID]; ok {
		return counters.current
	}
	return 0
}

// Flush returns a snapshot per active app and resets the interval counters.
// The peak restarts from the carried-forward current count, so a quiet
// interval after a spike reports the true lower peak.
func (c *MemoryCollector) Flush() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	snapshots := make([]Snapshot, 0, len(c.apps))
	for appID, counters := range c.apps {
		snapshots = append(snapshots, Snapshot{
			AppID:              appID,
			CurrentConnections: counters.current,
			PeakConnections:    counters.peak,
			WebSocketMessages:  counters.wsMessages,
			APIMessages:        counters.apiMsgs,
			CapturedAt:         now,
		})
		if counters.current == 0 {
			delete(c.apps, appID)
			continue
		}
		counters.peak = counters.current
		counters.wsMessages = 0
		counters.apiMsgs = 0
	}
	return snapshots
}
