package downloads

import (
	"context"
	"sync"
	"time"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/logger"
)

// laneBuffer is the per-mod queue depth. A full lane applies
// backpressure to Record instead of dropping counts.
const laneBuffer = 64

// applyTimeout bounds a single increment write
const applyTimeout = 15 * time.Second

// Increment identifies one completed download. ModID is always set;
// VersionID is set for mod version downloads, VariantID and
// VariantVersionID for variant downloads.
type Increment struct {
	Scope            string
	ModID            string
	VersionID        string
	VariantID        string
	VariantVersionID string
}

// Applier persists one increment. Implementations do a plain
// read-modify-write: the Counter guarantees calls for the same mod
// never overlap, so no increment is lost to a concurrent write.
type Applier interface {
	Apply(ctx context.Context, inc Increment) error
}

// Counter serializes download count updates per mod. Each mod gets
// its own lane (a buffered channel drained by one goroutine), so
// concurrent downloads of the same mod are applied one after another
// while different mods proceed in parallel.
type Counter struct {
	applier Applier

	// mu guards lanes and closed. Sends happen under the read lock so
	// Close can never close a lane mid-send; a full lane therefore
	// only blocks records for that one mod.
	mu     sync.RWMutex
	lanes  map[string]chan Increment
	closed bool
	wg     sync.WaitGroup
}

func NewCounter(applier Applier) *Counter {
	return &Counter{
		applier: applier,
		lanes:   make(map[string]chan Increment),
	}
}

// Record queues one increment. It returns once the increment is in
// the mod's lane; the write itself happens on the lane goroutine.
// Increments recorded after Close are dropped.
func (c *Counter) Record(inc Increment) {
	if inc.ModID == "" {
		return
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	if lane, ok := c.lanes[inc.ModID]; ok {
		lane <- inc
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	// First record for this mod: create the lane under the write lock
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	lane, ok := c.lanes[inc.ModID]
	if !ok {
		lane = make(chan Increment, laneBuffer)
		c.lanes[inc.ModID] = lane
		c.wg.Add(1)
		go c.drain(inc.ModID, lane)
	}

	lane <- inc
}

// drain applies everything in one mod's lane, in order
func (c *Counter) drain(modID string, lane chan Increment) {
	defer c.wg.Done()

	for inc := range lane {
		ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
		err := c.applier.Apply(ctx, inc)
		cancel()

		if err != nil {
			// A lost increment is not worth failing a download
			// over; log and move on
			logger.Warn("download count apply failed", map[string]interface{}{
				"modId": modID,
				"error": err.Error(),
			})
		}
	}
}

// Close stops accepting increments, waits for every lane to drain,
// then returns. Safe to call once during shutdown.
func (c *Counter) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, lane := range c.lanes {
		close(lane)
	}
	c.mu.Unlock()

	c.wg.Wait()
}
