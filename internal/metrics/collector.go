package metrics

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"
)

// DocumentCounter reports the number of documents in a collection
type DocumentCounter interface {
	Count(ctx context.Context, collection string) (int, error)
}

// Collector periodically refreshes gauges that are sampled rather than
// incremented: uptime, goroutines, database size and document counts.
type Collector struct {
	metrics     *Metrics
	counter     DocumentCounter
	collections []string
	storagePath string
	interval    time.Duration
	startTime   time.Time
	logger      *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector creates a new metrics collector. counter may be nil.
func NewCollector(m *Metrics, counter DocumentCounter, collections []string, storagePath string, interval time.Duration, logger *slog.Logger) *Collector {
	if interval == 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Collector{
		metrics:     m,
		counter:     counter,
		collections: collections,
		storagePath: storagePath,
		interval:    interval,
		startTime:   time.Now(),
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Start begins sampling in the background
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.loop(ctx)
}

// Stop stops sampling and waits for the loop to exit
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

func (c *Collector) loop(ctx context.Context) {
	defer c.wg.Done()

	c.Collect(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Collect(ctx)
		}
	}
}

// Collect samples all gauges once
func (c *Collector) Collect(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}

	if c.counter == nil {
		return
	}
	for _, coll := range c.collections {
		n, err := c.counter.Count(ctx, coll)
		if err != nil {
			c.logger.Debug("failed to count documents", "collection", coll, "error", err)
			continue
		}
		c.metrics.DocumentsTotal.WithLabelValues(coll).Set(float64(n))
	}
}
