package deletequeue

import "time"

// MetricsHook observes queue activity. Implementations must be safe for
// concurrent use.
type MetricsHook interface {
	// ObservePush is called after each push with the resulting pending count.
	ObservePush(pending int)
	// ObserveFlush is called after a block of ops operations is materialized.
	ObserveFlush(ops int, elapsed time.Duration)
	// ObserveCursor is called for every cursor obtained from the queue.
	ObserveCursor()
}

// NoopMetrics is used when no metrics hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObservePush(int)                 {}
func (NoopMetrics) ObserveFlush(int, time.Duration) {}
func (NoopMetrics) ObserveCursor()                  {}
