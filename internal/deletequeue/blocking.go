package deletequeue

import (
	"context"
	"time"
)

// PushNotify returns a channel closed by the next Push. Capture it before
// draining a cursor to avoid missing a push that lands in between.
func (q *Queue) PushNotify() <-chan struct{} {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.notifyCh
}

// WaitForPush blocks until a push occurs or timeout elapses. It returns true
// if woken by a push. A non-positive timeout waits indefinitely.
func (q *Queue) WaitForPush(timeout time.Duration) bool {
	ch := q.PushNotify()
	if timeout <= 0 {
		<-ch
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}

// WaitForPushContext is WaitForPush bounded by ctx instead of a timeout.
func (q *Queue) WaitForPushContext(ctx context.Context) error {
	select {
	case <-q.PushNotify():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
