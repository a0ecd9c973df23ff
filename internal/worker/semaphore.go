package worker

import (
	"context"
	"time"
)

// semaphore caps concurrent worker invocations. Acquire respects both the
// caller's context and a queue-wait deadline measured from the call, so a
// request that has been waiting too long for a slot fails distinctly from
// one that ran and then timed out.
type semaphore struct {
	slots chan struct{}
}

func newSemaphore(n int) *semaphore {
	if n <= 0 {
		n = 1
	}
	return &semaphore{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free, ctx is cancelled, or queueWait
// elapses, whichever comes first.
func (s *semaphore) Acquire(ctx context.Context, queueWait time.Duration) (release func(), err error) {
	timer := time.NewTimer(queueWait)
	defer timer.Stop()

	select {
	case s.slots <- struct{}{}:
		return func() { <-s.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, &Error{Kind: KindQueueTimeout}
	}
}
