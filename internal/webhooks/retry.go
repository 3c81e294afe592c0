package webhooks

import (
    "context"
    "sync"
    "time"

    "storefront/internal/metrics"
)

// Scheduler runs a task once after a delay. Schedule reports false when the
// task was rejected (for example after shutdown).
type Scheduler interface {
    Schedule(delay time.Duration, task func(ctx context.Context)) bool
}

// RetryScheduler is a timer-backed Scheduler. Pending tasks are in-process only
// and are lost on restart. Close cancels everything still waiting and waits for
// running tasks, which observe a cancelled context.
type RetryScheduler struct {
    mu     sync.Mutex
    timers map[uint64]*time.Timer
    seq    uint64
    closed bool
    wg     sync.WaitGroup
    ctx    context.Context
    cancel context.CancelFunc
}

func NewRetryScheduler() *RetryScheduler {
    ctx, cancel := context.WithCancel(context.Background())
    return &RetryScheduler{timers: map[uint64]*time.Timer{}, ctx: ctx, cancel: cancel}
}

func (s *RetryScheduler) Schedule(delay time.Duration, task func(ctx context.Context)) bool {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.closed { return false }
    s.seq++
    id := s.seq
    s.wg.Add(1)
    metrics.WebhookRetriesPending.Inc()
    s.timers[id] = time.AfterFunc(delay, func() {
        s.mu.Lock()
        delete(s.timers, id)
        s.mu.Unlock()
        metrics.WebhookRetriesPending.Dec()
        defer s.wg.Done()
        task(s.ctx)
    })
    return true
}

// Pending returns the number of tasks waiting for their timer.
func (s *RetryScheduler) Pending() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.timers)
}

// Close stops accepting tasks, cancels pending ones and blocks until running
// tasks return.
func (s *RetryScheduler) Close() {
    s.mu.Lock()
    if s.closed {
        s.mu.Unlock()
        s.wg.Wait()
        return
    }
    s.closed = true
    for id, t := range s.timers {
        // A timer that already fired owns its wg slot and will finish on its own.
        if t.Stop() {
            delete(s.timers, id)
            metrics.WebhookRetriesPending.Dec()
            s.wg.Done()
        }
    }
    s.mu.Unlock()
    s.cancel()
    s.wg.Wait()
}
