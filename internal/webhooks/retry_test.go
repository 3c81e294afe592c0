package webhooks

import (
    "context"
    "testing"
    "time"
)

func TestRetrySchedulerRunsTask(t *testing.T) {
    s := NewRetryScheduler()
    defer s.Close()
    done := make(chan struct{})
    if !s.Schedule(10*time.Millisecond, func(ctx context.Context) { close(done) }) {
        t.Fatal("schedule rejected")
    }
    select {
    case <-done:
    case <-time.After(2 * time.Second):
        t.Fatal("task did not run")
    }
}

func TestRetrySchedulerCloseCancelsPending(t *testing.T) {
    s := NewRetryScheduler()
    ran := make(chan struct{}, 1)
    s.Schedule(time.Hour, func(ctx context.Context) { ran <- struct{}{} })
    if s.Pending() != 1 {
        t.Fatalf("pending = %d", s.Pending())
    }
    s.Close()
    if s.Pending() != 0 {
        t.Fatalf("pending after close = %d", s.Pending())
    }
    if s.Schedule(time.Millisecond, func(ctx context.Context) {}) {
        t.Fatal("schedule accepted after close")
    }
    select {
    case <-ran:
        t.Fatal("cancelled task ran")
    default:
    }
}
