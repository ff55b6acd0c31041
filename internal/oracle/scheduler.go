package oracle

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"finbrain/internal/logging"
)

// =============================================================================
// CALL SCHEDULER - BOUNDED ORACLE CONCURRENCY
// =============================================================================
//
// The Scheduler manages oracle call slots independently of workflow runs.
// Batch processing may fan out to many concurrent runs, but the number of
// simultaneous oracle calls stays within the provider's limit. Runs yield
// their slot after each call and re-acquire for the next one.

// SchedulerConfig configures the scheduler.
type SchedulerConfig struct {
	MaxConcurrentCalls int           // Max simultaneous oracle calls
	SlotAcquireTimeout time.Duration // Max time to wait for a slot
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrentCalls: 5,
		SlotAcquireTimeout: 5 * time.Minute,
	}
}

// Scheduler manages oracle call slots with cooperative yielding.
type Scheduler struct {
	config SchedulerConfig
	slots  chan struct{} // semaphore for call slots

	totalCalls         int64
	totalWaitTime      int64 // nanoseconds
	currentlyWaiting   int32
	currentlyExecuting int32

	stopCh chan struct{}
}

// NewScheduler creates a new scheduler.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.MaxConcurrentCalls <= 0 {
		config.MaxConcurrentCalls = DefaultSchedulerConfig().MaxConcurrentCalls
	}
	if config.SlotAcquireTimeout <= 0 {
		config.SlotAcquireTimeout = DefaultSchedulerConfig().SlotAcquireTimeout
	}
	return &Scheduler{
		config: config,
		slots:  make(chan struct{}, config.MaxConcurrentCalls),
		stopCh: make(chan struct{}),
	}
}

// Acquire blocks until a call slot is available, the context is cancelled,
// or the configured slot wait timeout expires.
func (s *Scheduler) Acquire(ctx context.Context, caller string) error {
	if s.config.SlotAcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.SlotAcquireTimeout)
		defer cancel()
	}

	waitStart := time.Now()
	atomic.AddInt32(&s.currentlyWaiting, 1)
	defer atomic.AddInt32(&s.currentlyWaiting, -1)

	if len(s.slots) >= s.config.MaxConcurrentCalls {
		logging.APIDebug("scheduler: %s waiting for slot (active=%d/%d, waiting=%d)",
			caller, len(s.slots), s.config.MaxConcurrentCalls, atomic.LoadInt32(&s.currentlyWaiting))
	}

	select {
	case s.slots <- struct{}{}:
		waitDuration := time.Since(waitStart)
		atomic.AddInt64(&s.totalWaitTime, int64(waitDuration))
		atomic.AddInt32(&s.currentlyExecuting, 1)
		if waitDuration > 100*time.Millisecond {
			logging.APIDebug("scheduler: %s acquired slot after %v", caller, waitDuration)
		}
		return nil

	case <-ctx.Done():
		logging.API("scheduler: %s cancelled while waiting for slot (waited %v)",
			caller, time.Since(waitStart))
		return ctx.Err()

	case <-s.stopCh:
		return fmt.Errorf("scheduler stopped")
	}
}

// Release returns the call slot after the call completes.
func (s *Scheduler) Release(caller string) {
	select {
	case <-s.slots:
	default:
		logging.Get(logging.CategoryAPI).Error("scheduler: %s released slot it didn't hold", caller)
		return
	}
	atomic.AddInt32(&s.currentlyExecuting, -1)
	atomic.AddInt64(&s.totalCalls, 1)
}

// Metrics returns current scheduler metrics.
func (s *Scheduler) Metrics() SchedulerMetrics {
	return SchedulerMetrics{
		MaxSlots:        s.config.MaxConcurrentCalls,
		ActiveSlots:     int(atomic.LoadInt32(&s.currentlyExecuting)),
		WaitingForSlot:  int(atomic.LoadInt32(&s.currentlyWaiting)),
		TotalCalls:      atomic.LoadInt64(&s.totalCalls),
		TotalWaitTimeNs: atomic.LoadInt64(&s.totalWaitTime),
	}
}

// Stop shuts down the scheduler.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

// SchedulerMetrics provides observability into scheduler state.
type SchedulerMetrics struct {
	MaxSlots        int
	ActiveSlots     int
	WaitingForSlot  int
	TotalCalls      int64
	TotalWaitTimeNs int64
}

// String returns a human-readable summary.
func (m SchedulerMetrics) String() string {
	avgWait := time.Duration(0)
	if m.TotalCalls > 0 {
		avgWait = time.Duration(m.TotalWaitTimeNs / m.TotalCalls)
	}
	return fmt.Sprintf("slots=%d/%d, waiting=%d, calls=%d, avg_wait=%v",
		m.ActiveSlots, m.MaxSlots, m.WaitingForSlot, m.TotalCalls, avgWait)
}

// -----------------------------------------------------------------------------
// Scheduled Client Wrapper
// -----------------------------------------------------------------------------

// ScheduledClient wraps an oracle client with slot acquisition/release.
// Implements Client so it can be injected transparently.
type ScheduledClient struct {
	Scheduler *Scheduler
	Caller    string
	Inner     Client
}

var _ Client = (*ScheduledClient)(nil)

// NewScheduledClient creates a wrapper for scheduled oracle calls.
func NewScheduledClient(caller string, scheduler *Scheduler, inner Client) *ScheduledClient {
	return &ScheduledClient{
		Scheduler: scheduler,
		Caller:    caller,
		Inner:     inner,
	}
}

// Complete makes an oracle call with cooperative scheduling.
func (c *ScheduledClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.Scheduler.Acquire(ctx, c.Caller); err != nil {
		return "", err
	}
	defer c.Scheduler.Release(c.Caller)
	return c.Inner.Complete(ctx, prompt)
}

// CompleteWithSystem makes an oracle call with a system prompt under scheduling.
func (c *ScheduledClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.Scheduler.Acquire(ctx, c.Caller); err != nil {
		return "", err
	}
	defer c.Scheduler.Release(c.Caller)
	return c.Inner.CompleteWithSystem(ctx, systemPrompt, userPrompt)
}
