package syncer

import (
	"context"
	"log"
	"sync"
	"time"

	"backend-runlink/internal/queue"
	"backend-runlink/internal/session"
)

// Publisher is the single operation the external event network must offer:
// an idempotent create keyed by record.ID. Retrying a publish with the same
// id must not produce a duplicate externally-visible record.
type Publisher interface {
	Publish(ctx context.Context, rec session.Record) error
}

// Report summarizes one drain pass. Exhausted entries stay queued; they are
// surfaced here instead of being dropped.
type Report struct {
	Published []string `json:"published"`
	Failed    []string `json:"failed"`
	Exhausted []string `json:"exhausted"`
	Deferred  []string `json:"deferred"`
}

// Coordinator drains the offline queue against the event network. One
// failing record never blocks the rest; each entry retries with its own
// exponential backoff until MaxAttempts, after which it is reported as a
// persistent failure on every pass.
type Coordinator struct {
	queue *queue.Queue
	pub   Publisher

	maxAttempts    int
	baseDelay      time.Duration
	maxDelay       time.Duration
	publishTimeout time.Duration

	// serializes drains; enqueues are not blocked, entries added mid-drain
	// wait for the next pass.
	mu  sync.Mutex
	now func() time.Time
}

// Options tune the retry policy. Zero values get sensible defaults.
type Options struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	PublishTimeout time.Duration
}

func New(q *queue.Queue, pub Publisher, opts Options) *Coordinator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 8
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 2 * time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 5 * time.Minute
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 10 * time.Second
	}
	return &Coordinator{
		queue:          q,
		pub:            pub,
		maxAttempts:    opts.MaxAttempts,
		baseDelay:      opts.BaseDelay,
		maxDelay:       opts.MaxDelay,
		publishTimeout: opts.PublishTimeout,
		now:            time.Now,
	}
}

// Drain attempts to publish every eligible pending entry once. Cancelling
// the context aborts the pass and leaves the remaining entries untouched;
// cancellation is not a failure signal and increments no attempt counters.
func (c *Coordinator) Drain(ctx context.Context) (Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rep Report

	entries, err := c.queue.PeekPending(ctx)
	if err != nil {
		return rep, err
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		id := e.Record.ID
		switch {
		case e.AttemptCount >= c.maxAttempts:
			rep.Exhausted = append(rep.Exhausted, id)
			continue
		case !c.eligible(e):
			rep.Deferred = append(rep.Deferred, id)
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.publishTimeout)
		err := c.pub.Publish(attemptCtx, e.Record)
		cancel()

		if err != nil {
			// The drain itself was cancelled, not this entry.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return rep, ctxErr
			}
			log.Printf("publish %s failed (attempt %d): %v", id, e.AttemptCount+1, err)
			if markErr := c.queue.MarkFailed(ctx, id, err); markErr != nil {
				return rep, markErr
			}
			rep.Failed = append(rep.Failed, id)
			continue
		}

		if err := c.queue.MarkPublished(ctx, id); err != nil {
			return rep, err
		}
		rep.Published = append(rep.Published, id)
	}

	return rep, nil
}

// Run drains on a timer until the context is cancelled. Intended to be
// started once from main as the connectivity-opportunistic loop.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Drain(ctx); err != nil && ctx.Err() == nil {
				log.Printf("sync drain: %v", err)
			}
		}
	}
}

// eligible applies per-entry exponential backoff: attempt n waits
// baseDelay * 2^(n-1) after the previous attempt, capped at maxDelay.
func (c *Coordinator) eligible(e queue.Entry) bool {
	if e.AttemptCount == 0 || e.LastAttemptAt.IsZero() {
		return true
	}
	delay := c.baseDelay << uint(e.AttemptCount-1)
	if delay > c.maxDelay || delay <= 0 {
		delay = c.maxDelay
	}
	return !c.now().Before(e.LastAttemptAt.Add(delay))
}
