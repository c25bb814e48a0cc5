// Package queue provides the per-backend model queue: a bounded-concurrency
// FIFO dispatcher with throttle-aware retry.
//
// # Overview
//
// One Queue exists per backend identity. It guarantees that no more than
// Concurrency generations run against the backend at any instant and owns the
// retry policy for rate limits:
//   - FIFO dispatch among items that were never retried
//   - A single, queue-wide resume-not-before gate set by throttle errors
//   - Throttled items are re-queued at the head so they run first once the
//     gate clears (sustained throttling can starve later arrivals)
//   - Every other failure is terminal on first occurrence
//
// # Try policy
//
// On failure the queue checks tries >= maxTries before incrementing, so a
// throttled item is attempted maxTries+1 times in total. The effective
// maxTries is the submitting context's override, or the queue default.
//
// # Example
//
//	q := queue.New("openai-text", executor, func(o *queue.Options) {
//	    o.Concurrency = 4
//	    o.MaxTries = 3
//	})
//	h := q.Submit(lc, core.Request{Kind: core.KindText, Payload: req}, nil)
//	res, err := h.Wait(ctx)
//
// Work is never cancelled once dispatched; abandoning Wait only stops the
// caller from waiting.
package queue
