// Package scheduler is the core of the daemon: the single-instance lock, the
// periodic schedule refresh, the time-triggered dispatcher and the durable
// queue processor, tied together by a serialized poll loop.
//
// Design rules the whole package obeys:
//
//   - One job at a time. Handlers drive a paced outbound channel; two jobs
//     overlapping would interleave sends.
//   - No single job failure ever propagates into the loop. Handlers return
//     errors (panics are converted), the loop only dies on lock loss at
//     startup or context cancellation.
//   - The trigger table is rebuilt wholesale by refresh, never patched, and
//     survives unreachable-store refresh cycles untouched.
package scheduler
