// Package dispatch provides the owner-goroutine dispatcher.
//
// Every history and protected-data mutation runs on a single owner
// goroutine. Other goroutines are producers that marshal work onto it.
//
// # Owner
//
// An Owner consumes a FIFO queue with exactly one goroutine, so tasks
// enqueued from any producer run one at a time in enqueue order:
//
//	owner := dispatch.NewOwner(dispatch.WithLogger(log))
//	owner.Start()
//	defer owner.Stop(context.Background())
//
//	// Fire and forget.
//	owner.RunOnOwner(ctx, func(ctx context.Context) error { ... })
//
//	// Block until the task has run.
//	n, err := dispatch.Call(ctx, owner, func(ctx context.Context) (int, error) { ... })
//
// # Owner Affinity
//
// Tasks receive a context marked with their Owner. Calls made with such a
// context run inline instead of being queued, which keeps nested calls from
// deadlocking on their own queue. AssertOwner lets other packages reject
// calls made off the owner goroutine. A marked context must not be handed
// to other goroutines.
//
// # Panic Recovery
//
// Tasks run through an Executor that recovers panics, logs them with their
// stack and, for blocking calls, returns them to the waiter as *PanicError.
//
// # Liveness
//
// Blocking calls have no timeout. A stalled owner stalls every waiter;
// WithStallWarning logs waits that exceed a threshold.
package dispatch
