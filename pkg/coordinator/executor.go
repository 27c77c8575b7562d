// pkg/coordinator/executor.go
package coordinator

// Executor delivers a completion callback. Completions are never invoked
// on the runner's own goroutine nor while the coordinator lock is held;
// an Executor is where a caller plugs in whatever delivery discipline
// its runtime needs (e.g. a UI main-thread queue).
type Executor interface {
	Schedule(fn func())
}

// DirectExecutor runs the callback synchronously on the caller's
// goroutine (the dispatch goroutine for network completions, or the
// download/cancel goroutine for synchronous cache hits and cancellations).
type DirectExecutor struct{}

// Schedule invokes fn immediately.
func (DirectExecutor) Schedule(fn func()) { fn() }

// AsyncExecutor runs each callback on its own goroutine, decoupling a slow
// or panicking subscriber from the coordinator's dispatch path.
type AsyncExecutor struct{}

// Schedule launches fn in a new goroutine.
func (AsyncExecutor) Schedule(fn func()) { go fn() }
