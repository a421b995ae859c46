// Package dispatch runs the external shell tools a session invokes
// for Dark/Flat acquisition and analysis (spec.md §4.8, §5): command
// construction, a throttled execution pool, retry/backoff, and
// (optionally) container-isolated execution.
package dispatch

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"golang.org/x/time/rate"
)

// ThrottledPool caps background-task concurrency per spec.md §5:
// "up to one child at a time runs in synchronous mode; ... In
// asynchronous mode the queue is drained in parallel." Grounded on
// the teacher's RateLimiter (same "reserve, run, release" shape), but
// rebuilt on golang.org/x/time/rate instead of a hand-rolled counter
// pair backed by a SQL store — there is no persistent usage ledger to
// query here, just an in-process concurrency gate.
type ThrottledPool struct {
	limiter *rate.Limiter
	sem     chan struct{}
}

// NewThrottledPool returns a pool that allows at most maxConcurrent
// child processes running at once, admitting new ones at no more than
// admitRate per second (burst maxConcurrent), matching the original's "one
// synchronous child" default of maxConcurrent=1.
func NewThrottledPool(maxConcurrent int, admitRate rate.Limit) *ThrottledPool {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ThrottledPool{
		limiter: rate.NewLimiter(admitRate, maxConcurrent),
		sem:     make(chan struct{}, maxConcurrent),
	}
}

// Run blocks until a slot is available (respecting both the rate
// limiter and the concurrency semaphore), then runs argv as a child
// process, returning combined stdout+stderr on failure for logging.
func (p *ThrottledPool) Run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("dispatch: empty command")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("dispatch: rate limit wait: %w", err)
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("dispatch: %s: %w: %s", argv[0], err, truncate(out, 4096))
	}
	return nil
}

// InFlight reports how many child processes are currently running,
// for housekeeping/status logging.
func (p *ThrottledPool) InFlight() int {
	return len(p.sem)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...(truncated)"
}

// sequential guards RunTaskInBackground's "synchronous" mode
// (session.h's StartBackgroundTask(1)): exactly one shell command runs
// at a time, queued FIFO, the next kicked off only once the previous
// exits — session.cc's SIGCHLD-driven queue drain, reimplemented
// without needing a signal handler since Go already waits on the
// child in CombinedOutput.
type sequential struct {
	mu sync.Mutex
}

// RunSequential serializes calls to fn across all callers sharing s.
// Nothing outside this package's tests calls it; ShellToolRunner runs
// every tool through ThrottledPool or ContainerRunner.
func (s *sequential) RunSequential(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}
