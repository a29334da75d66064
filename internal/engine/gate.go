package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/pablopunk/bucky-sub000/internal/metrics"
)

// errStopRequested is the cancellation cause for a user-initiated stop, so
// the runner can tell a stop apart from any other cancellation.
var errStopRequested = errors.New("job stop requested")

// RunFunc executes one admitted job. The context is canceled only on a
// manual stop; shutdown lets the run finish.
type RunFunc func(ctx context.Context, jobID string)

// Gate provides admission control for job execution: at most one
// concurrent execution per job id, FIFO draining by a single worker, and a
// bounded queue so simultaneous triggers do not hammer the repository.
// Entries are in-memory only; recovery after a crash is the reconciler's
// responsibility.
type Gate struct {
	mu      sync.Mutex
	pending map[string]struct{}
	running map[string]context.CancelCauseFunc
	queue   chan string
	run     RunFunc
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewGate creates a gate with the given queue capacity.
func NewGate(queueSize int, run RunFunc, logger *slog.Logger) *Gate {
	if queueSize < 1 {
		queueSize = 64
	}
	return &Gate{
		pending: make(map[string]struct{}),
		running: make(map[string]context.CancelCauseFunc),
		queue:   make(chan string, queueSize),
		run:     run,
		logger:  logger.With("component", "execution-gate"),
	}
}

// Enqueue admits a job id for execution. A duplicate trigger for an id
// that is already queued or running is not an error: it is dropped and
// reported as false. This is the expected outcome when a scheduled trigger
// overlaps a manual run.
func (g *Gate) Enqueue(jobID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.running[jobID]; ok {
		g.logger.Info("job already running, trigger dropped", "job_id", jobID)
		return false
	}
	if _, ok := g.pending[jobID]; ok {
		g.logger.Info("job already queued, trigger dropped", "job_id", jobID)
		return false
	}

	select {
	case g.queue <- jobID:
		g.pending[jobID] = struct{}{}
		metrics.QueueDepth.Inc()
		return true
	default:
		g.logger.Warn("execution queue full, trigger dropped", "job_id", jobID)
		return false
	}
}

// Running reports whether the job id currently holds a gate entry.
func (g *Gate) Running(jobID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[jobID]
	return ok
}

// Cancel cancels the in-flight execution for the job id, if any, and
// reports whether there was one. The runner observes the cancellation and
// records the stop.
func (g *Gate) Cancel(jobID string) bool {
	g.mu.Lock()
	cancel, ok := g.running[jobID]
	g.mu.Unlock()
	if ok {
		cancel(errStopRequested)
	}
	return ok
}

// Start launches the drain loop. It returns immediately; the loop exits
// when ctx is canceled.
func (g *Gate) Start(ctx context.Context) {
	g.wg.Add(1)
	go g.drain(ctx)
}

// Wait blocks until the drain loop, including any in-flight execution,
// has finished.
func (g *Gate) Wait() {
	g.wg.Wait()
}

func (g *Gate) drain(ctx context.Context) {
	defer g.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-g.queue:
			g.mu.Lock()
			delete(g.pending, jobID)
			metrics.QueueDepth.Dec()
			if _, ok := g.running[jobID]; ok {
				// Pending dedup should prevent this; skip rather than
				// double-run.
				g.mu.Unlock()
				g.logger.Info("job already running, trigger dropped", "job_id", jobID)
				continue
			}
			// The run context is detached from the drain context: drain
			// shutdown stops admitting work but lets the in-flight job
			// finish inside the scheduler's bounded wait. Only a stop
			// request cancels the run itself.
			runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
			g.running[jobID] = cancel
			g.mu.Unlock()

			g.run(runCtx, jobID)

			cancel(nil)
			g.mu.Lock()
			delete(g.running, jobID)
			g.mu.Unlock()
		}
	}
}
