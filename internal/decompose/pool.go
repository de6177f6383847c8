// Package decompose implements the bounded CPU-bound decomposition worker
// pool (C3) and the pure DSP contract it runs.
package decompose

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reflective-resonance/turnengine/internal/observability"
	"github.com/reflective-resonance/turnengine/internal/waveform"
)

// Pool is a fixed-size pool of goroutines draining a single bounded job
// queue. Go has no process-pool isolation boundary, so each worker is a
// goroutine; a panicking decomposition is recovered so it cannot take the
// pool itself down, which is the isolation property the contract actually
// needs (the engine's event loop never shares a goroutine with decompose
// work).
type Pool struct {
	jobs          chan waveform.DecomposeJob
	results       chan waveform.DecomposeResult
	jobTimeout    time.Duration
	artifactsRoot string
	accepting     atomic.Bool
	wg            sync.WaitGroup
	stopOnce      sync.Once
	metrics       *observability.Metrics
}

// SetMetrics attaches the Prometheus instruments job outcomes report to.
// Optional; a pool with no metrics attached just skips observation.
func (p *Pool) SetMetrics(m *observability.Metrics) {
	p.metrics = m
}

// NewPool constructs a pool with the given worker count and bounded queue
// size, and starts its workers immediately.
func NewPool(maxWorkers, queueMaxSize int, jobTimeout time.Duration, artifactsRoot string) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueMaxSize <= 0 {
		queueMaxSize = 1
	}
	p := &Pool{
		jobs:          make(chan waveform.DecomposeJob, queueMaxSize),
		results:       make(chan waveform.DecomposeResult, queueMaxSize),
		jobTimeout:    jobTimeout,
		artifactsRoot: artifactsRoot,
	}
	p.accepting.Store(true)
	for i := 0; i < maxWorkers; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
	return p
}

// Results is the channel the orchestrator consumes. Replacing the pool's
// old "set result callback" with this channel removes the need for the
// pool to hold a reference back into the orchestrator.
func (p *Pool) Results() <-chan waveform.DecomposeResult {
	return p.results
}

// Submit is non-blocking. It returns false (without error or event) when
// the queue is full or shutdown has begun.
func (p *Pool) Submit(job waveform.DecomposeJob) bool {
	if !p.accepting.Load() {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Shutdown stops accepting new jobs and waits for in-flight jobs to drain,
// or for ctx to be canceled, whichever comes first.
func (p *Pool) Shutdown(ctx context.Context) {
	p.stopOnce.Do(func() {
		p.accepting.Store(false)
		close(p.jobs)
	})
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (p *Pool) workerLoop() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.results <- p.runJob(job)
	}
}

func (p *Pool) runJob(job waveform.DecomposeJob) waveform.DecomposeResult {
	type outcome struct {
		res waveform.DecomposeResult
	}
	out := make(chan outcome, 1)

	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- outcome{res: waveform.DecomposeResult{
					Job:   job,
					Error: fmt.Sprintf("panic: %v", r),
				}}
			}
		}()
		res := Decompose(job, p.artifactsRoot)
		out <- outcome{res: res}
	}()

	timeout := p.jobTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case o := <-out:
		d := time.Since(start)
		o.res.DurationMS = float64(d.Milliseconds())
		p.metrics.ObserveDecomposeJob(decomposeResultLabel(o.res), d)
		return o.res
	case <-time.After(timeout):
		d := time.Since(start)
		p.metrics.ObserveDecomposeJob("timeout", d)
		return waveform.DecomposeResult{
			Job:        job,
			Success:    false,
			Error:      "timeout",
			DurationMS: float64(d.Milliseconds()),
		}
	}
}

func decomposeResultLabel(res waveform.DecomposeResult) string {
	if res.Success {
		return "success"
	}
	return "error"
}
