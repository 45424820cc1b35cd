package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wapuda/vidfetch/internal/jobs"
)

var (
	// ErrQueueFull is returned by Submit when every slot in the queue is taken.
	ErrQueueFull = errors.New("job queue full")

	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("worker pool stopped")

	// ErrShutdownTimeout is returned when workers don't stop within timeout.
	ErrShutdownTimeout = errors.New("worker pool shutdown timed out")
)

// JobFunc processes one payload.
type JobFunc func(ctx context.Context, p jobs.DeliverPayload) Result

type task struct {
	payload jobs.DeliverPayload
	result  chan Result
}

// Pool runs jobs in-process on a fixed number of goroutines with a bounded queue.
type Pool struct {
	workers int
	run     JobFunc
	queue   chan task

	mu      sync.RWMutex
	stopped bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers   int
	QueueSize int
}

func NewPool(cfg PoolConfig, run JobFunc) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers: cfg.Workers,
		run:     run,
		queue:   make(chan task, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches all workers.
func (p *Pool) Start() {
	log.Info().Int("workers", p.workers).Int("queue", cap(p.queue)).Msg("starting worker pool")
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit queues a job without blocking and returns a channel that receives
// exactly one Result.
func (p *Pool) Submit(pl jobs.DeliverPayload) (<-chan Result, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return nil, ErrPoolStopped
	}
	t := task{payload: pl, result: make(chan Result, 1)}
	select {
	case p.queue <- t:
		return t.result, nil
	default:
		return nil, ErrQueueFull
	}
}

// Enqueue submits a job and lets it finish in the background.
func (p *Pool) Enqueue(ctx context.Context, pl jobs.DeliverPayload) error {
	_, err := p.Submit(pl)
	return err
}

// Stop closes the queue, lets workers drain it and waits up to timeout.
func (p *Pool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("worker pool stopped gracefully")
		return nil
	case <-time.After(timeout):
		p.cancel()
		return ErrShutdownTimeout
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for t := range p.queue {
		res := p.run(p.ctx, t.payload)
		if res.Err != nil {
			log.Warn().Int("worker_id", id).Str("job", res.JobID).Err(res.Err).Msg("job ended with error")
		}
		t.result <- res
	}
}
