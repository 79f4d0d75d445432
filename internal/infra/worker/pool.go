package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// A small worker pool used to fan out outbound sends.

type Task func(ctx context.Context) error

var (
	ErrQueueFull  = errors.New("worker queue full")
	ErrPoolClosed = errors.New("worker pool stopped")
)

type Pool struct {
	wg       sync.WaitGroup
	jobs     chan Task
	quit     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
	n        int
	log      *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Pool{jobs: make(chan Task, workers*4), quit: make(chan struct{}), n: workers, log: logger}
}

func (p *Pool) Start(ctx context.Context) {
	p.running.Store(true)
	go func() {
		select {
		case <-ctx.Done():
			p.running.Store(false)
		case <-p.quit:
		}
	}()
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-p.jobs:
					if task == nil {
						continue
					}
					if err := task(ctx); err != nil {
						p.log.Warn().Err(err).Int("worker", id).Msg("task error")
					}
				}
			}
		}(i)
	}
}

func (p *Pool) Stop() {
	p.running.Store(false)
	p.stopOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
}

// Submit queues a task without blocking; it fails when the queue is saturated.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case <-p.quit:
		return ErrPoolClosed
	default:
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitWait queues a task, waiting for room until ctx is done or the pool stops.
func (p *Pool) SubmitWait(ctx context.Context, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	if !p.running.Load() {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- task:
		return nil
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunAll executes every task, on the pool when one is given and inline otherwise,
// and returns once all of them have finished. Task errors are not collected here;
// tasks record their own outcome.
func RunAll(ctx context.Context, p *Pool, tasks []Task) {
	var wg sync.WaitGroup
	for _, t := range tasks {
		t := t
		wg.Add(1)
		wrapped := func(ctx context.Context) error {
			defer wg.Done()
			return t(ctx)
		}
		if p == nil {
			_ = wrapped(ctx)
			continue
		}
		if err := p.SubmitWait(ctx, wrapped); err != nil {
			// pool unavailable: run inline so no recipient is dropped
			_ = wrapped(ctx)
		}
	}
	wg.Wait()
}
