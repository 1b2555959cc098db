package distributor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/you-humble/pdftoxml/internal/domain"
)

// pool runs conversions in-process: a bounded queue drained by a fixed
// number of workers.
type pool struct {
	queue     chan string
	workers   int
	processor Processor

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewPool(capacity, workers int, processor Processor) *pool {
	if capacity <= 0 {
		capacity = 64
	}
	if workers <= 0 {
		workers = 1
	}

	return &pool{
		queue:     make(chan string, capacity),
		workers:   workers,
		processor: processor,
	}
}

// Enqueue never blocks. A full queue returns domain.ErrQueueFull.
func (p *pool) Enqueue(ctx context.Context, conversionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return domain.ErrQueueFull
	}

	select {
	case p.queue <- conversionID:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

func (p *pool) Run(ctx context.Context) error {
	p.wg.Add(p.workers)
	for i := range p.workers {
		go func() {
			defer p.wg.Done()
			p.runWorker(ctx, i)
		}()
	}

	slog.Info("local distributor is running",
		slog.Int("workers", p.workers),
		slog.Int("capacity", cap(p.queue)),
	)
	return nil
}

// Stop refuses new work and waits for queued jobs to finish.
func (p *pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	slog.Info("local distributor stopped")
	return nil
}

func (p *pool) runWorker(ctx context.Context, workerID int) {
	for id := range p.queue {
		l := slog.With(slog.Int("worker_id", workerID), slog.String("job_id", id))
		if err := p.processor.Process(context.WithoutCancel(ctx), id); err != nil {
			l.Error("process", slog.String("error", err.Error()))
		}
	}
}
