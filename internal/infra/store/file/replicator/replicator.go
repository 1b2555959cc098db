package replicator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

var ErrClosed = errors.New("replicator is stopped")

type Source interface {
	Open(ctx context.Context, filename string) (io.ReadCloser, int64, error)
}

type Target interface {
	Save(ctx context.Context, reader io.Reader, filename string, size int64) (int64, string, error)
	Delete(ctx context.Context, filename string) error
}

type Op int

const (
	OpPut Op = iota
	OpDelete
)

func (o Op) String() string {
	if o == OpDelete {
		return "delete"
	}
	return "put"
}

type Job struct {
	Op       Op
	Filename string
	Size     int64
	Hash     string
	Attempt  int
}

// Replicator mirrors local files to a remote target with a fixed set of
// workers. Failed jobs go back to the queue until maxRetries is reached.
type Replicator struct {
	source Source
	target Target

	queue      chan Job
	workerNum  int
	maxRetries int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func New(source Source, target Target, queueSize, workerNum, maxRetries int) *Replicator {
	if queueSize <= 0 {
		queueSize = 100
	}
	if workerNum <= 0 {
		workerNum = 1
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Replicator{
		source:     source,
		target:     target,
		queue:      make(chan Job, queueSize),
		workerNum:  workerNum,
		maxRetries: maxRetries,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (r *Replicator) Start(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.wg.Add(r.workerNum)
	for i := range r.workerNum {
		go r.worker(i)
	}
}

// Stop closes the queue and waits for workers to drain it or for ctx to end.
func (r *Replicator) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		r.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	case <-doneCh:
	}

	r.cancel()
	slog.Info("replicator: stopped")
	return nil
}

func (r *Replicator) Enqueue(job Job) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrClosed
	}

	select {
	case r.queue <- job:
		return nil
	default:
		return fmt.Errorf("replication queue is full (%d)", cap(r.queue))
	}
}

func (r *Replicator) worker(id int) {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case job, ok := <-r.queue:
			if !ok {
				return
			}
			r.handle(r.ctx, id, job)
		}
	}
}

func (r *Replicator) handle(ctx context.Context, workerID int, job Job) {
	l := slog.With(
		slog.Int("worker_id", workerID),
		slog.String("op", job.Op.String()),
		slog.String("filename", job.Filename),
		slog.Int("attempt", job.Attempt),
	)

	err := r.apply(ctx, job)
	if err == nil {
		l.Debug("replicator: done")
		return
	}

	if job.Attempt >= r.maxRetries || ctx.Err() != nil {
		l.Error("replication failed, giving up", slog.String("error", err.Error()))
		return
	}

	job.Attempt++
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		l.Error("replication failed during shutdown", slog.String("error", err.Error()))
		return
	}

	select {
	case r.queue <- job:
		l.Warn("replication failed, job requeued", slog.String("error", err.Error()))
	default:
		l.Error("replication failed and queue is full, dropping job", slog.String("error", err.Error()))
	}
}

func (r *Replicator) apply(ctx context.Context, job Job) error {
	if job.Op == OpDelete {
		if err := r.target.Delete(ctx, job.Filename); err != nil {
			return fmt.Errorf("delete remote: %w", err)
		}
		return nil
	}

	rc, size, err := r.source.Open(ctx, job.Filename)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer rc.Close()

	if job.Size > 0 {
		size = job.Size
	}

	written, remoteHash, err := r.target.Save(ctx, rc, job.Filename, size)
	if err != nil {
		return fmt.Errorf("save to remote: %w", err)
	}
	if written != size {
		return fmt.Errorf("remote wrote %d of %d bytes", written, size)
	}
	if job.Hash != "" && remoteHash != job.Hash {
		return fmt.Errorf("hash mismatch: local=%s remote=%s", job.Hash, remoteHash)
	}

	return nil
}
