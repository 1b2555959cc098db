package filestore

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/you-humble/pdftoxml/internal/infra/store/file/replicator"
)

type Remote interface {
	Save(ctx context.Context, reader io.Reader, filename string, size int64) (int64, string, error)
	Open(ctx context.Context, filename string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, filename string) error
}

type ReplicationConfig struct {
	QueueSize  int
	Workers    int
	MaxRetries int
}

// asyncStore serves everything from local disk and mirrors changes to an
// optional remote in the background.
type asyncStore struct {
	local      *localStore
	remote     Remote
	replicator *replicator.Replicator
}

// NewAsyncStore returns a local-only store when remote is nil.
func NewAsyncStore(ctx context.Context, local *localStore, remote Remote, cfg ReplicationConfig) *asyncStore {
	s := &asyncStore{local: local}
	if remote == nil {
		return s
	}

	s.remote = remote
	s.replicator = replicator.New(local, remote, cfg.QueueSize, cfg.Workers, cfg.MaxRetries)
	s.replicator.Start(ctx)
	return s
}

func (s *asyncStore) Close(ctx context.Context) error {
	if s.replicator == nil {
		return nil
	}
	return s.replicator.Stop(ctx)
}

func (s *asyncStore) Save(
	ctx context.Context,
	reader io.Reader,
	filename string,
	size int64,
) (int64, string, error) {
	written, hash, err := s.local.Save(ctx, reader, filename, size)
	if err != nil {
		return 0, "", err
	}

	s.enqueue(replicator.Job{Op: replicator.OpPut, Filename: filename, Size: written, Hash: hash})
	return written, hash, nil
}

// Replicate mirrors a file that was written to Path directly.
func (s *asyncStore) Replicate(filename string) {
	s.enqueue(replicator.Job{Op: replicator.OpPut, Filename: filename})
}

func (s *asyncStore) Open(ctx context.Context, filename string) (io.ReadCloser, int64, error) {
	rc, size, err := s.local.Open(ctx, filename)
	if err == nil || s.remote == nil || !errors.Is(err, ErrNotFound) {
		return rc, size, err
	}

	return s.remote.Open(ctx, filename)
}

func (s *asyncStore) Delete(ctx context.Context, filename string) error {
	if err := s.local.Delete(ctx, filename); err != nil {
		return err
	}

	s.enqueue(replicator.Job{Op: replicator.OpDelete, Filename: filename})
	return nil
}

func (s *asyncStore) Path(filename string) (string, error) {
	return s.local.Path(filename)
}

func (s *asyncStore) enqueue(job replicator.Job) {
	if s.replicator == nil {
		return
	}

	if err := s.replicator.Enqueue(job); err != nil {
		slog.Error("asyncStore: replication skipped, file kept only locally",
			slog.String("op", job.Op.String()),
			slog.String("filename", job.Filename),
			slog.String("error", err.Error()),
		)
	}
}
