package replicator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource map[string]string

func (s staticSource) Open(_ context.Context, filename string) (io.ReadCloser, int64, error) {
	data, ok := s[filename]
	if !ok {
		return nil, 0, errors.New("missing")
	}
	return io.NopCloser(bytes.NewReader([]byte(data))), int64(len(data)), nil
}

type flakyTarget struct {
	failures atomic.Int32
	calls    atomic.Int32

	mu      sync.Mutex
	saved   map[string]string
	deleted []string
}

func (f *flakyTarget) Save(_ context.Context, r io.Reader, filename string, _ int64) (int64, string, error) {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return 0, "", errors.New("remote down")
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return 0, "", err
	}
	f.mu.Lock()
	f.saved[filename] = string(data)
	f.mu.Unlock()
	return int64(len(data)), "", nil
}

func (f *flakyTarget) Delete(_ context.Context, filename string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, filename)
	f.mu.Unlock()
	return nil
}

func (f *flakyTarget) savedFile(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.saved[name]
	return v, ok
}

func TestReplicatorRetriesUntilSaved(t *testing.T) {
	target := &flakyTarget{saved: map[string]string{}}
	target.failures.Store(2)

	r := New(staticSource{"a.xml": "<document/>"}, target, 4, 1, 3)
	r.Start(context.Background())

	require.NoError(t, r.Enqueue(Job{Op: OpPut, Filename: "a.xml"}))

	assert.Eventually(t, func() bool {
		v, ok := target.savedFile("a.xml")
		return ok && v == "<document/>"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), target.calls.Load())

	require.NoError(t, r.Stop(context.Background()))
}

func TestReplicatorGivesUp(t *testing.T) {
	target := &flakyTarget{saved: map[string]string{}}
	target.failures.Store(100)

	r := New(staticSource{"a.xml": "x"}, target, 4, 1, 2)
	r.Start(context.Background())
	require.NoError(t, r.Enqueue(Job{Op: OpPut, Filename: "a.xml"}))

	assert.Eventually(t, func() bool { return target.calls.Load() == 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, r.Stop(context.Background()))

	_, ok := target.savedFile("a.xml")
	assert.False(t, ok)
}

func TestReplicatorDelete(t *testing.T) {
	target := &flakyTarget{saved: map[string]string{}}
	r := New(staticSource{}, target, 4, 2, 0)
	r.Start(context.Background())

	require.NoError(t, r.Enqueue(Job{Op: OpDelete, Filename: "pdfs/a.pdf"}))
	require.NoError(t, r.Stop(context.Background()))

	assert.Equal(t, []string{"pdfs/a.pdf"}, target.deleted)
}

func TestReplicatorEnqueueAfterStop(t *testing.T) {
	r := New(staticSource{}, &flakyTarget{saved: map[string]string{}}, 1, 1, 0)
	r.Start(context.Background())
	require.NoError(t, r.Stop(context.Background()))
	require.NoError(t, r.Stop(context.Background()))

	require.ErrorIs(t, r.Enqueue(Job{Filename: "a"}), ErrClosed)
}

func TestReplicatorQueueFull(t *testing.T) {
	r := New(staticSource{}, &flakyTarget{saved: map[string]string{}}, 1, 1, 0)

	require.NoError(t, r.Enqueue(Job{Filename: "a"}))
	require.Error(t, r.Enqueue(Job{Filename: "b"}))
}
