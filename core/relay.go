package orchestration

import (
	"context"
	"sync"
	"time"

	"github.com/levial/levial/core/audio"
)

// captureRelay sits between the audio pump and the recorder. While a capture
// is open every chunk goes to the recorder; otherwise chunks land in the
// pre-roll buffer. Both decisions are made under one lock so that a chunk is
// never in the pre-roll and in a segment at the same time.
type captureRelay struct {
	chunks chan audio.Chunk

	mu      sync.Mutex
	preRoll *audio.PreRollBuffer
	active  bool
	done    chan struct{}
	failed  chan struct{}
	err     error
}

func newCaptureRelay() *captureRelay {
	return &captureRelay{
		chunks:  make(chan audio.Chunk),
		preRoll: audio.NewPreRollBuffer(1),
		done:    closedChannel(),
		failed:  make(chan struct{}),
	}
}

func (r *captureRelay) setPreRoll(preRoll *audio.PreRollBuffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preRoll = preRoll
}

// open starts routing chunks to the recorder and hands back the buffered
// pre-roll, oldest first. The pre-roll is emptied.
func (r *captureRelay) open() []audio.Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = true
	r.done = make(chan struct{})
	r.failed = make(chan struct{})
	r.err = nil
	return r.preRoll.Drain()
}

func (r *captureRelay) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return
	}
	r.active = false
	close(r.done)
}

// route hands the chunk to an open capture and reports whether it was taken.
// A chunk that was not taken has been pushed to the pre-roll buffer.
func (r *captureRelay) route(ctx context.Context, chunk audio.Chunk) bool {
	r.mu.Lock()
	if !r.active {
		r.preRoll.Push(chunk)
		r.mu.Unlock()
		return false
	}
	done := r.done
	r.mu.Unlock()

	select {
	case r.chunks <- chunk:
		return true
	case <-done:
		r.mu.Lock()
		r.preRoll.Push(chunk)
		r.mu.Unlock()
		return false
	case <-ctx.Done():
		return true
	}
}

// fail ends the open capture with err. It is a no-op without one.
func (r *captureRelay) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active || r.err != nil {
		return
	}
	r.err = err
	close(r.failed)
}

func (r *captureRelay) clearPreRoll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preRoll.Clear()
}

// NextChunk implements recording.ChunkSource.
func (r *captureRelay) NextChunk(ctx context.Context, timeout time.Duration) (audio.Chunk, error) {
	r.mu.Lock()
	failed := r.failed
	r.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case chunk := <-r.chunks:
		return chunk, nil
	case <-failed:
		r.mu.Lock()
		defer r.mu.Unlock()
		return audio.Chunk{}, r.err
	case <-timer.C:
		return audio.Chunk{}, audio.ErrNoChunk
	case <-ctx.Done():
		return audio.Chunk{}, ctx.Err()
	}
}

func closedChannel() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
