package audio

import (
	"math"
	"sync"
	"time"
)

// PreRollBuffer keeps the most recent chunks so that speech which started
// before a detector fired still ends up in the captured segment.
type PreRollBuffer struct {
	chunks []Chunk
	start  int
	size   int

	mu sync.Mutex
}

// NewPreRollBuffer creates a buffer holding at most capacity chunks. A
// capacity below one is raised to one.
func NewPreRollBuffer(capacity int) *PreRollBuffer {
	return &PreRollBuffer{chunks: make([]Chunk, max(capacity, 1))}
}

// NewPreRollBufferForDuration sizes the buffer to cover at least d of audio.
func NewPreRollBufferForDuration(d time.Duration, sampleRate, chunkSize int) *PreRollBuffer {
	if sampleRate <= 0 || chunkSize <= 0 {
		return NewPreRollBuffer(1)
	}
	capacity := math.Ceil(d.Seconds() * float64(sampleRate) / float64(chunkSize))
	return NewPreRollBuffer(int(capacity))
}

// Push appends the chunk, evicting the oldest one when the buffer is full.
func (b *PreRollBuffer) Push(chunk Chunk) {
	b.mu.Lock()
	defer b.mu.Unlock()

	end := (b.start + b.size) % len(b.chunks)
	b.chunks[end] = chunk
	if b.size < len(b.chunks) {
		b.size++
	} else {
		b.start = (b.start + 1) % len(b.chunks)
	}
}

// Snapshot returns the buffered chunks oldest first. The returned slice is a
// copy and does not change with later pushes.
func (b *PreRollBuffer) Snapshot() []Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := make([]Chunk, b.size)
	for i := range b.size {
		snapshot[i] = b.chunks[(b.start+i)%len(b.chunks)]
	}
	return snapshot
}

// Drain returns the snapshot and empties the buffer in one step.
func (b *PreRollBuffer) Drain() []Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := make([]Chunk, b.size)
	for i := range b.size {
		snapshot[i] = b.chunks[(b.start+i)%len(b.chunks)]
	}
	b.clear()
	return snapshot
}

func (b *PreRollBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *PreRollBuffer) Cap() int {
	return len(b.chunks)
}

func (b *PreRollBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clear()
}

func (b *PreRollBuffer) clear() {
	clear(b.chunks)
	b.start = 0
	b.size = 0
}
