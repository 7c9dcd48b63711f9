package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultQueueSize    = 64
)

// Device is a capture device that pushes samples to a callback from its own
// thread. Samples are normalized to [-1, 1] and interleaved.
type Device interface {
	EncodingInfo() EncodingInfo
	StartCapture(ctx context.Context, onSamples func(samples []float32)) error
	StopCapture() error
	Close()
}

// DeviceErrorReporter is implemented by devices that can fail after capture
// has started.
type DeviceErrorReporter interface {
	OnError(func(err error))
}

type SourceOptions struct {
	SampleRate int
	Channels   int
	// ChunkSize is the number of frames per chunk.
	ChunkSize int
	// QueueSize bounds the number of chunks waiting for a consumer. When the
	// queue is full new chunks are dropped.
	QueueSize int
}

func (o SourceOptions) withDefaults(info EncodingInfo) SourceOptions {
	if o.SampleRate <= 0 {
		o.SampleRate = info.SampleRate
	}
	if o.SampleRate <= 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.Channels <= 0 {
		o.Channels = info.Channels
	}
	if o.Channels <= 0 {
		o.Channels = DefaultChannels
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	return o
}

// Source turns the device's callbacks into a stream of fixed-size chunks with
// strictly increasing sequence numbers. It owns the device until Close.
type Source struct {
	device  Device
	options SourceOptions

	chunks  chan Chunk
	pending []float32
	seq     uint64
	mu      sync.Mutex

	dropped        atomic.Uint64
	droppedCounter metric.Int64Counter

	err      error
	failed   chan struct{}
	failOnce sync.Once

	closed    chan struct{}
	closeOnce sync.Once
}

// Open starts capturing from the device. A device that cannot start is
// reported as a *DeviceError and the device is closed.
func Open(ctx context.Context, device Device, options SourceOptions) (*Source, error) {
	options = options.withDefaults(device.EncodingInfo())

	droppedCounter, err := meter.Int64Counter("levial.audio.chunks.dropped",
		metric.WithDescription("Audio chunks dropped because the consumer fell behind"))
	if err != nil {
		logger.Warn("failed to create dropped chunk counter", "error", err)
	}

	s := &Source{
		device:         device,
		options:        options,
		chunks:         make(chan Chunk, options.QueueSize),
		pending:        make([]float32, 0, options.ChunkSize*options.Channels*2),
		droppedCounter: droppedCounter,
		failed:         make(chan struct{}),
		closed:         make(chan struct{}),
	}

	if reporter, ok := device.(DeviceErrorReporter); ok {
		reporter.OnError(s.fail)
	}

	if err := device.StartCapture(ctx, s.receive); err != nil {
		device.Close()
		return nil, &DeviceError{Op: "open", Err: err}
	}

	return s, nil
}

func (s *Source) receive(samples []float32) {
	select {
	case <-s.closed:
		return
	case <-s.failed:
		return
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, samples...)
	chunkLen := s.options.ChunkSize * s.options.Channels
	for len(s.pending) >= chunkLen {
		chunk := Chunk{
			Seq:        s.seq,
			Samples:    make([]float32, chunkLen),
			SampleRate: s.options.SampleRate,
			Channels:   s.options.Channels,
		}
		copy(chunk.Samples, s.pending[:chunkLen])
		s.pending = s.pending[chunkLen:]
		s.seq++

		select {
		case s.chunks <- chunk:
		default:
			s.dropped.Add(1)
			if s.droppedCounter != nil {
				s.droppedCounter.Add(context.Background(), 1)
			}
		}
	}

	// Compact so the backing array does not grow without bound.
	if cap(s.pending)-len(s.pending) < chunkLen {
		s.pending = append(make([]float32, 0, chunkLen*2), s.pending...)
	}
}

func (s *Source) fail(err error) {
	s.failOnce.Do(func() {
		s.err = &DeviceError{Op: "stream", Err: err}
		logger.Error("audio device failed mid-stream", "error", err)
		close(s.failed)
	})
}

// NextChunk waits up to timeout for the next chunk. It returns ErrNoChunk on
// timeout, the terminal *DeviceError once the device has failed, and
// ErrSourceClosed after Close.
func (s *Source) NextChunk(ctx context.Context, timeout time.Duration) (Chunk, error) {
	if err := s.terminalErr(); err != nil {
		return Chunk{}, err
	}

	if timeout <= 0 {
		timeout = DefaultPollInterval
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case chunk := <-s.chunks:
		return chunk, nil
	case <-s.failed:
		return Chunk{}, s.err
	case <-s.closed:
		return Chunk{}, ErrSourceClosed
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	case <-timer.C:
		return Chunk{}, ErrNoChunk
	}
}

func (s *Source) terminalErr() error {
	select {
	case <-s.closed:
		return ErrSourceClosed
	default:
	}
	select {
	case <-s.failed:
		return s.err
	default:
	}
	return nil
}

func (s *Source) Options() SourceOptions { return s.options }

// ChunkDuration is the audio duration of every chunk the source produces.
func (s *Source) ChunkDuration() time.Duration {
	return time.Duration(s.options.ChunkSize) * time.Second / time.Duration(s.options.SampleRate)
}

// Dropped returns the number of chunks discarded because the queue was full.
func (s *Source) Dropped() uint64 { return s.dropped.Load() }

// Close stops capture and releases the device. It is safe to call more than
// once.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if stopErr := s.device.StopCapture(); stopErr != nil {
			err = fmt.Errorf("failed to stop capture: %w", stopErr)
		}
		s.device.Close()
	})
	return err
}
