// Package portaudio captures microphone audio with PortAudio blocking reads.
package portaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/levial/levial/core/audio"
)

// Client implements audio.Device on top of a PortAudio input stream. Reads
// run on their own goroutine between StartCapture and StopCapture.
type Client struct {
	bufferSize int
	channels   int
	sampleRate int
	stream     *portaudio.Stream
	in         []float32

	onError func(err error)
	cancel  context.CancelFunc
	done    chan struct{}

	mu sync.Mutex
}

func NewClient(sampleRate, channels, bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	in := make([]float32, bufferSize*channels)
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), bufferSize, in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		channels:   channels,
		sampleRate: sampleRate,
		stream:     stream,
		in:         in,
	}, nil
}

func (c *Client) StartCapture(ctx context.Context, onSamples func(samples []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}

	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start PortAudio stream: %w", err)
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.read(ctx, onSamples, c.done)
	return nil
}

func (c *Client) read(ctx context.Context, onSamples func([]float32), done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.stream.Read(); err != nil {
			// Overflows only mean samples were lost; anything else ends
			// the stream.
			if err == portaudio.InputOverflowed {
				logger.Warn("PortAudio input overflowed")
				continue
			}
			c.mu.Lock()
			onError := c.onError
			c.mu.Unlock()
			if onError != nil && ctx.Err() == nil {
				onError(err)
			}
			return
		}

		samples := make([]float32, len(c.in))
		copy(samples, c.in)
		onSamples(samples)
	}
}

func (c *Client) StopCapture() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	// Stopping the stream unblocks a pending Read.
	err := c.stream.Stop()
	<-done
	if err != nil {
		return fmt.Errorf("failed to stop PortAudio stream: %w", err)
	}
	return nil
}

func (c *Client) OnError(onError func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = onError
}

func (c *Client) Close() {
	_ = c.StopCapture()
	_ = c.stream.Close()
	_ = portaudio.Terminate()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: c.sampleRate,
		Channels:   c.channels,
		Format:     audio.EncodingFloat32,
	}
}
