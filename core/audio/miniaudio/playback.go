package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/levial/levial/core/audio"
	"github.com/levial/levial/core/playback"
)

// Player plays WAV files in-process. Every Play call initializes its own
// playback device which is released when playback ends.
type Player struct {
	audioContext *malgo.AllocatedContext
}

func (p *Player) Play(ctx context.Context, path string) (playback.Handle, error) {
	samples, info, err := audio.ReadWAVFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	client := &playbackClient{
		leftoverAudio: audio.EncodeLinear16(samples),
		finished:      make(chan struct{}),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	if err := client.Init(p.audioContext, info); err != nil {
		return nil, err
	}
	if err := client.Start(); err != nil {
		_ = client.Uninit()
		return nil, err
	}

	go client.supervise(ctx)
	return client, nil
}

type playbackClient struct {
	device *malgo.Device

	leftoverAudio []byte
	audioMu       sync.Mutex

	finished     chan struct{}
	finishedOnce sync.Once
	stop         chan struct{}
	stopOnce     sync.Once
	done         chan struct{}
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext, info audio.EncodingInfo) error {
	format := malgo.FormatS16
	channels := max(info.Channels, 1)
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(info.SampleRate)
	config.Playback.Format = format
	config.Playback.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(info.SampleRate / 10) // ~100ms of audio
	config.Periods = 4

	var err error
	if c.device, err = malgo.InitDevice(
		audioContext.Context,
		config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) Start() error {
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

func (c *playbackClient) Uninit() error {
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}
	c.device.Uninit()
	c.device = nil
	return nil
}

// supervise releases the device once audio runs out, Stop is called or ctx
// is done. The device is never stopped from inside its own data callback.
func (c *playbackClient) supervise(ctx context.Context) {
	defer close(c.done)

	select {
	case <-c.finished:
	case <-c.stop:
	case <-ctx.Done():
	}

	if err := c.device.Stop(); err != nil {
		logger.Warn("failed to stop playback device", "error", err)
	}
	_ = c.Uninit()
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		c.audioMu.Lock()
		defer c.audioMu.Unlock()

		if len(c.leftoverAudio) == 0 {
			c.finishedOnce.Do(func() { close(c.finished) })
			return
		}

		if len(c.leftoverAudio) < need {
			n := copy(pOutput, c.leftoverAudio)
			clear(pOutput[n:])
			c.leftoverAudio = nil
			return
		}

		_ = copy(pOutput, c.leftoverAudio[:need])
		c.leftoverAudio = c.leftoverAudio[need:]
	}
}

// Stop ends playback and returns once the device has been released.
func (c *playbackClient) Stop() error {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
	return nil
}

// Wait blocks until playback finishes or is stopped.
func (c *playbackClient) Wait() error {
	<-c.done
	return nil
}

func (c *playbackClient) Done() <-chan struct{} { return c.done }
