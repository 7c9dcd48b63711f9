package miniaudio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

var errUnexpectedStop = errors.New("capture device stopped unexpectedly")

type captureClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	sampleRate int
	channels   int
	deviceID   *malgo.DeviceID

	onSamples func(samples []float32)
	onError   func(err error)
	capturing bool

	mu sync.Mutex
}

func (c *captureClient) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	format := malgo.FormatF32
	bytesPerFrame := malgo.SampleSizeInBytes(format) * c.channels

	c.config = malgo.DefaultDeviceConfig(malgo.Capture)
	c.config.SampleRate = uint32(c.sampleRate)
	c.config.Capture.Format = format
	c.config.Capture.Channels = uint32(c.channels)
	if c.deviceID != nil {
		c.config.Capture.DeviceID = c.deviceID.Pointer()
	}
	c.config.Alsa.NoMMap = 1
	c.config.PerformanceProfile = malgo.LowLatency
	c.config.PeriodSizeInFrames = 480
	c.config.Periods = 3

	c.audioContext = audioContext

	var err error
	c.device, err = malgo.InitDevice(c.audioContext.Context, c.config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			c.mu.Lock()
			onSamples := c.onSamples
			c.mu.Unlock()
			if onSamples != nil {
				onSamples(decodeFloat32(pInput[:n]))
			}
		},
		Stop: func() {
			c.mu.Lock()
			capturing, onError := c.capturing, c.onError
			c.capturing = false
			c.mu.Unlock()
			if capturing && onError != nil {
				onError(errUnexpectedStop)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return nil
}

func (c *captureClient) Start(onSamples func(samples []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if c.device.IsStarted() {
		return nil
	}

	c.onSamples = onSamples
	c.capturing = true
	if err := c.device.Start(); err != nil {
		c.onSamples = nil
		c.capturing = false
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	return nil
}

func (c *captureClient) Stop() error {
	c.mu.Lock()
	if c.device == nil {
		c.mu.Unlock()
		return fmt.Errorf("device not initialized")
	} else if !c.device.IsStarted() {
		c.mu.Unlock()
		return nil
	}
	c.capturing = false
	c.onSamples = nil
	device := c.device
	c.mu.Unlock()

	// The stop callback takes the lock, so the device is stopped without it.
	if err := device.Stop(); err != nil {
		return fmt.Errorf("failed to stop device: %w", err)
	}
	return nil
}

func (c *captureClient) Uninit() error {
	c.mu.Lock()
	c.capturing = false
	c.onSamples = nil
	device := c.device
	c.device = nil
	c.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	return nil
}

func decodeFloat32(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}
