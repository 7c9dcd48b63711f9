// Package miniaudio captures and plays audio through miniaudio (malgo).
package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/levial/levial/core/audio"
)

// Client owns a miniaudio context and its capture device. It implements
// audio.Device and hands out Players that share the same context.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	captureClient
}

type ClientOption func(*Client)

func WithSampleRate(sampleRate int) ClientOption {
	return func(c *Client) { c.captureClient.sampleRate = sampleRate }
}

func WithChannels(channels int) ClientOption {
	return func(c *Client) { c.captureClient.channels = channels }
}

// WithDeviceID selects a capture device by its miniaudio id. The default
// device is used otherwise.
func WithDeviceID(id malgo.DeviceID) ClientOption {
	return func(c *Client) { c.captureClient.deviceID = &id }
}

func NewClient(options ...ClientOption) (*Client, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo: " + message)
	})
	if err != nil {
		return nil, fmt.Errorf("malgo InitContext failed: %w", err)
	}

	client := Client{
		audioContext: audioCtx,
		captureClient: captureClient{
			sampleRate: audio.DefaultSampleRate,
			channels:   audio.DefaultChannels,
		},
	}
	for _, option := range options {
		option(&client)
	}

	if err := client.captureClient.Init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

func (c *Client) StartCapture(_ context.Context, onSamples func(samples []float32)) error {
	return c.captureClient.Start(onSamples)
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) OnError(onError func(err error)) {
	c.captureClient.mu.Lock()
	defer c.captureClient.mu.Unlock()
	c.captureClient.onError = onError
}

// NewPlayer returns a WAV player bound to the client's audio context. The
// player must not be used after the client is closed.
func (c *Client) NewPlayer() *Player {
	return &Player{audioContext: c.audioContext}
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: c.captureClient.sampleRate,
		Channels:   c.captureClient.channels,
		Format:     audio.EncodingFloat32,
	}
}

// Devices lists the capture devices miniaudio can see.
func (c *Client) Devices() ([]malgo.DeviceInfo, error) {
	return c.audioContext.Devices(malgo.Capture)
}
