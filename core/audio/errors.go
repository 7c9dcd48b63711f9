package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrNoChunk is returned by NextChunk when no chunk arrived within the
	// poll timeout. It is not a failure.
	ErrNoChunk      = errors.New("no audio chunk available")
	ErrSourceClosed = errors.New("audio source closed")
)

// DeviceError reports a microphone that could not be opened or failed while
// streaming. A source that returned a DeviceError must be reopened.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s failed: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }
