package audio

import "time"

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	// DefaultChunkSize is the frame count per chunk; 1280 frames at 16kHz is
	// 80ms, the window keyword-spotting models expect.
	DefaultChunkSize = 1280
	DefaultFormat    = "linear16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		Format:     encodingFormat(DefaultFormat),
	}
}

type EncodingInfo struct {
	SampleRate int
	Channels   int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// FrameDuration returns the playback duration of the given number of frames.
func (e EncodingInfo) FrameDuration(frames int) time.Duration {
	if e.SampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(e.SampleRate)
}

// BytesPerFrame returns the size of one interleaved frame, or -1 for unknown
// formats.
func (e EncodingInfo) BytesPerFrame() int {
	size := e.Format.ByteSize()
	if size < 0 {
		return -1
	}
	channels := e.Channels
	if channels <= 0 {
		channels = 1
	}
	return size * channels
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case encodingFormat("mulaw"), encodingFormat("alaw"):
		return 1
	case encodingFormat("linear16"):
		return 2
	case encodingFormat("float32"):
		return 4
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
	EncodingFloat32  encodingFormat = "float32"
)
