package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var ErrInvalidWAV = errors.New("invalid wav data")

type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// EncodeWAV writes samples as a 16-bit PCM RIFF/WAVE stream.
func EncodeWAV(w io.Writer, samples []float32, info EncodingInfo) error {
	channels := max(info.Channels, 1)
	data := EncodeLinear16(samples)

	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(data)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(info.SampleRate),
		ByteRate:      uint32(info.SampleRate * channels * 2),
		BlockAlign:    uint16(channels * 2),
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(data)),
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed to write wav header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write wav data: %w", err)
	}
	return nil
}

// DecodeWAV reads a 16-bit PCM WAV stream, skipping chunks other than "fmt "
// and "data".
func DecodeWAV(r io.Reader) ([]float32, EncodingInfo, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, EncodingInfo{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, EncodingInfo{}, fmt.Errorf("%w: missing RIFF/WAVE marker", ErrInvalidWAV)
	}

	var info EncodingInfo
	for {
		var chunkID [4]byte
		var size uint32
		if _, err := io.ReadFull(r, chunkID[:]); err != nil {
			return nil, EncodingInfo{}, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
		}
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, EncodingInfo{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}

		switch string(chunkID[:]) {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil || size < 16 {
				return nil, EncodingInfo{}, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			if audioFormat := binary.LittleEndian.Uint16(body[0:2]); audioFormat != 1 {
				return nil, EncodingInfo{}, fmt.Errorf("%w: unsupported audio format %d", ErrInvalidWAV, audioFormat)
			}
			if bits := binary.LittleEndian.Uint16(body[14:16]); bits != 16 {
				return nil, EncodingInfo{}, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, bits)
			}
			info = EncodingInfo{
				Channels:   int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRate: int(binary.LittleEndian.Uint32(body[4:8])),
				Format:     EncodingLinear16,
			}
		case "data":
			if info.IsZero() {
				return nil, EncodingInfo{}, fmt.Errorf("%w: data before fmt chunk", ErrInvalidWAV)
			}
			data := make([]byte, size)
			n, err := io.ReadFull(r, data)
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, EncodingInfo{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
			}
			return DecodeLinear16(data[:n]), info, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size+size%2)); err != nil {
				return nil, EncodingInfo{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
			}
		}
	}
}

// WriteSegment stores the segment as a WAV file, creating parent directories
// as needed.
func WriteSegment(path string, segment *Segment) error {
	return WriteWAVFile(path, segment.Samples(), segment.EncodingInfo())
}

func WriteWAVFile(path string, samples []float32, info EncodingInfo) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create audio directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create audio file: %w", err)
	}
	if err := EncodeWAV(f, samples, info); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ReadWAVFile(path string) ([]float32, EncodingInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, EncodingInfo{}, err
	}
	defer f.Close()
	return DecodeWAV(f)
}
