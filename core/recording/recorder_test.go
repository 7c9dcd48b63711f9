package recording

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/levial/levial/core/audio"
)

type sliceSource struct {
	chunks []audio.Chunk
	err    error
	next   int
	mu     sync.Mutex
}

func (s *sliceSource) NextChunk(ctx context.Context, timeout time.Duration) (audio.Chunk, error) {
	s.mu.Lock()
	if s.next < len(s.chunks) {
		chunk := s.chunks[s.next]
		s.next++
		s.mu.Unlock()
		return chunk, nil
	}
	err := s.err
	s.mu.Unlock()

	if err != nil {
		return audio.Chunk{}, err
	}
	select {
	case <-ctx.Done():
		return audio.Chunk{}, ctx.Err()
	case <-time.After(min(timeout, 5*time.Millisecond)):
		return audio.Chunk{}, audio.ErrNoChunk
	}
}

func (s *sliceSource) consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// chunks returns count 80ms chunks starting at seq, filled with level.
func chunks(seq uint64, count int, level float32) []audio.Chunk {
	out := make([]audio.Chunk, count)
	for i := range out {
		samples := make([]float32, 1280)
		for j := range samples {
			samples[j] = level
		}
		out[i] = audio.Chunk{Seq: seq + uint64(i), Samples: samples, SampleRate: 16000, Channels: 1}
	}
	return out
}

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

func waitSession(t *testing.T, session *Session) (*audio.Segment, error) {
	t.Helper()

	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for session to finish")
	}
	return session.Wait()
}

func TestSessionEndsOnSilenceAfterPreRollAndSpeech(t *testing.T) {
	// 2s of pre-roll before a wake word at chunk 40, then 3s of speech and
	// 2.5s of silence.
	preRoll := chunks(15, 25, 0)
	var stream []audio.Chunk
	stream = append(stream, chunks(40, 38, 0.1)...)
	stream = append(stream, chunks(78, 32, 0)...)
	source := &sliceSource{chunks: stream}

	recorder := New(source, nil)
	session, err := recorder.Start(context.Background(), StopPolicy{SilenceDuration: 2 * time.Second}, preRoll)
	if err != nil {
		t.Fatalf("expected session to start, got %v", err)
	}

	segment, err := waitSession(t, session)
	if err != nil {
		t.Fatalf("expected a segment, got %v", err)
	}
	if segment.Reason != audio.CaptureReasonSilenceTimeout {
		t.Fatalf("expected silence-timeout, got %s", segment.Reason)
	}
	if segment.Chunks[0].Seq != 15 {
		t.Fatalf("expected segment to start with pre-roll, first seq %d", segment.Chunks[0].Seq)
	}
	// Last voiced chunk 77 ends at 6.24s; chunk 103 is the first to end
	// more than 2s later.
	if last := segment.Chunks[len(segment.Chunks)-1].Seq; last != 103 {
		t.Fatalf("expected segment to end at chunk 103, got %d", last)
	}
	if got := segment.Duration(); got != 7120*time.Millisecond {
		t.Fatalf("expected 7.12s segment, got %v", got)
	}
	for i := 1; i < len(segment.Chunks); i++ {
		if segment.Chunks[i].Seq != segment.Chunks[i-1].Seq+1 {
			t.Fatalf("expected contiguous chunks, got %d after %d", segment.Chunks[i].Seq, segment.Chunks[i-1].Seq)
		}
	}
}

func TestSessionNeverExceedsMaxDuration(t *testing.T) {
	for _, maxDuration := range []time.Duration{80 * time.Millisecond, time.Second, 1234 * time.Millisecond} {
		for _, preRollCount := range []int{0, 5, 40} {
			source := &sliceSource{chunks: chunks(40, 100, 0.1)}
			recorder := New(source, nil)

			session, err := recorder.Start(context.Background(), StopPolicy{
				SilenceDuration: 500 * time.Millisecond,
				MaxDuration:     maxDuration,
			}, chunks(0, preRollCount, 0.1))
			if err != nil {
				t.Fatalf("expected session to start, got %v", err)
			}

			segment, err := waitSession(t, session)
			if err != nil {
				t.Fatalf("cap %v pre-roll %d: expected a segment, got %v", maxDuration, preRollCount, err)
			}
			if segment.Duration() > maxDuration {
				t.Fatalf("cap %v pre-roll %d: segment of %v exceeds cap", maxDuration, preRollCount, segment.Duration())
			}
			if segment.Reason != audio.CaptureReasonDurationCap {
				t.Fatalf("cap %v pre-roll %d: expected duration-cap, got %s", maxDuration, preRollCount, segment.Reason)
			}
		}
	}
}

func TestSessionImmediateStopCapturesNothing(t *testing.T) {
	recorder := New(&sliceSource{}, nil)

	session, err := recorder.Start(context.Background(), StopPolicy{SilenceDuration: time.Second}, nil)
	if err != nil {
		t.Fatalf("expected session to start, got %v", err)
	}
	session.Stop()

	segment, err := waitSession(t, session)
	if !errors.Is(err, ErrNoAudioCaptured) {
		t.Fatalf("expected ErrNoAudioCaptured, got %v", err)
	}
	if segment != nil {
		t.Fatalf("expected no segment, got %+v", segment)
	}
}

func TestSessionExplicitStopKeepsCapturedAudio(t *testing.T) {
	source := &sliceSource{chunks: chunks(0, 6, 0.1)}
	recorder := New(source, nil)

	session, err := recorder.Start(context.Background(), StopPolicy{}, nil)
	if err != nil {
		t.Fatalf("expected session to start, got %v", err)
	}
	waitForCondition(t, time.Second, "chunks to be consumed", func() bool { return source.consumed() == 6 })
	session.Stop()

	segment, err := waitSession(t, session)
	if err != nil {
		t.Fatalf("expected a segment, got %v", err)
	}
	if segment.Reason != audio.CaptureReasonManualStop || len(segment.Chunks) != 6 {
		t.Fatalf("expected manual-stop with 6 chunks, got %s with %d", segment.Reason, len(segment.Chunks))
	}
}

func TestRecorderAllowsOneSessionAtATime(t *testing.T) {
	recorder := New(&sliceSource{}, nil)

	first, err := recorder.Start(context.Background(), StopPolicy{}, nil)
	if err != nil {
		t.Fatalf("expected first session to start, got %v", err)
	}
	if _, err := recorder.Start(context.Background(), StopPolicy{}, nil); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}

	first.Stop()
	_, _ = waitSession(t, first)

	second, err := recorder.Start(context.Background(), StopPolicy{}, nil)
	if err != nil {
		t.Fatalf("expected a new session after the first ended, got %v", err)
	}
	second.Stop()
	_, _ = waitSession(t, second)
}

func TestSessionCancelledContext(t *testing.T) {
	recorder := New(&sliceSource{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	session, err := recorder.Start(ctx, StopPolicy{}, chunks(0, 3, 0.1))
	if err != nil {
		t.Fatalf("expected session to start, got %v", err)
	}
	cancel()

	if _, err := waitSession(t, session); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSessionPropagatesDeviceError(t *testing.T) {
	deviceErr := &audio.DeviceError{Op: "stream", Err: errors.New("unplugged")}
	recorder := New(&sliceSource{chunks: chunks(0, 2, 0.1), err: deviceErr}, nil)

	session, err := recorder.Start(context.Background(), StopPolicy{}, nil)
	if err != nil {
		t.Fatalf("expected session to start, got %v", err)
	}

	var got *audio.DeviceError
	if _, err := waitSession(t, session); !errors.As(err, &got) {
		t.Fatalf("expected DeviceError, got %v", err)
	}
}
