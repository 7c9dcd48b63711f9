// Package recording turns the live chunk stream into finished utterances.
package recording

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/levial/levial/core/audio"
	"github.com/levial/levial/core/detection"
)

var (
	// ErrNoAudioCaptured means a session ended before a single chunk was
	// captured. It is an outcome, not a failure.
	ErrNoAudioCaptured = errors.New("no audio captured")
	ErrSessionActive   = errors.New("a recording session is already active")
)

// ChunkSource is the stream a session consumes.
type ChunkSource interface {
	NextChunk(ctx context.Context, timeout time.Duration) (audio.Chunk, error)
}

// StopPolicy bounds a session. Zero values disable the corresponding stop
// condition.
type StopPolicy struct {
	// SilenceDuration ends the session once this much silence follows
	// speech.
	SilenceDuration time.Duration
	// MaxDuration is a hard cap on the segment length, pre-roll included.
	MaxDuration time.Duration
}

// Recorder runs at most one capture session at a time.
type Recorder struct {
	source       ChunkSource
	scorer       detection.Scorer
	vadThreshold float64
	minSpeech    time.Duration
	pollInterval time.Duration

	active atomic.Bool
}

type RecorderOption func(*Recorder)

func WithVADThreshold(threshold float64) RecorderOption {
	return func(r *Recorder) { r.vadThreshold = threshold }
}

func WithMinSpeech(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.minSpeech = d }
}

func WithPollInterval(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.pollInterval = d }
}

// New creates a recorder reading from source. Every session gets a fresh
// voice activity detector built on scorer; a nil scorer means RMS energy.
func New(source ChunkSource, scorer detection.Scorer, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		source:       source,
		scorer:       scorer,
		vadThreshold: detection.DefaultVADThreshold,
		pollInterval: audio.DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins a session seeded with the pre-roll chunks. The session runs
// until a stop condition is met or ctx is done.
func (r *Recorder) Start(ctx context.Context, policy StopPolicy, preRoll []audio.Chunk) (*Session, error) {
	if !r.active.CompareAndSwap(false, true) {
		return nil, ErrSessionActive
	}

	vad := detection.NewVoiceActivityDetector(r.scorer,
		detection.WithVADThreshold(r.vadThreshold),
		detection.WithSilenceDuration(policy.SilenceDuration),
		detection.WithMinSpeech(r.minSpeech),
	)

	s := &Session{
		recorder: r,
		policy:   policy,
		vad:      vad,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run(ctx, preRoll)
	return s, nil
}

// Active reports whether a session is currently running.
func (r *Recorder) Active() bool { return r.active.Load() }

// Session is a single capture in progress.
type Session struct {
	recorder *Recorder
	policy   StopPolicy
	vad      *detection.VoiceActivityDetector

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	segment *audio.Segment
	err     error
}

// Stop asks the session to end with the audio captured so far. It does not
// wait; use Wait for the result.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Wait blocks until the session ends. It returns ErrNoAudioCaptured when no
// chunk was captured.
func (s *Session) Wait() (*audio.Segment, error) {
	<-s.done
	return s.segment, s.err
}

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run(ctx context.Context, preRoll []audio.Chunk) {
	defer close(s.done)
	defer s.recorder.active.Store(false)

	ctx, span := tracer.Start(ctx, "capture")
	defer span.End()

	s.segment, s.err = s.capture(ctx, preRoll)
	switch {
	case s.err == nil:
		logger.Debug("capture finished",
			"reason", s.segment.Reason,
			"duration", s.segment.Duration(),
			"chunks", len(s.segment.Chunks))
	case errors.Is(s.err, ErrNoAudioCaptured):
		logger.Debug("capture finished without audio")
	default:
		span.RecordError(s.err)
	}
}

func (s *Session) capture(ctx context.Context, preRoll []audio.Chunk) (*audio.Segment, error) {
	chunks, duration := trimToCap(preRoll, s.policy.MaxDuration)
	for _, chunk := range chunks {
		if _, err := s.vad.Feed(chunk); err != nil {
			logger.Warn("voice activity scoring failed", "error", err)
		}
	}
	if s.capReached(duration) {
		return finish(chunks, audio.CaptureReasonDurationCap)
	}

	for {
		select {
		case <-s.stop:
			return finish(chunks, audio.CaptureReasonManualStop)
		default:
		}

		chunk, err := s.recorder.source.NextChunk(ctx, s.recorder.pollInterval)
		switch {
		case errors.Is(err, audio.ErrNoChunk):
			continue
		case err != nil:
			return nil, err
		}

		if s.policy.MaxDuration > 0 && duration+chunk.Duration() > s.policy.MaxDuration {
			return finish(chunks, audio.CaptureReasonDurationCap)
		}
		chunks = append(chunks, chunk)
		duration += chunk.Duration()
		if s.capReached(duration) {
			return finish(chunks, audio.CaptureReasonDurationCap)
		}

		select {
		case <-s.stop:
			return finish(chunks, audio.CaptureReasonManualStop)
		default:
		}

		if s.policy.SilenceDuration <= 0 {
			continue
		}
		result, err := s.vad.Feed(chunk)
		if err != nil {
			logger.Warn("voice activity scoring failed", "error", err)
			continue
		}
		if result.SilenceEnded {
			return finish(chunks, audio.CaptureReasonSilenceTimeout)
		}
	}
}

func (s *Session) capReached(duration time.Duration) bool {
	return s.policy.MaxDuration > 0 && duration >= s.policy.MaxDuration
}

// trimToCap drops the oldest pre-roll chunks until the rest fits the cap.
func trimToCap(preRoll []audio.Chunk, maxDuration time.Duration) ([]audio.Chunk, time.Duration) {
	var duration time.Duration
	for _, chunk := range preRoll {
		duration += chunk.Duration()
	}
	start := 0
	for maxDuration > 0 && duration > maxDuration && start < len(preRoll) {
		duration -= preRoll[start].Duration()
		start++
	}
	return append([]audio.Chunk(nil), preRoll[start:]...), duration
}

func finish(chunks []audio.Chunk, reason audio.CaptureReason) (*audio.Segment, error) {
	if len(chunks) == 0 {
		return nil, ErrNoAudioCaptured
	}
	return audio.NewSegment(chunks, reason), nil
}
