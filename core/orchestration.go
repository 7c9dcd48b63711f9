// Package orchestration runs the conversation: it listens to the live
// microphone stream, captures utterances and carries each one through
// transcription, reply generation and playback, one turn at a time.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/levial/levial/core/audio"
	"github.com/levial/levial/core/detection"
	"github.com/levial/levial/core/events"
	"github.com/levial/levial/core/llms"
	"github.com/levial/levial/core/playback"
	"github.com/levial/levial/core/recording"
	"github.com/levial/levial/core/speechtotext"
	"github.com/levial/levial/core/texttospeech"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPreRoll         = 3 * time.Second
	DefaultMaxHistoryTurns = 6

	defaultReopenInitial  = 200 * time.Millisecond
	defaultReopenMax      = 5 * time.Second
	defaultReopenAttempts = 5
)

var (
	ErrNoAudioSource  = errors.New("no audio source configured")
	ErrAlreadyRunning = errors.New("orchestrator is already running")
	// ErrEmptyTranscript means the transcriber heard nothing usable. The
	// turn is skipped.
	ErrEmptyTranscript = errors.New("empty transcript")
)

type Orchestrator struct {
	openSource     SourceOpener
	listenMode     ListenMode
	wakeDetector   WakeWordDetector
	vadScorer      detection.Scorer
	vadThreshold   float64
	minSpeech      time.Duration
	silence        time.Duration
	maxRecording   time.Duration
	preRoll        time.Duration
	pollInterval   time.Duration
	reopenInitial  time.Duration
	reopenMax      time.Duration
	reopenAttempts int
	transcriber    speechtotext.Transcriber
	llm            llms.Generator
	synthesizer    texttospeech.Synthesizer
	player         playback.Player
	memory         Memory
	toolCaller     ToolCaller
	systemPrompt   string
	artifactsDir   string
	keepArtifacts  bool
	history        *History
	callbacks      callbacks
	emit           eventEmitter

	orchestrationTools bool

	recorder  *recording.Recorder
	listenVAD *detection.VoiceActivityDetector
	relay     *captureRelay
	playback  *playbackSupervisor
	triggers  chan struct{}

	listening atomic.Bool
	speaking  atomic.Bool
	running   atomic.Bool

	mu      sync.Mutex
	state   State
	turn    *turn
	session *recording.Session

	turnsStarted     metric.Int64Counter
	turnsCompleted   metric.Int64Counter
	turnsFailed      metric.Int64Counter
	turnsInterrupted metric.Int64Counter
	detections       metric.Int64Counter
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		listenMode:     ListenModeManual,
		vadThreshold:   detection.DefaultVADThreshold,
		silence:        detection.DefaultSilenceDuration,
		preRoll:        DefaultPreRoll,
		pollInterval:   audio.DefaultPollInterval,
		reopenInitial:  defaultReopenInitial,
		reopenMax:      defaultReopenMax,
		reopenAttempts: defaultReopenAttempts,
		artifactsDir:   filepath.Join(os.TempDir(), "levial"),
		history:        NewHistory(DefaultMaxHistoryTurns),
		relay:          newCaptureRelay(),
		triggers:       make(chan struct{}, 1),
		state:          StateIdle,
	}
	o.listening.Store(true)
	o.speaking.Store(true)

	for _, opt := range opts {
		opt(o)
	}

	o.emit = newCallbackEventEmitter(o.callbacks)
	o.playback = newPlaybackSupervisor(o.player)
	o.recorder = recording.New(o.relay, o.vadScorer,
		recording.WithVADThreshold(o.vadThreshold),
		recording.WithMinSpeech(o.minSpeech),
		recording.WithPollInterval(o.pollInterval),
	)
	o.listenVAD = detection.NewVoiceActivityDetector(o.vadScorer,
		detection.WithVADThreshold(o.vadThreshold),
		detection.WithMinSpeech(o.minSpeech),
		detection.WithSilenceDuration(o.silence),
	)

	o.turnsStarted = newCounter("levial.turns.started", "Turns started by a capture")
	o.turnsCompleted = newCounter("levial.turns.completed", "Turns that ended with a spoken reply")
	o.turnsFailed = newCounter("levial.turns.failed", "Turns aborted by a failing stage")
	o.turnsInterrupted = newCounter("levial.turns.interrupted", "Turns cancelled by an interruption")
	o.detections = newCounter("levial.detections", "Wake word and speech onset detections")

	return o
}

// Run opens the audio source and runs turns until ctx is done. It only
// returns early when the source cannot be opened or a failed device cannot
// be reopened; every per-turn failure is contained in its turn.
//
// Run may only be active once at a time.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer o.running.Store(false)

	if o.openSource == nil {
		return ErrNoAudioSource
	}
	source, err := o.openSource(ctx)
	if err != nil {
		return fmt.Errorf("failed to open audio source: %w", err)
	}
	o.relay.setPreRoll(audio.NewPreRollBuffer(preRollCapacity(o.preRoll, source.ChunkDuration())))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return panicSafeNamedWorker("audio pump", func(ctx context.Context) error {
			return o.pump(ctx, source)
		})(groupCtx)
	})
	group.Go(func() error {
		return panicSafeNamedWorker("turn loop", o.turnLoop)(groupCtx)
	})

	err = group.Wait()
	o.playback.stop()
	o.setState(StateIdle)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func preRollCapacity(preRoll, chunkDuration time.Duration) int {
	if preRoll <= 0 || chunkDuration <= 0 {
		return 1
	}
	return max(int(math.Ceil(float64(preRoll)/float64(chunkDuration))), 1)
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History returns the retained conversation turns, oldest first.
func (o *Orchestrator) History() []llms.Turn {
	return o.history.Turns()
}

// StartCapture starts a capture as if a wake word was heard. A busy
// assistant is interrupted first. It is a no-op while already capturing.
func (o *Orchestrator) StartCapture() bool {
	switch o.State() {
	case StateCapturing:
		return false
	case StateIdle, StateListening:
	default:
		o.Interrupt()
	}
	o.trigger()
	return true
}

// StopCapture ends the running capture with the audio captured so far.
func (o *Orchestrator) StopCapture() bool {
	o.mu.Lock()
	session := o.session
	o.mu.Unlock()

	if session == nil {
		return false
	}
	session.Stop()
	return true
}

// Interrupt cancels the turn in flight and returns to listening. Stages
// blocked on external processes have them terminated, and playback is stopped
// before Interrupt returns. It reports false when there was nothing to
// interrupt.
func (o *Orchestrator) Interrupt() bool {
	o.mu.Lock()
	t := o.turn
	from := o.state
	if t == nil || !from.Active() || t.ctx.Err() != nil {
		o.mu.Unlock()
		return false
	}
	t.cancel()
	o.state = StateListening
	o.mu.Unlock()

	o.playback.stop()
	o.emit(events.NewStateChanged(from.String(), StateListening.String()))
	o.emit(events.NewTurnCancelled(t.id))
	logger.Info("turn interrupted", "turn", t.id, "state", from.String())
	return true
}

// SetListening pauses or resumes detection. A paused orchestrator only
// starts captures on StartCapture.
func (o *Orchestrator) SetListening(listening bool) {
	o.listening.Store(listening)
}

func (o *Orchestrator) IsListening() bool {
	return o.listening.Load()
}

// SetSpeaking mutes or unmutes replies. Muting stops the reply being played.
func (o *Orchestrator) SetSpeaking(speaking bool) {
	o.speaking.Store(speaking)
	if !speaking {
		o.playback.stop()
	}
}

func (o *Orchestrator) IsSpeaking() bool {
	return o.speaking.Load()
}

func (o *Orchestrator) trigger() {
	select {
	case o.triggers <- struct{}{}:
	default:
	}
}

// drainTriggers drops start requests that raced with the turn that just
// started capturing; that capture already serves them.
func (o *Orchestrator) drainTriggers() {
	select {
	case <-o.triggers:
	default:
	}
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	from := o.state
	o.state = state
	o.mu.Unlock()

	if from != state {
		o.emit(events.NewStateChanged(from.String(), state.String()))
	}
}
