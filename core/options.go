package orchestration

import (
	"context"
	"time"

	"github.com/levial/levial/core/audio"
	"github.com/levial/levial/core/detection"
	"github.com/levial/levial/core/events"
	"github.com/levial/levial/core/llms"
	"github.com/levial/levial/core/playback"
	"github.com/levial/levial/core/speechtotext"
	"github.com/levial/levial/core/texttospeech"
)

type OrchestratorOption func(*Orchestrator)

// AudioSource is the live chunk stream the orchestrator owns while running.
// *audio.Source implements it.
type AudioSource interface {
	NextChunk(ctx context.Context, timeout time.Duration) (audio.Chunk, error)
	ChunkDuration() time.Duration
	Close() error
}

// SourceOpener opens a fresh source. It is called once at start-up and again
// whenever the device fails mid-stream.
type SourceOpener func(ctx context.Context) (AudioSource, error)

// DeviceSourceOpener opens a new device on every call and starts a source on
// it.
func DeviceSourceOpener(newDevice func() (audio.Device, error), options audio.SourceOptions) SourceOpener {
	return func(ctx context.Context) (AudioSource, error) {
		device, err := newDevice()
		if err != nil {
			return nil, &audio.DeviceError{Op: "open", Err: err}
		}
		source, err := audio.Open(ctx, device, options)
		if err != nil {
			return nil, err
		}
		return source, nil
	}
}

// WakeWordDetector is the wake word gate. *detection.WakeWordDetector
// implements it.
type WakeWordDetector interface {
	Feed(chunk audio.Chunk) (*detection.Event, error)
	Reset()
}

// Memory is long-term memory queried with plain text.
type Memory interface {
	AddInteraction(ctx context.Context, role, text string) error
	RelevantContext(ctx context.Context, query string) (string, error)
}

func WithAudioSource(open SourceOpener) OrchestratorOption {
	return func(o *Orchestrator) { o.openSource = open }
}

func WithListenMode(mode ListenMode) OrchestratorOption {
	return func(o *Orchestrator) { o.listenMode = mode }
}

func WithWakeWordDetector(detector WakeWordDetector) OrchestratorOption {
	return func(o *Orchestrator) { o.wakeDetector = detector }
}

// WithVoiceActivityScorer sets the scorer used for speech onset while
// listening and for end of utterance while capturing. The default scores RMS
// energy.
func WithVoiceActivityScorer(scorer detection.Scorer) OrchestratorOption {
	return func(o *Orchestrator) { o.vadScorer = scorer }
}

func WithVADThreshold(threshold float64) OrchestratorOption {
	return func(o *Orchestrator) { o.vadThreshold = threshold }
}

func WithMinSpeech(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.minSpeech = d }
}

// WithSilenceDuration ends a capture once this much silence follows speech.
// Zero disables silence detection.
func WithSilenceDuration(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.silence = d }
}

// WithMaxRecordingDuration caps a single capture. Zero means no cap.
func WithMaxRecordingDuration(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.maxRecording = d }
}

func WithPreRoll(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.preRoll = d }
}

func WithPollInterval(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithReopenBackoff controls how a failed device is reopened: the first
// retry waits initial, every later one twice as long up to maxDelay.
func WithReopenBackoff(initial, maxDelay time.Duration, attempts int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.reopenInitial = initial
		o.reopenMax = maxDelay
		o.reopenAttempts = attempts
	}
}

func WithTranscriber(transcriber speechtotext.Transcriber) OrchestratorOption {
	return func(o *Orchestrator) { o.transcriber = transcriber }
}

// WithLLM sets the reply generator. Generators that implement
// llms.ToolCallingGenerator are offered tools.
func WithLLM(generator llms.Generator) OrchestratorOption {
	return func(o *Orchestrator) { o.llm = generator }
}

func WithSynthesizer(synthesizer texttospeech.Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.synthesizer = synthesizer }
}

func WithPlayer(player playback.Player) OrchestratorOption {
	return func(o *Orchestrator) { o.player = player }
}

func WithMemory(memory Memory) OrchestratorOption {
	return func(o *Orchestrator) { o.memory = memory }
}

// WithToolCaller routes server tool calls. Callers that also implement
// ToolLister advertise their tools to the model.
func WithToolCaller(caller ToolCaller) OrchestratorOption {
	return func(o *Orchestrator) { o.toolCaller = caller }
}

// WithOrchestrationTools lets the model mute the assistant and pause
// listening.
func WithOrchestrationTools() OrchestratorOption {
	return func(o *Orchestrator) { o.orchestrationTools = true }
}

func WithSystemPrompt(prompt string) OrchestratorOption {
	return func(o *Orchestrator) { o.systemPrompt = prompt }
}

func WithMaxHistoryTurns(turns int) OrchestratorOption {
	return func(o *Orchestrator) { o.history = NewHistory(turns) }
}

// WithArtifactsDir sets where utterances and synthesized replies are
// written.
func WithArtifactsDir(dir string) OrchestratorOption {
	return func(o *Orchestrator) { o.artifactsDir = dir }
}

// WithKeepArtifacts keeps utterance files after they were transcribed.
func WithKeepArtifacts(keep bool) OrchestratorOption {
	return func(o *Orchestrator) { o.keepArtifacts = keep }
}

// WithEventHandler receives every orchestration event. It is called from
// several goroutines and must not block.
func WithEventHandler(handler func(events.Event)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onEvent = handler }
}

func WithStateCallback(callback func(from, to State)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onStateChange = callback }
}

func WithWakeWordCallback(callback func(label string, confidence float64)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onWakeWord = callback }
}

func WithTranscriptionCallback(callback func(transcript string)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onTranscription = callback }
}

func WithResponseCallback(callback func(response string)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onResponse = callback }
}

func WithCancellationCallback(callback func()) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onCancellation = callback }
}
