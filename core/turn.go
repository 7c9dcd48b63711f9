package orchestration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/levial/levial/core/audio"
	"github.com/levial/levial/core/events"
	"github.com/levial/levial/core/llms"
	"github.com/levial/levial/core/recording"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	StageCapture    = "capture"
	StageTranscribe = "transcribe"
	StageRespond    = "respond"
	StageSynthesize = "synthesize"
	StagePlayback   = "playback"
)

// StageError is a turn aborted by one of its stages.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type turn struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

func (o *Orchestrator) turnLoop(ctx context.Context) error {
	o.setState(StateListening)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.triggers:
			o.runTurn(ctx)
		}
	}
}

// advance moves the turn to state unless the turn was cancelled in the
// meantime, in which case the interruption already decided the state.
func (o *Orchestrator) advance(t *turn, state State) bool {
	o.mu.Lock()
	if t.ctx.Err() != nil {
		o.mu.Unlock()
		return false
	}
	from := o.state
	o.state = state
	o.mu.Unlock()

	if from != state {
		o.emit(events.NewStateChanged(from.String(), state.String()))
	}
	return true
}

func (o *Orchestrator) runTurn(ctx context.Context) {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	t := &turn{id: uuid.NewString(), ctx: turnCtx, cancel: cancel}

	o.mu.Lock()
	o.turn = t
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		if o.turn == t {
			o.turn = nil
		}
		o.mu.Unlock()
	}()

	spanCtx, span := tracer.Start(turnCtx, "turn", trace.WithAttributes(attribute.String("turn.id", t.id)))
	defer span.End()

	o.turnsStarted.Add(spanCtx, 1)
	o.emit(events.NewTurnStarted(t.id))
	if !o.advance(t, StateCapturing) {
		return
	}
	o.drainTriggers()

	err := o.processTurn(spanCtx, t)
	var stageErr *StageError
	switch {
	case t.ctx.Err() != nil:
		o.turnsInterrupted.Add(context.WithoutCancel(spanCtx), 1)
		span.SetAttributes(attribute.Bool("turn.interrupted", true))
	case errors.Is(err, recording.ErrNoAudioCaptured):
		o.emit(events.NewTurnSkipped(t.id, "empty-capture"))
		o.advance(t, StateListening)
	case errors.Is(err, ErrEmptyTranscript):
		logger.Info("turn skipped, nothing was transcribed", "turn", t.id)
		o.emit(events.NewTurnSkipped(t.id, "empty-transcript"))
		o.advance(t, StateListening)
	case errors.As(err, &stageErr):
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("turn failed", "turn", t.id, "stage", stageErr.Stage, "error", stageErr.Err)
		o.turnsFailed.Add(spanCtx, 1, metric.WithAttributes(attribute.String("stage", stageErr.Stage)))
		o.emit(events.NewTurnFailed(t.id, stageErr.Stage, stageErr.Err.Error()))
		o.advance(t, StateListening)
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("turn failed", "turn", t.id, "error", err)
		o.turnsFailed.Add(spanCtx, 1)
		o.emit(events.NewTurnFailed(t.id, "", err.Error()))
		o.advance(t, StateListening)
	default:
		o.turnsCompleted.Add(spanCtx, 1)
		if o.advance(t, StateIdle) {
			o.emit(events.NewTurnCompleted(t.id))
		}
		o.advance(t, StateListening)
	}
}

func (o *Orchestrator) processTurn(ctx context.Context, t *turn) error {
	path, err := o.capture(ctx)
	if err != nil {
		return err
	}

	if !o.advance(t, StateTranscribing) {
		return t.ctx.Err()
	}
	transcript, err := o.transcribe(ctx, path)
	if err != nil {
		return err
	}

	if !o.advance(t, StateResponding) {
		return t.ctx.Err()
	}
	reply, err := o.respond(ctx, transcript)
	if err != nil {
		return err
	}

	if !o.advance(t, StateSpeaking) {
		return t.ctx.Err()
	}
	return o.speak(ctx, reply)
}

// capture records one utterance and stores it in the artifacts directory.
func (o *Orchestrator) capture(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "capture utterance")
	defer span.End()

	preRoll := o.relay.open()
	defer o.relay.close()
	o.listenVAD.Reset()

	session, err := o.recorder.Start(ctx, recording.StopPolicy{
		SilenceDuration: o.silence,
		MaxDuration:     o.maxRecording,
	}, preRoll)
	if err != nil {
		return "", &StageError{Stage: StageCapture, Err: err}
	}

	o.mu.Lock()
	o.session = session
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.session = nil
		o.mu.Unlock()
	}()

	o.emit(events.NewCaptureStarted(len(preRoll)))
	segment, err := session.Wait()
	o.relay.close()
	switch {
	case errors.Is(err, recording.ErrNoAudioCaptured):
		logger.Info("capture ended without audio")
		o.emit(events.NewCaptureEmpty())
		return "", err
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &StageError{Stage: StageCapture, Err: err}
	}

	path := filepath.Join(o.artifactsDir, fmt.Sprintf("utterance_%d_%s.wav", time.Now().Unix(), uuid.NewString()[:8]))
	if err := audio.WriteSegment(path, segment); err != nil {
		return "", &StageError{Stage: StageCapture, Err: err}
	}

	span.SetAttributes(
		attribute.String("capture.reason", string(segment.Reason)),
		attribute.Int("capture.chunks", len(segment.Chunks)),
	)
	logger.Info("utterance captured", "reason", segment.Reason, "duration", segment.Duration(), "path", path)
	o.emit(events.NewCaptureFinished(string(segment.Reason), segment.Duration(), path))
	return path, nil
}

func (o *Orchestrator) transcribe(ctx context.Context, path string) (string, error) {
	if !o.keepArtifacts {
		defer os.Remove(path)
	}
	if o.transcriber == nil {
		return "", &StageError{Stage: StageTranscribe, Err: errors.New("no transcriber configured")}
	}

	ctx, span := tracer.Start(ctx, "transcribe utterance")
	defer span.End()

	transcript, err := o.transcriber.Transcribe(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &StageError{Stage: StageTranscribe, Err: err}
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", ErrEmptyTranscript
	}

	logger.Info("user said", "transcript", transcript)
	o.emit(events.NewUserTranscriptFinal(transcript))
	return transcript, nil
}

// respond prompts the model and records the exchange. History and memory are
// updated before anything is spoken.
func (o *Orchestrator) respond(ctx context.Context, transcript string) (string, error) {
	if o.llm == nil {
		return "", &StageError{Stage: StageRespond, Err: errors.New("no language model configured")}
	}

	ctx, span := tracer.Start(ctx, "generate reply")
	defer span.End()

	o.emit(events.NewAssistantResponseStarted())
	prompt := llms.Prompt{
		System:   o.systemPrompt,
		Context:  o.relevantContext(ctx, transcript),
		History:  o.history.Turns(),
		UserText: transcript,
	}

	var reply string
	var err error
	tools := o.tools()
	if generator, ok := o.llm.(llms.ToolCallingGenerator); ok && len(tools) > 0 {
		reply, err = generator.GenerateWithTools(ctx, prompt, tools, o.executeTool)
	} else {
		reply, err = o.llm.Generate(ctx, prompt)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &StageError{Stage: StageRespond, Err: err}
	}
	reply = strings.TrimSpace(reply)

	o.history.Append(llms.NewTurn(llms.RoleUser, transcript), llms.NewTurn(llms.RoleAssistant, reply))
	o.remember(ctx, llms.RoleUser, transcript)
	o.remember(ctx, llms.RoleAssistant, reply)

	logger.Info("assistant replied", "reply", reply)
	o.emit(events.NewAssistantResponseFinal(reply))
	return reply, nil
}

func (o *Orchestrator) relevantContext(ctx context.Context, query string) string {
	if o.memory == nil {
		return ""
	}
	memoryContext, err := o.memory.RelevantContext(ctx, query)
	if err != nil {
		logger.Warn("failed to query memory", "error", err)
		return ""
	}
	return memoryContext
}

func (o *Orchestrator) remember(ctx context.Context, role llms.Role, text string) {
	if o.memory == nil {
		return
	}
	if err := o.memory.AddInteraction(ctx, string(role), text); err != nil {
		logger.Warn("failed to store interaction", "role", role, "error", err)
	}
}

// speak synthesizes the reply and plays it until it ends or the turn is
// cancelled. A muted assistant skips both.
func (o *Orchestrator) speak(ctx context.Context, reply string) error {
	if !o.speaking.Load() || o.synthesizer == nil {
		logger.Debug("reply not spoken", "muted", !o.speaking.Load())
		return nil
	}

	ctx, span := tracer.Start(ctx, "speak reply")
	defer span.End()

	path, err := o.synthesizer.Synthesize(ctx, reply, o.artifactsDir)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{Stage: StageSynthesize, Err: err}
	}
	o.emit(events.NewAssistantSpeechSynthesized(path))

	if o.player == nil {
		logger.Info("audio ready", "path", path)
		return nil
	}
	if !o.speaking.Load() {
		return nil
	}

	run, err := o.playback.start(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{Stage: StagePlayback, Err: err}
	}
	o.emit(events.NewAssistantPlaybackStarted(path))

	select {
	case <-run.handle.Done():
		o.playback.release(run)
		err := run.handle.Wait()
		o.emit(events.NewAssistantPlaybackEnded(run.Stopped()))
		if err != nil && !run.Stopped() && ctx.Err() == nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return &StageError{Stage: StagePlayback, Err: err}
		}
		return nil
	case <-ctx.Done():
		o.playback.stop()
		o.emit(events.NewAssistantPlaybackEnded(true))
		return ctx.Err()
	}
}
