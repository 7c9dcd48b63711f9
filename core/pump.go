package orchestration

import (
	"context"
	"errors"
	"fmt"

	"github.com/levial/levial/core/audio"
	"github.com/levial/levial/core/detection"
	"github.com/levial/levial/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// pump is the only reader of the audio source. Each chunk goes either to the
// open capture or to the pre-roll buffer and the detectors.
func (o *Orchestrator) pump(ctx context.Context, source AudioSource) error {
	defer func() {
		if err := source.Close(); err != nil {
			logger.Debug("failed to close audio source", "error", err)
		}
	}()

	for {
		chunk, err := source.NextChunk(ctx, o.pollInterval)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, audio.ErrNoChunk):
			continue
		case err != nil:
			reopened, reopenErr := o.reopen(ctx, source, err)
			if reopenErr != nil {
				return reopenErr
			}
			source = reopened
			continue
		}

		if o.relay.route(ctx, chunk) {
			continue
		}
		o.detect(ctx, chunk)
	}
}

// reopen replaces a failed source. A capture that was reading from the failed
// source ends with the device error.
func (o *Orchestrator) reopen(ctx context.Context, failed AudioSource, cause error) (AudioSource, error) {
	logger.Warn("audio device failed, reopening", "error", cause)
	o.emit(events.NewDeviceFailed(cause.Error()))
	o.relay.fail(cause)
	if err := failed.Close(); err != nil {
		logger.Debug("failed to close audio source", "error", err)
	}

	// Sequence numbers restart with the new source.
	o.relay.clearPreRoll()
	o.listenVAD.Reset()
	if o.wakeDetector != nil {
		o.wakeDetector.Reset()
	}

	delay := o.reopenInitial
	var lastErr error
	for attempt := 1; attempt <= max(o.reopenAttempts, 1); attempt++ {
		if err := sleepContext(ctx, delay); err != nil {
			return nil, err
		}

		source, err := o.openSource(ctx)
		if err == nil {
			logger.Info("audio device reopened", "attempt", attempt)
			o.emit(events.NewDeviceRecovered())
			return source, nil
		}
		lastErr = err
		logger.Warn("failed to reopen audio device", "attempt", attempt, "error", err)
		delay = min(delay*2, max(o.reopenMax, o.reopenInitial))
	}
	return nil, fmt.Errorf("failed to reopen audio source: %w", lastErr)
}

func (o *Orchestrator) detect(ctx context.Context, chunk audio.Chunk) {
	if !o.listening.Load() {
		return
	}

	state := o.State()
	switch o.listenMode {
	case ListenModeWakeWord:
		// Barge-in: the wake word stays armed while the assistant is busy.
		if o.wakeDetector == nil || state == StateIdle || state == StateCapturing {
			return
		}
		event, err := o.wakeDetector.Feed(chunk)
		if err != nil {
			logger.Warn("wake word scoring failed", "error", err)
		}
		if event == nil {
			return
		}
		o.detections.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(event.Kind))))
		logger.Info("wake word detected", "label", event.Label, "confidence", event.Confidence)
		o.emit(events.NewWakeWordDetected(event.Label, event.Confidence, event.Seq))
		if state != StateListening {
			o.Interrupt()
		}
		o.trigger()

	case ListenModeVoiceActivity:
		if state != StateListening {
			return
		}
		result, err := o.listenVAD.Feed(chunk)
		if err != nil {
			logger.Warn("voice activity scoring failed", "error", err)
			return
		}
		event := o.listenVAD.Event(chunk, result)
		if event == nil {
			return
		}
		o.detections.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(detection.KindVoiceActivity))))
		o.emit(events.NewUserSpeechStarted(event.Confidence, event.Seq))
		o.trigger()
	}
}
