package detection

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/levial/levial/core/audio"
	"github.com/levial/levial/internal/utils"
)

const (
	DefaultWakeThreshold = 0.5
	DefaultRefractory    = 500 * time.Millisecond
)

type WakeWordDetector struct {
	models     []KeywordModel
	threshold  float64
	refractory time.Duration

	// suppressedUntil holds, per model, the audio time at which its
	// refractory window ends.
	suppressedUntil map[string]time.Duration
	mu              sync.Mutex
}

type WakeWordOption func(*WakeWordDetector)

func WithWakeThreshold(threshold float64) WakeWordOption {
	return func(d *WakeWordDetector) { d.threshold = threshold }
}

func WithRefractory(refractory time.Duration) WakeWordOption {
	return func(d *WakeWordDetector) { d.refractory = refractory }
}

func NewWakeWordDetector(models []KeywordModel, opts ...WakeWordOption) *WakeWordDetector {
	d := &WakeWordDetector{
		models:          models,
		threshold:       DefaultWakeThreshold,
		refractory:      DefaultRefractory,
		suppressedUntil: make(map[string]time.Duration, len(models)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed scores the chunk with every model and returns a detection for the
// highest scoring model above the threshold, or nil. A model that fired
// stays silent until its refractory window has passed, however confident it
// is. Models that fail are skipped; their errors are joined and returned
// alongside any detection.
func (d *WakeWordDetector) Feed(chunk audio.Chunk) (*Event, error) {
	now := chunk.End()

	d.mu.Lock()
	defer d.mu.Unlock()

	var best *Event
	var bestModel KeywordModel
	var errs []error
	for _, model := range d.models {
		score, err := model.Predict(chunk)
		if err != nil {
			errs = append(errs, fmt.Errorf("wake word model %s: %w", model.Name(), err))
			continue
		}
		if score <= d.threshold {
			continue
		}
		if until, ok := d.suppressedUntil[model.Name()]; ok && now < until {
			continue
		}
		if best == nil || score > best.Confidence {
			best = &Event{
				Kind:       KindWakeWord,
				Label:      model.Name(),
				Confidence: utils.Clamp(score, 0, 1),
				Seq:        chunk.Seq,
			}
			bestModel = model
		}
	}

	if best != nil {
		d.suppressedUntil[bestModel.Name()] = now + d.refractory
		if resetter, ok := bestModel.(Resetter); ok {
			resetter.Reset()
		}
	}
	return best, errors.Join(errs...)
}

// Reset clears refractory windows and the state of models that support it.
func (d *WakeWordDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.suppressedUntil)
	for _, model := range d.models {
		if resetter, ok := model.(Resetter); ok {
			resetter.Reset()
		}
	}
}

func (d *WakeWordDetector) Models() []string {
	names := make([]string, len(d.models))
	for i, model := range d.models {
		names[i] = model.Name()
	}
	return names
}
