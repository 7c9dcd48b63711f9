package detection

import (
	"sync"
	"time"

	"github.com/levial/levial/core/audio"
	"github.com/levial/levial/internal/utils"
)

const (
	DefaultVADThreshold    = 0.5
	DefaultSilenceDuration = 2 * time.Second
	DefaultRMSFloor        = 0.01
)

// VADResult is the outcome of feeding one chunk.
type VADResult struct {
	Score  float64
	Voiced bool
	// SpeechStarted is set on the chunk that turned silence into speech.
	SpeechStarted bool
	// SilenceEnded is set once per speech episode, on the first chunk after
	// the silence window elapsed.
	SilenceEnded bool
}

// VoiceActivityDetector classifies chunks as speech or silence with
// hysteresis: a short dip below the threshold does not end speech, and the
// silence timer only runs after speech was observed.
type VoiceActivityDetector struct {
	scorer    Scorer
	threshold float64
	silence   time.Duration
	minSpeech time.Duration

	isSpeaking  bool
	lastVoiced  time.Duration
	voicedSince time.Duration
	inOnset     bool

	mu sync.Mutex
}

type VADOption func(*VoiceActivityDetector)

func WithVADThreshold(threshold float64) VADOption {
	return func(d *VoiceActivityDetector) { d.threshold = threshold }
}

func WithSilenceDuration(silence time.Duration) VADOption {
	return func(d *VoiceActivityDetector) { d.silence = silence }
}

// WithMinSpeech debounces speech onset: voiced audio must last at least d
// before SpeechStarted is reported.
func WithMinSpeech(d time.Duration) VADOption {
	return func(v *VoiceActivityDetector) { v.minSpeech = d }
}

func NewVoiceActivityDetector(scorer Scorer, opts ...VADOption) *VoiceActivityDetector {
	if scorer == nil {
		scorer = RMSScorer{}
	}
	d := &VoiceActivityDetector{
		scorer:    scorer,
		threshold: DefaultVADThreshold,
		silence:   DefaultSilenceDuration,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *VoiceActivityDetector) Feed(chunk audio.Chunk) (VADResult, error) {
	score, err := d.scorer.Score(chunk)
	if err != nil {
		return VADResult{}, err
	}
	score = utils.Clamp(score, 0, 1)
	now := chunk.End()

	d.mu.Lock()
	defer d.mu.Unlock()
	result := VADResult{Score: score, Voiced: score > d.threshold}

	if result.Voiced {
		if !d.inOnset {
			d.inOnset = true
			d.voicedSince = now - chunk.Duration()
		}
		d.lastVoiced = now
		if !d.isSpeaking && now-d.voicedSince >= d.minSpeech {
			d.isSpeaking = true
			result.SpeechStarted = true
		}
		return result, nil
	}

	d.inOnset = false
	if d.isSpeaking && now-d.lastVoiced > d.silence {
		d.isSpeaking = false
		result.SilenceEnded = true
	}
	return result, nil
}

// Event converts a result that started speech into a detection event.
func (d *VoiceActivityDetector) Event(chunk audio.Chunk, result VADResult) *Event {
	if !result.SpeechStarted {
		return nil
	}
	return &Event{Kind: KindVoiceActivity, Confidence: result.Score, Seq: chunk.Seq}
}

func (d *VoiceActivityDetector) IsSpeaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isSpeaking
}

func (d *VoiceActivityDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.isSpeaking = false
	d.inOnset = false
	d.lastVoiced = 0
	d.voicedSince = 0
}

// RMSScorer maps chunk energy to a score so that an RMS equal to Floor lands
// exactly on 0.5 and twice the floor saturates at 1.
type RMSScorer struct {
	Floor float64
}

func (s RMSScorer) Score(chunk audio.Chunk) (float64, error) {
	floor := s.Floor
	if floor <= 0 {
		floor = DefaultRMSFloor
	}
	return utils.Clamp(chunk.RMS()/(2*floor), 0, 1), nil
}
