package detection

import (
	"testing"
	"time"

	"github.com/levial/levial/core/audio"
)

type scriptedScorer struct {
	scores []float64
}

func (s scriptedScorer) Score(chunk audio.Chunk) (float64, error) {
	if int(chunk.Seq) >= len(s.scores) {
		return 0, nil
	}
	return s.scores[chunk.Seq], nil
}

func testChunk(seq uint64) audio.Chunk {
	// 1280 frames at 16kHz, 80ms per chunk.
	return audio.Chunk{Seq: seq, Samples: make([]float32, 1280), SampleRate: 16000, Channels: 1}
}

func pattern(parts ...any) []float64 {
	var scores []float64
	for i := 0; i < len(parts); i += 2 {
		for range parts[i].(int) {
			scores = append(scores, parts[i+1].(float64))
		}
	}
	return scores
}

func TestVADSilenceEndFiresOncePerEpisode(t *testing.T) {
	scores := pattern(10, 0.9, 40, 0.1, 5, 0.9, 40, 0.1)
	vad := NewVoiceActivityDetector(scriptedScorer{scores: scores}, WithSilenceDuration(2*time.Second))

	var silenceEnds, speechStarts []uint64
	for seq := range uint64(len(scores)) {
		result, err := vad.Feed(testChunk(seq))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.SilenceEnded {
			silenceEnds = append(silenceEnds, seq)
		}
		if result.SpeechStarted {
			speechStarts = append(speechStarts, seq)
		}
	}

	if len(speechStarts) != 2 || speechStarts[0] != 0 || speechStarts[1] != 50 {
		t.Fatalf("expected speech to start at chunks 0 and 50, got %v", speechStarts)
	}
	// Last voiced chunk 9 ends at 800ms; 26 silent chunks later is 2.88s,
	// the first point more than 2s past it.
	if len(silenceEnds) != 2 || silenceEnds[0] != 35 || silenceEnds[1] != 80 {
		t.Fatalf("expected silence ends at chunks 35 and 80, got %v", silenceEnds)
	}
}

func TestVADShortDipDoesNotEndSpeech(t *testing.T) {
	scores := pattern(5, 0.9, 10, 0.1, 5, 0.9)
	vad := NewVoiceActivityDetector(scriptedScorer{scores: scores}, WithSilenceDuration(2*time.Second))

	for seq := range uint64(len(scores)) {
		result, _ := vad.Feed(testChunk(seq))
		if result.SilenceEnded {
			t.Fatalf("expected no silence end for an 800ms dip, fired at chunk %d", seq)
		}
	}
	if !vad.IsSpeaking() {
		t.Fatalf("expected detector to still be in speech")
	}
}

func TestVADSilenceNeverFiresBeforeSpeech(t *testing.T) {
	vad := NewVoiceActivityDetector(scriptedScorer{}, WithSilenceDuration(100*time.Millisecond))

	for seq := range uint64(100) {
		result, _ := vad.Feed(testChunk(seq))
		if result.SilenceEnded || result.SpeechStarted {
			t.Fatalf("expected no edges on pure silence, got %+v at chunk %d", result, seq)
		}
	}
}

func TestVADMinSpeechDebouncesOnset(t *testing.T) {
	scores := pattern(1, 0.9, 3, 0.1, 4, 0.9)
	vad := NewVoiceActivityDetector(scriptedScorer{scores: scores}, WithMinSpeech(240*time.Millisecond))

	var started []uint64
	for seq := range uint64(len(scores)) {
		result, _ := vad.Feed(testChunk(seq))
		if result.SpeechStarted {
			started = append(started, seq)
		}
	}

	if len(started) != 1 || started[0] != 6 {
		t.Fatalf("expected a single onset at chunk 6, got %v", started)
	}
}

func TestRMSScorerMapsFloorToHalf(t *testing.T) {
	samples := make([]float32, 100)
	for i := range samples {
		samples[i] = 0.01
	}

	score, err := RMSScorer{}.Score(audio.Chunk{Samples: samples})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score < 0.499 || score > 0.501 {
		t.Fatalf("expected score 0.5 at the RMS floor, got %v", score)
	}

	loud, _ := RMSScorer{}.Score(audio.Chunk{Samples: []float32{0.5, -0.5}})
	if loud != 1 {
		t.Fatalf("expected loud audio to saturate at 1, got %v", loud)
	}
}
