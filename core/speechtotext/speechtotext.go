// Package speechtotext defines the transcription collaborator.
package speechtotext

import "context"

// Transcriber turns a captured WAV file into text. An empty transcript with a
// nil error means nothing intelligible was said.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}
