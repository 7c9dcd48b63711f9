// Package texttospeech defines the speech synthesis collaborator.
package texttospeech

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Synthesizer renders reply text to an audio file inside outDir and returns
// its path.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, outDir string) (string, error)
}

// NewResponsePath returns a fresh response_<unix>_<id>.wav path in outDir,
// creating the directory if needed.
func NewResponsePath(outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	name := fmt.Sprintf("response_%d_%s.wav", time.Now().Unix(), uuid.NewString())
	return filepath.Join(outDir, name), nil
}
