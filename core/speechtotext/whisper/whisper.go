// Package whisper transcribes audio files with the whisper.cpp CLI.
package whisper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/levial/levial/internal/subprocess"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultBinary = "whisper-cli"

type Client struct {
	binary     string
	binaryArgs []string
	model      string
	baseDir    string
}

type ClientOption func(*Client)

// WithBinary runs the given executable. args are placed before the
// transcription arguments.
func WithBinary(path string, args ...string) ClientOption {
	return func(c *Client) {
		c.binary = path
		c.binaryArgs = args
	}
}

// WithBaseDir sets the working directory. Shared libraries from a local
// whisper.cpp build under it are added to the loader path.
func WithBaseDir(dir string) ClientOption {
	return func(c *Client) { c.baseDir = dir }
}

func NewClient(model string, opts ...ClientOption) *Client {
	c := &Client{binary: DefaultBinary, model: model}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe runs `whisper-cli -m <model> -f <path> -otxt` and returns the
// contents of the <path>.txt file it writes.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe")
	defer span.End()
	span.SetAttributes(attribute.String("audio.path", path))

	command := subprocess.Command{
		Name: "whisper",
		Path: c.binary,
		Args: append(append([]string{}, c.binaryArgs...), "-m", c.model, "-f", path, "-otxt"),
		Dir:  c.baseDir,
	}
	if env := c.libraryPathEnv(); env != "" {
		command.Env = []string{env}
	}

	if _, err := subprocess.Run(ctx, command); err != nil {
		return "", err
	}

	txtPath := path + ".txt"
	data, err := os.ReadFile(txtPath)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript %s: %w", txtPath, err)
	}

	transcript := strings.TrimSpace(string(data))
	logger.Debug("whisper transcribed", "path", path, "length", len(transcript))
	return transcript, nil
}

func libraryPathVariable() string {
	if runtime.GOOS == "darwin" {
		return "DYLD_LIBRARY_PATH"
	}
	return "LD_LIBRARY_PATH"
}

// libraryPathEnv returns VAR=paths for the whisper.cpp build directories
// that exist under the base directory, followed by the current value.
func (c *Client) libraryPathEnv() string {
	if c.baseDir == "" {
		return ""
	}

	build := filepath.Join(c.baseDir, "whisper.cpp", "build")
	var paths []string
	for _, dir := range []string{
		filepath.Join(build, "src"),
		filepath.Join(build, "ggml", "src"),
		filepath.Join(build, "ggml", "src", "ggml-blas"),
		filepath.Join(build, "ggml", "src", "ggml-metal"),
	} {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			paths = append(paths, dir)
		}
	}
	if len(paths) == 0 {
		return ""
	}

	variable := libraryPathVariable()
	if existing := os.Getenv(variable); existing != "" {
		paths = append(paths, existing)
	}
	return variable + "=" + strings.Join(paths, string(os.PathListSeparator))
}
