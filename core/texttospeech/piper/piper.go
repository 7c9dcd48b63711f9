// Package piper synthesizes speech with the piper CLI.
package piper

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/levial/levial/core/texttospeech"
	"github.com/levial/levial/internal/subprocess"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultBinary = "piper"

type Client struct {
	binary     string
	binaryArgs []string
	model      string
}

type ClientOption func(*Client)

// WithBinary runs the given executable instead of piper from PATH. args are
// placed before the piper flags.
func WithBinary(path string, args ...string) ClientOption {
	return func(c *Client) {
		c.binary = path
		c.binaryArgs = args
	}
}

func NewClient(model string, opts ...ClientOption) *Client {
	c := &Client{binary: DefaultBinary, model: model}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Synthesize runs `piper --model m --output_file f` with text on stdin.
func (c *Client) Synthesize(ctx context.Context, text string, outDir string) (string, error) {
	ctx, span := tracer.Start(ctx, "synthesize")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model), attribute.Int("text.length", len(text)))

	path, err := texttospeech.NewResponsePath(outDir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	args := append(append([]string{}, c.binaryArgs...), "--model", c.model, "--output_file", path)
	if _, err := subprocess.Run(ctx, subprocess.Command{
		Name:  "piper",
		Path:  c.binary,
		Args:  args,
		Stdin: strings.NewReader(text),
	}); err != nil {
		_ = os.Remove(path)
		return "", err
	}

	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		err = fmt.Errorf("piper produced no audio at %s", path)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	logger.Debug("synthesized response", "path", path)
	return path, nil
}
