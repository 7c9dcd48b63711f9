// Package ollama queries a local model through the ollama CLI.
package ollama

import (
	"context"
	"strings"

	"github.com/levial/levial/core/llms"
	"github.com/levial/levial/internal/subprocess"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultBinary = "ollama"

type Client struct {
	binary     string
	binaryArgs []string
	model      string
}

type ClientOption func(*Client)

// WithBinary runs the given executable instead of ollama from PATH. args are
// placed before "run", e.g. to go through a wrapper script.
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

// Generate runs `ollama run <model>` with the rendered prompt on stdin. The
// process is killed when ctx is done.
func (c *Client) Generate(ctx context.Context, prompt llms.Prompt) (string, error) {
	ctx, span := tracer.Start(ctx, "generate")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model))

	result, err := subprocess.Run(ctx, subprocess.Command{
		Name:  "ollama",
		Path:  c.binary,
		Args:  append(append([]string{}, c.binaryArgs...), "run", c.model),
		Stdin: strings.NewReader(prompt.String()),
	})
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(string(result.Stdout))
	logger.Debug("ollama replied", "model", c.model, "length", len(reply))
	return reply, nil
}
