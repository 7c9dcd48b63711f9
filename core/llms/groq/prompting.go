package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/levial/levial/core/llms"
	"github.com/levial/levial/internal/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	url = "https://api.groq.com/openai/v1/chat/completions"

	DefaultModel         = "llama-3.3-70b-versatile"
	DefaultMaxToolRounds = 5
)

var ErrTooManyToolRounds = errors.New("model kept calling tools")

// Client talks to an OpenAI compatible chat completions endpoint, Groq by
// default.
type Client struct {
	apiKey        string
	model         string
	url           string
	maxToolRounds int
	httpClient    *http.Client

	toolCalls metric.Int64Counter
}

type ClientOption func(*Client)

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithURL points the client at another OpenAI compatible endpoint.
func WithURL(url string) ClientOption {
	return func(c *Client) { c.url = url }
}

func WithMaxToolRounds(rounds int) ClientOption {
	return func(c *Client) { c.maxToolRounds = rounds }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:        apiKey,
		model:         DefaultModel,
		url:           url,
		maxToolRounds: DefaultMaxToolRounds,
		httpClient:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}

	var err error
	if c.toolCalls, err = meter.Int64Counter("levial.llm.tool_calls",
		metric.WithDescription("Tool calls requested by the model")); err != nil {
		logger.Warn("failed to create tool call counter", "error", err)
	}
	return c
}

func (c *Client) Generate(ctx context.Context, prompt llms.Prompt) (string, error) {
	return c.GenerateWithTools(ctx, prompt, nil, nil)
}

// GenerateWithTools prompts the model and runs the tool calls it asks for
// until it answers with plain text. Failed tool calls are reported back to
// the model as text rather than aborting the reply.
func (c *Client) GenerateWithTools(ctx context.Context, prompt llms.Prompt, tools []llms.Tool, execute llms.ToolExecutor) (string, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.model", c.model),
		attribute.Int("request.tools", len(tools)),
	)

	messages := toMessages(prompt)
	var toolChoice *string
	var requestTools []Tool
	if len(tools) > 0 && execute != nil {
		toolChoice = utils.Ptr("auto")
		requestTools = toTools(tools)
	}

	for round := 0; ; round++ {
		if round > c.maxToolRounds {
			span.RecordError(ErrTooManyToolRounds)
			span.SetStatus(codes.Error, ErrTooManyToolRounds.Error())
			return "", ErrTooManyToolRounds
		}

		choice, err := c.complete(ctx, requestBody{
			Model:      c.model,
			Messages:   messages,
			Tools:      requestTools,
			ToolChoice: toolChoice,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}

		if len(choice.ToolCalls) == 0 {
			return choice.Content, nil
		}

		messages = append(messages, choice)
		for _, call := range choice.ToolCalls {
			if c.toolCalls != nil {
				c.toolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", call.Function.Name)))
			}
			response, err := execute(ctx, llms.ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
			if err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				logger.Warn("tool call failed", "tool", call.Function.Name, "error", err)
				response = "Error: " + err.Error()
			}
			messages = append(messages, message{
				Role:       messageRoleTool,
				Content:    response,
				ToolCallID: call.ID,
			})
		}
	}
}

func (c *Client) complete(ctx context.Context, body requestBody) (message, error) {
	requestBodyBytes, err := json.Marshal(body)
	if err != nil {
		return message{}, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return message{}, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return message{}, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return message{}, &StatusError{StatusCode: resp.StatusCode, Body: string(errorBody)}
	}

	var responseBody responseBody
	if err := json.NewDecoder(resp.Body).Decode(&responseBody); err != nil {
		return message{}, fmt.Errorf("error decoding response: %w", err)
	}
	if len(responseBody.Choices) == 0 {
		return message{}, errors.New("response has no choices")
	}
	return responseBody.Choices[0].Message, nil
}

// StatusError is a non-OK response from the API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-OK HTTP status %d: %s", e.StatusCode, e.Body)
}

type requestBody struct {
	Model      string    `json:"model"`
	Messages   []message `json:"messages"`
	ToolChoice *string   `json:"tool_choice,omitempty"`
	Tools      []Tool    `json:"tools,omitempty"`
}

type responseBody struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}
