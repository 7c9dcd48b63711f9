// Package deepgram transcribes captured utterances with Deepgram's streaming
// listen API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/levial/levial/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	listenURL = "wss://api.deepgram.com/v1/listen"

	DefaultModel    = "nova-3"
	DefaultLanguage = "en-US"
	// frameDuration is how much audio goes into a single websocket message.
	frameDuration = 100 * time.Millisecond
)

// TranscriptionClient streams a recorded WAV file over a fresh websocket per
// utterance and collects the final results.
type TranscriptionClient struct {
	apiKey   string
	model    string
	language string
	url      string
	dialer   *websocket.Dialer
}

type ClientOption func(*TranscriptionClient)

func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) { c.model = model }
}

func WithLanguage(language string) ClientOption {
	return func(c *TranscriptionClient) { c.language = language }
}

// WithURL overrides the listen endpoint, e.g. for a self-hosted deployment.
func WithURL(url string) ClientOption {
	return func(c *TranscriptionClient) { c.url = url }
}

func NewTranscriptionClient(apiKey string, opts ...ClientOption) *TranscriptionClient {
	c := &TranscriptionClient{
		apiKey:   apiKey,
		model:    DefaultModel,
		language: DefaultLanguage,
		url:      listenURL,
		dialer:   websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TranscriptionClient) Transcribe(ctx context.Context, path string) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe")
	defer span.End()
	span.SetAttributes(attribute.String("audio.path", path), attribute.String("request.model", c.model))

	transcript, err := c.transcribe(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return transcript, nil
}

func (c *TranscriptionClient) transcribe(ctx context.Context, path string) (string, error) {
	samples, info, err := audio.ReadWAVFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	conn, err := c.connect(ctx, info)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	// Closing the connection unblocks both the writer and the reader.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	results := make(chan readResult, 1)
	go func() {
		transcript, err := readTranscript(conn)
		results <- readResult{transcript: transcript, err: err}
	}()

	if err := sendAudio(conn, samples, info); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}

	result := <-results
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return result.transcript, result.err
}

func (c *TranscriptionClient) connect(ctx context.Context, info audio.EncodingInfo) (*websocket.Conn, error) {
	listenUrl, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid listen url: %w", err)
	}
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", audio.EncodingLinear16.Name())
	queryParams.Set("sample_rate", strconv.Itoa(info.SampleRate))
	queryParams.Set("channels", strconv.Itoa(max(info.Channels, 1)))
	queryParams.Set("model", c.model)
	queryParams.Set("language", c.language)
	queryParams.Set("smart_format", "true")
	listenUrl.RawQuery = queryParams.Encode()

	conn, _, err := c.dialer.DialContext(ctx, listenUrl.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

func sendAudio(conn *websocket.Conn, samples []float32, info audio.EncodingInfo) error {
	frameSamples := max(info.SampleRate*max(info.Channels, 1)*int(frameDuration/time.Millisecond)/1000, 1)
	for start := 0; start < len(samples); start += frameSamples {
		end := min(start+frameSamples, len(samples))
		if err := conn.WriteMessage(websocket.BinaryMessage, audio.EncodeLinear16(samples[start:end])); err != nil {
			return fmt.Errorf("failed to write to deepgram client: %w", err)
		}
	}

	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}
	return nil
}

type readResult struct {
	transcript string
	err        error
}

// readTranscript collects final results until the server closes the stream.
func readTranscript(conn *websocket.Conn) (string, error) {
	var transcript []string
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, net.ErrClosed) {
				return strings.Join(transcript, " "), nil
			}
			return "", fmt.Errorf("failed to read deepgram websocket message: %w", err)
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		var parsedMsg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &parsedMsg); err != nil {
			logger.Warn("failed to unmarshal deepgram message", "error", err)
			continue
		}
		if api.TypeResponse(parsedMsg.Type) != api.TypeMessageResponse {
			continue
		}

		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram message", "error", err)
			continue
		}
		if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
			continue
		}
		if segment := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript); segment != "" {
			transcript = append(transcript, segment)
		}
	}
}
