// Package deepgram synthesizes speech through Deepgram's streaming speak API.
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

	"github.com/gorilla/websocket"
	"github.com/levial/levial/core/audio"
	"github.com/levial/levial/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	speakURL = "wss://api.deepgram.com/v1/speak"

	DefaultVoice      = "aura-2-thalia-en"
	DefaultSampleRate = 24000
)

const (
	messageSpeak   = "Speak"
	messageFlush   = "Flush"
	messageClose   = "Close"
	messageFlushed = "Flushed"
	messageWarning = "Warning"
)

var ErrStreamClosed = errors.New("speak stream closed before all audio was received")

// TextToSpeechClient opens one speak websocket per reply, collects the raw
// linear16 audio until the server confirms the flush and stores it as WAV.
type TextToSpeechClient struct {
	apiKey     string
	voice      string
	sampleRate int
	url        string
	dialer     *websocket.Dialer
}

type ClientOption func(*TextToSpeechClient)

func WithVoice(voice string) ClientOption {
	return func(c *TextToSpeechClient) { c.voice = voice }
}

func WithSampleRate(sampleRate int) ClientOption {
	return func(c *TextToSpeechClient) {
		if sampleRate > 0 {
			c.sampleRate = sampleRate
		}
	}
}

func WithURL(url string) ClientOption {
	return func(c *TextToSpeechClient) { c.url = url }
}

func NewTextToSpeechClient(apiKey string, opts ...ClientOption) *TextToSpeechClient {
	c := &TextToSpeechClient{
		apiKey:     apiKey,
		voice:      DefaultVoice,
		sampleRate: DefaultSampleRate,
		url:        speakURL,
		dialer:     websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TextToSpeechClient) Synthesize(ctx context.Context, text string, outDir string) (string, error) {
	ctx, span := tracer.Start(ctx, "synthesize")
	defer span.End()
	span.SetAttributes(attribute.String("request.voice", c.voice), attribute.Int("text.length", len(text)))

	path, err := c.synthesize(ctx, text, outDir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return path, nil
}

func (c *TextToSpeechClient) synthesize(ctx context.Context, text string, outDir string) (string, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for _, msg := range []any{
		struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{Type: messageSpeak, Text: text},
		struct {
			Type string `json:"type"`
		}{Type: messageFlush},
	} {
		if err := conn.WriteJSON(msg); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("failed to send text to deepgram: %w", err)
		}
	}

	pcm, err := readAudio(conn)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	_ = conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: messageClose})

	path, err := texttospeech.NewResponsePath(outDir)
	if err != nil {
		return "", err
	}
	info := audio.EncodingInfo{SampleRate: c.sampleRate, Channels: 1, Format: audio.EncodingLinear16}
	if err := audio.WriteWAVFile(path, audio.DecodeLinear16(pcm), info); err != nil {
		return "", err
	}
	logger.Debug("synthesized response", "path", path, "bytes", len(pcm))
	return path, nil
}

func (c *TextToSpeechClient) connect(ctx context.Context) (*websocket.Conn, error) {
	speakUrl, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid speak url: %w", err)
	}
	urlValues := speakUrl.Query()
	urlValues.Set("encoding", audio.EncodingLinear16.Name())
	urlValues.Set("sample_rate", strconv.Itoa(c.sampleRate))
	urlValues.Set("model", c.voice)
	urlValues.Set("container", "none")
	speakUrl.RawQuery = urlValues.Encode()

	conn, _, err := c.dialer.DialContext(ctx, speakUrl.String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

// readAudio collects binary frames until the server reports the flush.
func readAudio(conn *websocket.Conn) ([]byte, error) {
	var pcm []byte
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, net.ErrClosed) {
				return nil, ErrStreamClosed
			}
			return nil, fmt.Errorf("failed to read deepgram websocket message: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			pcm = append(pcm, msg...)
		case websocket.TextMessage:
			var parsedMsg struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.Warn("failed to unmarshal deepgram message", "error", err)
				continue
			}
			switch parsedMsg.Type {
			case messageFlushed:
				return pcm, nil
			case messageWarning:
				logger.Warn("deepgram warning", "description", parsedMsg.Description)
			}
		}
	}
}
