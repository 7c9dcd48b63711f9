// Package process scores chunks with an external helper process, typically a
// small Python script wrapping openWakeWord and Silero VAD.
//
// The helper reads one request per chunk from stdin: a little-endian uint32
// sample count followed by that many little-endian int16 samples. It answers
// each request with one JSON line:
//
//	{"scores": {"hey_jarvis": 0.93}, "vad": 0.71}
package process

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/levial/levial/core/audio"
	"github.com/levial/levial/core/detection"
	"github.com/levial/levial/internal/subprocess"
)

const (
	// DefaultTimeout bounds one request. A helper that misses it is stopped.
	DefaultTimeout = time.Second

	// DefaultCacheSize covers the default pre-roll with room to spare.
	DefaultCacheSize = 128
)

var (
	ErrClosed  = errors.New("detector process closed")
	ErrTimeout = errors.New("detector process did not answer in time")
)

type response struct {
	Scores map[string]float64 `json:"scores"`
	VAD    float64            `json:"vad"`
}

type cacheEntry struct {
	seq    uint64
	sample *float32
	resp   response
}

// Client owns the helper process. Each chunk is sent once: the wake word
// models and the VAD scorer share the answer, and chunks scored while
// listening are not sent again when they come back as pre-roll.
type Client struct {
	process *subprocess.Process
	stdin   *io.PipeWriter
	stdout  *io.PipeReader
	lines   chan []byte
	models  []string
	timeout time.Duration

	done     chan struct{}
	failOnce sync.Once
	err      error

	// mu serializes requests and guards the cache. Close never takes it.
	mu        sync.Mutex
	cache     []cacheEntry
	cacheNext int
	requests  int
}

type Option func(*Client)

// WithTimeout sets how long one request may take.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

// WithCacheSize sets how many recent chunk scores are remembered.
func WithCacheSize(size int) Option {
	return func(c *Client) { c.cache = make([]cacheEntry, 0, max(size, 1)) }
}

// Start launches the helper. models names the wake word scores the helper is
// expected to report.
func Start(ctx context.Context, command subprocess.Command, models []string, opts ...Option) (*Client, error) {
	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()
	command.Stdin = stdinReader
	command.Stdout = stdoutWriter
	if command.Name == "" {
		command.Name = "detector"
	}

	process, err := subprocess.Start(ctx, command)
	if err != nil {
		return nil, err
	}

	c := &Client{
		process: process,
		stdin:   stdinWriter,
		stdout:  stdoutReader,
		lines:   make(chan []byte),
		models:  models,
		timeout: DefaultTimeout,
		done:    make(chan struct{}),
		cache:   make([]cacheEntry, 0, DefaultCacheSize),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readResponses(bufio.NewReader(stdoutReader))
	go func() {
		err := process.Wait()
		if err == nil {
			err = ErrClosed
		}
		_ = stdoutWriter.CloseWithError(err)
		_ = stdinReader.CloseWithError(err)
		c.fail(err)
	}()
	return c, nil
}

func (c *Client) readResponses(stdout *bufio.Reader) {
	for {
		line, err := stdout.ReadBytes('\n')
		if err != nil {
			c.fail(fmt.Errorf("failed to read detector scores: %w", err))
			return
		}
		select {
		case c.lines <- line:
		case <-c.done:
			return
		}
	}
}

// fail records the first error, unblocks every pending request and stops
// the helper in the background.
func (c *Client) fail(err error) {
	c.failOnce.Do(func() {
		c.err = err
		close(c.done)
		_ = c.stdin.CloseWithError(err)
		_ = c.stdout.CloseWithError(err)
		go func() { _ = c.process.Stop() }()
	})
}

func (c *Client) score(chunk audio.Chunk) (response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return response{}, c.err
	default:
	}
	if resp, ok := c.cached(chunk); ok {
		return resp, nil
	}

	request := make([]byte, 4, 4+len(chunk.Samples)*2)
	binary.LittleEndian.PutUint32(request, uint32(len(chunk.Samples)))
	request = append(request, audio.EncodeLinear16(chunk.Samples)...)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	written := make(chan error, 1)
	go func() {
		_, err := c.stdin.Write(request)
		written <- err
	}()
	select {
	case err := <-written:
		if err != nil {
			return response{}, fmt.Errorf("failed to send chunk to detector: %w", err)
		}
	case <-timer.C:
		c.fail(ErrTimeout)
		return response{}, ErrTimeout
	case <-c.done:
		return response{}, c.err
	}
	c.requests++

	var line []byte
	select {
	case line = <-c.lines:
	case <-timer.C:
		c.fail(ErrTimeout)
		return response{}, ErrTimeout
	case <-c.done:
		return response{}, c.err
	}

	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return response{}, fmt.Errorf("invalid detector response %q: %w", line, err)
	}
	c.remember(chunk, resp)
	return resp, nil
}

// cached matches on the sample buffer as well as the sequence number, since
// sequence numbers restart when the device is reopened.
func (c *Client) cached(chunk audio.Chunk) (response, bool) {
	if len(chunk.Samples) == 0 {
		return response{}, false
	}
	for i := range c.cache {
		entry := &c.cache[i]
		if entry.seq == chunk.Seq && entry.sample == &chunk.Samples[0] {
			return entry.resp, true
		}
	}
	return response{}, false
}

func (c *Client) remember(chunk audio.Chunk, resp response) {
	if len(chunk.Samples) == 0 {
		return
	}
	entry := cacheEntry{seq: chunk.Seq, sample: &chunk.Samples[0], resp: resp}
	if len(c.cache) < cap(c.cache) {
		c.cache = append(c.cache, entry)
		return
	}
	c.cache[c.cacheNext] = entry
	c.cacheNext = (c.cacheNext + 1) % len(c.cache)
}

// Requests returns how many chunks were sent to the helper.
func (c *Client) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

// Models returns one keyword model per configured wake word.
func (c *Client) Models() []detection.KeywordModel {
	models := make([]detection.KeywordModel, len(c.models))
	for i, name := range c.models {
		models[i] = keywordModel{client: c, name: name}
	}
	return models
}

// VAD returns a scorer backed by the helper's voice activity output.
func (c *Client) VAD() detection.Scorer {
	return vadScorer{client: c}
}

// Close stops the helper. Requests waiting on it fail with ErrClosed.
func (c *Client) Close() error {
	c.fail(ErrClosed)
	return c.process.Stop()
}

type keywordModel struct {
	client *Client
	name   string
}

func (m keywordModel) Name() string { return m.name }

func (m keywordModel) Predict(chunk audio.Chunk) (float64, error) {
	resp, err := m.client.score(chunk)
	if err != nil {
		return 0, err
	}
	return resp.Scores[m.name], nil
}

type vadScorer struct {
	client *Client
}

func (s vadScorer) Score(chunk audio.Chunk) (float64, error) {
	resp, err := s.client.score(chunk)
	if err != nil {
		return 0, err
	}
	return resp.VAD, nil
}
