// Package mcp talks to Model Context Protocol servers over newline-delimited
// JSON-RPC on stdio and routes tool calls to them by server name.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/levial/levial/internal/subprocess"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultInitTimeout    = 10 * time.Second
)

// Client is a connection to a single MCP server. Requests may be issued from
// multiple goroutines.
type Client struct {
	name    string
	reader  io.Reader
	writer  io.WriteCloser
	process *subprocess.Process

	requestTimeout time.Duration

	nextID  atomic.Int64
	pending sync.Map // int64 -> chan *message
	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

type ClientOption func(*Client)

func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.requestTimeout = timeout
		}
	}
}

// NewClient wraps an already-established transport. Responses are read from
// r until it returns an error; requests are written to w. Close closes w, and
// r too when it is an io.Closer.
func NewClient(name string, r io.Reader, w io.WriteCloser, opts ...ClientOption) *Client {
	c := &Client{
		name:           name,
		reader:         r,
		writer:         w,
		requestTimeout: DefaultRequestTimeout,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

// Start launches the server process and performs the initialize handshake.
// The process lives until ctx is done or Close is called.
func Start(ctx context.Context, config ServerConfig, opts ...ClientOption) (*Client, error) {
	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()

	env := make([]string, 0, len(config.Env))
	for key, value := range config.Env {
		env = append(env, key+"="+value)
	}

	process, err := subprocess.Start(ctx, subprocess.Command{
		Name:   "mcp " + config.Name,
		Path:   config.Command,
		Args:   config.Args,
		Env:    env,
		Stdin:  stdinReader,
		Stdout: stdoutWriter,
	})
	if err != nil {
		return nil, err
	}
	go func() {
		err := process.Wait()
		if err == nil {
			err = io.EOF
		}
		stdoutWriter.CloseWithError(err)
		stdinReader.Close()
	}()

	client := NewClient(config.Name, stdoutReader, stdinWriter, opts...)
	client.process = process

	initCtx, cancel := context.WithTimeout(ctx, DefaultInitTimeout)
	defer cancel()
	if _, err := client.Initialize(initCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize mcp server %s: %w", config.Name, err)
	}
	return client, nil
}

func (c *Client) Name() string { return c.name }

func (c *Client) Initialize(ctx context.Context) (*InitializeResult, error) {
	var result InitializeResult
	err := c.request(ctx, "initialize", initializeRequest{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      implementation{Name: "levial", Version: "0.1.0"},
	}, &result)
	if err != nil {
		return nil, err
	}

	if err := c.notify("notifications/initialized"); err != nil {
		logger.Warn("mcp initialized notification failed", "server", c.name, "error", err)
	}
	logger.Info("mcp server initialized", "server", c.name,
		"remote", result.ServerInfo.Name, "protocol", result.ProtocolVersion)
	return &result, nil
}

func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var result toolsListResult
	if err := c.request(ctx, "tools/list", nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool runs a tool and returns its text content joined by newlines.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	ctx, span := tracer.Start(ctx, "call tool")
	defer span.End()
	span.SetAttributes(attribute.String("mcp.server", c.name), attribute.String("mcp.tool", name))

	var result toolCallResult
	err := c.request(ctx, "tools/call", toolCallRequest{Name: name, Arguments: arguments}, &result)
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		remoteErr.Tool = name
	}
	if err == nil && result.IsError {
		err = &RemoteError{Server: c.name, Tool: name, Message: result.text()}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return result.text(), nil
}

func (r toolCallResult) text() string {
	var parts []string
	for _, item := range r.Content {
		if item.Type == "text" && item.Text != "" {
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Connected reports whether the transport is still open.
func (c *Client) Connected() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Close ends the transport and stops the server process if Start launched it.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.writer.Close()
		if c.process != nil {
			_ = c.process.Stop()
		}
		if closer, ok := c.reader.(io.Closer); ok {
			_ = closer.Close()
		}
	})
	<-c.done
	return err
}

func (c *Client) request(ctx context.Context, method string, params, result any) error {
	if !c.Connected() {
		return ErrNotConnected
	}

	id := c.nextID.Add(1)
	msg := message{JSONRPC: "2.0", ID: json.RawMessage(strconv.FormatInt(id, 10)), Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal %s params: %w", method, err)
		}
		msg.Params = data
	}

	responses := make(chan *message, 1)
	c.pending.Store(id, responses)
	defer c.pending.Delete(id)

	if err := c.write(&msg); err != nil {
		return err
	}

	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("mcp %s: %s timed out after %v", c.name, method, c.requestTimeout)
	case <-c.done:
		return ErrNotConnected
	case resp := <-responses:
		if resp.Error != nil {
			return &RemoteError{Server: c.name, Code: resp.Error.Code, Message: resp.Error.Message}
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("failed to unmarshal %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Client) notify(method string) error {
	return c.write(&message{JSONRPC: "2.0", Method: method})
}

func (c *Client) write(msg *message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.writer.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)

	scanner := bufio.NewScanner(c.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			logger.Warn("failed to unmarshal mcp message", "server", c.name, "error", err)
			continue
		}

		if msg.Method != "" {
			logger.Debug("mcp notification", "server", c.name, "method", msg.Method)
			continue
		}
		var id int64
		if err := json.Unmarshal(msg.ID, &id); err != nil {
			continue
		}
		if responses, ok := c.pending.Load(id); ok {
			select {
			case responses.(chan *message) <- &msg:
			default:
			}
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Debug("mcp transport closed", "server", c.name, "error", err)
	}
}
