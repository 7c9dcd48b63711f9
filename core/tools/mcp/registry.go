package mcp

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/levial/levial/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Connector establishes a client for a configured server.
type Connector func(ctx context.Context, config ServerConfig) (*Client, error)

// Registry owns the connections to every configured server and routes tool
// calls by server name.
type Registry struct {
	connect Connector

	mu      sync.RWMutex
	servers map[string]ServerConfig
	clients map[string]*Client
	tools   map[string][]Tool
	closed  bool

	calls metric.Int64Counter
}

type RegistryOption func(*Registry)

// WithConnector replaces the stdio launcher, e.g. with an in-memory transport.
func WithConnector(connect Connector) RegistryOption {
	return func(r *Registry) { r.connect = connect }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		connect: func(ctx context.Context, config ServerConfig) (*Client, error) { return Start(ctx, config) },
		servers: make(map[string]ServerConfig),
		clients: make(map[string]*Client),
		tools:   make(map[string][]Tool),
	}
	for _, opt := range opts {
		opt(r)
	}

	var err error
	if r.calls, err = meter.Int64Counter("levial.mcp.calls",
		metric.WithDescription("Tool calls routed to MCP servers."),
	); err != nil {
		logger.Warn("failed to create mcp call counter", "error", err)
	}
	return r
}

func (r *Registry) Register(config ServerConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New("registry is closed")
	}
	if config.Name == "" {
		return errors.New("server name cannot be empty")
	}
	if _, exists := r.servers[config.Name]; exists {
		return fmt.Errorf("server %s already registered", config.Name)
	}
	r.servers[config.Name] = config
	return nil
}

// ConnectAll connects every registered server that is not connected yet and
// caches its tool list. Servers that fail stay disconnected; their errors are
// joined into the result.
func (r *Registry) ConnectAll(ctx context.Context) error {
	r.mu.RLock()
	var pending []ServerConfig
	for name, config := range r.servers {
		if client, ok := r.clients[name]; !ok || !client.Connected() {
			pending = append(pending, config)
		}
	}
	r.mu.RUnlock()

	var errs []error
	for _, config := range pending {
		if err := r.connectServer(ctx, config); err != nil {
			logger.Warn("failed to connect mcp server", "server", config.Name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) connectServer(ctx context.Context, config ServerConfig) error {
	client, err := r.connect(ctx, config)
	if err != nil {
		return fmt.Errorf("mcp server %s: %w", config.Name, err)
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("mcp server %s: failed to list tools: %w", config.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		_ = client.Close()
		return errors.New("registry is closed")
	}
	if previous, ok := r.clients[config.Name]; ok {
		_ = previous.Close()
	}
	r.clients[config.Name] = client
	r.tools[config.Name] = tools
	logger.Info("mcp server connected", "server", config.Name, "tools", len(tools))
	return nil
}

// Connected lists the servers with a live connection, sorted by name.
func (r *Registry) Connected() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name, client := range r.clients {
		if client.Connected() {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Tools returns the cached tools of all connected servers as LLM tool
// definitions, ordered by server and tool name.
func (r *Registry) Tools() []llms.Tool {
	var tools []llms.Tool
	for _, server := range r.Connected() {
		r.mu.RLock()
		serverTools := r.tools[server]
		r.mu.RUnlock()

		for _, tool := range serverTools {
			tools = append(tools, llms.Tool{
				Server:      server,
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			})
		}
	}
	slices.SortStableFunc(tools, func(a, b llms.Tool) int {
		return cmp.Or(cmp.Compare(a.Server, b.Server), cmp.Compare(a.Name, b.Name))
	})
	return tools
}

// Call invokes tool on the named server. An unknown or disconnected server
// yields ErrNotConnected; failures reported by the server are *RemoteError.
func (r *Registry) Call(ctx context.Context, server, tool string, args json.RawMessage) (string, error) {
	r.mu.RLock()
	client, ok := r.clients[server]
	closed := r.closed
	r.mu.RUnlock()

	if closed || !ok || !client.Connected() {
		r.countCall(ctx, server, tool, "not_connected")
		return "", fmt.Errorf("%w: %s", ErrNotConnected, server)
	}

	result, err := client.CallTool(ctx, tool, args)
	if err != nil {
		r.countCall(ctx, server, tool, "error")
		return "", err
	}
	r.countCall(ctx, server, tool, "ok")
	return result, nil
}

func (r *Registry) countCall(ctx context.Context, server, tool, outcome string) {
	if r.calls == nil {
		return
	}
	r.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mcp.server", server),
		attribute.String("mcp.tool", tool),
		attribute.String("outcome", outcome),
	))
}

func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.tools = make(map[string][]Tool)
	r.mu.Unlock()

	var errs []error
	for name, client := range clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close mcp server %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
