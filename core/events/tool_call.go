package events

import "time"

const (
	// KindToolCallStarted identifies tool call execution start.
	KindToolCallStarted Kind = "tool_call.started"
	// KindToolCallCompleted identifies successful tool call completion.
	KindToolCallCompleted Kind = "tool_call.completed"
	// KindToolCallFailed identifies tool call failure.
	KindToolCallFailed Kind = "tool_call.failed"
)

// ToolCallStarted marks start of tool execution.
type ToolCallStarted struct {
	Base
	ID        string
	Server    string
	Name      string
	Arguments string
}

// NewToolCallStarted creates a tool call started event. Server is empty for
// tools handled by the orchestrator itself.
func NewToolCallStarted(id, server, name, arguments string) ToolCallStarted {
	return ToolCallStarted{Base: NewBase(KindToolCallStarted), ID: id, Server: server, Name: name, Arguments: arguments}
}

// ToolCallCompleted marks successful tool execution. Duration is measured
// from the start event.
type ToolCallCompleted struct {
	Base
	ID       string
	Name     string
	Response string
	Duration time.Duration
}

// NewToolCallCompleted creates a tool call completed event.
func NewToolCallCompleted(id, name, response string, duration time.Duration) ToolCallCompleted {
	return ToolCallCompleted{Base: NewBase(KindToolCallCompleted), ID: id, Name: name, Response: response, Duration: duration}
}

// ToolCallFailed marks failed tool execution.
type ToolCallFailed struct {
	Base
	ID       string
	Name     string
	Error    string
	Duration time.Duration
}

// NewToolCallFailed creates a tool call failed event.
func NewToolCallFailed(id, name, err string, duration time.Duration) ToolCallFailed {
	return ToolCallFailed{Base: NewBase(KindToolCallFailed), ID: id, Name: name, Error: err, Duration: duration}
}
