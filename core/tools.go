package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/levial/levial/core/events"
	"github.com/levial/levial/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	recordingControlTool = "recording_control"
	speakingControlTool  = "speaking_control"

	toolSuccess = "Success. Respond with a very short phrase"
)

// ToolCaller runs a tool on a named tool server.
type ToolCaller interface {
	Call(ctx context.Context, server, tool string, arguments json.RawMessage) (string, error)
}

// ToolLister is implemented by tool callers that can describe their tools to
// the model.
type ToolLister interface {
	Tools() []llms.Tool
}

type recordingControlArguments struct {
	IsRecording bool `json:"is_recording" jsonschema:"description=Whether to record or not"`
}

type speakingControlArguments struct {
	IsSpeaking bool `json:"is_speaking" jsonschema:"description=Whether to speak or not"`
}

func orchestrationTools() []llms.Tool {
	return []llms.Tool{
		llms.NewTool[recordingControlArguments](recordingControlTool,
			"Turn on or off sound recording, might be referred to as 'listening'"),
		llms.NewTool[speakingControlArguments](speakingControlTool,
			"Turn off agent's speaking ability. Might be referred to as 'muting'"),
	}
}

// tools returns every tool offered to the model for the next reply.
func (o *Orchestrator) tools() []llms.Tool {
	var tools []llms.Tool
	if o.orchestrationTools {
		tools = append(tools, orchestrationTools()...)
	}
	if lister, ok := o.toolCaller.(ToolLister); ok {
		tools = append(tools, lister.Tools()...)
	}
	return tools
}

// executeTool is the llms.ToolExecutor handed to tool calling models.
func (o *Orchestrator) executeTool(ctx context.Context, call llms.ToolCall) (string, error) {
	server, name := llms.SplitQualifiedName(call.Name)

	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name), attribute.String("tool.server", server))

	o.emit(events.NewToolCallStarted(call.ID, server, name, call.Arguments))
	started := time.Now()
	response, err := o.callTool(ctx, server, name, call.Arguments)
	if err != nil {
		err = fmt.Errorf("failed to execute tool %q: %w", call.Name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.emit(events.NewToolCallFailed(call.ID, name, err.Error(), time.Since(started)))
		return "", err
	}

	o.emit(events.NewToolCallCompleted(call.ID, name, response, time.Since(started)))
	return response, nil
}

func (o *Orchestrator) callTool(ctx context.Context, server, name, arguments string) (string, error) {
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}

	if server == "" {
		return o.callOrchestrationTool(name, arguments)
	}
	if o.toolCaller == nil {
		return "", fmt.Errorf("no tool server %q", server)
	}
	return o.toolCaller.Call(ctx, server, name, json.RawMessage(arguments))
}

func (o *Orchestrator) callOrchestrationTool(name, arguments string) (string, error) {
	if !o.orchestrationTools {
		return "", fmt.Errorf("tool not found: %s", name)
	}

	switch name {
	case recordingControlTool:
		var parameters recordingControlArguments
		if err := json.Unmarshal([]byte(arguments), &parameters); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		o.SetListening(parameters.IsRecording)
	case speakingControlTool:
		var parameters speakingControlArguments
		if err := json.Unmarshal([]byte(arguments), &parameters); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		o.SetSpeaking(parameters.IsSpeaking)
	default:
		return "", fmt.Errorf("tool not found: %s", name)
	}
	return toolSuccess, nil
}
