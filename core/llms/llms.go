// Package llms defines the language model collaborator: prompt assembly,
// conversation turns and tool definitions shared by every backend.
package llms

import (
	"context"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one side of an exchange: a user utterance or an assistant reply.
type Turn struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

func NewTurn(role Role, text string) Turn {
	return Turn{Role: role, Text: text, Timestamp: time.Now()}
}

// Generator produces a reply for a prompt. Implementations must stop work and
// return promptly once ctx is done.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// ToolCallingGenerator is a Generator that can let the model call tools
// before it answers. execute runs each call and its result is fed back to the
// model.
type ToolCallingGenerator interface {
	Generator
	GenerateWithTools(ctx context.Context, prompt Prompt, tools []Tool, execute ToolExecutor) (string, error)
}
