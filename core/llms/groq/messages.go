package groq

import (
	"encoding/json"

	"github.com/jinzhu/copier"
	"github.com/levial/levial/core/llms"
)

type message struct {
	Role       messageRole `json:"role"`
	Content    string      `json:"content"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCall  `json:"tool_calls,omitempty"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
	messageRoleTool      messageRole = "tool"
)

type toolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function toolCallFunction `json:"function"`
}

type toolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

func toMessages(prompt llms.Prompt) []message {
	messages := []message{{
		Role:    messageRoleSystem,
		Content: prompt.Instructions(),
	}}
	for _, turn := range prompt.History {
		role := messageRoleUser
		if turn.Role == llms.RoleAssistant {
			role = messageRoleAssistant
		}
		messages = append(messages, message{Role: role, Content: turn.Text})
	}
	return append(messages, message{Role: messageRoleUser, Content: prompt.UserText})
}

func toTools(tools []llms.Tool) []Tool {
	converted := make([]Tool, len(tools))
	for i, tool := range tools {
		converted[i].Type = "function"
		_ = copier.Copy(&converted[i].Function, tool)
		converted[i].Function.Name = tool.QualifiedName()
	}
	return converted
}
