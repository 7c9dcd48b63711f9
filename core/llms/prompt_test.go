package llms

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPromptStringMatchesTranscriptFormat(t *testing.T) {
	prompt := Prompt{
		History: []Turn{
			{Role: RoleUser, Text: "what's the weather"},
			{Role: RoleAssistant, Text: "sunny"},
		},
		UserText: "and tomorrow?",
	}

	expected := DefaultSystemPrompt + "\n" +
		"USER: what's the weather\n" +
		"ASSISTANT: sunny\n" +
		"USER: and tomorrow?\n" +
		"ASSISTANT:"
	if got := prompt.String(); got != expected {
		t.Fatalf("unexpected prompt:\n%s", got)
	}
}

func TestPromptPlacesContextAfterSystem(t *testing.T) {
	prompt := Prompt{System: "Be brief.", Context: "User Profile: {}\n", UserText: "hi"}

	if got := prompt.Instructions(); got != "Be brief.\nUser Profile: {}" {
		t.Fatalf("unexpected instructions %q", got)
	}
	if !strings.HasPrefix(prompt.String(), "Be brief.\nUser Profile: {}\nUSER: hi") {
		t.Fatalf("unexpected prompt %q", prompt.String())
	}
}

func TestQualifiedNameRoundTrip(t *testing.T) {
	tool := Tool{Server: "weather", Name: "get_forecast"}
	server, name := SplitQualifiedName(tool.QualifiedName())
	if server != "weather" || name != "get_forecast" {
		t.Fatalf("expected weather/get_forecast, got %s/%s", server, name)
	}

	server, name = SplitQualifiedName("recording_control")
	if server != "" || name != "recording_control" {
		t.Fatalf("expected local tool, got %s/%s", server, name)
	}
}

func TestNewToolReflectsArgumentSchema(t *testing.T) {
	type arguments struct {
		Action string `json:"action" jsonschema:"enum=start,enum=stop"`
	}

	tool := NewTool[arguments]("recording_control", "Start or stop recording")

	var schema struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
		t.Fatalf("expected valid schema, got %v", err)
	}
	if schema.Type != "object" {
		t.Fatalf("expected object schema, got %q", schema.Type)
	}
	if _, ok := schema.Properties["action"]; !ok {
		t.Fatalf("expected action property in %s", tool.Parameters)
	}
}
