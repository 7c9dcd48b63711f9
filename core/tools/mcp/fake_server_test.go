package mcp

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"testing"
)

// serveFake answers MCP requests read from r until it returns an error. It
// exposes an "echo" tool, a "fail" tool that reports isError, a "boom" tool
// that returns a JSON-RPC error and a "hang" tool that never answers.
func serveFake(r io.Reader, w io.Writer) {
	encoder := json.NewEncoder(w)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		var msg message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil || len(msg.ID) == 0 {
			continue
		}

		reply := message{JSONRPC: "2.0", ID: msg.ID}
		switch msg.Method {
		case "initialize":
			reply.Result, _ = json.Marshal(InitializeResult{
				ProtocolVersion: ProtocolVersion,
				ServerInfo:      implementation{Name: "fake", Version: "1"},
			})
		case "tools/list":
			reply.Result, _ = json.Marshal(toolsListResult{Tools: []Tool{
				{Name: "echo", Description: "Echo the arguments", InputSchema: json.RawMessage(`{"type":"object"}`)},
				{Name: "boom", InputSchema: json.RawMessage(`{"type":"object"}`)},
			}})
		case "tools/call":
			var call toolCallRequest
			_ = json.Unmarshal(msg.Params, &call)
			switch call.Name {
			case "echo":
				reply.Result, _ = json.Marshal(toolCallResult{Content: []content{
					{Type: "text", Text: "echo"},
					{Type: "text", Text: string(call.Arguments)},
				}})
			case "fail":
				reply.Result, _ = json.Marshal(toolCallResult{
					Content: []content{{Type: "text", Text: "calendar unavailable"}},
					IsError: true,
				})
			case "hang":
				continue
			default:
				reply.Error = &rpcError{Code: -32602, Message: "unknown tool " + call.Name}
			}
		default:
			reply.Error = &rpcError{Code: -32601, Message: "method not found"}
		}
		if err := encoder.Encode(reply); err != nil {
			return
		}
	}
}

// TestHelperProcess runs serveFake over stdio for the Start tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("LEVIAL_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)
	serveFake(os.Stdin, os.Stdout)
}

func helperServerConfig(name string) ServerConfig {
	return ServerConfig{
		Name:    name,
		Command: os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess", "--"},
		Env:     map[string]string{"LEVIAL_HELPER_PROCESS": "1"},
	}
}
