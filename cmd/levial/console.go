package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	orchestration "github.com/levial/levial/core"
	"github.com/levial/levial/core/events"
	"github.com/levial/levial/internal/tui"
)

const consoleUsage = "enter: talk/stop  c: interrupt  l: listening on/off  m: mute on/off  q: quit"

// console drives the orchestrator from stdin lines for terminals where the
// full-screen UI is unwanted.
type console struct {
	controller tui.Controller
	logger     *zap.Logger
	out        io.Writer

	mu sync.Mutex
}

func newConsole(logger *zap.Logger, out io.Writer) *console {
	return &console{logger: logger, out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// handleEvent is the orchestrator event handler in console mode.
func (c *console) handleEvent(event events.Event) {
	switch e := event.(type) {
	case events.StateChanged:
		c.logger.Debug("state changed", zap.String("from", e.From), zap.String("to", e.To))
	case events.CaptureStarted:
		c.printf("(listening... press enter to stop)\n")
	case events.UserTranscriptFinal:
		c.printf("you: %s\n", e.Transcript)
	case events.AssistantResponseFinal:
		c.printf("levial: %s\n", e.Text)
	case events.WakeWordDetected:
		c.logger.Info("wake word detected", zap.String("model", e.Label), zap.Float64("confidence", e.Confidence))
	case events.TurnSkipped:
		c.logger.Info("turn skipped", zap.String("reason", e.Reason))
	case events.TurnCancelled:
		c.printf("(interrupted)\n")
	case events.TurnFailed:
		c.logger.Error("turn failed", zap.String("stage", e.Stage), zap.String("error", e.Error))
	case events.ToolCallStarted:
		c.logger.Info("tool call", zap.String("server", e.Server), zap.String("tool", e.Name))
	case events.ToolCallFailed:
		c.logger.Warn("tool call failed", zap.String("tool", e.Name), zap.String("error", e.Error))
	case events.DeviceFailed:
		c.logger.Error("audio device failed", zap.String("error", e.Error))
	case events.DeviceRecovered:
		c.logger.Info("audio device recovered")
	}
}

// execute runs one console command and reports whether the user asked to
// quit.
func (c *console) execute(command string) bool {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "":
		if c.controller.State() == orchestration.StateCapturing {
			c.controller.StopCapture()
		} else if !c.controller.StartCapture() {
			c.printf("(already recording)\n")
		}
	case "c":
		if !c.controller.Interrupt() {
			c.printf("(nothing to interrupt)\n")
		}
	case "l":
		c.controller.SetListening(!c.controller.IsListening())
		c.printf("(listening %s)\n", onOff(c.controller.IsListening()))
	case "m":
		c.controller.SetSpeaking(!c.controller.IsSpeaking())
		c.printf("(speech %s)\n", onOff(c.controller.IsSpeaking()))
	case "q", "quit", "exit":
		return true
	default:
		c.printf("%s\n", consoleUsage)
	}
	return false
}

// run reads commands until quit, end of input or cancellation.
func (c *console) run(ctx context.Context, in io.Reader) {
	c.printf("%s\n", consoleUsage)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || c.execute(line) {
				return
			}
		}
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
