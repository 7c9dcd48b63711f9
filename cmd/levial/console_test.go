package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	orchestration "github.com/levial/levial/core"
	"github.com/levial/levial/core/events"
)

type stubController struct {
	mu         sync.Mutex
	state      orchestration.State
	starts     int
	stops      int
	interrupts int
	listening  bool
	speaking   bool
}

func (c *stubController) State() orchestration.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *stubController) StartCapture() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	return true
}

func (c *stubController) StopCapture() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return true
}

func (c *stubController) Interrupt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interrupts++
	return false
}

func (c *stubController) SetListening(listening bool) { c.listening = listening }
func (c *stubController) IsListening() bool           { return c.listening }
func (c *stubController) SetSpeaking(speaking bool)   { c.speaking = speaking }
func (c *stubController) IsSpeaking() bool            { return c.speaking }

func TestConsoleCommands(t *testing.T) {
	var out bytes.Buffer
	controller := &stubController{state: orchestration.StateListening, listening: true, speaking: true}
	c := newConsole(zap.NewNop(), &out)
	c.controller = controller

	if c.execute("") {
		t.Fatalf("enter should not quit")
	}
	controller.state = orchestration.StateCapturing
	c.execute("")
	if controller.starts != 1 || controller.stops != 1 {
		t.Fatalf("expected one start and one stop, got %d and %d", controller.starts, controller.stops)
	}

	c.execute("c")
	c.execute("m")
	c.execute("L")
	if controller.interrupts != 1 || controller.speaking || controller.listening {
		t.Fatalf("unexpected controller %+v", controller)
	}
	if !strings.Contains(out.String(), "nothing to interrupt") {
		t.Fatalf("expected interrupt notice, got %q", out.String())
	}
	if !c.execute(" q ") {
		t.Fatalf("q should quit")
	}
}

func TestConsolePrintsConversation(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(zap.NewNop(), &out)

	c.handleEvent(events.NewUserTranscriptFinal("turn on the lights"))
	c.handleEvent(events.NewAssistantResponseFinal("done"))

	want := "you: turn on the lights\nlevial: done\n"
	if out.String() != want {
		t.Fatalf("got %q, want %q", out.String(), want)
	}
}

func TestConsoleRunStopsAtQuit(t *testing.T) {
	var out bytes.Buffer
	controller := &stubController{state: orchestration.StateListening}
	c := newConsole(zap.NewNop(), &out)
	c.controller = controller

	done := make(chan struct{})
	go func() {
		c.run(context.Background(), strings.NewReader("\nq\n\n"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("console did not stop")
	}
	controller.mu.Lock()
	defer controller.mu.Unlock()
	if controller.starts != 1 {
		t.Fatalf("expected exactly one start before quit, got %d", controller.starts)
	}
}
