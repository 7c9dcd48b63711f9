// Package subprocess runs the external engines (ASR, LLM, TTS, players) as
// scoped child processes.
//
// Every process is bound to a context. When the context is cancelled the
// process first receives an interrupt signal and is killed if it has not
// exited after its grace period, so cancellation never waits on a slow
// engine to finish on its own.
package subprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultGracePeriod = 300 * time.Millisecond

// Command describes a single invocation of an external program.
type Command struct {
	// Name identifies the collaborator in errors and spans, e.g. "whisper".
	Name string
	Path string
	Args []string
	Dir  string
	// Env is appended to the current process environment.
	Env   []string
	Stdin io.Reader
	// Stdout receives the output of a started process. Run always captures
	// stdout itself.
	Stdout io.Writer

	// GracePeriod is the time between the interrupt signal and the forced
	// kill. Zero means DefaultGracePeriod.
	GracePeriod time.Duration
}

type Result struct {
	Stdout []byte
	Stderr []byte
}

// ProcessError reports a process that could not start or exited unsuccessfully.
type ProcessError struct {
	Name     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed", e.Name)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " with exit code %d", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		fmt.Fprintf(&b, " (stderr: %s)", stderr)
	}
	return b.String()
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Run executes the command and blocks until it exits or ctx is done. A
// cancelled run returns an error wrapping ctx.Err().
func Run(ctx context.Context, command Command) (*Result, error) {
	ctx, span := tracer.Start(ctx, "run "+command.Name)
	defer span.End()
	span.SetAttributes(
		attribute.String("process.name", command.Name),
		attribute.String("process.path", command.Path),
	)

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := command.build(ctx)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	result := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%s interrupted: %w", command.Name, ctxErr)
		span.RecordError(err)
		return result, err
	}

	err = command.processError(err, stderr.String())
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return result, err
}

// Process is a running, non-blocking command. It is owned by whoever started
// it; Stop and Wait are safe to call from multiple goroutines.
type Process struct {
	command Command
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	stderr  *bytes.Buffer

	done    chan struct{}
	err     error
	stopped bool
	mu      sync.Mutex
}

// Start launches the command without waiting for it. The process is
// terminated when ctx is done or Stop is called.
func Start(ctx context.Context, command Command) (*Process, error) {
	ctx, cancel := context.WithCancel(ctx)

	stderr := &bytes.Buffer{}
	cmd := command.build(ctx)
	cmd.Stdout = command.Stdout
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, command.processError(err, "")
	}

	p := &Process{
		command: command,
		cmd:     cmd,
		cancel:  cancel,
		stderr:  stderr,
		done:    make(chan struct{}),
	}
	go p.wait(ctx)
	return p, nil
}

func (p *Process) wait(ctx context.Context) {
	defer close(p.done)
	defer p.cancel()

	err := p.cmd.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case err == nil:
	case p.stopped:
		// Requested termination is not a failure.
	case ctx.Err() != nil:
		p.err = fmt.Errorf("%s interrupted: %w", p.command.Name, ctx.Err())
	default:
		p.err = p.command.processError(err, p.stderr.String())
	}
}

// Stop terminates the process (interrupt, then kill after the grace period)
// and returns once it has exited.
func (p *Process) Stop() error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	<-p.done
	return nil
}

// Wait blocks until the process exits on its own or is stopped.
func (p *Process) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Process) Done() <-chan struct{} { return p.done }

func (c Command) build(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != nil {
		cmd.Stdin = c.Stdin
	}

	grace := c.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = grace
	return cmd
}

func (c Command) processError(err error, stderr string) *ProcessError {
	processErr := &ProcessError{Name: c.Name, ExitCode: -1, Stderr: stderr, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		processErr.ExitCode = exitErr.ExitCode()
	}
	return processErr
}
