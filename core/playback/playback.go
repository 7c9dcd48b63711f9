// Package playback plays synthesized replies and hands back a handle that
// can stop playback at any time.
package playback

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/levial/levial/internal/subprocess"
)

// Player starts non-blocking playback of an audio file.
type Player interface {
	Play(ctx context.Context, path string) (Handle, error)
}

// Handle controls a single playback. Stop terminates playback and returns once
// it has ended; Wait blocks until playback completes naturally or is stopped.
type Handle interface {
	Stop() error
	Wait() error
	Done() <-chan struct{}
}

var ErrNoPlayer = errors.New("no audio player found")

// Candidate is an external player program and the arguments placed before the
// file path.
type Candidate struct {
	Name string
	Args []string
}

// DefaultCandidates returns the players tried in order on the current OS.
func DefaultCandidates() []Candidate {
	candidates := []Candidate{
		{Name: "afplay"},
		{Name: "ffplay", Args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}},
	}
	if runtime.GOOS == "linux" {
		candidates = append(candidates, Candidate{Name: "aplay", Args: []string{"-q"}})
	}
	return candidates
}

// ProcessPlayer plays files through the first external player found on PATH.
type ProcessPlayer struct {
	path        string
	candidate   Candidate
	gracePeriod time.Duration
}

type ProcessPlayerOption func(*ProcessPlayer)

func WithCandidates(candidates ...Candidate) ProcessPlayerOption {
	return func(p *ProcessPlayer) {
		p.path, p.candidate = discover(candidates)
	}
}

// WithProgram uses the given executable path directly, skipping discovery.
func WithProgram(path string, args ...string) ProcessPlayerOption {
	return func(p *ProcessPlayer) {
		p.path = path
		p.candidate = Candidate{Name: path, Args: args}
	}
}

func WithGracePeriod(d time.Duration) ProcessPlayerOption {
	return func(p *ProcessPlayer) { p.gracePeriod = d }
}

func NewProcessPlayer(opts ...ProcessPlayerOption) *ProcessPlayer {
	p := &ProcessPlayer{gracePeriod: subprocess.DefaultGracePeriod}
	p.path, p.candidate = discover(DefaultCandidates())
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func discover(candidates []Candidate) (string, Candidate) {
	for _, candidate := range candidates {
		if path, err := exec.LookPath(candidate.Name); err == nil {
			return path, candidate
		}
	}
	return "", Candidate{}
}

// Available reports whether an external player was found.
func (p *ProcessPlayer) Available() bool { return p.path != "" }

// Play starts the player process. Without a player the file is only
// announced and an already finished handle is returned.
func (p *ProcessPlayer) Play(ctx context.Context, path string) (Handle, error) {
	if !p.Available() {
		logger.Info("no audio player found, audio ready", "path", path)
		return Finished(), nil
	}

	process, err := subprocess.Start(ctx, subprocess.Command{
		Name:        p.candidate.Name,
		Path:        p.path,
		Args:        append(append([]string{}, p.candidate.Args...), path),
		GracePeriod: p.gracePeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start playback: %w", err)
	}
	return process, nil
}

type finishedHandle struct{ done chan struct{} }

// Finished returns a handle for playback that has already ended.
func Finished() Handle {
	done := make(chan struct{})
	close(done)
	return finishedHandle{done: done}
}

func (h finishedHandle) Stop() error           { return nil }
func (h finishedHandle) Wait() error           { return nil }
func (h finishedHandle) Done() <-chan struct{} { return h.done }
