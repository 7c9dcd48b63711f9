package orchestration

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/levial/levial/core/playback"
)

// playbackRun is one playback started by the supervisor.
type playbackRun struct {
	handle  playback.Handle
	stopped atomic.Bool
}

// Stopped reports whether the run was stopped rather than finishing on its own.
func (r *playbackRun) Stopped() bool { return r.stopped.Load() }

// playbackSupervisor owns the single playback handle. Start and stop are
// serialized, and starting a new playback stops the previous one before the
// new one is launched.
type playbackSupervisor struct {
	player playback.Player

	mu      sync.Mutex
	current *playbackRun
}

func newPlaybackSupervisor(player playback.Player) *playbackSupervisor {
	return &playbackSupervisor{player: player}
}

func (s *playbackSupervisor) start(ctx context.Context, path string) (*playbackRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	handle, err := s.player.Play(ctx, path)
	if err != nil {
		return nil, err
	}
	s.current = &playbackRun{handle: handle}
	return s.current, nil
}

// stop terminates the current playback and returns once it has ended.
func (s *playbackSupervisor) stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *playbackSupervisor) stopLocked() bool {
	if s.current == nil {
		return false
	}
	run := s.current
	s.current = nil
	run.stopped.Store(true)
	if err := run.handle.Stop(); err != nil {
		logger.Debug("playback stopped with error", "error", err)
	}
	return true
}

// release forgets run once it has finished on its own.
func (s *playbackSupervisor) release(run *playbackRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == run {
		s.current = nil
	}
}

func (s *playbackSupervisor) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}
