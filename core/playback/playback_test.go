package playback

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestHelperProcess stands in for an external audio player.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("LEVIAL_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)
	time.Sleep(10 * time.Second)
}

func TestProcessPlayerStopEndsPlayback(t *testing.T) {
	t.Setenv("LEVIAL_HELPER_PROCESS", "1")
	player := NewProcessPlayer(
		WithProgram(os.Args[0], "-test.run=TestHelperProcess", "--"),
		WithGracePeriod(50*time.Millisecond),
	)

	handle, err := player.Play(context.Background(), "reply.wav")
	if err != nil {
		t.Fatalf("expected play to succeed, got %v", err)
	}

	select {
	case <-handle.Done():
		t.Fatalf("expected playback to still be running")
	default:
	}

	start := time.Now()
	if err := handle.Stop(); err != nil {
		t.Fatalf("expected stop to succeed, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("expected stop to return quickly, took %v", elapsed)
	}

	select {
	case <-handle.Done():
	default:
		t.Fatalf("expected handle to be done after stop")
	}
}

func TestProcessPlayerCancelledContextEndsPlayback(t *testing.T) {
	t.Setenv("LEVIAL_HELPER_PROCESS", "1")
	player := NewProcessPlayer(WithProgram(os.Args[0], "-test.run=TestHelperProcess", "--"))

	ctx, cancel := context.WithCancel(context.Background())
	handle, err := player.Play(ctx, "reply.wav")
	if err != nil {
		t.Fatalf("expected play to succeed, got %v", err)
	}
	cancel()

	select {
	case <-handle.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for playback to end after cancel")
	}
}

func TestProcessPlayerWithoutPlayerReturnsFinishedHandle(t *testing.T) {
	player := NewProcessPlayer(WithCandidates(Candidate{Name: "levial-no-such-player"}))
	if player.Available() {
		t.Fatalf("expected no player to be available")
	}

	handle, err := player.Play(context.Background(), "reply.wav")
	if err != nil {
		t.Fatalf("expected play without player to succeed, got %v", err)
	}
	if err := handle.Wait(); err != nil {
		t.Fatalf("expected finished handle to report no error, got %v", err)
	}
}
