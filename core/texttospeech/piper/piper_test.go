package piper

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/levial/levial/internal/subprocess"
)

// TestHelperProcess stands in for the piper binary. It writes the text it
// receives to the output file.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("LEVIAL_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	// args: -- --model <m> --output_file <f>
	if len(args) != 5 || args[1] != "--model" || args[3] != "--output_file" {
		os.Exit(2)
	}

	text, _ := io.ReadAll(os.Stdin)
	switch args[2] {
	case "broken":
		os.Stderr.WriteString("unable to load voice")
		os.Exit(1)
	case "silent":
		return
	}
	if err := os.WriteFile(args[4], []byte(args[2]+":"+string(text)), 0o644); err != nil {
		os.Exit(3)
	}
}

func helperClient(t *testing.T, model string) *Client {
	t.Setenv("LEVIAL_HELPER_PROCESS", "1")
	return NewClient(model, WithBinary(os.Args[0], "-test.run=TestHelperProcess", "--"))
}

func TestSynthesizeWritesResponseFile(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "artifacts")
	client := helperClient(t, "en_US-amy")

	path, err := client.Synthesize(context.Background(), "hello there", outDir)
	if err != nil {
		t.Fatalf("expected synthesis to succeed, got %v", err)
	}
	if filepath.Dir(path) != outDir || !strings.HasPrefix(filepath.Base(path), "response_") ||
		filepath.Ext(path) != ".wav" {
		t.Fatalf("unexpected response path %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected response file, got %v", err)
	}
	if string(data) != "en_US-amy:hello there" {
		t.Fatalf("unexpected response content %q", data)
	}
}

func TestSynthesizeReportsProcessFailure(t *testing.T) {
	client := helperClient(t, "broken")

	_, err := client.Synthesize(context.Background(), "hello", t.TempDir())

	var processErr *subprocess.ProcessError
	if !errors.As(err, &processErr) {
		t.Fatalf("expected ProcessError, got %v", err)
	}
	if !strings.Contains(processErr.Stderr, "unable to load voice") {
		t.Fatalf("expected stderr to be captured, got %q", processErr.Stderr)
	}
}

func TestSynthesizeFailsWithoutOutput(t *testing.T) {
	client := helperClient(t, "silent")

	if _, err := client.Synthesize(context.Background(), "hello", t.TempDir()); err == nil {
		t.Fatalf("expected an error when piper writes nothing")
	}
}
