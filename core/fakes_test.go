package orchestration

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/levial/levial/core/audio"
	"github.com/levial/levial/core/events"
	"github.com/levial/levial/core/llms"
	"github.com/levial/levial/core/playback"
)

const (
	testSampleRate = 16000
	testChunkSize  = 1280
	chunkDuration  = 80 * time.Millisecond
)

type fakeSource struct {
	chunks chan audio.Chunk
	errs   chan error
	closed atomic.Bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{chunks: make(chan audio.Chunk, 64), errs: make(chan error, 1)}
}

func (s *fakeSource) NextChunk(ctx context.Context, timeout time.Duration) (audio.Chunk, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case chunk := <-s.chunks:
		return chunk, nil
	case err := <-s.errs:
		return audio.Chunk{}, err
	case <-timer.C:
		return audio.Chunk{}, audio.ErrNoChunk
	case <-ctx.Done():
		return audio.Chunk{}, ctx.Err()
	}
}

func (s *fakeSource) ChunkDuration() time.Duration { return chunkDuration }

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) record(event events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) count(kind events.Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, event := range l.events {
		if event.Kind() == kind {
			count++
		}
	}
	return count
}

func (l *eventLog) has(kind events.Kind) bool {
	return l.count(kind) > 0
}

func (l *eventLog) first(kind events.Kind) events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, event := range l.events {
		if event.Kind() == kind {
			return event
		}
	}
	return nil
}

// states returns the target state of every transition, in order.
func (l *eventLog) states() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var states []string
	for _, event := range l.events {
		if changed, ok := event.(events.StateChanged); ok {
			states = append(states, changed.To)
		}
	}
	return states
}

type fakeTranscriber struct {
	mu      sync.Mutex
	results []transcription
	paths   []string
	calls   int
}

type transcription struct {
	text string
	err  error
}

// Transcribe returns the queued results in order and repeats the last one.
func (f *fakeTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.paths = append(f.paths, path)
	result := transcription{text: "hello"}
	if len(f.results) > 0 {
		result = f.results[min(f.calls, len(f.results)-1)]
	}
	f.calls++
	return result.text, result.err
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// blockingTranscriber holds every call until its context is cancelled.
type blockingTranscriber struct {
	calls     atomic.Int32
	cancelled atomic.Bool
}

func (b *blockingTranscriber) Transcribe(ctx context.Context, _ string) (string, error) {
	b.calls.Add(1)
	<-ctx.Done()
	b.cancelled.Store(true)
	return "", ctx.Err()
}

type blockingLLM struct {
	calls     atomic.Int32
	cancelled atomic.Bool
}

func (b *blockingLLM) Generate(ctx context.Context, _ llms.Prompt) (string, error) {
	b.calls.Add(1)
	<-ctx.Done()
	b.cancelled.Store(true)
	return "", ctx.Err()
}

type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []llms.Prompt
}

func (f *fakeLLM) Generate(_ context.Context, prompt llms.Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func (f *fakeLLM) recordedPrompts() []llms.Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llms.Prompt(nil), f.prompts...)
}

type toolCallingLLM struct {
	fakeLLM
	calls   []llms.ToolCall
	tools   []llms.Tool
	results []string
}

func (f *toolCallingLLM) GenerateWithTools(ctx context.Context, prompt llms.Prompt, tools []llms.Tool, execute llms.ToolExecutor) (string, error) {
	var results []string
	for _, call := range f.calls {
		result, err := execute(ctx, call)
		if err != nil {
			result = "Error: " + err.Error()
		}
		results = append(results, result)
	}

	f.mu.Lock()
	f.tools = tools
	f.results = results
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.reply, nil
}

type fakeSynthesizer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ string, outDir string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return filepath.Join(outDir, "reply.wav"), nil
}

type fakeHandle struct {
	done    chan struct{}
	once    sync.Once
	stopped atomic.Bool
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{done: make(chan struct{})}
}

func (h *fakeHandle) finish() {
	h.once.Do(func() { close(h.done) })
}

func (h *fakeHandle) Stop() error {
	h.stopped.Store(true)
	h.finish()
	return nil
}

func (h *fakeHandle) Wait() error {
	<-h.done
	return nil
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

// fakePlayer hands out handles that play until finished or stopped.
type fakePlayer struct {
	mu      sync.Mutex
	handles []*fakeHandle
}

func (p *fakePlayer) Play(context.Context, string) (playback.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	handle := newFakeHandle()
	p.handles = append(p.handles, handle)
	return handle, nil
}

func (p *fakePlayer) handle(i int) *fakeHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i >= len(p.handles) {
		return nil
	}
	return p.handles[i]
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

type recordedToolCall struct {
	server    string
	tool      string
	arguments string
}

type fakeToolCaller struct {
	mu    sync.Mutex
	calls []recordedToolCall
}

func (f *fakeToolCaller) Call(_ context.Context, server, tool string, arguments json.RawMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedToolCall{server: server, tool: tool, arguments: string(arguments)})
	return "sunny", nil
}

func (f *fakeToolCaller) Tools() []llms.Tool {
	return []llms.Tool{{Server: "weather", Name: "forecast", Description: "Weather forecast"}}
}

type fakeMemory struct {
	mu           sync.Mutex
	context      string
	interactions []string
}

func (f *fakeMemory) AddInteraction(_ context.Context, role, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interactions = append(f.interactions, role+": "+text)
	return nil
}

func (f *fakeMemory) RelevantContext(context.Context, string) (string, error) {
	return f.context, nil
}

// constantLevelModel fires on chunks whose first sample is above 0.9.
type constantLevelModel struct{}

func (constantLevelModel) Name() string { return "hey_levial" }

func (constantLevelModel) Predict(chunk audio.Chunk) (float64, error) {
	if len(chunk.Samples) == 0 {
		return 0, nil
	}
	return float64(chunk.Samples[0]), nil
}

type harness struct {
	o      *Orchestrator
	events *eventLog
	source atomic.Pointer[fakeSource]
	seq    atomic.Uint64
}

func newHarness(t *testing.T, opts ...OrchestratorOption) *harness {
	t.Helper()

	h := &harness{events: &eventLog{}}
	h.source.Store(newFakeSource())
	base := []OrchestratorOption{
		WithAudioSource(func(context.Context) (AudioSource, error) { return h.source.Load(), nil }),
		WithArtifactsDir(t.TempDir()),
		WithPollInterval(10 * time.Millisecond),
		WithSilenceDuration(0),
		WithMaxRecordingDuration(3 * chunkDuration),
		WithEventHandler(h.events.record),
	}
	h.o = NewOrchestrator(append(base, opts...)...)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.o.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Errorf("orchestrator did not stop")
		}
	})

	waitForCondition(t, time.Second, "listening state", func() bool {
		return h.o.State() == StateListening
	})
}

// push feeds count chunks at the given level into the current source.
func (h *harness) push(level float32, count int) {
	source := h.source.Load()
	for range count {
		samples := make([]float32, testChunkSize)
		for i := range samples {
			samples[i] = level
		}
		source.chunks <- audio.Chunk{
			Seq:        h.seq.Add(1) - 1,
			Samples:    samples,
			SampleRate: testSampleRate,
			Channels:   1,
		}
	}
}

// utter starts a capture and feeds enough speech to hit the duration cap.
func (h *harness) utter(t *testing.T) {
	t.Helper()

	if !h.o.StartCapture() {
		t.Fatalf("expected capture to start")
	}
	waitForCapture(t, h.o)
	h.push(0.3, 3)
}

func waitForCapture(t *testing.T, o *Orchestrator) {
	t.Helper()
	waitForCondition(t, time.Second, "capture session", func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.session != nil
	})
}

func waitForState(t *testing.T, o *Orchestrator, state State) {
	t.Helper()
	waitForCondition(t, 2*time.Second, state.String()+" state", func() bool {
		return o.State() == state
	})
}

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}
