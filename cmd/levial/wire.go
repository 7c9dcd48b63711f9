package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	orchestration "github.com/levial/levial/core"
	"github.com/levial/levial/core/audio"
	"github.com/levial/levial/core/audio/miniaudio"
	"github.com/levial/levial/core/audio/portaudio"
	"github.com/levial/levial/core/detection"
	"github.com/levial/levial/core/detection/process"
	"github.com/levial/levial/core/llms"
	"github.com/levial/levial/core/llms/groq"
	"github.com/levial/levial/core/llms/ollama"
	"github.com/levial/levial/core/memory"
	"github.com/levial/levial/core/playback"
	"github.com/levial/levial/core/speechtotext"
	deepgramstt "github.com/levial/levial/core/speechtotext/deepgram"
	"github.com/levial/levial/core/speechtotext/whisper"
	"github.com/levial/levial/core/texttospeech"
	deepgramtts "github.com/levial/levial/core/texttospeech/deepgram"
	"github.com/levial/levial/core/texttospeech/piper"
	"github.com/levial/levial/core/tools/mcp"
	"github.com/levial/levial/internal/config"
	"github.com/levial/levial/internal/subprocess"
)

const (
	captureMiniaudio = "miniaudio"
	capturePortaudio = "portaudio"

	playerAuto      = "auto"
	playerProcess   = "process"
	playerMiniaudio = "miniaudio"
	playerNone      = "none"

	defaultSystemPrompt = "You are Levial, a voice assistant running on the user's computer. " +
		"Replies are spoken aloud, so answer in one to three short sentences without markdown or lists."

	redisPingTimeout = 2 * time.Second
)

type wiringOptions struct {
	capture       string
	device        int
	player        string
	systemPrompt  string
	keepArtifacts bool
	controlTools  bool
}

// assembly holds everything built from the configuration and the order in
// which it has to be released.
type assembly struct {
	options []orchestration.OrchestratorOption
	closers []func()
}

func (a *assembly) add(opts ...orchestration.OrchestratorOption) {
	a.options = append(a.options, opts...)
}

func (a *assembly) onClose(closer func()) {
	a.closers = append(a.closers, closer)
}

// Close releases in reverse order of construction.
func (a *assembly) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func assemble(ctx context.Context, cfg *config.Config, wiring wiringOptions, logger *zap.Logger) (*assembly, error) {
	a := &assembly{}
	fail := func(err error) (*assembly, error) {
		a.Close()
		return nil, err
	}

	profile := cfg.Profile()
	a.add(
		orchestration.WithListenMode(orchestration.ListenMode(cfg.Detection.ListenMode)),
		orchestration.WithVADThreshold(cfg.Detection.VADThreshold),
		orchestration.WithMinSpeech(cfg.MinSpeech()),
		orchestration.WithSilenceDuration(cfg.SilenceDuration()),
		orchestration.WithMaxRecordingDuration(cfg.RecordingMaxDuration()),
		orchestration.WithPreRoll(cfg.PreRoll()),
		orchestration.WithMaxHistoryTurns(profile.MaxHistoryTurns),
		orchestration.WithArtifactsDir(cfg.ArtifactsPath()),
		orchestration.WithKeepArtifacts(wiring.keepArtifacts),
		orchestration.WithSystemPrompt(wiring.systemPrompt),
	)
	if wiring.controlTools {
		a.add(orchestration.WithOrchestrationTools())
	}

	newDevice, err := deviceFactory(wiring.capture, wiring.device, cfg)
	if err != nil {
		return fail(err)
	}
	a.add(orchestration.WithAudioSource(orchestration.DeviceSourceOpener(newDevice, audio.SourceOptions{
		SampleRate: cfg.SampleRate(),
		Channels:   cfg.Channels(),
		ChunkSize:  cfg.Audio.ChunkSize,
	})))

	if err := wireDetection(ctx, cfg, a); err != nil {
		return fail(err)
	}

	transcriber, err := newTranscriber(cfg)
	if err != nil {
		return fail(err)
	}
	generator, err := newGenerator(cfg)
	if err != nil {
		return fail(err)
	}
	synthesizer, err := newSynthesizer(cfg)
	if err != nil {
		return fail(err)
	}
	a.add(
		orchestration.WithTranscriber(transcriber),
		orchestration.WithLLM(generator),
		orchestration.WithSynthesizer(synthesizer),
	)
	logger.Info("backends selected",
		zap.String("profile", cfg.ActiveProfile),
		zap.String("asr", profile.ASRBackend),
		zap.String("llm", profile.LLMBackend),
		zap.String("model", cfg.LLMModel()),
		zap.String("tts", profile.TTSBackend),
	)

	if err := wirePlayer(wiring.player, a, logger); err != nil {
		return fail(err)
	}
	wireTools(ctx, cfg, a, logger)
	wireMemory(ctx, cfg, a, logger)
	return a, nil
}

// deviceFactory returns a constructor for the capture device. The orchestrator
// calls it again whenever the device has to be reopened.
func deviceFactory(backend string, device int, cfg *config.Config) (func() (audio.Device, error), error) {
	switch backend {
	case captureMiniaudio, "":
		opts := []miniaudio.ClientOption{
			miniaudio.WithSampleRate(cfg.SampleRate()),
			miniaudio.WithChannels(cfg.Channels()),
		}
		if device >= 0 {
			id, err := captureDeviceID(device)
			if err != nil {
				return nil, err
			}
			opts = append(opts, miniaudio.WithDeviceID(id))
		}
		return func() (audio.Device, error) {
			client, err := miniaudio.NewClient(opts...)
			if err != nil {
				return nil, err
			}
			return client, nil
		}, nil
	case capturePortaudio:
		if device >= 0 {
			return nil, errors.New("device selection is only supported with miniaudio capture")
		}
		return func() (audio.Device, error) {
			client, err := portaudio.NewClient(cfg.SampleRate(), cfg.Channels(), cfg.Audio.ChunkSize)
			if err != nil {
				return nil, err
			}
			return client, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown capture backend %q", backend)
	}
}

func captureDeviceID(index int) (malgo.DeviceID, error) {
	client, err := miniaudio.NewClient()
	if err != nil {
		return malgo.DeviceID{}, err
	}
	defer client.Close()

	devices, err := client.Devices()
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("failed to list capture devices: %w", err)
	}
	if index >= len(devices) {
		return malgo.DeviceID{}, fmt.Errorf("capture device %d not found, %d available", index, len(devices))
	}
	return devices[index].ID, nil
}

// wireDetection starts the scoring helper when one is configured. Without it
// voice activity falls back to an energy threshold and wake words are
// unavailable.
func wireDetection(ctx context.Context, cfg *config.Config, a *assembly) error {
	helperCommand := cfg.Detection.HelperCommand
	if len(helperCommand) == 0 || cfg.Detection.ListenMode == config.ListenModeManual {
		if cfg.Detection.ListenMode == config.ListenModeWakeWord {
			return errors.New("wake-word listening needs detection.helper_command")
		}
		a.add(orchestration.WithVoiceActivityScorer(detection.RMSScorer{Floor: cfg.Detection.RMSFloor}))
		return nil
	}

	helper, err := process.Start(ctx, subprocess.Command{
		Name: "detector",
		Path: helperCommand[0],
		Args: helperCommand[1:],
		Dir:  cfg.BaseDir,
	}, cfg.Detection.WakeWords, process.WithCacheSize(helperCacheSize(cfg)))
	if err != nil {
		return fmt.Errorf("failed to start detector helper: %w", err)
	}
	a.onClose(func() { _ = helper.Close() })

	a.add(orchestration.WithVoiceActivityScorer(helper.VAD()))
	if len(cfg.Detection.WakeWords) > 0 {
		a.add(orchestration.WithWakeWordDetector(detection.NewWakeWordDetector(
			helper.Models(),
			detection.WithWakeThreshold(cfg.Detection.WakeThreshold),
			detection.WithRefractory(cfg.Refractory()),
		)))
	}
	return nil
}

// helperCacheSize keeps the scores of twice the pre-roll so a capture never
// sends pre-roll chunks to the helper a second time.
func helperCacheSize(cfg *config.Config) int {
	if cfg.Audio.ChunkSize <= 0 {
		return process.DefaultCacheSize
	}
	chunks := int(cfg.Audio.PreRollSec*float64(cfg.SampleRate())/float64(cfg.Audio.ChunkSize)) + 1
	return max(2*chunks, process.DefaultCacheSize)
}

func newTranscriber(cfg *config.Config) (speechtotext.Transcriber, error) {
	switch backend := cfg.Profile().ASRBackend; backend {
	case config.BackendWhisper:
		opts := []whisper.ClientOption{whisper.WithBaseDir(cfg.BaseDir)}
		if binary := cfg.WhisperBinaryPath(); fileExists(binary) {
			opts = append(opts, whisper.WithBinary(binary))
		}
		return whisper.NewClient(cfg.WhisperModelPath(), opts...), nil
	case config.BackendDeepgram:
		if cfg.DeepgramAPIKey == "" {
			return nil, errors.New("DEEPGRAM_API_KEY is not set")
		}
		return deepgramstt.NewTranscriptionClient(cfg.DeepgramAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown asr backend %q", backend)
	}
}

func newGenerator(cfg *config.Config) (llms.Generator, error) {
	switch backend := cfg.Profile().LLMBackend; backend {
	case config.BackendOllama:
		return ollama.NewClient(cfg.LLMModel()), nil
	case config.BackendGroq:
		if cfg.GroqAPIKey == "" {
			return nil, errors.New("GROQ_API_KEY is not set")
		}
		return groq.NewClient(cfg.GroqAPIKey, groq.WithModel(cfg.LLMModel())), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", backend)
	}
}

func newSynthesizer(cfg *config.Config) (texttospeech.Synthesizer, error) {
	switch backend := cfg.Profile().TTSBackend; backend {
	case config.BackendPiper:
		return piper.NewClient(cfg.PiperModelPath()), nil
	case config.BackendDeepgram:
		if cfg.DeepgramAPIKey == "" {
			return nil, errors.New("DEEPGRAM_API_KEY is not set")
		}
		return deepgramtts.NewTextToSpeechClient(cfg.DeepgramAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown tts backend %q", backend)
	}
}

// wirePlayer picks the playback path. Without a player replies are only
// written to the artifacts directory.
func wirePlayer(choice string, a *assembly, logger *zap.Logger) error {
	switch choice {
	case playerNone:
		logger.Info("playback disabled, replies are written to the artifacts directory")
		return nil
	case playerMiniaudio:
		client, err := miniaudio.NewClient()
		if err != nil {
			return fmt.Errorf("failed to initialize miniaudio playback: %w", err)
		}
		a.onClose(client.Close)
		a.add(orchestration.WithPlayer(client.NewPlayer()))
		return nil
	case playerProcess, playerAuto, "":
		player := playback.NewProcessPlayer()
		if !player.Available() {
			if choice == playerProcess {
				return errors.New("no audio player found on PATH")
			}
			logger.Warn("no audio player found on PATH, replies will not be played")
			return nil
		}
		a.add(orchestration.WithPlayer(player))
		return nil
	default:
		return fmt.Errorf("unknown player %q", choice)
	}
}

func wireTools(ctx context.Context, cfg *config.Config, a *assembly, logger *zap.Logger) {
	servers := cfg.EnabledMCPServers()
	if len(servers) == 0 {
		return
	}

	registry := mcp.NewRegistry()
	a.onClose(func() { _ = registry.Close() })
	for name, server := range servers {
		err := registry.Register(mcp.ServerConfig{
			Name:    name,
			Command: server.Command,
			Args:    server.Args,
			Env:     server.Env,
		})
		if err != nil {
			logger.Warn("skipping mcp server", zap.String("server", name), zap.Error(err))
		}
	}
	if err := registry.ConnectAll(ctx); err != nil {
		logger.Warn("some mcp servers are unavailable", zap.Error(err))
	}
	logger.Info("mcp servers connected", zap.Strings("servers", registry.Connected()))
	a.add(orchestration.WithToolCaller(registry))
}

// wireMemory attaches the Redis store when it answers a ping. The assistant
// works without it.
func wireMemory(ctx context.Context, cfg *config.Config, a *assembly, logger *zap.Logger) {
	if !cfg.Memory.Enabled {
		return
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Memory.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("memory disabled, redis is unreachable", zap.String("addr", cfg.Memory.RedisAddr), zap.Error(err))
		_ = client.Close()
		return
	}

	a.onClose(func() { _ = client.Close() })
	a.add(orchestration.WithMemory(memory.NewRedisStore(client)))
	logger.Info("memory enabled", zap.String("addr", cfg.Memory.RedisAddr))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
