package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
  "active_profile": "fast",
  "artifacts_dir": "out",
  "timeouts": {"recording_max_sec": 15},
  "audio": {"preroll_sec": 2.0},
  "detection": {
    "wake_words": ["hey_jarvis"],
    "silence_sec": 1.5,
    "listen_mode": "wake-word",
    "helper_command": ["python3", "scripts/oww_helper.py"]
  },
  "profiles": {
    "fast": {
      "description": "small models",
      "whisper_model": "models/ggml-base.bin",
      "llm_model": "llama3.2:1b",
      "mic_sample_rate": 48000,
      "max_history_turns": 4
    },
    "cloud": {"llm_backend": "groq", "asr_backend": "deepgram"}
  },
  "mcp_servers": {
    "weather": {"command": "node", "args": ["weather.js"], "enabled": true},
    "email": {"command": "node", "enabled": false}
  }
}`

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigPath), []byte(content), 0o644))
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"LVCA_CONFIG", "LVCA_PROFILE", "PIPER_MODEL", "OLLAMA_MODEL",
		"GROQ_API_KEY", "DEEPGRAM_API_KEY", "REDIS_ADDR"} {
		t.Setenv(key, "")
	}
}

func TestLoadAppliesFileAndDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, sampleConfig)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "fast", cfg.ActiveProfile)
	assert.Equal(t, 15*time.Second, cfg.RecordingMaxDuration())
	assert.Equal(t, 2*time.Second, cfg.PreRoll())
	assert.Equal(t, 1500*time.Millisecond, cfg.SilenceDuration())
	assert.Equal(t, 500*time.Millisecond, cfg.Refractory())
	assert.Equal(t, 1280, cfg.Audio.ChunkSize)
	assert.Equal(t, 0.5, cfg.Detection.WakeThreshold)
	assert.Equal(t, 0.01, cfg.Detection.RMSFloor)

	assert.Equal(t, 48000, cfg.SampleRate())
	assert.Equal(t, 1, cfg.Channels())
	assert.Equal(t, 4, cfg.Profile().MaxHistoryTurns)
	assert.Equal(t, "llama3.2:1b", cfg.LLMModel())
	assert.Equal(t, filepath.Join(dir, "models/ggml-base.bin"), cfg.WhisperModelPath())
	assert.Equal(t, filepath.Join(dir, DefaultPiperModel), cfg.PiperModelPath())

	assert.DirExists(t, filepath.Join(dir, "out"))
	assert.Equal(t, []string{"weather"}, keys(cfg.EnabledMCPServers()))

	cloud := cfg.Profiles["cloud"]
	assert.Equal(t, DefaultMaxHistoryTurns, cloud.MaxHistoryTurns)
	assert.Equal(t, BackendPiper, cloud.TTSBackend)
}

func keys(servers map[string]MCPServer) []string {
	var names []string
	for name := range servers {
		names = append(names, name)
	}
	return names
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, sampleConfig)
	t.Setenv("PIPER_MODEL", "/voices/amy.onnx")
	t.Setenv("OLLAMA_MODEL", "qwen2.5")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/voices/amy.onnx", cfg.PiperModelPath())
	assert.Equal(t, "qwen2.5", cfg.LLMModel())
	assert.Equal(t, "redis:6380", cfg.Memory.RedisAddr)
}

func TestLoadDotEnvSelectsProfile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, sampleConfig)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("GROQ_API_KEY=gsk_test\nDEEPGRAM_API_KEY=dg_test\n"), 0o644))
	t.Setenv("LVCA_PROFILE", "cloud")
	// godotenv never overrides variables that are already set.
	os.Unsetenv("GROQ_API_KEY")
	os.Unsetenv("DEEPGRAM_API_KEY")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "cloud", cfg.ActiveProfile)
	assert.Equal(t, "gsk_test", cfg.GroqAPIKey)
	assert.Equal(t, BackendDeepgram, cfg.Profile().ASRBackend)
}

func TestLoadExplicitPath(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("active_profile: home\nprofiles:\n  home:\n    llm_model: phi3\n"), 0o644))
	t.Setenv("LVCA_CONFIG", path)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "phi3", cfg.LLMModel())
	assert.Equal(t, ListenModeManual, cfg.Detection.ListenMode)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LVCA_CONFIG")
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	cfg := Default()
	cfg.ActiveProfile = "missing"
	cfg.Audio.SampleRate = 0
	cfg.Detection.VADThreshold = 1.5
	cfg.Detection.SilenceSec = -1
	cfg.Detection.ListenMode = "push-to-talk"
	cfg.MCPServers = map[string]MCPServer{"tasks": {Enabled: true}}

	err := cfg.Validate()
	require.Error(t, err)

	fields := map[string]bool{}
	for _, wrapped := range err.(interface{ Unwrap() []error }).Unwrap() {
		var validationErr *ValidationError
		require.True(t, errors.As(wrapped, &validationErr))
		fields[validationErr.Field] = true
	}
	assert.Equal(t, map[string]bool{
		"active_profile":            true,
		"audio.sample_rate":         true,
		"detection.vad_threshold":   true,
		"detection.silence_sec":     true,
		"detection.listen_mode":     true,
		"mcp_servers.tasks.command": true,
	}, fields)
}

func TestValidateBackendCredentials(t *testing.T) {
	cfg := Default()
	cfg.Profiles["default"] = Profile{LLMBackend: BackendGroq, TTSBackend: BackendDeepgram}.withDefaults()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GROQ_API_KEY")
	assert.Contains(t, err.Error(), "DEEPGRAM_API_KEY")

	cfg.GroqAPIKey, cfg.DeepgramAPIKey = "a", "b"
	assert.NoError(t, cfg.Validate())
}

func TestValidateWakeWordModeNeedsHelper(t *testing.T) {
	cfg := Default()
	cfg.Detection.ListenMode = ListenModeWakeWord

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detection.helper_command")
	assert.Contains(t, err.Error(), "detection.wake_words")
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
