// Package config loads the typed runtime configuration: a JSON or YAML file
// with named profiles, an optional .env file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ListenModeWakeWord      = "wake-word"
	ListenModeVoiceActivity = "voice-activity"
	ListenModeManual        = "manual"

	BackendOllama   = "ollama"
	BackendGroq     = "groq"
	BackendWhisper  = "whisper"
	BackendDeepgram = "deepgram"
	BackendPiper    = "piper"
)

const (
	DefaultConfigPath      = "config/default.json"
	DefaultArtifactsDir    = "artifacts"
	DefaultWhisperModel    = "whisper.cpp/models/ggml-small.bin"
	DefaultWhisperBinary   = "whisper.cpp/build/bin/whisper-cli"
	DefaultPiperModel      = "en_US-lessac-medium.onnx"
	DefaultLLMModel        = "mistral:latest"
	DefaultMaxHistoryTurns = 6
	DefaultRedisAddr       = "localhost:6379"
)

type Config struct {
	ActiveProfile string               `yaml:"active_profile"`
	ArtifactsDir  string               `yaml:"artifacts_dir"`
	Timeouts      Timeouts             `yaml:"timeouts"`
	Audio         Audio                `yaml:"audio"`
	Detection     Detection            `yaml:"detection"`
	Profiles      map[string]Profile   `yaml:"profiles"`
	MCPServers    map[string]MCPServer `yaml:"mcp_servers"`
	Memory        Memory               `yaml:"memory"`

	// BaseDir anchors every relative path in the file.
	BaseDir        string `yaml:"-"`
	GroqAPIKey     string `yaml:"-"`
	DeepgramAPIKey string `yaml:"-"`

	piperModelOverride string
	llmModelOverride   string
}

type Timeouts struct {
	// RecordingMaxSec caps a single capture; zero means no cap.
	RecordingMaxSec float64 `yaml:"recording_max_sec"`
}

type Audio struct {
	SampleRate int     `yaml:"sample_rate"`
	Channels   int     `yaml:"channels"`
	ChunkSize  int     `yaml:"chunk_size"`
	PreRollSec float64 `yaml:"preroll_sec"`
}

type Detection struct {
	WakeWords     []string `yaml:"wake_words"`
	WakeThreshold float64  `yaml:"wake_threshold"`
	VADThreshold  float64  `yaml:"vad_threshold"`
	RMSFloor      float64  `yaml:"rms_floor"`
	SilenceSec    float64  `yaml:"silence_sec"`
	RefractorySec float64  `yaml:"refractory_sec"`
	MinSpeechSec  float64  `yaml:"min_speech_sec"`
	ListenMode    string   `yaml:"listen_mode"`
	// HelperCommand runs the keyword/VAD scoring process; the first element is
	// the executable.
	HelperCommand []string `yaml:"helper_command"`
}

type Profile struct {
	Description     string `yaml:"description"`
	WhisperModel    string `yaml:"whisper_model"`
	PiperModel      string `yaml:"piper_model"`
	LLMModel        string `yaml:"llm_model"`
	LLMBackend      string `yaml:"llm_backend"`
	ASRBackend      string `yaml:"asr_backend"`
	TTSBackend      string `yaml:"tts_backend"`
	MicSampleRate   int    `yaml:"mic_sample_rate"`
	MicChannels     int    `yaml:"mic_channels"`
	MaxHistoryTurns int    `yaml:"max_history_turns"`
}

type MCPServer struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	Enabled bool              `yaml:"enabled"`
}

type Memory struct {
	Enabled   bool   `yaml:"enabled"`
	RedisAddr string `yaml:"redis_addr"`
}

// Default returns a configuration with every default applied and a single
// "default" profile.
func Default() *Config {
	return &Config{
		ActiveProfile: "default",
		ArtifactsDir:  DefaultArtifactsDir,
		Audio: Audio{
			SampleRate: 16000,
			Channels:   1,
			ChunkSize:  1280,
			PreRollSec: 3.0,
		},
		Detection: Detection{
			WakeThreshold: 0.5,
			VADThreshold:  0.5,
			RMSFloor:      0.01,
			SilenceSec:    2.0,
			RefractorySec: 0.5,
			ListenMode:    ListenModeManual,
		},
		Profiles: map[string]Profile{"default": Profile{}.withDefaults()},
		Memory:   Memory{RedisAddr: DefaultRedisAddr},
	}
}

// Load reads <baseDir>/.env (if present) and the config file named by
// LVCA_CONFIG, falling back to <baseDir>/config/default.json. The artifacts
// directory is created. The result is validated.
func Load(baseDir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(baseDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	path := os.Getenv("LVCA_CONFIG")
	if path == "" {
		path = filepath.Join(baseDir, DefaultConfigPath)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file (create one or set LVCA_CONFIG): %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.BaseDir = baseDir
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.ArtifactsPath(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	return cfg, nil
}

// Parse decodes JSON or YAML on top of Default. Fields missing from data keep
// their defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	// A file that names profiles replaces the built-in one.
	cfg.Profiles = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = Default().Profiles
	}
	for name, profile := range cfg.Profiles {
		cfg.Profiles[name] = profile.withDefaults()
	}
	return cfg, nil
}

func (p Profile) withDefaults() Profile {
	if p.WhisperModel == "" {
		p.WhisperModel = DefaultWhisperModel
	}
	if p.PiperModel == "" {
		p.PiperModel = DefaultPiperModel
	}
	if p.LLMModel == "" {
		p.LLMModel = DefaultLLMModel
	}
	if p.LLMBackend == "" {
		p.LLMBackend = BackendOllama
	}
	if p.ASRBackend == "" {
		p.ASRBackend = BackendWhisper
	}
	if p.TTSBackend == "" {
		p.TTSBackend = BackendPiper
	}
	if p.MaxHistoryTurns == 0 {
		p.MaxHistoryTurns = DefaultMaxHistoryTurns
	}
	return p
}

func (c *Config) applyEnv() {
	if profile := os.Getenv("LVCA_PROFILE"); profile != "" {
		c.ActiveProfile = profile
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Memory.RedisAddr = addr
	}
	c.piperModelOverride = os.Getenv("PIPER_MODEL")
	c.llmModelOverride = os.Getenv("OLLAMA_MODEL")
	c.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	c.DeepgramAPIKey = os.Getenv("DEEPGRAM_API_KEY")
}

// Profile returns the active profile.
func (c *Config) Profile() Profile {
	return c.Profiles[c.ActiveProfile]
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.BaseDir == "" {
		return path
	}
	return filepath.Join(c.BaseDir, path)
}

func (c *Config) ArtifactsPath() string { return c.resolve(c.ArtifactsDir) }

func (c *Config) WhisperModelPath() string { return c.resolve(c.Profile().WhisperModel) }

func (c *Config) WhisperBinaryPath() string { return c.resolve(DefaultWhisperBinary) }

func (c *Config) PiperModelPath() string {
	if c.piperModelOverride != "" {
		return c.piperModelOverride
	}
	return c.resolve(c.Profile().PiperModel)
}

func (c *Config) LLMModel() string {
	if c.llmModelOverride != "" {
		return c.llmModelOverride
	}
	return c.Profile().LLMModel
}

// SampleRate prefers the profile's microphone rate over the audio section.
func (c *Config) SampleRate() int {
	if rate := c.Profile().MicSampleRate; rate > 0 {
		return rate
	}
	return c.Audio.SampleRate
}

func (c *Config) Channels() int {
	if channels := c.Profile().MicChannels; channels > 0 {
		return channels
	}
	return c.Audio.Channels
}

func (c *Config) RecordingMaxDuration() time.Duration { return seconds(c.Timeouts.RecordingMaxSec) }
func (c *Config) PreRoll() time.Duration              { return seconds(c.Audio.PreRollSec) }
func (c *Config) SilenceDuration() time.Duration      { return seconds(c.Detection.SilenceSec) }
func (c *Config) Refractory() time.Duration           { return seconds(c.Detection.RefractorySec) }
func (c *Config) MinSpeech() time.Duration            { return seconds(c.Detection.MinSpeechSec) }

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// EnabledMCPServers returns the enabled servers by name.
func (c *Config) EnabledMCPServers() map[string]MCPServer {
	servers := make(map[string]MCPServer)
	for name, server := range c.MCPServers {
		if server.Enabled {
			servers[name] = server
		}
	}
	return servers
}
