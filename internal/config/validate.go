package config

import (
	"errors"
	"fmt"
	"slices"
)

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Message
}

// Validate reports every invalid field at once, joined with errors.Join.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	profile, ok := c.Profiles[c.ActiveProfile]
	if !ok {
		add("active_profile", "profile %q missing in config", c.ActiveProfile)
	}

	if c.Audio.SampleRate <= 0 {
		add("audio.sample_rate", "must be positive")
	}
	if c.Audio.Channels <= 0 {
		add("audio.channels", "must be positive")
	}
	if c.Audio.ChunkSize <= 0 {
		add("audio.chunk_size", "must be positive")
	}
	if c.Audio.PreRollSec < 0 {
		add("audio.preroll_sec", "must be non-negative")
	}
	if c.Timeouts.RecordingMaxSec < 0 {
		add("timeouts.recording_max_sec", "must be non-negative")
	}

	for field, value := range map[string]float64{
		"detection.wake_threshold": c.Detection.WakeThreshold,
		"detection.vad_threshold":  c.Detection.VADThreshold,
		"detection.rms_floor":      c.Detection.RMSFloor,
	} {
		if value < 0 || value > 1 {
			add(field, "must be between 0.0 and 1.0")
		}
	}
	for field, value := range map[string]float64{
		"detection.silence_sec":    c.Detection.SilenceSec,
		"detection.refractory_sec": c.Detection.RefractorySec,
		"detection.min_speech_sec": c.Detection.MinSpeechSec,
	} {
		if value < 0 {
			add(field, "must be non-negative")
		}
	}

	switch c.Detection.ListenMode {
	case ListenModeManual:
	case ListenModeWakeWord:
		if len(c.Detection.HelperCommand) == 0 {
			add("detection.helper_command", "required in %s mode", ListenModeWakeWord)
		}
		if len(c.Detection.WakeWords) == 0 {
			add("detection.wake_words", "required in %s mode", ListenModeWakeWord)
		}
	case ListenModeVoiceActivity:
	default:
		add("detection.listen_mode", "must be one of %s, %s, %s, got %q",
			ListenModeWakeWord, ListenModeVoiceActivity, ListenModeManual, c.Detection.ListenMode)
	}

	if ok {
		if profile.MaxHistoryTurns < 0 {
			add("profiles."+c.ActiveProfile+".max_history_turns", "must be non-negative")
		}
		if !slices.Contains([]string{BackendOllama, BackendGroq}, profile.LLMBackend) {
			add("profiles."+c.ActiveProfile+".llm_backend", "unknown backend %q", profile.LLMBackend)
		}
		if !slices.Contains([]string{BackendWhisper, BackendDeepgram}, profile.ASRBackend) {
			add("profiles."+c.ActiveProfile+".asr_backend", "unknown backend %q", profile.ASRBackend)
		}
		if !slices.Contains([]string{BackendPiper, BackendDeepgram}, profile.TTSBackend) {
			add("profiles."+c.ActiveProfile+".tts_backend", "unknown backend %q", profile.TTSBackend)
		}
		if profile.LLMBackend == BackendGroq && c.GroqAPIKey == "" {
			add("GROQ_API_KEY", "required by the %s backend", BackendGroq)
		}
		if (profile.ASRBackend == BackendDeepgram || profile.TTSBackend == BackendDeepgram) && c.DeepgramAPIKey == "" {
			add("DEEPGRAM_API_KEY", "required by the %s backend", BackendDeepgram)
		}
	}

	for name, server := range c.MCPServers {
		if server.Enabled && server.Command == "" {
			add("mcp_servers."+name+".command", "required for an enabled server")
		}
	}
	if c.Memory.Enabled && c.Memory.RedisAddr == "" {
		add("memory.redis_addr", "required when memory is enabled")
	}

	return errors.Join(errs...)
}
