package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for both the capture
// client and the transcription server.
type Config struct {
	Client  ClientConfig  `yaml:"client"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// ClientConfig contains capture client configuration
type ClientConfig struct {
	ServerURL            string  `yaml:"server_url"`
	ChunkPeriod          float64 `yaml:"chunk_period"`   // seconds, rotation period
	ChunkDir             string  `yaml:"chunk_dir"`      // empty means os.TempDir
	Language             string  `yaml:"language"`       // ISO 639-1 source language
	UploadTimeout        int     `yaml:"upload_timeout"` // seconds
	MaxRetries           int     `yaml:"max_retries"`
	MaxConcurrentUploads int     `yaml:"max_concurrent_uploads"`
	UploadFinalChunk     bool    `yaml:"upload_final_chunk"`
	PlaybackEnabled      bool    `yaml:"playback_enabled"`
	SpoolDir             string  `yaml:"spool_dir"` // empty disables the spool watcher
	SampleRate           int     `yaml:"sample_rate"`
}

// ServerConfig contains transcription server configuration
type ServerConfig struct {
	BindAddress      string `yaml:"bind_address"`
	Port             int    `yaml:"port"`
	MaxUploadBytes   int64  `yaml:"max_upload_bytes"`
	Backend          string `yaml:"backend"` // "whisper" or "openai"
	TTS              string `yaml:"tts"`     // "command" or "openai"
	WhisperPath      string `yaml:"whisper_path"`
	WhisperModel     string `yaml:"whisper_model"`
	TTSCommand       string `yaml:"tts_command"`
	WebsocketEnabled bool   `yaml:"websocket_enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs validation of the full configuration
func (c *Config) Validate() error {
	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("client config: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates client configuration
func (c *ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url cannot be empty")
	}

	if c.ChunkPeriod <= 0 {
		return fmt.Errorf("chunk_period must be positive, got %f", c.ChunkPeriod)
	}

	if !IsLanguageCode(c.Language) {
		return fmt.Errorf("language must be a 2-letter lowercase code, got '%s'", c.Language)
	}

	if c.UploadTimeout < 1 {
		return fmt.Errorf("upload_timeout must be at least 1 second, got %d", c.UploadTimeout)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", c.MaxRetries)
	}

	if c.MaxConcurrentUploads < 1 {
		return fmt.Errorf("max_concurrent_uploads must be at least 1, got %d", c.MaxConcurrentUploads)
	}

	if c.SampleRate != 16000 && c.SampleRate != 44100 && c.SampleRate != 48000 {
		return fmt.Errorf("sample_rate must be one of 16000, 44100, 48000, got %d", c.SampleRate)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.MaxUploadBytes < 1024 {
		return fmt.Errorf("max_upload_bytes must be at least 1024, got %d", s.MaxUploadBytes)
	}

	validBackends := map[string]bool{"whisper": true, "openai": true}
	if !validBackends[s.Backend] {
		return fmt.Errorf("backend must be 'whisper' or 'openai', got '%s'", s.Backend)
	}

	validTTS := map[string]bool{"command": true, "openai": true}
	if !validTTS[s.TTS] {
		return fmt.Errorf("tts must be 'command' or 'openai', got '%s'", s.TTS)
	}

	if s.Backend == "whisper" {
		if s.WhisperPath == "" {
			return fmt.Errorf("whisper_path cannot be empty when backend is 'whisper'")
		}
		if s.WhisperModel == "" {
			return fmt.Errorf("whisper_model cannot be empty when backend is 'whisper'")
		}
	}

	if s.TTS == "command" && s.TTSCommand == "" {
		return fmt.Errorf("tts_command cannot be empty when tts is 'command'")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetChunkPeriod returns the rotation period as a time.Duration
func (c *ClientConfig) GetChunkPeriod() time.Duration {
	return time.Duration(c.ChunkPeriod * float64(time.Second))
}

// GetUploadTimeout returns the upload timeout as a time.Duration
func (c *ClientConfig) GetUploadTimeout() time.Duration {
	return time.Duration(c.UploadTimeout) * time.Second
}

// IsLanguageCode reports whether code is a 2-letter lowercase ISO 639-1 code.
func IsLanguageCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
