// Package config provides configuration loading and validation for the
// capture client and the transcription server. It handles YAML-based
// configuration with per-section struct validation.
package config
