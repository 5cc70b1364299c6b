package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// CommandSynthesizer shells out to a local TTS binary (espeak-ng or
// compatible) that accepts `-w <file> <text>`.
type CommandSynthesizer struct {
	binPath string
	logger  *slog.Logger
}

func NewCommandSynthesizer(binPath string, logger *slog.Logger) (*CommandSynthesizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	resolved, err := exec.LookPath(binPath)
	if err != nil {
		return nil, fmt.Errorf("TTS binary not found at %q: %w", binPath, err)
	}
	return &CommandSynthesizer{binPath: resolved, logger: logger}, nil
}

func (s *CommandSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "tts-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	outPath := filepath.Join(dir, "speech.wav")
	cmd := exec.CommandContext(ctx, s.binPath, "-w", outPath, text)
	s.logger.Debug("Executing TTS command", slog.String("command", cmd.String()))

	if output, err := cmd.CombinedOutput(); err != nil {
		s.logger.Debug("TTS command failed", slog.String("output", string(output)))
		return nil, fmt.Errorf("TTS execution failed: %w", err)
	}

	audio, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("TTS produced no output: %w", err)
	}
	return audio, nil
}
