package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// WhisperTranscriber shells out to a local whisper CLI. The binary is
// invoked once per chunk; concurrency is bounded upstream by the HTTP
// server.
type WhisperTranscriber struct {
	binPath string
	model   string
	logger  *slog.Logger
}

// NewWhisperTranscriber verifies the binary exists on PATH (or at the
// given path) before returning.
func NewWhisperTranscriber(binPath, model string, logger *slog.Logger) (*WhisperTranscriber, error) {
	if logger == nil {
		logger = slog.Default()
	}
	resolved, err := exec.LookPath(binPath)
	if err != nil {
		return nil, fmt.Errorf("whisper binary not found at %q: %w", binPath, err)
	}
	return &WhisperTranscriber{binPath: resolved, model: model, logger: logger}, nil
}

// Transcribe runs whisper in transcription mode, keeping the source
// language.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, path, language string) (string, error) {
	return t.run(ctx, path, language, "transcribe")
}

// Translate runs whisper in translate mode, producing English text.
func (t *WhisperTranscriber) Translate(ctx context.Context, path, language string) (string, error) {
	return t.run(ctx, path, language, "translate")
}

func (t *WhisperTranscriber) run(ctx context.Context, path, language, task string) (string, error) {
	args := []string{"--model", t.model, "--task", task}
	if language != "" {
		args = append(args, "--language", language)
	}
	args = append(args, path)

	cmd := exec.CommandContext(ctx, t.binPath, args...)
	t.logger.Debug("Executing whisper command",
		slog.String("command", cmd.String()),
		slog.String("task", task))

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			t.logger.Debug("Whisper command failed",
				slog.String("stderr", string(exitErr.Stderr)),
				slog.Int("exit_code", exitErr.ExitCode()))
		}
		return "", fmt.Errorf("whisper execution failed: %w", err)
	}

	return extractText(string(output)), nil
}

// extractText flattens whisper's subtitle-style output into a single
// line, dropping blank-audio markers.
func extractText(output string) string {
	var builder strings.Builder
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.Contains(line, "[BLANK_AUDIO]") {
			continue
		}
		text := strings.TrimSpace(line)
		if text != "" {
			if builder.Len() > 0 {
				builder.WriteString(" ")
			}
			builder.WriteString(text)
		}
	}
	return strings.TrimSpace(builder.String())
}
