package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ChristopherHousholder/ShaTranZ/internal/metrics"
)

// Transcriber converts a recorded audio file to text.
type Transcriber interface {
	// Transcribe returns the speech in its source language.
	Transcribe(ctx context.Context, path, language string) (string, error)
	// Translate returns the speech rendered in English.
	Translate(ctx context.Context, path, language string) (string, error)
}

// Synthesizer renders text as spoken WAV audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Result is the outcome of processing one audio chunk.
type Result struct {
	TranslatedText string
	Audio          []byte
}

// Pipeline runs an uploaded chunk through transcription, translation
// and synthesis.
type Pipeline struct {
	transcriber Transcriber
	synthesizer Synthesizer
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tempDir     string
}

// New builds a pipeline. metrics may be nil when instrumentation is
// disabled (tests).
func New(transcriber Transcriber, synthesizer Synthesizer, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		transcriber: transcriber,
		synthesizer: synthesizer,
		logger:      logger,
		metrics:     m,
	}
}

// Process spools the uploaded audio to a temp file, transcribes and
// translates it, and synthesizes the translation. The temp file is
// always removed before Process returns.
func (p *Pipeline) Process(ctx context.Context, filename, language string, audio io.Reader) (*Result, error) {
	start := time.Now()

	path, err := p.spool(filename, audio)
	if err != nil {
		p.recordFailure(start)
		return nil, fmt.Errorf("failed to spool upload: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("Failed to remove temp file",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}()

	// The source-language transcription is informational only; a
	// failure here does not abort the chunk.
	stageStart := time.Now()
	plain, err := p.transcriber.Transcribe(ctx, path, language)
	if err != nil {
		p.logger.Warn("Source transcription failed",
			slog.String("language", language),
			slog.String("error", err.Error()))
		p.recordStageFailure("transcribe")
	} else {
		p.recordStage("transcribe", stageStart)
		p.logger.Info("Transcribed chunk",
			slog.String("language", language),
			slog.String("text", plain))
	}

	stageStart = time.Now()
	translated, err := p.transcriber.Translate(ctx, path, language)
	if err != nil {
		p.recordStageFailure("translate")
		p.recordFailure(start)
		return nil, fmt.Errorf("translation failed: %w", err)
	}
	p.recordStage("translate", stageStart)

	translated = Sanitize(translated)
	if translated == Sentinel {
		if p.metrics != nil {
			p.metrics.RecordEmptyTranscription()
		}
		p.logger.Info("No usable speech in chunk", slog.String("language", language))
	}

	stageStart = time.Now()
	wav, err := p.synthesizer.Synthesize(ctx, translated)
	if err != nil {
		p.recordStageFailure("synthesize")
		p.recordFailure(start)
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	p.recordStage("synthesize", stageStart)

	if p.metrics != nil {
		p.metrics.RecordSuccess(time.Since(start).Seconds(), len(wav))
	}
	p.logger.Info("Chunk processed",
		slog.String("translated_text", translated),
		slog.Int("audio_bytes", len(wav)),
		slog.Duration("took", time.Since(start)))

	return &Result{TranslatedText: translated, Audio: wav}, nil
}

// spool writes the upload to a temp file whose extension matches the
// uploaded filename, so format-sniffing backends see the right suffix.
func (p *Pipeline) spool(filename string, audio io.Reader) (string, error) {
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".3gp"
	}

	f, err := os.CreateTemp(p.tempDir, "chunk-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, audio); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (p *Pipeline) recordStage(stage string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordStage(stage, time.Since(start).Seconds())
	}
}

func (p *Pipeline) recordStageFailure(stage string) {
	if p.metrics != nil {
		p.metrics.RecordStageFailure(stage)
	}
}

func (p *Pipeline) recordFailure(start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordFailure(time.Since(start).Seconds())
	}
}
