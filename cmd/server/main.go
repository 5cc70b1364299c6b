package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ChristopherHousholder/ShaTranZ/internal/config"
	"github.com/ChristopherHousholder/ShaTranZ/internal/metrics"
	"github.com/ChristopherHousholder/ShaTranZ/internal/pipeline"
	"github.com/ChristopherHousholder/ShaTranZ/internal/server"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "shatranz-server"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Optional .env for API keys; absence is fine
	godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)
	logger.Info("Configuration loaded",
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("port", cfg.Server.Port),
		slog.String("backend", cfg.Server.Backend),
		slog.String("tts", cfg.Server.TTS),
		slog.Int64("max_upload_bytes", cfg.Server.MaxUploadBytes),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	transcriber, err := buildTranscriber(&cfg.Server, logger)
	if err != nil {
		logger.Error("Failed to initialize transcription backend", slog.String("error", err.Error()))
		os.Exit(1)
	}
	synthesizer, err := buildSynthesizer(&cfg.Server, logger)
	if err != nil {
		logger.Error("Failed to initialize TTS backend", slog.String("error", err.Error()))
		os.Exit(1)
	}

	p := pipeline.New(transcriber, synthesizer, logger, appMetrics)

	var hub *server.Hub
	if cfg.Server.WebsocketEnabled {
		hub = server.NewHub(logger, appMetrics)
		logger.Info("WebSocket feed enabled")
	}

	httpServer := server.NewHTTPServer(&cfg.Server, logger, p, appMetrics, hub)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	logger.Info("Service stopped")
}

// buildTranscriber selects the transcription backend from configuration
func buildTranscriber(cfg *config.ServerConfig, logger *slog.Logger) (pipeline.Transcriber, error) {
	switch cfg.Backend {
	case "openai":
		return pipeline.NewOpenAITranscriber(os.Getenv("OPENAI_API_KEY"))
	default:
		return pipeline.NewWhisperTranscriber(cfg.WhisperPath, cfg.WhisperModel, logger)
	}
}

// buildSynthesizer selects the TTS backend from configuration
func buildSynthesizer(cfg *config.ServerConfig, logger *slog.Logger) (pipeline.Synthesizer, error) {
	switch cfg.TTS {
	case "openai":
		return pipeline.NewOpenAISynthesizer(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_TTS_VOICE"))
	default:
		return pipeline.NewCommandSynthesizer(cfg.TTSCommand, logger)
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
