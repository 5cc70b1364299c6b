package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ChristopherHousholder/ShaTranZ/internal/config"
	"github.com/ChristopherHousholder/ShaTranZ/internal/dispatch"
	"github.com/ChristopherHousholder/ShaTranZ/internal/playback"
	"github.com/ChristopherHousholder/ShaTranZ/internal/recorder"
	"github.com/ChristopherHousholder/ShaTranZ/internal/session"
	"github.com/ChristopherHousholder/ShaTranZ/internal/spool"
	"github.com/ChristopherHousholder/ShaTranZ/internal/upload"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "shatranz-client"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	logger.Info("Client starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("server_url", cfg.Client.ServerURL),
		slog.Duration("chunk_period", cfg.Client.GetChunkPeriod()),
	)

	// The microphone is required; failing to open it is fatal.
	rec, err := recorder.NewPortAudioRecorder(cfg.Client.SampleRate, logger)
	if err != nil {
		var initErr *recorder.InitError
		if errors.As(err, &initErr) {
			fmt.Fprintf(os.Stderr, "Startup error: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Failed to initialize recorder: %v\n", err)
		}
		os.Exit(1)
	}
	defer rec.Close()

	worker, err := upload.NewWorker(upload.Config{
		ServerURL:     cfg.Client.ServerURL,
		Timeout:       cfg.Client.GetUploadTimeout(),
		MaxRetries:    cfg.Client.MaxRetries,
		MaxConcurrent: cfg.Client.MaxConcurrentUploads,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize uploader: %v\n", err)
		os.Exit(1)
	}

	var player dispatch.Player
	if cfg.Client.PlaybackEnabled {
		wavPlayer, err := playback.NewWAVPlayer(logger)
		if err != nil {
			logger.Warn("Playback unavailable, continuing without audio output",
				slog.String("error", err.Error()))
		} else {
			defer wavPlayer.Close()
			player = wavPlayer
		}
	}

	dispatcher := dispatch.NewDispatcher(player, func(state dispatch.DisplayState) {
		fmt.Printf("[%s] %s\n", state.Script, state.Text)
	}, logger)
	go dispatcher.Run(worker.Results())

	language := session.NewLanguageSelection()
	if cfg.Client.Language != "" {
		if err := language.Set(cfg.Client.Language); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid configured language %q: %v\n", cfg.Client.Language, err)
			os.Exit(1)
		}
	}

	rotator := session.NewRotator(session.Config{
		Period:           cfg.Client.GetChunkPeriod(),
		ChunkDir:         cfg.Client.ChunkDir,
		UploadFinalChunk: cfg.Client.UploadFinalChunk,
		OnStatus: func(msg string) {
			fmt.Println(msg)
		},
	}, rec, worker, language, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional spool directory for pre-recorded audio
	var watcher *spool.Watcher
	if cfg.Client.SpoolDir != "" {
		w, err := spool.NewWatcher(cfg.Client.SpoolDir, worker, language, logger)
		if err != nil {
			logger.Warn("Spool watcher unavailable", slog.String("error", err.Error()))
		} else {
			watcher = w
			go watcher.Run(ctx)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	fmt.Println("Commands: toggle | lang <code> | stats | quit")
	lines := readLines()

	running := true
	for running {
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			running = false

		case line, ok := <-lines:
			if !ok {
				running = false
				break
			}
			handleCommand(line, rotator, language, worker, &running)
		}
	}

	// Stop recording first so the last chunk is settled. The spool
	// watcher must be fully stopped before the worker closes: it submits
	// chunks and cannot be allowed to race the shutdown.
	if rotator.State() != session.StateIdle {
		rotator.Stop()
	}
	cancel()
	if watcher != nil {
		watcher.Wait()
	}
	worker.Close()
	dispatcher.Wait()

	stats := rotator.Stats()
	logger.Info("Session finished",
		slog.Uint64("chunks_closed", stats.ChunksClosed),
		slog.Uint64("rotation_failures", stats.RotationFailures),
	)
}

func handleCommand(line string, rotator *session.Rotator, language *session.LanguageSelection,
	worker *upload.Worker, running *bool) {

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "toggle", "t":
		rotator.Toggle()

	case "lang", "l":
		if len(fields) != 2 {
			fmt.Println("Usage: lang <code>  (two-letter ISO 639-1, e.g. 'es')")
			return
		}
		if err := language.Set(fields[1]); err != nil {
			fmt.Printf("Invalid language: %v\n", err)
			return
		}
		fmt.Printf("Source language set to %s\n", fields[1])

	case "stats":
		r := rotator.Stats()
		u := worker.Stats()
		fmt.Printf("state=%s slot=%s chunks=%d uploads=%d failures=%d retries=%d\n",
			r.State, r.ActiveSlot, r.ChunksClosed, u.Succeeded, u.Failed, u.Retries)

	case "quit", "q", "exit":
		*running = false

	default:
		fmt.Printf("Unknown command %q\n", fields[0])
	}
}

// readLines feeds stdin lines to the main loop without blocking signal
// handling.
func readLines() <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			ch <- scanner.Text()
		}
	}()
	return ch
}

// initLogger creates the structured logger from configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	// Log to stderr by default so translations stay readable on stdout.
	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
