package spool

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/ChristopherHousholder/ShaTranZ/internal/session"
)

// Watcher feeds audio files dropped into a spool directory to the
// upload sink, alongside the chunks the live recorder produces. It is
// how pre-recorded material enters the translation flow.
type Watcher struct {
	dir      string
	sink     session.ChunkSink
	language *session.LanguageSelection
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	seq  uint64
	done chan struct{}
}

// NewWatcher creates the spool directory if needed and starts watching
// it.
func NewWatcher(dir string, sink session.ChunkSink, language *session.LanguageSelection, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch spool directory: %w", err)
	}

	w := &Watcher{
		dir:      dir,
		sink:     sink,
		language: language,
		watcher:  fw,
		logger:   logger,
		done:     make(chan struct{}),
	}
	return w, nil
}

// Run drains existing spool files, then submits every new audio file
// as it appears. It returns when ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)
	defer w.watcher.Close()

	w.logger.Info("Watching spool directory", slog.String("path", w.dir))
	w.scanExisting(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			w.handleCreate(ctx, event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Spool watcher error", slog.String("error", err.Error()))
		}
	}
}

// Wait blocks until Run has returned.
func (w *Watcher) Wait() {
	<-w.done
}

func (w *Watcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("Failed to scan spool directory", slog.String("error", err.Error()))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.handleCreate(ctx, filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) handleCreate(ctx context.Context, path string) {
	if !isAudioFile(path) {
		return
	}
	// A Create event can fire before the writer finishes; give the
	// producer a moment and skip files that vanished. No submission once
	// shutdown has begun.
	select {
	case <-ctx.Done():
		return
	case <-time.After(100 * time.Millisecond):
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return
	}

	w.seq++
	chunk := session.ChunkHandle{
		ID:       uuid.New(),
		Slot:     session.SlotExternal,
		Path:     path,
		Language: w.language.Get(),
		Seq:      w.seq,
		ClosedAt: time.Now(),
	}

	w.logger.Info("Queued spooled audio file",
		slog.String("file", filepath.Base(path)),
		slog.String("language", chunk.Language))
	w.sink.Submit(chunk)
}

func isAudioFile(path string) bool {
	if strings.HasSuffix(path, ".tmp") {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".3gp", ".mp3", ".m4a", ".ogg":
		return true
	}
	return false
}
