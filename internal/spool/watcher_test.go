package spool

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ChristopherHousholder/ShaTranZ/internal/session"
)

type captureSink struct {
	mu     sync.Mutex
	chunks []session.ChunkHandle
}

func (s *captureSink) Submit(chunk session.ChunkHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
}

func (s *captureSink) snapshot() []session.ChunkHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]session.ChunkHandle(nil), s.chunks...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestWatcherSubmitsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "old.wav"), []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}

	sink := &captureSink{}
	lang := session.NewLanguageSelection()
	w, err := NewWatcher(dir, sink, lang, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer func() {
		cancel()
		w.Wait()
	}()

	waitFor(t, func() bool { return len(sink.snapshot()) == 1 })

	chunk := sink.snapshot()[0]
	if chunk.Slot != session.SlotExternal {
		t.Errorf("spooled chunks must carry the external slot, got %v", chunk.Slot)
	}
	if filepath.Base(chunk.Path) != "old.wav" {
		t.Errorf("unexpected path %q", chunk.Path)
	}
}

func TestWatcherSubmitsNewFiles(t *testing.T) {
	dir := t.TempDir()
	sink := &captureSink{}
	lang := session.NewLanguageSelection()
	lang.Set("ko")

	w, err := NewWatcher(dir, sink, lang, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer func() {
		cancel()
		w.Wait()
	}()

	if err := os.WriteFile(filepath.Join(dir, "drop.3gp"), []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(sink.snapshot()) == 1 })

	chunk := sink.snapshot()[0]
	if chunk.Language != "ko" {
		t.Errorf("chunk should carry the selected language, got %q", chunk.Language)
	}
}

func TestWatcherIgnoresNonAudioFiles(t *testing.T) {
	dir := t.TempDir()
	sink := &captureSink{}
	w, err := NewWatcher(dir, sink, session.NewLanguageSelection(), nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("text"), 0644)
	os.WriteFile(filepath.Join(dir, "partial.wav.tmp"), []byte("partial"), 0644)
	os.WriteFile(filepath.Join(dir, "real.wav"), []byte("audio"), 0644)

	waitFor(t, func() bool { return len(sink.snapshot()) == 1 })
	cancel()
	w.Wait()

	chunks := sink.snapshot()
	if len(chunks) != 1 || filepath.Base(chunks[0].Path) != "real.wav" {
		t.Errorf("only real.wav should be submitted, got %v", chunks)
	}
}

func TestIsAudioFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"a.wav", true},
		{"a.WAV", true},
		{"a.3gp", true},
		{"a.mp3", true},
		{"a.txt", false},
		{"a.wav.tmp", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := isAudioFile(tt.path); got != tt.want {
			t.Errorf("isAudioFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWatcherDoesNotSubmitAfterCancel(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pending.wav"), []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}

	sink := &captureSink{}
	w, err := NewWatcher(dir, sink, session.NewLanguageSelection(), nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	// Cancel lands inside the settle window of the initial scan: the
	// watcher must abandon the pending file instead of submitting it
	// into a sink that is shutting down.
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	cancel()
	w.Wait()

	if err := os.WriteFile(filepath.Join(dir, "late.wav"), []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	for _, chunk := range sink.snapshot() {
		if filepath.Base(chunk.Path) == "late.wav" {
			t.Error("file spooled after shutdown was submitted")
		}
	}
}
