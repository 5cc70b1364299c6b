package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeTranscriber struct {
	plainText     string
	plainErr      error
	translateText string
	translateErr  error
	seenPaths     []string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, path, language string) (string, error) {
	f.seenPaths = append(f.seenPaths, path)
	return f.plainText, f.plainErr
}

func (f *fakeTranscriber) Translate(ctx context.Context, path, language string) (string, error) {
	f.seenPaths = append(f.seenPaths, path)
	return f.translateText, f.translateErr
}

type fakeSynthesizer struct {
	audio []byte
	err   error
	seen  []string
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.seen = append(f.seen, text)
	return f.audio, f.err
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"normal text", "Hello world", "Hello world"},
		{"trims whitespace", "  Hello world \n", "Hello world"},
		{"empty", "", Sentinel},
		{"whitespace only", "   \n\t ", Sentinel},
		{"four runes", "abcd", Sentinel},
		{"five runes", "abcde", "abcde"},
		{"four cjk runes", "你好世界", Sentinel},
		{"sentinel passes through", Sentinel, Sentinel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{"Hello world", "", "abcd", Sentinel, "  padded text  "}
	for _, in := range inputs {
		once := Sanitize(in)
		if twice := Sanitize(once); twice != once {
			t.Errorf("Sanitize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestProcessHappyPath(t *testing.T) {
	transcriber := &fakeTranscriber{plainText: "hola mundo", translateText: "hello world"}
	synth := &fakeSynthesizer{audio: []byte("wav-bytes")}
	p := New(transcriber, synth, nil, nil)

	result, err := p.Process(context.Background(), "chunk.wav", "es", strings.NewReader("audio-data"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.TranslatedText != "hello world" {
		t.Errorf("unexpected text %q", result.TranslatedText)
	}
	if string(result.Audio) != "wav-bytes" {
		t.Error("audio payload mismatch")
	}
	if len(synth.seen) != 1 || synth.seen[0] != "hello world" {
		t.Errorf("synthesizer saw %v", synth.seen)
	}
}

func TestProcessShortTranscriptionBecomesSentinel(t *testing.T) {
	transcriber := &fakeTranscriber{translateText: "uh"}
	synth := &fakeSynthesizer{audio: []byte("wav")}
	p := New(transcriber, synth, nil, nil)

	result, err := p.Process(context.Background(), "chunk.wav", "en", strings.NewReader("audio"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.TranslatedText != Sentinel {
		t.Errorf("expected sentinel, got %q", result.TranslatedText)
	}
	if len(synth.seen) != 1 || synth.seen[0] != Sentinel {
		t.Errorf("sentinel should still be synthesized, synthesizer saw %v", synth.seen)
	}
}

func TestProcessTranslateFailureAborts(t *testing.T) {
	transcriber := &fakeTranscriber{translateErr: errors.New("model crashed")}
	synth := &fakeSynthesizer{}
	p := New(transcriber, synth, nil, nil)

	_, err := p.Process(context.Background(), "chunk.wav", "en", strings.NewReader("audio"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "model crashed") {
		t.Errorf("cause not preserved: %v", err)
	}
	if len(synth.seen) != 0 {
		t.Error("synthesis must not run after a failed translation")
	}
}

func TestProcessPlainTranscribeFailureIsNonFatal(t *testing.T) {
	transcriber := &fakeTranscriber{plainErr: errors.New("flaky"), translateText: "hello world"}
	synth := &fakeSynthesizer{audio: []byte("wav")}
	p := New(transcriber, synth, nil, nil)

	result, err := p.Process(context.Background(), "chunk.wav", "en", strings.NewReader("audio"))
	if err != nil {
		t.Fatalf("plain transcription failure must not abort: %v", err)
	}
	if result.TranslatedText != "hello world" {
		t.Errorf("unexpected text %q", result.TranslatedText)
	}
}

func TestProcessSynthesisFailureAborts(t *testing.T) {
	transcriber := &fakeTranscriber{translateText: "hello world"}
	synth := &fakeSynthesizer{err: errors.New("no voice")}
	p := New(transcriber, synth, nil, nil)

	if _, err := p.Process(context.Background(), "chunk.wav", "en", strings.NewReader("audio")); err == nil {
		t.Fatal("expected synthesis error to surface")
	}
}

func TestProcessCleansUpTempFile(t *testing.T) {
	dir := t.TempDir()
	transcriber := &fakeTranscriber{translateText: "hello world"}
	synth := &fakeSynthesizer{audio: []byte("wav")}
	p := New(transcriber, synth, nil, nil)
	p.tempDir = dir

	if _, err := p.Process(context.Background(), "chunk.wav", "en", strings.NewReader("audio")); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %d", len(entries))
	}
	if len(transcriber.seenPaths) == 0 || filepath.Ext(transcriber.seenPaths[0]) != ".wav" {
		t.Errorf("temp file should carry the upload's extension, saw %v", transcriber.seenPaths)
	}
}

func TestProcessCleansUpTempFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	transcriber := &fakeTranscriber{translateErr: errors.New("down")}
	p := New(transcriber, &fakeSynthesizer{}, nil, nil)
	p.tempDir = dir

	p.Process(context.Background(), "chunk.wav", "en", strings.NewReader("audio"))

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("temp files left behind after failure: %d", len(entries))
	}
}

func TestSpoolDefaultsExtension(t *testing.T) {
	dir := t.TempDir()
	p := New(&fakeTranscriber{}, &fakeSynthesizer{}, nil, nil)
	p.tempDir = dir

	path, err := p.spool("noextension", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("spool failed: %v", err)
	}
	defer os.Remove(path)

	if filepath.Ext(path) != ".3gp" {
		t.Errorf("expected .3gp fallback, got %q", filepath.Ext(path))
	}
	data, _ := os.ReadFile(path)
	if string(data) != "data" {
		t.Errorf("spooled content mismatch: %q", data)
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single line", "Hello there.\n", "Hello there."},
		{"blank audio dropped", "[00:00.000 --> 00:02.000]  [BLANK_AUDIO]\n", ""},
		{"multiple lines joined", "First line.\n\nSecond line.\n", "First line. Second line."},
		{"mixed", "Real speech.\n[BLANK_AUDIO]\nMore speech.\n", "Real speech. More speech."},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractText(tt.in); got != tt.want {
				t.Errorf("extractText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
