package session

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ChristopherHousholder/ShaTranZ/internal/recorder"
)

// fakeRecorder tracks open/close events and enforces the single-open
// invariant the rotator must uphold.
type fakeRecorder struct {
	mu         sync.Mutex
	openPaths  map[string]bool
	opens      []string
	closes     []string
	doubleOpen bool
	failOpens  int
	closeErr   bool
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{openPaths: map[string]bool{}}
}

func (f *fakeRecorder) Open(destination string) (recorder.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failOpens > 0 {
		f.failOpens--
		return nil, &recorder.InitError{Cause: errors.New("device unavailable")}
	}

	if len(f.openPaths) > 0 {
		f.doubleOpen = true
	}

	f.openPaths[destination] = true
	f.opens = append(f.opens, destination)
	return &fakeHandle{path: destination, rec: f}, nil
}

func (f *fakeRecorder) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.openPaths)
}

type fakeHandle struct {
	path   string
	rec    *fakeRecorder
	closed bool
}

func (h *fakeHandle) Path() string { return h.path }

func (h *fakeHandle) Close() error {
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()

	if h.closed {
		return &recorder.StopError{Cause: errors.New("already released")}
	}
	h.closed = true
	delete(h.rec.openPaths, h.path)
	h.rec.closes = append(h.rec.closes, h.path)

	if h.rec.closeErr {
		return &recorder.StopError{Cause: errors.New("never started")}
	}
	return nil
}

type captureSink struct {
	mu     sync.Mutex
	chunks []ChunkHandle
}

func (s *captureSink) Submit(chunk ChunkHandle) {
	s.mu.Lock()
	s.chunks = append(s.chunks, chunk)
	s.mu.Unlock()
}

func (s *captureSink) all() []ChunkHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChunkHandle, len(s.chunks))
	copy(out, s.chunks)
	return out
}

func newTestRotator(t *testing.T, rec *fakeRecorder, sink ChunkSink, cfg Config) *Rotator {
	t.Helper()
	if cfg.Period == 0 {
		// Long enough that the real timer never fires; tests drive
		// rotation directly through rotate().
		cfg.Period = time.Hour
	}
	cfg.ChunkDir = t.TempDir()
	lang := NewLanguageSelection()
	return NewRotator(cfg, rec, sink, lang, slog.Default())
}

func TestStartOpensSlotA(t *testing.T) {
	rec := newFakeRecorder()
	sink := &captureSink{}
	r := newTestRotator(t, rec, sink, Config{})

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop()

	if got := r.State(); got != StateRecording {
		t.Errorf("expected state recording, got %s", got)
	}
	if got := r.ActiveSlot(); got != SlotA {
		t.Errorf("expected active slot a, got %s", got)
	}
	if rec.openCount() != 1 {
		t.Errorf("expected exactly one open recording, got %d", rec.openCount())
	}
}

func TestStartWhileRecordingFails(t *testing.T) {
	rec := newFakeRecorder()
	r := newTestRotator(t, rec, &captureSink{}, Config{})

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop()

	if err := r.Start(); err == nil {
		t.Fatal("expected second Start to fail")
	}
	if rec.doubleOpen {
		t.Error("second Start opened a second recorder")
	}
}

func TestStartFailsWhenRecorderInitFails(t *testing.T) {
	rec := newFakeRecorder()
	rec.failOpens = 1
	r := newTestRotator(t, rec, &captureSink{}, Config{})

	err := r.Start()
	if err == nil {
		t.Fatal("expected Start to fail")
	}
	var initErr *recorder.InitError
	if !errors.As(err, &initErr) {
		t.Errorf("expected InitError, got %T", err)
	}
	if r.State() != StateIdle {
		t.Errorf("expected state idle after failed start, got %s", r.State())
	}
}

func TestRotateEmitsChunkAndFlipsSlot(t *testing.T) {
	rec := newFakeRecorder()
	sink := &captureSink{}
	r := newTestRotator(t, rec, sink, Config{})

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop()

	r.rotate()

	chunks := sink.all()
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk after one rotation, got %d", len(chunks))
	}
	if chunks[0].Slot != SlotA {
		t.Errorf("expected chunk from slot a, got %s", chunks[0].Slot)
	}
	if chunks[0].Language != "en" {
		t.Errorf("expected default language en, got %s", chunks[0].Language)
	}
	if chunks[0].Seq != 1 {
		t.Errorf("expected seq 1, got %d", chunks[0].Seq)
	}
	if got := r.ActiveSlot(); got != SlotB {
		t.Errorf("expected active slot b after rotation, got %s", got)
	}
	if rec.doubleOpen {
		t.Error("rotation opened two recorders at once")
	}
}

func TestManyRotationsAlternateSlots(t *testing.T) {
	rec := newFakeRecorder()
	sink := &captureSink{}
	r := newTestRotator(t, rec, sink, Config{})

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	const rotations = 10
	for i := 0; i < rotations; i++ {
		r.rotate()
	}
	r.Stop()

	chunks := sink.all()
	if len(chunks) != rotations {
		t.Fatalf("expected %d chunks, got %d", rotations, len(chunks))
	}

	seen := map[uint64]bool{}
	for i, chunk := range chunks {
		want := SlotA
		if i%2 == 1 {
			want = SlotB
		}
		if chunk.Slot != want {
			t.Errorf("chunk %d: expected slot %s, got %s", i, want, chunk.Slot)
		}
		if seen[chunk.Seq] {
			t.Errorf("chunk %d: duplicate seq %d", i, chunk.Seq)
		}
		seen[chunk.Seq] = true
	}

	if rec.doubleOpen {
		t.Error("a slot was opened while another was already open")
	}
	if rec.openCount() != 0 {
		t.Errorf("expected all recordings closed after stop, got %d open", rec.openCount())
	}
}

func TestLanguageTaggedAtCloseTime(t *testing.T) {
	rec := newFakeRecorder()
	sink := &captureSink{}
	cfg := Config{Period: time.Hour, ChunkDir: t.TempDir()}
	lang := NewLanguageSelection()
	r := NewRotator(cfg, rec, sink, lang, slog.Default())

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop()

	r.rotate()
	if err := lang.Set("ko"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	r.rotate()

	chunks := sink.all()
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Language != "en" {
		t.Errorf("first chunk: expected en, got %s", chunks[0].Language)
	}
	if chunks[1].Language != "ko" {
		t.Errorf("second chunk: expected ko, got %s", chunks[1].Language)
	}
}

func TestStopDiscardsFinalChunkByDefault(t *testing.T) {
	rec := newFakeRecorder()
	sink := &captureSink{}
	r := newTestRotator(t, rec, sink, Config{})

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.Stop()

	if len(sink.all()) != 0 {
		t.Errorf("expected no chunks on stop, got %d", len(sink.all()))
	}
	if r.State() != StateIdle {
		t.Errorf("expected idle after stop, got %s", r.State())
	}
	if rec.openCount() != 0 {
		t.Errorf("expected recorder released, got %d open", rec.openCount())
	}
}

func TestStopUploadsFinalChunkWhenConfigured(t *testing.T) {
	rec := newFakeRecorder()
	sink := &captureSink{}
	r := newTestRotator(t, rec, sink, Config{UploadFinalChunk: true})

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.Stop()

	chunks := sink.all()
	if len(chunks) != 1 {
		t.Fatalf("expected the final partial chunk, got %d chunks", len(chunks))
	}
	if chunks[0].Slot != SlotA {
		t.Errorf("expected final chunk from slot a, got %s", chunks[0].Slot)
	}
}

func TestToggleDoublePress(t *testing.T) {
	rec := newFakeRecorder()
	r := newTestRotator(t, rec, &captureSink{}, Config{})

	if err := r.Toggle(); err != nil {
		t.Fatalf("first toggle failed: %v", err)
	}
	if r.State() != StateRecording {
		t.Fatalf("expected recording after first toggle, got %s", r.State())
	}

	if err := r.Toggle(); err != nil {
		t.Fatalf("second toggle failed: %v", err)
	}
	if r.State() != StateIdle {
		t.Fatalf("expected idle after second toggle, got %s", r.State())
	}

	if rec.doubleOpen {
		t.Error("double toggle left two recorders open")
	}
	if rec.openCount() != 0 {
		t.Errorf("expected no open recorders, got %d", rec.openCount())
	}
}

func TestRotateSkipsEmitOnCloseFailure(t *testing.T) {
	rec := newFakeRecorder()
	rec.closeErr = true
	sink := &captureSink{}

	var statuses []string
	cfg := Config{
		Period:   time.Hour,
		ChunkDir: t.TempDir(),
		OnStatus: func(msg string) { statuses = append(statuses, msg) },
	}
	r := NewRotator(cfg, rec, sink, NewLanguageSelection(), slog.Default())

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	r.rotate()

	if len(sink.all()) != 0 {
		t.Error("chunk emitted despite close failure")
	}
	if r.Stats().RotationFailures != 1 {
		t.Errorf("expected 1 rotation failure, got %d", r.Stats().RotationFailures)
	}
	// Session stays alive: capture resumed on the other slot.
	if r.State() != StateRecording {
		t.Errorf("expected session still recording, got %s", r.State())
	}
	if rec.openCount() != 1 {
		t.Errorf("expected capture reopened, got %d open", rec.openCount())
	}

	found := false
	for _, msg := range statuses {
		if len(msg) > 0 {
			found = true
		}
	}
	if !found {
		t.Error("expected a status message to surface")
	}

	rec.closeErr = false
	r.Stop()
}

func TestRotateRecoversAfterReopenFailure(t *testing.T) {
	rec := newFakeRecorder()
	sink := &captureSink{}
	r := newTestRotator(t, rec, sink, Config{})

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop()

	// The reopen after the first close fails; the closed chunk is still
	// emitted but capture is left suspended.
	rec.mu.Lock()
	rec.failOpens = 1
	rec.mu.Unlock()

	r.rotate()

	if len(sink.all()) != 1 {
		t.Fatalf("expected closed chunk emitted despite reopen failure, got %d", len(sink.all()))
	}
	if rec.openCount() != 0 {
		t.Fatalf("expected no open recorder after failed reopen, got %d", rec.openCount())
	}
	if r.State() != StateRecording {
		t.Errorf("expected session nominally alive, got %s", r.State())
	}

	// Next tick resumes capture without emitting anything.
	r.rotate()

	if rec.openCount() != 1 {
		t.Errorf("expected capture resumed on next tick, got %d open", rec.openCount())
	}
	if len(sink.all()) != 1 {
		t.Errorf("resume tick should not emit a chunk, got %d total", len(sink.all()))
	}
}

func TestChunkCountTracksVirtualTime(t *testing.T) {
	// floor(D / P) chunks for a session of duration D: drive the ticks
	// explicitly and assert the count matches.
	rec := newFakeRecorder()
	sink := &captureSink{}
	r := newTestRotator(t, rec, sink, Config{})

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	const periods = 4
	for i := 0; i < periods; i++ {
		r.rotate()
	}
	r.Stop()

	if got := len(sink.all()); got != periods {
		t.Errorf("expected floor(D/P)=%d chunks, got %d", periods, got)
	}
	if got := r.Stats().ChunksClosed; got != periods {
		t.Errorf("stats report %d chunks closed, want %d", got, periods)
	}
}

func TestStatsString(t *testing.T) {
	states := map[State]string{
		StateIdle:      "idle",
		StateRecording: "recording",
		StateStopping:  "stopping",
		State(99):      "unknown",
	}
	for state, want := range states {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}

	slots := map[Slot]string{
		SlotA:        "a",
		SlotB:        "b",
		SlotExternal: "external",
	}
	for slot, want := range slots {
		if got := slot.String(); got != want {
			t.Errorf("Slot(%d).String() = %q, want %q", slot, got, want)
		}
	}

	if SlotA.Other() != SlotB || SlotB.Other() != SlotA {
		t.Error("Other should alternate between the two slots")
	}
}

func TestConcurrentToggleLeavesSingleRecorder(t *testing.T) {
	rec := newFakeRecorder()
	r := newTestRotator(t, rec, &captureSink{}, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Toggle()
		}()
	}
	wg.Wait()

	if rec.doubleOpen {
		t.Fatal("concurrent toggles opened two recorders at once")
	}

	// Settle to idle regardless of which side the races landed on.
	r.Stop()
	if rec.openCount() != 0 {
		t.Errorf("expected no open recorders after final stop, got %d", rec.openCount())
	}
}

func TestLanguageSelection(t *testing.T) {
	lang := NewLanguageSelection()

	if got := lang.Get(); got != "en" {
		t.Errorf("expected default en, got %s", got)
	}

	if err := lang.Set("es"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := lang.Get(); got != "es" {
		t.Errorf("expected es, got %s", got)
	}

	for _, bad := range []string{"", "e", "eng", "EN", "12"} {
		if err := lang.Set(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
	if got := lang.Get(); got != "es" {
		t.Errorf("failed Set must not change the selection, got %s", got)
	}
}

func TestLanguageSelectionConcurrentAccess(t *testing.T) {
	lang := NewLanguageSelection()
	codes := []string{"en", "es", "ko", "fr", "de"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = lang.Set(codes[i%len(codes)])
			} else {
				_ = lang.Get()
			}
		}(i)
	}
	wg.Wait()

	got := lang.Get()
	valid := false
	for _, code := range codes {
		if got == code {
			valid = true
		}
	}
	if !valid {
		t.Errorf("selection ended in invalid state %q", got)
	}
}

func TestRecordingsNeverReuseDestination(t *testing.T) {
	// An upload can outlive several rotation periods and deletes its
	// chunk file at the end. The rotator must therefore never hand a
	// later recording the same destination an emitted chunk still owns.
	rec := newFakeRecorder()
	sink := &captureSink{}
	r := newTestRotator(t, rec, sink, Config{})

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := 0; i < 6; i++ {
		r.rotate()
	}
	r.Stop()

	rec.mu.Lock()
	opens := append([]string(nil), rec.opens...)
	rec.mu.Unlock()

	seen := map[string]bool{}
	for _, path := range opens {
		if seen[path] {
			t.Errorf("destination %s opened twice", path)
		}
		seen[path] = true
	}

	// Every emitted chunk keeps exclusive ownership of its path: no
	// recording opened after the emit may land on it.
	chunks := sink.all()
	if len(chunks) != 6 {
		t.Fatalf("expected 6 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		count := 0
		for _, path := range opens {
			if path == c.Path {
				count++
			}
		}
		if count != 1 {
			t.Errorf("chunk path %s opened %d times, want exactly once", c.Path, count)
		}
	}
}

func TestSlotPathsAreDistinct(t *testing.T) {
	rec := newFakeRecorder()
	sink := &captureSink{}
	r := newTestRotator(t, rec, sink, Config{})

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.rotate()
	r.rotate()
	r.Stop()

	chunks := sink.all()
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Path == chunks[1].Path {
		t.Error("consecutive chunks share a destination path")
	}
	for i, c := range chunks {
		if c.Path == "" {
			t.Errorf("chunk %d has empty path", i)
		}
		if c.ID == uuid.Nil {
			t.Errorf("chunk %d has zero ID", i)
		}
	}
}
