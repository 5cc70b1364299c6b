package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChristopherHousholder/ShaTranZ/internal/recorder"
)

// State represents the current state of the rotation machine
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Config contains rotation configuration
type Config struct {
	Period           time.Duration
	ChunkDir         string
	UploadFinalChunk bool

	// OnStatus receives short human-readable status messages. May be nil.
	// Called synchronously from the rotator; must not call back into it.
	OnStatus func(msg string)
}

// Stats represents rotator statistics
type Stats struct {
	State            string    `json:"state"`
	ActiveSlot       string    `json:"active_slot"`
	ChunksClosed     uint64    `json:"chunks_closed"`
	RotationFailures uint64    `json:"rotation_failures"`
	StartedAt        time.Time `json:"started_at,omitempty"`
}

// Rotator drives the double-buffered chunk rotation: every Period it
// closes the active recording slot, hands the closed chunk to the sink,
// and reopens capture on the other slot. The machine state is the single
// source of truth for whether a session is live; the tick loop never
// performs network I/O.
//
// Every open gets a fresh destination file. Ownership of a chunk file
// transfers to the sink at close time, and the sink may delete it on its
// own schedule; no later recording ever reuses the same path.
type Rotator struct {
	config Config
	rec    recorder.Recorder
	sink   ChunkSink
	lang   *LanguageSelection
	logger *slog.Logger

	chunkDir string

	mu        sync.Mutex
	state     State
	active    Slot
	handle    recorder.Handle
	seq       uint64
	opens     uint64
	ticker    *time.Ticker
	done      chan struct{}
	startedAt time.Time

	chunksClosed     uint64
	rotationFailures uint64
}

// NewRotator creates a rotator. The chunk directory defaults to the OS
// temp dir when unset.
func NewRotator(config Config, rec recorder.Recorder, sink ChunkSink, lang *LanguageSelection, logger *slog.Logger) *Rotator {
	dir := config.ChunkDir
	if dir == "" {
		dir = os.TempDir()
	}

	return &Rotator{
		config:   config,
		rec:      rec,
		sink:     sink,
		lang:     lang,
		logger:   logger,
		chunkDir: dir,
	}
}

// Start transitions Idle -> Recording(A): capture opens on slot A and the
// rotation timer is armed. A failed recorder open aborts the start and no
// session exists afterwards.
func (r *Rotator) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return fmt.Errorf("session already active (state=%s)", r.state)
	}

	handle, err := r.rec.Open(r.slotPath(SlotA))
	if err != nil {
		r.report(fmt.Sprintf("Startup error: %v", err))
		return err
	}

	r.active = SlotA
	r.handle = handle
	r.seq = 0
	r.state = StateRecording
	r.startedAt = time.Now()
	r.ticker = time.NewTicker(r.config.Period)
	r.done = make(chan struct{})

	go r.loop(r.ticker, r.done)

	r.logger.Info("Recording session started",
		slog.String("slot", r.active.String()),
		slog.Duration("period", r.config.Period),
	)
	r.report("Recording...")

	return nil
}

// Stop transitions Recording -> Stopping -> Idle. The timer is disarmed
// strictly before the recorder is touched so a scheduled rotation cannot
// fire against a released recorder. Close failures are swallowed.
func (r *Rotator) Stop() {
	r.mu.Lock()

	if r.state != StateRecording {
		r.mu.Unlock()
		return
	}
	r.state = StateStopping

	r.ticker.Stop()
	close(r.done)
	r.ticker = nil
	r.done = nil

	handle := r.handle
	r.handle = nil
	slot := r.active
	lang := r.lang.Get()

	if handle != nil {
		path := handle.Path()
		if err := handle.Close(); err != nil {
			r.logger.Warn("Failed to close recorder on stop",
				slog.String("error", err.Error()),
			)
		} else if r.config.UploadFinalChunk {
			r.seq++
			r.chunksClosed++
			r.sink.Submit(ChunkHandle{
				ID:       uuid.New(),
				Slot:     slot,
				Path:     path,
				Language: lang,
				Seq:      r.seq,
				ClosedAt: time.Now(),
			})
		} else {
			// The final partial chunk is discarded unless configured in.
			os.Remove(path)
		}
	}

	r.state = StateIdle
	r.mu.Unlock()

	r.logger.Info("Recording session stopped")
	r.report("Stopped.")
}

// Toggle starts a session when idle and stops it when recording. Rapid
// double-presses are safe: the machine state decides, not a flag.
func (r *Rotator) Toggle() error {
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()

	switch state {
	case StateRecording:
		r.Stop()
		return nil
	case StateStopping:
		return nil
	default:
		return r.Start()
	}
}

// loop runs the rotation timer until the session stops.
func (r *Rotator) loop(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.rotate()
		}
	}
}

// rotate closes the active slot, reopens capture on the other slot, and
// emits the closed chunk. A close failure skips the emit; a reopen
// failure leaves capture suspended and retried on the next tick. Either
// way the session stays nominally alive and a status message surfaces.
func (r *Rotator) rotate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		return
	}

	lang := r.lang.Get()

	if r.handle == nil {
		// A previous reopen failed; try to resume capture in place.
		handle, err := r.rec.Open(r.slotPath(r.active))
		if err != nil {
			r.rotationFailures++
			r.report(fmt.Sprintf("Swap error: %v", err))
			return
		}
		r.handle = handle
		r.report("Recording...")
		return
	}

	closedSlot := r.active
	closedPath := r.handle.Path()
	closeErr := r.handle.Close()
	r.handle = nil

	if closeErr != nil {
		r.rotationFailures++
		r.logger.Warn("Failed to close chunk recorder",
			slog.String("slot", closedSlot.String()),
			slog.String("error", closeErr.Error()),
		)
		r.report(fmt.Sprintf("Swap error: %v", closeErr))
	}

	// Reopen on the other slot first to keep the capture gap minimal.
	r.active = closedSlot.Other()
	handle, err := r.rec.Open(r.slotPath(r.active))
	if err != nil {
		r.rotationFailures++
		r.logger.Error("Failed to reopen recorder after rotation",
			slog.String("slot", r.active.String()),
			slog.String("error", err.Error()),
		)
		r.report(fmt.Sprintf("Swap error: %v", err))
	} else {
		r.handle = handle
	}

	if closeErr == nil {
		r.seq++
		r.chunksClosed++
		chunk := ChunkHandle{
			ID:       uuid.New(),
			Slot:     closedSlot,
			Path:     closedPath,
			Language: lang,
			Seq:      r.seq,
			ClosedAt: time.Now(),
		}

		r.logger.Debug("Chunk closed",
			slog.String("chunk_id", chunk.ID.String()),
			slog.String("slot", chunk.Slot.String()),
			slog.String("language", chunk.Language),
			slog.Uint64("seq", chunk.Seq),
		)

		r.sink.Submit(chunk)
	}
}

// State returns the current machine state.
func (r *Rotator) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ActiveSlot returns the slot currently being recorded into. Only
// meaningful while recording.
func (r *Rotator) ActiveSlot() Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Stats returns current rotator statistics
func (r *Rotator) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		State:            r.state.String(),
		ActiveSlot:       r.active.String(),
		ChunksClosed:     r.chunksClosed,
		RotationFailures: r.rotationFailures,
		StartedAt:        r.startedAt,
	}
}

// slotPath returns a fresh destination for the next recording on s. The
// caller holds r.mu. Paths are never reused across a process lifetime so
// an in-flight upload of an earlier chunk can never touch a live file.
func (r *Rotator) slotPath(s Slot) string {
	r.opens++
	return filepath.Join(r.chunkDir, fmt.Sprintf("chunk_%s_%06d.wav", s, r.opens))
}

func (r *Rotator) report(msg string) {
	if r.config.OnStatus != nil {
		r.config.OnStatus(msg)
	}
}
