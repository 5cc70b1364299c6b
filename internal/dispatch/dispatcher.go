package dispatch

import (
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/ChristopherHousholder/ShaTranZ/internal/upload"
)

// minPlayableRunes is the shortest translation worth speaking aloud.
// Anything shorter is noise the pipeline already flagged.
const minPlayableRunes = 5

// noSpeechMarker appears in the server's sentinel response for chunks
// that contained no usable speech.
const noSpeechMarker = "no meaningful speech"

// Player speaks a synthesized WAV payload. Play may block until
// playback finishes; the dispatcher keeps it off the drain loop and the
// player is expected to serialize overlapping calls.
type Player interface {
	Play(audio []byte) error
}

// DisplayState is the latest text the user should see. Results are
// applied in the order they complete, so a slow chunk that finishes
// after a newer one overwrites it.
type DisplayState struct {
	Text   string
	Script Script
	Status string
}

// Stats counts dispatcher activity for the /stats surface.
type Stats struct {
	Applied      uint64 `json:"applied"`
	Played       uint64 `json:"played"`
	PlayFailures uint64 `json:"play_failures"`
	Errors       uint64 `json:"errors"`
}

// Dispatcher drains upload results onto the display state and hands
// playable audio to the player. A single goroutine owns the drain loop.
type Dispatcher struct {
	player   Player
	onChange func(DisplayState)
	logger   *slog.Logger

	mu    sync.RWMutex
	state DisplayState
	stats Stats

	playWG sync.WaitGroup
	done   chan struct{}
}

// NewDispatcher builds a dispatcher. player may be nil when playback is
// disabled; onChange may be nil when nothing renders the state.
func NewDispatcher(player Player, onChange func(DisplayState), logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		player:   player,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Run drains results until the channel closes. It is intended to be run
// as a goroutine; Wait blocks until it returns.
func (d *Dispatcher) Run(results <-chan upload.Result) {
	defer close(d.done)
	for result := range results {
		d.apply(result)
	}
}

// Wait blocks until Run has finished draining and any in-flight
// playback has completed.
func (d *Dispatcher) Wait() {
	<-d.done
	d.playWG.Wait()
}

// State returns the current display state.
func (d *Dispatcher) State() DisplayState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Stats returns a snapshot of dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats
}

func (d *Dispatcher) apply(result upload.Result) {
	var next DisplayState

	if result.Err != nil {
		next = DisplayState{
			Text:   "Upload error: " + result.Err.Error(),
			Script: ScriptDefault,
			Status: "error",
		}
		d.logger.Warn("Chunk failed",
			slog.Uint64("seq", result.Seq),
			slog.String("error", result.Err.Error()))
	} else {
		next = DisplayState{
			Text:   result.Text,
			Script: DetectScript(result.Text),
			Status: "ok",
		}
		d.logger.Info("Translation received",
			slog.Uint64("seq", result.Seq),
			slog.String("script", next.Script.String()),
			slog.Int("audio_bytes", len(result.Audio)))
	}

	d.mu.Lock()
	d.state = next
	d.stats.Applied++
	if result.Err != nil {
		d.stats.Errors++
	}
	playable := result.Err == nil && d.shouldPlay(result)
	if playable {
		d.stats.Played++
	}
	d.mu.Unlock()

	if d.onChange != nil {
		d.onChange(next)
	}

	// Playback runs off the drain loop: a chunk of speech can take
	// longer to play than the next result takes to arrive, and the
	// display must keep up regardless. The player serializes overlapping
	// calls itself.
	if playable {
		d.playWG.Add(1)
		go func(audio []byte) {
			defer d.playWG.Done()
			if err := d.player.Play(audio); err != nil {
				d.logger.Warn("Playback failed", slog.String("error", err.Error()))
				d.mu.Lock()
				d.stats.Played--
				d.stats.PlayFailures++
				d.mu.Unlock()
			}
		}(result.Audio)
	}
}

func (d *Dispatcher) shouldPlay(result upload.Result) bool {
	if d.player == nil || len(result.Audio) == 0 {
		return false
	}
	if utf8.RuneCountInString(result.Text) < minPlayableRunes {
		return false
	}
	return !strings.Contains(result.Text, noSpeechMarker)
}
