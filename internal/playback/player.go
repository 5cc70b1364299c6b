package playback

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/youpy/go-wav"
)

const framesPerBuffer = 1024

// maxPlayDuration caps a single playback so a malformed WAV cannot
// wedge the player.
const maxPlayDuration = 60 * time.Second

// WAVPlayer speaks in-memory WAV payloads through the default output
// device. Playbacks are serialized; a new payload waits for the
// previous one to finish.
type WAVPlayer struct {
	logger *slog.Logger
	mu     sync.Mutex
}

// NewWAVPlayer initializes PortAudio for output. Callers must Close
// the player to release the audio subsystem.
func NewWAVPlayer(logger *slog.Logger) (*WAVPlayer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &WAVPlayer{logger: logger}, nil
}

// Close releases the audio subsystem.
func (p *WAVPlayer) Close() error {
	return portaudio.Terminate()
}

// Play decodes the WAV payload and streams it to the output device,
// blocking until playback completes.
func (p *WAVPlayer) Play(audio []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	reader := wav.NewReader(bytes.NewReader(audio))
	format, err := reader.Format()
	if err != nil {
		return fmt.Errorf("failed to parse WAV payload: %w", err)
	}

	done := make(chan struct{})
	var once sync.Once

	stream, err := portaudio.OpenDefaultStream(
		0,
		int(format.NumChannels),
		float64(format.SampleRate),
		framesPerBuffer,
		func(out []int16) {
			samples, err := reader.ReadSamples(uint32(len(out)))
			if err == io.EOF {
				for i := range out {
					out[i] = 0
				}
				once.Do(func() { close(done) })
				return
			}
			if err != nil {
				p.logger.Error("Error reading WAV samples", slog.String("error", err.Error()))
				once.Do(func() { close(done) })
				return
			}

			for i := 0; i < len(samples) && i < len(out); i++ {
				out[i] = int16(samples[i].Values[0])
			}
			for i := len(samples); i < len(out); i++ {
				out[i] = 0
			}
		},
	)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	select {
	case <-done:
	case <-time.After(maxPlayDuration):
		p.logger.Warn("Playback exceeded maximum duration, stopping")
	}

	return stream.Stop()
}
