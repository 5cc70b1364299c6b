package recorder

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// PortAudioRecorder captures int16 mono audio from the default input
// device and streams it to a WAV file.
type PortAudioRecorder struct {
	sampleRate int
	logger     *slog.Logger
}

// NewPortAudioRecorder initializes PortAudio and returns a recorder bound
// to the default input device. Call Close when the recorder is no longer
// needed.
func NewPortAudioRecorder(sampleRate int, logger *slog.Logger) (*PortAudioRecorder, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &InitError{Cause: fmt.Errorf("failed to initialize PortAudio: %w", err)}
	}

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, &InitError{Cause: fmt.Errorf("no default input device: %w", err)}
	}

	logger.Info("Using default audio device",
		slog.String("device_name", device.Name),
		slog.Int("sample_rate", sampleRate),
		slog.Int("input_channels", device.MaxInputChannels),
	)

	return &PortAudioRecorder{
		sampleRate: sampleRate,
		logger:     logger,
	}, nil
}

// Open begins capture into the given WAV destination.
func (r *PortAudioRecorder) Open(destination string) (Handle, error) {
	file, err := os.Create(destination)
	if err != nil {
		return nil, &InitError{Cause: fmt.Errorf("failed to create destination %s: %w", destination, err)}
	}

	if err := WriteWAVHeader(file, r.sampleRate, 0); err != nil {
		file.Close()
		os.Remove(destination)
		return nil, &InitError{Cause: fmt.Errorf("failed to write WAV header: %w", err)}
	}

	h := &portAudioHandle{
		path:   destination,
		file:   file,
		logger: r.logger,
	}

	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(r.sampleRate), framesPerBuffer, h.capture)
	if err != nil {
		file.Close()
		os.Remove(destination)
		return nil, &InitError{Cause: fmt.Errorf("failed to open audio stream: %w", err)}
	}
	h.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		file.Close()
		os.Remove(destination)
		return nil, &InitError{Cause: fmt.Errorf("failed to start audio stream: %w", err)}
	}

	return h, nil
}

// Close releases PortAudio. Open handles must be closed first.
func (r *PortAudioRecorder) Close() error {
	return portaudio.Terminate()
}

type portAudioHandle struct {
	path   string
	stream *portaudio.Stream
	logger *slog.Logger

	mu       sync.Mutex
	file     *os.File
	dataSize uint32
	closed   bool
}

func (h *portAudioHandle) Path() string {
	return h.path
}

func (h *portAudioHandle) capture(in []int16) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.file == nil {
		return
	}

	if err := binary.Write(h.file, binary.LittleEndian, in); err != nil {
		h.logger.Error("Failed to write audio samples", slog.String("error", err.Error()))
		return
	}
	h.dataSize += uint32(len(in) * 2)
}

func (h *portAudioHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return &StopError{Cause: fmt.Errorf("recording already released")}
	}
	h.closed = true
	h.mu.Unlock()

	var firstErr error
	if err := h.stream.Stop(); err != nil {
		firstErr = fmt.Errorf("failed to stop audio stream: %w", err)
	}
	if err := h.stream.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close audio stream: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := UpdateWAVHeader(h.file, h.dataSize); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := h.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close destination: %w", err)
	}
	h.file = nil

	if firstErr != nil {
		return &StopError{Cause: firstErr}
	}
	return nil
}
