package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChristopherHousholder/ShaTranZ/internal/session"
)

// Config contains upload worker configuration
type Config struct {
	ServerURL     string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int

	// KeepChunkFiles leaves chunk files on disk after a terminal outcome.
	// Useful for debugging; normally chunks are removed once uploaded.
	KeepChunkFiles bool
}

// Result is the terminal outcome of one chunk upload. Either Err is set,
// or Text and Audio carry the pipeline output. Results arrive in upload
// completion order, which may differ from recording order.
type Result struct {
	ChunkID  uuid.UUID
	Seq      uint64
	Language string
	Text     string
	Audio    []byte
	Err      error
}

// Stats represents worker statistics
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Retries   uint64 `json:"retries"`
}

// transcribeResponse mirrors the server's success body.
type transcribeResponse struct {
	TranslatedText string `json:"translated_text"`
	AudioBase64    string `json:"audio_base64"`
}

// errorResponse mirrors the server's failure body.
type errorResponse struct {
	Detail string `json:"detail"`
}

// Worker uploads closed chunks to the transcription server. Submit never
// blocks the caller: each chunk gets its own goroutine, capped by a
// semaphore, and every submission reaches a terminal Result on the
// results channel — success or error, never silence.
type Worker struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger

	results   chan Result
	semaphore chan struct{}
	wg        sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	submitted uint64
	succeeded uint64
	failed    uint64
	retries   uint64
}

// NewWorker creates an upload worker.
func NewWorker(config Config, logger *slog.Logger) (*Worker, error) {
	if config.ServerURL == "" {
		return nil, fmt.Errorf("server URL cannot be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	return &Worker{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:    logger,
		results:   make(chan Result, 16),
		semaphore: make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Results returns the UI-bound queue of terminal upload outcomes. Drained
// by a single consumer (the dispatcher).
func (w *Worker) Results() <-chan Result {
	return w.results
}

// Submit hands a closed chunk to a background upload and returns
// immediately. Implements session.ChunkSink. Submissions arriving after
// Close are dropped.
func (w *Worker) Submit(chunk session.ChunkHandle) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("Chunk submitted after shutdown, dropping",
			slog.String("chunk_id", chunk.ID.String()),
			slog.String("path", chunk.Path),
		)
		return
	}
	w.submitted++
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()

		w.semaphore <- struct{}{}
		defer func() { <-w.semaphore }()

		result := w.upload(chunk)

		if !w.config.KeepChunkFiles {
			if err := os.Remove(chunk.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				w.logger.Warn("Failed to remove uploaded chunk file",
					slog.String("path", chunk.Path),
					slog.String("error", err.Error()),
				)
			}
		}

		w.mu.Lock()
		if result.Err != nil {
			w.failed++
		} else {
			w.succeeded++
		}
		w.mu.Unlock()

		w.results <- result
	}()
}

// Close waits for in-flight uploads to finish and closes the results
// channel. Later Submit calls are dropped rather than racing the close.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.wg.Wait()
	close(w.results)
}

// Stats returns current worker statistics
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Submitted: w.submitted,
		Succeeded: w.succeeded,
		Failed:    w.failed,
		Retries:   w.retries,
	}
}

// upload performs one chunk upload with bounded retries and always
// returns a terminal result.
func (w *Worker) upload(chunk session.ChunkHandle) Result {
	result := Result{
		ChunkID:  chunk.ID,
		Seq:      chunk.Seq,
		Language: chunk.Language,
	}

	audio, err := os.ReadFile(chunk.Path)
	if err != nil {
		result.Err = fmt.Errorf("failed to read chunk file: %w", err)
		return result
	}

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(w.config.MaxRetries+1)*w.config.Timeout+30*time.Second)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			w.mu.Lock()
			w.retries++
			w.mu.Unlock()

			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				result.Err = ctx.Err()
				return result
			}
		}

		text, audioOut, err := w.doRequest(ctx, chunk, audio)
		if err == nil {
			result.Text = text
			result.Audio = audioOut
			w.logger.Debug("Chunk upload complete",
				slog.String("chunk_id", chunk.ID.String()),
				slog.Uint64("seq", chunk.Seq),
				slog.Int("audio_bytes", len(audioOut)),
			)
			return result
		}

		lastErr = err
		if !isRetryable(err) {
			break
		}
	}

	result.Err = fmt.Errorf("upload failed: %w", lastErr)
	return result
}

// doRequest performs a single multipart POST to /transcribe/.
func (w *Worker) doRequest(ctx context.Context, chunk session.ChunkHandle, audio []byte) (string, []byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	filename := filepath.Base(chunk.Path)
	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(audio); err != nil {
		return "", nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.WriteField("language", chunk.Language); err != nil {
		return "", nil, fmt.Errorf("failed to write language field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := strings.TrimRight(w.config.ServerURL, "/") + "/transcribe/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Detail != "" {
			return "", nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, errResp.Detail)
		}
		return "", nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	var okResp transcribeResponse
	if err := json.Unmarshal(body, &okResp); err != nil {
		return "", nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	var audioOut []byte
	if okResp.AudioBase64 != "" {
		audioOut, err = base64.StdEncoding.DecodeString(okResp.AudioBase64)
		if err != nil {
			return "", nil, fmt.Errorf("failed to decode audio payload: %w", err)
		}
	}

	return okResp.TranslatedText, audioOut, nil
}

// isRetryable reports whether an upload error is worth another attempt.
// Server errors and transport failures are; client errors are not.
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := err.Error()
	if strings.Contains(msg, "HTTP error 5") || strings.Contains(msg, "HTTP error 429") {
		return true
	}
	if strings.Contains(msg, "connection") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "refused") {
		return true
	}

	return false
}
