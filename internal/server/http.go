package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ChristopherHousholder/ShaTranZ/internal/config"
	"github.com/ChristopherHousholder/ShaTranZ/internal/metrics"
	"github.com/ChristopherHousholder/ShaTranZ/internal/pipeline"
)

// transcribeResponse is the success payload for POST /transcribe/.
type transcribeResponse struct {
	TranslatedText string `json:"translated_text"`
	AudioBase64    string `json:"audio_base64"`
}

// errorResponse is the payload for every error status.
type errorResponse struct {
	Detail string `json:"detail"`
}

// HTTPServer serves the transcription API plus monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.ServerConfig
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
	hub      *Hub

	// Server state
	startTime time.Time
	requests  atomic.Uint64
	failures  atomic.Uint64
}

// NewHTTPServer creates the API server. hub may be nil when the
// WebSocket surface is disabled.
func NewHTTPServer(cfg *config.ServerConfig, logger *slog.Logger,
	p *pipeline.Pipeline, m *metrics.Metrics, hub *Hub) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		pipeline:  p,
		metrics:   m,
		hub:       hub,
		startTime: time.Now(),
	}

	router := mux.NewRouter()
	h.setupRoutes(router)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port),
		Handler:      router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures the API routes
func (h *HTTPServer) setupRoutes(router *mux.Router) {
	router.HandleFunc("/transcribe/", h.withMetrics("/transcribe/", h.handleTranscribe)).Methods(http.MethodPost)
	router.HandleFunc("/health", h.withMetrics("/health", h.handleHealth)).Methods(http.MethodGet)
	router.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats)).Methods(http.MethodGet)
	router.HandleFunc("/config", h.withMetrics("/config", h.handleConfig)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/", h.withMetrics("/", h.handleRoot)).Methods(http.MethodGet)

	if h.hub != nil {
		router.HandleFunc("/ws", h.hub.handleSubscribe)
	}
}

// withMetrics wraps a handler with request metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		if h.metrics != nil {
			h.metrics.RecordHTTPRequest(r.Method, endpoint,
				fmt.Sprintf("%d", ww.statusCode), time.Since(startTime).Seconds())
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")
	if h.hub != nil {
		h.hub.Close()
	}
	return h.server.Shutdown(ctx)
}

// handleTranscribe implements POST /transcribe/
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	h.requests.Add(1)
	if h.metrics != nil {
		h.metrics.RecordRequest()
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds limit of %d bytes", h.config.MaxUploadBytes))
			return
		}
		h.writeError(w, http.StatusBadRequest, "missing file field in multipart form")
		return
	}
	defer file.Close()

	language := r.FormValue("language")
	if language == "" {
		language = "en"
	}

	if h.metrics != nil && header.Size > 0 {
		h.metrics.RecordUploadSize(header.Size)
	}
	h.logger.Info("Received chunk",
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size),
		slog.String("language", language))

	result, err := h.pipeline.Process(r.Context(), header.Filename, language, file)
	if err != nil {
		h.failures.Add(1)
		if h.metrics != nil {
			h.metrics.TranscriptionFailures.Inc()
		}
		h.logger.Error("Pipeline failed",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(result.TranslatedText)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transcribeResponse{
		TranslatedText: result.TranslatedText,
		AudioBase64:    base64.StdEncoding.EncodeToString(result.Audio),
	})
}

func (h *HTTPServer) writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Detail: detail})
}

// handleHealth implements GET /health
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "shatranz",
			"backend": h.config.Backend,
			"tts":     h.config.TTS,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStats implements GET /stats
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"requests":  h.requests.Load(),
		"failures":  h.failures.Load(),
	}
	if h.hub != nil {
		stats["websocket_subscribers"] = h.hub.SubscriberCount()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleConfig implements GET /config
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	// Sanitized view; API keys never appear here.
	sanitized := map[string]interface{}{
		"bind_address":      h.config.BindAddress,
		"port":              h.config.Port,
		"max_upload_bytes":  h.config.MaxUploadBytes,
		"backend":           h.config.Backend,
		"tts":               h.config.TTS,
		"websocket_enabled": h.config.WebsocketEnabled,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitized)
}

// handleRoot implements GET / with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "ShaTranZ Translation Service",
		"endpoints": map[string]interface{}{
			"POST /transcribe/": "Translate an audio chunk (multipart: file, language)",
			"GET /health":       "Service health check",
			"GET /stats":        "Request statistics",
			"GET /config":       "Sanitized service configuration",
			"GET /metrics":      "Prometheus metrics",
			"GET /ws":           "WebSocket feed of translated text",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
