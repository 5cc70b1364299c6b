// Package server exposes the HTTP API: chunk translation, health and
// statistics endpoints, Prometheus metrics, and an optional WebSocket
// feed of translated text.
package server
