// Package dispatch applies translation results to the client display
// state and routes synthesized audio to playback. Results are applied
// in completion order, and script detection picks a rendering face for
// non-Latin output.
package dispatch
