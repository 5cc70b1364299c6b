// Package playback plays synthesized WAV audio on the client's default
// output device via PortAudio.
package playback
