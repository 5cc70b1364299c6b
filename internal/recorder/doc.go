// Package recorder wraps platform microphone capture behind a small
// open/close contract. The PortAudio implementation streams int16 mono
// samples into a WAV destination; the error types distinguish failures
// that abort a session from ones that cleanup must tolerate.
package recorder
