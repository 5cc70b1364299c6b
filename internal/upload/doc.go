// Package upload ships closed audio chunks to the transcription server.
// Each submission runs in its own goroutine so the rotation timer never
// blocks on network I/O; outcomes are delivered on a single results
// channel in completion order.
package upload
