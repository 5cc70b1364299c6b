// Package session implements the double-buffered chunk rotation that
// keeps microphone capture gap-free while closed chunks upload. It owns
// the two alternating recording slots, the rotation timer, and the
// process-wide source-language selection read at chunk close time.
package session
