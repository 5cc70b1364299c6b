package pipeline

import (
	"strings"
	"unicode/utf8"
)

// Sentinel replaces transcriptions too short to be real speech. The
// client recognizes it and suppresses playback.
const Sentinel = "(no meaningful speech detected)"

// minMeaningfulRunes is the shortest trimmed transcription treated as
// actual speech. Whisper emits stray punctuation or a lone syllable
// for silent chunks.
const minMeaningfulRunes = 5

// Sanitize normalizes a raw transcription. Whitespace is trimmed, and
// anything shorter than minMeaningfulRunes collapses to the Sentinel.
// The Sentinel itself passes through unchanged.
func Sanitize(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == Sentinel {
		return Sentinel
	}
	if utf8.RuneCountInString(trimmed) < minMeaningfulRunes {
		return Sentinel
	}
	return trimmed
}
