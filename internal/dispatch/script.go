package dispatch

// Script identifies the writing system of a piece of translated text.
// The client uses it to pick a display face capable of rendering the text.
type Script int

const (
	ScriptDefault Script = iota
	ScriptArabic
	ScriptDevanagari
	ScriptCJK
)

func (s Script) String() string {
	switch s {
	case ScriptArabic:
		return "arabic"
	case ScriptDevanagari:
		return "devanagari"
	case ScriptCJK:
		return "cjk"
	default:
		return "default"
	}
}

// DetectScript classifies text by scanning for the first rune that falls
// into a known non-Latin block. Mixed text is classified by whichever
// block is hit first, so a Latin prefix does not mask CJK content.
func DetectScript(text string) Script {
	for _, r := range text {
		switch {
		case r >= 0x0600 && r <= 0x06FF:
			return ScriptArabic
		case r >= 0x0900 && r <= 0x097F:
			return ScriptDevanagari
		case r >= 0xAC00 && r <= 0xD7AF:
			// Hangul renders with the same face as CJK here.
			return ScriptCJK
		case r >= 0x4E00 && r <= 0x9FFF:
			return ScriptCJK
		}
	}
	return ScriptDefault
}
