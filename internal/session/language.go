package session

import (
	"fmt"
	"sync"

	"github.com/ChristopherHousholder/ShaTranZ/internal/config"
)

// DefaultLanguage is the source language assumed until one is chosen.
const DefaultLanguage = "en"

// LanguageSelection is the process-wide source-language cell. The UI
// writes it, the rotator reads it at chunk close time; a mid-session
// change only affects chunks closed after the change. Last write wins.
type LanguageSelection struct {
	mu   sync.RWMutex
	code string
}

// NewLanguageSelection returns a selection initialized to DefaultLanguage.
func NewLanguageSelection() *LanguageSelection {
	return &LanguageSelection{code: DefaultLanguage}
}

// Set changes the current source language. The code must be a 2-letter
// lowercase ISO 639-1 code.
func (l *LanguageSelection) Set(code string) error {
	if !config.IsLanguageCode(code) {
		return fmt.Errorf("invalid language code '%s'", code)
	}

	l.mu.Lock()
	l.code = code
	l.mu.Unlock()
	return nil
}

// Get returns the currently selected source language.
func (l *LanguageSelection) Get() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.code
}
