// Package speech detects the language of an answer and turns it into audio.
package speech

import "strings"

// Language is one of the codes speech synthesis accepts.
type Language string

const (
	English Language = "en"
	Arabic  Language = "ar"
	Urdu    Language = "ur"
)

// DefaultLanguage is used whenever a code falls outside the supported set.
const DefaultLanguage = English

// Supported clamps code to the supported set.
func Supported(code string) Language {
	switch Language(strings.ToLower(strings.TrimSpace(code))) {
	case English:
		return English
	case Arabic:
		return Arabic
	case Urdu:
		return Urdu
	default:
		return DefaultLanguage
	}
}
