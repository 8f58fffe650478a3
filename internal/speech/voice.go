package speech

import (
	"strings"

	"golang.org/x/text/language"
)

// Gender hints. They come from a substring match on the voice name and are
// not authoritative.
const (
	GenderFemale = "female"
	GenderMale   = "male"
)

// Voice describes a speech profile exposed by a backend.
type Voice struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Languages []string `json:"languages"`
	Gender    string   `json:"gender"`
}

// NewVoice builds a Voice, normalizing languages and filling in the gender
// hint from the name.
func NewVoice(id, name string, languages ...string) Voice {
	return Voice{
		ID:        id,
		Name:      name,
		Languages: NormalizeLanguages(languages),
		Gender:    GenderHint(name),
	}
}

// GenderHint guesses a gender from a free-text voice name. Callers must treat
// the result as a best-effort label only.
func GenderHint(name string) string {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "female") || strings.Contains(lower, "zira") {
		return GenderFemale
	}
	return GenderMale
}

// NormalizeLanguages converts engine language codes such as "en_US" or
// "en-us" into BCP 47 tags ("en-US"). Codes that do not parse are kept as-is.
// Duplicates and blanks are dropped. The result is never nil.
func NormalizeLanguages(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		normalized := code
		if tag, err := language.Parse(strings.ReplaceAll(code, "_", "-")); err == nil {
			normalized = tag.String()
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out
}

// matchesPreferred reports whether the voice name contains any of the
// preferred substrings (case-insensitive).
func matchesPreferred(v Voice, preferred []string) bool {
	lower := strings.ToLower(v.Name)
	for _, p := range preferred {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
