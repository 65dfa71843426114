package renderer

import (
	"regexp"

	"git.home.luguber.info/inful/omnipreview/internal/foundation/normalization"
)

// scopeLanguageRE captures the first token of an editor scope name when it is
// followed by whitespace, e.g. "text.html.markdown meta.paragraph".
var scopeLanguageRE = regexp.MustCompile(`^(\S+)\s`)

// LanguageFromScope extracts the language tag from an editor scope name. A
// scope without a whitespace-terminated first token yields "".
func LanguageFromScope(scope string) string {
	m := scopeLanguageRE.FindStringSubmatch(scope)
	if m == nil {
		return ""
	}
	return NormalizeLanguage(m[1])
}

// NormalizeLanguage trims and case-folds a language tag.
func NormalizeLanguage(lang string) string {
	return normalization.Clean(lang)
}
