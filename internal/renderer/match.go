package renderer

import (
	"path/filepath"
	"strings"
)

// Matcher decides enablement from language tags and filename extensions. It is
// the common IsEnabled implementation of the built-in renderers.
type Matcher struct {
	languages  map[string]struct{}
	extensions map[string]struct{}
}

// NewMatcher builds a matcher. Languages are case-folded; extensions are
// lower-cased and may be given with or without the leading dot.
func NewMatcher(languages, extensions []string) Matcher {
	m := Matcher{
		languages:  make(map[string]struct{}, len(languages)),
		extensions: make(map[string]struct{}, len(extensions)),
	}
	for _, l := range languages {
		if l = strings.TrimSpace(l); l != "" {
			m.languages[NormalizeLanguage(l)] = struct{}{}
		}
	}
	for _, e := range extensions {
		if e = normalizeExt(e); e != "" {
			m.extensions[e] = struct{}{}
		}
	}
	return m
}

// Match reports whether the language or the filename's extension is accepted.
func (m Matcher) Match(filename, language string) bool {
	if language != "" {
		if _, ok := m.languages[NormalizeLanguage(language)]; ok {
			return true
		}
	}
	if filename != "" {
		if _, ok := m.extensions[normalizeExt(filepath.Ext(filename))]; ok {
			return true
		}
	}
	return false
}

// Empty reports whether the matcher can never match.
func (m Matcher) Empty() bool {
	return len(m.languages) == 0 && len(m.extensions) == 0
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
