package markdown

import (
	"errors"
	"strings"

	"gopkg.in/yaml.v3"
)

var errUnclosedFrontMatter = errors.New("front matter start delimiter without closing delimiter")

// splitFrontMatter separates a leading `---` delimited YAML block from the
// Markdown body. ok is false when the text has no front matter.
func splitFrontMatter(text string) (meta map[string]any, body string, ok bool, err error) {
	nl := "\n"
	if i := strings.IndexByte(text, '\n'); i > 0 && text[i-1] == '\r' {
		nl = "\r\n"
	}

	open := "---" + nl
	if !strings.HasPrefix(text, open) {
		return nil, text, false, nil
	}
	rest := text[len(open):]

	var raw string
	if strings.HasPrefix(rest, open) {
		body = rest[len(open):]
	} else {
		idx := strings.Index(rest, nl+"---"+nl)
		if idx < 0 {
			if !strings.HasSuffix(rest, nl+"---") {
				return nil, text, false, errUnclosedFrontMatter
			}
			idx = len(rest) - len(nl+"---")
			raw, body = rest[:idx], ""
		} else {
			raw, body = rest[:idx+len(nl)], rest[idx+len(nl+"---"+nl):]
		}
	}

	meta = map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := yaml.Unmarshal([]byte(raw), &meta); err != nil {
			return nil, text, false, err
		}
		if meta == nil {
			meta = map[string]any{}
		}
	}
	return meta, body, true, nil
}
