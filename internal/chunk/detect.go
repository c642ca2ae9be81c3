package chunk

import (
	"bytes"
	"path/filepath"
	"strings"
)

// DetectLanguage resolves a language tag from the file extension, then
// from the content for files whose extension says nothing.
func DetectLanguage(path string, content []byte) string {
	if lang := ExtensionLanguage(filepath.Ext(path)); lang != "" {
		return lang
	}
	if lang := sniff(content); lang != "" {
		return lang
	}
	return LanguageText
}

var shebangs = []struct {
	interpreter string
	language    string
}{
	{"python", "python"},
	{"node", "javascript"},
	{"deno", "typescript"},
	{"ts-node", "typescript"},
}

// sniff looks at the shebang and the first non-blank lines.
func sniff(content []byte) string {
	head := content
	if len(head) > 4096 {
		head = head[:4096]
	}
	first, _, _ := bytes.Cut(head, []byte("\n"))
	if bytes.HasPrefix(first, []byte("#!")) {
		line := string(first)
		for _, sb := range shebangs {
			if strings.Contains(line, sb.interpreter) {
				return sb.language
			}
		}
		return ""
	}

	text := string(head)
	switch {
	case strings.HasPrefix(strings.TrimSpace(text), "package ") && strings.Contains(text, "\nfunc "):
		return "go"
	case strings.Contains(text, "\nfn ") || strings.HasPrefix(text, "fn ") || strings.Contains(text, "\nuse std::"):
		return "rust"
	case strings.Contains(text, "\ndef ") && strings.Contains(text, "):\n"):
		return "python"
	}
	return ""
}
