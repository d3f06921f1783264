package explore

import (
	"regexp"
	"strings"
)

var fenceLanguage = regexp.MustCompile(`^[A-Za-z0-9_+-]*$`)

// UnquoteResponse extracts the parameter string from a raw model answer.
// Anything before the first "fields=" is dropped, then code-fence markers
// and whitespace are stripped from both ends.
func UnquoteResponse(raw string) string {
	s := raw
	if i := strings.Index(s, "fields="); i >= 0 {
		s = s[i:]
	}

	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "`") {
		s = strings.TrimLeft(s, "`")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && fenceLanguage.MatchString(strings.TrimSpace(s[:nl])) {
			s = s[nl+1:]
		}
	}

	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "`")

	return strings.TrimSpace(s)
}

// CleanGenerated removes every code-fence marker from generated text
func CleanGenerated(raw string) string {
	s := strings.ReplaceAll(raw, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
