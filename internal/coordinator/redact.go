package coordinator

import "strings"

// RedactURL returns a redacted version of a URL for safe logging.
// Only shows the base path, hiding query parameters and fragments that may
// carry codes or state.
func RedactURL(url string) string {
	if url == "" {
		return ""
	}
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		return url[:i] + "?[REDACTED]"
	}
	return url
}

// RedactCode returns a redacted consent code for safe logging.
func RedactCode(code string) string {
	if len(code) <= 4 {
		return "[REDACTED]"
	}
	return code[:2] + "..." + code[len(code)-2:]
}
