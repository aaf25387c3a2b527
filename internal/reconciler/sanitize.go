package reconciler

import (
	"regexp"
)

// maxErrorMessageLength caps errors copied into status fields.
const maxErrorMessageLength = 512

// ValidResourceTypes lists the resource types the manager accepts.
var ValidResourceTypes = []ResourceType{
	ResourceTypeDatabaseUpdate,
}

// IsValidResourceType reports whether s names a known resource type.
// Matching is case sensitive.
func IsValidResourceType(s string) bool {
	for _, rt := range ValidResourceTypes {
		if string(rt) == s {
			return true
		}
	}
	return false
}

var redactions = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`), "bearer [REDACTED]"},
	{regexp.MustCompile(`(?i)(password|passwd|secret|token|apikey|api_key)=\S+`), "$1=[REDACTED]"},
	{regexp.MustCompile(`(/(?:home|root|var|etc|tmp|opt|usr|srv)/)[^\s"']*`), "[PATH]"},
	{regexp.MustCompile(`[A-Za-z0-9+/]{40,}={0,2}`), "[REDACTED]"},
}

// SanitizeErrorMessage removes file paths and credentials from msg before it
// is stored in a status field or event, and truncates the result.
func SanitizeErrorMessage(msg string) string {
	for _, r := range redactions {
		msg = r.pattern.ReplaceAllString(msg, r.replacement)
	}
	if len(msg) > maxErrorMessageLength {
		msg = msg[:maxErrorMessageLength-3] + "..."
	}
	return msg
}
