package logger

import (
	"net/url"
	"regexp"
	"strings"
)

// SensitiveDataPatterns contains regex patterns for sensitive data that should be redacted in logs
var SensitiveDataPatterns = []*regexp.Regexp{
	// API keys, tokens and secrets
	regexp.MustCompile(`(?i)((api|access|auth|token|secret|key|passw(or)?d)[0-9a-z\-_\.]*[\s:=]+)([^;,\s&]{5,})`),
}

// RedactSensitiveData replaces sensitive information with "[REDACTED]"
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}

	for _, pattern := range SensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "$1[REDACTED]")
	}

	return input
}

// RedactDestination hides user info and secret query values in an output
// destination before it is logged. Plain file paths pass through unchanged.
func RedactDestination(dest string) string {
	if !strings.Contains(dest, "://") {
		return dest
	}

	u, err := url.Parse(dest)
	if err != nil {
		return RedactSensitiveData(dest)
	}
	if u.User != nil {
		u.User = url.User("[REDACTED]")
	}
	if u.RawQuery != "" {
		u.RawQuery = RedactSensitiveData(u.RawQuery)
	}
	return u.String()
}
