// Package status scrubs runtime and storage error text before it leaves the
// orchestrator through the API.
package status

import (
	"regexp"
	"sync"
)

// Sanitizer redacts credentials and host internals from messages
type Sanitizer struct {
	mu       sync.RWMutex
	patterns []*sensitivePattern
}

type sensitivePattern struct {
	pattern     *regexp.Regexp
	replacement string
	description string
}

// NewSanitizer creates a sanitizer with the default patterns
func NewSanitizer() *Sanitizer {
	return &Sanitizer{patterns: defaultPatterns()}
}

func defaultPatterns() []*sensitivePattern {
	return []*sensitivePattern{
		// go-sql-driver DSN, e.g. user:pass@tcp(host:3306)/db
		{
			pattern:     regexp.MustCompile(`[^\s:/@]+:[^\s@]*@tcp\([^)]*\)/[^\s?]*`),
			replacement: "[dsn]",
			description: "database DSN",
		},
		// registry or endpoint URLs with embedded credentials
		{
			pattern:     regexp.MustCompile(`(https?|redis|s3)://[^\s:/@]+:[^\s@]+@[^\s/]+`),
			replacement: "[url-with-credentials]",
			description: "URL with credentials",
		},
		{
			pattern:     regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]+`),
			replacement: "Bearer [redacted]",
			description: "bearer token",
		},
		{
			pattern:     regexp.MustCompile(`\b(AKIA|ASIA)[A-Z0-9]{16}\b`),
			replacement: "[aws-access-key]",
			description: "AWS access key id",
		},
		{
			pattern:     regexp.MustCompile(`\b\d{12}\.dkr\.ecr\.[a-z0-9-]+\.amazonaws\.com\b`),
			replacement: "[aws-ecr-registry]",
			description: "AWS ECR registry",
		},
		// full docker object ids; short names stay readable
		{
			pattern:     regexp.MustCompile(`\b[a-f0-9]{64}\b`),
			replacement: "[object-id]",
			description: "docker object id",
		},
		{
			pattern:     regexp.MustCompile(`\b(10|127)\.\d{1,3}\.\d{1,3}\.\d{1,3}(:\d+)?\b|\b172\.(1[6-9]|2\d|3[01])\.\d{1,3}\.\d{1,3}(:\d+)?\b|\b192\.168\.\d{1,3}\.\d{1,3}(:\d+)?\b`),
			replacement: "[internal-ip]",
			description: "private address",
		},
		{
			pattern:     regexp.MustCompile(`unix://[^\s]+|/var/run/docker\.sock`),
			replacement: "[docker-socket]",
			description: "docker socket path",
		},
	}
}

// Redact removes sensitive information from message
func (s *Sanitizer) Redact(message string) string {
	if message == "" {
		return message
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := message
	for _, sp := range s.patterns {
		result = sp.pattern.ReplaceAllString(result, sp.replacement)
	}
	return result
}

// AddPattern registers an extra redaction
func (s *Sanitizer) AddPattern(pattern *regexp.Regexp, replacement, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = append(s.patterns, &sensitivePattern{
		pattern:     pattern,
		replacement: replacement,
		description: description,
	})
}

var defaultSanitizer = NewSanitizer()

// Redact uses the package sanitizer
func Redact(message string) string {
	return defaultSanitizer.Redact(message)
}
