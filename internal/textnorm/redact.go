package textnorm

import (
	"fmt"
	"regexp"
)

const redactedPlaceholder = "[REDACTED]"

// Redactor masks caption fragments matching configured patterns.
// The zero value redacts nothing.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor compiles patterns. Returns an error naming the first invalid one.
func NewRedactor(patterns []string) (*Redactor, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &Redactor{patterns: compiled}, nil
}

// Apply replaces every match with [REDACTED].
func (r *Redactor) Apply(text string) string {
	if r == nil {
		return text
	}
	for _, re := range r.patterns {
		text = re.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}
