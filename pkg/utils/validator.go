package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.\-]*$`)
	controlRegex    = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// MaxIdentifierLength bounds workflow, state and event names
const MaxIdentifierLength = 128

// ValidateIdentifier checks a workflow, state or event name
func ValidateIdentifier(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s must not be empty", kind)
	}
	if len(name) > MaxIdentifierLength {
		return fmt.Errorf("%s %q exceeds %d characters", kind, name, MaxIdentifierLength)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("invalid %s %q: use letters, digits, '_', '-' or '.'", kind, name)
	}
	return nil
}

// SanitizeString removes control characters and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlRegex.ReplaceAllString(s, ""))
}
