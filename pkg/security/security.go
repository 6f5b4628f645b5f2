// Package security provides validation, sanitization, and limits for the confinity package.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/confinity/pkg/core"
)

// Security limits and configuration
const (
	// MaxTargetNameLength is the maximum length for target names
	MaxTargetNameLength = 255

	// MaxEncodedPayloadLength is the largest base64 payload accepted as a
	// process argument. Linux caps a single argv string at 128KiB including
	// its terminating NUL.
	MaxEncodedPayloadLength = 128<<10 - 1

	// MaxResultOutputSize bounds how much child stdout the parent buffers (8MB)
	MaxResultOutputSize = 8 << 20

	// MaxParallel is the hard limit for concurrently running child processes
	MaxParallel = 256

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096
)

// validTargetName matches alphanumeric, hyphens, underscores, and dots
var validTargetName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// ValidateTargetName validates a target name
func ValidateTargetName(name string) error {
	if name == "" {
		return core.ErrInvalidTargetName
	}
	if len(name) > MaxTargetNameLength {
		return core.ErrTargetNameTooLong
	}
	if !validTargetName.MatchString(name) {
		return core.ErrInvalidTargetName
	}
	return nil
}

// ValidatePayloadLength rejects encoded payloads that cannot be passed as a
// single process argument.
func ValidatePayloadLength(encoded string) error {
	if len(encoded) > MaxEncodedPayloadLength {
		return core.ErrPayloadTooLarge
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampParallel ensures the child process limit is within bounds
func ClampParallel(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxParallel {
		return MaxParallel
	}
	return n
}
