package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var (
	uuidPattern  = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)
	tokenPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)
)

// ValidateIncidentID validates that an incident ID is a well formed UUID
func ValidateIncidentID(id string) error {
	if id == "" {
		return fmt.Errorf("incident ID is required")
	}
	if !uuidPattern.MatchString(strings.ToLower(id)) {
		return fmt.Errorf("invalid UUID format")
	}
	return nil
}

// GenerateToken returns 32 random bytes hex encoded
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// LooksLikeToken reports whether s has the shape of a token from GenerateToken
func LooksLikeToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// MaskToken keeps enough of a token to correlate log lines without leaking it
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:8] + "****"
}

// EscapeForLogging escapes sensitive content for safe logging
func EscapeForLogging(text string, maxLen int) string {
	if len(text) > maxLen {
		text = text[:maxLen] + "..."
	}

	text = strings.ReplaceAll(text, "\n", "\\n")
	text = strings.ReplaceAll(text, "\r", "\\r")
	text = strings.ReplaceAll(text, "\t", "\\t")

	return text
}
