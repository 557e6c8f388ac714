package utils

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// FormatDuration formats a duration the way SRE reports show it
// Examples: "45s", "12m", "1.5h"
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()
	if seconds < 60 {
		return fmt.Sprintf("%ds", int(math.Round(seconds)))
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm", int(math.Round(seconds/60)))
	}
	return fmt.Sprintf("%.1fh", seconds/3600)
}

// TruncateText truncates text to maxLen characters, adding "..." if truncated
// Also removes newlines for single-line display
func TruncateText(text string, maxLen int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.TrimSpace(text)

	if len(text) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return "..."
	}
	return text[:maxLen-3] + "..."
}

// LocalPart returns the part of an email address before the @
func LocalPart(email string) string {
	if idx := strings.Index(email, "@"); idx > 0 {
		return email[:idx]
	}
	return email
}
