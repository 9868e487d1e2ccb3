package middleware

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

// ValidateSourceName checks the source name against the expected format
func ValidateSourceName(name string) error {
	if name == "" {
		return fmt.Errorf("source name cannot be empty")
	}

	pattern := `^[a-z][a-z0-9_-]{0,63}$`
	matched, _ := regexp.MatchString(pattern, name)
	if !matched {
		return fmt.Errorf("invalid source name format (lowercase alphanumeric, dash, underscore, max 64 chars)")
	}
	return nil
}

// ValidateFeedURL validates configured feed URLs
func ValidateFeedURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (allowed: http, https)", u.Scheme)
	}

	if u.Hostname() == "" {
		return fmt.Errorf("URL has no host")
	}

	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateWindowHours validates the lookback window for a digest run
func ValidateWindowHours(hours int) (int, error) {
	if hours == 0 {
		return 24, nil // default
	}
	if hours < 1 || hours > 168 {
		return 0, fmt.Errorf("window hours must be between 1 and 168")
	}
	return hours, nil
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidateDays validates days parameter
func ValidateDays(days int) int {
	if days <= 0 {
		return 7 // default
	}
	if days > 365 {
		return 365 // max 1 year
	}
	return days
}

// ValidateHours validates hours-back parameter for error summaries
func ValidateHours(hours int) int {
	if hours <= 0 {
		return 24 // default
	}
	if hours > 720 {
		return 720 // max 30 days
	}
	return hours
}
