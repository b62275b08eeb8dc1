package middleware

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Input validation and sanitization utilities

// ErrInvalidInput wraps every validation failure so handlers can map it to 400.
var ErrInvalidInput = errors.New("invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// URLPolicy decides which scan targets are acceptable.
type URLPolicy struct {
	// AllowPrivate permits loopback and private network hosts (local dev).
	AllowPrivate bool
}

// ValidateURL validates a scan target URL (SSRF protection included)
func (p URLPolicy) ValidateURL(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return invalid("URL cannot be empty")
	}
	if len(rawURL) > 2048 {
		return invalid("URL too long")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return invalid("invalid URL format: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("invalid URL scheme: %q (allowed: http, https)", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return invalid("URL has no host")
	}
	if u.User != nil {
		return invalid("credentials in URL are not allowed")
	}
	if p.AllowPrivate {
		return nil
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".internal") {
		return invalid("localhost/internal hosts are not allowed")
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return invalid("private IP ranges are not allowed")
		}
	}
	return nil
}

// ValidateID checks a path parameter is a UUID.
func ValidateID(kind, id string) error {
	if id == "" {
		return invalid("%s ID cannot be empty", kind)
	}
	if _, err := uuid.Parse(id); err != nil {
		return invalid("invalid %s ID format", kind)
	}
	return nil
}

// ValidateName checks a display name after sanitizing.
func ValidateName(name string) (string, error) {
	name = SanitizeString(name)
	if name == "" {
		return "", invalid("name cannot be empty")
	}
	if len(name) > 255 {
		return "", invalid("name too long (max 255 chars)")
	}
	return name, nil
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
