package logger

import (
	"log/slog"
	"net/url"
	"strings"
)

// Sensitive key patterns that should be redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"private_key",
	"credential",
	"authorization",
	"bearer",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive checks if an attribute contains sensitive data
// and redacts it if necessary.
func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		strVal := a.Value.String()

		// If key name suggests sensitive data and value is non-empty, fully redact
		if strVal != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}

		// URLs keep everything but the password
		if IsSensitiveValue(strVal) {
			return slog.String(a.Key, RedactString(strVal))
		}
	}

	// Handle nested groups recursively
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	return a
}

// RedactString masks the password of a URL with embedded credentials.
// Other values are returned unchanged.
func RedactString(value string) string {
	if !IsSensitiveValue(value) {
		return value
	}
	u, err := url.Parse(value)
	if err != nil || u.User == nil {
		// Unparseable but credential-shaped: drop everything before '@'.
		scheme, rest, ok := strings.Cut(value, "://")
		if !ok {
			return redactedValue
		}
		_, host, _ := strings.Cut(rest, "@")
		return scheme + "://***@" + host
	}
	// url.Userinfo would percent-encode the mask, so splice it in.
	mask := "***@"
	if _, hasPassword := u.User.Password(); hasPassword {
		mask = url.User(u.User.Username()).String() + ":***@"
	}
	u.User = nil
	prefix := u.Scheme + "://"
	return prefix + mask + strings.TrimPrefix(u.String(), prefix)
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

// IsSensitiveValue reports whether value looks like a URL with userinfo.
func IsSensitiveValue(value string) bool {
	_, rest, ok := strings.Cut(value, "://")
	if !ok {
		return false
	}
	authority, _, _ := strings.Cut(rest, "/")
	return strings.Contains(authority, "@")
}
