package logging

import (
	"encoding/json"
	"regexp"
)

const (
	// MaxAuditPayloadBytes is the maximum serialised payload size recorded in audit entries.
	MaxAuditPayloadBytes = 2000
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

// sensitiveKeys are payload keys whose values must never reach logs or the audit trail.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"secret":        {},
}

var (
	// Pattern to match potential passwords in connection strings
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match JWT tokens (three base64 segments separated by dots)
	jwtPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)
)

// SanitizePayload deep-copies a JSON-serialisable payload, replaces the values
// of sensitive keys with [REDACTED] at any nesting depth, and returns the
// serialised form truncated to MaxAuditPayloadBytes.
func SanitizePayload(payload any) []byte {
	if payload == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return []byte(`{"error":"unserialisable payload"}`)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		decoded = redactValue(decoded)
		if clean, err := json.Marshal(decoded); err == nil {
			raw = clean
		}
	}

	if len(raw) > MaxAuditPayloadBytes {
		raw = raw[:MaxAuditPayloadBytes]
	}
	return raw
}

func redactValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		for k, val := range typed {
			if _, sensitive := sensitiveKeys[k]; sensitive {
				typed[k] = RedactedText
				continue
			}
			typed[k] = redactValue(val)
		}
		return typed
	case []any:
		for i, val := range typed {
			typed[i] = redactValue(val)
		}
		return typed
	default:
		return v
	}
}

// SanitizeConnectionString removes sensitive data from connection strings
// Use this before logging any connection string
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError sanitizes error messages that might contain sensitive data
// Use this before logging any error from database or collaborator operations
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	sanitized := passwordPattern.ReplaceAllString(errStr, "${1}="+RedactedText)
	sanitized = jwtPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
