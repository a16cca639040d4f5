package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "ops.lead@example.com" → "op***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactSecret keeps the last four characters of a credential.
// Values of eight characters or fewer are fully masked.
func RedactSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return "***" + s[len(s)-4:]
}
