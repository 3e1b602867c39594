package logging

import (
	"log/slog"
	"strings"
)

// sensitiveKeys are attribute keys whose string values are always redacted.
var sensitiveKeys = map[string]bool{
	"api_key":       true,
	"cookie":        true,
	"token":         true,
	"authorization": true,
}

// Redact masks a credential, keeping the first and last four characters so
// operators can still tell keys apart.
func Redact(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if !sensitiveKeys[strings.ToLower(a.Key)] {
		return a
	}
	if a.Value.Kind() != slog.KindString {
		return a
	}
	return slog.String(a.Key, Redact(a.Value.String()))
}
