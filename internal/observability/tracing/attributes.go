package tracing

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Span attributes matching any of these substrings are dropped before
// export; spans must never carry credentials or payout destinations.
var sensitiveAttributeKeys = []string{
	"secret",
	"token",
	"signature",
	"authorization",
	"bank_account",
	"account_number",
	"account_holder",
}

// SafeAttributes drops attributes with sensitive keys.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isSensitiveKey(string(attr.Key)) {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, needle := range sensitiveAttributeKeys {
		if strings.Contains(key, needle) {
			return true
		}
	}
	return false
}
