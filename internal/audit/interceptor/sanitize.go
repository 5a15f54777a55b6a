package interceptor

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	RedactedMarker  = "[REDACTED]"
	TruncatedMarker = "...[TRUNCATED]"
	MaxStringLength = 500
)

// Field names are compared in normalized form: lowercase, with '_' and '-'
// removed.
var (
	// suffixKeys match wherever the normalized name ends with them, so
	// "accessToken" and "clientsecret" are both caught.
	suffixKeys = []string{"password", "token", "secret", "authorization"}
	// wordKeys only match as the last word of the name ("signingKey",
	// "x-api-key", "evidence_file"). "profile" and "monkey" pass.
	wordKeys = []string{"key", "file", "buffer"}
	// compoundKeys match the whole normalized name.
	compoundKeys = []string{"privatekey", "apikey", "filedata"}
)

var keyNormalizer = strings.NewReplacer("_", "", "-", "")

// IsSensitiveKey reports whether a field with this name must be redacted.
func IsSensitiveKey(name string) bool {
	normalized := keyNormalizer.Replace(strings.ToLower(name))
	if normalized == "" {
		return false
	}
	if slices.Contains(compoundKeys, normalized) {
		return true
	}
	for _, s := range suffixKeys {
		if strings.HasSuffix(normalized, s) {
			return true
		}
	}
	return slices.Contains(wordKeys, lastWord(name))
}

// lastWord returns the final word of a field name, split at '_', '-' and
// lower-to-upper case changes, lowercased.
func lastWord(name string) string {
	name = strings.TrimRight(name, "_-")
	start := 0
	prev := rune(0)
	for i, r := range name {
		switch {
		case r == '_' || r == '-':
			start = i + 1
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			start = i
		}
		prev = r
	}
	return strings.ToLower(name[start:])
}

// Sanitize returns a copy of v with sensitive fields redacted and long strings
// truncated, at any depth. The input is never modified.
func Sanitize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if IsSensitiveKey(k) {
				out[k] = RedactedMarker
				continue
			}
			out[k] = Sanitize(inner)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if IsSensitiveKey(k) {
				out[k] = RedactedMarker
				continue
			}
			out[k] = truncate(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = Sanitize(inner)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = truncate(inner)
		}
		return out
	case string:
		return truncate(val)
	default:
		return v
	}
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxStringLength {
		return s
	}
	return string([]rune(s)[:MaxStringLength]) + TruncatedMarker
}
