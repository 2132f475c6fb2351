// Package redact scrubs sensitive substrings from free text, URLs,
// paths, and nested value trees before they are persisted.
package redact

import (
	"regexp"
	"strings"
)

var (
	urlCredsRe     = regexp.MustCompile(`(https?://)([^/:]+):([^/@]+)@`)
	tokenParamRe   = regexp.MustCompile(`(?i)([?&](?:api_key|token|auth|key|secret)=)[^&]+`)
	absPathRe      = regexp.MustCompile(`/(?:Users|home|root|etc|var/log)/[a-zA-Z0-9._/-]+`)
	homePathRe     = regexp.MustCompile(`~/[a-zA-Z0-9._/-]*\.(?:ssh|bash|zsh|aws|config|env|key|pem|pgp|gpg|token)[a-zA-Z0-9._/-]*`)
	sensitiveKeyRe = regexp.MustCompile(`(^|[_-])(secret|token|api[_-]?key|private[_-]?key|key)($|[_-])`)
)

// String redacts credentials embedded in URLs, token-like query
// parameters, and local filesystem paths.
func String(s string) string {
	s = urlCredsRe.ReplaceAllString(s, "${1}REDACTED:REDACTED@")
	s = tokenParamRe.ReplaceAllString(s, "${1}REDACTED")
	s = absPathRe.ReplaceAllString(s, "[REDACTED_PATH]")
	s = homePathRe.ReplaceAllString(s, "[REDACTED_SENSITIVE_PATH]")
	return s
}

// SensitiveKey reports whether a map key names a credential-bearing
// field whose whole value should be replaced.
func SensitiveKey(key string) bool {
	return sensitiveKeyRe.MatchString(strings.ToLower(key))
}

// Value recursively scrubs strings inside maps and slices. Values under
// sensitive keys are replaced wholesale; everything else is passed
// through String. Non-string scalars are returned unchanged.
func Value(v any) any {
	switch t := v.(type) {
	case string:
		return String(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if SensitiveKey(k) {
				out[k] = "[REDACTED]"
				continue
			}
			out[k] = Value(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Value(val)
		}
		return out
	default:
		return v
	}
}
