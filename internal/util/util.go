package util

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// WritablePath returns the cleaned TIMECARD_DATA_DIR environment variable when it is set.
func WritablePath() string {
	if value, ok := os.LookupEnv("TIMECARD_DATA_DIR"); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return filepath.Clean(trimmed)
		}
	}
	return ""
}

// ResolvePath joins a relative path onto WritablePath when one is configured.
func ResolvePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if base := WritablePath(); base != "" {
		return filepath.Join(base, path)
	}
	return path
}

// HideSecret obscures a credential for logging, keeping only a few edge characters.
func HideSecret(secret string) string {
	if len(secret) > 8 {
		return secret[:4] + "..." + secret[len(secret)-4:]
	} else if len(secret) > 4 {
		return secret[:2] + "..." + secret[len(secret)-2:]
	} else if len(secret) > 2 {
		return secret[:1] + "..." + secret[len(secret)-1:]
	}
	return secret
}

// MaskSensitiveQuery masks credential-like query parameters within a raw query string.
func MaskSensitiveQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	changed := false
	for i, part := range parts {
		if part == "" {
			continue
		}
		keyPart := part
		valuePart := ""
		if idx := strings.Index(part, "="); idx >= 0 {
			keyPart = part[:idx]
			valuePart = part[idx+1:]
		}
		decodedKey, err := url.QueryUnescape(keyPart)
		if err != nil {
			decodedKey = keyPart
		}
		if !shouldMaskQueryParam(decodedKey) {
			continue
		}
		decodedValue, err := url.QueryUnescape(valuePart)
		if err != nil {
			decodedValue = valuePart
		}
		masked := HideSecret(strings.TrimSpace(decodedValue))
		parts[i] = keyPart + "=" + url.QueryEscape(masked)
		changed = true
	}
	if !changed {
		return raw
	}
	return strings.Join(parts, "&")
}

func shouldMaskQueryParam(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	key = strings.TrimSuffix(key, "[]")
	for _, marker := range []string{"token", "secret", "password", "csrf", "session"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}
