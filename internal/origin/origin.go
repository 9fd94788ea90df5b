// Package origin validates browser Origin headers for the broker's HTTP
// and WebSocket surfaces.
package origin

import (
	"net/url"
	"strings"
)

// Normalize validates an Origin header value and lowercases its scheme and
// host. The opaque "null" origin (sandboxed iframes, file:// pages)
// normalizes to itself; IsAllowed only admits it when listed explicitly.
func Normalize(originHeader string) (normalized string, ok bool) {
	trimmed := strings.TrimSpace(originHeader)
	if trimmed == "" {
		return "", false
	}
	if trimmed == "null" {
		return "null", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	return scheme + "://" + strings.ToLower(u.Host), true
}

// IsAllowed reports whether a normalized origin passes the configured
// allowlist. Entries are either "*" or normalized origins as produced by
// Normalize. An empty allowlist admits every origin except "null".
func IsAllowed(normalized string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return normalized != "null"
	}
	for _, entry := range allowlist {
		if entry == "*" || entry == normalized {
			return true
		}
	}
	return false
}

// HeaderAllowed combines Normalize and IsAllowed for callers holding the
// raw header value. A missing Origin header passes: non-browser clients
// (curl, server-to-server) don't send one.
func HeaderAllowed(originHeader string, allowlist []string) bool {
	if strings.TrimSpace(originHeader) == "" {
		return true
	}
	normalized, ok := Normalize(originHeader)
	if !ok {
		return false
	}
	return IsAllowed(normalized, allowlist)
}
