// Package server enforces the browser-origin allow list applied to every
// WebSocket upgrade.
package server

import (
	"log"
	"net/http"
	"net/url"
	"strings"
)

// normalizeOrigins canonicalizes the configured allow list. Entries that do
// not parse as scheme://host are dropped with a log line; a lone "*" entry
// switches the check into allow-all mode.
func normalizeOrigins(origins []string) ([]string, bool) {
	var normalized []string
	allowAll := false

	for _, origin := range origins {
		switch trimmed := strings.TrimSpace(origin); {
		case trimmed == "":
		case trimmed == "*":
			allowAll = true
		default:
			canonical, ok := normalizeOrigin(trimmed)
			if !ok {
				log.Printf("Ignoring invalid origin in configuration: %q", origin)
				continue
			}
			normalized = append(normalized, canonical)
		}
	}

	return normalized, allowAll
}

// normalizeOrigin reduces an origin to lowercase scheme://host so comparisons
// ignore case and any trailing path noise.
func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func isOriginAllowed(r *http.Request) bool {
	origin, ok := normalizeOrigin(r.Header.Get("Origin"))
	if !ok {
		return false
	}

	configMu.RLock()
	defer configMu.RUnlock()

	if allowAllOrigins {
		return true
	}
	_, allowed := allowedOrigins[origin]
	return allowed
}

// checkOrigin is the upgrader hook. Rejections are logged so a misconfigured
// ALLOWED_ORIGINS shows up in the server log rather than as silent 403s.
func checkOrigin(r *http.Request) bool {
	if isOriginAllowed(r) {
		return true
	}

	log.Printf("Rejected WebSocket upgrade from %s: origin %q not allowed",
		r.RemoteAddr, r.Header.Get("Origin"))
	return false
}
