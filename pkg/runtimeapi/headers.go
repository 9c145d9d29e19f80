package runtimeapi

import (
	"net/http"
	"strings"
)

// headerValue scans every header for name, ignoring case, and returns the
// first value trimmed of surrounding whitespace. It returns an empty string if
// the header is absent.
func headerValue(h http.Header, name string) string {
	for key, values := range h {
		if !strings.EqualFold(key, name) || len(values) == 0 {
			continue
		}
		return strings.TrimSpace(values[0])
	}
	return ""
}

// RequestID returns the request id carried by h and whether it was present.
func RequestID(h http.Header) (string, bool) {
	id := headerValue(h, RequestIDHeader)
	return id, id != ""
}
