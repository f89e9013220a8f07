package gateway

import (
	"net/http"
	"strings"
)

// sensitiveRequestHeaders never reach a downstream service. Credentials
// stay inside the gateway; framing headers are recomputed by the client.
var sensitiveRequestHeaders = map[string]struct{}{
	"authorization":     {},
	"x-api-key":         {},
	"cookie":            {},
	"host":              {},
	"content-length":    {},
	"transfer-encoding": {},
}

// hopByHopResponseHeaders describe the downstream connection, not the
// payload, and are dropped when relaying a response.
var hopByHopResponseHeaders = map[string]struct{}{
	"content-encoding":    {},
	"content-length":      {},
	"transfer-encoding":   {},
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"upgrade":             {},
}

// sanitizeRequestHeaders copies h minus the sensitive set.
func sanitizeRequestHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for name, values := range h {
		if _, drop := sensitiveRequestHeaders[strings.ToLower(name)]; drop {
			continue
		}
		for _, v := range values {
			out.Add(name, v)
		}
	}
	return out
}

// copyResponseHeaders relays src into dst minus the hop-by-hop set.
func copyResponseHeaders(dst, src http.Header) {
	for name, values := range src {
		if _, drop := hopByHopResponseHeaders[strings.ToLower(name)]; drop {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

// flattenHeaders collapses a header map to single values for audit capture.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name := range h {
		out[name] = h.Get(name)
	}
	return out
}
