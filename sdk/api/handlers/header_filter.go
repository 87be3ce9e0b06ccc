package handlers

import (
	"net/http"
	"strings"
)

// blockedResponseHeaders are never copied from a Copilot response to the client:
// RFC 7230 hop-by-hop headers, cookies, and the framing headers this gateway
// recomputes after decoding the body.
var blockedResponseHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Set-Cookie":          {},
	"Content-Length":      {},
	"Content-Encoding":    {},
}

// FilterUpstreamHeaders returns the Copilot response headers that may reach the
// client. Headers named by the Connection header are connection scoped and
// dropped too. The result is nil when nothing survives.
func FilterUpstreamHeaders(src http.Header) http.Header {
	if len(src) == 0 {
		return nil
	}
	scoped := make(map[string]struct{})
	for _, value := range src.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				scoped[http.CanonicalHeaderKey(name)] = struct{}{}
			}
		}
	}

	var dst http.Header
	for key, values := range src {
		key = http.CanonicalHeaderKey(key)
		if _, blocked := blockedResponseHeaders[key]; blocked {
			continue
		}
		if _, blocked := scoped[key]; blocked {
			continue
		}
		if dst == nil {
			dst = make(http.Header)
		}
		dst[key] = append([]string(nil), values...)
	}
	return dst
}

// WriteUpstreamHeaders adds src to dst without replacing headers the handler set.
func WriteUpstreamHeaders(dst http.Header, src http.Header) {
	for key, values := range src {
		if dst.Get(key) != "" {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
