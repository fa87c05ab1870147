package observability

import (
	"net"
	"net/http"
	"strings"
)

// ClientInfo is the transport-level identity captured at a websocket
// handshake, attached to connection lifecycle events.
type ClientInfo struct {
	RequestID string
	DeviceID  string
	IP        string
}

// ClientInfoFromRequest reads correlation and client identity headers.
func ClientInfoFromRequest(r *http.Request) ClientInfo {
	return ClientInfo{
		RequestID: r.Header.Get("X-Request-Id"),
		DeviceID:  r.Header.Get("X-Device-Id"),
		IP:        clientIP(r),
	}
}

// clientIP prefers the first X-Forwarded-For hop over the socket peer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
