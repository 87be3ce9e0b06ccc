package handlers

import (
	"net/http"
	"testing"
)

func TestFilterUpstreamHeaders(t *testing.T) {
	src := http.Header{}
	src.Add("Connection", "keep-alive, x-hop-a")
	src.Add("Connection", "X-Hop-B")
	src.Set("X-Hop-A", "a")
	src.Set("X-Hop-B", "b")
	src.Set("Transfer-Encoding", "chunked")
	src.Set("Content-Encoding", "br")
	src.Set("Content-Length", "42")
	src.Set("Set-Cookie", "session=secret")
	src.Set("X-Request-Id", "req-1")
	src.Add("X-Ratelimit-Remaining", "9")

	filtered := FilterUpstreamHeaders(src)

	tests := []struct {
		key  string
		want string
	}{
		{"X-Request-Id", "req-1"},
		{"X-Ratelimit-Remaining", "9"},
		{"Connection", ""},
		{"X-Hop-A", ""},
		{"X-Hop-B", ""},
		{"Transfer-Encoding", ""},
		{"Content-Encoding", ""},
		{"Content-Length", ""},
		{"Set-Cookie", ""},
	}
	for _, tt := range tests {
		if got := filtered.Get(tt.key); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.key, got, tt.want)
		}
	}

	filtered.Set("X-Request-Id", "changed")
	if src.Get("X-Request-Id") != "req-1" {
		t.Error("filtered headers must not alias the source")
	}
}

func TestFilterUpstreamHeadersNil(t *testing.T) {
	if got := FilterUpstreamHeaders(nil); got != nil {
		t.Fatalf("nil source: got %#v", got)
	}
	src := http.Header{}
	src.Set("Set-Cookie", "a=b")
	src.Set("Keep-Alive", "timeout=5")
	if got := FilterUpstreamHeaders(src); got != nil {
		t.Fatalf("all blocked: got %#v", got)
	}
}

func TestWriteUpstreamHeadersKeepsHandlerValues(t *testing.T) {
	dst := http.Header{}
	dst.Set("Content-Type", "application/json")
	src := http.Header{}
	src.Set("Content-Type", "text/plain")
	src.Set("X-Request-Id", "req-2")

	WriteUpstreamHeaders(dst, src)
	if dst.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type overwritten: %q", dst.Get("Content-Type"))
	}
	if dst.Get("X-Request-Id") != "req-2" {
		t.Errorf("X-Request-Id = %q", dst.Get("X-Request-Id"))
	}
}
