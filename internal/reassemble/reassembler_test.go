package reassemble

import (
	"testing"

	"github.com/hintproxy/hintproxy/internal/record"
)

func TestFindHeaderEnd(t *testing.T) {
	if FindHeaderEnd([]byte("GET / HTTP/1.1\r\nHost: a\r\n")) != -1 {
		t.Fatalf("expected incomplete header to return -1")
	}
	header := []byte("GET / HTTP/1.1\r\nHost: a\r\n\r\nbody")
	end := FindHeaderEnd(header)
	if string(header[end:]) != "body" {
		t.Fatalf("expected offset to point past terminator, got %q", header[end:])
	}
}

func TestContentLengthCaseInsensitive(t *testing.T) {
	cases := []string{"Content-Length: 42", "content-length: 42", "Content-length: 42", "content-Length: 42"}
	for _, h := range cases {
		header := []byte("HTTP/1.1 200 OK\r\n" + h + "\r\n\r\n")
		if got := ContentLength(header); got != 42 {
			t.Fatalf("ContentLength(%q) = %d, want 42", h, got)
		}
	}
}

func TestContentLengthAbsent(t *testing.T) {
	if got := ContentLength([]byte("HTTP/1.1 200 OK\r\n\r\n")); got != -1 {
		t.Fatalf("expected -1 for absent header, got %d", got)
	}
}

func TestIsChunked(t *testing.T) {
	if !IsChunked([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n")) {
		t.Fatalf("expected chunked to be detected")
	}
	if IsChunked([]byte("HTTP/1.1 200 OK\r\n\r\n")) {
		t.Fatalf("expected no chunked encoding detected")
	}
}

func TestContentEncoding(t *testing.T) {
	if got := ContentEncoding([]byte("HTTP/1.1 200 OK\r\nContent-Encoding: gzip\r\n\r\n")); got != record.EncodingGzip {
		t.Fatalf("expected gzip, got %v", got)
	}
	if got := ContentEncoding([]byte("HTTP/1.1 200 OK\r\n\r\n")); got != record.EncodingIdentity {
		t.Fatalf("expected identity default, got %v", got)
	}
}

func TestStripAcceptEncoding(t *testing.T) {
	header := []byte("GET / HTTP/1.1\r\nHost: a\r\nAccept-Encoding: gzip, deflate\r\nAccept: */*\r\n")
	stripped := StripAcceptEncoding(header)
	if containsLine(stripped, "Accept-Encoding") {
		t.Fatalf("expected Accept-Encoding stripped, got %q", stripped)
	}
	if !containsLine(stripped, "Accept: ") {
		t.Fatalf("expected other headers preserved, got %q", stripped)
	}
}

func containsLine(buf []byte, prefix string) bool {
	for _, line := range splitLines(buf) {
		if len(line) >= len(prefix) && string(line[:len(prefix)]) == prefix {
			return true
		}
	}
	return false
}
