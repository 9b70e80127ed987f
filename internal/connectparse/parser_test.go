package connectparse

import "testing"

func TestParseHostWithoutPort(t *testing.T) {
	req := Parse([]byte("CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n"))
	if req.Host != "example.com" {
		t.Fatalf("unexpected host: %q", req.Host)
	}
	if req.Port != 443 {
		t.Fatalf("unexpected port: %d", req.Port)
	}
	if !req.IsConnect {
		t.Fatalf("expected IsConnect true")
	}
}

func TestParseDefaultsToPort80(t *testing.T) {
	req := Parse([]byte("CONNECT example.com HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	if req.Port != 80 {
		t.Fatalf("expected default port 80, got %d", req.Port)
	}
}

func TestParsePrefersConnectLinePort(t *testing.T) {
	req := Parse([]byte("CONNECT example.com:8443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n"))
	if req.Port != 8443 {
		t.Fatalf("expected CONNECT line port to win, got %d", req.Port)
	}
}

func TestHeaderCompleteDetection(t *testing.T) {
	if HeaderComplete([]byte("CONNECT a HTTP/1.1\r\nHost: a\r\n")) {
		t.Fatalf("expected incomplete header to report false")
	}
	if !HeaderComplete([]byte("CONNECT a HTTP/1.1\r\nHost: a\r\n\r\n")) {
		t.Fatalf("expected complete header to report true")
	}
}

func TestIsConnectMethod(t *testing.T) {
	if !IsConnectMethod([]byte("CONNECT a:443 HTTP/1.1\r\n")) {
		t.Fatalf("expected CONNECT to be recognized")
	}
	if IsConnectMethod([]byte("GET / HTTP/1.1\r\n")) {
		t.Fatalf("expected GET to not be recognized as CONNECT")
	}
}

func TestHasRegenerateHintMarker(t *testing.T) {
	header := []byte("POST / HTTP/1.1\r\nX-Action: regenerate-hint\r\n\r\n")
	if !HasRegenerateHintMarker(header) {
		t.Fatalf("expected regenerate-hint marker to be detected")
	}
}
