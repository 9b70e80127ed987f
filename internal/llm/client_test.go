package llm

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

// selfSignedCert generates a throwaway ECDSA certificate so fakeLLMServer
// can terminate TLS without depending on any file on disk.
func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create test certificate: %v", err)
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

// fakeLLMServer starts a TLS listener that reads exactly one HTTP request
// and replies with a fixed JSON body, simulating the LLM endpoint well
// enough to exercise Client.Post's framing without a real network call.
func fakeLLMServer(t *testing.T, body string) (addr string, port int) {
	t.Helper()

	cert := selfSignedCert(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil || strings.TrimRight(line, "\r\n") == "" {
				break
			}
		}

		resp := "HTTP/1.1 200 OK\r\n" +
			"Content-Type: application/json\r\n" +
			"Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body
		conn.Write([]byte(resp))
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(portStr)
	return host, p
}

func TestClientPostReadsResponseBody(t *testing.T) {
	body := `{"text":"Category 1: a; Category 2: b; Category 3: c; Category 4: d", "grade":"n/a"}`
	host, port := fakeLLMServer(t, body)

	c := NewClient(host, port, "test-key")
	c.InsecureSkipVerify = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, _, err := c.Post(ctx, "4o-mini", "system prompt", "query text")
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if string(resp) != body {
		t.Fatalf("expected response body %q, got %q", body, resp)
	}
}
