// Package llm implements the LLM-backed hint orchestrator (spec §4.J/§4.O):
// building the prompt, POSTing it to the configured model endpoint, parsing
// the four-category response, and rendering the hint overlay and its
// regenerate endpoint (spec §4.K). Grounded on the teacher's own
// pkg/client + pkg/transport + pkg/buffer + pkg/errors + pkg/timing stack,
// trimmed of the HTTP/2 and upstream-proxy-chaining concerns those packages
// carried (see DESIGN.md) and repointed at a single POST endpoint.
package llm

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hintproxy/hintproxy/pkg/buffer"
	"github.com/hintproxy/hintproxy/pkg/constants"
	"github.com/hintproxy/hintproxy/pkg/errors"
	"github.com/hintproxy/hintproxy/pkg/timing"
	"github.com/hintproxy/hintproxy/pkg/tlsconfig"
)

// Client is a minimal connection-pooled HTTPS POST client for the LLM
// endpoint. It keeps a single idle connection per host:port alive across
// repeated regenerate-hint calls the way the teacher's transport.Pool keeps
// origin connections alive across requests, but a pool of one entry is all
// the LLM orchestrator ever needs since it only ever talks to one host.
type Client struct {
	Host   string
	Port   int
	APIKey string

	// InsecureSkipVerify disables certificate verification against the
	// LLM host. Off by default; tests flip it on to talk to a
	// self-signed fixture server instead of a real CA-issued endpoint.
	InsecureSkipVerify bool

	mu   sync.Mutex
	conn *tls.Conn
}

// NewClient builds a client targeting host:port (port defaults to 443).
func NewClient(host string, port int, apiKey string) *Client {
	if port == 0 {
		port = 443
	}
	return &Client{Host: host, Port: port, APIKey: apiKey}
}

// requestBody is the exact JSON shape makeProxyRequestLLM builds in the
// reference proxy.
type requestBody struct {
	Model       string  `json:"model"`
	System      string  `json:"system"`
	Query       string  `json:"query"`
	Temperature float64 `json:"temperature"`
	LastK       int     `json:"lastk"`
	SessionID   string  `json:"session_id"`
}

// Post sends one {model, system, query} request to https://host/dev and
// returns the raw response body, capped at constants.LLMResponseCap bytes,
// along with the timing metrics for the call. Any dial, TLS, or I/O failure
// surfaces as a pkg/errors.Error; the orchestrator treats all such errors
// as "malformed LLM response" per spec §7 rather than failing the response
// forward.
func (c *Client) Post(ctx context.Context, model, system, query string) ([]byte, timing.Metrics, error) {
	timer := timing.NewTimer()

	conn, err := c.acquire(ctx, timer)
	if err != nil {
		return nil, timer.GetMetrics(), err
	}

	body, err := json.Marshal(requestBody{
		Model:       model,
		System:      system,
		Query:       query,
		Temperature: constants.LLMTemperature,
		LastK:       constants.LLMLastK,
		SessionID:   constants.LLMSessionID,
	})
	if err != nil {
		c.discard()
		return nil, timer.GetMetrics(), errors.NewProtocolError("encode llm request body", err)
	}

	req := fmt.Sprintf(
		"POST /dev HTTP/1.1\r\n"+
			"Host: %s\r\n"+
			"Content-Type: application/json\r\n"+
			"x-api-key: %s\r\n"+
			"Content-Length: %d\r\n"+
			"Connection: keep-alive\r\n\r\n",
		c.Host, c.APIKey, len(body))

	if err := conn.SetWriteDeadline(time.Now().Add(constants.DefaultLLMConnTimeout)); err != nil {
		c.discard()
		return nil, timer.GetMetrics(), errors.NewIOError("set-write-deadline", err)
	}
	if _, err := io.WriteString(conn, req); err != nil {
		c.discard()
		return nil, timer.GetMetrics(), errors.NewIOError("write-llm-request", err)
	}
	if _, err := conn.Write(body); err != nil {
		c.discard()
		return nil, timer.GetMetrics(), errors.NewIOError("write-llm-body", err)
	}

	timer.StartTTFB()
	if err := conn.SetReadDeadline(time.Now().Add(constants.DefaultLLMReadTimeout)); err != nil {
		c.discard()
		return nil, timer.GetMetrics(), errors.NewIOError("set-read-deadline", err)
	}
	resp, err := readResponseBody(conn)
	timer.EndTTFB()
	if err != nil {
		c.discard()
		return nil, timer.GetMetrics(), errors.NewIOError("read-llm-response", err)
	}

	return resp, timer.GetMetrics(), nil
}

// acquire returns the pooled connection, dialing and TLS-handshaking a new
// one if none is held yet or the held one has gone bad.
func (c *Client) acquire(ctx context.Context, timer *timing.Timer) (*tls.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}

	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))

	timer.StartTCP()
	dialer := &net.Dialer{Timeout: constants.DefaultLLMConnTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	timer.EndTCP()
	if err != nil {
		return nil, errors.NewConnectionError(c.Host, c.Port, err)
	}

	cfg := &tls.Config{ServerName: c.Host, InsecureSkipVerify: c.InsecureSkipVerify}
	tlsconfig.ApplyVersionProfile(cfg, tlsconfig.ProfileSecure)
	tlsconfig.ApplyCipherSuites(cfg, tlsconfig.VersionTLS12)

	tlsConn := tls.Client(raw, cfg)
	timer.StartTLS()
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		timer.EndTLS()
		raw.Close()
		return nil, errors.NewTLSError(c.Host, c.Port, err)
	}
	timer.EndTLS()

	c.conn = tlsConn
	return tlsConn, nil
}

// discard drops the pooled connection after a failed call so the next Post
// redials instead of reusing a connection left in an unknown state.
func (c *Client) discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// readResponseBody reads a full HTTP/1.1 response and returns its body,
// spooling through a pkg/buffer.Buffer the way the teacher's response
// reader does, capped at constants.LLMResponseCap bytes — the LLM's
// responses never approach that cap per spec §6, but the cap still bounds
// a runaway or misbehaving upstream.
func readResponseBody(conn net.Conn) ([]byte, error) {
	r := bufio.NewReader(conn)

	contentLength := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}
		if name, value, ok := splitHeaderLine(trimmed); ok && strings.EqualFold(name, "Content-Length") {
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				contentLength = n
			}
		}
	}

	buf := buffer.New(constants.LLMResponseCap)
	defer buf.Close()

	remaining := contentLength
	chunk := make([]byte, 4096)
	for remaining != 0 {
		n, err := r.Read(chunk)
		if n > 0 {
			limit := n
			if buf.Size()+int64(limit) > constants.LLMResponseCap {
				limit = int(constants.LLMResponseCap - buf.Size())
			}
			if limit > 0 {
				buf.Write(chunk[:limit])
			}
			if remaining > 0 {
				remaining -= n
			}
		}
		if err != nil {
			if err == io.EOF && contentLength < 0 {
				break
			}
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if buf.Size() >= constants.LLMResponseCap {
			break
		}
	}

	return buf.Bytes(), nil
}

func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx == -1 {
		return "", "", false
	}
	return line[:idx], line[idx+1:], true
}
