// Package connectparse parses the client's initial CONNECT request (spec
// §4.E "Pair establishment"), grounded on original_source/proxy.c's
// parseConnectHeader/getConnectLine/getHostLine/getHostURL/getServerPort/
// getPortFromLine, and the hint-regeneration detour grounded on
// original_source/LLM.c's checkHintRegeneration.
package connectparse

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// HeaderTerminator is the blank line marking the end of an HTTP header
// block, used to decide whether a CONNECT request has fully arrived.
const HeaderTerminator = "\r\n\r\n"

// Request is the parsed result of a client CONNECT request.
type Request struct {
	Host           string
	Port           int
	RegenerateHint bool
	IsConnect      bool
}

// HeaderComplete reports whether buf contains a full header block.
func HeaderComplete(buf []byte) bool {
	return bytes.Contains(buf, []byte(HeaderTerminator))
}

// HeaderEnd returns the byte offset just past the blank line terminating
// the header block, or -1 if the header is not yet complete.
func HeaderEnd(buf []byte) int {
	idx := bytes.Index(buf, []byte(HeaderTerminator))
	if idx == -1 {
		return -1
	}
	return idx + len(HeaderTerminator)
}

// IsConnectMethod reports whether the request line opens with CONNECT,
// mirroring checkConnectField's literal prefix check.
func IsConnectMethod(header []byte) bool {
	return bytes.HasPrefix(header, []byte("CONNECT"))
}

// HasRegenerateHintMarker reports whether the request carries the
// regenerate-hint marker the hint overlay's JavaScript sends instead of a
// CONNECT line (spec §4.K).
func HasRegenerateHintMarker(header []byte) bool {
	return bytes.Contains(header, []byte("regenerate-hint"))
}

// Parse extracts the target host and port from a complete CONNECT header
// block. It scans the Host: line for the bare hostname and falls back to
// port 80 when neither the CONNECT line nor the Host line carries an
// explicit port, matching getServerPort's precedence: an explicit port on
// the CONNECT line wins over one on the Host line.
func Parse(header []byte) Request {
	req := Request{IsConnect: IsConnectMethod(header)}

	var connectLine, hostLine string

	scanner := bufio.NewScanner(bytes.NewReader(header))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if connectLine == "" && strings.HasPrefix(line, "CONNECT ") {
			connectLine = line
		}
		if strings.HasPrefix(line, "Host: ") {
			hostLine = line
			break
		}
	}

	req.Host = hostFromLine(hostLine)

	portFromHost := portFromLine(hostLine)
	portFromConnect := portFromLine(connectLine)

	switch {
	case portFromHost == -1 && portFromConnect == -1:
		req.Port = 80
	case portFromHost == -1:
		req.Port = portFromConnect
	case portFromConnect == -1:
		req.Port = portFromHost
	default:
		req.Port = portFromConnect
	}

	return req
}

// hostFromLine extracts the bare hostname from a "Host: host[:port]" line.
func hostFromLine(hostLine string) string {
	if !strings.HasPrefix(hostLine, "Host: ") {
		return ""
	}
	rest := hostLine[len("Host: "):]
	if idx := strings.IndexAny(rest, ": \r\n"); idx != -1 {
		return rest[:idx]
	}
	return rest
}

// portFromLine extracts the port following the last ':' on a line, or -1
// if the line carries none.
func portFromLine(line string) int {
	idx := strings.LastIndex(line, ":")
	if idx == -1 {
		return -1
	}
	rest := strings.TrimSpace(line[idx+1:])
	if end := strings.IndexAny(rest, " \t"); end != -1 {
		rest = rest[:end]
	}
	port, err := strconv.Atoi(rest)
	if err != nil {
		return -1
	}
	return port
}

// ConnectionEstablished is the literal reply sent once a CONNECT request
// has been accepted, before the proxy begins relaying or MITM-ing the
// tunnel.
const ConnectionEstablished = "HTTP/1.1 200 Connection Established\r\n\r\n"

// CORSPreflightResponse is sent in place of ConnectionEstablished when a
// non-CONNECT request arrives without the regenerate-hint marker yet; the
// browser's hint overlay issues an OPTIONS preflight before its actual
// POST (spec §4.K).
const CORSPreflightResponse = "HTTP/1.1 200 OK\r\n" +
	"Access-Control-Allow-Origin: *\r\n" +
	"Access-Control-Allow-Methods: POST, OPTIONS\r\n" +
	"Access-Control-Allow-Headers: Content-Type, X-Action\r\n" +
	"Content-Length: 0\r\n" +
	"\r\n"
