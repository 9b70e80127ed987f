// Package reassemble implements the HTTP message reassembler (spec §4.H):
// incremental header/body accumulation across fragmented TLS records, plus
// the header inspection helpers (Content-Length, Content-Encoding,
// Transfer-Encoding: chunked) the mutator needs.
//
// Grounded on original_source/mitm.c's populateClientHeaderField/
// populateServerHeaderField/checkEndDelimiter/getContentLength/
// getLengthLine/setContentEncoding/getContentEncodingLine/
// removeAcceptEncoding. The original re-scans header lines by hand,
// checking four literal capitalizations of each header name
// ("Content-Length: ", "Content-length: ", "content-length: ",
// "content-Length: "); this port keeps that exact case-insensitive
// tolerance but does it with a single case-folded comparison instead of
// four string literals.
package reassemble

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/hintproxy/hintproxy/internal/record"
)

// HeaderTerminator marks the end of an HTTP header block.
const HeaderTerminator = "\r\n\r\n"

// FindHeaderEnd returns the offset just past the blank line terminating
// the header block within buf, or -1 if the header hasn't fully arrived
// yet (checkEndDelimiter).
func FindHeaderEnd(buf []byte) int {
	idx := bytes.Index(buf, []byte(HeaderTerminator))
	if idx == -1 {
		return -1
	}
	return idx + len(HeaderTerminator)
}

// ContentLength scans a raw header block for a Content-Length header,
// tolerating any capitalization of the header name. Returns -1 if absent
// or unparsable, matching getContentLength's sentinel.
func ContentLength(header []byte) int {
	for _, line := range splitLines(header) {
		name, value, ok := splitHeaderLine(line)
		if !ok || !strings.EqualFold(name, "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return -1
		}
		return n
	}
	return -1
}

// IsChunked reports whether the header block declares
// Transfer-Encoding: chunked (getChunkedLine, generalized to accept any
// case and to ignore additional encodings in the list).
func IsChunked(header []byte) bool {
	for _, line := range splitLines(header) {
		name, value, ok := splitHeaderLine(line)
		if !ok || !strings.EqualFold(name, "Transfer-Encoding") {
			continue
		}
		if strings.Contains(strings.ToLower(value), "chunked") {
			return true
		}
	}
	return false
}

// ContentEncoding extracts the declared Content-Encoding, defaulting to
// EncodingIdentity when the header is absent (setContentEncoding /
// getContentEncodingLine).
func ContentEncoding(header []byte) record.ContentEncoding {
	for _, line := range splitLines(header) {
		name, value, ok := splitHeaderLine(line)
		if !ok || !strings.EqualFold(name, "Content-Encoding") {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "gzip":
			return record.EncodingGzip
		case "deflate":
			return record.EncodingDeflate
		case "br":
			return record.EncodingBr
		case "identity", "":
			return record.EncodingIdentity
		default:
			return record.EncodingUnknown
		}
	}
	return record.EncodingIdentity
}

// StripAcceptEncoding removes any Accept-Encoding header line from a
// request header block so the origin replies uncompressed and the mutator
// can safely rewrite the body (removeAcceptEncoding).
func StripAcceptEncoding(header []byte) []byte {
	lines := splitLines(header)
	kept := lines[:0]
	for _, line := range lines {
		name, _, ok := splitHeaderLine(line)
		if ok && strings.EqualFold(name, "Accept-Encoding") {
			continue
		}
		kept = append(kept, line)
	}
	return joinLines(kept)
}

func splitLines(buf []byte) [][]byte {
	return bytes.Split(buf, []byte("\r\n"))
}

func joinLines(lines [][]byte) []byte {
	return bytes.Join(lines, []byte("\r\n"))
}

func splitHeaderLine(line []byte) (name, value string, ok bool) {
	idx := bytes.IndexByte(line, ':')
	if idx == -1 {
		return "", "", false
	}
	return string(line[:idx]), string(line[idx+1:]), true
}
