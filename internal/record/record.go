// Package record defines the connection record shared by the connection
// table, the MITM engine, the tunnel relay, and the HTTP reassembler (spec
// §3 "Connection record"). Keeping it in its own package avoids an import
// cycle between those four components, which all need to read and mutate
// the same per-connection state as the event loop dispatches readiness
// events.
package record

import (
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/hintproxy/hintproxy/pkg/buffer"
)

// Role identifies which side of a pair a record represents.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Mode identifies whether a pair is being intercepted or only relayed.
type Mode int

const (
	ModeTunnel Mode = iota
	ModeMITM
)

// ContentEncoding classifies the Content-Encoding declared on a response, as
// reported by reassemble.ContentEncoding (spec §4.I strips Accept-Encoding
// on the way out, but an origin may still ignore the request and reply
// encoded anyway). The event loop does not consult it before injecting.
type ContentEncoding int

const (
	EncodingIdentity ContentEncoding = iota
	EncodingGzip
	EncodingDeflate
	EncodingBr
	EncodingUnknown
)

// HeaderState tracks progress through the HTTP message reassembly state
// machine (spec §4.H).
type HeaderState int

const (
	HeaderIncomplete HeaderState = iota
	HeaderComplete
	BodyComplete
)

// Conn is the per-socket connection record. A client/server pair shares a
// PeerHandle back-reference so either side's processing code can look its
// counterpart up in the connection table by handle.
type Conn struct {
	mu sync.Mutex

	Handle     int
	Role       Role
	Mode       Mode
	PeerHandle int
	NetConn    net.Conn

	Active    bool
	AddedAt   time.Time
	LastSeen  time.Time

	// Header and body accumulators. buffer.Buffer spills to disk past its
	// memory threshold; once the body has spilled, the event loop skips
	// mutation and streams it through unmodified (see internal/eventloop).
	HeaderBuf *buffer.Buffer
	BodyBuf   *buffer.Buffer

	HeaderState HeaderState

	// Populated once the CONNECT line (client side) is parsed.
	TargetHost string
	TargetPort int

	// PendingPath is the request-line path of the most recent request this
	// client record sent, used to key the response cache (spec §4.B) once
	// the matching response arrives from the origin.
	PendingPath string

	// TLS state, set only for MITM-mode records.
	ClientTLS *tls.Conn
	ServerTLS *tls.Conn

	// RegenerateHint marks a request carrying the X-Action:
	// regenerate-hint header, routed to the hint endpoint instead of the
	// origin (spec §4.K).
	RegenerateHint bool
}

// New creates an active record with its timestamps set and everything else
// zeroed. Buffers are allocated by the event loop as a record needs them (a
// header buffer for the CONNECT preamble on accept, header and body buffers
// once a MITM pair is up), so tunnel-mode origin records never get one.
func New(handle int, role Role) *Conn {
	return &Conn{
		Handle:   handle,
		Role:     role,
		Active:   true,
		AddedAt:  time.Now(),
		LastSeen: time.Now(),
	}
}

// Touch refreshes LastSeen. The event loop calls it on every readiness
// event; nothing in the proxy reads LastSeen.
func (c *Conn) Touch() {
	c.mu.Lock()
	c.LastSeen = time.Now()
	c.mu.Unlock()
}

// Reset clears the mutable reassembly state and marks the record inactive,
// closing (and removing, if spilled) any accumulator buffer still held
// open. The event loop calls it when tearing a connection down.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.HeaderBuf != nil {
		c.HeaderBuf.Close()
		c.HeaderBuf = nil
	}
	if c.BodyBuf != nil {
		c.BodyBuf.Close()
		c.BodyBuf = nil
	}
	c.HeaderState = HeaderIncomplete
	c.RegenerateHint = false
	c.PendingPath = ""
	c.Active = false
}

// Lock and Unlock expose the record's mutex so the event loop can guard a
// full read-process-write cycle without a second lock type.
func (c *Conn) Lock()   { c.mu.Lock() }
func (c *Conn) Unlock() { c.mu.Unlock() }
