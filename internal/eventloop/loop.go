// Package eventloop implements the single-threaded readiness-driven
// dispatch loop (spec §3 "Event loop", §4.D), grounded on
// original_source/proxy.c's main accept/select dispatch and on the pack's
// only direct golang.org/x/sys/unix consumer (caddyserver-caddy's
// listen_unix.go, which reaches into unix for raw socket options); this
// package extends that same package from socket options to the readiness
// syscall itself via unix.Poll.
//
// Exactly one goroutine ever touches the connection table, the cache, or
// any connection record: the goroutine running Run. The CLI's signal
// handler communicates shutdown by closing a channel this loop selects on
// between poll cycles, never by touching loop state directly (SPEC_FULL
// §5).
package eventloop

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sort"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hintproxy/hintproxy/internal/cache"
	"github.com/hintproxy/hintproxy/internal/config"
	"github.com/hintproxy/hintproxy/internal/connectparse"
	"github.com/hintproxy/hintproxy/internal/conntable"
	"github.com/hintproxy/hintproxy/internal/llm"
	"github.com/hintproxy/hintproxy/internal/logging"
	"github.com/hintproxy/hintproxy/internal/mitm"
	"github.com/hintproxy/hintproxy/internal/reassemble"
	"github.com/hintproxy/hintproxy/internal/record"
	"github.com/hintproxy/hintproxy/internal/tunnel"
	"github.com/hintproxy/hintproxy/pkg/buffer"
	"github.com/hintproxy/hintproxy/pkg/constants"
)

var log = logging.For("eventloop")

// pollTimeout bounds how long a single unix.Poll call blocks, so Run can
// notice a closed stop channel even with no socket activity.
const pollTimeout = 500 * time.Millisecond

// Loop owns the listening socket and every structure a readiness event can
// touch: the connection table, the response cache, the MITM root CA, and
// the LLM orchestrator.
type Loop struct {
	cfg          config.Config
	ca           *mitm.CA
	orchestrator *llm.Orchestrator

	listener *net.TCPListener
	listenFD int

	table *conntable.Table
	cache *cache.Cache

	fds        map[int]int // record handle -> OS file descriptor
	nextHandle int

	overlayMu sync.RWMutex
	overlay   []byte // most recently rendered hint overlay, reused until regenerated
}

func (l *Loop) getOverlay() []byte {
	l.overlayMu.RLock()
	defer l.overlayMu.RUnlock()
	return l.overlay
}

func (l *Loop) setOverlay(overlay []byte) {
	l.overlayMu.Lock()
	l.overlay = overlay
	l.overlayMu.Unlock()
}

// New builds a Loop bound to cfg.ListenPort. ca and orchestrator may be
// nil when cfg.Mode is config.ModeTunnel, since neither TLS termination
// nor hint generation happens in that mode.
func New(cfg config.Config, ca *mitm.CA, orchestrator *llm.Orchestrator) (*Loop, error) {
	addr := &net.TCPAddr{Port: cfg.ListenPort}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, err
	}

	fd, err := fdOf(ln)
	if err != nil {
		ln.Close()
		return nil, err
	}

	return &Loop{
		cfg:          cfg,
		ca:           ca,
		orchestrator: orchestrator,
		listener:     ln,
		listenFD:     fd,
		table:        conntable.New(),
		cache:        cache.New(cfg.CacheSize),
		fds:          make(map[int]int),
		nextHandle:   1,
	}, nil
}

// Close releases the listening socket.
func (l *Loop) Close() error {
	return l.listener.Close()
}

// Run drives the readiness loop until ctx is cancelled or stop is closed.
func (l *Loop) Run(ctx context.Context, stop <-chan struct{}) error {
	log.WithField("port", l.cfg.ListenPort).Info("event loop starting")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		fds := l.buildPollSet()
		n, err := unix.Poll(fds, int(pollTimeout/time.Millisecond))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n == 0 {
			continue
		}

		for _, pfd := range fds {
			if pfd.Revents == 0 {
				continue
			}
			if int(pfd.Fd) == l.listenFD {
				l.acceptOne()
				continue
			}
			l.handleReadable(l.handleForFD(int(pfd.Fd)))
		}
	}
}

// buildPollSet returns the listening socket plus every tracked
// connection's fd, in ascending handle order, matching the reference
// proxy's ascending-slot dispatch so readiness processing order is
// deterministic across runs.
func (l *Loop) buildPollSet() []unix.PollFd {
	handles := make([]int, 0, len(l.fds))
	for h := range l.fds {
		handles = append(handles, h)
	}
	sort.Ints(handles)

	fds := make([]unix.PollFd, 0, len(handles)+1)
	fds = append(fds, unix.PollFd{Fd: int32(l.listenFD), Events: unix.POLLIN})
	for _, h := range handles {
		fds = append(fds, unix.PollFd{Fd: int32(l.fds[h]), Events: unix.POLLIN})
	}
	return fds
}

func (l *Loop) handleForFD(fd int) int {
	for h, f := range l.fds {
		if f == fd {
			return h
		}
	}
	return -1
}

// acceptOne accepts one pending client connection and registers it in the
// connection table as a fresh, not-yet-classified record (spec §4.A).
func (l *Loop) acceptOne() {
	conn, err := l.listener.AcceptTCP()
	if err != nil {
		log.WithField("error", err).Warn("accept failed")
		return
	}

	handle := l.nextHandle
	l.nextHandle++

	fd, err := fdOf(conn)
	if err != nil {
		log.WithField("error", err).Warn("failed to extract client fd")
		conn.Close()
		return
	}

	rec := record.New(handle, record.RoleClient)
	rec.NetConn = conn
	rec.HeaderBuf = buffer.New(constants.MaxHeaderBytes)

	l.table.Put(rec)
	l.fds[handle] = fd

	log.WithField("handle", handle).Debug("accepted client connection")
}

// handleReadable processes one readiness event on an established
// connection, advancing whatever phase that connection is in: header
// accumulation, tunnel relay, or MITM request/response relay.
func (l *Loop) handleReadable(handle int) {
	if handle == -1 {
		return
	}
	rec, ok := l.table.Get(handle)
	if !ok {
		return
	}

	rec.Lock()
	defer rec.Unlock()
	rec.Touch()

	switch {
	case rec.HeaderState != record.HeaderComplete && rec.Mode == record.ModeTunnel && rec.PeerHandle == 0:
		l.readHeader(rec)
	case rec.PeerHandle != 0 && rec.Mode == record.ModeTunnel:
		l.relayTunnel(rec)
	case rec.PeerHandle != 0 && rec.Mode == record.ModeMITM:
		l.relayMITM(rec)
	}
}

// readHeader accumulates bytes into the client's header buffer until a
// full header block has arrived, then classifies the connection as a
// CONNECT pair, a bypassed tunnel, a hint-regeneration request, or a CORS
// preflight (spec §4.E).
func (l *Loop) readHeader(rec *record.Conn) {
	chunk := make([]byte, 4096)
	n, err := rec.NetConn.Read(chunk)
	if n > 0 {
		rec.HeaderBuf.Write(chunk[:n])
	}
	if err != nil {
		l.teardown(rec)
		return
	}

	header := rec.HeaderBuf.Bytes()
	if connectparse.HeaderEnd(header) == -1 {
		return
	}

	req := connectparse.Parse(header)
	switch {
	case req.IsConnect:
		l.establishPair(rec, req)
	case connectparse.HasRegenerateHintMarker(header):
		l.handleRegenerateHint(rec, header)
	default:
		l.writeAndClose(rec, []byte(connectparse.CORSPreflightResponse))
	}
}

// establishPair dials the origin and either hands the pair off to the
// tunnel relay (bypass substring match) or begins a MITM TLS handshake on
// both legs (spec §4.F/§4.G).
func (l *Loop) establishPair(rec *record.Conn, req connectparse.Request) {
	rec.TargetHost = req.Host
	rec.TargetPort = req.Port

	if _, err := rec.NetConn.Write([]byte(connectparse.ConnectionEstablished)); err != nil {
		l.teardown(rec)
		return
	}

	bypass := l.ca == nil || l.cfg.ShouldBypass(req.Host)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	origin, err := tunnel.DialOrigin(ctx, req.Host, req.Port)
	if err != nil {
		log.WithField("host", req.Host).WithField("error", err).Warn("origin dial failed")
		l.teardown(rec)
		return
	}

	serverHandle := l.nextHandle
	l.nextHandle++
	fd, err := fdOf(origin)
	if err != nil {
		origin.Close()
		l.teardown(rec)
		return
	}

	serverRec := record.New(serverHandle, record.RoleServer)
	serverRec.NetConn = origin
	serverRec.PeerHandle = rec.Handle
	serverRec.TargetHost = req.Host
	serverRec.TargetPort = req.Port
	rec.PeerHandle = serverHandle

	if bypass {
		rec.Mode = record.ModeTunnel
		serverRec.Mode = record.ModeTunnel
	} else {
		rec.Mode = record.ModeMITM
		serverRec.Mode = record.ModeMITM
		if err := l.upgradeToMITM(rec, serverRec); err != nil {
			log.WithField("host", req.Host).WithField("error", err).Warn("mitm handshake failed")
			origin.Close()
			l.teardown(rec)
			return
		}
	}

	l.table.Put(serverRec)
	l.fds[serverHandle] = fd
}

// upgradeToMITM performs the client-facing forged-leaf handshake and the
// origin-facing real handshake. Both handshakes briefly block the loop
// goroutine, the same documented tradeoff the LLM call makes (spec §9):
// a fully asynchronous TLS handshake state machine is out of scope for
// this port.
func (l *Loop) upgradeToMITM(clientRec, serverRec *record.Conn) error {
	clientTLS, err := l.ca.HandshakeClient(context.Background(), clientRec.NetConn)
	if err != nil {
		return err
	}
	clientRec.ClientTLS = clientTLS

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	serverTLS, err := mitm.UpgradeOrigin(ctx, serverRec.NetConn, serverRec.TargetHost, serverRec.TargetPort)
	if err != nil {
		return err
	}
	serverRec.ServerTLS = serverTLS

	clientRec.HeaderBuf = buffer.New(constants.MaxHeaderBytes)
	clientRec.BodyBuf = buffer.New(constants.DefaultBodyLimit)
	serverRec.HeaderBuf = buffer.New(constants.MaxHeaderBytes)
	serverRec.BodyBuf = buffer.New(constants.DefaultBodyLimit)
	return nil
}

// relayTunnel copies one readiness event's worth of bytes to the paired
// connection (spec §4.G).
func (l *Loop) relayTunnel(rec *record.Conn) {
	peer, ok := l.table.Get(rec.PeerHandle)
	if !ok {
		l.teardown(rec)
		return
	}

	buf := make([]byte, constants.TunnelChunkSize)
	if _, err := tunnel.CopyOnce(peer.NetConn, rec.NetConn, buf); err != nil {
		l.teardown(rec)
		l.teardown(peer)
	}
}

// relayMITM reads one complete HTTP message from rec's TLS connection,
// mutates it if it is an origin response destined for the configured
// target host that declares a Content-Length and is not chunked (any other
// response passes through unmodified), and forwards it to the peer. The
// full message is read
// synchronously once its header has arrived; this gives up strict
// per-byte resumability across poll cycles in exchange for reusing
// internal/reassemble's existing header/body helpers unchanged, since a
// client or origin that has started sending a response is extremely
// unlikely to stall mid-body on a loopback-speed MITM path. The body
// accumulates into rec.BodyBuf rather than a local slice so a body past
// constants.DefaultBodyLimit spills to disk instead of growing the
// process's memory without bound; a spilled body bypasses guess capture
// and overlay injection and streams through unmodified. A header that
// outgrows constants.MaxHeaderBytes spills too, and since its end can no
// longer be searched for, the pair is dropped.
func (l *Loop) relayMITM(rec *record.Conn) {
	reader := mitmReader(rec)
	writer, peer := mitmPeerWriter(l, rec)
	if reader == nil || writer == nil {
		l.teardown(rec)
		return
	}

	chunk := make([]byte, 4096)
	n, err := reader.Read(chunk)
	if n > 0 {
		rec.HeaderBuf.Write(chunk[:n])
	}
	if err != nil {
		l.teardown(rec)
		l.teardown(peer)
		return
	}
	if rec.HeaderBuf.IsSpilled() {
		l.teardown(rec)
		l.teardown(peer)
		return
	}

	headerEnd := reassemble.FindHeaderEnd(rec.HeaderBuf.Bytes())
	if headerEnd == -1 {
		return
	}

	full := rec.HeaderBuf.Bytes()
	header := full[:headerEnd]
	rec.BodyBuf.Write(full[headerEnd:])

	contentLength := reassemble.ContentLength(header)
	if int64(contentLength) > rec.BodyBuf.Size() {
		reader.SetReadDeadline(time.Now().Add(constants.DefaultLLMReadTimeout))
		defer reader.SetReadDeadline(time.Time{})
	}
	for contentLength >= 0 && rec.BodyBuf.Size() < int64(contentLength) {
		n, err := reader.Read(chunk)
		if n > 0 {
			rec.BodyBuf.Write(chunk[:n])
		}
		if err != nil {
			break
		}
	}

	isTarget := rec.TargetHost == l.cfg.TargetHost
	body := rec.BodyBuf.Bytes()

	if rec.Role == record.RoleClient {
		header = reassemble.StripAcceptEncoding(header)
		if isTarget && body != nil {
			if guess, ok := reassemble.ExtractGuess(body); ok {
				go l.refreshOverlay(guess)
			}
		}

		path := requestPath(header)
		peer.PendingPath = path
		if cached, _, ok := l.cache.Get(peer.TargetHost+path, peer.TargetPort); ok {
			clientWriter, _ := mitmPeerWriter(l, peer)
			if clientWriter != nil {
				clientWriter.Write(cached)
			}
			rec.HeaderBuf.Reset()
			rec.BodyBuf.Reset()
			return
		}

		writer.Write(header)
		writeBody(writer, rec.BodyBuf)
	} else if isTarget && body != nil && contentLength >= 0 && !reassemble.IsChunked(header) {
		mutated := l.mutateResponse(header, body)
		writer.Write(mutated)
		if peer.PendingPath != "" {
			l.cache.Put(peer.TargetHost+peer.PendingPath, peer.TargetPort, mutated, header)
		}
	} else {
		writer.Write(header)
		writeBody(writer, rec.BodyBuf)
	}

	rec.HeaderBuf.Reset()
	rec.BodyBuf.Reset()
}

// writeBody streams buf's contents to w, reading from the spilled temp
// file when the accumulated body exceeded its memory threshold.
func writeBody(w net.Conn, buf *buffer.Buffer) {
	if !buf.IsSpilled() {
		w.Write(buf.Bytes())
		return
	}
	r, err := buf.Reader()
	if err != nil {
		return
	}
	defer r.Close()
	io.Copy(w, r)
}

// requestPath extracts the path component from an HTTP request line
// ("GET /path HTTP/1.1"), returning "/" if it cannot be parsed.
func requestPath(header []byte) string {
	line := header
	if idx := bytes.IndexByte(header, '\n'); idx != -1 {
		line = header[:idx]
	}
	fields := bytes.Fields(line)
	if len(fields) < 2 {
		return "/"
	}
	return string(fields[1])
}

// mutateResponse injects the current hint overlay into an HTML response
// body before relaying it to the client, rewriting Content-Length to
// match (spec §4.I).
func (l *Loop) mutateResponse(header, body []byte) []byte {
	if overlay := l.getOverlay(); overlay != nil {
		if injected, ok := reassemble.InjectBeforeBodyClose(body, overlay); ok {
			body = injected
			header = reassemble.RewriteContentLength(header, len(body))
		}
	}
	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	out = append(out, body...)
	return out
}

// refreshOverlay regenerates the hint overlay in response to a captured
// guess, run off the loop goroutine since it makes a blocking LLM call.
// The rendered bytes are swapped in under overlayMu since this goroutine
// and the loop goroutine's mutateResponse both touch l.overlay.
func (l *Loop) refreshOverlay(guess string) {
	if l.orchestrator == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	hints, err := l.orchestrator.GenerateHints(ctx, guess)
	if err != nil {
		log.WithField("error", err).Warn("llm call failed, keeping existing overlay")
		return
	}
	l.setOverlay(llm.RenderOverlay(hints, l.cfg.ListenPort))
}

// handleRegenerateHint serves the in-band regenerate-hint POST (spec
// §4.K), synchronously calling the LLM orchestrator and writing back the
// four-hint JSON body before closing the connection.
func (l *Loop) handleRegenerateHint(rec *record.Conn, header []byte) {
	if l.orchestrator == nil {
		l.writeAndClose(rec, []byte(connectparse.CORSPreflightResponse))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	guess, _ := reassemble.ExtractGuess(header)
	body, err := llm.RegenerateHintsJSON(ctx, l.orchestrator, guess)
	if err != nil {
		log.WithField("error", err).Warn("regenerate-hint failed")
	}
	l.writeAndClose(rec, llm.RegenerateHintsResponse(body))
}

func (l *Loop) writeAndClose(rec *record.Conn, data []byte) {
	rec.NetConn.Write(data)
	l.teardown(rec)
}

// teardown closes a connection's socket, removes it from the table and
// fd map, and tears down its peer if one exists.
func (l *Loop) teardown(rec *record.Conn) {
	if rec == nil {
		return
	}
	rec.NetConn.Close()
	l.table.Remove(rec.Handle)
	delete(l.fds, rec.Handle)
	rec.Reset()
}

// mitmReader returns the decrypted connection side of a MITM record: the
// forged-leaf client TLS conn for RoleClient, the origin TLS conn for
// RoleServer.
func mitmReader(rec *record.Conn) net.Conn {
	if rec.Role == record.RoleClient {
		return rec.ClientTLS
	}
	return rec.ServerTLS
}

// mitmPeerWriter returns the peer's decrypted connection along with the
// peer record itself.
func mitmPeerWriter(l *Loop, rec *record.Conn) (net.Conn, *record.Conn) {
	peer, ok := l.table.Get(rec.PeerHandle)
	if !ok {
		return nil, nil
	}
	if peer.Role == record.RoleClient {
		return peer.ClientTLS, peer
	}
	return peer.ServerTLS, peer
}

// fdOf extracts the OS file descriptor backing a net.Conn without
// duplicating it, for registration in the poll set.
func fdOf(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, errors.New("connection does not expose a raw file descriptor")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	if ctrlErr := raw.Control(func(f uintptr) { fd = int(f) }); ctrlErr != nil {
		return 0, ctrlErr
	}
	return fd, nil
}
