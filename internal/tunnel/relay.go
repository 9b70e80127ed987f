// Package tunnel implements the non-MITM relay mode (spec §4.G): once a
// CONNECT target is downgraded (bypass substring match) or the proxy is
// configured for pure tunneling, bytes are copied byte-for-byte in both
// directions without any TLS termination or HTTP parsing.
//
// Grounded on original_source/tunnel.c's setupTunnelToServer/
// relayClientToServer/relayServerToClient: a dial to the origin followed by
// two independent copy loops. The reference proxy drives both loops from
// its single-threaded select() dispatch, one readiness event at a time;
// the event loop (internal/eventloop) calls CopyOnce per readiness event
// the same way. The caller supplies the read buffer; the event loop
// allocates a fresh one for each readiness event.
package tunnel

import (
	"context"
	"io"
	"net"
	"strconv"

	"github.com/hintproxy/hintproxy/pkg/constants"
	"github.com/hintproxy/hintproxy/pkg/errors"
)

// DialOrigin opens a plain TCP connection to host:port for tunnel mode.
func DialOrigin(ctx context.Context, host string, port int) (net.Conn, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, errors.NewConnectionError(host, port, err)
	}
	return conn, nil
}

// CopyOnce performs a single bounded read from src and writes whatever was
// read to dst in full before returning, matching the reference relay's
// read-then-write-until-drained loop for one readiness event. It returns
// the number of bytes relayed and io.EOF once src is closed.
func CopyOnce(dst, src net.Conn, buf []byte) (int, error) {
	if len(buf) == 0 {
		buf = make([]byte, constants.TunnelChunkSize)
	}

	n, err := src.Read(buf)
	if n > 0 {
		if _, werr := writeFull(dst, buf[:n]); werr != nil {
			return n, werr
		}
	}
	if err != nil {
		return n, err
	}
	return n, nil
}

func writeFull(dst net.Conn, data []byte) (int, error) {
	total := 0
	for total < len(data) {
		n, err := dst.Write(data[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Pipe relays bytes between two connections in both directions until
// either side closes or errors, for use outside the single-threaded event
// loop (e.g. a standalone CLI test harness). The main proxy drives tunnel
// connections through CopyOnce from the event loop instead, one readiness
// event at a time, so it never blocks the loop on a single slow peer.
func Pipe(ctx context.Context, a, b net.Conn) error {
	errCh := make(chan error, 2)
	go func() {
		_, err := io.Copy(a, b)
		errCh <- err
	}()
	go func() {
		_, err := io.Copy(b, a)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
