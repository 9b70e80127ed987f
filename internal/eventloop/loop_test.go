package eventloop

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hintproxy/hintproxy/internal/config"
)

func TestRequestPathParsesRequestLine(t *testing.T) {
	header := []byte("GET /widgets?id=1 HTTP/1.1\r\nHost: example.com\r\n\r\n")
	if got := requestPath(header); got != "/widgets?id=1" {
		t.Fatalf("requestPath = %q, want %q", got, "/widgets?id=1")
	}
}

func TestRequestPathDefaultsToSlashOnMalformedLine(t *testing.T) {
	if got := requestPath([]byte("garbage\r\n\r\n")); got != "/" {
		t.Fatalf("requestPath = %q, want %q", got, "/")
	}
}

func TestBuildPollSetAscendingOrder(t *testing.T) {
	l := &Loop{
		listenFD: 3,
		fds:      map[int]int{5: 50, 2: 20, 8: 80},
	}
	fds := l.buildPollSet()
	if len(fds) != 4 {
		t.Fatalf("expected 4 poll entries, got %d", len(fds))
	}
	if int(fds[0].Fd) != 3 {
		t.Fatalf("expected listener fd first, got %d", fds[0].Fd)
	}
	want := []int32{20, 50, 80}
	for i, w := range want {
		if fds[i+1].Fd != w {
			t.Fatalf("fds[%d] = %d, want %d (ascending handle order)", i+1, fds[i+1].Fd, w)
		}
	}
}

func TestHandleForFDUnknownReturnsNegativeOne(t *testing.T) {
	l := &Loop{fds: map[int]int{1: 10}}
	if got := l.handleForFD(99); got != -1 {
		t.Fatalf("handleForFD(99) = %d, want -1", got)
	}
	if got := l.handleForFD(10); got != 1 {
		t.Fatalf("handleForFD(10) = %d, want 1", got)
	}
}

// TestTunnelRoundTrip drives a full bypassed (non-MITM) CONNECT pair
// through a real Loop bound to an ephemeral port: a client dials the
// proxy, issues CONNECT to a local echo server, and confirms bytes sent
// after "Connection Established" are relayed and echoed back.
func TestTunnelRoundTrip(t *testing.T) {
	echoLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "start echo listener")
	defer echoLn.Close()

	go func() {
		conn, err := echoLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				conn.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	echoHost, echoPortStr, _ := net.SplitHostPort(echoLn.Addr().String())

	cfg := config.Default()
	cfg.ListenPort = 0

	l, err := New(cfg, nil, nil)
	require.NoError(t, err, "construct loop")
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := make(chan struct{})
	defer close(stop)

	go l.Run(ctx, stop)

	client, err := net.Dial("tcp", l.listener.Addr().String())
	require.NoError(t, err, "dial proxy")
	defer client.Close()

	connectReq := "CONNECT " + echoHost + ":" + echoPortStr + " HTTP/1.1\r\n" +
		"Host: " + echoHost + ":" + echoPortStr + "\r\n\r\n"
	_, err = client.Write([]byte(connectReq))
	require.NoError(t, err, "write CONNECT")

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	reader := bufio.NewReader(client)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err, "read CONNECT response")
	require.Contains(t, statusLine, "200")
	// drain the blank line terminating the CONNECT response headers.
	_, err = reader.ReadString('\n')
	require.NoError(t, err, "read trailing CRLF")

	payload := []byte("hello through the tunnel")
	_, err = client.Write(payload)
	require.NoError(t, err, "write tunnel payload")

	echoed := make([]byte, len(payload))
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = readFull(reader, echoed)
	require.NoError(t, err, "read echoed payload")
	require.Equal(t, payload, echoed)
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
