package mitm

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/hintproxy/hintproxy/pkg/errors"
	"github.com/hintproxy/hintproxy/pkg/tlsconfig"
)

// ServerConfig builds the tls.Config the proxy presents to the client,
// minting a fresh leaf for whatever SNI name the client's ClientHello
// carries (matching initializeClientContext's single shared SSL_CTX,
// generalized from a single preloaded certificate to on-demand minting per
// host).
func (ca *CA) ServerConfig() *tls.Config {
	cfg := &tls.Config{
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			host := hello.ServerName
			if host == "" {
				return nil, errors.NewCertError("", fmt.Errorf("client sent no SNI on MITM handshake"))
			}
			return ca.LeafFor(host)
		},
	}
	tlsconfig.ApplyVersionProfile(cfg, tlsconfig.ProfileSecure)
	tlsconfig.ApplyCipherSuites(cfg, tlsconfig.VersionTLS12)
	return cfg
}

// HandshakeClient performs the server-side TLS handshake with the client
// over an already-accepted TCP connection, presenting the locally minted
// leaf for its SNI.
func (ca *CA) HandshakeClient(ctx context.Context, conn net.Conn) (*tls.Conn, error) {
	tlsConn := tls.Server(conn, ca.ServerConfig())
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, errors.NewTLSError(conn.RemoteAddr().String(), 0, err)
	}
	return tlsConn, nil
}

// UpgradeOrigin TLS-handshakes an already-dialed plain connection to the
// origin. The event loop dials via tunnel.DialOrigin first so the raw
// connection's file descriptor can be registered before this handshake
// replaces it with a *tls.Conn.
func UpgradeOrigin(ctx context.Context, conn net.Conn, host string, port int) (*tls.Conn, error) {
	cfg := &tls.Config{ServerName: host}
	tlsconfig.ApplyVersionProfile(cfg, tlsconfig.ProfileSecure)

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, errors.NewTLSError(host, port, err)
	}
	return tlsConn, nil
}
