// Package mitm implements the TLS interception engine (spec §4.F): loading
// a locally trusted root CA, minting a per-host leaf certificate signed by
// that root, and deciding whether a given host should be downgraded to
// tunnel mode instead of intercepted.
//
// Grounded on original_source/mitm.c's initializeRootCert/
// initializeClientContext/setupServerCertificate/addSubjectAltName, and
// original_source/proxy.c's setConnectionMode for the bypass-substring
// heuristic. Go's crypto/x509 and crypto/rsa replace OpenSSL's EVP/X509
// API one-for-one; no example repo in the pack ships a certificate-minting
// library (caddy's certmagic is ACME-automation only, the wrong fit for
// locally-signed MITM leaves), so this stays on the standard library.
package mitm

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hintproxy/hintproxy/pkg/constants"
	"github.com/hintproxy/hintproxy/pkg/errors"
)

// CA holds the locally trusted root certificate and key used to sign leaf
// certificates, plus a cache of leaves already minted for a host so a
// repeated CONNECT to the same host doesn't re-run RSA keygen.
type CA struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey

	mu     sync.Mutex
	leaves map[string]*tls.Certificate
	serial int64
}

// LoadCA reads a PEM-encoded root certificate and private key from disk,
// matching initializeRootCert's fopen/PEM_read_X509/PEM_read_PrivateKey
// pair.
func LoadCA(certPath, keyPath string) (*CA, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, errors.NewIOError("read-ca-cert", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.NewIOError("read-ca-key", err)
	}

	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, errors.NewCertError("ca", err)
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, errors.NewCertError("ca", err)
	}
	rsaKey, ok := pair.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.NewCertError("ca", fmt.Errorf("root key is not RSA"))
	}

	return &CA{
		cert:   cert,
		key:    rsaKey,
		leaves: make(map[string]*tls.Certificate),
		serial: constants.InitialLeafSerial,
	}, nil
}

// GenerateCA creates a fresh self-signed root CA and writes it to
// certPath/keyPath, for the `gen-ca` CLI subcommand (SPEC_FULL §4.N).
func GenerateCA(certPath, keyPath string) error {
	key, err := rsa.GenerateKey(rand.Reader, constants.RootCAKeyBits)
	if err != nil {
		return errors.NewCertError("ca", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "hintproxy Root CA",
			Organization: []string{"hintproxy"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(constants.RootCAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return errors.NewCertError("ca", err)
	}

	if err := writePEM(certPath, "CERTIFICATE", der); err != nil {
		return err
	}
	return writePEM(keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))
}

// LeafFor mints (or returns a cached) leaf certificate for host, signed by
// the root CA, matching setupServerCertificate's 2048-bit RSA keygen,
// one-year validity, and SHA-256 signature, with the SAN set via
// addSubjectAltName.
func (ca *CA) LeafFor(host string) (*tls.Certificate, error) {
	ca.mu.Lock()
	if leaf, ok := ca.leaves[host]; ok {
		ca.mu.Unlock()
		return leaf, nil
	}
	ca.mu.Unlock()

	key, err := rsa.GenerateKey(rand.Reader, constants.LeafRSABits)
	if err != nil {
		return nil, errors.NewCertError(host, err)
	}

	ca.mu.Lock()
	serial := ca.serial
	ca.serial++
	ca.mu.Unlock()

	template := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject: pkix.Name{
			CommonName: host,
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(constants.LeafValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    []string{host},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, &key.PublicKey, ca.key)
	if err != nil {
		return nil, errors.NewCertError(host, err)
	}

	leaf := &tls.Certificate{
		Certificate: [][]byte{der, ca.cert.Raw},
		PrivateKey:  key,
	}

	ca.mu.Lock()
	ca.leaves[host] = leaf
	ca.mu.Unlock()

	return leaf, nil
}

// ShouldBypass reports whether host matches one of the configured bypass
// substrings, in which case the pair should run in tunnel mode instead of
// being intercepted (setConnectionMode's icloud/play/api heuristic,
// generalized to a configurable list per SPEC_FULL §4.L).
func ShouldBypass(host string, bypassSubstrings []string) bool {
	for _, s := range bypassSubstrings {
		if s != "" && strings.Contains(host, s) {
			return true
		}
	}
	return false
}

func writePEM(path, blockType string, der []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewIOError("write-pem", err)
	}
	defer f.Close()

	return pem.Encode(f, &pem.Block{Type: blockType, Bytes: der})
}
