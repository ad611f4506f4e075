// Package mitm implements the MITM listener's certificate authority (C3):
// an in-memory self-signed root CA that mints per-authority leaf
// certificates on demand, with a bounded cache.
package mitm

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultLeafCacheSize bounds the per-host leaf certificate cache so a
// long-lived recording session against many hosts cannot grow it
// unboundedly, unlike the teacher's plain map cache.
const defaultLeafCacheSize = 4096

// leafTTL is how long a minted leaf certificate remains valid.
const leafTTL = 24 * time.Hour

// CertAuthority mints and caches per-authority leaf certificates signed by
// an in-memory root CA, grounded on the teacher's infrastructure/httpapi/
// mitm.go CertAuthority.
type CertAuthority struct {
	certPEM []byte
	keyPEM  []byte

	caCert *x509.Certificate
	caKey  *rsa.PrivateKey

	cache *lru.Cache[string, tls.Certificate]
}

// GenerateCA creates a fresh self-signed root CA, matching spec.md §4.3
// "it generates an in-memory root CA (self-signed)".
func GenerateCA(commonName string) (*CertAuthority, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("mitm: generate CA key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("mitm: generate CA serial: %w", err)
	}
	now := time.Now().Add(-5 * time.Minute)
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now,
		NotAfter:              now.AddDate(5, 0, 0),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		SubjectKeyId:          []byte{1, 2, 3, 4, 5, 6},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("mitm: create CA certificate: %w", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	caCert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("mitm: parse generated CA certificate: %w", err)
	}
	cache, err := lru.New[string, tls.Certificate](defaultLeafCacheSize)
	if err != nil {
		return nil, fmt.Errorf("mitm: create leaf cache: %w", err)
	}
	return &CertAuthority{certPEM: certPEM, keyPEM: keyPEM, caCert: caCert, caKey: key, cache: cache}, nil
}

// CertPEM returns the root CA certificate in PEM form, e.g. for a test
// client that needs to trust it without going through WritePEM.
func (ca *CertAuthority) CertPEM() []byte {
	out := make([]byte, len(ca.certPEM))
	copy(out, ca.certPEM)
	return out
}

// WritePEM publishes the root CA certificate to dir/ca.pem, per spec.md §6
// "self-signed CA MUST be published as a PEM file at a known location
// under the inventory directory".
func (ca *CertAuthority) WritePEM(dir, filename string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mitm: create inventory dir: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, filename), ca.certPEM, 0o644)
}

// IssueFor mints (or returns a cached) leaf certificate for host, which may
// be a bare hostname, an IP literal, or a host:port authority.
func (ca *CertAuthority) IssueFor(host string) (tls.Certificate, error) {
	h := strings.TrimSpace(host)
	if h == "" {
		return tls.Certificate{}, errors.New("mitm: empty host for certificate issuance")
	}
	if strings.Contains(h, ":") {
		if v, _, err := net.SplitHostPort(h); err == nil {
			h = v
		}
	}
	if cert, ok := ca.cache.Get(h); ok {
		return cert, nil
	}

	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}
	now := time.Now().Add(-5 * time.Minute)
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: h},
		NotBefore:             now,
		NotAfter:              now.Add(leafTTL),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{h},
	}
	if ip := net.ParseIP(h); ip != nil {
		tmpl.IPAddresses = []net.IP{ip}
		tmpl.DNSNames = nil
		tmpl.Subject = pkix.Name{CommonName: ip.String()}
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.caCert, &leafKey.PublicKey, ca.caKey)
	if err != nil {
		return tls.Certificate{}, err
	}
	leafCertPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	leafKeyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(leafKey)})
	chain := append(append([]byte{}, leafCertPEM...), ca.certPEM...)
	leaf, err := tls.X509KeyPair(chain, leafKeyPEM)
	if err != nil {
		return tls.Certificate{}, err
	}
	ca.cache.Add(h, leaf)
	return leaf, nil
}
