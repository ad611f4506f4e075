package mitm

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateCAAndIssueLeaf(t *testing.T) {
	ca, err := GenerateCA("go-http-playback-proxy dev CA")
	if err != nil {
		t.Fatal(err)
	}
	leaf, err := ca.IssueFor("example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(leaf.Certificate) == 0 {
		t.Fatal("expected a non-empty certificate chain")
	}
	parsed, err := x509.ParseCertificate(leaf.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Subject.CommonName != "example.com" {
		t.Fatalf("got CN %q", parsed.Subject.CommonName)
	}
	if len(parsed.DNSNames) != 1 || parsed.DNSNames[0] != "example.com" {
		t.Fatalf("got SANs %v", parsed.DNSNames)
	}
}

func TestIssueForIsCachedPerHost(t *testing.T) {
	ca, err := GenerateCA("dev CA")
	if err != nil {
		t.Fatal(err)
	}
	a, err := ca.IssueFor("example.com:443")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ca.IssueFor("example.com")
	if err != nil {
		t.Fatal(err)
	}
	if string(a.Certificate[0]) != string(b.Certificate[0]) {
		t.Fatal("expected host:port and bare host to share a cached leaf")
	}
}

func TestIssueForIPAddress(t *testing.T) {
	ca, err := GenerateCA("dev CA")
	if err != nil {
		t.Fatal(err)
	}
	leaf, err := ca.IssueFor("127.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := x509.ParseCertificate(leaf.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.IPAddresses) != 1 {
		t.Fatalf("expected one IP SAN, got %v", parsed.IPAddresses)
	}
}

func TestWritePEMPublishesCAFile(t *testing.T) {
	dir := t.TempDir()
	ca, err := GenerateCA("dev CA")
	if err != nil {
		t.Fatal(err)
	}
	if err := ca.WritePEM(dir, "ca.pem"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "ca.pem"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tls.X509KeyPair(data, data); err == nil {
		t.Fatal("ca.pem should contain only the certificate, not a usable key pair")
	}
	block, rest := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" || len(rest) != 0 {
		t.Fatalf("expected exactly one CERTIFICATE PEM block, got %v rest=%d", block, len(rest))
	}
}
