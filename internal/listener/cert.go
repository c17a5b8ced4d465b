package listener

import (
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/pkcs12"
)

// boundCert is the certificate currently serving the TLS listener, plus
// enough identity to decide whether the on-disk file has been replaced.
type boundCert struct {
	cert        tls.Certificate
	path        string
	fingerprint string
	modTime     time.Time
}

// loadCertificate reads the file at path and returns the certificate along
// with the SHA-256 fingerprint of the file bytes. PKCS#12 containers
// (.pfx/.p12) are decoded with the configured password; anything else is
// treated as a PEM bundle holding both certificate and key.
func loadCertificate(path, password string) (tls.Certificate, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, "", fmt.Errorf("read certificate %s: %w", path, err)
	}
	sum := sha256.Sum256(raw)
	fp := hex.EncodeToString(sum[:])

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pfx", ".p12":
		key, leaf, err := pkcs12.Decode(raw, password)
		if err != nil {
			return tls.Certificate{}, "", fmt.Errorf("decode pkcs12 %s: %w", path, err)
		}
		return tls.Certificate{
			Certificate: [][]byte{leaf.Raw},
			PrivateKey:  key,
			Leaf:        leaf,
		}, fp, nil
	default:
		cert, err := tls.X509KeyPair(raw, raw)
		if err != nil {
			return tls.Certificate{}, "", fmt.Errorf("parse certificate %s: %w", path, err)
		}
		return cert, fp, nil
	}
}

// changed reports whether the certificate file no longer matches this bound
// certificate. The modification time short-circuits the hash so the listening
// loop is not rereading the file on every iteration.
func (b *boundCert) changed(path string) bool {
	if b == nil || b.path != path {
		return true
	}
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	if info.ModTime().Equal(b.modTime) {
		return false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return true
	}
	sum := sha256.Sum256(raw)
	if hex.EncodeToString(sum[:]) != b.fingerprint {
		return true
	}
	// Same bytes, touched file: remember the new mtime.
	b.modTime = info.ModTime()
	return false
}
