package efi

import (
	"crypto/tls"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"

	pkgerrors "github.com/cobrafacil/cobrafacil-backend/pkg/errors"
)

// loadTLSConfig reads a PKCS#12 bundle from disk and builds the mutual
// TLS configuration required by the Efí API. Any failure here is a hard
// CodeCertificateUnavailable: the gateway is never called without the
// client certificate.
func loadTLSConfig(path string) (*tls.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCertificateUnavailable, err,
			fmt.Sprintf("read certificate bundle %s", path))
	}

	// Efí issues the bundle without a passphrase.
	blocks, err := pkcs12.ToPEM(data, "")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCertificateUnavailable, err,
			fmt.Sprintf("decode certificate bundle %s", path))
	}

	var pemData []byte
	for _, b := range blocks {
		pemData = append(pemData, pem.EncodeToMemory(b)...)
	}

	cert, err := tls.X509KeyPair(pemData, pemData)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCertificateUnavailable, err,
			fmt.Sprintf("build key pair from %s", path))
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
