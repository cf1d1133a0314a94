// Package arca implementa el cliente de los web services fiscales de
// ARCA (ex AFIP): WSAA (ticket de acceso) y WSFEv1 (autorización de
// comprobantes / CAE). SOAP sobre net/http, sin toolkit genérico.
package arca

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/RodrigoSola/corrafer-fiscal/internal/domain/fiscal"
)

// Material es el par certificado + llave privada con su ventana de validez.
// Inmutable una vez cargado; se recarga solo reiniciando el proceso.
type Material struct {
	Certificate *x509.Certificate
	PrivateKey  crypto.PrivateKey
	NotBefore   time.Time
	NotAfter    time.Time
}

// EnsureValid verifica que now esté dentro de la ventana de validez.
// Se invoca en la carga y además antes de cada operación de firma:
// el certificado puede vencer con el proceso corriendo.
func (m *Material) EnsureValid(now time.Time) error {
	if now.Before(m.NotBefore) || now.After(m.NotAfter) {
		return &fiscal.CertificateError{
			Kind: fiscal.CertificateExpired,
			Err: fmt.Errorf("fuera de la ventana de validez [%s, %s]",
				m.NotBefore.Format(time.RFC3339), m.NotAfter.Format(time.RFC3339)),
		}
	}
	return nil
}

// LoadFromPEM carga certificado y llave desde archivos PEM (separados o
// combinados en un solo archivo si keyPath está vacío).
func LoadFromPEM(certPath, keyPath string) (*Material, error) {
	if keyPath == "" {
		keyPath = certPath
	}
	certPEM, err := readKeyFile(certPath)
	if err != nil {
		return nil, err
	}
	keyPEM, err := readKeyFile(keyPath)
	if err != nil {
		return nil, err
	}
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, &fiscal.CertificateError{Kind: fiscal.CertificateParseFailure, Path: certPath, Err: err}
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, &fiscal.CertificateError{Kind: fiscal.CertificateParseFailure, Path: certPath, Err: err}
	}
	return newMaterial(leaf, pair.PrivateKey)
}

// LoadFromP12 carga certificado y llave desde un archivo .p12/.pfx.
// El password puede ser vacío si el archivo no está protegido.
func LoadFromP12(path, password string) (*Material, error) {
	data, err := readKeyFile(path)
	if err != nil {
		return nil, err
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, &fiscal.CertificateError{Kind: fiscal.CertificateParseFailure, Path: path, Err: err}
	}
	return newMaterial(cert, priv)
}

func newMaterial(cert *x509.Certificate, key crypto.PrivateKey) (*Material, error) {
	m := &Material{
		Certificate: cert,
		PrivateKey:  key,
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
	}
	if err := m.EnsureValid(time.Now()); err != nil {
		return nil, err
	}
	return m, nil
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &fiscal.CertificateError{Kind: fiscal.CertificateNotFound, Path: path, Err: err}
		}
		return nil, &fiscal.CertificateError{Kind: fiscal.CertificateParseFailure, Path: path, Err: err}
	}
	return data, nil
}
