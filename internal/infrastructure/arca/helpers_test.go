package arca_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RodrigoSola/corrafer-fiscal/internal/infrastructure/arca"
)

// writeTestCertPEM genera un certificado autofirmado con la ventana de
// validez indicada y lo escribe junto a su llave en dir. Devuelve las rutas.
func writeTestCertPEM(t *testing.T, dir string, notBefore, notAfter time.Time) (certPath, keyPath string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "corrafer-test", Organization: []string{"Corrafer SRL"}},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")

	certOut := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyOut := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	require.NoError(t, os.WriteFile(certPath, certOut, 0o600))
	require.NoError(t, os.WriteFile(keyPath, keyOut, 0o600))
	return certPath, keyPath
}

// loadTestMaterial genera y carga un certificado vigente.
func loadTestMaterial(t *testing.T) *arca.Material {
	t.Helper()
	now := time.Now()
	certPath, keyPath := writeTestCertPEM(t, t.TempDir(), now.Add(-time.Hour), now.Add(24*time.Hour))
	material, err := arca.LoadFromPEM(certPath, keyPath)
	require.NoError(t, err)
	return material
}
