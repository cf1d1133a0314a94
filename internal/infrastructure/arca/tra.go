package arca

import (
	"crypto"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"time"

	"go.mozilla.org/pkcs7"

	"github.com/RodrigoSola/corrafer-fiscal/internal/domain/fiscal"
)

// Ventana temporal del TRA: la generación se retrasa 10 minutos para
// tolerar desfasaje de reloj contra el servidor de ARCA, y el pedido
// expira a las 24 horas.
const (
	traGenerationSkew = 10 * time.Minute
	traLifetime       = 24 * time.Hour
)

// ServiceWSFE es el identificador del servicio de facturación en el TRA.
const ServiceWSFE = "wsfe"

// loginTicketRequest es el TRA (Ticket de Requerimiento de Acceso) que se
// firma y envía al WSAA.
type loginTicketRequest struct {
	XMLName xml.Name  `xml:"loginTicketRequest"`
	Version string    `xml:"version,attr"`
	Header  traHeader `xml:"header"`
	Service string    `xml:"service"`
}

type traHeader struct {
	UniqueID       int64  `xml:"uniqueId"`
	GenerationTime string `xml:"generationTime"`
	ExpirationTime string `xml:"expirationTime"`
}

// TicketSigner construye el TRA y produce el sobre CMS firmado (base64)
// que el WSAA acepta como credencial. Operación puramente de CPU: no hay
// dependencia de red, lo que permite tests deterministas inyectando Clock.
type TicketSigner struct {
	material *Material
	service  string

	// Clock permite fijar el reloj en tests. nil usa time.Now.
	Clock func() time.Time
}

// NewTicketSigner construye el firmante para un servicio (normalmente ServiceWSFE).
func NewTicketSigner(material *Material, service string) *TicketSigner {
	if service == "" {
		service = ServiceWSFE
	}
	return &TicketSigner{material: material, service: service}
}

func (s *TicketSigner) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// BuildTRA arma el XML del ticket de requerimiento de acceso.
func (s *TicketSigner) BuildTRA() ([]byte, error) {
	now := s.now()
	tra := loginTicketRequest{
		Version: "1.0",
		Header: traHeader{
			UniqueID:       now.Unix(),
			GenerationTime: now.Add(-traGenerationSkew).Format(time.RFC3339),
			ExpirationTime: now.Add(traLifetime).Format(time.RFC3339),
		},
		Service: s.service,
	}
	body, err := xml.MarshalIndent(tra, "", "  ")
	if err != nil {
		return nil, &fiscal.SigningError{Kind: fiscal.SigningEncodingFailure, Err: err}
	}
	return append([]byte(xml.Header), body...), nil
}

// Sign construye el TRA y lo envuelve en un CMS SignedData (SHA-256) con
// los atributos autenticados content-type y message-digest — ambos
// obligatorios: sin ellos el WSAA rechaza un sobre técnicamente válido.
// Devuelve el DER codificado en base64, listo para loginCms.
func (s *TicketSigner) Sign() (string, error) {
	if err := s.material.EnsureValid(s.now()); err != nil {
		return "", err
	}
	if err := s.checkKeyPair(); err != nil {
		return "", err
	}

	tra, err := s.BuildTRA()
	if err != nil {
		return "", err
	}

	signed, err := pkcs7.NewSignedData(tra)
	if err != nil {
		return "", &fiscal.SigningError{Kind: fiscal.SigningEncodingFailure, Err: err}
	}
	signed.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := signed.AddSigner(s.material.Certificate, s.material.PrivateKey, pkcs7.SignerInfoConfig{}); err != nil {
		return "", &fiscal.SigningError{Kind: fiscal.SigningEncodingFailure, Err: err}
	}
	der, err := signed.Finish()
	if err != nil {
		return "", &fiscal.SigningError{Kind: fiscal.SigningEncodingFailure, Err: err}
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// checkKeyPair verifica que la llave privada corresponda al certificado.
func (s *TicketSigner) checkKeyPair() error {
	signer, ok := s.material.PrivateKey.(crypto.Signer)
	if !ok {
		return &fiscal.SigningError{
			Kind: fiscal.SigningInvalidKeyMaterial,
			Err:  fmt.Errorf("la llave privada no implementa crypto.Signer"),
		}
	}
	pub, ok := s.material.Certificate.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(signer.Public()) {
		return &fiscal.SigningError{
			Kind: fiscal.SigningInvalidKeyMaterial,
			Err:  fmt.Errorf("la llave privada no corresponde al certificado"),
		}
	}
	return nil
}
