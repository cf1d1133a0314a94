package fiscal

import (
	"fmt"
	"strings"
)

// Taxonomía de errores del núcleo fiscal. Cada tipo conserva el detalle
// estructurado (clase + causa + identificadores) para diagnóstico operativo.
//
// Los errores de certificado y de firma son irrecuperables para la
// configuración actual del proceso. Los de transporte son reintenables por
// el caller; el núcleo nunca reintenta por su cuenta porque la solicitud de
// CAE no es idempotente una vez consumido el número de comprobante.

// ── Certificado ───────────────────────────────────────────────────────────────

// CertificateErrorKind clasifica los errores de CertificateError.
type CertificateErrorKind string

// Clases de error de certificado.
const (
	CertificateNotFound     CertificateErrorKind = "NOT_FOUND"
	CertificateParseFailure CertificateErrorKind = "PARSE_FAILURE"
	CertificateExpired      CertificateErrorKind = "EXPIRED"
)

// CertificateError es un error al cargar o validar el certificado.
type CertificateError struct {
	Kind CertificateErrorKind
	Path string
	Err  error
}

func (e *CertificateError) Error() string {
	msg := fmt.Sprintf("certificado [%s]", e.Kind)
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CertificateError) Unwrap() error { return e.Err }

// ── Firma ─────────────────────────────────────────────────────────────────────

// SigningErrorKind clasifica los errores de SigningError.
type SigningErrorKind string

// Clases de error de firma CMS.
const (
	SigningInvalidKeyMaterial SigningErrorKind = "INVALID_KEY_MATERIAL"
	SigningEncodingFailure    SigningErrorKind = "ENCODING_FAILURE"
)

// SigningError es un error al construir el sobre CMS firmado.
type SigningError struct {
	Kind SigningErrorKind
	Err  error
}

func (e *SigningError) Error() string {
	msg := fmt.Sprintf("firma CMS [%s]", e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SigningError) Unwrap() error { return e.Err }

// ── Autenticación (WSAA) ──────────────────────────────────────────────────────

// AuthErrorKind clasifica los errores de AuthError.
type AuthErrorKind string

// Clases de error de autenticación.
const (
	AuthNetworkUnavailable AuthErrorKind = "NETWORK_UNAVAILABLE"
	AuthRemoteRejected     AuthErrorKind = "REMOTE_REJECTED"
	AuthMalformedResponse  AuthErrorKind = "MALFORMED_RESPONSE"
	AuthLoginFailed        AuthErrorKind = "LOGIN_FAILED"
)

// AuthError es un error al obtener o renovar el ticket de autenticación.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("autenticación WSAA [%s]", e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// ── Numeración (WSFE) ─────────────────────────────────────────────────────────

// SequenceErrorKind clasifica los errores de SequenceError.
type SequenceErrorKind string

// Clases de error de consulta de numeración.
const (
	SequenceUnauthorized SequenceErrorKind = "UNAUTHORIZED"
	SequenceTransport    SequenceErrorKind = "TRANSPORT"
)

// SequenceError es un error al consultar el último número autorizado
// para un (punto de venta, tipo de comprobante).
type SequenceError struct {
	Kind         SequenceErrorKind
	PointOfSale  int
	DocumentType DocumentType
	Err          error
}

func (e *SequenceError) Error() string {
	msg := fmt.Sprintf("numeración [%s] PV %d tipo %s", e.Kind, e.PointOfSale, e.DocumentType)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SequenceError) Unwrap() error { return e.Err }

// ── Autorización (WSFE) ───────────────────────────────────────────────────────

// AuthorizationError es un rechazo global de la solicitud de CAE: la lista
// de errores no está asociada a ningún detalle y no hay resultado parcial.
// El caller no debe considerar consumido el número de comprobante.
type AuthorizationError struct {
	PointOfSale  int
	DocumentType DocumentType
	Errors       []Observation
}

func (e *AuthorizationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, obs := range e.Errors {
		msgs[i] = fmt.Sprintf("[%d] %s", obs.Code, obs.Message)
	}
	return fmt.Sprintf("autorización rechazada globalmente PV %d tipo %s: %s",
		e.PointOfSale, e.DocumentType, strings.Join(msgs, "; "))
}
