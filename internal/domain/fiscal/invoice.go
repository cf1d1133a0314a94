// Package fiscal contiene el modelo de dominio de la facturación electrónica
// ante ARCA (ex AFIP): tipos de comprobante, clasificación del receptor,
// cálculo de totales y el resultado de la autorización (CAE).
package fiscal

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentType es el tipo de comprobante fiscal (A, B o C).
type DocumentType string

// Tipos de comprobante soportados.
const (
	DocumentTypeA DocumentType = "A"
	DocumentTypeB DocumentType = "B"
	DocumentTypeC DocumentType = "C"
)

// Code devuelve el código de comprobante que usa el WS de ARCA
// (1 = Factura A, 6 = Factura B, 11 = Factura C).
func (t DocumentType) Code() int {
	switch t {
	case DocumentTypeA:
		return 1
	case DocumentTypeB:
		return 6
	default:
		return 11
	}
}

// TaxDiscriminated indica si el IVA se discrimina en el comprobante (solo tipo A).
func (t DocumentType) TaxDiscriminated() bool {
	return t == DocumentTypeA
}

// Códigos de tipo de documento del receptor según tabla de ARCA.
const (
	BuyerDocCUIT = 80 // CUIT (11 dígitos)
	BuyerDocDNI  = 96 // DNI
	BuyerDocNone = 99 // Sin identificar / Consumidor Final
)

// Buyer es el receptor del comprobante. TaxID vacío o "0" significa
// consumidor final sin identificar.
type Buyer struct {
	TaxID          string
	FiscalCategory string // RI, EX, MONOTRIBUTO, CF... (ver Classify)
	Name           string
}

// DocType devuelve el código de tipo de documento para el WS:
// CUIT si el TaxID tiene 11 dígitos, DNI si tiene otro largo, 99 si no hay.
func (b Buyer) DocType() int {
	digits := b.digits()
	switch {
	case digits == "":
		return BuyerDocNone
	case len(digits) == 11:
		return BuyerDocCUIT
	default:
		return BuyerDocDNI
	}
}

// DocNumber devuelve el número de documento del receptor (0 si no hay).
func (b Buyer) DocNumber() int64 {
	digits := b.digits()
	if digits == "" {
		return 0
	}
	var n int64
	for _, r := range digits {
		n = n*10 + int64(r-'0')
	}
	return n
}

func (b Buyer) digits() string {
	var sb strings.Builder
	for _, r := range b.TaxID {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	d := sb.String()
	if d == "" || strings.Trim(d, "0") == "" {
		return ""
	}
	return d
}

// LineItem es una línea del comprobante. UnitPriceNet puede ser cero:
// para tipo A se deriva desde UnitPriceGross (ver ComputeTotals).
type LineItem struct {
	Description    string
	Quantity       decimal.Decimal
	UnitPriceNet   decimal.Decimal
	UnitPriceGross decimal.Decimal
}

// InvoiceRequest es la solicitud de autorización de un comprobante.
// Inmutable durante todo el intento de autorización.
type InvoiceRequest struct {
	PointOfSale int
	Buyer       Buyer
	LineItems   []LineItem
	IssueDate   time.Time
}

// TaxBreakdown son los totales del comprobante ya clasificado.
// Se calcula en cada solicitud; nunca se persiste desde el núcleo fiscal.
type TaxBreakdown struct {
	DocumentType DocumentType
	Exempt       bool
	Net          decimal.Decimal
	TaxAmount    decimal.Decimal
	Gross        decimal.Decimal
}

// Outcome es el resultado de negocio de una autorización.
type Outcome string

// Resultados posibles de la autorización.
const (
	OutcomeApproved Outcome = "APROBADO"
	OutcomeRejected Outcome = "RECHAZADO"
)

// Observation es un par código+mensaje devuelto por ARCA
// (observaciones de rechazo o errores globales).
type Observation struct {
	Code    int
	Message string
}

// AuthorizationResult es el resultado de una solicitud de autorización.
// Un rechazo por observaciones es un resultado de negocio, no un error.
type AuthorizationResult struct {
	PointOfSale         int
	DocumentType        DocumentType
	DocumentNumber      int64
	Outcome             Outcome
	AuthorizationCode   string    // CAE; vacío si Outcome es RECHAZADO
	AuthorizationExpiry time.Time // vencimiento del CAE
	Observations        []Observation
}

// Approved indica si el comprobante fue aprobado por ARCA.
func (r *AuthorizationResult) Approved() bool {
	return r.Outcome == OutcomeApproved
}
