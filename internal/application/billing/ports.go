// Package billing orquesta la emisión de comprobantes fiscales: clasifica
// al receptor, resuelve la numeración, solicita el CAE y entrega el
// resultado a los colaboradores de persistencia y representación gráfica.
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/RodrigoSola/corrafer-fiscal/internal/domain/fiscal"
	"github.com/RodrigoSola/corrafer-fiscal/internal/infrastructure/arca"
)

// Sequencer consulta el último número autorizado por ARCA para un
// (punto de venta, tipo de comprobante). Lo implementa arca.WSFEClient.
type Sequencer interface {
	LastAuthorized(ctx context.Context, pointOfSale int, docType fiscal.DocumentType) (int64, error)
}

// Authorizer solicita la autorización (CAE) de un comprobante.
// Lo implementa arca.WSFEClient.
type Authorizer interface {
	RequestAuthorization(ctx context.Context, sub arca.Submission) (*fiscal.AuthorizationResult, error)
}

// Estados del comprobante emitido.
const (
	InvoiceStatusIssued   = "EMITIDO"
	InvoiceStatusRejected = "RECHAZADO"
)

// IssuedInvoice es el registro durable de un comprobante procesado,
// aprobado o rechazado. La persistencia es responsabilidad del colaborador.
type IssuedInvoice struct {
	ID            string
	DocumentType  fiscal.DocumentType
	PointOfSale   int
	Number        int64
	IssueDate     time.Time
	BuyerName     string
	BuyerTaxID    string
	BuyerCategory string
	Net           decimal.Decimal
	TaxAmount     decimal.Decimal
	Gross         decimal.Decimal
	Status        string // ver InvoiceStatus*
	CAE           string
	CAEExpiry     time.Time
	Observations  []fiscal.Observation
	CreatedAt     time.Time
}

// InvoiceStore es el puerto de salida hacia la persistencia.
// Para tests se inyecta un mock.
type InvoiceStore interface {
	Save(ctx context.Context, invoice *IssuedInvoice) error
}

// InvoiceRenderer es el puerto de salida hacia la representación gráfica
// (PDF). Se invoca recién después de persistir; su falla no revierte la
// autorización ya obtenida.
type InvoiceRenderer interface {
	Render(ctx context.Context, invoice *IssuedInvoice, lines []fiscal.LineItem) ([]byte, error)
}
