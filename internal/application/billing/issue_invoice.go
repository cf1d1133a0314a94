package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RodrigoSola/corrafer-fiscal/internal/domain/fiscal"
	"github.com/RodrigoSola/corrafer-fiscal/internal/infrastructure/arca"
	"github.com/RodrigoSola/corrafer-fiscal/pkg/metrics"
)

// IssueResult es el resultado completo de una emisión: la respuesta de
// ARCA, el registro persistido y el PDF (nil si el comprobante fue
// rechazado o la representación gráfica falló).
type IssueResult struct {
	Authorization *fiscal.AuthorizationResult
	Invoice       *IssuedInvoice
	PDF           []byte
}

// seqKey identifica la serie de numeración a serializar.
type seqKey struct {
	pointOfSale int
	docType     fiscal.DocumentType
}

// IssueInvoiceUseCase emite un comprobante de punta a punta:
//
//	clasificar → serializar numeración → último autorizado + 1 →
//	solicitar CAE → persistir → representación gráfica
//
// ARCA trata la numeración por (punto de venta, tipo) como una secuencia
// monótona y sensible a huecos. La emisión se serializa de punta a punta
// con un mutex por serie: dos solicitudes concurrentes nunca leen el mismo
// "último número"; la segunda observa el efecto de la primera.
type IssueInvoiceUseCase struct {
	sequencer  Sequencer
	authorizer Authorizer
	store      InvoiceStore
	renderer   InvoiceRenderer
	log        zerolog.Logger

	mu       sync.Mutex
	seqLocks map[seqKey]*sync.Mutex
}

// NewIssueInvoiceUseCase construye el caso de uso. renderer puede ser nil
// (sin representación gráfica).
func NewIssueInvoiceUseCase(sequencer Sequencer, authorizer Authorizer, store InvoiceStore, renderer InvoiceRenderer, log zerolog.Logger) *IssueInvoiceUseCase {
	return &IssueInvoiceUseCase{
		sequencer:  sequencer,
		authorizer: authorizer,
		store:      store,
		renderer:   renderer,
		log:        log,
		seqLocks:   make(map[seqKey]*sync.Mutex),
	}
}

// lockFor devuelve el mutex de la serie, creándolo la primera vez.
func (uc *IssueInvoiceUseCase) lockFor(key seqKey) *sync.Mutex {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if l, ok := uc.seqLocks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	uc.seqLocks[key] = l
	return l
}

// Issue emite un comprobante. Un rechazo por observaciones de ARCA es un
// resultado normal (Invoice con estado RECHAZADO); un rechazo global se
// devuelve como error sin número consumido. Los errores de transporte no
// se reintentan acá: la solicitud de CAE no es idempotente.
func (uc *IssueInvoiceUseCase) Issue(ctx context.Context, req fiscal.InvoiceRequest) (*IssueResult, error) {
	if len(req.LineItems) == 0 {
		return nil, fmt.Errorf("billing: el comprobante no tiene líneas")
	}
	if req.PointOfSale <= 0 {
		return nil, fmt.Errorf("billing: punto de venta inválido %d", req.PointOfSale)
	}
	if req.IssueDate.IsZero() {
		req.IssueDate = time.Now()
	}

	cls := fiscal.Classify(req.Buyer)
	totals := fiscal.ComputeTotals(cls, req.LineItems)

	log := uc.log.With().
		Int("punto_venta", req.PointOfSale).
		Str("tipo", string(cls.DocumentType)).
		Logger()

	// Sección crítica por serie: desde la lectura del último número hasta
	// la respuesta de la autorización. El lock se libera en todos los
	// caminos de salida.
	lock := uc.lockFor(seqKey{pointOfSale: req.PointOfSale, docType: cls.DocumentType})
	lock.Lock()
	defer lock.Unlock()

	last, err := uc.sequencer.LastAuthorized(ctx, req.PointOfSale, cls.DocumentType)
	if err != nil {
		metrics.Authorizations.WithLabelValues("error").Inc()
		return nil, err
	}
	number := last + 1

	result, err := uc.authorizer.RequestAuthorization(ctx, arca.Submission{
		Request: req,
		Number:  number,
		Totals:  totals,
	})
	if err != nil {
		// Rechazo global o falla de transporte: el número no se considera
		// consumido y no se persiste nada.
		if _, global := err.(*fiscal.AuthorizationError); global {
			metrics.Authorizations.WithLabelValues("global_rejection").Inc()
		} else {
			metrics.Authorizations.WithLabelValues("error").Inc()
		}
		log.Error().Err(err).Int64("numero", number).Msg("solicitud de CAE fallida")
		return nil, err
	}

	invoice := &IssuedInvoice{
		ID:            uuid.New().String(),
		DocumentType:  cls.DocumentType,
		PointOfSale:   req.PointOfSale,
		Number:        number,
		IssueDate:     req.IssueDate,
		BuyerName:     req.Buyer.Name,
		BuyerTaxID:    req.Buyer.TaxID,
		BuyerCategory: req.Buyer.FiscalCategory,
		Net:           totals.Net,
		TaxAmount:     totals.TaxAmount,
		Gross:         totals.Gross,
		Observations:  result.Observations,
		CreatedAt:     time.Now(),
	}

	if result.Approved() {
		metrics.Authorizations.WithLabelValues("approved").Inc()
		invoice.Status = InvoiceStatusIssued
		invoice.CAE = result.AuthorizationCode
		invoice.CAEExpiry = result.AuthorizationExpiry
		log.Info().Int64("numero", number).Str("cae", result.AuthorizationCode).Msg("comprobante autorizado")
	} else {
		metrics.Authorizations.WithLabelValues("rejected").Inc()
		invoice.Status = InvoiceStatusRejected
		log.Warn().Int64("numero", number).Interface("observaciones", result.Observations).Msg("comprobante rechazado por ARCA")
	}

	if err := uc.store.Save(ctx, invoice); err != nil {
		// La autorización ya existe en ARCA; se deja rastro del CAE para
		// reconciliación manual antes de devolver el error.
		log.Error().Err(err).
			Int64("numero", number).
			Str("cae", invoice.CAE).
			Msg("no se pudo persistir el comprobante autorizado")
		return nil, fmt.Errorf("billing: persistir comprobante %d: %w", number, err)
	}

	issueResult := &IssueResult{Authorization: result, Invoice: invoice}

	// La representación gráfica va después de persistir y su falla no
	// revierte la autorización.
	if uc.renderer != nil && result.Approved() {
		pdf, err := uc.renderer.Render(ctx, invoice, req.LineItems)
		if err != nil {
			log.Warn().Err(err).Int64("numero", number).Msg("falló la representación gráfica del comprobante")
		} else {
			issueResult.PDF = pdf
		}
	}
	return issueResult, nil
}

// LastNumber expone la consulta de numeración para la capa HTTP.
func (uc *IssueInvoiceUseCase) LastNumber(ctx context.Context, pointOfSale int, docType fiscal.DocumentType) (int64, error) {
	return uc.sequencer.LastAuthorized(ctx, pointOfSale, docType)
}
