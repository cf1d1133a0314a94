package http

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/RodrigoSola/corrafer-fiscal/internal/application/billing"
	"github.com/RodrigoSola/corrafer-fiscal/internal/application/dto"
	"github.com/RodrigoSola/corrafer-fiscal/internal/domain/fiscal"
)

// StatusProvider consulta la disponibilidad de los servicios de ARCA.
// Lo implementa arca.WSFEClient (FEDummy).
type StatusProvider interface {
	ServerStatus(ctx context.Context) (appServer, dbServer, authServer string, err error)
}

// InvoiceLister consulta comprobantes ya emitidos.
// Lo implementa postgres.InvoiceRepo.
type InvoiceLister interface {
	ListRecent(ctx context.Context, limit int) ([]*billing.IssuedInvoice, error)
}

// FiscalHandler expone la emisión y consulta de comprobantes ARCA.
type FiscalHandler struct {
	uc                 *billing.IssueInvoiceUseCase
	status             StatusProvider
	lister             InvoiceLister
	defaultPointOfSale int
}

// NewFiscalHandler construye el handler.
func NewFiscalHandler(uc *billing.IssueInvoiceUseCase, status StatusProvider, lister InvoiceLister, defaultPointOfSale int) *FiscalHandler {
	return &FiscalHandler{uc: uc, status: status, lister: lister, defaultPointOfSale: defaultPointOfSale}
}

// Issue emite un comprobante contra ARCA.
// POST /api/arca/invoices
func (h *FiscalHandler) Issue(c *fiber.Ctx) error {
	var in dto.IssueInvoiceRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	req, err := in.ToDomain(h.defaultPointOfSale)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "fecha inválida, formato esperado YYYY-MM-DD"})
	}

	result, err := h.uc.Issue(c.Context(), req)
	if err != nil {
		return h.issueError(c, err)
	}

	resp := dto.FromInvoice(result.Invoice)
	if len(result.PDF) > 0 {
		resp.PDFBase64 = base64.StdEncoding.EncodeToString(result.PDF)
	}
	status := fiber.StatusCreated
	if result.Invoice.Status == billing.InvoiceStatusRejected {
		// El comprobante quedó registrado pero ARCA lo rechazó.
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(resp)
}

// issueError traduce la taxonomía de errores fiscales a códigos HTTP.
func (h *FiscalHandler) issueError(c *fiber.Ctx, err error) error {
	var authzErr *fiscal.AuthorizationError
	if errors.As(err, &authzErr) {
		obs := make([]dto.ObservationResponse, 0, len(authzErr.Errors))
		for _, o := range authzErr.Errors {
			obs = append(obs, dto.ObservationResponse{Code: o.Code, Message: o.Message})
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"code":    "AUTHORITY_REJECTED",
			"message": "ARCA rechazó la solicitud",
			"errors":  obs,
		})
	}
	var seqErr *fiscal.SequenceError
	if errors.As(err, &seqErr) {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "SEQUENCE_" + string(seqErr.Kind), Message: err.Error()})
	}
	var authErr *fiscal.AuthError
	if errors.As(err, &authErr) {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "AUTH_" + string(authErr.Kind), Message: err.Error()})
	}
	var certErr *fiscal.CertificateError
	var signErr *fiscal.SigningError
	if errors.As(err, &certErr) || errors.As(err, &signErr) {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "CREDENTIALS", Message: err.Error()})
	}
	if strings.HasPrefix(err.Error(), "billing:") {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}

// LastNumber consulta el último comprobante autorizado por ARCA.
// GET /api/arca/last-number?point_of_sale=3&document_type=B
func (h *FiscalHandler) LastNumber(c *fiber.Ctx) error {
	pos, err := strconv.Atoi(c.Query("point_of_sale", strconv.Itoa(h.defaultPointOfSale)))
	if err != nil || pos <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "point_of_sale inválido"})
	}
	docType := fiscal.DocumentType(c.Query("document_type"))
	switch docType {
	case fiscal.DocumentTypeA, fiscal.DocumentTypeB, fiscal.DocumentTypeC:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "document_type debe ser A, B o C"})
	}

	last, err := h.uc.LastNumber(c.Context(), pos, docType)
	if err != nil {
		var seqErr *fiscal.SequenceError
		if errors.As(err, &seqErr) {
			return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "SEQUENCE_" + string(seqErr.Kind), Message: err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(dto.LastNumberResponse{PointOfSale: pos, DocumentType: string(docType), LastNumber: last})
}

// List devuelve los últimos comprobantes emitidos.
// GET /api/arca/invoices?limit=50
func (h *FiscalHandler) List(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	invoices, err := h.lister.ListRecent(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	out := make([]dto.InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, dto.FromInvoice(inv))
	}
	return c.JSON(out)
}

// Status ejecuta FEDummy contra ARCA.
// GET /api/arca/status
func (h *FiscalHandler) Status(c *fiber.Ctx) error {
	app, db, auth, err := h.status.ServerStatus(c.Context())
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "AUTHORITY_UNAVAILABLE", Message: err.Error()})
	}
	return c.JSON(dto.StatusResponse{AppServer: app, DBServer: db, AuthServer: auth})
}
