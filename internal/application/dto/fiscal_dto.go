package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/RodrigoSola/corrafer-fiscal/internal/application/billing"
	"github.com/RodrigoSola/corrafer-fiscal/internal/domain/fiscal"
)

// BuyerRequest datos del receptor del comprobante.
type BuyerRequest struct {
	Name           string `json:"name"`
	TaxID          string `json:"tax_id"`
	FiscalCategory string `json:"fiscal_category"` // RI, MONOTRIBUTO, EX, CF o vacío
}

// LineItemRequest una línea del comprobante. Según la condición fiscal del
// receptor se usa el precio neto (A) o el precio final (B y C); el que
// falte se deriva con la alícuota vigente.
type LineItemRequest struct {
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPriceNet   decimal.Decimal `json:"unit_price_net"`
	UnitPriceGross decimal.Decimal `json:"unit_price_gross"`
}

// IssueInvoiceRequest petición de emisión de comprobante.
type IssueInvoiceRequest struct {
	PointOfSale int               `json:"point_of_sale"`
	IssueDate   string            `json:"issue_date"` // YYYY-MM-DD, opcional (hoy)
	Buyer       BuyerRequest      `json:"buyer"`
	Items       []LineItemRequest `json:"items"`
}

// ToDomain convierte la petición al modelo de dominio.
func (r IssueInvoiceRequest) ToDomain(defaultPointOfSale int) (fiscal.InvoiceRequest, error) {
	pos := r.PointOfSale
	if pos == 0 {
		pos = defaultPointOfSale
	}
	var issueDate time.Time
	if r.IssueDate != "" {
		parsed, err := time.ParseInLocation("2006-01-02", r.IssueDate, time.Local)
		if err != nil {
			return fiscal.InvoiceRequest{}, err
		}
		issueDate = parsed
	}
	items := make([]fiscal.LineItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, fiscal.LineItem{
			Description:    it.Description,
			Quantity:       it.Quantity,
			UnitPriceNet:   it.UnitPriceNet,
			UnitPriceGross: it.UnitPriceGross,
		})
	}
	return fiscal.InvoiceRequest{
		PointOfSale: pos,
		IssueDate:   issueDate,
		Buyer: fiscal.Buyer{
			Name:           r.Buyer.Name,
			TaxID:          r.Buyer.TaxID,
			FiscalCategory: r.Buyer.FiscalCategory,
		},
		LineItems: items,
	}, nil
}

// ObservationResponse observación devuelta por ARCA.
type ObservationResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// InvoiceResponse comprobante emitido (aprobado o rechazado).
type InvoiceResponse struct {
	ID            string                `json:"id"`
	DocumentType  string                `json:"document_type"`
	PointOfSale   int                   `json:"point_of_sale"`
	Number        int64                 `json:"number"`
	IssueDate     string                `json:"issue_date"`
	BuyerName     string                `json:"buyer_name,omitempty"`
	BuyerTaxID    string                `json:"buyer_tax_id,omitempty"`
	BuyerCategory string                `json:"buyer_category,omitempty"`
	Net           decimal.Decimal       `json:"net"`
	TaxAmount     decimal.Decimal       `json:"tax_amount"`
	Gross         decimal.Decimal       `json:"gross"`
	Status        string                `json:"status"`
	CAE           string                `json:"cae,omitempty"`
	CAEExpiry     string                `json:"cae_expiry,omitempty"`
	Observations  []ObservationResponse `json:"observations,omitempty"`
	PDFBase64     string                `json:"pdf_base64,omitempty"`
}

// FromInvoice arma la respuesta a partir del registro emitido.
func FromInvoice(inv *billing.IssuedInvoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:            inv.ID,
		DocumentType:  string(inv.DocumentType),
		PointOfSale:   inv.PointOfSale,
		Number:        inv.Number,
		IssueDate:     inv.IssueDate.Format("2006-01-02"),
		BuyerName:     inv.BuyerName,
		BuyerTaxID:    inv.BuyerTaxID,
		BuyerCategory: inv.BuyerCategory,
		Net:           inv.Net,
		TaxAmount:     inv.TaxAmount,
		Gross:         inv.Gross,
		Status:        inv.Status,
		CAE:           inv.CAE,
	}
	if !inv.CAEExpiry.IsZero() {
		resp.CAEExpiry = inv.CAEExpiry.Format("2006-01-02")
	}
	for _, o := range inv.Observations {
		resp.Observations = append(resp.Observations, ObservationResponse{Code: o.Code, Message: o.Message})
	}
	return resp
}

// LastNumberResponse respuesta de la consulta de numeración.
type LastNumberResponse struct {
	PointOfSale  int    `json:"point_of_sale"`
	DocumentType string `json:"document_type"`
	LastNumber   int64  `json:"last_number"`
}

// StatusResponse estado de los servicios de ARCA.
type StatusResponse struct {
	AppServer  string `json:"app_server"`
	DBServer   string `json:"db_server"`
	AuthServer string `json:"auth_server"`
}
