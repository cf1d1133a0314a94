package arca

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/RodrigoSola/corrafer-fiscal/internal/domain/fiscal"
)

const (
	wsfeURLProd = "https://servicios1.afip.gov.ar/wsfev1/service.asmx"
	wsfeURLTest = "https://wswhomo.afip.gov.ar/wsfev1/service.asmx"

	wsfeNS         = "http://ar.gov.afip.dif.FEV1/"
	wsfeActionBase = "http://ar.gov.afip.dif.FEV1/"

	// Concepto 1 = productos (el único que emite este negocio).
	conceptProducts = 1

	currencyPeso = "PES"
)

// TicketSource entrega un ticket de acceso vigente (lo implementa TicketCache).
type TicketSource interface {
	GetValidTicket(ctx context.Context) (*Ticket, error)
}

// WSFEClient ejecuta las operaciones del WSFEv1 autenticadas con el ticket
// vigente: consulta de numeración, solicitud de CAE y estado del servicio.
type WSFEClient struct {
	url        string
	cuit       int64
	tickets    TicketSource
	httpClient *http.Client
}

// NewWSFEClient construye el cliente para el entorno dado. overrideURL no
// vacío reemplaza el endpoint (tests).
func NewWSFEClient(env string, cuit int64, tickets TicketSource, timeout time.Duration, overrideURL string) *WSFEClient {
	url := wsfeURLTest
	if env == EnvProduction {
		url = wsfeURLProd
	}
	if overrideURL != "" {
		url = overrideURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WSFEClient{
		url:        url,
		cuit:       cuit,
		tickets:    tickets,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type wsfeEnvelope struct {
	XMLName   xml.Name `xml:"soap:Envelope"`
	XmlnsSoap string   `xml:"xmlns:soap,attr"`
	Body      wsfeBody `xml:"soap:Body"`
}

type wsfeBody struct {
	Content interface{}
}

func (b wsfeBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "soap:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// feAuth es el header de autenticación {token, sign, cuit} de toda
// operación WSFE.
type feAuth struct {
	Token string `xml:"Token"`
	Sign  string `xml:"Sign"`
	Cuit  int64  `xml:"Cuit"`
}

type feErr struct {
	Code int    `xml:"Code"`
	Msg  string `xml:"Msg"`
}

type feObs struct {
	Code int    `xml:"Code"`
	Msg  string `xml:"Msg"`
}

// ── FEDummy ───────────────────────────────────────────────────────────────────

type feDummyRequest struct {
	XMLName xml.Name `xml:"FEDummy"`
	Xmlns   string   `xml:"xmlns,attr"`
}

type feDummyResponse struct {
	Result struct {
		AppServer  string `xml:"AppServer"`
		DbServer   string `xml:"DbServer"`
		AuthServer string `xml:"AuthServer"`
	} `xml:"FEDummyResult"`
}

// ── FECompUltimoAutorizado ────────────────────────────────────────────────────

type feUltimoAutorizadoRequest struct {
	XMLName  xml.Name `xml:"FECompUltimoAutorizado"`
	Xmlns    string   `xml:"xmlns,attr"`
	Auth     feAuth   `xml:"Auth"`
	PtoVta   int      `xml:"PtoVta"`
	CbteTipo int      `xml:"CbteTipo"`
}

type feUltimoAutorizadoResponse struct {
	Result struct {
		PtoVta   int     `xml:"PtoVta"`
		CbteTipo int     `xml:"CbteTipo"`
		CbteNro  int64   `xml:"CbteNro"`
		Errors   []feErr `xml:"Errors>Err"`
	} `xml:"FECompUltimoAutorizadoResult"`
}

// ── FECAESolicitar ────────────────────────────────────────────────────────────

type feCAESolicitarRequest struct {
	XMLName  xml.Name     `xml:"FECAESolicitar"`
	Xmlns    string       `xml:"xmlns,attr"`
	Auth     feAuth       `xml:"Auth"`
	FeCAEReq feCAERequest `xml:"FeCAEReq"`
}

type feCAERequest struct {
	FeCabReq feCabRequest `xml:"FeCabReq"`
	FeDetReq feDetRequest `xml:"FeDetReq"`
}

type feCabRequest struct {
	CantReg  int `xml:"CantReg"`
	PtoVta   int `xml:"PtoVta"`
	CbteTipo int `xml:"CbteTipo"`
}

type feDetRequest struct {
	Details []feCAEDetRequest `xml:"FECAEDetRequest"`
}

type feCAEDetRequest struct {
	Concepto   int         `xml:"Concepto"`
	DocTipo    int         `xml:"DocTipo"`
	DocNro     int64       `xml:"DocNro"`
	CbteDesde  int64       `xml:"CbteDesde"`
	CbteHasta  int64       `xml:"CbteHasta"`
	CbteFch    int         `xml:"CbteFch"` // AAAAMMDD
	ImpTotal   string      `xml:"ImpTotal"`
	ImpTotConc string      `xml:"ImpTotConc"`
	ImpNeto    string      `xml:"ImpNeto"`
	ImpOpEx    string      `xml:"ImpOpEx"`
	ImpTrib    string      `xml:"ImpTrib"`
	ImpIVA     string      `xml:"ImpIVA"`
	MonId      string      `xml:"MonId"`
	MonCotiz   string      `xml:"MonCotiz"`
	Iva        *feIvaArray `xml:"Iva,omitempty"`
}

type feIvaArray struct {
	AlicIva []feAlicIva `xml:"AlicIva"`
}

type feAlicIva struct {
	Id      int    `xml:"Id"`
	BaseImp string `xml:"BaseImp"`
	Importe string `xml:"Importe"`
}

type feCAESolicitarResponse struct {
	Result struct {
		FeCabResp struct {
			Resultado  string `xml:"Resultado"`
			FchProceso string `xml:"FchProceso"`
		} `xml:"FeCabResp"`
		FeDetResp struct {
			Details []feCAEDetResponse `xml:"FECAEDetResponse"`
		} `xml:"FeDetResp"`
		Errors []feErr `xml:"Errors>Err"`
	} `xml:"FECAESolicitarResult"`
}

type feCAEDetResponse struct {
	CbteDesde     int64   `xml:"CbteDesde"`
	CbteHasta     int64   `xml:"CbteHasta"`
	Resultado     string  `xml:"Resultado"`
	CAE           string  `xml:"CAE"`
	CAEFchVto     string  `xml:"CAEFchVto"` // AAAAMMDD
	Observaciones []feObs `xml:"Observaciones>Obs"`
}

type wsfeResponseEnvelope struct {
	Body struct {
		Dummy            *feDummyResponse            `xml:"FEDummyResponse"`
		UltimoAutorizado *feUltimoAutorizadoResponse `xml:"FECompUltimoAutorizadoResponse"`
		CAESolicitar     *feCAESolicitarResponse     `xml:"FECAESolicitarResponse"`
		Fault            *soapFault                  `xml:"Fault"`
	} `xml:"Body"`
}

// ── Transporte ────────────────────────────────────────────────────────────────

// call serializa el body en un envelope SOAP 1.1, lo envía y parsea la
// respuesta. Errores de red o de protocolo se devuelven sin clasificar;
// cada operación los encuadra en su propia taxonomía.
func (c *WSFEClient) call(ctx context.Context, action string, content interface{}) (*wsfeResponseEnvelope, error) {
	envelope := wsfeEnvelope{
		XmlnsSoap: soapEnvNS,
		Body:      wsfeBody{Content: content},
	}
	payload, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializar envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", wsfeActionBase+action)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("llamada WSFE %s: %w", action, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // max 1 MB
	if err != nil {
		return nil, fmt.Errorf("leer respuesta WSFE: %w", err)
	}

	var envResp wsfeResponseEnvelope
	if err := xml.Unmarshal(rawBody, &envResp); err != nil {
		return nil, fmt.Errorf("parsear respuesta WSFE: %w", err)
	}
	return &envResp, nil
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// ServerStatus ejecuta FEDummy y devuelve el estado de los servidores de ARCA.
func (c *WSFEClient) ServerStatus(ctx context.Context) (appServer, dbServer, authServer string, err error) {
	envResp, err := c.call(ctx, "FEDummy", &feDummyRequest{Xmlns: wsfeNS})
	if err != nil {
		return "", "", "", err
	}
	if envResp.Body.Dummy == nil {
		return "", "", "", fmt.Errorf("respuesta FEDummy vacía")
	}
	r := envResp.Body.Dummy.Result
	return r.AppServer, r.DbServer, r.AuthServer, nil
}

// LastAuthorized consulta el último número de comprobante autorizado para
// el (punto de venta, tipo) dado. El valor es informativo: el próximo
// número a usar es result+1, y el caller debe serializar las emisiones
// por (punto de venta, tipo) para no colisionar.
func (c *WSFEClient) LastAuthorized(ctx context.Context, pointOfSale int, docType fiscal.DocumentType) (int64, error) {
	seqErr := func(kind fiscal.SequenceErrorKind, err error) error {
		return &fiscal.SequenceError{Kind: kind, PointOfSale: pointOfSale, DocumentType: docType, Err: err}
	}

	ticket, err := c.tickets.GetValidTicket(ctx)
	if err != nil {
		return 0, seqErr(fiscal.SequenceUnauthorized, err)
	}

	envResp, err := c.call(ctx, "FECompUltimoAutorizado", &feUltimoAutorizadoRequest{
		Xmlns:    wsfeNS,
		Auth:     feAuth{Token: ticket.Token, Sign: ticket.Sign, Cuit: c.cuit},
		PtoVta:   pointOfSale,
		CbteTipo: docType.Code(),
	})
	if err != nil {
		return 0, seqErr(fiscal.SequenceTransport, err)
	}
	if envResp.Body.Fault != nil {
		return 0, seqErr(fiscal.SequenceTransport,
			fmt.Errorf("SOAP Fault [%s]: %s", envResp.Body.Fault.FaultCode, envResp.Body.Fault.FaultString))
	}
	if envResp.Body.UltimoAutorizado == nil {
		return 0, seqErr(fiscal.SequenceTransport, fmt.Errorf("respuesta FECompUltimoAutorizado vacía"))
	}

	result := envResp.Body.UltimoAutorizado.Result
	if len(result.Errors) > 0 {
		// El WS rechaza la consulta: ticket inválido/vencido o parámetros
		// fuera de la habilitación del contribuyente.
		return 0, seqErr(fiscal.SequenceUnauthorized, fmt.Errorf("%s", joinErrs(result.Errors)))
	}
	return result.CbteNro, nil
}

// Submission es una solicitud de CAE lista para enviar: el pedido original,
// el número asignado y los totales ya clasificados.
type Submission struct {
	Request fiscal.InvoiceRequest
	Number  int64
	Totals  fiscal.TaxBreakdown
}

// RequestAuthorization ejecuta FECAESolicitar para un único comprobante y
// clasifica la respuesta en tres niveles, en orden:
//
//  1. Errores globales (no asociados a ningún detalle) → *fiscal.AuthorizationError.
//  2. Detalle con Resultado != "A" → AuthorizationResult RECHAZADO con
//     observaciones (resultado de negocio, no error).
//  3. Aprobado → CAE + vencimiento.
func (c *WSFEClient) RequestAuthorization(ctx context.Context, sub Submission) (*fiscal.AuthorizationResult, error) {
	req := sub.Request
	totals := sub.Totals
	docType := totals.DocumentType

	ticket, err := c.tickets.GetValidTicket(ctx)
	if err != nil {
		return nil, err
	}

	detail := feCAEDetRequest{
		Concepto:   conceptProducts,
		DocTipo:    req.Buyer.DocType(),
		DocNro:     req.Buyer.DocNumber(),
		CbteDesde:  sub.Number,
		CbteHasta:  sub.Number,
		CbteFch:    fiscal.FormatAuthorityDate(req.IssueDate),
		ImpTotal:   totals.Gross.StringFixed(2),
		ImpTotConc: "0.00",
		ImpNeto:    totals.Net.StringFixed(2),
		ImpOpEx:    "0.00",
		ImpTrib:    "0.00",
		ImpIVA:     totals.TaxAmount.StringFixed(2),
		MonId:      currencyPeso,
		MonCotiz:   "1",
	}
	// El sub-registro de alícuotas va solo en comprobantes que discriminan
	// IVA y con impuesto distinto de cero; en Factura C se omite.
	if docType != fiscal.DocumentTypeC && !totals.TaxAmount.IsZero() {
		detail.Iva = &feIvaArray{AlicIva: []feAlicIva{{
			Id:      fiscal.TaxRateID,
			BaseImp: totals.Net.StringFixed(2),
			Importe: totals.TaxAmount.StringFixed(2),
		}}}
	}

	envResp, err := c.call(ctx, "FECAESolicitar", &feCAESolicitarRequest{
		Xmlns: wsfeNS,
		Auth:  feAuth{Token: ticket.Token, Sign: ticket.Sign, Cuit: c.cuit},
		FeCAEReq: feCAERequest{
			FeCabReq: feCabRequest{CantReg: 1, PtoVta: req.PointOfSale, CbteTipo: docType.Code()},
			FeDetReq: feDetRequest{Details: []feCAEDetRequest{detail}},
		},
	})
	if err != nil {
		return nil, &fiscal.AuthError{Kind: fiscal.AuthNetworkUnavailable, Err: err}
	}
	if envResp.Body.Fault != nil {
		return nil, &fiscal.AuthError{
			Kind: fiscal.AuthRemoteRejected,
			Err:  fmt.Errorf("SOAP Fault [%s]: %s", envResp.Body.Fault.FaultCode, envResp.Body.Fault.FaultString),
		}
	}
	if envResp.Body.CAESolicitar == nil {
		return nil, &fiscal.AuthError{Kind: fiscal.AuthMalformedResponse, Err: fmt.Errorf("respuesta FECAESolicitar vacía")}
	}

	result := envResp.Body.CAESolicitar.Result

	// Nivel 1: rechazo global. No hay resultado parcial y el número no se
	// considera consumido.
	if len(result.Errors) > 0 {
		return nil, &fiscal.AuthorizationError{
			PointOfSale:  req.PointOfSale,
			DocumentType: docType,
			Errors:       toObservations(result.Errors),
		}
	}

	if len(result.FeDetResp.Details) == 0 {
		return nil, &fiscal.AuthError{Kind: fiscal.AuthMalformedResponse, Err: fmt.Errorf("FECAESolicitar sin detalle de respuesta")}
	}
	det := result.FeDetResp.Details[0]

	authResult := &fiscal.AuthorizationResult{
		PointOfSale:    req.PointOfSale,
		DocumentType:   docType,
		DocumentNumber: sub.Number,
	}
	for _, obs := range det.Observaciones {
		authResult.Observations = append(authResult.Observations, fiscal.Observation{Code: obs.Code, Message: obs.Msg})
	}

	// Nivel 2: rechazo del comprobante. Resultado de negocio.
	if det.Resultado != "A" {
		authResult.Outcome = fiscal.OutcomeRejected
		return authResult, nil
	}

	// Nivel 3: aprobado.
	expiry, err := parseCAEExpiry(det.CAEFchVto)
	if err != nil {
		return nil, &fiscal.AuthError{Kind: fiscal.AuthMalformedResponse, Err: err}
	}
	authResult.Outcome = fiscal.OutcomeApproved
	authResult.AuthorizationCode = det.CAE
	authResult.AuthorizationExpiry = expiry
	return authResult, nil
}

func parseCAEExpiry(raw string) (time.Time, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("vencimiento de CAE ilegible %q: %w", raw, err)
	}
	return fiscal.ParseAuthorityDate(v)
}

func toObservations(errs []feErr) []fiscal.Observation {
	obs := make([]fiscal.Observation, len(errs))
	for i, e := range errs {
		obs[i] = fiscal.Observation{Code: e.Code, Message: e.Msg}
	}
	return obs
}

func joinErrs(errs []feErr) string {
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("[%d] %s", e.Code, e.Msg)
	}
	return msg
}
