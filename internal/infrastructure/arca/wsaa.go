package arca

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beevik/etree"

	"github.com/RodrigoSola/corrafer-fiscal/internal/domain/fiscal"
)

// ── Entornos ──────────────────────────────────────────────────────────────────

const (
	// EnvProduction apunta a los WS productivos de ARCA.
	EnvProduction = "production"
	// EnvTest apunta a los WS de homologación.
	EnvTest = "test"

	wsaaURLProd = "https://wsaa.afip.gov.ar/ws/services/LoginCms"
	wsaaURLTest = "https://wsaahomo.afip.gov.ar/ws/services/LoginCms"

	soapEnvNS = "http://schemas.xmlsoap.org/soap/envelope/"
	wsaaNS    = "http://wsaa.view.sua.dvadac.desein.afip.gov"
)

// Si el login ticket no trae expirationTime se asume esta vigencia.
const defaultTicketLifetime = 12 * time.Hour

// Ticket es el ticket de acceso emitido por el WSAA: token + firma con su
// vigencia. Token y Sign viajan juntos en el header de cada llamada al WSFE.
type Ticket struct {
	Token     string
	Sign      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// WSAAClient ejecuta el intercambio loginCms contra el WSAA.
type WSAAClient struct {
	url        string
	httpClient *http.Client
}

// NewWSAAClient construye el cliente para el entorno dado. La URL puede
// sobreescribirse (tests o proxies) con overrideURL no vacío.
func NewWSAAClient(env string, timeout time.Duration, overrideURL string) *WSAAClient {
	url := wsaaURLTest
	if env == EnvProduction {
		url = wsaaURLProd
	}
	if overrideURL != "" {
		url = overrideURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WSAAClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type wsaaEnvelope struct {
	XMLName   xml.Name `xml:"soapenv:Envelope"`
	XmlnsSoap string   `xml:"xmlns:soapenv,attr"`
	XmlnsWsaa string   `xml:"xmlns:wsaa,attr"`
	Body      wsaaBody `xml:"soapenv:Body"`
}

type wsaaBody struct {
	LoginCms loginCmsBody `xml:"wsaa:loginCms"`
}

type loginCmsBody struct {
	In0 string `xml:"wsaa:in0"` // CMS firmado en base64
}

type wsaaResponseEnvelope struct {
	Body wsaaResponseBody `xml:"Body"`
}

type wsaaResponseBody struct {
	LoginCmsResponse *loginCmsResponse `xml:"loginCmsResponse"`
	Fault            *soapFault        `xml:"Fault"`
}

type loginCmsResponse struct {
	Return string `xml:"loginCmsReturn"` // XML loginTicketResponse escapado
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// ── loginCms ──────────────────────────────────────────────────────────────────

// LoginCms envía el CMS firmado y devuelve el ticket parseado.
func (c *WSAAClient) LoginCms(ctx context.Context, signedCMS string) (*Ticket, error) {
	envelope := wsaaEnvelope{
		XmlnsSoap: soapEnvNS,
		XmlnsWsaa: wsaaNS,
		Body:      wsaaBody{LoginCms: loginCmsBody{In0: signedCMS}},
	}
	payload, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, &fiscal.AuthError{Kind: fiscal.AuthMalformedResponse, Err: fmt.Errorf("serializar envelope: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, &fiscal.AuthError{Kind: fiscal.AuthNetworkUnavailable, Err: err}
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &fiscal.AuthError{Kind: fiscal.AuthNetworkUnavailable, Err: fmt.Errorf("llamada WSAA: %w", err)}
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // max 1 MB
	if err != nil {
		return nil, &fiscal.AuthError{Kind: fiscal.AuthNetworkUnavailable, Err: fmt.Errorf("leer respuesta WSAA: %w", err)}
	}

	var envResp wsaaResponseEnvelope
	if err := xml.Unmarshal(rawBody, &envResp); err != nil {
		return nil, &fiscal.AuthError{Kind: fiscal.AuthMalformedResponse, Err: fmt.Errorf("parsear respuesta WSAA: %w", err)}
	}

	// El WSAA responde 500 con un Fault ante CMS inválido o credenciales malas.
	if envResp.Body.Fault != nil {
		return nil, &fiscal.AuthError{
			Kind: fiscal.AuthRemoteRejected,
			Err:  fmt.Errorf("SOAP Fault [%s]: %s", envResp.Body.Fault.FaultCode, envResp.Body.Fault.FaultString),
		}
	}
	if envResp.Body.LoginCmsResponse == nil || envResp.Body.LoginCmsResponse.Return == "" {
		return nil, &fiscal.AuthError{
			Kind: fiscal.AuthMalformedResponse,
			Err:  fmt.Errorf("respuesta WSAA sin loginCmsReturn (HTTP %d)", resp.StatusCode),
		}
	}

	return parseLoginTicket(envResp.Body.LoginCmsResponse.Return)
}

// parseLoginTicket extrae token, sign y vencimiento del XML
// loginTicketResponse devuelto dentro de loginCmsReturn.
func parseLoginTicket(ticketXML string) (*Ticket, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(ticketXML); err != nil {
		return nil, &fiscal.AuthError{Kind: fiscal.AuthMalformedResponse, Err: fmt.Errorf("parsear loginTicketResponse: %w", err)}
	}
	root := doc.Root()
	if root == nil {
		return nil, &fiscal.AuthError{Kind: fiscal.AuthMalformedResponse, Err: fmt.Errorf("loginTicketResponse sin raíz")}
	}

	now := time.Now()
	ticket := &Ticket{IssuedAt: now}

	if el := root.FindElement("./credentials/token"); el != nil {
		ticket.Token = el.Text()
	}
	if el := root.FindElement("./credentials/sign"); el != nil {
		ticket.Sign = el.Text()
	}
	if ticket.Token == "" || ticket.Sign == "" {
		return nil, &fiscal.AuthError{
			Kind: fiscal.AuthMalformedResponse,
			Err:  fmt.Errorf("login ticket sin token o sign"),
		}
	}

	ticket.ExpiresAt = now.Add(defaultTicketLifetime)
	if el := root.FindElement("./header/expirationTime"); el != nil {
		if exp, err := time.Parse(time.RFC3339, el.Text()); err == nil {
			ticket.ExpiresAt = exp
		}
	}
	return ticket, nil
}
