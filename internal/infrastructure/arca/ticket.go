package arca

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/RodrigoSola/corrafer-fiscal/internal/domain/fiscal"
	"github.com/RodrigoSola/corrafer-fiscal/pkg/metrics"
)

// DefaultSafetyMargin es la anticipación con la que un ticket se considera
// vencido y se renueva.
const DefaultSafetyMargin = 10 * time.Minute

// TicketCache es el dueño del ciclo de vida del ticket de acceso: lo
// renueva vía TicketSigner + loginCms y lo cachea hasta su vencimiento.
// Toda la re-autenticación del cliente pasa por acá; ningún otro
// componente hace login por su cuenta.
//
// La renovación usa single-flight: ante N callers concurrentes con el
// ticket vencido se ejecuta un único loginCms y todos reciben el mismo
// resultado. El WSAA rechaza logins superpuestos para la misma identidad.
type TicketCache struct {
	signer       *TicketSigner
	wsaa         *WSAAClient
	safetyMargin time.Duration
	log          zerolog.Logger

	mu      sync.RWMutex
	current *Ticket

	group singleflight.Group

	// Clock permite fijar el reloj en tests. nil usa time.Now.
	Clock func() time.Time
}

// NewTicketCache construye el cache. safetyMargin <= 0 usa DefaultSafetyMargin.
func NewTicketCache(signer *TicketSigner, wsaa *WSAAClient, safetyMargin time.Duration, log zerolog.Logger) *TicketCache {
	if safetyMargin <= 0 {
		safetyMargin = DefaultSafetyMargin
	}
	return &TicketCache{
		signer:       signer,
		wsaa:         wsaa,
		safetyMargin: safetyMargin,
		log:          log,
	}
}

func (c *TicketCache) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

// fresh indica si el ticket sigue utilizable con el margen de seguridad.
func (c *TicketCache) fresh(t *Ticket, now time.Time) bool {
	return t != nil && now.Before(t.ExpiresAt.Add(-c.safetyMargin))
}

func (c *TicketCache) snapshot() *Ticket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// GetValidTicket devuelve el ticket vigente, renovándolo si está vencido
// o por vencer. Token y firma se reemplazan siempre juntos, de forma
// atómica: nunca hay un ticket a medio actualizar.
func (c *TicketCache) GetValidTicket(ctx context.Context) (*Ticket, error) {
	if t := c.snapshot(); c.fresh(t, c.now()) {
		return t, nil
	}

	v, err, _ := c.group.Do("login", func() (interface{}, error) {
		// Re-chequeo dentro del vuelo: otro caller pudo haber renovado.
		if t := c.snapshot(); c.fresh(t, c.now()) {
			return t, nil
		}
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Ticket), nil
}

func (c *TicketCache) refresh(ctx context.Context) (*Ticket, error) {
	metrics.TicketRefreshes.Inc()

	signedCMS, err := c.signer.Sign()
	if err != nil {
		// Errores de certificado o firma: irrecuperables, se propagan tal cual.
		return nil, err
	}

	ticket, err := c.wsaa.LoginCms(ctx, signedCMS)
	if err != nil {
		// Si el ticket anterior todavía no venció (está dentro del margen de
		// seguridad pero sigue siendo válido), se conserva y se reintenta la
		// renovación en el próximo acceso.
		if prev := c.snapshot(); prev != nil && c.now().Before(prev.ExpiresAt) {
			c.log.Warn().Err(err).
				Time("expira", prev.ExpiresAt).
				Msg("renovación de ticket fallida; se conserva el ticket vigente")
			return prev, nil
		}
		metrics.TicketRefreshFailures.Inc()
		return nil, &fiscal.AuthError{Kind: fiscal.AuthLoginFailed, Err: err}
	}

	c.mu.Lock()
	c.current = ticket
	c.mu.Unlock()

	c.log.Info().
		Time("emitido", ticket.IssuedAt).
		Time("expira", ticket.ExpiresAt).
		Msg("ticket WSAA renovado")
	return ticket, nil
}
