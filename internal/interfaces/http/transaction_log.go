package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// TransactionLog deja rastro estructurado de cada operación contra ARCA:
// quién la pidió, qué ruta, resultado HTTP y duración. Las operaciones
// fiscales son auditables, el log es parte del contrato operativo.
func TransactionLog(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		evt := log.Info()
		if status >= fiber.StatusInternalServerError {
			evt = log.Error()
		} else if status >= fiber.StatusBadRequest {
			evt = log.Warn()
		}
		evt.
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("user_id", GetUserID(c)).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("transacción ARCA")
		return err
	}
}
